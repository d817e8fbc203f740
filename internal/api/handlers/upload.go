package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"messenger-service/internal/api/middleware"
	"messenger-service/internal/models"
	"messenger-service/pkg/response"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

const MaxAttachmentSize = 10 << 20

// Uploader is implemented by storage.MinIOClient
type Uploader interface {
	Upload(ctx context.Context, username, fileName string, r io.Reader, size int64, contentType string) (string, error)
}

var allowedAttachmentPrefixes = []string{"image/", "audio/", "video/", "text/plain", "application/pdf", "application/zip"}

type UploadHandler struct {
	uploader Uploader
	logger   *slog.Logger
}

// NewUploadHandler accepts a nil uploader; uploads then answer 503
func NewUploadHandler(uploader Uploader, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, logger: logger}
}

// Upload stores the multipart "file" field and returns its URL, which clients
// then send as ordinary message text.
//
// @Summary Upload an attachment
// @Description Store a file of up to 10MB and return its URL
// @Tags attachments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Attachment"
// @Success 201 {object} models.AttachmentResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 415 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/attachments [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	if h.uploader == nil {
		response.Error(c, http.StatusServiceUnavailable, response.MsgStorageUnavailable, "attachments are disabled")
		return
	}

	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthenticated")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file field is required")
		return
	}
	if header.Size <= 0 || header.Size > MaxAttachmentSize {
		response.BadRequest(c, "file must be between 1 byte and 10MB")
		return
	}

	file, err := header.Open()
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	defer file.Close()

	mtype, err := mimetype.DetectReader(file)
	if err != nil {
		response.BadRequest(c, "unreadable file")
		return
	}
	if !isAllowedAttachment(mtype) {
		response.Error(c, http.StatusUnsupportedMediaType, response.MsgInvalidInput, "unsupported file type "+mtype.String())
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		response.Internal(c)
		return
	}

	url, err := h.uploader.Upload(c.Request.Context(), identity.Username, header.Filename, file, header.Size, mtype.String())
	if err != nil {
		h.logger.Error("Attachment upload failed", "username", identity.Username, "error", err)
		response.Error(c, http.StatusBadGateway, response.MsgStorageUnavailable, "")
		return
	}

	c.JSON(http.StatusCreated, models.AttachmentResponse{
		URL:         url,
		FileName:    header.Filename,
		ContentType: mtype.String(),
		Size:        header.Size,
	})
}

func isAllowedAttachment(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		for _, prefix := range allowedAttachmentPrefixes {
			if strings.HasPrefix(m.String(), prefix) {
				return true
			}
		}
	}
	return false
}
