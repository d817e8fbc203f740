package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"messenger-service/internal/models"
	"messenger-service/internal/services"
	"messenger-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountService is implemented by services.UserService
type AccountService interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
}

type AuthHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

func NewAuthHandler(accounts AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

// Register creates an account and returns a token for it.
// 201 on success, 400 on invalid input, 409 when the username is taken.
//
// @Summary Register a new user
// @Description Create an account and return a JWT for it
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Register Request"
// @Success 201 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "username (3-64 chars) and password (6-72 chars) are required")
		return
	}

	res, err := h.accounts.Register(c.Request.Context(), &req)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, res)
	case errors.Is(err, services.ErrUserAlreadyExists):
		response.Error(c, http.StatusConflict, response.MsgUsernameTaken, "")
	case errors.Is(err, services.ErrInvalidRequest):
		response.BadRequest(c, "username and password are required")
	default:
		h.logger.Error("Register failed", "username", req.Username, "error", err)
		response.Internal(c)
	}
}

// Login exchanges credentials for a token. 401 on any credential mismatch.
//
// @Summary User login
// @Description Authenticate a user and return a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Login Request"
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "username and password are required")
		return
	}

	res, err := h.accounts.Login(c.Request.Context(), &req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case errors.Is(err, services.ErrInvalidCredentials):
		response.Unauthorized(c, "invalid username or password")
	case errors.Is(err, services.ErrInvalidRequest):
		response.BadRequest(c, "username and password are required")
	default:
		h.logger.Error("Login failed", "username", req.Username, "error", err)
		response.Internal(c)
	}
}
