package middleware

import (
	"strings"

	"messenger-service/internal/chat"
	"messenger-service/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextUsername = "username"
	ContextIdentity = "identity"
)

// TokenAuthenticator resolves a bearer token to a chat identity
type TokenAuthenticator interface {
	Authenticate(token string) (chat.Identity, error)
}

type AuthMiddleware struct {
	auth TokenAuthenticator
}

func NewAuthMiddleware(auth TokenAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAuth accepts only "Authorization: Bearer <token>"
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			response.Unauthorized(c, "authorization header is required")
			return
		}
		am.authenticate(c, token)
	}
}

// RequireWSAuth also reads the token query parameter, since browsers cannot set
// headers on a websocket handshake. Rejection happens before the upgrade.
func (am *AuthMiddleware) RequireWSAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = bearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			response.Unauthorized(c, "token is required")
			return
		}
		am.authenticate(c, token)
	}
}

func (am *AuthMiddleware) authenticate(c *gin.Context, token string) {
	identity, err := am.auth.Authenticate(token)
	if err != nil {
		response.Unauthorized(c, "invalid token")
		return
	}

	c.Set(ContextIdentity, identity)
	c.Set(ContextUsername, identity.Username)
	c.Next()
}

// IdentityFrom returns the identity stored by the auth middleware
func IdentityFrom(c *gin.Context) (chat.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return chat.Identity{}, false
	}
	identity, ok := v.(chat.Identity)
	return identity, ok && identity.Valid()
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
