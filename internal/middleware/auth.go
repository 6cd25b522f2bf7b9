package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/notely/internal/auth"
	"github.com/charlesng35/notely/pkg/errors"
	"github.com/charlesng35/notely/pkg/response"
)

const CtxUserIDKey = "userID"

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

var _ TokenVerifier = (*iauth.TokenService)(nil)

// Auth enforces bearer token authentication using the supplied verifier.
func Auth(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			unauthorized(c)
			return
		}

		token := strings.TrimSpace(authz[7:])
		userID, err := tokens.Verify(token)
		if err != nil {
			// Expired, malformed and wrongly signed tokens all look the same to clients
			unauthorized(c)
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, errors.ErrUnauthorized)
	c.Abort()
}
