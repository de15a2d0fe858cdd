package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"engagement-service/internal/models"
	"engagement-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextUserID is the gin context key holding the authenticated subject.
const ContextUserID = "user_id"

type AuthMiddleware struct {
	jwtSecret string
}

// NewAuthMiddleware returns a middleware verifying HS256 bearer tokens.
// An empty secret turns RequireAuth into a pass-through.
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
	}
}

func (am *AuthMiddleware) Enabled() bool {
	return am.jwtSecret != ""
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "authorization header is required", "")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			abortUnauthorized(c, "authorization header must use the Bearer scheme", "")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(am.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			abortUnauthorized(c, "invalid token", errString(err))
			return
		}

		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			abortUnauthorized(c, "invalid token claims", "sub claim is required")
			return
		}

		c.Set(ContextUserID, subject)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message, details string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Code:    response.ErrCodeUnauthorized,
		Message: message,
		Details: details,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
