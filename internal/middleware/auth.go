package middleware

import (
	"net/http"
	"strings"

	"collab-editor-api/internal/auth"

	"github.com/gin-gonic/gin"
)

// tokenFromRequest extracts a JWT from the Authorization header, falling back
// to the token query param for WebSocket/browser clients that cannot set
// custom headers.
func tokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}

func setIdentity(c *gin.Context, claims *auth.Claims) {
	c.Set("user_id", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("user_email", claims.Email)
}

// JWTAuthMiddleware validates the JWT and aborts unauthorized requests.
func JWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := tokenFromRequest(c)
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalJWTAuthMiddleware resolves identity when a valid token is present
// but never rejects the request. Document reads and realtime joins accept
// anonymous participants carrying an access key instead.
func OptionalJWTAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := tokenFromRequest(c); tokenString != "" {
			if claims, err := auth.ValidateToken(tokenString); err == nil {
				setIdentity(c, claims)
			}
		}
		c.Next()
	}
}
