package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	userIDKey    = "userID"
	userEmailKey = "userEmail"
	cookieName   = "uptimedock_jwt"
)

type Auth struct {
	Enabled      bool
	Secret       []byte
	SystemUserID string
}

// UserID returns the user the request was authenticated as.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func (a Auth) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Without auth every request acts as the system user.
		if !a.Enabled {
			c.Set(userIDKey, a.SystemUserID)
			c.Next()
			return
		}

		tokenString := ""

		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		// Cookie fallback
		if tokenString == "" {
			cookie, err := c.Cookie(cookieName)
			if err == nil {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return a.Secret, nil
		})
		if err != nil || !token.Valid {
			// jwt/v5 rejects expired tokens while parsing.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		userID, _ := claims["user_id"].(string)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		c.Set(userIDKey, userID)
		if email, ok := claims["email"].(string); ok {
			c.Set(userEmailKey, email)
		}
		c.Next()
	}
}
