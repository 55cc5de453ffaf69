package middleware

import (
	"fmt"
	"strings"
	"time"

	"ticket_worker/pkg/apperr"
	"ticket_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth validates HMAC-signed bearer tokens on the trigger API.
// An empty secret disables auth, intended for local development only.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == "OPTIONS" {
			return c.Next()
		}

		if secret == "" {
			return c.Next()
		}

		var tokenString string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			logger.WithError(err).Warn("JWT validation failed")
			return apperr.InvalidToken(err.Error())
		}
		if !token.Valid {
			return apperr.InvalidToken("invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.InvalidToken("invalid claims")
		}

		if exp, ok := claims["exp"].(float64); ok {
			if time.Now().Unix() > int64(exp) {
				return apperr.InvalidToken("token expired")
			}
		}

		if sub, ok := claims["sub"].(string); ok {
			c.Locals("subject", sub)
		}
		c.Locals("claims", claims)

		return c.Next()
	}
}
