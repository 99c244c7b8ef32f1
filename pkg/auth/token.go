package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/validation"
)

const bcryptCost = 10

// GenerateSessionToken hashes session+secret with bcrypt and rewrites the
// hash into a filesystem/URL-safe form ('/' -> '_', '+' -> '-').
func GenerateSessionToken(session string, secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(session+secret), bcryptCost)
	if err != nil {
		return "", err
	}

	token := strings.ReplaceAll(string(hash), "/", "_")
	token = strings.ReplaceAll(token, "+", "-")
	return token, nil
}

// VerifySessionToken checks a URL-safe token previously issued by
// GenerateSessionToken against session+secret.
func VerifySessionToken(session string, secret string, token string) bool {
	hash := strings.ReplaceAll(token, "_", "/")
	hash = strings.ReplaceAll(hash, "-", "+")
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(session+secret)) == nil
}

// SessionTokenAuth guards per-session routes. The bearer token is either the
// bare token or the "session:token" full form returned by generate-token.
func SessionTokenAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		session := c.Params("session")
		if err := validation.ValidateSessionID(session); err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return router.ResponseUnauthorized(c, "Missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return router.ResponseUnauthorized(c, "Invalid Authorization header format. Use: Bearer <token>")
		}

		token := parts[1]
		if full := strings.SplitN(token, ":", 2); len(full) == 2 {
			if full[0] != session {
				return router.ResponseUnauthorized(c, "Token does not match session")
			}
			token = full[1]
		}

		if SecretKey == "" {
			return router.ResponseInternalError(c, "Secret key not configured")
		}

		if !VerifySessionToken(session, SecretKey, token) {
			return router.ResponseUnauthorized(c, "Invalid or expired token")
		}

		c.Locals("session_id", session)
		return c.Next()
	}
}
