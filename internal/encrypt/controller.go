// Package encrypt issues per-session bearer tokens. The response shapes
// are fixed; existing consumers match on them.
package encrypt

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/validation"
)

type responseToken struct {
	Status  string `json:"status"`
	Session string `json:"session"`
	Token   string `json:"token"`
	Full    string `json:"full"`
}

type responseDenied struct {
	Response bool   `json:"response"`
	Message  string `json:"message"`
}

// GenerateToken mints a bcrypt token for the session. The shared secret is
// read from the secretkey path segment, the Authorization bearer header or
// the secretkey query parameter, in that order.
func GenerateToken(c *fiber.Ctx) error {
	session := c.Params("session")
	secretkey := resolveSecret(c)

	if err := validation.ValidateSessionID(session); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(responseDenied{
			Response: false,
			Message:  err.Error(),
		})
	}

	if auth.SecretKey == "" || secretkey != auth.SecretKey {
		log.Print(c).Warn("Token generation denied for session " + session)
		return c.Status(fiber.StatusBadRequest).JSON(responseDenied{
			Response: false,
			Message:  "The SECRET_KEY is incorrect",
		})
	}

	token, err := auth.GenerateSessionToken(session, auth.SecretKey)
	if err != nil {
		log.Print(c).WithError(err).Error("Failed to generate session token")
		return c.Status(fiber.StatusInternalServerError).JSON(responseDenied{
			Response: false,
			Message:  err.Error(),
		})
	}

	log.Print(c).Info("Token generated for session " + session)
	return respondToken(c, session, token)
}

func resolveSecret(c *fiber.Ctx) string {
	if secret := c.Params("secretkey"); secret != "" {
		return secret
	}

	header := c.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}

	return c.Query("secretkey")
}

func respondToken(c *fiber.Ctx, session string, token string) error {
	return c.Status(fiber.StatusCreated).JSON(responseToken{
		Status:  "success",
		Session: session,
		Token:   token,
		Full:    session + ":" + token,
	})
}
