package index

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/router"
)

// Controller serves the root and health endpoints.
type Controller struct {
	Registry *session.Registry
}

func (ctl *Controller) Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "WhatsApp Session Gateway is running")
}

func (ctl *Controller) Healthz(c *fiber.Ctx) error {
	connected := 0
	ctl.Registry.Range(func(entry *session.Entry) {
		if entry.Status() == session.StatusConnected {
			connected++
		}
	})

	return router.ResponseSuccessWithData(c, "Healthy", fiber.Map{
		"sessions":  ctl.Registry.Len(),
		"connected": connected,
	})
}
