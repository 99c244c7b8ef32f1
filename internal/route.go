package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/router"

	ctlEncrypt "github.com/gdbrns/go-whatsapp-session-gateway/internal/encrypt"
	ctlIndex "github.com/gdbrns/go-whatsapp-session-gateway/internal/index"
	ctlSessions "github.com/gdbrns/go-whatsapp-session-gateway/internal/sessions"
)

// Routes wires every HTTP endpoint. Lifecycle routes sit behind the
// per-session bearer token; generate-token authenticates with the shared
// secret carried in the URL, the Authorization header or the query string.
func Routes(app *fiber.App, gw *Gateway) {
	index := &ctlIndex.Controller{Registry: gw.Registry}
	sessions := &ctlSessions.Controller{Manager: gw.Manager}

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", index.Index)
	} else {
		app.Get(router.BaseURL, index.Index)
		app.Get(router.BaseURL+"/", index.Index)
	}

	app.Get(router.BaseURL+"/healthz", index.Healthz)

	// Token generation (shared secret in the URL, the Authorization
	// header or the secretkey query parameter)
	// ---------------------------------------------
	app.Post(router.BaseURL+"/api/:session/:secretkey/generate-token", ctlEncrypt.GenerateToken)
	app.Post(router.BaseURL+"/api/:session/generate-token", ctlEncrypt.GenerateToken)

	// Session lifecycle (per-session bearer token)
	// ---------------------------------------------
	sessionAuth := auth.SessionTokenAuth()

	app.Post(router.BaseURL+"/api/:session/start-session", sessionAuth, sessions.StartSession)
	app.Post(router.BaseURL+"/api/:session/close-session", sessionAuth, sessions.CloseSession)
	app.Get(router.BaseURL+"/api/:session/status-session", sessionAuth, sessions.StatusSession)
	app.Get(router.BaseURL+"/api/:session/qrcode-session", sessionAuth, sessions.QRCodeSession)
	app.Get(router.BaseURL+"/api/:session/ws-token", sessionAuth, sessions.WSToken)
}
