// Package sessions exposes the session lifecycle endpoints.
package sessions

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/router"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/validation"
)

// Controller binds the lifecycle endpoints to the session manager.
type Controller struct {
	Manager *session.Manager
}

type responseStatus struct {
	Session string `json:"session"`
	Status  string `json:"status"`
}

type responseQRCode struct {
	Session string `json:"session"`
	Status  string `json:"status"`
	QRCode  string `json:"qrcode,omitempty"`
	URLCode string `json:"urlcode,omitempty"`
	Attempt int    `json:"attempt,omitempty"`
	Timeout int    `json:"timeout,omitempty"`
}

type responseWSToken struct {
	Session string `json:"session"`
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// StartSession opens the session. Reopening an active session is a no-op
// that reports its current state.
func (ctl *Controller) StartSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	sessionID := c.Params("session")

	var body struct {
		Webhook string `json:"webhook"`
	}
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&body)
	}
	if webhook := strings.TrimSpace(body.Webhook); webhook != "" {
		if err := validation.ValidateURL(webhook); err != nil {
			return router.ResponseBadRequest(c, "Invalid webhook URL")
		}
		ctl.Manager.SetWebhookURL(sessionID, webhook)
	}

	result, err := ctl.Manager.OpenSession(ctx, sessionID)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	data := fiber.Map{
		"session": sessionID,
		"status":  string(result.Status),
	}
	if result.QR != nil {
		data["qrcode"] = result.QR.Image
		data["urlcode"] = result.QR.URLCode
	}

	return router.ResponseSuccessWithData(c, "Session opened", data)
}

// CloseSession tears the session down. Credentials survive for the next open.
func (ctl *Controller) CloseSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	sessionID := c.Params("session")

	err := ctl.Manager.CloseSession(ctx, sessionID)
	switch err {
	case nil:
		return router.ResponseSuccessWithData(c, "Session closed", responseStatus{
			Session: sessionID,
			Status:  string(session.StatusClosed),
		})
	case session.ErrSessionNotFound:
		return router.ResponseNotFound(c, "Session is not registered")
	case session.ErrSessionClosed:
		return router.ResponseSuccessWithData(c, "Session already closed", responseStatus{
			Session: sessionID,
			Status:  string(session.StatusClosed),
		})
	default:
		return router.ResponseInternalError(c, err.Error())
	}
}

// StatusSession reports the lifecycle state; unknown sessions report
// UNINITIALIZED instead of an error.
func (ctl *Controller) StatusSession(c *fiber.Ctx) error {
	sessionID := c.Params("session")

	return router.ResponseSuccessWithData(c, "Success get session status", responseStatus{
		Session: sessionID,
		Status:  string(ctl.Manager.GetStatus(sessionID)),
	})
}

// QRCodeSession returns the current pairing code, as JSON or as a scannable
// HTML page when output=html.
func (ctl *Controller) QRCodeSession(c *fiber.Ctx) error {
	sessionID := c.Params("session")

	status := ctl.Manager.GetStatus(sessionID)
	qr := ctl.Manager.GetQR(sessionID)
	if qr == nil {
		return router.ResponseNotFound(c, "No QR code available, session is "+string(status))
	}

	output := strings.TrimSpace(c.Query("output"))
	if output == "html" {
		htmlContent := `
		<html>
			<head>
				<title>WhatsApp Session Login</title>
				<meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no" />
			</head>
			<body>
				<img src="` + qr.Image + `" />
				<p>
					<b>QR Code Scan</b>
					<br/>
					Timeout in ` + strconv.Itoa(int(qr.Timeout.Seconds())) + ` Second(s)
				</p>
			</body>
		</html>
		`

		c.Set("Content-Type", "text/html")
		return c.SendString(htmlContent)
	}

	return router.ResponseSuccessWithData(c, "Success get session QR code", responseQRCode{
		Session: sessionID,
		Status:  string(status),
		QRCode:  qr.Image,
		URLCode: qr.URLCode,
		Attempt: qr.Attempt,
		Timeout: int(qr.Timeout.Seconds()),
	})
}

// WSToken issues a short-lived JWT scoped to the session for the realtime
// WebSocket endpoint.
func (ctl *Controller) WSToken(c *fiber.Ctx) error {
	sessionID := c.Params("session")

	ttl := env.GetEnvDurationOrDefault("REALTIME_TOKEN_TTL", 15*time.Minute)
	token, err := auth.GenerateRealtimeToken(sessionID, ttl)
	if err != nil {
		return router.ResponseInternalError(c, err.Error())
	}

	return router.ResponseSuccessWithData(c, "Success generate realtime token", responseWSToken{
		Session: sessionID,
		Token:   token,
		Expires: time.Now().Add(ttl).Unix(),
	})
}
