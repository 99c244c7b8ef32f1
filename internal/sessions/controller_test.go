package sessions_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/dispatch"
	"github.com/gdbrns/go-whatsapp-session-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-session-gateway/internal/sessions"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

type stubClient struct {
	mu     sync.Mutex
	closed int
}

func (s *stubClient) IsConnected() bool                                  { return true }
func (s *stubClient) OnMessage(func(wpp.Message))                        {}
func (s *stubClient) OnAnyMessage(func(wpp.Message))                     {}
func (s *stubClient) OnAck(func(wpp.Ack))                                {}
func (s *stubClient) OnPresenceChanged(func(wpp.Presence))               {}
func (s *stubClient) OnReactionMessage(func(wpp.Reaction))               {}
func (s *stubClient) OnRevokedMessage(func(wpp.Revoke))                  {}
func (s *stubClient) OnPollResponse(func(wpp.PollResponse))              {}
func (s *stubClient) OnUpdateLabel(func(wpp.LabelUpdate))                {}
func (s *stubClient) OnIncomingCall(func(wpp.Call))                      {}
func (s *stubClient) OnParticipantsChanged(func(wpp.ParticipantsChange)) {}
func (s *stubClient) OnStateChange(func(wpp.SocketState))                {}
func (s *stubClient) OnLiveLocation(string, func(wpp.LiveLocation))      {}
func (s *stubClient) SendText(context.Context, string, string) (string, error) {
	return "MSGID", nil
}
func (s *stubClient) SendListMessage(context.Context, string, wpp.ListMessageOptions) (string, error) {
	return "MSGID", nil
}
func (s *stubClient) SendFile(context.Context, string, string, string, []byte, string) (string, error) {
	return "MSGID", nil
}
func (s *stubClient) UseHere(context.Context) error { return nil }
func (s *stubClient) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

type nullSink struct{}

func (nullSink) Emit(string, string, interface{}) {}

func newApp(create wpp.CreateFunc) *fiber.App {
	dispatcher := dispatch.NewDispatcher(dispatch.AllFlags(), nil, nullSink{})
	manager := session.NewManager(session.NewRegistry(), create, dispatcher, nil)
	ctl := &sessions.Controller{Manager: manager}

	app := fiber.New()
	app.Post("/api/:session/start-session", ctl.StartSession)
	app.Post("/api/:session/close-session", ctl.CloseSession)
	app.Get("/api/:session/status-session", ctl.StatusSession)
	app.Get("/api/:session/qrcode-session", ctl.QRCodeSession)
	return app
}

func decodeData(t *testing.T, resp io.Reader) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	body, err := io.ReadAll(resp)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &envelope))
	return envelope.Data
}

func TestControllerLifecycle(t *testing.T) {
	qr := wpp.QRCode{Image: "data:image/png;base64,Zm9v", URLCode: "ref-1", Attempt: 1, Timeout: 20 * time.Second}

	create := func(_ context.Context, opts wpp.CreateOptions) (wpp.Client, error) {
		opts.CatchQR(qr)
		return &stubClient{}, nil
	}
	app := newApp(create)

	t.Run("unknown session status is UNINITIALIZED", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/demo/status-session", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		require.Equal(t, "UNINITIALIZED", decodeData(t, resp.Body)["status"])
	})

	t.Run("qrcode before open is not found", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/demo/qrcode-session", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("start returns the QR", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("POST", "/api/demo/start-session", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		data := decodeData(t, resp.Body)
		require.Equal(t, "QRCODE", data["status"])
		require.Equal(t, qr.Image, data["qrcode"])
		require.Equal(t, qr.URLCode, data["urlcode"])
	})

	t.Run("qrcode endpoint serves json and html", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/demo/qrcode-session", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		data := decodeData(t, resp.Body)
		require.Equal(t, qr.Image, data["qrcode"])

		resp, err = app.Test(httptest.NewRequest("GET", "/api/demo/qrcode-session?output=html", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		html, _ := io.ReadAll(resp.Body)
		require.Contains(t, string(html), qr.Image)
	})

	t.Run("rejects an invalid webhook override", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/demo/start-session", strings.NewReader(`{"webhook":"not a url"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("close then status reports CLOSED", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("POST", "/api/demo/close-session", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		resp, err = app.Test(httptest.NewRequest("GET", "/api/demo/status-session", nil))
		require.NoError(t, err)
		require.Equal(t, "CLOSED", decodeData(t, resp.Body)["status"])
	})

	t.Run("closing an unknown session is not found", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("POST", "/api/ghost/close-session", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}
