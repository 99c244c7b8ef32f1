package encrypt_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/encrypt"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/auth"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Post("/api/:session/:secretkey/generate-token", encrypt.GenerateToken)
	app.Post("/api/:session/generate-token", encrypt.GenerateToken)
	return app
}

func TestGenerateToken(t *testing.T) {
	auth.SecretKey = "THISISMYSECURETOKEN"

	t.Run("wrong secret is rejected", func(t *testing.T) {
		app := newApp()
		req := httptest.NewRequest("POST", "/api/mysession/wrongsecret/generate-token", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		var denied struct {
			Response bool   `json:"response"`
			Message  string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(body, &denied))
		require.False(t, denied.Response)
		require.Equal(t, "The SECRET_KEY is incorrect", denied.Message)
	})

	t.Run("invalid session id is rejected", func(t *testing.T) {
		app := newApp()
		req := httptest.NewRequest("POST", "/api/bad%2Fsession/THISISMYSECURETOKEN/generate-token", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("secret in the authorization header", func(t *testing.T) {
		app := newApp()
		req := httptest.NewRequest("POST", "/api/mysession/generate-token", nil)
		req.Header.Set("Authorization", "Bearer THISISMYSECURETOKEN")
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		req = httptest.NewRequest("POST", "/api/mysession/generate-token", nil)
		req.Header.Set("Authorization", "Bearer wrongsecret")
		resp, err = app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("secret in the query parameter", func(t *testing.T) {
		app := newApp()
		req := httptest.NewRequest("POST", "/api/mysession/generate-token?secretkey=THISISMYSECURETOKEN", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	})

	t.Run("missing secret is rejected", func(t *testing.T) {
		app := newApp()
		resp, err := app.Test(httptest.NewRequest("POST", "/api/mysession/generate-token", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("valid secret mints a url-safe token", func(t *testing.T) {
		app := newApp()
		req := httptest.NewRequest("POST", "/api/mysession/THISISMYSECURETOKEN/generate-token", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		var minted struct {
			Status  string `json:"status"`
			Session string `json:"session"`
			Token   string `json:"token"`
			Full    string `json:"full"`
		}
		require.NoError(t, json.Unmarshal(body, &minted))
		require.Equal(t, "success", minted.Status)
		require.Equal(t, "mysession", minted.Session)
		require.NotEmpty(t, minted.Token)
		require.NotContains(t, minted.Token, "/")
		require.NotContains(t, minted.Token, "+")
		require.Equal(t, "mysession:"+minted.Token, minted.Full)

		require.True(t, auth.VerifySessionToken("mysession", auth.SecretKey, minted.Token))
		require.False(t, auth.VerifySessionToken("other", auth.SecretKey, minted.Token))
		require.False(t, strings.ContainsAny(minted.Token, "/+"))
	})
}
