package router_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/router"
)

func TestHttpErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: router.HttpErrorHandler})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})
	app.Get("/broken", func(c *fiber.Ctx) error {
		return errors.New("datastore unavailable")
	})

	t.Run("fiber errors keep their status code", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		var envelope router.Response
		require.NoError(t, json.Unmarshal(body, &envelope))
		require.False(t, envelope.Status)
		require.Equal(t, fiber.StatusNotFound, envelope.Code)
		require.Equal(t, "Not Found", envelope.Message)
		require.Equal(t, envelope.Message, envelope.Error)
	})

	t.Run("plain errors fall back to 500", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/broken", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

		body, _ := io.ReadAll(resp.Body)
		var envelope router.Response
		require.NoError(t, json.Unmarshal(body, &envelope))
		require.False(t, envelope.Status)
		require.Equal(t, "datastore unavailable", envelope.Message)
	})
}
