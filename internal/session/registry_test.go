package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/session"
)

func TestRegistry(t *testing.T) {
	r := session.NewRegistry()

	t.Run("get or create returns the same entry", func(t *testing.T) {
		a := r.GetOrCreate("alpha")
		b := r.GetOrCreate("alpha")
		require.Same(t, a, b)
		require.Equal(t, 1, r.Len())
	})

	t.Run("get on unknown session is nil", func(t *testing.T) {
		require.Nil(t, r.Get("missing"))
	})

	t.Run("remove drops the entry", func(t *testing.T) {
		r.GetOrCreate("beta")
		r.Remove("beta")
		require.Nil(t, r.Get("beta"))
	})

	t.Run("range visits every entry", func(t *testing.T) {
		r.GetOrCreate("gamma")
		seen := map[string]bool{}
		r.Range(func(entry *session.Entry) {
			seen[entry.Session] = true
		})
		require.True(t, seen["alpha"])
		require.True(t, seen["gamma"])
	})

	t.Run("sessions lists ids", func(t *testing.T) {
		require.ElementsMatch(t, []string{"alpha", "gamma"}, r.Sessions())
	})
}

func TestEntryTransitions(t *testing.T) {
	r := session.NewRegistry()

	t.Run("new entry is uninitialized", func(t *testing.T) {
		entry := r.GetOrCreate("fresh")
		require.Equal(t, session.StatusUninitialized, entry.Status())
	})

	t.Run("try initialize wins once while active", func(t *testing.T) {
		entry := r.GetOrCreate("open")
		require.True(t, entry.TryInitialize())
		require.Equal(t, session.StatusInitializing, entry.Status())
		require.False(t, entry.TryInitialize())
	})

	t.Run("closed entry can be reopened", func(t *testing.T) {
		entry := r.GetOrCreate("reopen")
		require.True(t, entry.TryInitialize())
		require.True(t, entry.CloseOnce())
		require.Equal(t, session.StatusClosed, entry.Status())
		require.True(t, entry.TryInitialize())
	})

	t.Run("close once returns true exactly once", func(t *testing.T) {
		entry := r.GetOrCreate("close")
		require.True(t, entry.TryInitialize())
		require.True(t, entry.CloseOnce())
		require.False(t, entry.CloseOnce())
	})

	t.Run("webhook url override survives reopen", func(t *testing.T) {
		entry := r.GetOrCreate("hooked")
		entry.SetWebhookURL("https://hooks.example.com/wa")
		require.True(t, entry.TryInitialize())
		require.True(t, entry.CloseOnce())
		require.True(t, entry.TryInitialize())
		require.Equal(t, "https://hooks.example.com/wa", entry.WebhookURL())
	})

	t.Run("setting qr moves to qrcode status and connect clears it", func(t *testing.T) {
		entry := r.GetOrCreate("qr")
		require.True(t, entry.TryInitialize())

		entry.SetQR(&wppQR)
		require.Equal(t, session.StatusQRCode, entry.Status())
		require.NotNil(t, entry.QR())

		entry.SetStatus(session.StatusConnected)
		require.Nil(t, entry.QR())
	})
}
