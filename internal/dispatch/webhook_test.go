package dispatch_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/dispatch"
)

func TestWebhookEngine(t *testing.T) {
	t.Run("disabled without target URL", func(t *testing.T) {
		t.Setenv("WEBHOOK_URL", "")
		require.Nil(t, dispatch.NewWebhookEngine(nil))
	})

	t.Run("rejects private targets unless insecure is allowed", func(t *testing.T) {
		t.Setenv("WEBHOOK_URL", "http://127.0.0.1:9/hook")
		t.Setenv("WEBHOOK_ALLOW_INSECURE", "false")
		require.Nil(t, dispatch.NewWebhookEngine(nil))
	})

	t.Run("delivers signed events", func(t *testing.T) {
		var mu sync.Mutex
		var gotBody []byte
		var gotSignature, gotEvent string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			gotBody = body
			gotSignature = r.Header.Get("X-Hub-Signature-256")
			gotEvent = r.Header.Get("X-Webhook-Event")
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		t.Setenv("WEBHOOK_URL", server.URL)
		t.Setenv("WEBHOOK_SECRET", "hunter2")
		t.Setenv("WEBHOOK_ALLOW_INSECURE", "true")

		engine := dispatch.NewWebhookEngine(nil)
		require.NotNil(t, engine)
		defer engine.Shutdown()

		engine.Emit("demo", dispatch.EventMessage, map[string]string{"body": "hi"})

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return gotBody != nil
		}, 5*time.Second, 20*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()

		var event dispatch.WebhookEvent
		require.NoError(t, json.Unmarshal(gotBody, &event))
		require.Equal(t, "demo", event.Session)
		require.Equal(t, dispatch.EventMessage, event.Event)
		require.Equal(t, dispatch.EventMessage, gotEvent)

		mac := hmac.New(sha256.New, []byte("hunter2"))
		mac.Write(gotBody)
		require.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
	})

	t.Run("honors per-session URL overrides", func(t *testing.T) {
		var mu sync.Mutex
		hits := map[string]int{}

		record := func(name string) http.HandlerFunc {
			return func(w http.ResponseWriter, r *http.Request) {
				mu.Lock()
				hits[name]++
				mu.Unlock()
				w.WriteHeader(http.StatusOK)
			}
		}

		global := httptest.NewServer(record("global"))
		defer global.Close()
		override := httptest.NewServer(record("override"))
		defer override.Close()

		t.Setenv("WEBHOOK_URL", global.URL)
		t.Setenv("WEBHOOK_ALLOW_INSECURE", "true")

		engine := dispatch.NewWebhookEngine(func(session string) string {
			if session == "special" {
				return override.URL
			}
			return ""
		})
		require.NotNil(t, engine)
		defer engine.Shutdown()

		engine.Emit("special", dispatch.EventMessage, nil)
		engine.Emit("plain", dispatch.EventMessage, nil)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return hits["override"] == 1 && hits["global"] == 1
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("retries failed deliveries", func(t *testing.T) {
		var mu sync.Mutex
		attempts := 0

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			attempts++
			first := attempts == 1
			mu.Unlock()
			if first {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		t.Setenv("WEBHOOK_URL", server.URL)
		t.Setenv("WEBHOOK_ALLOW_INSECURE", "true")

		engine := dispatch.NewWebhookEngine(nil)
		require.NotNil(t, engine)
		defer engine.Shutdown()

		engine.Emit("demo", dispatch.EventAck, nil)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return attempts == 2
		}, 10*time.Second, 50*time.Millisecond)
	})
}
