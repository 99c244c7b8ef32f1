// Package internal assembles the gateway: protocol factory, registry,
// dispatcher, bot bridge and the HTTP surface around them.
package internal

import (
	"context"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/bot"
	"github.com/gdbrns/go-whatsapp-session-gateway/internal/dispatch"
	"github.com/gdbrns/go-whatsapp-session-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/auth"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/realtime"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/tokenstore"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp/meow"
)

// Gateway holds every long-lived component.
type Gateway struct {
	Registry *session.Registry
	Manager  *session.Manager
	Tokens   tokenstore.Store
	Hub      *realtime.Hub
	Webhooks *dispatch.WebhookEngine
	Bridge   *bot.Bridge
}

// NewGateway builds the component graph from the environment.
func NewGateway(ctx context.Context) (*Gateway, error) {
	tokens, err := tokenstore.FromEnv(ctx)
	if err != nil {
		return nil, err
	}

	factory, err := meow.NewFactory(ctx)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(func(token string) (string, error) {
		claims, err := auth.ValidateRealtimeToken(token)
		if err != nil {
			return "", err
		}
		return claims.Session, nil
	})

	registry := session.NewRegistry()

	webhooks := dispatch.NewWebhookEngine(func(s string) string {
		entry := registry.Get(s)
		if entry == nil {
			return ""
		}
		return entry.WebhookURL()
	})
	if webhooks == nil {
		log.Print(nil).Info("Webhook delivery disabled, WEBHOOK_URL is not set")
	}

	dispatcher := dispatch.NewDispatcher(dispatch.FlagsFromEnv(), webhooks, hub)

	manager := session.NewManager(registry, factory.Create, dispatcher, tokens)

	bridge := bot.NewBridgeFromEnv()
	if bridge != nil {
		manager.SetMessageHook(bridge.HandleMessage)
		log.Print(nil).Info("Bot bridge enabled")
	}

	return &Gateway{
		Registry: registry,
		Manager:  manager,
		Tokens:   tokens,
		Hub:      hub,
		Webhooks: webhooks,
		Bridge:   bridge,
	}, nil
}

// RealtimeAddr is where the WebSocket listener binds.
func RealtimeAddr() string {
	address := env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	port := env.GetEnvStringOrDefault("REALTIME_PORT", "7002")
	return address + ":" + port
}
