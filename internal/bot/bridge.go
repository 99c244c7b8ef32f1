package bot

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/validation"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

var errConverseFailed = errors.New("bot converse returned a non-success status")

// Bridge relays messages between one WhatsApp session and the bot. The
// auth token is shared across all in-flight turns; when it expires exactly
// one login runs and every waiting turn picks up the fresh token.
type Bridge struct {
	api           *apiClient
	countryPrefix string
	refreshDelay  time.Duration
	refreshLimit  int

	mu    sync.RWMutex
	token string

	refresh singleflight.Group
}

// NewBridgeFromEnv builds the bridge. Returns nil when BOT_URL is unset;
// a nil bridge disables bot relaying.
//
//	BOT_URL:            bot server base URL (required to enable)
//	BOT_ID:             bot identifier for the converse route
//	BOT_EMAIL:          login credential
//	BOT_PASSWORD:       login credential
//	BOT_COUNTRY_PREFIX: dial prefix stripped from user ids (default "967")
//	BOT_REFRESH_DELAY:  pause before re-login (default 2s)
//	BOT_REFRESH_LIMIT:  login attempts per refresh (default 3)
func NewBridgeFromEnv() *Bridge {
	baseURL, err := env.GetEnvString("BOT_URL")
	if err != nil || strings.TrimSpace(baseURL) == "" {
		return nil
	}

	botID := env.GetEnvStringOrDefault("BOT_ID", "default")
	email := env.GetEnvStringOrDefault("BOT_EMAIL", "")
	password := env.GetEnvStringOrDefault("BOT_PASSWORD", "")

	refreshLimit := env.GetEnvIntOrDefault("BOT_REFRESH_LIMIT", 3)
	if refreshLimit <= 0 {
		refreshLimit = 3
	}

	return &Bridge{
		api:           newAPIClient(baseURL, botID, email, password),
		countryPrefix: env.GetEnvStringOrDefault("BOT_COUNTRY_PREFIX", "967"),
		refreshDelay:  env.GetEnvDurationOrDefault("BOT_REFRESH_DELAY", 2*time.Second),
		refreshLimit:  refreshLimit,
	}
}

// DeriveUserID maps a chat JID to the bot's user id: the part before '@'
// with the country dial prefix stripped.
func (b *Bridge) DeriveUserID(from string) string {
	id := from
	if at := strings.IndexByte(id, '@'); at >= 0 {
		id = id[:at]
	}
	return strings.TrimPrefix(id, b.countryPrefix)
}

// HandleMessage runs one conversation turn: forward the message, refresh
// the token once when the bot rejects the call, and relay every bot
// response back to the sender. Response entries fail independently.
func (b *Bridge) HandleMessage(ctx context.Context, client wpp.Client, msg wpp.Message) {
	if b == nil {
		return
	}
	if msg.IsGroup || strings.TrimSpace(msg.Body) == "" {
		return
	}

	userID := b.DeriveUserID(msg.From)
	logger := log.Session(msg.Session).WithField("user", userID)

	responses, err := b.converseWithRefresh(ctx, userID, msg.Body)
	if err != nil {
		logger.WithError(err).Error("Bot turn failed, message dropped")
		return
	}

	for _, response := range responses {
		if err := b.relay(ctx, client, msg.From, response); err != nil {
			logger.WithError(err).Error("Failed to relay bot response of type " + response.Type)
		}
	}
}

func (b *Bridge) converseWithRefresh(ctx context.Context, userID string, text string) ([]ConverseResponse, error) {
	token := b.currentToken()
	if token == "" {
		fresh, err := b.refreshToken(ctx, token)
		if err != nil {
			return nil, err
		}
		token = fresh
	}

	responses, err := b.api.converse(ctx, token, userID, text)
	if err == nil {
		return responses, nil
	}
	// Any non-success reply is treated as a stale token: refresh once and
	// retry the turn. Transport errors are not retried.
	if !errors.Is(err, errConverseFailed) {
		return nil, err
	}

	fresh, err := b.refreshToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return b.api.converse(ctx, fresh, userID, text)
}

func (b *Bridge) currentToken() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.token
}

// refreshToken logs in again. Concurrent callers share one login via
// singleflight; a caller holding a token that was already replaced gets
// the newer token without logging in at all.
func (b *Bridge) refreshToken(ctx context.Context, staleToken string) (string, error) {
	fresh, err, _ := b.refresh.Do("login", func() (interface{}, error) {
		current := b.currentToken()
		if current != "" && current != staleToken {
			return current, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.refreshDelay):
		}

		var lastErr error
		for attempt := 1; attempt <= b.refreshLimit; attempt++ {
			token, err := b.api.login(ctx)
			if err == nil {
				b.mu.Lock()
				b.token = token
				b.mu.Unlock()
				log.Print(nil).Info("Bot auth token refreshed")
				return token, nil
			}
			lastErr = err
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		return "", lastErr
	})
	if err != nil {
		return "", err
	}
	return fresh.(string), nil
}

func (b *Bridge) relay(ctx context.Context, client wpp.Client, to string, response ConverseResponse) error {
	switch response.Type {
	case "text":
		_, err := client.SendText(ctx, to, response.Text)
		return err

	case "single-choice":
		rows := make([]wpp.ListRow, 0, len(response.Choices))
		for i, choice := range response.Choices {
			rows = append(rows, wpp.ListRow{
				ID:          strconv.Itoa(i + 1),
				Title:       choice.Title,
				Description: choice.Value,
			})
		}
		buttonText := response.Dropdown
		if buttonText == "" {
			buttonText = "Click here to show the list"
		}
		_, err := client.SendListMessage(ctx, to, wpp.ListMessageOptions{
			ButtonText:  buttonText,
			Description: response.Text,
			Sections: []wpp.ListSection{{
				Title: "Available operations",
				Rows:  rows,
			}},
		})
		return err

	case "file":
		if err := validation.ValidateURL(response.URL); err != nil {
			return err
		}
		data, mimeType, err := b.api.fetchFile(ctx, response.URL)
		if err != nil {
			return err
		}
		filename := path.Base(response.URL)
		if idx := strings.IndexByte(filename, '?'); idx >= 0 {
			filename = filename[:idx]
		}
		_, err = client.SendFile(ctx, to, filename, mimeType, data, response.Title)
		return err

	default:
		// Typing indicators and other decorations are not relayed.
		return nil
	}
}
