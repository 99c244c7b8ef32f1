package tokenstore

import (
	"context"
	"time"
)

// TokenData is the persisted auth payload for one session. The lifecycle
// manager treats it as opaque; only the protocol adapter reads its fields.
type TokenData struct {
	JID       string            `json:"jid,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
}

// Store persists per-session auth tokens. GetToken returns (nil, nil) when
// no token exists for the session.
type Store interface {
	GetToken(ctx context.Context, session string) (*TokenData, error)
	SetToken(ctx context.Context, session string, data *TokenData) error
	RemoveToken(ctx context.Context, session string) error
	ListSessions(ctx context.Context) ([]string, error)
}
