// Package wpp defines the narrow boundary to the underlying WhatsApp
// protocol client. The session lifecycle manager only ever talks to these
// types; the production implementation lives in pkg/wpp/meow.
package wpp

import (
	"context"
	"time"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/tokenstore"
)

// SocketState is the connection state reported through StatusFind.
type SocketState string

const (
	StateConnected    SocketState = "CONNECTED"
	StateDisconnected SocketState = "DISCONNECTED"
	StateConflict     SocketState = "CONFLICT"
	StateLoggedOut    SocketState = "LOGGED_OUT"
	StateTimeout      SocketState = "TIMEOUT"
)

// IsConflict reports whether the state means another device took over the
// session and the local connection must be torn down.
func (s SocketState) IsConflict() bool {
	return s == StateConflict || s == StateLoggedOut
}

// QRCode is one issued pairing code. Image is a data-URI base64 PNG.
type QRCode struct {
	Image   string
	URLCode string
	Attempt int
	Timeout time.Duration
}

// CreateOptions configures one protocol connection.
type CreateOptions struct {
	Session    string
	DeviceName string

	// CatchQR is invoked zero or more times while unauthenticated.
	CatchQR func(qr QRCode)
	// OnLoadingScreen is informational only.
	OnLoadingScreen func(percent int, message string)
	// StatusFind receives every connection state change.
	StatusFind func(state SocketState)

	TokenStore tokenstore.Store
}

// CreateFunc opens a protocol connection. The returned client may still be
// pairing; StateConnected is signalled through StatusFind.
type CreateFunc func(ctx context.Context, opts CreateOptions) (Client, error)

// Message is an inbound chat message.
type Message struct {
	Session   string    `json:"session"`
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Type      string    `json:"type"`
	FromMe    bool      `json:"fromMe"`
	IsGroup   bool      `json:"isGroup"`
	Timestamp time.Time `json:"timestamp"`
}

// Ack is a delivery/read receipt for one message.
type Ack struct {
	MessageID string    `json:"id"`
	Chat      string    `json:"chat"`
	Sender    string    `json:"sender"`
	Ack       string    `json:"ack"`
	Timestamp time.Time `json:"timestamp"`
}

// Presence is a contact availability change.
type Presence struct {
	From        string    `json:"from"`
	Unavailable bool      `json:"unavailable"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Reaction is an emoji reaction to a message.
type Reaction struct {
	MessageID string    `json:"id"`
	From      string    `json:"from"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

// Revoke notifies that a message was deleted for everyone.
type Revoke struct {
	MessageID string    `json:"id"`
	Chat      string    `json:"chat"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

// PollResponse is a vote on a poll message.
type PollResponse struct {
	PollID    string    `json:"pollId"`
	Chat      string    `json:"chat"`
	Voter     string    `json:"voter"`
	Timestamp time.Time `json:"timestamp"`
}

// LabelUpdate is a chat label edit.
type LabelUpdate struct {
	LabelID   string    `json:"labelId"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Call is an incoming voice/video call offer.
type Call struct {
	CallID    string    `json:"callId"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

// ParticipantsChange is a group membership change.
type ParticipantsChange struct {
	Group        string   `json:"group"`
	Action       string   `json:"action"`
	Participants []string `json:"participants"`
}

// LiveLocation is a streamed location update.
type LiveLocation struct {
	Chat      string    `json:"chat"`
	Sender    string    `json:"sender"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// ListRow is one selectable entry of a list message.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// ListMessageOptions describes a selectable list send.
type ListMessageOptions struct {
	ButtonText  string
	Description string
	Sections    []ListSection
}

// Client is the live protocol connection for one session.
type Client interface {
	IsConnected() bool

	OnMessage(fn func(Message))
	OnAnyMessage(fn func(Message))
	OnAck(fn func(Ack))
	OnPresenceChanged(fn func(Presence))
	OnReactionMessage(fn func(Reaction))
	OnRevokedMessage(fn func(Revoke))
	OnPollResponse(fn func(PollResponse))
	OnUpdateLabel(fn func(LabelUpdate))
	OnIncomingCall(fn func(Call))
	OnParticipantsChanged(fn func(ParticipantsChange))
	OnStateChange(fn func(SocketState))
	OnLiveLocation(chat string, fn func(LiveLocation))

	SendText(ctx context.Context, to string, text string) (string, error)
	SendListMessage(ctx context.Context, to string, list ListMessageOptions) (string, error)
	SendFile(ctx context.Context, to string, filename string, mimeType string, data []byte, caption string) (string, error)

	// UseHere reclaims the session after another device took the stream.
	UseHere(ctx context.Context) error
	Close() error
}
