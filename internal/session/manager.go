// Package session owns the lifecycle of WhatsApp sessions: opening,
// pairing, event wiring, conflict teardown and closing.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/dispatch"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/tokenstore"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

var (
	ErrSessionNotFound = errors.New("session is not registered")
	ErrSessionClosed   = errors.New("session is closed")
)

// MessageHook consumes inbound messages after the dispatcher; the bot
// bridge plugs in here.
type MessageHook func(ctx context.Context, client wpp.Client, msg wpp.Message)

// OpenResult is what an open request reports back: the state reached and,
// while pairing, the current QR code.
type OpenResult struct {
	Status Status
	QR     *wpp.QRCode
}

// Manager drives session lifecycles against the protocol layer.
type Manager struct {
	registry    *Registry
	create      wpp.CreateFunc
	dispatcher  *dispatch.Dispatcher
	tokens      tokenstore.Store
	messageHook MessageHook
	deviceName  string
	openWait    time.Duration
}

func NewManager(registry *Registry, create wpp.CreateFunc, dispatcher *dispatch.Dispatcher, tokens tokenstore.Store) *Manager {
	return &Manager{
		registry:   registry,
		create:     create,
		dispatcher: dispatcher,
		tokens:     tokens,
		deviceName: env.GetEnvStringOrDefault("WHATSAPP_DEVICE_NAME", ""),
		openWait:   env.GetEnvDurationOrDefault("SESSION_OPEN_WAIT", 60*time.Second),
	}
}

// SetMessageHook wires the inbound message consumer. Must be called before
// the first open.
func (m *Manager) SetMessageHook(hook MessageHook) {
	m.messageHook = hook
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// SetWebhookURL records a per-session webhook target. The dispatcher's
// webhook sink resolves it on every delivery.
func (m *Manager) SetWebhookURL(session string, url string) {
	m.registry.GetOrCreate(session).SetWebhookURL(url)
}

// GetStatus reports the session state; unknown sessions are UNINITIALIZED.
func (m *Manager) GetStatus(session string) Status {
	entry := m.registry.Get(session)
	if entry == nil {
		return StatusUninitialized
	}
	return entry.Status()
}

// GetQR returns the current pairing code, or nil when the session is not
// waiting for a scan.
func (m *Manager) GetQR(session string) *wpp.QRCode {
	entry := m.registry.Get(session)
	if entry == nil {
		return nil
	}
	return entry.QR()
}

// OpenSession starts the session if it is idle. Reopening an active
// session is a no-op that reports the current state. The call returns as
// soon as the first QR code is issued or the session connects, whichever
// comes first.
func (m *Manager) OpenSession(ctx context.Context, session string) (OpenResult, error) {
	entry := m.registry.GetOrCreate(session)

	if !entry.TryInitialize() {
		return OpenResult{Status: entry.Status(), QR: entry.QR()}, nil
	}

	log.Session(session).Info("Opening session")

	result := make(chan OpenResult, 1)
	var once sync.Once
	resolve := func(r OpenResult) {
		once.Do(func() { result <- r })
	}

	opts := wpp.CreateOptions{
		Session:    session,
		DeviceName: m.deviceName,
		TokenStore: m.tokens,
		CatchQR: func(qr wpp.QRCode) {
			entry.SetQR(&qr)
			m.dispatcher.Emit(session, dispatch.EventQRCode, qr)
			resolve(OpenResult{Status: StatusQRCode, QR: &qr})
		},
		OnLoadingScreen: func(percent int, message string) {
			log.Session(session).Debug(fmt.Sprintf("Loading %d%%: %s", percent, message))
		},
		StatusFind: func(state wpp.SocketState) {
			m.handleState(entry, state, resolve)
		},
	}

	client, err := m.create(ctx, opts)
	if err != nil {
		entry.SetStatus(StatusUninitialized)
		m.registry.Remove(session)
		m.dispatcher.Emit(session, dispatch.EventSessionError, map[string]string{"error": err.Error()})
		log.Session(session).WithError(err).Error("Failed to open session")
		return OpenResult{Status: StatusUninitialized}, err
	}

	entry.SetClient(client)
	m.wireListeners(entry, client)

	select {
	case r := <-result:
		return r, nil
	case <-time.After(m.openWait):
		return OpenResult{Status: entry.Status(), QR: entry.QR()}, nil
	case <-ctx.Done():
		return OpenResult{Status: entry.Status(), QR: entry.QR()}, nil
	}
}

// CloseSession tears the connection down and keeps the entry in CLOSED
// state so status lookups stay meaningful. Pairing credentials survive;
// the next open reuses them.
func (m *Manager) CloseSession(_ context.Context, session string) error {
	entry := m.registry.Get(session)
	if entry == nil {
		return ErrSessionNotFound
	}

	if !entry.CloseOnce() {
		return ErrSessionClosed
	}

	if client := entry.Client(); client != nil {
		if err := client.Close(); err != nil {
			log.Session(session).WithError(err).Warn("Error while closing session")
		}
	}
	entry.SetClient(nil)
	entry.SetQR(nil)

	m.dispatcher.Emit(session, dispatch.EventStatusFind, map[string]string{"status": string(StatusClosed)})
	log.Session(session).Info("Session closed")
	return nil
}

// CloseAll closes every registered session; used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.registry.Range(func(entry *Entry) {
		_ = m.CloseSession(ctx, entry.Session)
	})
}

func (m *Manager) handleState(entry *Entry, state wpp.SocketState, resolve func(OpenResult)) {
	session := entry.Session
	m.dispatcher.Emit(session, dispatch.EventStatusFind, map[string]string{"status": string(state)})

	switch {
	case state == wpp.StateConnected:
		entry.SetStatus(StatusConnected)
		m.dispatcher.Emit(session, dispatch.EventSessionLogged, map[string]string{"session": session})
		log.Session(session).Info("Session connected")
		resolve(OpenResult{Status: StatusConnected})

	case state.IsConflict():
		// Another device took the stream or the account logged us out.
		log.Session(session).Warn("Session conflict, tearing down: " + string(state))
		m.dispatcher.Emit(session, dispatch.EventSessionError, map[string]string{"error": string(state)})
		m.teardown(entry, state == wpp.StateLoggedOut)
		resolve(OpenResult{Status: StatusClosed})

	case state == wpp.StateTimeout:
		log.Session(session).Warn("Pairing timed out, closing session")
		m.teardown(entry, false)
		resolve(OpenResult{Status: StatusClosed})
	}
}

// teardown closes the connection exactly once and drops the session from
// the registry. When the account logged us out the stored credentials are
// stale and get removed too.
func (m *Manager) teardown(entry *Entry, dropToken bool) {
	if !entry.CloseOnce() {
		return
	}

	if client := entry.Client(); client != nil {
		if err := client.Close(); err != nil {
			log.Session(entry.Session).WithError(err).Warn("Error while closing session")
		}
	}
	m.registry.Remove(entry.Session)

	if dropToken && m.tokens != nil {
		if err := m.tokens.RemoveToken(context.Background(), entry.Session); err != nil {
			log.Session(entry.Session).WithError(err).Warn("Failed to remove session token")
		}
	}
}

// wireListeners registers protocol listeners for every enabled event
// category. Each listener runs behind a recover guard so one faulty
// consumer cannot take the connection handler down.
func (m *Manager) wireListeners(entry *Entry, client wpp.Client) {
	session := entry.Session

	if m.dispatcher.Enabled(dispatch.EventMessage) || m.messageHook != nil {
		client.OnMessage(guard(session, dispatch.EventMessage, func(msg wpp.Message) {
			m.dispatcher.Emit(session, dispatch.EventMessage, msg)
			if m.messageHook != nil {
				go guard(session, "message-hook", func(msg wpp.Message) {
					m.messageHook(context.Background(), client, msg)
				})(msg)
			}
		}))
	}

	// Every message, own sends included, reaches the realtime feed. This
	// one is not flag-gated.
	client.OnAnyMessage(guard(session, dispatch.EventReceivedMessage, func(msg wpp.Message) {
		m.dispatcher.EmitRealtime(session, dispatch.EventReceivedMessage, msg)
	}))

	if m.dispatcher.Enabled(dispatch.EventSelfMessage) {
		client.OnAnyMessage(guard(session, dispatch.EventSelfMessage, func(msg wpp.Message) {
			if msg.FromMe {
				m.dispatcher.Emit(session, dispatch.EventSelfMessage, msg)
			}
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventAck) {
		client.OnAck(guard(session, dispatch.EventAck, func(ack wpp.Ack) {
			m.dispatcher.Emit(session, dispatch.EventAck, ack)
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventPresenceChanged) {
		client.OnPresenceChanged(guard(session, dispatch.EventPresenceChanged, func(presence wpp.Presence) {
			m.dispatcher.Emit(session, dispatch.EventPresenceChanged, presence)
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventReactionMessage) {
		client.OnReactionMessage(guard(session, dispatch.EventReactionMessage, func(reaction wpp.Reaction) {
			m.dispatcher.Emit(session, dispatch.EventReactionMessage, reaction)
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventRevokedMessage) {
		client.OnRevokedMessage(guard(session, dispatch.EventRevokedMessage, func(revoke wpp.Revoke) {
			m.dispatcher.Emit(session, dispatch.EventRevokedMessage, revoke)
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventPollResponse) {
		client.OnPollResponse(guard(session, dispatch.EventPollResponse, func(poll wpp.PollResponse) {
			m.dispatcher.Emit(session, dispatch.EventPollResponse, poll)
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventUpdateLabel) {
		client.OnUpdateLabel(guard(session, dispatch.EventUpdateLabel, func(label wpp.LabelUpdate) {
			m.dispatcher.Emit(session, dispatch.EventUpdateLabel, label)
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventIncomingCall) {
		client.OnIncomingCall(guard(session, dispatch.EventIncomingCall, func(call wpp.Call) {
			m.dispatcher.Emit(session, dispatch.EventIncomingCall, call)
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventLocation) {
		// Live location streams are per chat; subscribe lazily on the
		// first message seen from each chat.
		var locMu sync.Mutex
		tracked := make(map[string]bool)
		client.OnAnyMessage(guard(session, dispatch.EventLocation, func(msg wpp.Message) {
			locMu.Lock()
			seen := tracked[msg.From]
			tracked[msg.From] = true
			locMu.Unlock()
			if seen {
				return
			}
			client.OnLiveLocation(msg.From, guard(session, dispatch.EventLocation, func(loc wpp.LiveLocation) {
				m.dispatcher.Emit(session, dispatch.EventLocation, loc)
			}))
		}))
	}

	if m.dispatcher.Enabled(dispatch.EventParticipantsChanged) {
		client.OnParticipantsChanged(guard(session, dispatch.EventParticipantsChanged, func(change wpp.ParticipantsChange) {
			m.dispatcher.Emit(session, dispatch.EventParticipantsChanged, change)
		}))
	}
}

// guard wraps one listener with panic isolation.
func guard[T any](session string, event string, fn func(T)) func(T) {
	return func(v T) {
		defer func() {
			if r := recover(); r != nil {
				log.Session(session).Error(fmt.Sprintf("Listener for %s panicked: %v", event, r))
			}
		}()
		fn(v)
	}
}
