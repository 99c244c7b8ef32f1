package session

import (
	"sync"
	"time"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

// Entry is the registry's record of one session. All state transitions go
// through its methods; callers never hold the lock across protocol calls.
type Entry struct {
	Session string

	mu         sync.RWMutex
	status     Status
	client     wpp.Client
	qr         *wpp.QRCode
	closed     bool
	startedAt  time.Time
	webhookURL string
}

func newEntry(session string) *Entry {
	return &Entry{
		Session: session,
		status:  StatusUninitialized,
	}
}

func (e *Entry) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// TryInitialize transitions to INITIALIZING when the session is idle.
// Returns false when another open already owns the session.
func (e *Entry) TryInitialize() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Active() {
		return false
	}
	e.status = StatusInitializing
	e.closed = false
	e.client = nil
	e.qr = nil
	e.startedAt = time.Now()
	return true
}

func (e *Entry) SetStatus(status Status) {
	e.mu.Lock()
	e.status = status
	if status == StatusConnected || status == StatusClosed {
		e.qr = nil
	}
	e.mu.Unlock()
}

func (e *Entry) Client() wpp.Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.client
}

func (e *Entry) SetClient(client wpp.Client) {
	e.mu.Lock()
	e.client = client
	e.mu.Unlock()
}

func (e *Entry) QR() *wpp.QRCode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.qr
}

func (e *Entry) SetQR(qr *wpp.QRCode) {
	e.mu.Lock()
	e.qr = qr
	if qr != nil {
		e.status = StatusQRCode
	}
	e.mu.Unlock()
}

// WebhookURL is the per-session delivery target override. Empty means the
// globally configured URL applies. It survives reopen and close.
func (e *Entry) WebhookURL() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.webhookURL
}

func (e *Entry) SetWebhookURL(url string) {
	e.mu.Lock()
	e.webhookURL = url
	e.mu.Unlock()
}

func (e *Entry) StartedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startedAt
}

// CloseOnce marks the entry closed and returns true exactly once. The
// winner is responsible for tearing the connection down.
func (e *Entry) CloseOnce() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.closed = true
	e.status = StatusClosed
	return true
}

// Registry owns the session table. It is the only place sessions live;
// nothing else keeps client references past a call.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// GetOrCreate returns the entry for session, creating it when absent.
func (r *Registry) GetOrCreate(session string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[session]; ok {
		return entry
	}
	entry := newEntry(session)
	r.entries[session] = entry
	return entry
}

func (r *Registry) Get(session string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[session]
}

func (r *Registry) Remove(session string) {
	r.mu.Lock()
	delete(r.entries, session)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for every entry. fn runs outside the registry lock.
func (r *Registry) Range(fn func(entry *Entry)) {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	for _, entry := range entries {
		fn(entry)
	}
}

func (r *Registry) Sessions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]string, 0, len(r.entries))
	for session := range r.entries {
		sessions = append(sessions, session)
	}
	return sessions
}
