// Package meow implements the wpp protocol boundary on top of whatsmeow.
package meow

import (
	"context"
	"encoding/base64"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	qrCode "github.com/skip2/go-qrcode"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/tokenstore"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

const qrChannelWaitTimeout = 2 * time.Minute

// Factory owns the whatsmeow datastore and opens protocol connections.
type Factory struct {
	container *sqlstore.Container
}

// NewFactory initializes the whatsmeow datastore from the environment.
//
//	WHATSAPP_DATASTORE_TYPE: sql driver (default "pgx")
//	WHATSAPP_DATASTORE_URI:  datastore DSN (required)
func NewFactory(ctx context.Context) (*Factory, error) {
	driver := env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", "pgx")
	dsn, err := env.GetEnvString("WHATSAPP_DATASTORE_URI")
	if err != nil {
		return nil, err
	}

	driver = normalizeDatastoreDriver(driver)
	dsn = normalizeDatastoreDSN(driver, dsn)

	log.Print(nil).Info("Initializing WhatsApp datastore with driver=" + driver)

	container, err := sqlstore.New(ctx, driver, dsn, nil)
	if err != nil {
		return nil, err
	}

	if err := container.Upgrade(ctx); err != nil {
		return nil, err
	}

	return &Factory{container: container}, nil
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	default:
		return strings.ToLower(driver)
	}
}

func normalizeDatastoreDSN(driver string, dsn string) string {
	if driver != "pgx" {
		return dsn
	}
	appendParam := func(current string, key string, value string) string {
		if strings.Contains(current, key+"=") {
			return current
		}
		separator := "?"
		if strings.Contains(current, "?") {
			if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
				separator = ""
			} else {
				separator = "&"
			}
		}
		return current + separator + key + "=" + value
	}
	dsn = appendParam(dsn, "prefer_simple_protocol", "true")
	dsn = appendParam(dsn, "statement_cache_capacity", "0")
	dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}

// Create opens a connection for one session. Pairing state is reported
// through opts.CatchQR and opts.StatusFind; Create itself does not block
// until the handshake completes.
func (f *Factory) Create(ctx context.Context, opts wpp.CreateOptions) (wpp.Client, error) {
	device, err := f.resolveDevice(ctx, opts)
	if err != nil {
		return nil, err
	}

	store.DeviceProps.Os = proto.String(deviceOS(opts.DeviceName))
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	wa := whatsmeow.NewClient(device, nil)
	wa.EnableAutoReconnect = true
	wa.AutoTrustIdentity = true

	c := &client{
		session:       opts.Session,
		wa:            wa,
		tokens:        opts.TokenStore,
		opts:          opts,
		liveLocations: make(map[string][]func(wpp.LiveLocation)),
	}
	wa.AddEventHandler(c.handleEvent)

	if device.ID == nil {
		qrCtx, qrCancel := context.WithTimeout(context.Background(), qrChannelWaitTimeout)
		qrChan, err := wa.GetQRChannel(qrCtx)
		if err != nil {
			qrCancel()
			return nil, err
		}
		if err := wa.Connect(); err != nil {
			qrCancel()
			return nil, err
		}
		go c.consumeQR(qrCancel, qrChan)
		return c, nil
	}

	if err := wa.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (f *Factory) resolveDevice(ctx context.Context, opts wpp.CreateOptions) (*store.Device, error) {
	if opts.TokenStore != nil {
		tok, err := opts.TokenStore.GetToken(ctx, opts.Session)
		if err != nil {
			return nil, err
		}
		if tok != nil && tok.JID != "" {
			jid, err := types.ParseJID(tok.JID)
			if err == nil {
				device, err := f.container.GetDevice(ctx, jid)
				if err == nil && device != nil {
					return device, nil
				}
				// Stale mapping; fall through to a fresh device.
				log.Session(opts.Session).Warn("Stored JID has no device in datastore, pairing again")
			}
		}
	}
	return f.container.NewDevice(), nil
}

func deviceOS(deviceName string) string {
	if strings.TrimSpace(deviceName) != "" {
		return deviceName
	}
	return runtime.GOOS
}

// client adapts one whatsmeow connection to the wpp.Client contract.
type client struct {
	session string
	wa      *whatsmeow.Client
	tokens  tokenstore.Store
	opts    wpp.CreateOptions

	mu                  sync.RWMutex
	messageHandlers     []func(wpp.Message)
	anyMessageHandlers  []func(wpp.Message)
	ackHandlers         []func(wpp.Ack)
	presenceHandlers    []func(wpp.Presence)
	reactionHandlers    []func(wpp.Reaction)
	revokeHandlers      []func(wpp.Revoke)
	pollHandlers        []func(wpp.PollResponse)
	labelHandlers       []func(wpp.LabelUpdate)
	callHandlers        []func(wpp.Call)
	participantHandlers []func(wpp.ParticipantsChange)
	stateHandlers       []func(wpp.SocketState)
	liveLocations       map[string][]func(wpp.LiveLocation)

	persistOnce sync.Once
}

func (c *client) consumeQR(cancel context.CancelFunc, qrChan <-chan whatsmeow.QRChannelItem) {
	defer cancel()

	attempt := 0
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			attempt++
			qrPNG, err := qrCode.Encode(evt.Code, qrCode.Medium, 256)
			if err != nil {
				log.Session(c.session).WithError(err).Error("Failed to encode QR code")
				continue
			}
			if c.opts.CatchQR != nil {
				c.opts.CatchQR(wpp.QRCode{
					Image:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG),
					URLCode: evt.Code,
					Attempt: attempt,
					Timeout: evt.Timeout,
				})
			}
		case whatsmeow.QRChannelSuccess.Event:
			return
		case whatsmeow.QRChannelTimeout.Event:
			c.statusFind(wpp.StateTimeout)
			return
		case "error":
			if evt.Error != nil {
				log.Session(c.session).WithError(evt.Error).Error("QR channel reported an error")
			}
			return
		}
	}
}

func (c *client) statusFind(state wpp.SocketState) {
	if c.opts.StatusFind != nil {
		c.opts.StatusFind(state)
	}
	c.mu.RLock()
	handlers := append([]func(wpp.SocketState){}, c.stateHandlers...)
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(state)
	}
}

func (c *client) persistJID() {
	if c.tokens == nil || c.wa.Store.ID == nil {
		return
	}
	c.persistOnce.Do(func() {
		err := c.tokens.SetToken(context.Background(), c.session, &tokenstore.TokenData{
			JID: c.wa.Store.ID.String(),
		})
		if err != nil {
			log.Session(c.session).WithError(err).Error("Failed to persist session token")
		}
	})
}

func (c *client) IsConnected() bool {
	return c.wa.IsConnected() && c.wa.IsLoggedIn()
}

func (c *client) UseHere(_ context.Context) error {
	c.wa.Disconnect()
	return c.wa.Connect()
}

func (c *client) Close() error {
	c.wa.Disconnect()
	return nil
}

var errNotConnected = errors.New("whatsapp client is not connected")
