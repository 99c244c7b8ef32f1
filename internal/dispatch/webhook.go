package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
)

// WebhookEvent is the JSON body posted to the configured webhook URL.
type WebhookEvent struct {
	Session   string      `json:"session"`
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	url string
}

// URLResolver returns the per-session webhook target, or empty when the
// globally configured URL applies.
type URLResolver func(session string) string

// WebhookEngine posts session events to the configured URL, honoring
// per-session overrides, with a bounded worker pool, bounded retries and an
// HMAC-SHA256 signature.
type WebhookEngine struct {
	targetURL     string
	resolver      URLResolver
	secret        string
	httpClient    *http.Client
	queue         chan *WebhookEvent
	limiter       *rate.Limiter
	workers       int
	retryLimit    int
	allowInsecure bool
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWebhookEngine builds the engine from the environment. Returns nil when
// WEBHOOK_URL is unset; a nil engine is a valid no-op sink.
//
//	WEBHOOK_URL:            delivery target (required to enable the engine)
//	WEBHOOK_SECRET:         HMAC signing key
//	WEBHOOK_WORKERS:        worker pool size (default 4)
//	WEBHOOK_RETRY_LIMIT:    attempts per event (default 3)
//	WEBHOOK_RATE_LIMIT:     deliveries per second (default 20)
//	WEBHOOK_ALLOW_INSECURE: permit http and private targets (default false)
func NewWebhookEngine(resolver URLResolver) *WebhookEngine {
	targetURL, err := env.GetEnvString("WEBHOOK_URL")
	if err != nil || strings.TrimSpace(targetURL) == "" {
		return nil
	}

	workers := env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 4)
	if workers <= 0 {
		workers = 4
	}
	retryLimit := env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3)
	if retryLimit <= 0 {
		retryLimit = 3
	}
	perSecond := env.GetEnvIntOrDefault("WEBHOOK_RATE_LIMIT", 20)
	if perSecond <= 0 {
		perSecond = 20
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &WebhookEngine{
		targetURL:     targetURL,
		resolver:      resolver,
		secret:        env.GetEnvStringOrDefault("WEBHOOK_SECRET", ""),
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		queue:         make(chan *WebhookEvent, 1000),
		limiter:       rate.NewLimiter(rate.Limit(perSecond), perSecond),
		workers:       workers,
		retryLimit:    retryLimit,
		allowInsecure: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_INSECURE", false),
		ctx:           ctx,
		cancel:        cancel,
	}

	if err := engine.validateURL(targetURL); err != nil {
		log.Print(nil).WithError(err).Error("Refusing webhook target " + targetURL)
		cancel()
		return nil
	}

	for i := 0; i < workers; i++ {
		engine.wg.Add(1)
		go engine.worker()
	}

	return engine
}

func (e *WebhookEngine) Shutdown() {
	if e == nil {
		return
	}
	e.cancel()
	close(e.queue)
	e.wg.Wait()
}

// Emit queues one event for delivery. A full queue drops the event.
func (e *WebhookEngine) Emit(session string, event string, data interface{}) {
	if e == nil {
		return
	}

	task := &WebhookEvent{
		Session:   session,
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
		url:       e.resolveURL(session),
	}

	select {
	case e.queue <- task:
	default:
		log.Session(session).Warn("Webhook queue full, dropping event " + event)
	}
}

func (e *WebhookEngine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task, ok := <-e.queue:
			if !ok {
				return
			}
			e.deliver(task)
		}
	}
}

func (e *WebhookEngine) deliver(task *WebhookEvent) {
	payload, err := json.Marshal(task)
	if err != nil {
		log.Session(task.Session).WithError(err).Error("Failed to marshal webhook event")
		return
	}

	signature := e.generateSignature(payload)

	var lastErr error
	for attempt := 1; attempt <= e.retryLimit; attempt++ {
		if err := e.limiter.Wait(e.ctx); err != nil {
			return
		}

		req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, task.url, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			continue
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Webhook-Signature", signature)
		req.Header.Set("X-Hub-Signature-256", signature)
		req.Header.Set("X-Webhook-Event", task.Event)
		req.Header.Set("User-Agent", "WhatsApp-Session-Gateway/1.0")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			lastErr = err
			e.backoff(attempt)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return
		}

		lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
		e.backoff(attempt)
	}

	log.Session(task.Session).WithError(lastErr).
		Warn(fmt.Sprintf("Webhook delivery failed after %d attempts for event %s", e.retryLimit, task.Event))
}

func (e *WebhookEngine) backoff(attempt int) {
	if attempt >= e.retryLimit {
		return
	}
	select {
	case <-e.ctx.Done():
	case <-time.After(time.Duration(attempt*2) * time.Second):
	}
}

// resolveURL picks the per-session override when one is set and passes the
// same validation as the global target; otherwise the global URL applies.
func (e *WebhookEngine) resolveURL(session string) string {
	if e.resolver == nil {
		return e.targetURL
	}

	override := strings.TrimSpace(e.resolver(session))
	if override == "" {
		return e.targetURL
	}
	if err := e.validateURL(override); err != nil {
		log.Session(session).WithError(err).Warn("Ignoring per-session webhook URL " + override)
		return e.targetURL
	}
	return override
}

func (e *WebhookEngine) generateSignature(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(e.secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (e *WebhookEngine) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if e.allowInsecure {
		return nil
	}

	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "0.0.0.0" || strings.HasPrefix(host, "192.168.") || strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.") {
		return fmt.Errorf("private/local network URLs are not allowed")
	}

	return nil
}
