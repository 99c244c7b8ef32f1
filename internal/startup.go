package internal

import (
	"context"
	mathrand "math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
)

func jitterSleep(max time.Duration) {
	if max <= 0 {
		return
	}
	ms := mathrand.Int64N(max.Milliseconds() + 1)
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func openWithRetry(ctx context.Context, manager *session.Manager, sessionID string, retries int, baseBackoff time.Duration, maxBackoff time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		_, lastErr = manager.OpenSession(ctx, sessionID)
		if lastErr == nil {
			return nil
		}

		// Exponential backoff with small jitter.
		backoff := baseBackoff * time.Duration(1<<(attempt-1))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(mathrand.Int64N(int64(500*time.Millisecond) + 1))
		time.Sleep(backoff + jitter)
	}
	return lastErr
}

// Startup restores every session known to the token store, bounded by a
// concurrency semaphore with jittered starts so a restart does not stampede
// the WhatsApp servers.
func Startup(ctx context.Context, gw *Gateway) {
	log.Print(nil).Info("Running Startup Tasks")

	sessions, err := gw.Tokens.ListSessions(ctx)
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to list sessions from token store")
		return
	}
	if len(sessions) == 0 {
		log.Print(nil).Info("No sessions to restore")
		return
	}

	maxConcurrent := env.GetEnvIntOrDefault("STARTUP_RESTORE_CONCURRENCY", 10)
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	jitterMax := env.GetEnvDurationOrDefault("STARTUP_RESTORE_JITTER_MAX", 5*time.Second)
	retries := env.GetEnvIntOrDefault("STARTUP_RESTORE_RETRIES", 3)
	if retries < 1 {
		retries = 1
	}
	baseBackoff := env.GetEnvDurationOrDefault("STARTUP_RESTORE_BACKOFF_BASE", 2*time.Second)
	maxBackoff := env.GetEnvDurationOrDefault("STARTUP_RESTORE_BACKOFF_MAX", 30*time.Second)

	var restored, failed int64
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for _, sessionID := range sessions {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			jitterSleep(jitterMax)
			log.Session(id).Info("Restoring session")

			if err := openWithRetry(ctx, gw.Manager, id, retries, baseBackoff, maxBackoff); err != nil {
				log.Session(id).WithError(err).Warn("Failed to restore session")
				atomic.AddInt64(&failed, 1)
				return
			}
			atomic.AddInt64(&restored, 1)
		}(sessionID)
	}

	wg.Wait()
	log.Print(nil).
		WithField("restored", restored).
		WithField("failed", failed).
		WithField("concurrency", maxConcurrent).
		Info("Startup restore pass complete")
}
