package internal

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gdbrns/go-whatsapp-session-gateway/internal/dispatch"
	"github.com/gdbrns/go-whatsapp-session-gateway/internal/session"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

// Routines registers periodic background jobs. The health sweep catches
// sessions whose connection died without a protocol event reaching us.
func Routines(c *cron.Cron, gw *Gateway) {
	log.Print(nil).Info("Running Routine Tasks")

	if !env.GetEnvBoolOrDefault("HEALTH_CHECK_ENABLED", true) {
		log.Print(nil).Info("Health check cron disabled; relying on protocol event handlers")
		return
	}

	spec := env.GetEnvStringOrDefault("HEALTH_CHECK_CRON", "0 */5 * * * *")
	_, err := c.AddFunc(spec, func() {
		if gw.Registry.Len() == 0 {
			return
		}
		gw.Registry.Range(func(entry *session.Entry) {
			if entry.Status() != session.StatusConnected {
				return
			}
			client := entry.Client()
			if client == nil || !client.IsConnected() {
				log.Session(entry.Session).
					WithField("up", time.Since(entry.StartedAt()).Round(time.Second)).
					Warn("Session unhealthy, connection lost")
				gw.Hub.Emit(entry.Session, dispatch.EventStatusFind, map[string]string{
					"status": string(wpp.StateDisconnected),
				})
				return
			}
			log.Session(entry.Session).Debug("Session healthy")
		})
	})
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to add health check cron job")
	}
}
