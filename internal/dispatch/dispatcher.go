// Package dispatch fans session events out to the webhook and realtime
// sinks. Sinks are independent: a failing or slow sink never blocks the
// other, and a disabled event category is dropped before either sink sees
// it. The received-message feed is the exception: it always reaches the
// realtime sink, regardless of the event flags.
package dispatch

import (
	"fmt"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/log"
)

// Sink consumes one event. Implementations must not block.
type Sink interface {
	Emit(session string, event string, data interface{})
}

// Dispatcher routes events to the webhook and realtime sinks.
type Dispatcher struct {
	flags    Flags
	webhook  Sink
	realtime Sink
}

func NewDispatcher(flags Flags, webhook Sink, realtime Sink) *Dispatcher {
	return &Dispatcher{flags: flags, webhook: webhook, realtime: realtime}
}

// Enabled reports whether the event category is forwarded at all. The
// session manager uses this to skip registering listeners nobody consumes.
func (d *Dispatcher) Enabled(event string) bool {
	return d.flags.Enabled(event)
}

// Emit forwards one event to both sinks. A panicking sink is isolated and
// logged; the other sink still receives the event.
func (d *Dispatcher) Emit(session string, event string, data interface{}) {
	if !d.flags.Enabled(event) {
		return
	}
	d.emitOne(d.webhook, session, event, data)
	d.emitOne(d.realtime, session, event, data)
}

// EmitRealtime forwards one event to the realtime sink only, bypassing the
// event flags. Used for the always-on received-message feed.
func (d *Dispatcher) EmitRealtime(session string, event string, data interface{}) {
	d.emitOne(d.realtime, session, event, data)
}

func (d *Dispatcher) emitOne(sink Sink, session string, event string, data interface{}) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Session(session).Error(fmt.Sprintf("Sink panicked on event %s: %v", event, r))
		}
	}()
	sink.Emit(session, event, data)
}
