package dispatch

import (
	"strings"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/env"
)

// Event names carried on the wire. Consumers match on these strings.
const (
	EventQRCode              = "qrcode"
	EventSessionLogged       = "session-logged"
	EventSessionError        = "session-error"
	EventStatusFind          = "status-find"
	EventMessage             = "onmessage"
	EventSelfMessage         = "onselfmessage"
	EventAck                 = "onack"
	EventPresenceChanged     = "onpresencechanged"
	EventReactionMessage     = "onreactionmessage"
	EventRevokedMessage      = "onrevokedmessage"
	EventPollResponse        = "onpollresponse"
	EventUpdateLabel         = "onupdatelabel"
	EventIncomingCall        = "incomingcall"
	EventParticipantsChanged = "onparticipantschanged"
	EventLocation            = "location"
	EventReceivedMessage     = "received-message"
)

// Flags controls which event categories are wired to listeners and
// forwarded to sinks. Each flag reads EVENT_<NAME> from the environment,
// with the event name uppercased and dashes turned into underscores.
type Flags struct {
	enabled map[string]bool
}

var flagDefaults = map[string]bool{
	EventQRCode:              true,
	EventSessionLogged:       true,
	EventSessionError:        true,
	EventStatusFind:          true,
	EventMessage:             true,
	EventSelfMessage:         false,
	EventAck:                 true,
	EventPresenceChanged:     false,
	EventReactionMessage:     true,
	EventRevokedMessage:      true,
	EventPollResponse:        true,
	EventUpdateLabel:         true,
	EventIncomingCall:        true,
	EventParticipantsChanged: true,
	EventLocation:            false,
	EventReceivedMessage:     true,
}

func FlagsFromEnv() Flags {
	enabled := make(map[string]bool, len(flagDefaults))
	for event, fallback := range flagDefaults {
		key := "EVENT_" + strings.ToUpper(strings.ReplaceAll(event, "-", "_"))
		enabled[event] = env.GetEnvBoolOrDefault(key, fallback)
	}
	return Flags{enabled: enabled}
}

// AllFlags enables every event category; used by tests.
func AllFlags() Flags {
	enabled := make(map[string]bool, len(flagDefaults))
	for event := range flagDefaults {
		enabled[event] = true
	}
	return Flags{enabled: enabled}
}

func (f Flags) Enabled(event string) bool {
	on, ok := f.enabled[event]
	if !ok {
		return true
	}
	return on
}
