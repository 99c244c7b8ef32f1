package session

// Status is the lifecycle state of one session.
type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusInitializing  Status = "INITIALIZING"
	StatusQRCode        Status = "QRCODE"
	StatusConnected     Status = "CONNECTED"
	StatusClosed        Status = "CLOSED"
)

// Active reports whether an open request for this state is a no-op.
func (s Status) Active() bool {
	switch s {
	case StatusInitializing, StatusQRCode, StatusConnected:
		return true
	default:
		return false
	}
}
