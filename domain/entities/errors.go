package entities

import "errors"

// Device errors. These are fatal to starting a live session and are reported
// separately from network errors so the caller can point the user at system
// settings instead of retrying.
var (
	ErrDevicePermission  = errors.New("audio device permission denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// Transport errors
var (
	ErrTransportOpen   = errors.New("live connection failed to open")
	ErrTransportClosed = errors.New("live connection closed")
)

// Session manager errors
var (
	ErrSessionActive = errors.New("a live session is already active")
	ErrNoSession     = errors.New("no active live session")
	ErrSchema        = errors.New("response does not match answer schema")
	ErrNoFrame       = errors.New("no video frame available")
)

// IsDeviceError reports whether err originates from an audio device
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDevicePermission) || errors.Is(err, ErrDeviceUnavailable)
}

// IsTransportError reports whether err originates from the live transport
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransportOpen) || errors.Is(err, ErrTransportClosed)
}
