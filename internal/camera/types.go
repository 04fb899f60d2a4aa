// Package camera manages the lifecycle of a single live capture stream: device
// enumeration, exclusive acquisition, teardown and switching between devices.
package camera

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPermissionDenied is returned when the platform refuses access to a camera.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable is returned when the requested camera is busy, missing or failed to open.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrSessionInactive is returned when a frame is requested without a live stream.
	ErrSessionInactive = errors.New("camera session is not active")
)

// Facing is the direction a camera points relative to the operator.
type Facing int

const (
	FacingUnknown Facing = iota
	FacingFront
	FacingRear
)

func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingRear:
		return "rear"
	default:
		return "unknown"
	}
}

// Mode returns the facing-mode hint understood by mobile platforms.
func (f Facing) Mode() string {
	switch f {
	case FacingFront:
		return "user"
	case FacingRear:
		return "environment"
	default:
		return ""
	}
}

// MarshalText encodes the facing as its name so JSON output is readable.
func (f Facing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts both names and facing-mode hints. Anything else is unknown.
func (f *Facing) UnmarshalText(text []byte) error {
	switch string(text) {
	case "front", "user":
		*f = FacingFront
	case "rear", "environment":
		*f = FacingRear
	default:
		*f = FacingUnknown
	}
	return nil
}

// CaptureDevice is a platform-enumerated camera source.
type CaptureDevice struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Facing Facing `json:"facing"`
}

// Constraints selects the stream to acquire. The zero value means any camera.
type Constraints struct {
	DeviceID string
	Facing   Facing
}

// Any reports whether no specific device or facing mode is requested.
func (c Constraints) Any() bool {
	return c.DeviceID == "" && c.Facing == FacingUnknown
}

// Track is one hardware track of a stream.
type Track interface {
	Stop()
}

// Stream is a live hardware capture stream.
type Stream interface {
	Tracks() []Track
	// Frame returns the image currently shown by the stream.
	Frame() (image.Image, error)
}

// Platform is the media-capture capability surface of the host.
type Platform interface {
	EnumerateDevices(ctx context.Context) ([]CaptureDevice, error)
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// FacingModePlatform is implemented by platforms that only honour front/rear hints
// instead of exact device identifiers.
type FacingModePlatform interface {
	FacingModeOnly() bool
}

// Capabilities is the result of an explicit capability query.
type Capabilities struct {
	Devices         []CaptureDevice `json:"devices"`
	FacingModeOnly  bool            `json:"facing_mode_only"`
	MultipleCameras bool            `json:"multiple_cameras"`
	// Sniffed is true when MultipleCameras came from the user agent because enumeration failed.
	Sniffed bool `json:"sniffed"`
}
