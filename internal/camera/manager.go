package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"regexp"
	"slices"
	"sync"

	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/sirupsen/logrus"
)

// mobileUserAgent matches user agents of devices that expose front/rear cameras
// even when enumeration hides them.
var mobileUserAgent = regexp.MustCompile(`(?i)Mobi|Android|iPhone`)

// Manager owns at most one live stream and the surface it is bound to.
// All methods are safe for concurrent use; starts are serialised.
type Manager struct {
	platform  Platform
	surface   *Surface
	userAgent string
	log       logrus.FieldLogger

	mu     sync.Mutex
	caps   Capabilities
	stream Stream
	index  int
	active bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithUserAgent sets the user agent used as a capability fallback when enumeration fails.
func WithUserAgent(ua string) Option {
	return func(m *Manager) {
		m.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a manager for the given platform. Call EnumerateDevices before Start
// so device indices resolve to real devices.
func NewManager(platform Platform, opts ...Option) *Manager {
	m := &Manager{
		platform: platform,
		surface:  &Surface{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.Default()
	}
	return m
}

// EnumerateDevices queries the platform once and stores the result. It never fails:
// permission denial or a missing capability yield an empty device list.
func (m *Manager) EnumerateDevices(ctx context.Context) Capabilities {
	devices, err := m.platform.EnumerateDevices(ctx)

	caps := Capabilities{}
	if fm, ok := m.platform.(FacingModePlatform); ok {
		caps.FacingModeOnly = fm.FacingModeOnly()
	}

	if err != nil {
		m.log.WithError(err).Warn("camera enumeration failed, continuing without a device list")
		caps.Devices = []CaptureDevice{}
		caps.MultipleCameras = caps.FacingModeOnly || mobileUserAgent.MatchString(m.userAgent)
		caps.Sniffed = !caps.FacingModeOnly && caps.MultipleCameras
	} else {
		caps.Devices = make([]CaptureDevice, 0, len(devices))
		for _, d := range devices {
			if d.ID == "" {
				continue
			}
			caps.Devices = append(caps.Devices, d)
		}
		caps.MultipleCameras = len(caps.Devices) > 1 || caps.FacingModeOnly
	}

	m.mu.Lock()
	m.caps = caps
	m.mu.Unlock()

	m.log.WithFields(logging.Fields{
		"devices":          len(caps.Devices),
		"facing_mode_only": caps.FacingModeOnly,
	}).Debug("camera devices enumerated")

	return m.Capabilities()
}

// Capabilities returns a copy of the last enumeration result.
func (m *Manager) Capabilities() Capabilities {
	m.mu.Lock()
	defer m.mu.Unlock()
	caps := m.caps
	caps.Devices = slices.Clone(m.caps.Devices)
	return caps
}

// Devices returns the enumerated devices.
func (m *Manager) Devices() []CaptureDevice {
	return m.Capabilities().Devices
}

// Start tears down any existing stream and acquires the camera at deviceIndex.
// The attempt is made exactly once; the error wraps ErrPermissionDenied or ErrDeviceUnavailable.
func (m *Manager) Start(ctx context.Context, deviceIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx, deviceIndex)
}

func (m *Manager) startLocked(ctx context.Context, deviceIndex int) error {
	m.stopLocked()

	constraints := m.constraintsLocked(deviceIndex)
	stream, err := m.platform.Acquire(ctx, constraints)
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
		}
		m.log.WithError(err).WithField("index", deviceIndex).Warn("camera start failed")
		return fmt.Errorf("starting camera %d: %w", deviceIndex, err)
	}

	m.stream = stream
	m.surface.bind(stream)
	m.active = true
	m.index = deviceIndex

	m.log.WithFields(logging.Fields{
		"index":     deviceIndex,
		"device_id": constraints.DeviceID,
		"facing":    constraints.Facing.String(),
	}).Info("camera started")
	return nil
}

// constraintsLocked resolves a device index to acquisition constraints. Facing-mode-only
// platforms get rear for index 0 and front for index 1.
func (m *Manager) constraintsLocked(deviceIndex int) Constraints {
	if m.caps.FacingModeOnly {
		if deviceIndex%2 == 0 {
			return Constraints{Facing: FacingRear}
		}
		return Constraints{Facing: FacingFront}
	}
	if deviceIndex >= 0 && deviceIndex < len(m.caps.Devices) {
		return Constraints{DeviceID: m.caps.Devices[deviceIndex].ID}
	}
	return Constraints{}
}

// Stop releases every track of the current stream and clears the surface. Safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.stream != nil {
		for _, track := range m.stream.Tracks() {
			track.Stop()
		}
		m.log.WithField("index", m.index).Info("camera stopped")
	}
	m.stream = nil
	m.surface.clear()
	m.active = false
}

// positionsLocked is the number of logical positions SwitchCamera cycles through.
func (m *Manager) positionsLocked() int {
	if m.caps.FacingModeOnly {
		return 2
	}
	return max(len(m.caps.Devices), 1)
}

// SwitchCamera stops the current stream and starts the next position.
func (m *Manager) SwitchCamera(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := (m.index + 1) % m.positionsLocked()
	return m.startLocked(ctx, next)
}

// IsActive reports whether a stream is bound to the surface.
func (m *Manager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// CurrentIndex returns the index of the selected device.
func (m *Manager) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Snapshot returns the image currently shown on the surface.
func (m *Manager) Snapshot() (image.Image, error) {
	return m.surface.Frame()
}

// Scope ties the session to ctx: when ctx ends or the returned release func is called,
// the camera is stopped. release blocks until the stop has happened.
func (m *Manager) Scope(ctx context.Context) (release func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		m.Stop()
		close(done)
	}()

	return func() {
		cancel()
		<-done
	}
}

// Close stops the camera.
func (m *Manager) Close() error {
	m.Stop()
	return nil
}
