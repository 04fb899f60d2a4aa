package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultFrameInterval is how long each still is shown by a directory stream.
const DefaultFrameInterval = 500 * time.Millisecond

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".webp": true, ".tif": true, ".tiff": true,
}

// DirPlatform is a camera platform backed by a directory tree. Every sub-directory
// of root is one capture device; its stream replays the still images it contains.
// This is how kiosks fed by an external frame grabber are wired, and what tests use.
type DirPlatform struct {
	root           string
	facingModeOnly bool
	interval       time.Duration
	now            func() time.Time

	mu       sync.Mutex
	reserved map[string]bool
}

// NewDirPlatform creates a directory platform rooted at root.
func NewDirPlatform(root string, facingModeOnly bool) *DirPlatform {
	return &DirPlatform{
		root:           root,
		facingModeOnly: facingModeOnly,
		interval:       DefaultFrameInterval,
		now:            time.Now,
		reserved:       make(map[string]bool),
	}
}

// FacingModeOnly implements FacingModePlatform.
func (p *DirPlatform) FacingModeOnly() bool {
	return p.facingModeOnly
}

// EnumerateDevices lists sub-directories of root in name order.
func (p *DirPlatform) EnumerateDevices(ctx context.Context) ([]CaptureDevice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, classifyFSError(err)
	}

	var devices []CaptureDevice
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		devices = append(devices, CaptureDevice{
			ID:     e.Name(),
			Label:  labelFromName(e.Name()),
			Facing: facingFromName(e.Name()),
		})
	}
	return devices, nil
}

// Acquire reserves the device matching c and loads its frames.
func (p *DirPlatform) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	devices, err := p.EnumerateDevices(ctx)
	if err != nil {
		return nil, err
	}

	device, ok := selectDevice(devices, c)
	if !ok {
		return nil, fmt.Errorf("%w: no camera matches %+v", ErrDeviceUnavailable, c)
	}

	p.mu.Lock()
	if p.reserved[device.ID] {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is in use", ErrDeviceUnavailable, device.ID)
	}
	p.reserved[device.ID] = true
	p.mu.Unlock()

	frames, err := loadFrames(filepath.Join(p.root, device.ID))
	if err != nil {
		p.release(device.ID)
		return nil, err
	}

	s := &dirStream{
		frames:   frames,
		interval: p.interval,
		now:      p.now,
		started:  p.now(),
	}
	s.track = &dirTrack{release: func() { p.release(device.ID) }}
	return s, nil
}

// InUse reports whether a device is currently reserved.
func (p *DirPlatform) InUse(deviceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserved[deviceID]
}

func (p *DirPlatform) release(deviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.reserved, deviceID)
}

// selectDevice resolves constraints against the device list. A facing hint falls back
// to the first device when nothing advertises that facing.
func selectDevice(devices []CaptureDevice, c Constraints) (CaptureDevice, bool) {
	if len(devices) == 0 {
		return CaptureDevice{}, false
	}
	if c.DeviceID != "" {
		for _, d := range devices {
			if d.ID == c.DeviceID {
				return d, true
			}
		}
		return CaptureDevice{}, false
	}
	if c.Facing != FacingUnknown {
		for _, d := range devices {
			if d.Facing == c.Facing {
				return d, true
			}
		}
	}
	return devices[0], true
}

func loadFrames(dir string) ([]image.Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, classifyFSError(err)
	}

	var frames []image.Image
	for _, e := range entries {
		if e.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		img, err := decodeFile(filepath.Join(dir, e.Name()))
		if err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return nil, err
			}
			continue
		}
		frames = append(frames, img)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: no readable frames in %s", ErrDeviceUnavailable, dir)
	}
	return frames, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyFSError(err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

func classifyFSError(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
}

func facingFromName(name string) Facing {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "front"), strings.Contains(lower, "user"), strings.Contains(lower, "selfie"):
		return FacingFront
	case strings.Contains(lower, "rear"), strings.Contains(lower, "back"), strings.Contains(lower, "environment"):
		return FacingRear
	default:
		return FacingUnknown
	}
}

func labelFromName(name string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}

type dirStream struct {
	frames   []image.Image
	interval time.Duration
	now      func() time.Time
	started  time.Time
	track    *dirTrack
}

func (s *dirStream) Tracks() []Track {
	return []Track{s.track}
}

func (s *dirStream) Frame() (image.Image, error) {
	if s.track.stopped() {
		return nil, ErrSessionInactive
	}
	idx := 0
	if s.interval > 0 && len(s.frames) > 1 {
		idx = int(s.now().Sub(s.started)/s.interval) % len(s.frames)
	}
	return s.frames[idx], nil
}

type dirTrack struct {
	once    sync.Once
	mu      sync.Mutex
	done    bool
	release func()
}

func (t *dirTrack) Stop() {
	t.once.Do(func() {
		t.mu.Lock()
		t.done = true
		t.mu.Unlock()
		t.release()
	})
}

func (t *dirTrack) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
