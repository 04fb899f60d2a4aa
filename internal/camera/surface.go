package camera

import (
	"image"
	"sync"
)

// Surface is the display surface a live stream is bound to. Only the Manager binds
// and clears it; readers take snapshots of whatever stream is currently shown.
type Surface struct {
	mu     sync.RWMutex
	stream Stream
}

func (s *Surface) bind(stream Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = stream
}

func (s *Surface) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
}

// Bound reports whether a stream is currently attached.
func (s *Surface) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream != nil
}

// Frame returns the current image of the bound stream.
func (s *Surface) Frame() (image.Image, error) {
	s.mu.RLock()
	stream := s.stream
	s.mu.RUnlock()

	if stream == nil {
		return nil, ErrSessionInactive
	}
	return stream.Frame()
}
