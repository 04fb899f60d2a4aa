package attendance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/camera"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/sirupsen/logrus"
)

// Message types shown next to the flow message.
const (
	MessageInfo    = ""
	MessageSuccess = "success"
	MessageError   = "error"
)

const msgCameraInactive = "Camera not active. Start it first."

const subscriberBuffer = 16

// Camera is the part of the camera manager the flow drives.
type Camera interface {
	Start(ctx context.Context, deviceIndex int) error
	SwitchCamera(ctx context.Context) error
	Stop()
	IsActive() bool
	CurrentIndex() int
	Snapshot() (image.Image, error)
}

// Recorder stores frames and records attendance.
type Recorder interface {
	UploadImage(ctx context.Context, dataURL string) (string, error)
	RecordAttendance(ctx context.Context, id backend.WorkerID, imageURL string) (*backend.AttendanceResponse, error)
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Snapshot is a read-only view of the flow for display.
type Snapshot struct {
	State        State           `json:"state"`
	Message      string          `json:"message"`
	MessageType  string          `json:"message_type"`
	CameraActive bool            `json:"camera_active"`
	DeviceIndex  int             `json:"device_index"`
	Worker       *backend.Worker `json:"worker,omitempty"`
	Distance     float64         `json:"distance,omitempty"`
	FrameID      string          `json:"frame_id,omitempty"`
	FrameWidth   int             `json:"frame_width,omitempty"`
	FrameHeight  int             `json:"frame_height,omitempty"`
}

// Flow is the attendance state machine. It is safe for concurrent use; network steps run
// without holding the lock and their results are dropped if the camera was stopped meanwhile.
type Flow struct {
	camera       Camera
	identifier   identify.Identifier
	recorder     Recorder
	maxUploadDim int
	log          logrus.FieldLogger

	mu          sync.Mutex
	state       State
	frame       *capture.Frame
	result      *identify.Result
	message     string
	messageType string
	generation  uint64
	busy        bool // an Identify or Confirm is waiting on the network
	history     []Transition
	subscribers map[chan Snapshot]struct{}
}

// NewFlow creates a flow in the Idle state.
func NewFlow(cam Camera, identifier identify.Identifier, recorder Recorder, maxUploadDim int, log logrus.FieldLogger) *Flow {
	if log == nil {
		log = logging.Default()
	}
	return &Flow{
		camera:       cam,
		identifier:   identifier,
		recorder:     recorder,
		maxUploadDim: maxUploadDim,
		log:          log,
		state:        Idle,
	}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transitions returns every state change since the flow was created.
func (f *Flow) Transitions() []Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transition(nil), f.history...)
}

// Frame returns the captured frame, if any.
func (f *Flow) Frame() *capture.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

// Snapshot returns the current view of the flow.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	s := Snapshot{
		State:        f.state,
		Message:      f.message,
		MessageType:  f.messageType,
		CameraActive: f.camera.IsActive(),
		DeviceIndex:  f.camera.CurrentIndex(),
	}
	if f.result != nil && f.result.Matched {
		s.Worker = f.result.Worker
		s.Distance = f.result.Distance
	}
	if f.frame != nil {
		s.FrameID = f.frame.ID()
		s.FrameWidth = f.frame.Width()
		s.FrameHeight = f.frame.Height()
	}
	return s
}

// Subscribe returns a channel receiving a snapshot after every change of the flow.
// Slow subscribers lose the oldest pending snapshots, never the latest. cancel closes the channel.
func (f *Flow) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	f.mu.Lock()
	if f.subscribers == nil {
		f.subscribers = make(map[chan Snapshot]struct{})
	}
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subscribers, ch)
			f.mu.Unlock()
			close(ch)
		})
	}
}

func (f *Flow) publishLocked() {
	if len(f.subscribers) == 0 {
		return
	}
	s := f.snapshotLocked()
	for ch := range f.subscribers {
		select {
		case ch <- s:
		default:
			// Full: drop the oldest so the newest is always delivered.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (f *Flow) moveLocked(to State) error {
	if !canTransition(f.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.state, to)
	}
	f.history = append(f.history, Transition{From: f.state, To: to, At: time.Now()})
	f.log.WithFields(logging.Fields{"from": f.state.String(), "to": to.String()}).Debug("attendance state change")
	f.state = to
	return nil
}

func (f *Flow) setMessageLocked(msg, kind string) {
	f.message = msg
	f.messageType = kind
}

func (f *Flow) failLocked(err error, prefix string) error {
	f.setMessageLocked(prefix+err.Error(), MessageError)
	return err
}

// resetLocked drops the captured frame and any identification result and invalidates
// in-flight steps.
func (f *Flow) resetLocked() {
	f.frame = nil
	f.result = nil
	f.generation++
	f.busy = false
}

// beginLocked marks a network step as running and returns its generation.
func (f *Flow) beginLocked(op string) (uint64, error) {
	if f.busy {
		return 0, fmt.Errorf("%w: %s while another step is running", ErrInvalidTransition, op)
	}
	f.busy = true
	f.generation++
	return f.generation, nil
}

// StartCamera starts the camera at deviceIndex. On failure the flow is Idle with the error shown.
func (f *Flow) StartCamera(ctx context.Context, deviceIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.publishLocked()

	f.resetLocked()
	if err := f.camera.Start(ctx, deviceIndex); err != nil {
		f.idleLocked()
		return f.failLocked(err, cameraErrorPrefix(err))
	}
	if f.state != CameraActive {
		f.idleLocked()
	}
	if err := f.moveLocked(CameraActive); err != nil {
		return err
	}
	f.setMessageLocked("", MessageInfo)
	return nil
}

// SwitchCamera moves to the next camera, discarding any captured frame.
func (f *Flow) SwitchCamera(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.publishLocked()

	if f.state == Idle {
		return f.failLocked(fmt.Errorf("%w: camera is not running", ErrInvalidTransition), "")
	}

	f.resetLocked()
	if err := f.camera.SwitchCamera(ctx); err != nil {
		f.idleLocked()
		return f.failLocked(err, cameraErrorPrefix(err))
	}
	if err := f.moveLocked(CameraActive); err != nil {
		return err
	}
	f.setMessageLocked("", MessageInfo)
	return nil
}

// StopCamera stops the camera and returns to Idle. Results still in flight are discarded.
func (f *Flow) StopCamera() {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.publishLocked()
	f.stopLocked()
	f.setMessageLocked("", MessageInfo)
}

func (f *Flow) stopLocked() {
	f.camera.Stop()
	f.resetLocked()
	f.idleLocked()
}

func (f *Flow) idleLocked() {
	if f.state != Idle {
		_ = f.moveLocked(Idle)
	}
}

// Capture takes a still from the live camera. Capturing again after an identification retakes the frame.
func (f *Flow) Capture() (*capture.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.publishLocked()

	if f.state == Idle || !f.camera.IsActive() {
		f.setMessageLocked(msgCameraInactive, MessageError)
		return nil, camera.ErrSessionInactive
	}

	frame, err := capture.Capture(f.camera)
	if err != nil {
		return nil, f.failLocked(err, "Capture failed: ")
	}
	if err := f.moveLocked(FrameCaptured); err != nil {
		return nil, err
	}

	f.frame = frame
	f.result = nil
	f.generation++
	f.busy = false
	f.setMessageLocked("Frame captured.", MessageInfo)
	return frame, nil
}

// Identify resolves the captured frame. On failure the flow stays in FrameCaptured.
func (f *Flow) Identify(ctx context.Context) (identify.Result, error) {
	f.mu.Lock()
	if f.state != FrameCaptured || f.frame == nil {
		err := fmt.Errorf("%w: identify requires a captured frame (state %s)", ErrInvalidTransition, f.state)
		f.mu.Unlock()
		return identify.Result{}, err
	}
	gen, err := f.beginLocked("identify")
	if err != nil {
		f.mu.Unlock()
		return identify.Result{}, err
	}
	frame := f.frame
	f.setMessageLocked("Identifying...", MessageInfo)
	f.publishLocked()
	f.mu.Unlock()

	result, err := f.identifier.Identify(ctx, frame)

	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.publishLocked()

	if gen != f.generation {
		return identify.Result{}, ErrStaleResult
	}
	f.busy = false
	if err != nil {
		f.log.WithError(err).Warn("identification failed")
		return identify.Result{}, f.failLocked(err, identifyErrorPrefix(err))
	}

	to := NotRecognized
	if result.Matched {
		to = Identified
	}
	if err := f.moveLocked(to); err != nil {
		return identify.Result{}, f.failLocked(err, "Identification failed: ")
	}
	f.result = &result
	if result.Matched {
		f.setMessageLocked(fmt.Sprintf("Identified: %s. Confirm to mark attendance.", result.Worker.Name), MessageSuccess)
	} else {
		f.setMessageLocked(result.Message, MessageError)
	}
	return result, nil
}

// CaptureAndIdentify captures a frame and identifies it.
func (f *Flow) CaptureAndIdentify(ctx context.Context) (identify.Result, error) {
	if _, err := f.Capture(); err != nil {
		return identify.Result{}, err
	}
	return f.Identify(ctx)
}

// Confirm records attendance for the identified worker, reusing the uploaded frame when the
// identifier already stored it. On success the camera is stopped and the flow returns to Idle.
func (f *Flow) Confirm(ctx context.Context) (*backend.Worker, error) {
	f.mu.Lock()
	if f.state != Identified || f.result == nil || f.result.Worker == nil {
		f.mu.Unlock()
		return nil, ErrNothingToConfirm
	}
	gen, err := f.beginLocked("confirm")
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	worker := *f.result.Worker
	imageURL := f.result.ImageURL
	frame := f.frame
	f.setMessageLocked("Marking attendance...", MessageInfo)
	f.publishLocked()
	f.mu.Unlock()

	if imageURL == "" {
		imageURL, err = identify.UploadFrame(ctx, f.recorder, frame, f.maxUploadDim)
	}
	if err == nil {
		_, err = f.recorder.RecordAttendance(ctx, worker.ID, imageURL)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrAttendanceRecordFailed, err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	defer f.publishLocked()

	if gen != f.generation {
		if err == nil {
			f.log.WithField("worker", worker.ID).Warn("attendance recorded after the camera was stopped")
		}
		return nil, ErrStaleResult
	}
	f.busy = false
	if err != nil {
		f.log.WithError(err).WithField("worker", worker.ID).Warn("attendance not recorded")
		return nil, f.failLocked(err, "Failed to mark attendance: ")
	}

	// Keep the uploaded URL so a retry after a stale result doesn't upload again.
	f.result.ImageURL = imageURL
	if err := f.moveLocked(AttendanceRecorded); err != nil {
		return nil, f.failLocked(err, "Failed to mark attendance: ")
	}
	f.log.WithFields(logging.Fields{"worker": worker.ID, "name": worker.Name}).Info("attendance recorded")

	f.stopLocked()
	f.setMessageLocked(fmt.Sprintf("Attendance marked for %s.", worker.Name), MessageSuccess)
	return &worker, nil
}

func cameraErrorPrefix(err error) string {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return "Camera permission denied: "
	case errors.Is(err, camera.ErrDeviceUnavailable):
		return "Camera unavailable: "
	default:
		return "Camera error: "
	}
}

func identifyErrorPrefix(err error) string {
	if errors.Is(err, identify.ErrUploadFailed) {
		return "Upload failed: "
	}
	return "Identification failed: "
}
