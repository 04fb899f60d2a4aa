package attendance

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"testing"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/camera"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/kozaktomas/worker-attendance/internal/logging"
)

type fakeCamera struct {
	startErr error
	active   bool
	index    int
	starts   int
	stops    int
}

func (c *fakeCamera) Start(ctx context.Context, idx int) error {
	c.starts++
	c.active = false
	c.index = idx
	if c.startErr != nil {
		return c.startErr
	}
	c.active = true
	return nil
}

func (c *fakeCamera) SwitchCamera(ctx context.Context) error {
	return c.Start(ctx, (c.index+1)%2)
}

func (c *fakeCamera) Stop() {
	c.stops++
	c.active = false
}

func (c *fakeCamera) IsActive() bool    { return c.active }
func (c *fakeCamera) CurrentIndex() int { return c.index }

func (c *fakeCamera) Snapshot() (image.Image, error) {
	if !c.active {
		return nil, camera.ErrSessionInactive
	}
	return image.NewRGBA(image.Rect(0, 0, 6, 4)), nil
}

type fakeIdentifier struct {
	result identify.Result
	err    error
	calls  int
	// hook runs inside Identify, before returning.
	hook func()
}

func (i *fakeIdentifier) Identify(ctx context.Context, frame *capture.Frame) (identify.Result, error) {
	i.calls++
	if i.hook != nil {
		i.hook()
	}
	return i.result, i.err
}

func (i *fakeIdentifier) Strategy() string { return "fake" }

type fakeRecorder struct {
	mu        sync.Mutex
	uploadErr error
	recordErr error
	uploads   int
	recorded  []string
	// recordHook runs inside RecordAttendance, before recording.
	recordHook func()
}

func (r *fakeRecorder) UploadImage(ctx context.Context, dataURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploadErr != nil {
		return "", r.uploadErr
	}
	r.uploads++
	return "https://cdn/confirm.png", nil
}

func (r *fakeRecorder) RecordAttendance(ctx context.Context, id backend.WorkerID, imageURL string) (*backend.AttendanceResponse, error) {
	if r.recordHook != nil {
		r.recordHook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return nil, r.recordErr
	}
	r.recorded = append(r.recorded, string(id)+"|"+imageURL)
	return &backend.AttendanceResponse{Message: "ok"}, nil
}

func newTestFlow(id *fakeIdentifier) (*Flow, *fakeCamera, *fakeRecorder) {
	cam := &fakeCamera{}
	rec := &fakeRecorder{}
	return NewFlow(cam, id, rec, 0, logging.Discard()), cam, rec
}

func statePath(f *Flow) string {
	var parts []string
	for i, tr := range f.Transitions() {
		if i == 0 {
			parts = append(parts, tr.From.String())
		}
		parts = append(parts, tr.To.String())
	}
	return strings.Join(parts, ">")
}

func matchedResult(imageURL string) identify.Result {
	r := identify.Matched(backend.Worker{ID: "7", Name: "Ramesh"}, 0.2)
	r.ImageURL = imageURL
	return r
}

func TestFlow_HappyPathRemote(t *testing.T) {
	f, cam, rec := newTestFlow(&fakeIdentifier{result: matchedResult("https://cdn/identify.png")})
	ctx := context.Background()

	if err := f.StartCamera(ctx, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := f.CaptureAndIdentify(ctx)
	if err != nil {
		t.Fatalf("capture and identify: %v", err)
	}
	if !result.Matched || f.State() != Identified {
		t.Fatalf("expected Identified, got %s %+v", f.State(), result)
	}
	if snap := f.Snapshot(); snap.Worker == nil || snap.Worker.Name != "Ramesh" || snap.FrameWidth != 6 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	worker, err := f.Confirm(ctx)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if worker.ID != "7" {
		t.Errorf("expected worker 7, got %s", worker.ID)
	}
	if rec.uploads != 0 {
		t.Errorf("expected uploaded identify image to be reused, got %d uploads", rec.uploads)
	}
	if len(rec.recorded) != 1 || rec.recorded[0] != "7|https://cdn/identify.png" {
		t.Errorf("unexpected attendance records %v", rec.recorded)
	}
	if cam.active || f.State() != Idle {
		t.Errorf("expected camera stopped and Idle, got active=%v state=%s", cam.active, f.State())
	}

	want := "idle>camera_active>frame_captured>identified>attendance_recorded>idle"
	if got := statePath(f); got != want {
		t.Errorf("expected path %s, got %s", want, got)
	}
	if snap := f.Snapshot(); snap.MessageType != MessageSuccess || !strings.Contains(snap.Message, "Ramesh") {
		t.Errorf("unexpected final message %+v", snap)
	}
}

func TestFlow_ConfirmUploadsWhenIdentifierDidNot(t *testing.T) {
	f, _, rec := newTestFlow(&fakeIdentifier{result: matchedResult("")})
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	if _, err := f.CaptureAndIdentify(ctx); err != nil {
		t.Fatalf("capture and identify: %v", err)
	}
	if _, err := f.Confirm(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if rec.uploads != 1 || rec.recorded[0] != "7|https://cdn/confirm.png" {
		t.Errorf("expected upload before recording, uploads=%d records=%v", rec.uploads, rec.recorded)
	}
}

func TestFlow_NotRecognizedNeverRecords(t *testing.T) {
	f, _, rec := newTestFlow(&fakeIdentifier{result: identify.NoMatch("not recognized")})
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	result, err := f.CaptureAndIdentify(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matched || f.State() != NotRecognized {
		t.Fatalf("expected NotRecognized, got %s", f.State())
	}
	if snap := f.Snapshot(); snap.Message != "not recognized" || snap.MessageType != MessageError {
		t.Errorf("unexpected message %+v", snap)
	}

	if _, err := f.Confirm(ctx); !errors.Is(err, ErrNothingToConfirm) {
		t.Errorf("expected ErrNothingToConfirm, got %v", err)
	}
	if f.State() != NotRecognized || len(rec.recorded) != 0 {
		t.Errorf("expected no attendance, state=%s records=%v", f.State(), rec.recorded)
	}
	for _, tr := range f.Transitions() {
		if tr.To == AttendanceRecorded {
			t.Fatal("AttendanceRecorded must not be reached")
		}
	}
}

func TestFlow_PermissionDenied(t *testing.T) {
	f, cam, _ := newTestFlow(&fakeIdentifier{})
	cam.startErr = camera.ErrPermissionDenied

	err := f.StartCamera(context.Background(), 0)
	if !errors.Is(err, camera.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if f.State() != Idle || cam.active {
		t.Errorf("expected Idle with inactive camera, got %s", f.State())
	}
	if snap := f.Snapshot(); !strings.Contains(snap.Message, "permission denied") {
		t.Errorf("expected permission message, got %q", snap.Message)
	}

	if _, err := f.Capture(); !errors.Is(err, camera.ErrSessionInactive) {
		t.Errorf("expected ErrSessionInactive, got %v", err)
	}
	if f.Frame() != nil {
		t.Error("expected no frame")
	}
}

func TestFlow_IdentifyFailureStaysInFrameCaptured(t *testing.T) {
	id := &fakeIdentifier{err: errors.Join(identify.ErrUploadFailed, errors.New("disk full"))}
	f, _, _ := newTestFlow(id)
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	if _, err := f.CaptureAndIdentify(ctx); !errors.Is(err, identify.ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	if f.State() != FrameCaptured {
		t.Errorf("expected FrameCaptured, got %s", f.State())
	}
	if snap := f.Snapshot(); !strings.HasPrefix(snap.Message, "Upload failed") {
		t.Errorf("unexpected message %q", snap.Message)
	}

	id.err = nil
	id.result = identify.NoMatch("")
	if _, err := f.Identify(ctx); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.State() != NotRecognized {
		t.Errorf("expected NotRecognized after retry, got %s", f.State())
	}
}

func TestFlow_ConfirmFailureStaysIdentified(t *testing.T) {
	f, cam, rec := newTestFlow(&fakeIdentifier{result: matchedResult("u")})
	rec.recordErr = &backend.APIError{Status: 409, Message: "Attendance already marked for today"}
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	_, _ = f.CaptureAndIdentify(ctx)

	_, err := f.Confirm(ctx)
	if !errors.Is(err, ErrAttendanceRecordFailed) {
		t.Fatalf("expected ErrAttendanceRecordFailed, got %v", err)
	}
	if f.State() != Identified || !cam.active {
		t.Errorf("expected Identified with camera running, got %s active=%v", f.State(), cam.active)
	}
	if snap := f.Snapshot(); !strings.Contains(snap.Message, "already marked") {
		t.Errorf("expected backend message verbatim, got %q", snap.Message)
	}
}

func TestFlow_StopDiscardsInFlightResult(t *testing.T) {
	id := &fakeIdentifier{result: matchedResult("u")}
	f, _, _ := newTestFlow(id)
	id.hook = func() { f.StopCamera() }
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	if _, err := f.Capture(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	if _, err := f.Identify(ctx); !errors.Is(err, ErrStaleResult) {
		t.Fatalf("expected ErrStaleResult, got %v", err)
	}
	if f.State() != Idle {
		t.Errorf("expected Idle, got %s", f.State())
	}
	if snap := f.Snapshot(); snap.Worker != nil {
		t.Error("expected stale worker to be discarded")
	}
}

func TestFlow_InvalidOperations(t *testing.T) {
	f, _, _ := newTestFlow(&fakeIdentifier{})
	ctx := context.Background()

	if _, err := f.Identify(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("identify from Idle: expected ErrInvalidTransition, got %v", err)
	}
	if err := f.SwitchCamera(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("switch from Idle: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.Confirm(ctx); !errors.Is(err, ErrNothingToConfirm) {
		t.Errorf("confirm from Idle: expected ErrNothingToConfirm, got %v", err)
	}
	if len(f.Transitions()) != 0 {
		t.Errorf("expected no transitions, got %v", f.Transitions())
	}
}

func TestFlow_SwitchCameraDiscardsFrame(t *testing.T) {
	f, cam, _ := newTestFlow(&fakeIdentifier{result: identify.NoMatch("")})
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	_, _ = f.CaptureAndIdentify(ctx)

	if err := f.SwitchCamera(ctx); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if f.State() != CameraActive || f.Frame() != nil || cam.index != 1 {
		t.Errorf("expected fresh CameraActive on device 1, got %s index=%d", f.State(), cam.index)
	}

	cam.startErr = camera.ErrDeviceUnavailable
	if err := f.SwitchCamera(ctx); !errors.Is(err, camera.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if f.State() != Idle {
		t.Errorf("expected Idle after failed switch, got %s", f.State())
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Idle, CameraActive, true},
		{Idle, FrameCaptured, false},
		{CameraActive, Identified, false},
		{FrameCaptured, Identified, true},
		{FrameCaptured, NotRecognized, true},
		{NotRecognized, AttendanceRecorded, false},
		{Identified, AttendanceRecorded, true},
		{AttendanceRecorded, Idle, true},
		{AttendanceRecorded, CameraActive, false},
	}
	for _, tc := range tests {
		if got := canTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("canTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestFlow_Subscribe(t *testing.T) {
	f, _, _ := newTestFlow(&fakeIdentifier{result: matchedResult("")})
	ctx := context.Background()
	events, cancel := f.Subscribe()

	if err := f.StartCamera(ctx, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.CaptureAndIdentify(ctx); err != nil {
		t.Fatalf("capture and identify: %v", err)
	}
	cancel()

	var got []State
	var last Snapshot
	for s := range events {
		got = append(got, s.State)
		last = s
	}
	if len(got) == 0 || got[0] != CameraActive {
		t.Fatalf("expected first event camera_active, got %v", got)
	}
	if last.State != Identified || last.Worker == nil || last.Worker.Name != "Ramesh" {
		t.Errorf("expected last event to carry the identified worker, got %+v", last)
	}

	// Cancelling twice is safe and later changes are not delivered.
	cancel()
	f.StopCamera()
}

// blockingHook returns a hook that signals entry and then waits for release.
func blockingHook() (hook func(), entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	return func() {
		once.Do(func() { close(entered) })
		<-release
	}, entered, release
}

func TestFlow_OverlappingIdentifyIsRejected(t *testing.T) {
	id := &fakeIdentifier{result: matchedResult("u")}
	hook, entered, release := blockingHook()
	id.hook = hook
	f, _, rec := newTestFlow(id)
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	if _, err := f.Capture(); err != nil {
		t.Fatalf("capture: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.Identify(ctx)
		done <- err
	}()
	<-entered

	if _, err := f.Identify(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second identify: expected ErrInvalidTransition, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first identify: %v", err)
	}

	snap := f.Snapshot()
	if snap.State != Identified || snap.Worker == nil || snap.Worker.ID != "7" {
		t.Fatalf("state and result disagree: %+v", snap)
	}
	if _, err := f.Confirm(ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(rec.recorded) != 1 {
		t.Errorf("expected one record, got %v", rec.recorded)
	}
}

func TestFlow_OverlappingConfirmIsRejected(t *testing.T) {
	f, _, rec := newTestFlow(&fakeIdentifier{result: matchedResult("u")})
	hook, entered, release := blockingHook()
	rec.recordHook = hook
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	if _, err := f.CaptureAndIdentify(ctx); err != nil {
		t.Fatalf("capture and identify: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.Confirm(ctx)
		done <- err
	}()
	<-entered

	if _, err := f.Confirm(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second confirm: expected ErrInvalidTransition, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if f.State() != Idle || len(rec.recorded) != 1 {
		t.Errorf("expected one record and Idle, got %s %v", f.State(), rec.recorded)
	}
}

func TestFlow_RetakeDuringIdentifyDiscardsResult(t *testing.T) {
	id := &fakeIdentifier{result: matchedResult("u")}
	hook, entered, release := blockingHook()
	id.hook = hook
	f, _, _ := newTestFlow(id)
	ctx := context.Background()

	_ = f.StartCamera(ctx, 0)
	if _, err := f.Capture(); err != nil {
		t.Fatalf("capture: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := f.Identify(ctx)
		done <- err
	}()
	<-entered

	if _, err := f.Capture(); err != nil {
		t.Fatalf("retake: %v", err)
	}
	close(release)
	if err := <-done; !errors.Is(err, ErrStaleResult) {
		t.Errorf("expected ErrStaleResult, got %v", err)
	}
	if f.State() != FrameCaptured {
		t.Errorf("expected FrameCaptured, got %s", f.State())
	}

	// The retaken frame can be identified.
	id.hook = nil
	if _, err := f.Identify(ctx); err != nil {
		t.Errorf("identify retaken frame: %v", err)
	}
}

func TestFlow_SlowSubscriberGetsLatestSnapshot(t *testing.T) {
	f, _, _ := newTestFlow(&fakeIdentifier{})
	ctx := context.Background()
	events, cancel := f.Subscribe()

	for range 10 {
		_ = f.StartCamera(ctx, 0)
		f.StopCamera()
	}
	if err := f.StartCamera(ctx, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	var n int
	var last Snapshot
	for s := range events {
		n++
		last = s
	}
	if n == 0 || n > subscriberBuffer {
		t.Errorf("expected between 1 and %d snapshots, got %d", subscriberBuffer, n)
	}
	if last.State != CameraActive || !last.CameraActive {
		t.Errorf("expected latest snapshot camera_active, got %+v", last)
	}
}
