// Package attendance drives the mark-attendance flow: camera, capture, identification,
// confirmation. Each step either advances the state or leaves the state it started from.
package attendance

import (
	"errors"
	"fmt"
	"slices"
)

// State of the attendance flow.
type State int

const (
	Idle State = iota
	CameraActive
	FrameCaptured
	Identified
	NotRecognized
	AttendanceRecorded
)

var stateNames = map[State]string{
	Idle:               "idle",
	CameraActive:       "camera_active",
	FrameCaptured:      "frame_captured",
	Identified:         "identified",
	NotRecognized:      "not_recognized",
	AttendanceRecorded: "attendance_recorded",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown attendance state %q", text)
}

var (
	// ErrAttendanceRecordFailed wraps backend failures while recording attendance.
	ErrAttendanceRecordFailed = errors.New("attendance record failed")
	// ErrNothingToConfirm is returned by Confirm when no worker has been identified.
	ErrNothingToConfirm = errors.New("no identified worker to confirm")
	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid attendance state transition")
	// ErrStaleResult is returned when the camera was stopped or restarted while a step was running.
	ErrStaleResult = errors.New("result discarded, camera was stopped")
)

// transitions lists the allowed edges. Every state may go back to Idle.
var transitions = map[State][]State{
	Idle:               {CameraActive},
	CameraActive:       {FrameCaptured, CameraActive},
	FrameCaptured:      {Identified, NotRecognized, FrameCaptured, CameraActive},
	Identified:         {AttendanceRecorded, FrameCaptured, CameraActive},
	NotRecognized:      {FrameCaptured, CameraActive},
	AttendanceRecorded: {},
}

func canTransition(from, to State) bool {
	if to == Idle {
		return true
	}
	return slices.Contains(transitions[from], to)
}
