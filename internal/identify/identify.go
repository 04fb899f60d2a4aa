// Package identify resolves a captured frame to a registered worker, either by delegating to
// the backend (remote) or by comparing face descriptors locally. A deployment picks one.
package identify

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/capture"
)

var (
	// ErrUploadFailed wraps failures to store the captured frame.
	ErrUploadFailed = errors.New("image upload failed")
	// ErrIdentificationFailed wraps failures of the matcher itself (not a "no match" outcome).
	ErrIdentificationFailed = errors.New("identification failed")
	// ErrNoFace is returned by an extractor when the image contains no detectable face.
	ErrNoFace = errors.New("no face detected")
)

// DefaultThreshold is the descriptor distance below which two faces are the same person.
const DefaultThreshold = 0.6

// NoFaceMessage is reported when the captured frame holds no face.
const NoFaceMessage = "No face detected. Look at the camera and try again."

// Strategy names accepted by New.
const (
	StrategyRemote = "remote"
	StrategyLocal  = "local"
)

// Result is the outcome of one identification attempt: Matched with a worker, or not.
type Result struct {
	Matched  bool            `json:"matched"`
	Worker   *backend.Worker `json:"worker,omitempty"`
	Distance float64         `json:"distance"`
	// ImageURL is set when the strategy already uploaded the frame, so it can be reused.
	ImageURL string `json:"image_url,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Matched builds a positive result.
func Matched(w backend.Worker, distance float64) Result {
	return Result{Matched: true, Worker: &w, Distance: distance}
}

// NoMatch builds a negative result with a user-facing message.
func NoMatch(message string) Result {
	if message == "" {
		message = backend.DefaultNotRecognizedMessage
	}
	return Result{Message: message}
}

// Identifier resolves captured frames to workers.
type Identifier interface {
	Identify(ctx context.Context, frame *capture.Frame) (Result, error)
	Strategy() string
}

// ImageStore stores encoded images and returns their URLs.
type ImageStore interface {
	UploadImage(ctx context.Context, dataURL string) (string, error)
}

// Uploader stores frames and runs server-side identification.
type Uploader interface {
	ImageStore
	IdentifyWorker(ctx context.Context, imageURL string) (*backend.IdentifyResponse, error)
}

// WorkerSource lists workers and downloads their reference photos.
type WorkerSource interface {
	ListWorkers(ctx context.Context) ([]backend.Worker, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, error)
}

// Backend is everything the strategies need from the backend client.
type Backend interface {
	Uploader
	WorkerSource
}

// Options selects and configures a strategy.
type Options struct {
	Strategy     string
	Threshold    float64
	MaxUploadDim int
	Extractor    Extractor
	Cache        *DescriptorCache
	UseIndex     bool
}

// New builds the identifier named by opts.Strategy.
func New(b Backend, opts Options) (Identifier, error) {
	switch opts.Strategy {
	case "", StrategyRemote:
		return NewRemote(b, opts.MaxUploadDim), nil
	case StrategyLocal:
		if opts.Extractor == nil {
			return nil, errors.New("local identification requires a face extractor")
		}
		local := NewLocal(b, opts.Extractor, opts.Cache, opts.Threshold)
		if opts.UseIndex {
			local.EnableIndex()
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unknown identification strategy %q", opts.Strategy)
	}
}
