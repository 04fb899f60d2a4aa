package identify

import (
	"context"
	"fmt"

	"github.com/kozaktomas/worker-attendance/internal/capture"
)

// Remote uploads the frame and lets the backend match it.
type Remote struct {
	backend      Uploader
	maxUploadDim int
}

// NewRemote creates a remote identifier. Frames larger than maxUploadDim are downscaled
// before upload; zero disables downscaling.
func NewRemote(b Uploader, maxUploadDim int) *Remote {
	return &Remote{backend: b, maxUploadDim: maxUploadDim}
}

func (r *Remote) Strategy() string {
	return StrategyRemote
}

// Identify uploads the frame, then asks the backend who it is.
func (r *Remote) Identify(ctx context.Context, frame *capture.Frame) (Result, error) {
	imageURL, err := UploadFrame(ctx, r.backend, frame, r.maxUploadDim)
	if err != nil {
		return Result{}, err
	}

	resp, err := r.backend.IdentifyWorker(ctx, imageURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrIdentificationFailed, err)
	}

	var result Result
	if resp.Success {
		if resp.Worker == nil {
			return Result{}, fmt.Errorf("%w: match without worker", ErrIdentificationFailed)
		}
		result = Matched(*resp.Worker, resp.Distance)
	} else {
		result = NoMatch(resp.Message)
	}
	result.ImageURL = imageURL
	return result, nil
}

// UploadFrame stores a frame through the backend and returns its URL.
func UploadFrame(ctx context.Context, u ImageStore, frame *capture.Frame, maxDim int) (string, error) {
	scaled, err := capture.Downscale(frame, maxDim)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	imageURL, err := u.UploadImage(ctx, scaled.DataURL())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return imageURL, nil
}
