package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// UploadImage stores an image given as a data URL and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, dataURL string) (string, error) {
	resp, err := doRequestJSON[uploadResponse](ctx, c, http.MethodPost, "upload-image", uploadRequest{Image: dataURL}, http.StatusOK, http.StatusCreated)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	if resp.URL == "" {
		return "", fmt.Errorf("uploading image: %w: missing url", ErrMalformedResponse)
	}
	return resp.URL, nil
}

// CreateWorker registers a new worker.
func (c *Client) CreateWorker(ctx context.Context, w NewWorker) (*Worker, error) {
	worker, err := doRequestJSON[Worker](ctx, c, http.MethodPost, "workers", w, http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("creating worker: %w", err)
	}
	return worker, nil
}

// ListWorkers returns every registered worker in backend order.
func (c *Client) ListWorkers(ctx context.Context) ([]Worker, error) {
	workers, err := doRequestJSON[[]Worker](ctx, c, http.MethodGet, "workers", nil, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("listing workers: %w", err)
	}
	return *workers, nil
}

// GetWorker finds a single worker by id.
func (c *Client) GetWorker(ctx context.Context, id WorkerID) (*Worker, error) {
	workers, err := c.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range workers {
		if workers[i].ID == id {
			return &workers[i], nil
		}
	}
	return nil, &APIError{Status: http.StatusNotFound, Message: "worker " + string(id) + " not found"}
}

// UpdateWorker replaces a worker's editable fields.
func (c *Client) UpdateWorker(ctx context.Context, id WorkerID, u WorkerUpdate) (*Worker, error) {
	if id == "" {
		return nil, errors.New("worker id is required")
	}
	worker, err := doRequestJSON[Worker](ctx, c, http.MethodPut, "workers/"+url.PathEscape(string(id)), u, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("updating worker %s: %w", id, err)
	}
	return worker, nil
}

// DeleteWorker removes a worker.
func (c *Client) DeleteWorker(ctx context.Context, id WorkerID) error {
	if id == "" {
		return errors.New("worker id is required")
	}
	if err := doRequestRaw(ctx, c, http.MethodDelete, "workers/"+url.PathEscape(string(id)), nil, http.StatusOK, http.StatusNoContent); err != nil {
		return fmt.Errorf("deleting worker %s: %w", id, err)
	}
	return nil
}

// FetchImage downloads a stored image. Relative URLs are resolved against the API root.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	ref, err := c.resolveReference(imageURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("fetching image %s: %w", imageURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read image body: %w", err)
	}
	return data, nil
}
