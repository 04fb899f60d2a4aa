package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultNotRecognizedMessage is shown when the backend rejects a face without saying why.
const DefaultNotRecognizedMessage = "Worker not recognized. Try again."

// IdentifyWorker asks the backend to match an uploaded image. A 404 carrying a
// {success:false} body is a normal "not recognized" outcome, not an error.
func (c *Client) IdentifyWorker(ctx context.Context, imageURL string) (*IdentifyResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "identify-worker", imageURLRequest{ImageURL: imageURL})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, http.StatusOK, http.StatusNotFound)
	if err != nil {
		return nil, fmt.Errorf("identifying worker: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	result, err := decodeJSON[IdentifyResponse](resp.Header.Get("Content-Type"), body)
	if err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("identifying worker: %w", &APIError{Status: resp.StatusCode, Message: "not found"})
		}
		return nil, fmt.Errorf("identifying worker: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && result.Success {
		return nil, fmt.Errorf("identifying worker: %w: success with status 404", ErrMalformedResponse)
	}
	if result.Success && result.Worker == nil {
		return nil, fmt.Errorf("identifying worker: %w: success without worker", ErrMalformedResponse)
	}
	if !result.Success && result.Message == "" {
		result.Message = DefaultNotRecognizedMessage
	}
	return result, nil
}

// RecordAttendance marks the worker present, attaching the image that identified them.
func (c *Client) RecordAttendance(ctx context.Context, id WorkerID, imageURL string) (*AttendanceResponse, error) {
	if id == "" {
		return nil, errors.New("worker id is required")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "attendance/"+url.PathEscape(string(id)), imageURLRequest{ImageURL: imageURL})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("recording attendance for %s: %w", id, err)
	}
	defer resp.Body.Close()

	// Some backends answer with an empty body or plain text; only a JSON body is decoded.
	var result AttendanceResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.WithError(err).WithField("worker", string(id)).Debug("reading attendance response")
		return &result, nil
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			c.log.WithError(err).WithField("worker", string(id)).Debug("attendance response is not JSON")
		}
	}
	return &result, nil
}

// ExcelFileName is the name browsers give the monthly report download.
func ExcelFileName(month, year int) string {
	return fmt.Sprintf("attendance_report_%d-%d.xlsx", month, year)
}

// DownloadExcel streams the monthly spreadsheet into w and returns the number of bytes written.
func (c *Client) DownloadExcel(ctx context.Context, month, year int, w io.Writer) (int64, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("invalid month %d", month)
	}

	q := url.Values{}
	q.Set("month", strconv.Itoa(month))
	q.Set("year", strconv.Itoa(year))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL("download-excel?"+q.Encode()), nil)
	if err != nil {
		return 0, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := c.do(req, http.StatusOK)
	if err != nil {
		return 0, fmt.Errorf("downloading report: %w", err)
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("writing report: %w", err)
	}
	return n, nil
}
