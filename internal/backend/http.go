package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/kozaktomas/worker-attendance/internal/logging"
)

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 4096

// ErrMalformedResponse is returned when the backend sends something other than the JSON that was expected.
var ErrMalformedResponse = errors.New("malformed server response")

// ErrHTMLResponse is the message used when an HTML page comes back instead of data,
// usually because the backend is down and a proxy answered.
var ErrHTMLResponse = fmt.Errorf("%w: server returned HTML instead of data, check if backend is running", ErrMalformedResponse)

// APIError is a non-2xx response. Message is the backend's {error} field verbatim when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// IsNotFoundError returns true if the error is a 404 from the backend.
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// newAPIError reads the response body and builds an APIError from it.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := ""
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		msg = eb.Error
		if msg == "" {
			msg = eb.Message
		}
	}
	if msg == "" && !looksLikeHTML(resp.Header.Get("Content-Type"), body) {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.HasPrefix(contentType, "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// decodeJSON unmarshals a response body, classifying non-JSON bodies as malformed.
func decodeJSON[T any](contentType string, body []byte) (*T, error) {
	trimmed := bytes.TrimSpace(body)
	if looksLikeHTML(contentType, trimmed) {
		return nil, ErrHTMLResponse
	}
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, fmt.Errorf("%w: expected JSON", ErrMalformedResponse)
	}

	var result T
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return &result, nil
}

// newRequest builds a request with an optional JSON body.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, requestBody any) (*http.Request, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(endpoint), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends the request and returns the response if its status is expected.
// The caller closes the body.
func (c *Client) do(req *http.Request, expectedStatuses ...int) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("waiting for rate limit: %w", err)
		}
	}

	resp, err := c.client.Do(req) //nolint:gosec // URL constructed from the parsed base URL via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}

	c.log.WithFields(logging.Fields{
		"method": req.Method,
		"url":    req.URL.Path,
		"status": resp.StatusCode,
	}).Debug("backend request")

	if !isExpectedStatus(resp.StatusCode, expectedStatuses) {
		defer resp.Body.Close()
		return nil, newAPIError(resp)
	}
	return resp, nil
}

// doRequestJSON performs a request with an optional JSON body and unmarshals the JSON response.
// It accepts one or more valid status codes.
func doRequestJSON[T any](ctx context.Context, c *Client, method, endpoint string, requestBody any, expectedStatuses ...int) (*T, error) {
	req, err := c.newRequest(ctx, method, endpoint, requestBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, expectedStatuses...)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	return decodeJSON[T](resp.Header.Get("Content-Type"), body)
}

// doRequestRaw performs a request whose response body is ignored.
func doRequestRaw(ctx context.Context, c *Client, method, endpoint string, requestBody any, expectedStatuses ...int) error {
	req, err := c.newRequest(ctx, method, endpoint, requestBody)
	if err != nil {
		return err
	}

	resp, err := c.do(req, expectedStatuses...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// isExpectedStatus checks if a status code is in the list of expected statuses.
func isExpectedStatus(code int, expected []int) bool {
	return slices.Contains(expected, code)
}
