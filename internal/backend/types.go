package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// WorkerID is a worker identifier. Backends send it either as a string or a number.
type WorkerID string

func (id *WorkerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("worker id: %w", err)
		}
		*id = WorkerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("worker id: %w", err)
	}
	*id = WorkerID(n.String())
	return nil
}

func (id WorkerID) String() string {
	return string(id)
}

// Worker is a registered worker as returned by the backend.
type Worker struct {
	ID           WorkerID `json:"id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	Village      string   `json:"village"`
	PerDaySalary float64  `json:"per_day_salary"`
	Images       []string `json:"images"`
	Attendance   []string `json:"attendance"`
}

// UnmarshalJSON accepts "_id" for the identifier and "salary" for the daily wage,
// which some backend versions send instead of "id" and "per_day_salary".
func (w *Worker) UnmarshalJSON(data []byte) error {
	type plain Worker
	var raw struct {
		plain
		MongoID WorkerID        `json:"_id"`
		Salary  json.RawMessage `json:"salary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = Worker(raw.plain)
	if w.ID == "" {
		w.ID = raw.MongoID
	}
	if w.PerDaySalary == 0 && len(raw.Salary) > 0 {
		s := strings.Trim(string(raw.Salary), `"`)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			w.PerDaySalary = f
		}
	}
	return nil
}

// NewWorker is the registration payload.
type NewWorker struct {
	Name    string   `json:"name" validate:"required"`
	Phone   string   `json:"phone" validate:"required"`
	Village string   `json:"village" validate:"required"`
	Salary  int      `json:"salary" validate:"gt=0"`
	Images  []string `json:"images" validate:"min=1,dive,required"`
}

// WorkerUpdate is the edit payload. All fields are sent as they are.
type WorkerUpdate struct {
	Name         string   `json:"name" validate:"required"`
	Phone        string   `json:"phone" validate:"required"`
	Village      string   `json:"village" validate:"required"`
	PerDaySalary float64  `json:"per_day_salary" validate:"gte=0"`
	Images       []string `json:"images"`
}

// UpdateFrom returns an update payload carrying the worker's current values.
func UpdateFrom(w Worker) WorkerUpdate {
	return WorkerUpdate{
		Name:         w.Name,
		Phone:        w.Phone,
		Village:      w.Village,
		PerDaySalary: w.PerDaySalary,
		Images:       append([]string(nil), w.Images...),
	}
}

type uploadRequest struct {
	Image string `json:"image"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

type imageURLRequest struct {
	ImageURL string `json:"imageUrl"`
}

// IdentifyResponse is the server-side identification outcome.
type IdentifyResponse struct {
	Success  bool    `json:"success"`
	Worker   *Worker `json:"worker,omitempty"`
	Message  string  `json:"message,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

// AttendanceResponse is the body returned after recording attendance.
type AttendanceResponse struct {
	Message string  `json:"message"`
	Worker  *Worker `json:"worker,omitempty"`
}
