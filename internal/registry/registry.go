// Package registry registers, edits and removes workers through the backend.
package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kozaktomas/worker-attendance/internal/backend"
	"github.com/kozaktomas/worker-attendance/internal/capture"
	"github.com/kozaktomas/worker-attendance/internal/identify"
	"github.com/kozaktomas/worker-attendance/internal/logging"
	"github.com/sirupsen/logrus"
)

// ErrValidation is returned when a form or update payload is incomplete.
var ErrValidation = errors.New("validation failed")

// Backend is the part of the backend client the registry uses.
type Backend interface {
	UploadImage(ctx context.Context, dataURL string) (string, error)
	CreateWorker(ctx context.Context, w backend.NewWorker) (*backend.Worker, error)
	ListWorkers(ctx context.Context) ([]backend.Worker, error)
	GetWorker(ctx context.Context, id backend.WorkerID) (*backend.Worker, error)
	UpdateWorker(ctx context.Context, id backend.WorkerID, u backend.WorkerUpdate) (*backend.Worker, error)
	DeleteWorker(ctx context.Context, id backend.WorkerID) error
}

// Form is the registration form without photos.
type Form struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Village string `json:"village" validate:"required"`
	Salary  int    `json:"salary" validate:"gt=0"`
}

type Registry struct {
	backend      Backend
	validate     *validator.Validate
	maxUploadDim int
	log          logrus.FieldLogger
}

// New creates a registry. Frames larger than maxUploadDim are downscaled before upload; 0 disables it.
func New(b Backend, maxUploadDim int, log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	return &Registry{
		backend:      b,
		validate:     NewValidator(),
		maxUploadDim: maxUploadDim,
		log:          log,
	}
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a payload and returns an ErrValidation listing every failing field.
func (r *Registry) Validate(v any) error {
	err := r.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " needs at least " + fe.Param() + " item(s)"
		}
		return field + " must be at least " + fe.Param()
	default:
		return field + " is invalid (" + fe.Tag() + ")"
	}
}

// Register validates the form, uploads every frame and creates the worker.
// Nothing is uploaded when the form is invalid.
func (r *Registry) Register(ctx context.Context, form Form, frames []*capture.Frame) (*backend.Worker, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Phone = strings.TrimSpace(form.Phone)
	form.Village = strings.TrimSpace(form.Village)

	if err := r.Validate(form); err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: capture at least one image", ErrValidation)
	}

	urls := make([]string, 0, len(frames))
	for i, frame := range frames {
		if frame == nil {
			return nil, fmt.Errorf("%w: image %d is empty", ErrValidation, i+1)
		}
		u, err := identify.UploadFrame(ctx, r.backend, frame, r.maxUploadDim)
		if err != nil {
			return nil, fmt.Errorf("uploading image %d: %w", i+1, err)
		}
		urls = append(urls, u)
	}

	nw := backend.NewWorker{
		Name:    form.Name,
		Phone:   form.Phone,
		Village: form.Village,
		Salary:  form.Salary,
		Images:  urls,
	}
	if err := r.Validate(nw); err != nil {
		return nil, err
	}

	worker, err := r.backend.CreateWorker(ctx, nw)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logging.Fields{
		"worker": worker.ID,
		"name":   worker.Name,
		"images": len(urls),
	}).Info("worker registered")
	return worker, nil
}

// Update validates and stores an edit payload.
func (r *Registry) Update(ctx context.Context, id backend.WorkerID, u backend.WorkerUpdate) (*backend.Worker, error) {
	if err := r.Validate(u); err != nil {
		return nil, err
	}
	worker, err := r.backend.UpdateWorker(ctx, id, u)
	if err != nil {
		return nil, err
	}
	r.log.WithField("worker", id).Info("worker updated")
	return worker, nil
}

// Edit loads the worker, applies change to its current values and stores the result.
func (r *Registry) Edit(ctx context.Context, id backend.WorkerID, change func(*backend.WorkerUpdate)) (*backend.Worker, error) {
	current, err := r.backend.GetWorker(ctx, id)
	if err != nil {
		return nil, err
	}
	u := backend.UpdateFrom(*current)
	change(&u)
	return r.Update(ctx, id, u)
}

// AddPhotos uploads frames and appends them to the worker's reference photos.
func (r *Registry) AddPhotos(ctx context.Context, id backend.WorkerID, frames []*capture.Frame) (*backend.Worker, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: capture at least one image", ErrValidation)
	}
	urls := make([]string, 0, len(frames))
	for i, frame := range frames {
		u, err := identify.UploadFrame(ctx, r.backend, frame, r.maxUploadDim)
		if err != nil {
			return nil, fmt.Errorf("uploading image %d: %w", i+1, err)
		}
		urls = append(urls, u)
	}
	return r.Edit(ctx, id, func(u *backend.WorkerUpdate) {
		u.Images = append(u.Images, urls...)
	})
}

func (r *Registry) Delete(ctx context.Context, id backend.WorkerID) error {
	if err := r.backend.DeleteWorker(ctx, id); err != nil {
		return err
	}
	r.log.WithField("worker", id).Info("worker deleted")
	return nil
}

func (r *Registry) List(ctx context.Context) ([]backend.Worker, error) {
	return r.backend.ListWorkers(ctx)
}

// Search returns workers whose name, village or phone contains query. Letter case and
// diacritics are ignored. An empty query returns every worker.
func (r *Registry) Search(ctx context.Context, query string) ([]backend.Worker, error) {
	workers, err := r.backend.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(workers, query), nil
}

// Filter is Search over an already loaded worker list.
func Filter(workers []backend.Worker, query string) []backend.Worker {
	q := NormalizeName(query)
	if q == "" {
		return workers
	}
	var out []backend.Worker
	for _, w := range workers {
		if strings.Contains(NormalizeName(w.Name), q) ||
			strings.Contains(NormalizeName(w.Village), q) ||
			strings.Contains(w.Phone, strings.TrimSpace(query)) {
			out = append(out, w)
		}
	}
	return out
}
