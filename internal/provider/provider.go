// Package provider normalizes heterogeneous vendor generation APIs into one
// submit/poll/cancel contract.
package provider

import (
	"context"
	"errors"
	"fmt"

	"bermybanana/api/internal/models"
)

// Request is the vendor-neutral generation request.
type Request struct {
	Mode models.GenerationMode
	// Prompt drives text-to-image and text-to-video generation.
	Prompt string
	// ReferenceImageURL, when set, switches video generation to image-to-video.
	ReferenceImageURL string
	// Pro selects the vendor's higher-quality pipeline where one exists.
	Pro bool
}

// TaskHandle identifies a remote task for later polling or cancellation.
type TaskHandle struct {
	Provider string
	TaskID   string
	// Kind carries vendor routing state (e.g. which Kling endpoint family
	// created the task) that the adapter needs back on poll.
	Kind string
}

type State string

const (
	StateSubmitted  State = "submitted"
	StateProcessing State = "processing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Progress is one observation of a remote task.
type Progress struct {
	State      State
	OutputURL  string
	OutputType models.OutputType
	Message    string
}

var ErrCancelNotSupported = errors.New("provider does not support cancellation")

// VendorError retains the vendor's own error code and message for logging;
// callers surface it to end users as a generic provider failure.
type VendorError struct {
	Provider   string
	Code       string
	Message    string
	HTTPStatus int
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%s: vendor error %s (http %d): %s", e.Provider, e.Code, e.HTTPStatus, e.Message)
}

// Adapter is the uniform contract every vendor integration implements.
// Submit and Poll are single HTTP exchanges; the caller owns the polling
// cadence and budget. Cancel aborts the remote task itself and is never
// invoked implicitly.
type Adapter interface {
	Name() string
	Submit(ctx context.Context, req Request) (TaskHandle, error)
	Poll(ctx context.Context, handle TaskHandle) (Progress, error)
	Cancel(ctx context.Context, handle TaskHandle) error
}

// Registry holds the configured adapters keyed by provider name.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

var ErrUnknownProvider = errors.New("unknown provider")

func (r *Registry) Get(name string) (Adapter, error) {
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return adapter, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
