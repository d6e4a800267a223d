package generation

import (
	"context"

	"github.com/phrazzld/genflow/internal/domain"
)

// CodeOK is the top-level code providers use for an accepted response.
const CodeOK = 200

// Per-task states reported by providers.
const (
	StateWaiting    = "waiting"
	StateQueuing    = "queuing"
	StateGenerating = "generating"
	StateSuccess    = "success"
	StateFail       = "fail"
)

// Report is a provider's account of a task, normalized from either a callback
// body or a status response.
type Report struct {
	// Code is the provider's top-level status code.
	Code int
	// Message is the provider's top-level message.
	Message string
	// ProviderTaskID is the handle the report refers to; may be empty.
	ProviderTaskID string
	// State is the nested per-task state.
	State string
	// ResultJSON is the embedded result document, e.g. {"resultUrls":[...]}.
	ResultJSON string
	// FailCode and FailMessage describe a per-task failure.
	FailCode    string
	FailMessage string
}

// InProgress reports whether the provider is still working on the task.
func (r Report) InProgress() bool {
	if r.Code != CodeOK {
		return false
	}
	switch r.State {
	case StateWaiting, StateQueuing, StateGenerating:
		return true
	default:
		return false
	}
}

// Gateway is a synchronous adapter to one provider. Implementations are
// stateless and safe for concurrent use. Each call carries its own timeout;
// exceeding it yields ErrProviderUnavailable.
type Gateway interface {
	// Name identifies the gateway; it is stored on tasks and used to route callbacks.
	Name() string

	// Submit sends a generation request and returns the provider's task handle.
	Submit(
		ctx context.Context,
		kind domain.GenerationKind,
		params domain.GenerationParameters,
		callbackURL string,
	) (string, error)

	// Extend continues a previously generated video and returns the new task handle.
	Extend(
		ctx context.Context,
		sourceProviderTaskID string,
		params domain.GenerationParameters,
		callbackURL string,
	) (string, error)

	// FetchStatus retrieves the provider's current view of a task.
	FetchStatus(ctx context.Context, providerTaskID string) (Report, error)

	// ParseCallback decodes an inbound callback body into a Report.
	ParseCallback(body []byte) (Report, error)
}
