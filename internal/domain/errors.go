package domain

import "errors"

// Validation errors for generation tasks.
var (
	// ErrEmptyCorrelationID is returned when a task is created without a correlation ID.
	ErrEmptyCorrelationID = errors.New("correlation ID cannot be empty")

	// ErrEmptyUserID is returned when a task is created without an owner.
	ErrEmptyUserID = errors.New("user ID cannot be empty")

	// ErrInvalidKind is returned for an unknown generation kind.
	ErrInvalidKind = errors.New("invalid generation kind")

	// ErrInvalidStatus is returned for an unknown task status.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrEmptyPrompt is returned when a generation request carries no prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrMissingParent is returned when an extend task has no parent correlation.
	ErrMissingParent = errors.New("extend task requires a parent correlation ID")

	// ErrInconsistentTask is returned when the result/error fields disagree with the status.
	ErrInconsistentTask = errors.New("task fields inconsistent with status")
)

// Lifecycle errors returned by the transition methods.
var (
	// ErrTaskTerminal is returned when a transition is attempted on a completed or failed task.
	ErrTaskTerminal = errors.New("task is already in a terminal state")

	// ErrInvalidTransition is returned when the requested transition is not part of the graph.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrProviderTaskIDImmutable is returned when a different provider task ID
	// is assigned to a task that already has one.
	ErrProviderTaskIDImmutable = errors.New("provider task ID is already set")

	// ErrEmptyProviderTaskID is returned when a submission is acknowledged without an ID.
	ErrEmptyProviderTaskID = errors.New("provider task ID cannot be empty")
)
