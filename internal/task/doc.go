// Package task runs background work for the service. Its PollRunner is the
// fallback for provider callbacks that never arrive: it periodically asks the
// provider for the status of tasks that have waited too long and feeds the
// answers through the orchestrator like a callback.
package task
