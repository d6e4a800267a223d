// Package api handles incoming HTTP requests for generation tasks and
// provider callbacks. It translates requests into orchestrator operations and
// maps their errors to status codes without leaking internal details.
package api
