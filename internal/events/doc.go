// Package events defines the domain events emitted over a generation task's
// lifecycle and the interfaces used to publish them.
//
// Events are fire-and-forget from the publisher's perspective: delivery is
// at-least-once and consumers are expected to be idempotent. Each event has a
// deterministic ID derived from its correlation ID and type, so a bus with
// de-duplication discards accidental re-publishes.
//
// The primary components are:
//   - Event: the envelope carried on the bus
//   - GenerationStarted, GenerationCompleted, GenerationFailed: payloads
//   - EventEmitter: interface for components that publish events
//   - EventHandler: interface for in-process consumers
package events
