// Package natsbus publishes generation lifecycle events to a NATS JetStream
// stream. Each message carries the event ID as its Nats-Msg-Id header, so the
// stream's duplicate window drops re-published events.
package natsbus
