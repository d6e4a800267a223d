// Package orchestrator drives generation tasks through their lifecycle.
//
// The Orchestrator owns every status transition: submission to a provider
// gateway, completion, failure and status polling. The Reconciler turns
// inbound provider callbacks into the same transitions. Each transition
// re-reads the task under its per-correlation lock and is a no-op once the
// task is terminal, so duplicated callbacks, retried requests and concurrent
// pollers never apply a transition twice. Events are published after the
// transition commits; a failed publish is logged and never undoes the write.
package orchestrator
