// Package domain defines the core entities of the generation service and the
// rules that govern their lifecycle. It has no dependencies on storage,
// transport or provider details.
package domain
