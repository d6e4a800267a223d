// Package generation defines the boundary between the orchestration core and
// external generative media providers (Veo video, Kie image, Gemini Veo).
//
// A Gateway submits work and fetches status by provider task handle; it never
// mutates task state. Every provider response, whether it arrives as the reply
// to a status poll or as an inbound callback, is normalized into a Report so
// that a single decision policy applies to both paths.
package generation
