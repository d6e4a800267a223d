// Package gemini implements generation.Gateway for Veo video generation
// through the Gemini API (google.golang.org/genai).
//
// Gemini exposes generation as long-running operations and never calls back,
// so tasks submitted here complete through status polling. The operation name
// serves as the provider task handle.
package gemini
