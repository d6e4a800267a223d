// Package kie implements generation.Gateway over the Kie HTTP API: Veo video
// generation and extension, and the jobs API used for image generation.
//
// All requests authenticate with a bearer API key and are answered with the
// envelope {code, msg, data}. A transport failure or timeout is reported as
// generation.ErrProviderUnavailable; any other non-success answer becomes a
// *generation.ProviderError.
package kie
