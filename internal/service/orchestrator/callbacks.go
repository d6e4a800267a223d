package orchestrator

import (
	"crypto/subtle"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// CallbackPath is the route prefix providers call back on.
const CallbackPath = "/api/callbacks"

// CallbackURLs builds the per-task callback URLs handed to providers and
// checks the shared token they echo back.
type CallbackURLs struct {
	baseURL string
	token   string
}

// NewCallbackURLs creates a builder for callbacks under baseURL. An empty
// token disables the token check.
func NewCallbackURLs(baseURL, token string) *CallbackURLs {
	return &CallbackURLs{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// For returns the callback URL for a task submitted to provider.
func (c *CallbackURLs) For(provider string, correlationID uuid.UUID) string {
	u := c.baseURL + CallbackPath + "/" + url.PathEscape(provider) + "/" + correlationID.String()
	if c.token != "" {
		u += "?" + url.Values{"token": []string{c.token}}.Encode()
	}
	return u
}

// Verify reports whether token matches the configured one.
func (c *CallbackURLs) Verify(token string) bool {
	if c.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(c.token), []byte(token)) == 1
}
