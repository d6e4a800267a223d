package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Config holds the connection settings shared by the Kie gateways.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	Model          string
}

// envelope is the response wrapper used by every Kie endpoint.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type taskIDData struct {
	TaskID string `json:"taskId"`
}

// flexString decodes a JSON string or number as a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// rawDocument holds an embedded result document that providers send either
// as an encoded JSON string or inline as a JSON value. It is kept undecoded so
// that a document of unexpected shape never fails the surrounding envelope.
type rawDocument []byte

func (d *rawDocument) UnmarshalJSON(b []byte) error {
	*d = append((*d)[:0], b...)
	return nil
}

// String returns the document text. A JSON string is unquoted; null or an
// absent field yields "".
func (d rawDocument) String() string {
	raw := bytes.TrimSpace(d)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// client performs authenticated JSON calls against the Kie API.
type client struct {
	name       string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func newClient(name string, cfg Config, httpClient *http.Client, log *slog.Logger) (*client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("kie API key cannot be empty")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("kie base URL cannot be empty")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     log.With("component", name+"_gateway"),
	}, nil
}

// call sends a request and decodes the envelope's data into out. op names the
// operation for error reporting.
func (c *client) call(ctx context.Context, op, method, path string, body, out any) error {
	log := logger.FromContextOrDefault(ctx, c.logger)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WarnContext(ctx, "provider request failed",
			"provider", c.name,
			"operation", op,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return generation.Unavailable(c.name, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return generation.Unavailable(c.name, op, err)
	}

	log.DebugContext(ctx, "provider response",
		"provider", c.name,
		"operation", op,
		"http_status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && env.Msg != "" {
			msg = env.Msg
		}
		return generation.NewProviderError(c.name, op, resp.StatusCode, strconv.Itoa(resp.StatusCode), msg)
	}
	if decodeErr != nil {
		return generation.NewProviderError(c.name, op, resp.StatusCode, "malformed_response", decodeErr.Error())
	}
	if env.Code != generation.CodeOK {
		return generation.NewProviderError(c.name, op, 0, strconv.Itoa(env.Code), env.Msg)
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return generation.NewProviderError(c.name, op, 0, "malformed_response", "response has no data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return generation.NewProviderError(c.name, op, 0, "malformed_response", err.Error())
	}
	return nil
}

// submit posts body to path and returns the taskId the provider assigned.
func (c *client) submit(ctx context.Context, op, path string, body any) (string, error) {
	var data taskIDData
	if err := c.call(ctx, op, http.MethodPost, path, body, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", generation.NewProviderError(c.name, op, 0, "malformed_response", "response has no taskId")
	}
	return data.TaskID, nil
}
