package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
)

// MockGateway implements generation.Gateway for testing
type MockGateway struct {
	// GatewayName is returned by Name; defaults to "mock".
	GatewayName string

	// Function fields for customizable behavior
	SubmitFn func(
		ctx context.Context,
		kind domain.GenerationKind,
		params domain.GenerationParameters,
		callbackURL string,
	) (string, error)
	ExtendFn func(
		ctx context.Context,
		sourceProviderTaskID string,
		params domain.GenerationParameters,
		callbackURL string,
	) (string, error)
	FetchStatusFn   func(ctx context.Context, providerTaskID string) (generation.Report, error)
	ParseCallbackFn func(body []byte) (generation.Report, error)

	// Default response values
	ProviderTaskID string
	Report         generation.Report
	Err            error

	// Call tracking for verification
	mu                sync.Mutex
	SubmitCalls       int
	ExtendCalls       int
	FetchStatusCalls  int
	CallbackURLs      []string
	ExtendSourceIDs   []string
	FetchedProviderID []string
}

// Name implements generation.Gateway
func (m *MockGateway) Name() string {
	if m.GatewayName == "" {
		return "mock"
	}
	return m.GatewayName
}

// Submit implements generation.Gateway
func (m *MockGateway) Submit(
	ctx context.Context,
	kind domain.GenerationKind,
	params domain.GenerationParameters,
	callbackURL string,
) (string, error) {
	m.mu.Lock()
	m.SubmitCalls++
	n := m.SubmitCalls
	m.CallbackURLs = append(m.CallbackURLs, callbackURL)
	m.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, kind, params, callbackURL)
	}
	if m.Err != nil {
		return "", m.Err
	}
	if m.ProviderTaskID != "" {
		return m.ProviderTaskID, nil
	}
	return fmt.Sprintf("mock-task-%d", n), nil
}

// Extend implements generation.Gateway
func (m *MockGateway) Extend(
	ctx context.Context,
	sourceProviderTaskID string,
	params domain.GenerationParameters,
	callbackURL string,
) (string, error) {
	m.mu.Lock()
	m.ExtendCalls++
	n := m.ExtendCalls
	m.ExtendSourceIDs = append(m.ExtendSourceIDs, sourceProviderTaskID)
	m.CallbackURLs = append(m.CallbackURLs, callbackURL)
	m.mu.Unlock()

	if m.ExtendFn != nil {
		return m.ExtendFn(ctx, sourceProviderTaskID, params, callbackURL)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return fmt.Sprintf("mock-extend-%d", n), nil
}

// FetchStatus implements generation.Gateway
func (m *MockGateway) FetchStatus(ctx context.Context, providerTaskID string) (generation.Report, error) {
	m.mu.Lock()
	m.FetchStatusCalls++
	m.FetchedProviderID = append(m.FetchedProviderID, providerTaskID)
	m.mu.Unlock()

	if m.FetchStatusFn != nil {
		return m.FetchStatusFn(ctx, providerTaskID)
	}
	if m.Err != nil {
		return generation.Report{}, m.Err
	}
	report := m.Report
	if report.ProviderTaskID == "" {
		report.ProviderTaskID = providerTaskID
	}
	return report, nil
}

// ParseCallback implements generation.Gateway. By default it decodes the
// generic callback shape {code, msg, data:{taskId, state, resultJson, failCode, failMsg}}.
func (m *MockGateway) ParseCallback(body []byte) (generation.Report, error) {
	if m.ParseCallbackFn != nil {
		return m.ParseCallbackFn(body)
	}
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			TaskID     string `json:"taskId"`
			State      string `json:"state"`
			ResultJSON string `json:"resultJson"`
			FailCode   string `json:"failCode"`
			FailMsg    string `json:"failMsg"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return generation.Report{}, fmt.Errorf("%w: %v", generation.ErrInvalidCallback, err)
	}
	return generation.Report{
		Code:           payload.Code,
		Message:        payload.Msg,
		ProviderTaskID: payload.Data.TaskID,
		State:          payload.Data.State,
		ResultJSON:     payload.Data.ResultJSON,
		FailCode:       payload.Data.FailCode,
		FailMessage:    payload.Data.FailMsg,
	}, nil
}

// Calls returns the number of Submit, Extend and FetchStatus calls.
func (m *MockGateway) Calls() (submit, extend, fetch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SubmitCalls, m.ExtendCalls, m.FetchStatusCalls
}
