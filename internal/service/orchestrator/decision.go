package orchestrator

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
)

// Outcome is what a provider report means for a task.
type Outcome int

const (
	// OutcomePending means the provider is still working; nothing changes.
	OutcomePending Outcome = iota
	// OutcomeCompleted means the task succeeded.
	OutcomeCompleted
	// OutcomeFailed means the task failed.
	OutcomeFailed
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Decision is the transition a report calls for.
type Decision struct {
	Outcome Outcome
	// Result is set for OutcomeCompleted.
	Result domain.ResultPayload
	// MalformedResult reports that the embedded result document could not be
	// parsed and Result was left empty.
	MalformedResult bool
	// ErrorCode and ErrorMessage are set for OutcomeFailed.
	ErrorCode    string
	ErrorMessage string
}

// Completed returns a completion decision.
func Completed(result domain.ResultPayload) Decision {
	return Decision{Outcome: OutcomeCompleted, Result: result}
}

// Failed returns a failure decision.
func Failed(code, message string) Decision {
	if code == "" && message == "" {
		message = unknownErrorMessage
	}
	return Decision{Outcome: OutcomeFailed, ErrorCode: code, ErrorMessage: message}
}

const unknownErrorMessage = "unknown error"

// Decide maps a provider report onto a decision. Success needs both the ok
// top-level code and the success task state; ok with a still-running state
// changes nothing; every other combination, including ok with the fail
// state, is a failure.
func Decide(r generation.Report) Decision {
	if r.Code == generation.CodeOK {
		switch r.State {
		case generation.StateSuccess:
			result, ok := parseResult(r.ResultJSON)
			d := Completed(result)
			d.MalformedResult = !ok
			return d
		case generation.StateWaiting, generation.StateQueuing, generation.StateGenerating:
			return Decision{Outcome: OutcomePending}
		}
	}

	code := strings.TrimSpace(r.FailCode)
	if code == "" && r.Code != generation.CodeOK && r.Code != 0 {
		code = strconv.Itoa(r.Code)
	}
	message := firstNonEmpty(r.FailMessage, r.Message, unknownErrorMessage)
	return Failed(code, message)
}

// resultDocument is the provider's embedded result JSON.
type resultDocument struct {
	ResultURLs []string `json:"resultUrls"`
	OriginURLs []string `json:"originUrls"`
	Resolution string   `json:"resolution"`
}

// parseResult decodes the embedded result. An empty document yields an empty
// result; a malformed one yields an empty result and false.
func parseResult(raw string) (domain.ResultPayload, bool) {
	empty := domain.ResultPayload{ResultURLs: []string{}}
	if strings.TrimSpace(raw) == "" {
		return empty, true
	}
	var doc resultDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return empty, false
	}
	if doc.ResultURLs == nil {
		doc.ResultURLs = []string{}
	}
	return domain.ResultPayload{
		ResultURLs: doc.ResultURLs,
		OriginURLs: doc.OriginURLs,
		Resolution: doc.Resolution,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
