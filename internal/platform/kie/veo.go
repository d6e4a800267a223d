package kie

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
)

// VeoGatewayName identifies tasks submitted through the Kie Veo API.
const VeoGatewayName = "kie_veo"

const (
	veoGeneratePath = "/api/v1/veo/generate"
	veoExtendPath   = "/api/v1/veo/extend"
	veoRecordPath   = "/api/v1/veo/record-info"
)

// Veo record-info successFlag values.
const (
	veoFlagGenerating     = 0
	veoFlagSuccess        = 1
	veoFlagFailed         = 2
	veoFlagGenerateFailed = 3
)

type veoGenerateRequest struct {
	Prompt         string   `json:"prompt"`
	ImageURLs      []string `json:"imageUrls,omitempty"`
	Model          string   `json:"model,omitempty"`
	AspectRatio    string   `json:"aspectRatio,omitempty"`
	Seeds          *int     `json:"seeds,omitempty"`
	Watermark      string   `json:"watermark,omitempty"`
	CallBackURL    string   `json:"callBackUrl,omitempty"`
	EnableFallback bool     `json:"enableFallback,omitempty"`
}

type veoExtendRequest struct {
	TaskID      string `json:"taskId"`
	Prompt      string `json:"prompt"`
	Seeds       *int   `json:"seeds,omitempty"`
	Watermark   string `json:"watermark,omitempty"`
	CallBackURL string `json:"callBackUrl,omitempty"`
}

// veoRecord is the record-info document. Response carries the same result
// document (resultUrls, originUrls, resolution) as a callback's info.
type veoRecord struct {
	TaskID       string      `json:"taskId"`
	SuccessFlag  int         `json:"successFlag"`
	Response     rawDocument `json:"response"`
	ErrorCode    flexString  `json:"errorCode"`
	ErrorMessage string      `json:"errorMessage"`
}

type veoCallback struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string      `json:"taskId"`
		Info   rawDocument `json:"info"`
	} `json:"data"`
}

// VeoGateway submits video generation and extension requests to Kie's Veo API.
type VeoGateway struct {
	client *client
	model  string
}

// NewVeoGateway creates a VeoGateway. A nil httpClient uses http.DefaultClient.
func NewVeoGateway(cfg Config, httpClient *http.Client, logger *slog.Logger) (*VeoGateway, error) {
	c, err := newClient(VeoGatewayName, cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}
	return &VeoGateway{client: c, model: cfg.Model}, nil
}

// Name implements generation.Gateway.
func (g *VeoGateway) Name() string { return VeoGatewayName }

// Submit implements generation.Gateway.
func (g *VeoGateway) Submit(
	ctx context.Context,
	kind domain.GenerationKind,
	params domain.GenerationParameters,
	callbackURL string,
) (string, error) {
	if kind != domain.KindVideoGenerate {
		return "", fmt.Errorf("%w: %s cannot submit %s", generation.ErrUnsupported, VeoGatewayName, kind)
	}
	model := params.Model
	if model == "" {
		model = g.model
	}
	return g.client.submit(ctx, "submit", veoGeneratePath, veoGenerateRequest{
		Prompt:         params.Prompt,
		ImageURLs:      params.ImageURLs,
		Model:          model,
		AspectRatio:    params.AspectRatio,
		Seeds:          params.Seeds,
		Watermark:      params.Watermark,
		CallBackURL:    callbackURL,
		EnableFallback: params.EnableFallback,
	})
}

// Extend implements generation.Gateway.
func (g *VeoGateway) Extend(
	ctx context.Context,
	sourceProviderTaskID string,
	params domain.GenerationParameters,
	callbackURL string,
) (string, error) {
	if sourceProviderTaskID == "" {
		return "", fmt.Errorf("%w: extend requires a source task ID", generation.ErrSubmissionRejected)
	}
	return g.client.submit(ctx, "extend", veoExtendPath, veoExtendRequest{
		TaskID:      sourceProviderTaskID,
		Prompt:      params.Prompt,
		Seeds:       params.Seeds,
		Watermark:   params.Watermark,
		CallBackURL: callbackURL,
	})
}

// FetchStatus implements generation.Gateway.
func (g *VeoGateway) FetchStatus(ctx context.Context, providerTaskID string) (generation.Report, error) {
	var rec veoRecord
	path := veoRecordPath + "?taskId=" + url.QueryEscape(providerTaskID)
	if err := g.client.call(ctx, "status", http.MethodGet, path, nil, &rec); err != nil {
		return generation.Report{}, err
	}

	report := generation.Report{
		Code:           generation.CodeOK,
		ProviderTaskID: rec.TaskID,
	}
	switch rec.SuccessFlag {
	case veoFlagGenerating:
		report.State = generation.StateGenerating
	case veoFlagSuccess:
		report.State = generation.StateSuccess
		report.ResultJSON = rec.Response.String()
	case veoFlagFailed, veoFlagGenerateFailed:
		report.State = generation.StateFail
		report.FailCode = string(rec.ErrorCode)
		report.FailMessage = rec.ErrorMessage
	default:
		report.State = generation.StateFail
		report.FailCode = strconv.Itoa(rec.SuccessFlag)
		report.FailMessage = fmt.Sprintf("unexpected successFlag %d", rec.SuccessFlag)
	}
	return report, nil
}

// ParseCallback implements generation.Gateway. A Veo callback carries no
// nested state: code 200 means the video is ready, anything else is a failure
// described by msg.
func (g *VeoGateway) ParseCallback(body []byte) (generation.Report, error) {
	var cb veoCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return generation.Report{}, fmt.Errorf("%w: %v", generation.ErrInvalidCallback, err)
	}

	report := generation.Report{
		Code:           cb.Code,
		Message:        cb.Msg,
		ProviderTaskID: cb.Data.TaskID,
	}
	if cb.Code == generation.CodeOK {
		report.State = generation.StateSuccess
		report.ResultJSON = cb.Data.Info.String()
	} else {
		report.State = generation.StateFail
	}
	return report, nil
}
