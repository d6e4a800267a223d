package kie

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
)

// ImageGatewayName identifies tasks submitted through the Kie jobs API.
const ImageGatewayName = "kie_image"

const (
	jobsCreatePath = "/api/v1/jobs/createTask"
	jobsRecordPath = "/api/v1/jobs/recordInfo"
)

type imageInput struct {
	Prompt       string   `json:"prompt"`
	ImageURLs    []string `json:"image_urls,omitempty"`
	AspectRatio  string   `json:"aspect_ratio,omitempty"`
	Resolution   string   `json:"resolution,omitempty"`
	OutputFormat string   `json:"output_format,omitempty"`
}

type createTaskRequest struct {
	Model       string     `json:"model"`
	CallBackURL string     `json:"callBackUrl,omitempty"`
	Input       imageInput `json:"input"`
}

// jobRecord is the task document returned by recordInfo and posted in callbacks.
type jobRecord struct {
	TaskID     string      `json:"taskId"`
	State      string      `json:"state"`
	ResultJSON rawDocument `json:"resultJson"`
	FailCode   flexString  `json:"failCode"`
	FailMsg    string      `json:"failMsg"`
}

func (r jobRecord) report(code int, msg string) generation.Report {
	return generation.Report{
		Code:           code,
		Message:        msg,
		ProviderTaskID: r.TaskID,
		State:          r.State,
		ResultJSON:     r.ResultJSON.String(),
		FailCode:       string(r.FailCode),
		FailMessage:    r.FailMsg,
	}
}

// ImageGateway submits image generation jobs to Kie's jobs API.
type ImageGateway struct {
	client *client
	model  string
}

// NewImageGateway creates an ImageGateway. A nil httpClient uses http.DefaultClient.
func NewImageGateway(cfg Config, httpClient *http.Client, logger *slog.Logger) (*ImageGateway, error) {
	c, err := newClient(ImageGatewayName, cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}
	return &ImageGateway{client: c, model: cfg.Model}, nil
}

// Name implements generation.Gateway.
func (g *ImageGateway) Name() string { return ImageGatewayName }

// Submit implements generation.Gateway.
func (g *ImageGateway) Submit(
	ctx context.Context,
	kind domain.GenerationKind,
	params domain.GenerationParameters,
	callbackURL string,
) (string, error) {
	if kind != domain.KindImageGenerate {
		return "", fmt.Errorf("%w: %s cannot submit %s", generation.ErrUnsupported, ImageGatewayName, kind)
	}
	model := params.Model
	if model == "" {
		model = g.model
	}
	return g.client.submit(ctx, "submit", jobsCreatePath, createTaskRequest{
		Model:       model,
		CallBackURL: callbackURL,
		Input: imageInput{
			Prompt:       params.Prompt,
			ImageURLs:    params.ImageURLs,
			AspectRatio:  params.AspectRatio,
			Resolution:   params.Resolution,
			OutputFormat: params.OutputFormat,
		},
	})
}

// Extend implements generation.Gateway; images cannot be extended.
func (g *ImageGateway) Extend(context.Context, string, domain.GenerationParameters, string) (string, error) {
	return "", fmt.Errorf("%w: %s does not support extend", generation.ErrUnsupported, ImageGatewayName)
}

// FetchStatus implements generation.Gateway.
func (g *ImageGateway) FetchStatus(ctx context.Context, providerTaskID string) (generation.Report, error) {
	var rec jobRecord
	path := jobsRecordPath + "?taskId=" + url.QueryEscape(providerTaskID)
	if err := g.client.call(ctx, "status", http.MethodGet, path, nil, &rec); err != nil {
		return generation.Report{}, err
	}
	return rec.report(generation.CodeOK, ""), nil
}

// ParseCallback implements generation.Gateway.
func (g *ImageGateway) ParseCallback(body []byte) (generation.Report, error) {
	var cb struct {
		Code int       `json:"code"`
		Msg  string    `json:"msg"`
		Data jobRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &cb); err != nil {
		return generation.Report{}, fmt.Errorf("%w: %v", generation.ErrInvalidCallback, err)
	}
	return cb.Data.report(cb.Code, cb.Msg), nil
}
