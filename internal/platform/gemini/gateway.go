package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
	"google.golang.org/genai"
)

// GatewayName identifies tasks submitted through the Gemini API.
const GatewayName = "gemini_veo"

// Config holds the Gemini gateway settings.
type Config struct {
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// videoModels is the subset of genai.Models used by the gateway.
type videoModels interface {
	GenerateVideos(
		ctx context.Context,
		model string,
		prompt string,
		image *genai.Image,
		config *genai.GenerateVideosConfig,
	) (*genai.GenerateVideosOperation, error)
}

// videoOperations is the subset of genai.Operations used by the gateway.
type videoOperations interface {
	GetVideosOperation(
		ctx context.Context,
		operation *genai.GenerateVideosOperation,
		config *genai.GetOperationConfig,
	) (*genai.GenerateVideosOperation, error)
}

// VeoGateway submits Veo generation requests as Gemini long-running operations.
type VeoGateway struct {
	models     videoModels
	operations videoOperations
	model      string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewVeoGateway creates a VeoGateway backed by a Gemini API client.
func NewVeoGateway(ctx context.Context, cfg Config, logger *slog.Logger) (*VeoGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newVeoGateway(client.Models, client.Operations, cfg, logger), nil
}

func newVeoGateway(models videoModels, ops videoOperations, cfg Config, logger *slog.Logger) *VeoGateway {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &VeoGateway{
		models:     models,
		operations: ops,
		model:      cfg.Model,
		timeout:    timeout,
		logger:     logger.With("component", GatewayName+"_gateway"),
	}
}

// Name implements generation.Gateway.
func (g *VeoGateway) Name() string { return GatewayName }

// Submit implements generation.Gateway. The callback URL is ignored.
func (g *VeoGateway) Submit(
	ctx context.Context,
	kind domain.GenerationKind,
	params domain.GenerationParameters,
	_ string,
) (string, error) {
	if kind != domain.KindVideoGenerate {
		return "", fmt.Errorf("%w: %s cannot submit %s", generation.ErrUnsupported, GatewayName, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	model := params.Model
	if model == "" {
		model = g.model
	}

	var image *genai.Image
	for _, u := range params.ImageURLs {
		if strings.HasPrefix(u, "gs://") {
			image = &genai.Image{GCSURI: u}
			break
		}
	}

	op, err := g.models.GenerateVideos(ctx, model, params.Prompt, image, &genai.GenerateVideosConfig{
		AspectRatio:    params.AspectRatio,
		NegativePrompt: params.NegativePrompt,
		NumberOfVideos: 1,
	})
	if err != nil {
		return "", g.classify("submit", err)
	}
	if op == nil || op.Name == "" {
		return "", generation.NewProviderError(GatewayName, "submit", 0, "malformed_response", "operation has no name")
	}

	g.logger.DebugContext(ctx, "video operation started", "operation", op.Name, "model", model)
	return op.Name, nil
}

// Extend implements generation.Gateway; the Gemini API cannot extend videos.
func (g *VeoGateway) Extend(context.Context, string, domain.GenerationParameters, string) (string, error) {
	return "", fmt.Errorf("%w: %s does not support extend", generation.ErrUnsupported, GatewayName)
}

// FetchStatus implements generation.Gateway.
func (g *VeoGateway) FetchStatus(ctx context.Context, providerTaskID string) (generation.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	op, err := g.operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: providerTaskID}, nil)
	if err != nil {
		return generation.Report{}, g.classify("status", err)
	}
	return operationReport(providerTaskID, op), nil
}

// ParseCallback implements generation.Gateway; Gemini never calls back.
func (g *VeoGateway) ParseCallback([]byte) (generation.Report, error) {
	return generation.Report{}, fmt.Errorf("%w: %s does not deliver callbacks", generation.ErrInvalidCallback, GatewayName)
}

func operationReport(providerTaskID string, op *genai.GenerateVideosOperation) generation.Report {
	report := generation.Report{Code: generation.CodeOK, ProviderTaskID: providerTaskID}
	if op == nil || !op.Done {
		report.State = generation.StateGenerating
		return report
	}

	if op.Error != nil {
		report.State = generation.StateFail
		report.FailCode = fmt.Sprint(op.Error["code"])
		if msg, ok := op.Error["message"].(string); ok {
			report.FailMessage = msg
		}
		return report
	}

	var urls []string
	if op.Response != nil {
		for _, v := range op.Response.GeneratedVideos {
			if v != nil && v.Video != nil && v.Video.URI != "" {
				urls = append(urls, v.Video.URI)
			}
		}
	}
	if len(urls) == 0 {
		report.State = generation.StateFail
		report.FailMessage = "no videos generated"
		return report
	}

	result, _ := json.Marshal(map[string][]string{"resultUrls": urls})
	report.State = generation.StateSuccess
	report.ResultJSON = string(result)
	return report
}

func (g *VeoGateway) classify(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return generation.Unavailable(GatewayName, op, err)
	}
	return generation.NewProviderError(GatewayName, op, 0, "api_error", err.Error())
}
