package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// SubmitVideoRequest defines the payload for POST /api/generations/videos.
type SubmitVideoRequest struct {
	// CorrelationID is generated by the client and reused on retries.
	CorrelationID  string   `json:"correlation_id"            validate:"required,uuid"`
	Prompt         string   `json:"prompt"                    validate:"required,max=5000"`
	Model          string   `json:"model,omitempty"           validate:"omitempty,max=64"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"    validate:"omitempty,oneof=16:9 9:16 Auto"`
	Seeds          *int     `json:"seeds,omitempty"           validate:"omitempty,gte=10000,lte=99999"`
	Watermark      string   `json:"watermark,omitempty"       validate:"omitempty,max=100"`
	ImageURLs      []string `json:"image_urls,omitempty"      validate:"omitempty,max=2,dive,url"`
	EnableFallback bool     `json:"enable_fallback,omitempty"`
}

// Parameters converts the request into the stored generation parameters.
func (r SubmitVideoRequest) Parameters() domain.GenerationParameters {
	return domain.GenerationParameters{
		Prompt:         r.Prompt,
		Model:          r.Model,
		AspectRatio:    r.AspectRatio,
		Seeds:          r.Seeds,
		Watermark:      r.Watermark,
		ImageURLs:      r.ImageURLs,
		EnableFallback: r.EnableFallback,
	}
}

// SubmitImageRequest defines the payload for POST /api/generations/images.
type SubmitImageRequest struct {
	CorrelationID  string   `json:"correlation_id"            validate:"required,uuid"`
	Prompt         string   `json:"prompt"                    validate:"required,max=5000"`
	Model          string   `json:"model,omitempty"           validate:"omitempty,max=64"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"    validate:"omitempty,max=16"`
	Resolution     string   `json:"resolution,omitempty"      validate:"omitempty,oneof=1K 2K 4K"`
	OutputFormat   string   `json:"output_format,omitempty"   validate:"omitempty,oneof=png jpg jpeg webp"`
	NegativePrompt string   `json:"negative_prompt,omitempty" validate:"omitempty,max=2000"`
	ImageURLs      []string `json:"image_urls,omitempty"      validate:"omitempty,max=8,dive,url"`
}

// Parameters converts the request into the stored generation parameters.
func (r SubmitImageRequest) Parameters() domain.GenerationParameters {
	return domain.GenerationParameters{
		Prompt:         r.Prompt,
		Model:          r.Model,
		AspectRatio:    r.AspectRatio,
		Resolution:     r.Resolution,
		OutputFormat:   r.OutputFormat,
		NegativePrompt: r.NegativePrompt,
		ImageURLs:      r.ImageURLs,
	}
}

// ExtendVideoRequest defines the payload for
// POST /api/generations/videos/{correlationID}/extend.
type ExtendVideoRequest struct {
	// CorrelationID identifies the extension, not the source video.
	CorrelationID string `json:"correlation_id"      validate:"required,uuid"`
	Prompt        string `json:"prompt"              validate:"required,max=5000"`
	Seeds         *int   `json:"seeds,omitempty"     validate:"omitempty,gte=10000,lte=99999"`
	Watermark     string `json:"watermark,omitempty" validate:"omitempty,max=100"`
}

// Parameters converts the request into the stored generation parameters.
func (r ExtendVideoRequest) Parameters() domain.GenerationParameters {
	return domain.GenerationParameters{
		Prompt:    r.Prompt,
		Seeds:     r.Seeds,
		Watermark: r.Watermark,
	}
}

// GenerationResult is the output of a completed generation.
type GenerationResult struct {
	ResultURLs []string `json:"result_urls"`
	OriginURLs []string `json:"origin_urls,omitempty"`
	Resolution string   `json:"resolution,omitempty"`
}

// GenerationError describes why a generation failed.
type GenerationError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// GenerationResponse is the client view of a generation task.
type GenerationResponse struct {
	CorrelationID       string            `json:"correlation_id"`
	ParentCorrelationID string            `json:"parent_correlation_id,omitempty"`
	Kind                string            `json:"kind"`
	Status              string            `json:"status"`
	Provider            string            `json:"provider,omitempty"`
	Result              *GenerationResult `json:"result,omitempty"`
	Error               *GenerationError  `json:"error,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	SubmittedAt         *time.Time        `json:"submitted_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
}

// CallbackAck is the body of every provider callback response.
type CallbackAck struct {
	Status string `json:"status"`
}

// generationToResponse converts a domain.GenerationTask to a GenerationResponse.
func generationToResponse(task *domain.GenerationTask) GenerationResponse {
	resp := GenerationResponse{
		CorrelationID: task.CorrelationID.String(),
		Kind:          string(task.Kind),
		Status:        string(task.Status),
		Provider:      task.Provider,
		CreatedAt:     task.CreatedAt,
		UpdatedAt:     task.UpdatedAt,
		SubmittedAt:   task.SubmittedAt,
		CompletedAt:   task.CompletedAt,
	}
	if task.ParentCorrelationID != nil && *task.ParentCorrelationID != uuid.Nil {
		resp.ParentCorrelationID = task.ParentCorrelationID.String()
	}
	if task.Result != nil {
		resp.Result = &GenerationResult{
			ResultURLs: task.Result.ResultURLs,
			OriginURLs: task.Result.OriginURLs,
			Resolution: task.Result.Resolution,
		}
	}
	if task.Status == domain.TaskStatusFailed {
		resp.Error = &GenerationError{
			Code:    task.ErrorCode,
			Message: task.ErrorMessage,
		}
	}
	return resp
}
