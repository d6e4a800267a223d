package generation_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/genflow/internal/domain"
	"github.com/phrazzld/genflow/internal/generation"
	"github.com/phrazzld/genflow/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderError(t *testing.T) {
	t.Parallel()

	err := generation.NewProviderError("kie_veo", "submit", 422, "422", "invalid prompt")
	assert.ErrorIs(t, err, generation.ErrSubmissionRejected)
	assert.NotErrorIs(t, err, generation.ErrProviderUnavailable)
	assert.Equal(t, "kie_veo submit rejected (http 422): code=422: invalid prompt", err.Error())

	wrapped := fmt.Errorf("submitting: %w", err)
	var pe *generation.ProviderError
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, "invalid prompt", pe.Message)

	noHTTP := generation.NewProviderError("kie_image", "status", 0, "501", "quota")
	assert.Equal(t, "kie_image status rejected: code=501: quota", noHTTP.Error())
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: connection refused")
	err := generation.Unavailable("kie_veo", "submit", cause)
	assert.ErrorIs(t, err, generation.ErrProviderUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, generation.ErrSubmissionRejected)
}

func TestReport_InProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		report generation.Report
		want   bool
	}{
		{generation.Report{Code: 200, State: generation.StateWaiting}, true},
		{generation.Report{Code: 200, State: generation.StateQueuing}, true},
		{generation.Report{Code: 200, State: generation.StateGenerating}, true},
		{generation.Report{Code: 200, State: generation.StateSuccess}, false},
		{generation.Report{Code: 200, State: generation.StateFail}, false},
		{generation.Report{Code: 500, State: generation.StateGenerating}, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.report.InProgress(), "code=%d state=%s", tc.report.Code, tc.report.State)
	}
}

func TestRouter(t *testing.T) {
	t.Parallel()

	video := &mocks.MockGateway{GatewayName: "kie_veo"}
	image := &mocks.MockGateway{GatewayName: "kie_image"}
	legacy := &mocks.MockGateway{GatewayName: "gemini_veo"}
	router := generation.NewRouter(video, image, legacy, nil)

	for kind, want := range map[domain.GenerationKind]generation.Gateway{
		domain.KindVideoGenerate: video,
		domain.KindVideoExtend:   video,
		domain.KindImageGenerate: image,
	} {
		got, err := router.ForKind(kind)
		require.NoError(t, err)
		assert.Same(t, want, got)
	}

	_, err := router.ForKind(domain.GenerationKind("audio"))
	assert.ErrorIs(t, err, generation.ErrUnknownProvider)

	got, err := router.ByName("gemini_veo")
	require.NoError(t, err)
	assert.Same(t, legacy, got)

	_, err = router.ByName("sora")
	assert.ErrorIs(t, err, generation.ErrUnknownProvider)
}

func TestRouter_NilImage(t *testing.T) {
	t.Parallel()

	router := generation.NewRouter(&mocks.MockGateway{GatewayName: "kie_veo"}, nil)
	_, err := router.ForKind(domain.KindImageGenerate)
	assert.ErrorIs(t, err, generation.ErrUnknownProvider)
}
