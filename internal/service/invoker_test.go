package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/digkill/GenStudio/internal/gemini"
)

func newTestInvoker(gen ContentGenerator, obs Observer) *Invoker {
	inv := NewInvoker(gen, "gemini-2.5-flash-image", obs, testLogger())
	inv.backoff = 0
	return inv
}

func TestInvokerReturnsImage(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, "gemini-2.5-flash-image", mock.Anything).Return(imageResponse("png"), nil).Once()

	img, err := newTestInvoker(gen, nil).Generate(context.Background(), textInput("a fox"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), img.Data)
	assert.Equal(t, 1, img.Attempts)
	gen.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestInvokerRefusalIsNotRetried(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(textResponse("I can't help with that request."), nil)

	_, err := newTestInvoker(gen, nil).Generate(context.Background(), textInput("something"))

	var refusal *RefusalError
	require.True(t, errors.As(err, &refusal))
	assert.Equal(t, "I can't help with that request.", refusal.Message)
	assert.Equal(t, KindModelRefusal, KindOf(err))
	gen.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestInvokerRefusalKeepsSplitTextVerbatim(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(textResponse("I can't ", "draw that."), nil)

	_, err := newTestInvoker(gen, nil).Generate(context.Background(), textInput("something"))

	var refusal *RefusalError
	require.True(t, errors.As(err, &refusal))
	assert.Equal(t, "I can't draw that.", refusal.Message)
	gen.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestInvokerEmptyResultsExhaustAttempts(t *testing.T) {
	gen := new(mockGenerator)
	obs := &countingObserver{}
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(emptyResponse("IMAGE_SAFETY"), nil)

	_, err := newTestInvoker(gen, obs).Generate(context.Background(), textInput("something"))

	var failed *GenerationFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, maxAttempts, failed.Attempts)
	assert.Equal(t, "IMAGE_SAFETY", failed.FinishReason)
	assert.Equal(t, KindGenerationFailed, KindOf(err))
	gen.AssertNumberOfCalls(t, "GenerateContent", maxAttempts)
	assert.Equal(t, []string{"empty", "empty"}, obs.attempts)
}

func TestInvokerRetriesTransportError(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(imageResponse("png"), nil).Once()

	img, err := newTestInvoker(gen, nil).Generate(context.Background(), textInput("a fox"))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Attempts)
}

func TestInvokerQuotaErrorsAreBusy(t *testing.T) {
	gen := new(mockGenerator)
	quota := &gemini.APIError{HTTPStatus: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota"}
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(nil, quota)

	_, err := newTestInvoker(gen, nil).Generate(context.Background(), textInput("a fox"))
	require.Error(t, err)
	assert.Equal(t, KindServerBusy, KindOf(err))
	gen.AssertNumberOfCalls(t, "GenerateContent", maxAttempts)
}

func TestInvokerRespectsRemainingBudget(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything).Return(emptyResponse("OTHER"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := newTestInvoker(gen, nil).Generate(ctx, textInput("a fox"))

	var failed *GenerationFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, 1, failed.Attempts)
	gen.AssertNumberOfCalls(t, "GenerateContent", 1)
}

func TestInvokerDoesNotStartWhenContextDone(t *testing.T) {
	gen := new(mockGenerator)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestInvoker(gen, nil).Generate(ctx, textInput("a fox"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	gen.AssertNotCalled(t, "GenerateContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestInvokerUsesRequestedModel(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateContent", mock.Anything, "gemini-3-pro-image-preview", mock.Anything).Return(imageResponse("png"), nil).Once()

	in := textInput("a fox")
	in.Model = "gemini-3-pro-image-preview"
	img, err := newTestInvoker(gen, nil).Generate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-pro-image-preview", img.Model)
}

func TestBuildRequestNormalizes(t *testing.T) {
	req, err := BuildRequest(GenerationInput{
		Parts: []gemini.Part{
			{Text: "a cat"},
			{InlineData: &gemini.InlineData{MimeType: "image/jpeg", Data: []byte("ref")}},
			{Text: " wearing a hat "},
		},
		Config: map[string]any{
			"responseMimeType":   "application/json",
			"responseSchema":     map[string]any{"type": "OBJECT"},
			"responseModalities": []string{"TEXT"},
			"temperature":        0.4,
			"aspectRatio":        "16:9 (Landscape)",
			"imageSize":          "2k",
		},
	})
	require.NoError(t, err)

	parts := req.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0].Text, imageDirective))
	assert.True(t, strings.HasSuffix(parts[0].Text, "a cat\nwearing a hat"))
	assert.NotNil(t, parts[1].InlineData)

	cfg := req.GenerationConfig
	assert.NotContains(t, cfg, "responseMimeType")
	assert.NotContains(t, cfg, "responseSchema")
	assert.NotContains(t, cfg, "aspectRatio")
	assert.Equal(t, []string{"TEXT", "IMAGE"}, cfg["responseModalities"])
	assert.Equal(t, 0.4, cfg["temperature"])
	assert.Equal(t, map[string]any{"aspectRatio": "16:9", "imageSize": "2K"}, cfg["imageConfig"])

	assert.Len(t, req.SafetySettings, 4)
}

func TestBuildRequestMultiReferenceKeepsDefaultSafety(t *testing.T) {
	ref := &gemini.InlineData{MimeType: "image/png", Data: []byte("x")}
	req, err := BuildRequest(GenerationInput{Parts: []gemini.Part{{Text: "merge"}, {InlineData: ref}, {InlineData: ref}}})
	require.NoError(t, err)
	assert.Empty(t, req.SafetySettings)
}

func TestBuildRequestRejectsEmptyInput(t *testing.T) {
	_, err := BuildRequest(GenerationInput{Parts: []gemini.Part{{Text: "   "}}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNormalizeAspectRatio(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"1:1", "1:1"},
		{"21:9 cinematic", "21:9"},
		{"7:3", ""},
		{"Giữ nguyên", ""},
		{42, ""},
		{" 9:16 (Story) ", "9:16"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeAspectRatio(tc.in), "input %v", tc.in)
	}
}

func TestPromptTextExcludesDirective(t *testing.T) {
	assert.Equal(t, "a\nb", PromptText([]gemini.Part{{Text: "a"}, {Text: "b"}}))
}
