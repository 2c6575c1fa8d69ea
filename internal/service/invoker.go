package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/digkill/GenStudio/internal/gemini"
)

const (
	maxAttempts      = 2
	retryBackoff     = time.Second
	minAttemptBudget = 10 * time.Second

	imageDirective = "Generate a new image that follows the instructions below. Answer with the image itself, not a description."
)

var (
	aspectRatioPrefix = regexp.MustCompile(`^(\d+:\d+)`)
	validAspectRatios = map[string]bool{
		"1:1": true, "2:3": true, "3:2": true, "3:4": true, "4:3": true,
		"4:5": true, "5:4": true, "9:16": true, "16:9": true, "21:9": true,
	}
	validImageSizes = map[string]bool{"1K": true, "2K": true, "4K": true}

	// Keys that only make sense for text responses.
	strippedConfigKeys = map[string]bool{"responseMimeType": true, "responseSchema": true, "responseModalities": true}
)

type GenerationInput struct {
	Parts  []gemini.Part
	Model  string
	Config map[string]any
}

type GeneratedImage struct {
	Data         []byte
	MimeType     string
	FinishReason string
	Model        string
	Attempts     int
}

// Invoker calls the generation backend with a bounded retry loop and classifies the outcome.
type Invoker struct {
	backend      ContentGenerator
	defaultModel string
	log          *zap.Logger
	observer     Observer
	backoff      time.Duration
}

func NewInvoker(backend ContentGenerator, defaultModel string, observer Observer, log *zap.Logger) *Invoker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Invoker{
		backend:      backend,
		defaultModel: defaultModel,
		log:          log.Named("invoker"),
		observer:     observer,
		backoff:      retryBackoff,
	}
}

func (inv *Invoker) modelFor(in GenerationInput) string {
	if m := strings.TrimSpace(in.Model); m != "" {
		return m
	}
	return inv.defaultModel
}

// Generate returns the first image found across all candidates. A textual answer with no
// image is a refusal and is not retried. Empty answers and transport errors are retried
// once while the context leaves enough time for another attempt.
func (inv *Invoker) Generate(ctx context.Context, in GenerationInput) (*GeneratedImage, error) {
	req, err := BuildRequest(in)
	if err != nil {
		return nil, err
	}
	model := inv.modelFor(in)
	references := countReferences(in.Parts)

	var (
		attempts   int
		lastReason string
		lastErr    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if !inv.hasBudget(ctx) {
				inv.log.Warn("no time left for another attempt", zap.String("model", model))
				break
			}
			if err := sleepContext(ctx, inv.backoff); err != nil {
				lastErr = err
				break
			}
		} else if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempts = attempt
		resp, err := inv.backend.GenerateContent(ctx, model, req)
		if err != nil {
			lastErr = err
			inv.observer.ObserveAttempt("error")
			inv.log.Warn("backend call failed",
				zap.String("model", model),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		switch out := gemini.Classify(resp).(type) {
		case gemini.ImageCandidate:
			inv.observer.ObserveAttempt("image")
			return &GeneratedImage{
				Data:         out.Data,
				MimeType:     out.MimeType,
				FinishReason: out.FinishReason,
				Model:        model,
				Attempts:     attempt,
			}, nil
		case gemini.RefusalText:
			inv.observer.ObserveAttempt("refusal")
			inv.log.Info("model refused", zap.String("model", model), zap.String("finish_reason", out.FinishReason))
			return nil, &RefusalError{Message: out.Text, FinishReason: out.FinishReason}
		case gemini.EmptyNoImage:
			inv.observer.ObserveAttempt("empty")
			lastReason, lastErr = out.FinishReason, nil
			if references > 1 && gemini.IsPolicyFinish(out.FinishReason) {
				inv.log.Warn("policy stop on multi-reference request",
					zap.String("model", model),
					zap.Int("references", references),
					zap.String("finish_reason", out.FinishReason),
					zap.Int("attempt", attempt),
				)
			} else {
				inv.log.Info("no image returned",
					zap.String("model", model),
					zap.String("finish_reason", out.FinishReason),
					zap.Int("attempt", attempt),
				)
			}
		}
	}

	return nil, &GenerationFailedError{Attempts: attempts, FinishReason: lastReason, Err: lastErr}
}

func (inv *Invoker) hasBudget(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return true
	}
	return time.Until(deadline) >= inv.backoff+minAttemptBudget
}

// BuildRequest normalizes caller input into a backend request: the image directive is
// prepended to the text, text-only config keys are dropped and permissive safety is
// attached unless several reference images are supplied.
func BuildRequest(in GenerationInput) (*gemini.Request, error) {
	texts, images := splitParts(in.Parts)
	if len(texts) == 0 && len(images) == 0 {
		return nil, fmt.Errorf("%w: no prompt or reference image", ErrInvalidRequest)
	}

	prompt := imageDirective
	if len(texts) > 0 {
		prompt += "\n\n" + strings.Join(texts, "\n")
	}
	parts := append([]gemini.Part{{Text: prompt}}, images...)

	req := &gemini.Request{
		Contents:         []gemini.Content{{Role: "user", Parts: parts}},
		GenerationConfig: normalizeConfig(in.Config),
	}
	if len(images) <= 1 {
		req.SafetySettings = gemini.PermissiveSafety()
	}
	return req, nil
}

// PromptText is the caller's text without the directive, as stored in the audit record.
func PromptText(parts []gemini.Part) string {
	texts, _ := splitParts(parts)
	return strings.Join(texts, "\n")
}

func splitParts(parts []gemini.Part) (texts []string, images []gemini.Part) {
	for _, p := range parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			images = append(images, gemini.Part{InlineData: p.InlineData})
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts, images
}

func countReferences(parts []gemini.Part) int {
	_, images := splitParts(parts)
	return len(images)
}

func normalizeConfig(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg)+2)
	imageConfig := map[string]any{}

	for k, v := range cfg {
		switch {
		case strippedConfigKeys[k]:
		case k == "imageConfig":
			if m, ok := v.(map[string]any); ok {
				for ik, iv := range m {
					imageConfig[ik] = iv
				}
			}
		case k == "aspectRatio" || k == "imageSize":
			imageConfig[k] = v
		default:
			out[k] = v
		}
	}

	if raw, ok := imageConfig["aspectRatio"]; ok {
		delete(imageConfig, "aspectRatio")
		if ratio := normalizeAspectRatio(raw); ratio != "" {
			imageConfig["aspectRatio"] = ratio
		}
	}
	if raw, ok := imageConfig["imageSize"]; ok {
		delete(imageConfig, "imageSize")
		if size, _ := raw.(string); validImageSizes[strings.ToUpper(size)] {
			imageConfig["imageSize"] = strings.ToUpper(size)
		}
	}

	if len(imageConfig) > 0 {
		out["imageConfig"] = imageConfig
	}
	out["responseModalities"] = []string{"TEXT", "IMAGE"}
	return out
}

// normalizeAspectRatio reduces labels such as "16:9 (Landscape)" to a supported ratio, or "".
func normalizeAspectRatio(raw any) string {
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	m := aspectRatioPrefix.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || !validAspectRatios[m[1]] {
		return ""
	}
	return m[1]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
