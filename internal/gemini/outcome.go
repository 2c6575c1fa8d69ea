package gemini

import "strings"

// Outcome is the classification of one generateContent response.
// It is one of ImageCandidate, RefusalText or EmptyNoImage.
type Outcome interface {
	outcome()
}

type ImageCandidate struct {
	Data         []byte
	MimeType     string
	FinishReason string
}

// RefusalText means the model answered in words instead of producing an image.
type RefusalText struct {
	Text         string
	FinishReason string
}

type EmptyNoImage struct {
	FinishReason string
}

func (ImageCandidate) outcome() {}
func (RefusalText) outcome()    {}
func (EmptyNoImage) outcome()   {}

// Classify scans every candidate for inline image data and takes the first one found.
// Without an image, text in the first candidate is a refusal; anything else is empty.
func Classify(resp *Response) Outcome {
	if resp == nil {
		return EmptyNoImage{}
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				return ImageCandidate{Data: part.InlineData.Data, MimeType: mime, FinishReason: cand.FinishReason}
			}
		}
	}

	if len(resp.Candidates) == 0 {
		reason := ""
		if resp.PromptFeedback != nil {
			reason = resp.PromptFeedback.BlockReason
		}
		return EmptyNoImage{FinishReason: reason}
	}

	first := resp.Candidates[0]
	if first.Content != nil {
		var text strings.Builder
		for _, part := range first.Content.Parts {
			text.WriteString(part.Text)
		}
		if strings.TrimSpace(text.String()) != "" {
			return RefusalText{Text: text.String(), FinishReason: first.FinishReason}
		}
	}
	return EmptyNoImage{FinishReason: first.FinishReason}
}
