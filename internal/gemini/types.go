package gemini

// Part is either text or inline binary data. Data is base64 on the wire.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type Request struct {
	Contents         []Content       `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig,omitempty"`
	SafetySettings   []SafetySetting `json:"safetySettings,omitempty"`
}

type Candidate struct {
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type Response struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
}

const (
	HarmCategoryHarassment       = "HARM_CATEGORY_HARASSMENT"
	HarmCategoryHateSpeech       = "HARM_CATEGORY_HATE_SPEECH"
	HarmCategorySexuallyExplicit = "HARM_CATEGORY_SEXUALLY_EXPLICIT"
	HarmCategoryDangerousContent = "HARM_CATEGORY_DANGEROUS_CONTENT"

	ThresholdBlockNone = "BLOCK_NONE"
)

// PermissiveSafety disables blocking on every adjustable harm category.
func PermissiveSafety() []SafetySetting {
	categories := []string{HarmCategoryHarassment, HarmCategoryHateSpeech, HarmCategorySexuallyExplicit, HarmCategoryDangerousContent}
	settings := make([]SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, SafetySetting{Category: c, Threshold: ThresholdBlockNone})
	}
	return settings
}

// IsPolicyFinish reports finish reasons that mean the backend withheld output on policy grounds.
func IsPolicyFinish(reason string) bool {
	switch reason {
	case "SAFETY", "IMAGE_SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST", "SPII":
		return true
	}
	return false
}
