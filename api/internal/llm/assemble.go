package llm

import (
	"encoding/base64"
	"errors"
	"strings"

	"parent-bridge/api/internal/util"
)

const DefaultSystemPrompt = "You are a helpful assistant."

var (
	ErrEmptyPrompt = errors.New("prompt is required")
	ErrNoImages    = errors.New("at least one image is required")
)

// ImageInput is a local image (Data + MIMEType) or a remote one (URL).
type ImageInput struct {
	Data     []byte
	MIMEType string
	URL      string
}

// DataURL returns the URL the model should see for this image.
func (in ImageInput) DataURL() string {
	if in.URL != "" {
		return in.URL
	}
	mime := strings.TrimSpace(in.MIMEType)
	if mime == "" {
		mime = "image/jpeg"
	}
	return util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(in.Data))
}

// TextMessages builds the system + user pair for text flows.
func TextMessages(userPrompt, systemPrompt string) []ChatMessage {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return []ChatMessage{
		{Role: RoleSystem, Text: systemPrompt},
		{Role: RoleUser, Text: userPrompt},
	}
}

// ResponseFormatFor returns the json_schema directive, or nil without a schema.
func ResponseFormatFor(def *SchemaDefinition) *ResponseFormat {
	if def == nil {
		return nil
	}
	return &ResponseFormat{Type: "json_schema", JSONSchema: *def}
}

// VisionMessage builds a single user message: the prompt text, then every image in order.
func VisionMessage(prompt string, images ...ImageInput) (ChatMessage, error) {
	if strings.TrimSpace(prompt) == "" {
		return ChatMessage{}, ErrEmptyPrompt
	}
	if len(images) == 0 {
		return ChatMessage{}, ErrNoImages
	}
	parts := make([]ContentPart, 0, len(images)+1)
	parts = append(parts, TextPart(prompt))
	for _, img := range images {
		if img.URL == "" && len(img.Data) == 0 {
			return ChatMessage{}, ErrNoImages
		}
		parts = append(parts, ImagePart(img.DataURL()))
	}
	return ChatMessage{Role: RoleUser, Parts: parts}, nil
}

// RemoteImages wraps already-public URLs as ImageInputs.
func RemoteImages(urls ...string) []ImageInput {
	out := make([]ImageInput, 0, len(urls))
	for _, u := range urls {
		out = append(out, ImageInput{URL: u})
	}
	return out
}
