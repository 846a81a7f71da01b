package llm

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// Role of a chat message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartKind tags a ContentPart.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// ContentPart is either a text fragment or an image reference (data: or remote URL).
type ContentPart struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

func TextPart(text string) ContentPart { return ContentPart{Kind: PartText, Text: text} }

func ImagePart(url string) ContentPart { return ContentPart{Kind: PartImage, URL: url} }

// ChatMessage carries either plain Text or an ordered list of Parts.
// When Parts is non-empty it wins over Text.
type ChatMessage struct {
	Role  Role          `json:"role"`
	Text  string        `json:"text,omitempty"`
	Parts []ContentPart `json:"parts,omitempty"`
}

// HasImage reports whether at least one image part is present.
func (m ChatMessage) HasImage() bool {
	for _, p := range m.Parts {
		if p.Kind == PartImage {
			return true
		}
	}
	return false
}

// SchemaDefinition names a JSON schema the model reply must follow.
type SchemaDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Schema      *jsonschema.Schema `json:"schema"`
}

var ErrBadSchemaDefinition = errors.New(`JSON schema definition must include "name" and "schema".`)

func (d *SchemaDefinition) Validate() error {
	if d == nil {
		return nil
	}
	if strings.TrimSpace(d.Name) == "" || d.Schema == nil {
		return ErrBadSchemaDefinition
	}
	return nil
}

// ResponseFormat is the json_schema directive sent alongside a request.
type ResponseFormat struct {
	Type       string           `json:"type"`
	JSONSchema SchemaDefinition `json:"json_schema"`
}

// CompletionRequest is the provider-neutral input of Engine.Complete and Engine.Stream.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Temperature *float64
	Schema      *SchemaDefinition
}

// ContentKind tags the three shapes a provider may put in the content field.
type ContentKind int

const (
	ContentString ContentKind = iota
	ContentTextWrapper
	ContentObject
)

func (k ContentKind) String() string {
	switch k {
	case ContentString:
		return "string"
	case ContentTextWrapper:
		return "text_wrapper"
	case ContentObject:
		return "object"
	default:
		return "unknown"
	}
}

// Content is the assistant reply. Text is set for ContentString and
// ContentTextWrapper, Object for ContentObject.
type Content struct {
	Kind   ContentKind
	Text   string
	Object any
}

func StringContent(s string) Content { return Content{Kind: ContentString, Text: s} }

func WrappedContent(s string) Content { return Content{Kind: ContentTextWrapper, Text: s} }

func ObjectContent(v any) Content { return Content{Kind: ContentObject, Object: v} }

// TextWrapper is the {"type":"text","text":...} shape.
type TextWrapper struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// String returns the textual form of the content; objects are marshalled.
func (c Content) String() string {
	switch c.Kind {
	case ContentString, ContentTextWrapper:
		return c.Text
	case ContentObject:
		b, err := json.Marshal(c.Object)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// Completion is one model reply. Raw keeps the provider response body as received.
type Completion struct {
	Model   string
	Content Content
	Raw     json.RawMessage
}
