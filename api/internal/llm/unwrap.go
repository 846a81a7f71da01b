package llm

import (
	"bytes"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"parent-bridge/api/internal/util"
)

var ErrNoContent = errors.New("completion has no message content")

// Unwrap turns provider content into the value handed to callers. With
// jsonExpected it tries to parse text as JSON and falls back to the text
// itself; it never fails.
func Unwrap(log *zap.Logger, c Content, jsonExpected bool) any {
	if log == nil {
		log = zap.L()
	}
	switch c.Kind {
	case ContentString:
		if !jsonExpected {
			return c.Text
		}
		v, err := parseJSONText(c.Text)
		if err != nil {
			log.Warn("content was a string but not valid JSON", zap.String("content", truncate(c.Text, 512)), zap.Error(err))
			return c.Text
		}
		return v
	case ContentTextWrapper:
		if !jsonExpected {
			return TextWrapper{Type: "text", Text: c.Text}
		}
		v, err := parseJSONText(c.Text)
		if err != nil {
			log.Warn("content.text was a string but not valid JSON", zap.String("content", truncate(c.Text, 512)), zap.Error(err))
			return c.Text
		}
		return v
	case ContentObject:
		return c.Object
	default:
		log.Warn("unknown content kind", zap.Stringer("kind", c.Kind))
		return c.Text
	}
}

// ContentFromValue lifts an unwrapped value back into Content.
func ContentFromValue(v any) Content {
	switch x := v.(type) {
	case string:
		return StringContent(x)
	case TextWrapper:
		return WrappedContent(x.Text)
	default:
		return ObjectContent(v)
	}
}

func parseJSONText(s string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(s), &v)
	if err == nil {
		return v, nil
	}
	// models sometimes wrap JSON in a markdown fence
	if stripped := util.StripCodeFences(s); stripped != s {
		if err2 := json.Unmarshal([]byte(stripped), &v); err2 == nil {
			return v, nil
		}
	}
	return nil, err
}

// DecodeContent classifies a raw JSON content field.
func DecodeContent(raw json.RawMessage) Content {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return StringContent("")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return StringContent(s)
		}
	case '{':
		var w struct {
			Type string  `json:"type"`
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(raw, &w); err == nil && w.Type == "text" && w.Text != nil {
			return WrappedContent(*w.Text)
		}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return StringContent(string(raw))
	}
	return ObjectContent(v)
}

// ExtractContent reads the assistant content from a completion body. Both the
// OpenAI-compatible envelope (choices[0].message.content) and the Llama-native
// one (completion_message.content) are understood.
func ExtractContent(body []byte) (Content, error) {
	var env struct {
		CompletionMessage *struct {
			Content json.RawMessage `json:"content"`
		} `json:"completion_message"`
		Choices []struct {
			Message struct {
				Content json.RawMessage `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Content{}, err
	}
	if env.CompletionMessage != nil {
		return DecodeContent(env.CompletionMessage.Content), nil
	}
	if len(env.Choices) > 0 {
		return DecodeContent(env.Choices[0].Message.Content), nil
	}
	return Content{}, ErrNoContent
}

func truncate(s string, n int) string {
	if c := util.ClampRunes(s, n); c != s {
		return c + "..."
	}
	return s
}
