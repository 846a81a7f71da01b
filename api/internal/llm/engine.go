package llm

import (
	"context"
	"errors"
	"strings"
)

// Engine is a chat-completion provider.
type Engine interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	// Stream calls fn for every text delta in arrival order. A non-nil error
	// from fn stops the stream and is returned.
	Stream(ctx context.Context, req CompletionRequest, fn func(delta string) error) error
}

var ErrUnknownEngine = errors.New("unknown llm_name; use 'llama' or 'gemini'")

// Engines holds the configured providers. Gemini is optional.
type Engines struct {
	Llama  Engine
	Gemini Engine
}

// GetEngine resolves a request's llm_name. Empty selects the default engine.
func (e *Engines) GetEngine(llmName string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(llmName)) {
	case "", "llama", "openai", "gpt":
		if e.Llama == nil {
			return nil, ErrUnknownEngine
		}
		return e.Llama, nil
	case "gemini":
		if e.Gemini == nil {
			return nil, errors.New("gemini engine is not configured")
		}
		return e.Gemini, nil
	default:
		return nil, ErrUnknownEngine
	}
}
