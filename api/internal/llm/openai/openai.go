package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"

	"parent-bridge/api/internal/llm"
)

const (
	DefaultBaseURL = "https://api.llama.com/compat/v1/"
	DefaultModel   = "Llama-4-Maverick-17B-128E-Instruct-FP8"
)

var ErrEmptyResponse = errors.New("empty completion response")

var _ llm.Engine = (*Engine)(nil)

// Engine talks to any OpenAI-compatible chat completions endpoint; by default
// the Llama API compatibility layer.
type Engine struct {
	APIKey string
	model  string
	client openai.Client
}

func New(key, model, baseURL string, opts ...option.RequestOption) *Engine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		// vision requests can take a long time before the first byte
		ResponseHeaderTimeout: 120 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
		// Timeout=0 so long streamed bodies are not cut off
		option.WithHTTPClient(&http.Client{Timeout: 0, Transport: tr}),
		option.WithMaxRetries(0),
	}
	reqOpts = append(reqOpts, opts...)
	return &Engine{
		APIKey: key,
		model:  model,
		client: openai.NewClient(reqOpts...),
	}
}

func (e *Engine) Name() string  { return "llama" }
func (e *Engine) Model() string { return e.model }

func (e *Engine) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	if e.APIKey == "" {
		return llm.Completion{}, fmt.Errorf("LLAMA_API_KEY is empty")
	}
	params, err := e.toParams(req)
	if err != nil {
		return llm.Completion{}, err
	}
	cc, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(cc.Choices) == 0 {
		return llm.Completion{}, ErrEmptyResponse
	}

	raw := []byte(cc.RawJSON())
	if len(raw) == 0 {
		if raw, err = json.Marshal(cc); err != nil {
			return llm.Completion{}, err
		}
	}
	content, err := llm.ExtractContent(raw)
	if err != nil {
		content = llm.StringContent(cc.Choices[0].Message.Content)
	}
	model := cc.Model
	if model == "" {
		model = string(params.Model)
	}
	return llm.Completion{Model: model, Content: content, Raw: raw}, nil
}

func (e *Engine) Stream(ctx context.Context, req llm.CompletionRequest, fn func(delta string) error) error {
	if e.APIKey == "" {
		return fmt.Errorf("LLAMA_API_KEY is empty")
	}
	params, err := e.toParams(req)
	if err != nil {
		return err
	}
	streaming := e.client.Chat.Completions.NewStreaming(ctx, params)
	defer streaming.Close()
	for streaming.Next() {
		chunk := streaming.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := fn(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := streaming.Err(); err != nil {
		return fmt.Errorf("chat completion stream: %w", err)
	}
	return nil
}

func (e *Engine) toParams(req llm.CompletionRequest) (openai.ChatCompletionNewParams, error) {
	model := req.Model
	if model == "" {
		model = e.model
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	if err := req.Schema.Validate(); err != nil {
		return params, err
	}
	if rf := llm.ResponseFormatFor(req.Schema); rf != nil {
		schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   rf.JSONSchema.Name,
			Schema: rf.JSONSchema.Schema,
		}
		if rf.JSONSchema.Description != "" {
			schemaParam.Description = openai.String(rf.JSONSchema.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		}
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(messageText(msg)))
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(messageText(msg)))
		case llm.RoleUser:
			if len(msg.Parts) == 0 {
				params.Messages = append(params.Messages, openai.UserMessage(msg.Text))
				continue
			}
			// text-only parts go out as a plain string
			if !msg.HasImage() {
				params.Messages = append(params.Messages, openai.UserMessage(messageText(msg)))
				continue
			}
			params.Messages = append(params.Messages, openai.UserMessage(toContentParts(msg.Parts)))
		default:
			return params, fmt.Errorf("unsupported role %q", msg.Role)
		}
	}
	return params, nil
}

// messageText flattens text parts for roles that only accept text.
func messageText(msg llm.ChatMessage) string {
	if len(msg.Parts) == 0 {
		return msg.Text
	}
	var b strings.Builder
	for _, p := range msg.Parts {
		if p.Kind != llm.PartText {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func toContentParts(parts []llm.ContentPart) []openai.ChatCompletionContentPartUnionParam {
	out := make([]openai.ChatCompletionContentPartUnionParam, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case llm.PartText:
			out = append(out, openai.TextContentPart(p.Text))
		case llm.PartImage:
			out = append(out, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: p.URL,
			}))
		}
	}
	return out
}
