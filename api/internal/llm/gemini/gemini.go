package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"parent-bridge/api/internal/llm"
	"parent-bridge/api/internal/util"
)

const DefaultModel = "gemini-2.5-flash"

// maxImageBytes caps remote images fetched for inline upload.
const maxImageBytes = 20 << 20

var _ llm.Engine = (*Engine)(nil)

type Engine struct {
	APIKey string
	model  string
	httpc  *http.Client
}

func New(apiKey, model string) *Engine {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		httpc:  &http.Client{Timeout: 60 * time.Second},
	}
}

// WithHTTPClient overrides the client used to fetch remote images.
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string  { return "gemini" }
func (e *Engine) Model() string { return e.model }

func (e *Engine) modelFor(req llm.CompletionRequest) string {
	if m := strings.TrimSpace(req.Model); m != "" {
		return m
	}
	return e.model
}

func (e *Engine) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	cl, m, err := e.open(ctx, req)
	if err != nil {
		return llm.Completion{}, err
	}
	defer cl.Close()

	history, last, err := e.toContents(ctx, req.Messages)
	if err != nil {
		return llm.Completion{}, err
	}

	var resp *genai.GenerateContentResponse
	if len(history) > 0 {
		cs := m.StartChat()
		cs.History = history
		resp, err = cs.SendMessage(ctx, last...)
	} else {
		resp, err = m.GenerateContent(ctx, last...)
	}
	if err != nil {
		return llm.Completion{}, fmt.Errorf("gemini generate: %w", err)
	}
	txt := firstText(resp)
	if txt == "" {
		return llm.Completion{}, fmt.Errorf("gemini generate: empty response")
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return llm.Completion{}, err
	}
	return llm.Completion{
		Model:   e.modelFor(req),
		Content: llm.StringContent(strings.TrimSpace(txt)),
		Raw:     raw,
	}, nil
}

func (e *Engine) Stream(ctx context.Context, req llm.CompletionRequest, fn func(delta string) error) error {
	cl, m, err := e.open(ctx, req)
	if err != nil {
		return err
	}
	defer cl.Close()

	history, last, err := e.toContents(ctx, req.Messages)
	if err != nil {
		return err
	}

	var it *genai.GenerateContentResponseIterator
	if len(history) > 0 {
		cs := m.StartChat()
		cs.History = history
		it = cs.SendMessageStream(ctx, last...)
	} else {
		it = m.GenerateContentStream(ctx, last...)
	}
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream: %w", err)
		}
		for _, t := range allText(resp) {
			if err := fn(t); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) open(ctx context.Context, req llm.CompletionRequest) (*genai.Client, *genai.GenerativeModel, error) {
	if e.APIKey == "" {
		return nil, nil, errors.New("GEMINI_API_KEY is empty")
	}
	if err := req.Schema.Validate(); err != nil {
		return nil, nil, err
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, nil, err
	}
	m := cl.GenerativeModel(e.modelFor(req))
	if m == nil {
		cl.Close()
		return nil, nil, fmt.Errorf("gemini: model is nil")
	}
	if req.Temperature != nil {
		m.SetTemperature(float32(*req.Temperature))
	}
	if req.Schema != nil {
		m.ResponseMIMEType = "application/json"
	}
	if sys := systemInstruction(req); sys != nil {
		m.SystemInstruction = sys
	}
	return cl, m, nil
}

// systemInstruction joins system messages and, when a schema is requested,
// appends it as text the way the prompt files carry <name>.schema.json.
func systemInstruction(req llm.CompletionRequest) *genai.Content {
	var parts []genai.Part
	for _, msg := range req.Messages {
		if msg.Role != llm.RoleSystem {
			continue
		}
		if msg.Text != "" {
			parts = append(parts, genai.Text(msg.Text))
		}
		for _, p := range msg.Parts {
			if p.Kind == llm.PartText {
				parts = append(parts, genai.Text(p.Text))
			}
		}
	}
	if def := req.Schema; def != nil {
		b, err := json.Marshal(def.Schema)
		if err == nil {
			head := "Return only JSON matching " + def.Name + ".schema.json. Any text outside the JSON is an error."
			if def.Description != "" {
				head += " " + def.Description
			}
			parts = append(parts, genai.Text(head+"\n\n"+def.Name+".schema.json:\n"+string(b)))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &genai.Content{Parts: parts}
}

// toContents splits the conversation into chat history and the parts of the final turn.
func (e *Engine) toContents(ctx context.Context, msgs []llm.ChatMessage) ([]*genai.Content, []genai.Part, error) {
	var turns []llm.ChatMessage
	for _, msg := range msgs {
		if msg.Role != llm.RoleSystem {
			turns = append(turns, msg)
		}
	}
	if len(turns) == 0 {
		return nil, nil, errors.New("gemini: no user message")
	}
	history := make([]*genai.Content, 0, len(turns)-1)
	for _, msg := range turns[:len(turns)-1] {
		parts, err := e.toParts(ctx, msg)
		if err != nil {
			return nil, nil, err
		}
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: parts})
	}
	last, err := e.toParts(ctx, turns[len(turns)-1])
	if err != nil {
		return nil, nil, err
	}
	return history, last, nil
}

func (e *Engine) toParts(ctx context.Context, msg llm.ChatMessage) ([]genai.Part, error) {
	if len(msg.Parts) == 0 {
		return []genai.Part{genai.Text(msg.Text)}, nil
	}
	parts := make([]genai.Part, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Kind {
		case llm.PartText:
			parts = append(parts, genai.Text(p.Text))
		case llm.PartImage:
			blob, err := e.imageBlob(ctx, p.URL)
			if err != nil {
				return nil, err
			}
			parts = append(parts, blob)
		}
	}
	return parts, nil
}

// imageBlob inlines an image: data: URLs are decoded, remote URLs fetched.
func (e *Engine) imageBlob(ctx context.Context, u string) (genai.Blob, error) {
	if strings.HasPrefix(u, "data:") {
		data, hint, err := util.DecodeBase64MaybeDataURL(u)
		if err != nil {
			return genai.Blob{}, fmt.Errorf("gemini: bad data url: %w", err)
		}
		return genai.Blob{MIMEType: util.PickMIME("", hint, data), Data: data}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return genai.Blob{}, err
	}
	resp, err := e.httpc.Do(req)
	if err != nil {
		return genai.Blob{}, fmt.Errorf("gemini: fetch image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return genai.Blob{}, fmt.Errorf("gemini: fetch image %s: status %d", u, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return genai.Blob{}, err
	}
	mime := util.PickMIME(resp.Header.Get("Content-Type"), util.MIMEForName(u), data)
	return genai.Blob{MIMEType: mime, Data: data}, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func allText(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}
	var out []string
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok && t != "" {
				out = append(out, string(t))
			}
		}
	}
	return out
}
