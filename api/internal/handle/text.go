package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"parent-bridge/api/internal/llm"
)

const defaultTemperature = 0.7

type textRequest struct {
	UserPrompt           string                `json:"user_prompt"`
	SystemPrompt         string                `json:"system_prompt"`
	JSONSchemaDefinition *llm.SchemaDefinition `json:"json_schema_definition"`
	Temperature          *float64              `json:"temperature"`
	LLMName              string                `json:"llm_name"`
	Stream               bool                  `json:"stream"`
}

type textResponse struct {
	UserPrompt string `json:"user_prompt"`
	Response   any    `json:"response"`
}

// Text answers a free-form prompt, optionally constrained to a JSON schema.
func (h *Handle) Text(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "text")
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		writeError(w, http.StatusBadRequest, `User prompt ("user_prompt") is required.`)
		return
	}
	if err := req.JSONSchemaDefinition.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eng, err := h.engs.GetEngine(req.LLMName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Temperature == nil {
		req.Temperature = ptr(defaultTemperature)
	}

	creq := llm.CompletionRequest{
		Messages:    llm.TextMessages(req.UserPrompt, req.SystemPrompt),
		Temperature: req.Temperature,
		Schema:      req.JSONSchemaDefinition,
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if req.Stream {
		h.streamText(ctx, log, w, eng, creq)
		return
	}

	c, err := h.complete(ctx, log, "POST /text", eng, creq)
	if err != nil {
		writeUpstream(log, w, "Failed to process text request via POST.", err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{
		UserPrompt: req.UserPrompt,
		Response:   llm.Unwrap(log, c.Content, creq.Schema != nil),
	})
}

// streamText writes deltas as plain text, flushing after each one. Once the
// first byte is out, later failures can only be logged.
func (h *Handle) streamText(ctx context.Context, log *zap.Logger, w http.ResponseWriter, eng llm.Engine, creq llm.CompletionRequest) {
	flusher, _ := w.(http.Flusher)
	started := false
	err := h.stream(ctx, log, "POST /text", eng, creq, func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := w.Write([]byte(delta)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err == nil {
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
		return
	}
	if !started {
		writeUpstream(log, w, "Failed to process text request via POST.", err)
		return
	}
	log.Warn("text stream aborted", zap.Error(err))
}

const (
	addressSystemPrompt = "You are a helpful assistant. Extract the address details into a JSON object matching the provided schema."
	addressQuery        = "The user lives at 1600 Amphitheatre Parkway, Mountain View, CA 94043."
)

var addressSchema = &llm.SchemaDefinition{
	Name:        "AddressExtractor",
	Description: "Extracts address components from text.",
	Schema: &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"street": {Type: "string", Description: "The street name and number."},
			"city":   {Type: "string", Description: "The city name."},
			"state":  {Type: "string", Description: "The state or region."},
			"zip":    {Type: "string", Description: "The postal or ZIP code."},
		},
		Required: []string{"street", "city", "state", "zip"},
	},
}

// TextDemo extracts a fixed address with the AddressExtractor schema.
func (h *Handle) TextDemo(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "text_demo")
	eng, err := h.engs.GetEngine(r.URL.Query().Get("llm_name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	c, err := h.complete(ctx, log, "GET /text", eng, llm.CompletionRequest{
		Messages:    llm.TextMessages(addressQuery, addressSystemPrompt),
		Temperature: ptr(0.1),
		Schema:      addressSchema,
	})
	if err != nil {
		writeUpstream(log, w, "Failed to fetch text completion via GET.", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":             addressQuery,
		"extracted_address": llm.Unwrap(log, c.Content, true),
	})
}
