package handle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"parent-bridge/api/internal/llm"
	"parent-bridge/api/internal/report"
	"parent-bridge/api/internal/util"
)

const (
	maxUploadBytes = 20 << 20
	demoImageURL   = "https://upload.wikimedia.org/wikipedia/commons/a/a5/Instagram_icon.png"
)

// VisionUploadDemo describes one fixed remote image and returns the raw completion.
func (h *Handle) VisionUploadDemo(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "vision_upload_demo")
	eng, err := h.engs.GetEngine(r.URL.Query().Get("llm_name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := llm.VisionMessage("Describe this image.", llm.RemoteImages(demoImageURL)...)
	if err != nil {
		writeUpstream(log, w, "Failed to fetch vision completion via GET.", err)
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	c, err := h.complete(ctx, log, "GET /vision/upload", eng, llm.CompletionRequest{Messages: []llm.ChatMessage{msg}})
	if err != nil {
		writeUpstream(log, w, "Failed to fetch vision completion via GET.", err)
		return
	}
	writeRawJSON(w, http.StatusOK, c.Raw)
}

// VisionUpload sends one uploaded image and a prompt to the model.
func (h *Handle) VisionUpload(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "vision_upload")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "bad multipart form: "+err.Error())
		return
	}
	data, mime, err := readFormFile(r, "imageFile")
	if err != nil {
		writeError(w, http.StatusBadRequest, `Image file ("imageFile") is required in form data.`)
		return
	}
	prompt := strings.TrimSpace(r.FormValue("prompt"))
	if prompt == "" {
		writeError(w, http.StatusBadRequest, `Text prompt ("prompt") is required in form data.`)
		return
	}
	eng, err := h.engs.GetEngine(r.FormValue("llm_name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := llm.VisionMessage(prompt, llm.ImageInput{Data: data, MIMEType: mime})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	c, err := h.complete(ctx, log, "POST /vision/upload", eng, llm.CompletionRequest{Messages: []llm.ChatMessage{msg}})
	if err != nil {
		writeUpstream(log, w, "Failed to process vision request via POST.", err)
		return
	}
	writeRawJSON(w, http.StatusOK, c.Raw)
}

// VisionDemo analyses the configured demo pages with the HomeworkAnalysis schema.
func (h *Handle) VisionDemo(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "vision_demo")
	const failMsg = "Failed to analyze demo homework images."
	eng, err := h.engs.GetEngine(r.URL.Query().Get("llm_name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	urls := make([]string, 0, len(h.demoImages))
	for _, name := range h.demoImages {
		urls = append(urls, h.store.PublicURL(name, h.bucket))
	}
	msg, err := llm.VisionMessage(report.AnalysisPrompt, llm.RemoteImages(urls...)...)
	if err != nil {
		writeUpstream(log, w, failMsg, fmt.Errorf("demo images: %w", err))
		return
	}
	schema, err := report.AnalysisSchema()
	if err != nil {
		writeUpstream(log, w, failMsg, err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	c, err := h.complete(ctx, log, "GET /vision", eng, llm.CompletionRequest{
		Messages: []llm.ChatMessage{msg},
		Schema:   schema,
	})
	if err != nil {
		writeUpstream(log, w, failMsg, err)
		return
	}
	body := []byte(util.StripCodeFences(c.Content.String()))
	if !json.Valid(body) {
		writeUpstream(log, w, failMsg, errors.New("model reply is not valid JSON"))
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// VisionReport writes a bilingual parent report about every image in the bucket.
func (h *Handle) VisionReport(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "vision_report")
	const failMsg = "Failed to generate parent report."
	var req struct {
		report.Request
		LLMName string `json:"llm_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eng, err := h.engs.GetEngine(req.LLMName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	objs, err := h.store.List(ctx, h.bucket)
	if err != nil {
		writeUpstream(log, w, failMsg, err)
		return
	}
	if len(objs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No images found in bucket %q.", h.bucket))
		return
	}
	urls := make([]string, 0, len(objs))
	for _, o := range objs {
		urls = append(urls, h.store.PublicURL(o.Name, h.bucket))
	}

	prompt, err := report.Prompt(req.Request)
	if err != nil {
		writeUpstream(log, w, failMsg, err)
		return
	}
	msg, err := llm.VisionMessage(prompt, llm.RemoteImages(urls...)...)
	if err != nil {
		writeUpstream(log, w, failMsg, err)
		return
	}
	lang := req.LanguageOrDefault()
	c, err := h.complete(ctx, log, "POST /vision", eng, llm.CompletionRequest{
		Messages: []llm.ChatMessage{msg},
		Schema:   report.Schema(lang),
	})
	if err != nil {
		writeUpstream(log, w, failMsg, err)
		return
	}

	body := []byte(util.StripCodeFences(c.Content.String()))
	if _, err := report.Decode(body, lang); err != nil {
		writeUpstream(log, w, failMsg, err)
		return
	}
	writeRawJSON(w, http.StatusOK, body)
}

// readFormFile returns the named multipart file and its MIME type.
func readFormFile(r *http.Request, field string) ([]byte, string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty file")
	}
	mime := util.PickMIME(hdr.Header.Get("Content-Type"), util.MIMEForName(hdr.Filename), data)
	return data, mime, nil
}
