package handle

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"parent-bridge/api/internal/audit"
	"parent-bridge/api/internal/blob"
	"parent-bridge/api/internal/httpserver"
	"parent-bridge/api/internal/llm"
	"parent-bridge/api/internal/report"
)

const defaultDeadline = 180 * time.Second

// Notifier delivers a validated report. It returns the number of messages sent.
type Notifier interface {
	SendReport(ctx context.Context, chatID int64, p report.Payload) (int, error)
}

type Options struct {
	Bucket     string
	DemoImages []string
	Audit      audit.Recorder
	// Notifier is nil when report delivery is not configured.
	Notifier Notifier
	Logger   *zap.Logger
}

type Handle struct {
	engs       *llm.Engines
	store      blob.Store
	bucket     string
	demoImages []string
	audit      audit.Recorder
	notify     Notifier
	log        *zap.Logger
	now        func() time.Time
}

func New(engs *llm.Engines, store blob.Store, opts Options) *Handle {
	h := &Handle{
		engs:       engs,
		store:      store,
		bucket:     blob.BucketOrDefault(opts.Bucket),
		demoImages: opts.DemoImages,
		audit:      opts.Audit,
		notify:     opts.Notifier,
		log:        opts.Logger,
		now:        time.Now,
	}
	if h.audit == nil {
		h.audit = audit.Nop{}
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	return h
}

// Register mounts every route on mux.
func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)

	mux.HandleFunc("GET /text", h.TextDemo)
	mux.HandleFunc("POST /text", h.Text)

	mux.HandleFunc("GET /vision/upload", h.VisionUploadDemo)
	mux.HandleFunc("POST /vision/upload", h.VisionUpload)
	mux.HandleFunc("GET /vision", h.VisionDemo)
	mux.HandleFunc("POST /vision", h.VisionReport)

	mux.HandleFunc("POST /images", h.UploadImage)
	mux.HandleFunc("GET /images", h.ListImages)
	mux.HandleFunc("GET /images/{name}", h.GetImage)
	mux.HandleFunc("DELETE /images/{name}", h.DeleteImage)

	mux.HandleFunc("POST /report/share", h.ShareReport)
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.audit.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRawJSON writes an already-encoded JSON body unchanged.
func writeRawJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestLogger tags log lines with the handler and the request id set by
// httpserver.RequestLog.
func (h *Handle) requestLogger(r *http.Request, handler string) *zap.Logger {
	return h.log.With(
		zap.String("handler", handler),
		zap.String("request_id", httpserver.RequestID(r.Context())),
	)
}

// writeUpstream is the 500 envelope: a fixed message plus the cause.
func writeUpstream(log *zap.Logger, w http.ResponseWriter, msg string, err error) {
	log.Error(msg, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg, "details": err.Error()})
}

// requestContext applies the per-request deadline: X-Request-Timeout or
// ?timeoutSec in seconds, 180s otherwise.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := defaultDeadline
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}

// complete runs one model call and records it in the audit log.
func (h *Handle) complete(ctx context.Context, log *zap.Logger, endpoint string, eng llm.Engine, req llm.CompletionRequest) (llm.Completion, error) {
	started := time.Now()
	c, err := eng.Complete(ctx, req)
	h.record(ctx, log, endpoint, eng, req, started, err)
	return c, err
}

func (h *Handle) stream(ctx context.Context, log *zap.Logger, endpoint string, eng llm.Engine, req llm.CompletionRequest, fn func(string) error) error {
	started := time.Now()
	err := eng.Stream(ctx, req, fn)
	h.record(ctx, log, endpoint, eng, req, started, err)
	return err
}

func (h *Handle) record(ctx context.Context, log *zap.Logger, endpoint string, eng llm.Engine, req llm.CompletionRequest, started time.Time, err error) {
	model := req.Model
	if model == "" {
		model = eng.Model()
	}
	schema := ""
	if req.Schema != nil {
		schema = req.Schema.Name
	}
	e := audit.NewEntry(endpoint, eng.Name(), model, schema, started, err)
	// the request context may already be done; the row is still wanted
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if rerr := h.audit.Record(actx, e); rerr != nil {
		log.Warn("audit record failed", zap.String("endpoint", endpoint), zap.Error(rerr))
	}
}

func ptr[T any](v T) *T { return &v }
