package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"parent-bridge/api/internal/notify"
	"parent-bridge/api/internal/report"
)

type shareRequest struct {
	ChatID   int64           `json:"chat_id"`
	Language string          `json:"language"`
	Report   json.RawMessage `json:"report"`
}

// ShareReport validates a finished report and delivers it over Telegram.
func (h *Handle) ShareReport(w http.ResponseWriter, r *http.Request) {
	log := h.requestLogger(r, "share_report")
	if h.notify == nil {
		writeError(w, http.StatusNotImplemented, "Report delivery is not configured (TELEGRAM_BOT_TOKEN).")
		return
	}
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if len(req.Report) == 0 || string(req.Report) == "null" {
		writeError(w, http.StatusBadRequest, `Report ("report") is required.`)
		return
	}
	p, err := report.Decode(req.Report, req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	n, err := h.notify.SendReport(ctx, req.ChatID, p)
	if err != nil {
		if errors.Is(err, notify.ErrNoChat) {
			writeError(w, http.StatusBadRequest, `Chat id ("chat_id") is required.`)
			return
		}
		writeUpstream(log, w, "Failed to send report.", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "messages": n})
}
