package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"teaser/internal/httputil"
	"teaser/internal/logging"
	"teaser/internal/stream"
)

func NewHandler(cfg *Config, provider stream.SnapshotProvider) (http.Handler, error) {
	return &handler{cfg: cfg, provider: provider}, nil
}

type handler struct {
	provider stream.SnapshotProvider
	cfg      *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		logger.Debug(fmt.Sprintf(`{"error": "method %v is not allowed"}`, r.Method))
		_, _ = fmt.Fprintf(w, `{"error": "method %v is not allowed"}`, r.Method)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		httputil.RespBadRequest(ctx, w, `{"error": "%v"}`, "session id is required")
		return
	}

	snapshot, err := h.provider.Snapshot(ctx, sessionID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		logger.Debugf("snapshot %s: %v", sessionID, err)
		_, _ = fmt.Fprintf(w, `{"error": "session %s not found"}`, sessionID)
		return
	}

	bytes, err := json.Marshal(snapshot)
	if err != nil {
		httputil.RespInternalError(ctx, w, `{"error": "failed to encode output json %v"}`, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "%s", bytes)
}
