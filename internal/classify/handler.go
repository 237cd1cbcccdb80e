package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"teaser/internal/early"
	"teaser/internal/httputil"
	"teaser/internal/logging"
	"teaser/internal/series"
	"teaser/internal/telemetry"
)

const maxBodyBytes = 64 * 1024 * 1024

type request struct {
	Data [][][]float64 `json:"data"`
}

type response struct {
	Classes []string `json:"classes"`
	Data    []struct {
		Probas []float64 `json:"probas"`
		Class  string    `json:"class"`
		Safe   bool      `json:"safe"`
	} `json:"data"`
}

func NewHandler(cfg *Config, provideFn func() (*early.Classifier, error)) (http.Handler, error) {
	cls, err := provideFn()
	if err != nil {
		return nil, fmt.Errorf("unable to provide classifier: %w", err)
	}
	return &handler{cfg: cfg, cls: cls}, nil
}

type handler struct {
	cls *early.Classifier
	cfg *Config
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		logger.Debug(fmt.Sprintf(`{"error": "method %v is not allowed"}`, r.Method))
		_, _ = fmt.Fprintf(w, `{"error": "method %v is not allowed"}`, r.Method)
		return
	}

	if t := r.Header.Get("content-type"); len(t) < 16 || t[:16] != "application/json" {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		logger.Debug(fmt.Sprintf(`{"error": "%v"}`, "content-type is not application/json"))
		_, _ = fmt.Fprintf(w, `{"error": "%v"}`, "content-type is not application/json")
		return
	}

	defer r.Body.Close()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := json.NewDecoder(r.Body)
	if err := d.Decode(&req); err != nil {
		httputil.DecodeErr(ctx, w, err)
		return
	}

	if len(req.Data) > h.cfg.MaxDataItemsLen {
		httputil.RespBadRequest(ctx, w, `{"error": "data items is too large, max allowed len is %d"}`, h.cfg.MaxDataItemsLen)
		return
	}

	batch := make(series.Batch, 0, len(req.Data))
	for _, dat := range req.Data {
		s := series.New(dat)
		if err := s.Validate(); err != nil {
			httputil.RespBadRequest(ctx, w, `{"error": "bad series: %v"}`, err)
			return
		}
		batch = append(batch, s)
	}

	probas, safe, err := h.cls.PredictProba(ctx, batch)
	if err != nil {
		httputil.RespBadRequest(ctx, w, `{"error": "classify error: %v"}`, err)
		return
	}
	telemetry.RecordClassification(ctx)

	classes := h.cls.Classes()
	resp := response{Classes: classes}
	for i, p := range probas {
		resp.Data = append(resp.Data, struct {
			Probas []float64 `json:"probas"`
			Class  string    `json:"class"`
			Safe   bool      `json:"safe"`
		}{Probas: p.Points(), Class: classes[p.ArgMax()], Safe: safe[i]})
	}
	bytes, err := json.Marshal(resp)
	if err != nil {
		httputil.RespInternalError(ctx, w, `{"error": "failed to encode output json %v"}`, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "%s", bytes)
}
