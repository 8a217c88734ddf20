package slurm

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/containerd/containerd/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// HistoryHandler lists past submissions from the history store. The
// experiment and limit query parameters narrow the result.
func (h *SidecarHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMicro()
	tracer := otel.Tracer("trainer-sidecar-API")
	spanCtx, span := tracer.Start(h.Ctx, "HistorySLURM", trace.WithAttributes(
		attribute.Int64("start.timestamp", start),
	))
	defer span.End()
	defer api.SetDurationSpan(start, span)

	log.G(h.Ctx).Info("Slurm Sidecar: received History call")

	if h.History == nil {
		h.handleError(spanCtx, w, http.StatusServiceUnavailable, errors.New("job history is not enabled, set HistoryDBPath in the configuration"))
		return
	}

	experiment := r.URL.Query().Get("experiment")
	limit := 0
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			h.handleError(spanCtx, w, http.StatusBadRequest, err)
			return
		}
		limit = parsed
	}

	entries, err := h.History.List(experiment, limit)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	span.SetAttributes(attribute.Int("history.entries", len(entries)))

	bodyBytes, err := json.Marshal(entries)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	api.SetDurationSpan(start, span, api.WithHTTPReturnCode(http.StatusOK))
	_, err = w.Write(bodyBytes)
	if err != nil {
		log.G(h.Ctx).Error(err)
	}
}
