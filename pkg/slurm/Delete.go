package slurm

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/containerd/containerd/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// StopHandler runs a scancel command for the job identified by the UID in the
// request body, then removes the job directory and its registry entry.
func (h *SidecarHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMicro()
	tracer := otel.Tracer("trainer-sidecar-API")
	spanCtx, span := tracer.Start(h.Ctx, "DeleteSLURM", trace.WithAttributes(
		attribute.Int64("start.timestamp", start),
	))
	defer span.End()
	defer api.SetDurationSpan(start, span)

	log.G(h.Ctx).Info("Slurm Sidecar: received Stop call")

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	var req struct {
		UID string `json:"uid"`
	}
	err = json.Unmarshal(bodyBytes, &req)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusBadRequest, err)
		return
	}

	jidsMutex.RLock()
	entry, ok := (*h.JIDs)[req.UID]
	jidsMutex.RUnlock()
	if !ok {
		h.handleError(spanCtx, w, http.StatusNotFound, errNoJobForUID(req.UID))
		return
	}

	path := jobDirectory(h.Config, entry.Experiment, req.UID)
	err = deleteJob(spanCtx, h.Config, h.Runner, req.UID, h.JIDs, path)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}
	invalidateQueueSnapshot()

	if h.History != nil {
		if err := h.History.UpdatePhase(req.UID, api.PhaseCancelled); err != nil {
			log.G(h.Ctx).Warning(err)
		}
	}

	w.WriteHeader(http.StatusOK)
	api.SetDurationSpan(start, span, api.WithHTTPReturnCode(http.StatusOK))
	_, err = w.Write([]byte("Job deleted"))
	if err != nil {
		log.G(h.Ctx).Error(err)
	}
}
