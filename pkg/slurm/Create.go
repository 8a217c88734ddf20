package slurm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/containerd/containerd/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// SubmitHandler generates and submits a SLURM batch script according to the
// job description. The descriptions comes as a JSON api.JobSpec and all the
// resource requests and step commands are resolved into a job.slurm plus a
// job.sh payload script under the job directory.
func (h *SidecarHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMicro()
	tracer := otel.Tracer("trainer-sidecar-API")
	spanCtx, span := tracer.Start(h.Ctx, "CreateSLURM", trace.WithAttributes(
		attribute.Int64("start.timestamp", start),
	))
	defer span.End()
	defer api.SetDurationSpan(start, span)

	log.G(h.Ctx).Info("Slurm Sidecar: received Submit call")

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	var spec api.JobSpec
	err = json.Unmarshal(bodyBytes, &spec)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusBadRequest, err)
		return
	}

	if spec.Name == "" {
		h.handleError(spanCtx, w, http.StatusBadRequest, errors.New("job name is mandatory"))
		return
	}
	if len(spec.Steps) == 0 {
		h.handleError(spanCtx, w, http.StatusBadRequest, errors.New("at least one step is required"))
		return
	}
	newJobUID(&spec)

	span.SetAttributes(
		attribute.String("job.name", spec.Name),
		attribute.String("job.experiment", spec.Experiment),
		attribute.String("job.uid", spec.UID),
	)

	path := jobDirectory(h.Config, spec.Experiment, spec.UID)
	err = os.MkdirAll(path, os.ModePerm)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	var steps []stepScript
	for _, step := range spec.Steps {
		envFilePath, err := prepareEnvs(spanCtx, path, step)
		if err != nil {
			rollbackJobDirectory(spanCtx, spec.UID, h.JIDs, path)
			h.handleError(spanCtx, w, http.StatusInternalServerError, err)
			return
		}
		steps = append(steps, stepScript{
			stepName:    step.Name,
			isSetupStep: step.Setup,
			envFilePath: envFilePath,
			command:     append([]string{step.Command}, step.Args...),
		})
	}

	scriptPath, generated, err := produceSLURMScript(spanCtx, h.Config, &spec, path, steps)
	if err != nil {
		rollbackJobDirectory(spanCtx, spec.UID, h.JIDs, path)
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	out, err := SLURMBatchSubmit(spanCtx, h.Config, h.Runner, scriptPath, generated)
	if err != nil {
		rollbackJobDirectory(spanCtx, spec.UID, h.JIDs, path)
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}
	log.G(h.Ctx).Info(out)

	jid, err := handleJidAndJobUID(spanCtx, &spec, h.JIDs, out, path)
	if err != nil {
		rollbackJobDirectory(spanCtx, spec.UID, h.JIDs, path)
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	if h.History != nil {
		if err := h.History.RecordSubmission(spec.UID, spec.Name, spec.Experiment, jid); err != nil {
			// History is advisory, the job is already queued.
			log.G(h.Ctx).Warning(err)
		}
	}

	span.SetAttributes(attribute.String("job.jid", jid))

	bodyBytes, err = json.Marshal(api.SubmitResponse{UID: spec.UID, JID: jid})
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	api.SetDurationSpan(start, span, api.WithHTTPReturnCode(http.StatusOK))
	_, err = w.Write(bodyBytes)
	if err != nil {
		log.G(h.Ctx).Error(err)
	}
}

// rollbackJobDirectory drops the partially created job files after a failed
// submission, so a resubmit of the same UID starts clean.
func rollbackJobDirectory(ctx context.Context, uid string, JIDs *map[string]*JidStruct, path string) {
	removeJID(uid, JIDs)
	if err := os.RemoveAll(path); err != nil {
		log.G(ctx).Error("Failed to clean up " + path + " after failed submission")
	}
}
