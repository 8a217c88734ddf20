package slurm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/containerd/containerd/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// The squeue snapshot is shared across requests: polling clients can hammer
// /status, one scheduler query per cache window is enough.
var (
	squeueMutex    sync.Mutex
	squeueTaken    time.Time
	squeueSnapshot map[string]string
)

// getQueueSnapshot returns a map JID -> squeue short state code for all jobs
// visible to the sidecar user, refreshing it when the cached one is older
// than the configured TTL.
func getQueueSnapshot(ctx context.Context, config SlurmConfig, runner CommandRunner) (map[string]string, error) {
	squeueMutex.Lock()
	defer squeueMutex.Unlock()

	if squeueSnapshot != nil && time.Since(squeueTaken) < config.statusCacheTTL() {
		return squeueSnapshot, nil
	}

	output, err := runner.RunCommand(ctx, config.Squeuepath+" --me -h -o '%i %t'")
	if err != nil {
		return nil, err
	}

	snapshot := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		snapshot[fields[0]] = fields[1]
	}

	squeueSnapshot = snapshot
	squeueTaken = time.Now()
	return snapshot, nil
}

// invalidateQueueSnapshot drops the cached squeue output. Used after actions
// that change the queue, like a job deletion.
func invalidateQueueSnapshot() {
	squeueMutex.Lock()
	defer squeueMutex.Unlock()
	squeueSnapshot = nil
}

// StatusHandler performs a squeue command and uses the output to check job
// statuses. The request body is a JSON array of job UIDs; an empty array means
// every job the sidecar knows about.
func (h *SidecarHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMicro()
	tracer := otel.Tracer("trainer-sidecar-API")
	spanCtx, span := tracer.Start(h.Ctx, "StatusSLURM", trace.WithAttributes(
		attribute.Int64("start.timestamp", start),
	))
	defer span.End()
	defer api.SetDurationSpan(start, span)

	sessionContext := GetSessionContext(r)
	sessionContextMessage := GetSessionContextMessage(sessionContext)
	log.G(h.Ctx).Info(sessionContextMessage, "Slurm Sidecar: received GetStatus call")

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	var uids []string
	err = json.Unmarshal(bodyBytes, &uids)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusBadRequest, err)
		return
	}
	if len(uids) == 0 {
		jidsMutex.RLock()
		for uid := range *h.JIDs {
			uids = append(uids, uid)
		}
		jidsMutex.RUnlock()
	}

	snapshot, err := getQueueSnapshot(spanCtx, h.Config, h.Runner)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	resp := []api.JobStatus{}
	for _, uid := range uids {
		status, err := h.jobStatus(spanCtx, uid, snapshot, sessionContextMessage)
		if err != nil {
			log.G(h.Ctx).Error(sessionContextMessage, "failed to resolve status of job ", uid, ": ", err)
		}
		resp = append(resp, status)
	}

	span.SetAttributes(attribute.Int("status.jobs", len(resp)))

	bodyBytes, err = json.Marshal(resp)
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

// jobStatus resolves the phase of a single job. Jobs still in the squeue
// snapshot map from the short state code; jobs that already left the queue
// are resolved through scontrol, falling back to the on-disk step status
// files when the scheduler forgot the job.
func (h *SidecarHandler) jobStatus(ctx context.Context, uid string, snapshot map[string]string, sessionContextMessage string) (api.JobStatus, error) {
	jidsMutex.RLock()
	entry, ok := (*h.JIDs)[uid]
	jidsMutex.RUnlock()
	if !ok {
		return api.JobStatus{UID: uid, Phase: api.PhaseUnknown}, nil
	}

	status := api.JobStatus{
		UID:        uid,
		Name:       entry.Name,
		Experiment: entry.Experiment,
		JID:        entry.JID,
	}
	path := jobDirectory(h.Config, entry.Experiment, uid)
	exitCodeMatch := "0"

	if code, queued := snapshot[entry.JID]; queued {
		status.Phase = phaseForSqueueCode(code)
	} else {
		info, err := getJobInfo(ctx, h.Config, h.Runner, entry.JID)
		switch {
		case err == nil:
			status.Phase = phaseForLongState(info.State)
			// ExitCode comes as "code:signal".
			exitCodeMatch, _, _ = strings.Cut(info.ExitCode, ":")
		case isNoJobFoundError(err):
			status.Phase = h.phaseFromStatusFiles(path)
		default:
			status.Phase = api.PhaseUnknown
			return status, err
		}
	}

	if status.Phase != api.PhasePending && entry.StartTime.IsZero() {
		entry.StartTime = time.Now()
		if err := os.WriteFile(path+"/StartedAt.time", []byte(entry.StartTime.Format(timestampFormat)), 0644); err != nil {
			log.G(ctx).Error(sessionContextMessage, "failed to write StartedAt.time: ", err)
		}
	}
	status.StartTime = entry.StartTime

	if status.Phase.Terminal() {
		if entry.EndTime.IsZero() {
			entry.EndTime = time.Now()
			if err := os.WriteFile(path+"/FinishedAt.time", []byte(entry.EndTime.Format(timestampFormat)), 0644); err != nil {
				log.G(ctx).Error(sessionContextMessage, "failed to write FinishedAt.time: ", err)
			}
		}
		status.EndTime = entry.EndTime
		status.Steps = h.stepStatuses(ctx, path, exitCodeMatch, sessionContextMessage)

		if h.History != nil {
			// The job exit code is the highest step exit code, matching the
			// batch script's endScript semantics.
			var jobExitCode int32
			for _, step := range status.Steps {
				if step.ExitCode > jobExitCode {
					jobExitCode = step.ExitCode
				}
			}
			if err := h.History.RecordOutcome(uid, status.Phase, entry.StartTime, jobExitCode); err != nil {
				log.G(ctx).Warning(err)
			}
		}
	}

	return status, nil
}

// phaseFromStatusFiles infers a terminal phase from the per-step .status
// files when the scheduler no longer knows the job.
func (h *SidecarHandler) phaseFromStatusFiles(path string) api.JobPhase {
	entries, err := os.ReadDir(path)
	if err != nil {
		return api.PhaseUnknown
	}
	seen := false
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".status") {
			continue
		}
		seen = true
		content, err := os.ReadFile(path + "/" + entry.Name())
		if err != nil || strings.TrimSpace(string(content)) != "0" {
			return api.PhaseFailed
		}
	}
	if !seen {
		return api.PhaseUnknown
	}
	return api.PhaseCompleted
}

// stepStatuses collects the exit code of every step that produced a .status
// file, using the scheduler-reported exit code as fallback for missing files.
func (h *SidecarHandler) stepStatuses(ctx context.Context, path string, exitCodeMatch string, sessionContextMessage string) []api.StepStatus {
	entries, err := os.ReadDir(path)
	if err != nil {
		log.G(ctx).Error(sessionContextMessage, "failed to read job directory ", path, ": ", err)
		return nil
	}

	var steps []api.StepStatus
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".status") {
			continue
		}
		var stepName string
		var setup bool
		switch {
		case strings.HasPrefix(name, "run-"):
			stepName = strings.TrimSuffix(strings.TrimPrefix(name, "run-"), ".status")
		case strings.HasPrefix(name, "setup-"):
			stepName = strings.TrimSuffix(strings.TrimPrefix(name, "setup-"), ".status")
			setup = true
		default:
			continue
		}
		exitCode, err := getExitCode(ctx, path, stepName, exitCodeMatch, sessionContextMessage)
		if err != nil {
			log.G(ctx).Error(err)
			continue
		}
		steps = append(steps, api.StepStatus{Name: stepName, ExitCode: exitCode, Setup: setup})
	}
	return steps
}
