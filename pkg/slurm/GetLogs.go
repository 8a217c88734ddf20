package slurm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/containerd/containerd/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// followLogsPeriod is how often follow mode checks the output file for new
// bytes and the status file for termination.
const followLogsPeriod = 4 * time.Second

var errStreamingUnsupported = errors.New("streaming not supported by the response writer")

// logFilePath resolves which output file a log request points at: the
// scheduler-level job.out when no step is named, otherwise the run- or
// setup- output of that step.
func logFilePath(path string, stepName string) (string, error) {
	if stepName == "" {
		return path + "/job.out", nil
	}
	candidates := []string{
		path + "/run-" + stepName + ".out",
		path + "/setup-" + stepName + ".out",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	// Default to the run output so follow mode can wait for it to appear.
	return candidates[0], nil
}

// statusFilePathFor is the termination marker matching a resolved output
// file: run-, setup- and job-level outputs all pair with a .status of the
// same name.
func statusFilePathFor(logPath string) string {
	return strings.TrimSuffix(logPath, ".out") + ".status"
}

// ReadLogs loads an output file and applies the Tail and LimitBytes options,
// in that order.
func ReadLogs(logPath string, opts api.LogOpts) ([]byte, error) {
	output, err := os.ReadFile(logPath)
	if err != nil {
		return nil, err
	}

	if opts.Tail > 0 {
		lines := bytes.Split(output, []byte("\n"))
		// A trailing newline produces one empty trailing element.
		if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
			lines = lines[:len(lines)-1]
		}
		if opts.Tail < len(lines) {
			lines = lines[len(lines)-opts.Tail:]
		}
		output = append(bytes.Join(lines, []byte("\n")), '\n')
	}

	if opts.LimitBytes > 0 && len(output) > opts.LimitBytes {
		output = output[:opts.LimitBytes]
	}
	return output, nil
}

// GetLogsHandler reads the step output files and returns them to the client.
// In follow mode the response is streamed until the step terminates or the
// job is deleted.
func (h *SidecarHandler) GetLogsHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMicro()
	tracer := otel.Tracer("trainer-sidecar-API")
	spanCtx, span := tracer.Start(h.Ctx, "GetLogsSLURM", trace.WithAttributes(
		attribute.Int64("start.timestamp", start),
	))
	defer span.End()
	defer api.SetDurationSpan(start, span)

	sessionContext := GetSessionContext(r)
	sessionContextMessage := GetSessionContextMessage(sessionContext)
	log.G(h.Ctx).Info(sessionContextMessage, "Slurm Sidecar: received GetLogs call")

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	var req api.LogRequest
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

	span.SetAttributes(
		attribute.String("getlogs.job.uid", req.UID),
		attribute.String("getlogs.step", req.StepName),
		attribute.Bool("getlogs.follow", req.Opts.Follow),
	)

	path := jobDirectory(h.Config, entry.Experiment, req.UID)
	logPath, err := logFilePath(path, req.StepName)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	if req.Opts.Follow {
		h.getLogsFollowMode(spanCtx, w, req, logPath, statusFilePathFor(logPath), sessionContextMessage)
		api.SetDurationSpan(start, span, api.WithHTTPReturnCode(http.StatusOK))
		return
	}

	output, err := ReadLogs(logPath, req.Opts)
	if err != nil {
		h.handleError(spanCtx, w, http.StatusInternalServerError, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	api.SetDurationSpan(start, span, api.WithHTTPReturnCode(http.StatusOK))
	_, err = w.Write(output)
	if err != nil {
		log.G(h.Ctx).Error(err)
	}
}

// getLogsFollowMode streams the output file to the client, sending new bytes
// as they appear. It returns when the matching status file shows up (step
// ended), when the job disappears from the registry (deleted) or when the
// client goes away.
func (h *SidecarHandler) getLogsFollowMode(ctx context.Context, w http.ResponseWriter, req api.LogRequest, logPath string, statusPath string, sessionContextMessage string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.handleError(ctx, w, http.StatusInternalServerError, errStreamingUnsupported)
		return
	}

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var sent int64
	for {
		file, err := os.Open(logPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			// The header is already out, the error can only go in the body.
			h.logErrorVerbose(sessionContextMessage, ctx, w, err)
			return
		}
		if err == nil {
			if _, err = file.Seek(sent, io.SeekStart); err == nil {
				written, errCopy := io.Copy(w, file)
				sent += written
				if written > 0 {
					flusher.Flush()
				}
				if errCopy != nil {
					log.G(ctx).Debug(sessionContextMessage, "client went away while following ", logPath)
					file.Close()
					return
				}
			}
			file.Close()
		}

		// Once the status file exists the step wrote its last bytes, and the
		// copy above already drained them.
		if _, err := os.Stat(statusPath); err == nil {
			log.G(ctx).Info(sessionContextMessage, "step terminated, stopping follow of ", logPath)
			return
		}
		jidsMutex.RLock()
		_, stillKnown := (*h.JIDs)[req.UID]
		jidsMutex.RUnlock()
		if !stillKnown {
			log.G(ctx).Info(sessionContextMessage, "job deleted, stopping follow of ", logPath)
			return
		}

		select {
		case <-h.Ctx.Done():
			return
		case <-time.After(followLogsPeriod):
		}
	}
}
