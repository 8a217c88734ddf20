package slurm

import (
	"context"
	"net/http"

	"github.com/containerd/containerd/log"
	"github.com/google/uuid"
)

// GetSessionContext returns the HTTP-Session-Id header if the client set one,
// or a fresh UUID. It lets concurrent calls be told apart in the logs.
func GetSessionContext(r *http.Request) string {
	sessionContext := r.Header.Get("HTTP-Session-Id")
	if sessionContext == "" {
		sessionContext = uuid.NewString()
	}
	return sessionContext
}

// GetSessionContextMessage formats a session context for log line prefixes.
func GetSessionContextMessage(sessionContext string) string {
	return "HTTP-Session-Id: " + sessionContext + " - "
}

// handleError logs the error and writes statusCode plus the error text to the response.
func (h *SidecarHandler) handleError(ctx context.Context, w http.ResponseWriter, statusCode int, err error) {
	log.G(ctx).Error(err)
	w.WriteHeader(statusCode)
	w.Write([]byte("Some errors occurred while handling the request. Check SLURM Sidecar's logs: " + err.Error()))
}

// logErrorVerbose logs with a context message and reports the error to the client
// without altering the already written status code.
func (h *SidecarHandler) logErrorVerbose(contextMessage string, ctx context.Context, w http.ResponseWriter, err error) {
	log.G(ctx).Error(contextMessage, " ", err)
	w.Write([]byte(contextMessage + " " + err.Error()))
}
