package slurm

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

func TestReadLogsTail(t *testing.T) {
	t.Parallel()
	logPath := t.TempDir() + "/run-train.out"
	require.NoError(t, os.WriteFile(logPath, []byte("epoch 1\nepoch 2\nepoch 3\n"), 0644))

	output, err := ReadLogs(logPath, api.LogOpts{Tail: 2})
	require.NoError(t, err)
	assert.Equal(t, "epoch 2\nepoch 3\n", string(output))

	// Asking for more lines than exist returns everything.
	output, err = ReadLogs(logPath, api.LogOpts{Tail: 10})
	require.NoError(t, err)
	assert.Equal(t, "epoch 1\nepoch 2\nepoch 3\n", string(output))
}

func TestReadLogsLimitBytes(t *testing.T) {
	t.Parallel()
	logPath := t.TempDir() + "/run-train.out"
	require.NoError(t, os.WriteFile(logPath, []byte("epoch 1\nepoch 2\n"), 0644))

	output, err := ReadLogs(logPath, api.LogOpts{LimitBytes: 7})
	require.NoError(t, err)
	assert.Equal(t, "epoch 1", string(output))
}

func TestReadLogsMissingFile(t *testing.T) {
	t.Parallel()
	_, err := ReadLogs(t.TempDir()+"/run-train.out", api.LogOpts{})
	require.Error(t, err)
}

func TestLogFilePath(t *testing.T) {
	t.Parallel()
	path := t.TempDir()
	require.NoError(t, os.WriteFile(path+"/setup-fetch.out", []byte(""), 0644))

	resolved, err := logFilePath(path, "")
	require.NoError(t, err)
	assert.Equal(t, path+"/job.out", resolved)

	// A setup step resolves to its setup output.
	resolved, err = logFilePath(path, "fetch")
	require.NoError(t, err)
	assert.Equal(t, path+"/setup-fetch.out", resolved)

	// An output not yet written defaults to the run file to wait on.
	resolved, err = logFilePath(path, "train")
	require.NoError(t, err)
	assert.Equal(t, path+"/run-train.out", resolved)
}

func TestStatusFilePathForMatchesResolvedOutput(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/jobs/x/run-train.status", statusFilePathFor("/jobs/x/run-train.out"))
	assert.Equal(t, "/jobs/x/setup-fetch.status", statusFilePathFor("/jobs/x/setup-fetch.out"))
	assert.Equal(t, "/jobs/x/job.status", statusFilePathFor("/jobs/x/job.out"))
}

func TestFollowModeEndsForFinishedSetupStep(t *testing.T) {
	config := testConfig(t)
	h := &SidecarHandler{
		Config: config,
		JIDs: &map[string]*JidStruct{
			"uid-9": {UID: "uid-9", Experiment: "snn", JID: "1234"},
		},
		Ctx: context.Background(),
	}
	path := jobDirectory(config, "snn", "uid-9")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(path+"/setup-fetch.out", []byte("fetched\n"), 0644))
	require.NoError(t, os.WriteFile(path+"/setup-fetch.status", []byte("0\n"), 0644))

	logPath, err := logFilePath(path, "fetch")
	require.NoError(t, err)
	require.Equal(t, path+"/setup-fetch.out", logPath)

	req := api.LogRequest{UID: "uid-9", StepName: "fetch", Opts: api.LogOpts{Follow: true}}
	recorder := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.getLogsFollowMode(context.Background(), recorder, req, logPath, statusFilePathFor(logPath), "")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("follow mode did not stop for a finished setup step")
	}
	assert.Equal(t, "fetched\n", recorder.Body.String())
}
