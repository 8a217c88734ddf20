package slurm

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/store"
)

func TestGetQueueSnapshot(t *testing.T) {
	invalidateQueueSnapshot()
	calls := 0
	runner := &MockRunner{
		MockRunCommand: func(cmd string) (string, error) {
			calls++
			assert.Contains(t, cmd, "squeue")
			return "1234 R\n5678 PD\n\n", nil
		},
	}
	config := SlurmConfig{Squeuepath: "squeue"}

	snapshot, err := getQueueSnapshot(context.Background(), config, runner)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1234": "R", "5678": "PD"}, snapshot)

	// The second call within the cache window reuses the snapshot.
	_, err = getQueueSnapshot(context.Background(), config, runner)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	invalidateQueueSnapshot()
	_, err = getQueueSnapshot(context.Background(), config, runner)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestJobStatusQueuedJob(t *testing.T) {
	invalidateQueueSnapshot()
	config := testConfig(t)
	h := &SidecarHandler{
		Config: config,
		JIDs: &map[string]*JidStruct{
			"uid-1": {UID: "uid-1", Name: "progsnn-train", Experiment: "snn", JID: "1234"},
		},
		Ctx: context.Background(),
	}
	require.NoError(t, os.MkdirAll(jobDirectory(config, "snn", "uid-1"), 0755))

	status, err := h.jobStatus(context.Background(), "uid-1", map[string]string{"1234": "R"}, "")
	require.NoError(t, err)
	assert.Equal(t, api.PhaseRunning, status.Phase)
	assert.Equal(t, "1234", status.JID)
	assert.False(t, status.StartTime.IsZero())
	assert.True(t, status.EndTime.IsZero())

	// The running transition must be persisted for restarts.
	_, err = os.Stat(jobDirectory(config, "snn", "uid-1") + "/StartedAt.time")
	require.NoError(t, err)
}

func TestJobStatusFinishedJob(t *testing.T) {
	invalidateQueueSnapshot()
	config := testConfig(t)
	history, err := store.Open(t.TempDir() + "/history.db")
	require.NoError(t, err)
	require.NoError(t, history.RecordSubmission("uid-2", "progsnn-train", "snn", "1234"))
	h := &SidecarHandler{
		Config: config,
		JIDs: &map[string]*JidStruct{
			"uid-2": {UID: "uid-2", Name: "progsnn-train", Experiment: "snn", JID: "1234"},
		},
		Ctx: context.Background(),
		Runner: &MockRunner{
			MockRunCommand: func(cmd string) (string, error) {
				return "JobId=1234 JobState=FAILED ExitCode=2:0", nil
			},
		},
		History: history,
	}
	path := jobDirectory(config, "snn", "uid-2")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(path+"/run-train.status", []byte("2\n"), 0644))

	status, err := h.jobStatus(context.Background(), "uid-2", map[string]string{}, "")
	require.NoError(t, err)
	assert.Equal(t, api.PhaseFailed, status.Phase)
	assert.False(t, status.EndTime.IsZero())
	require.Len(t, status.Steps, 1)
	assert.Equal(t, "train", status.Steps[0].Name)
	assert.Equal(t, int32(2), status.Steps[0].ExitCode)

	// The terminal transition lands in the history store with the observed
	// start time and the job exit code.
	entries, err := history.List("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, api.PhaseFailed, entries[0].Phase)
	require.NotNil(t, entries[0].StartedAt)
	require.NotNil(t, entries[0].ExitCode)
	assert.Equal(t, int32(2), *entries[0].ExitCode)
}

func TestJobStatusUnknownUID(t *testing.T) {
	h := &SidecarHandler{Config: testConfig(t), JIDs: &map[string]*JidStruct{}, Ctx: context.Background()}

	status, err := h.jobStatus(context.Background(), "nope", map[string]string{}, "")
	require.NoError(t, err)
	assert.Equal(t, api.PhaseUnknown, status.Phase)
}

func TestPhaseFromStatusFiles(t *testing.T) {
	t.Parallel()
	h := &SidecarHandler{}

	path := t.TempDir()
	require.NoError(t, os.WriteFile(path+"/run-train.status", []byte("0\n"), 0644))
	require.NoError(t, os.WriteFile(path+"/setup-fetch.status", []byte("0\n"), 0644))
	assert.Equal(t, api.PhaseCompleted, h.phaseFromStatusFiles(path))

	require.NoError(t, os.WriteFile(path+"/run-eval.status", []byte("1\n"), 0644))
	assert.Equal(t, api.PhaseFailed, h.phaseFromStatusFiles(path))

	assert.Equal(t, api.PhaseUnknown, h.phaseFromStatusFiles(t.TempDir()))
}
