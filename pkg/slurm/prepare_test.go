package slurm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// MockRunner allows to mock the scheduler command execution.
type MockRunner struct {
	MockRunCommand func(string) (string, error)
	StagedFiles    []string
}

func (m *MockRunner) RunCommand(ctx context.Context, cmd string) (string, error) {
	if m.MockRunCommand != nil {
		return m.MockRunCommand(cmd)
	}
	return "", nil
}

func (m *MockRunner) Stage(ctx context.Context, source io.Reader, path string, permissions string) error {
	m.StagedFiles = append(m.StagedFiles, path)
	return nil
}

func testConfig(t *testing.T) SlurmConfig {
	config := SlurmConfig{DataRootFolder: t.TempDir() + "/"}
	config.applyDefaults()
	return config
}

func TestProduceSLURMScript(t *testing.T) {
	config := testConfig(t)
	config.Commandprefix = "set -e"
	config.CondaSourceScript = "/opt/conda/etc/profile.d/conda.sh"

	spec := &api.JobSpec{
		UID:        "uid-1234",
		Name:       "progsnn-train",
		Experiment: "snn",
		WorkingDir: "/home/user/progsnn",
		Activation: api.EnvActivation{Conda: "torch-env"},
		Resources: api.ResourceRequest{
			CPUsPerTask: 4,
			MemoryMB:    8192,
			GPUs:        1,
			Partition:   "gpu",
			WallTime:    "04:00:00",
		},
		SbatchFlags: []string{"--exclusive"},
		Account:     "proj-42",
	}

	path := jobDirectory(config, spec.Experiment, spec.UID)
	steps := []stepScript{
		{stepName: "fetch-data", isSetupStep: true, envFilePath: "-", command: []string{"rsync", "-a", "data/", "scratch/"}},
		{stepName: "train", envFilePath: "-", command: []string{"python", "train.py", "--epochs", "100"}},
	}

	scriptPath, generated, err := produceSLURMScript(context.Background(), config, spec, path, steps)
	require.NoError(t, err)
	require.Equal(t, path+"/job.slurm", scriptPath)
	require.Len(t, generated, 2)

	batch, err := os.ReadFile(path + "/job.slurm")
	require.NoError(t, err)
	batchStr := string(batch)
	assert.Contains(t, batchStr, "#!"+config.BashPath)
	assert.Contains(t, batchStr, "#SBATCH --job-name=uid-1234")
	assert.Contains(t, batchStr, "#SBATCH --cpus-per-task=4")
	assert.Contains(t, batchStr, "#SBATCH --mem=8192")
	assert.Contains(t, batchStr, "#SBATCH --gres=gpu:1")
	assert.Contains(t, batchStr, "#SBATCH --partition=gpu")
	assert.Contains(t, batchStr, "#SBATCH --time=04:00:00")
	assert.Contains(t, batchStr, "#SBATCH --account=proj-42")
	assert.Contains(t, batchStr, "#SBATCH --exclusive")
	assert.Contains(t, batchStr, "set -e")
	assert.Contains(t, batchStr, "source /opt/conda/etc/profile.d/conda.sh")
	assert.Contains(t, batchStr, "conda activate torch-env")
	assert.Contains(t, batchStr, "cd /home/user/progsnn")
	assert.Contains(t, batchStr, path+"/job.sh")

	payload, err := os.ReadFile(path + "/job.sh")
	require.NoError(t, err)
	payloadStr := string(payload)
	assert.Contains(t, payloadStr, "runSetupStep fetch-data - rsync -a data/ scratch/")
	assert.Contains(t, payloadStr, "runStep train - python train.py --epochs 100")
	assert.Contains(t, payloadStr, "waitSteps\nendScript")
	assert.Contains(t, payloadStr, "export workingPath="+path)
}

func TestProduceSLURMScriptEscapesArguments(t *testing.T) {
	config := testConfig(t)
	spec := &api.JobSpec{UID: "uid-esc", Name: "esc", Experiment: "default"}
	path := jobDirectory(config, spec.Experiment, spec.UID)
	steps := []stepScript{
		{stepName: "train", envFilePath: "-", command: []string{"python", "train.py", "--tag", "late run; rm -rf /"}},
	}

	_, _, err := produceSLURMScript(context.Background(), config, spec, path, steps)
	require.NoError(t, err)

	payload, err := os.ReadFile(path + "/job.sh")
	require.NoError(t, err)
	assert.Contains(t, string(payload), "'late run; rm -rf /'")
}

func TestSbatchDirectivesFallbacks(t *testing.T) {
	spec := &api.JobSpec{Name: "bare"}
	flags := sbatchDirectives(context.Background(), spec)
	assert.Contains(t, flags, "--cpus-per-task=1")
	assert.Contains(t, flags, "--mem=1")
}

func TestActivationCommands(t *testing.T) {
	config := SlurmConfig{}

	cmds := activationCommands(config, api.EnvActivation{Venv: "/opt/venv"})
	require.Equal(t, []string{"source /opt/venv/bin/activate"}, cmds)

	cmds = activationCommands(config, api.EnvActivation{Modules: []string{"python/3.11", "cuda/12.1"}})
	require.Equal(t, []string{"module load python/3.11", "module load cuda/12.1"}, cmds)

	cmds = activationCommands(config, api.EnvActivation{})
	require.Empty(t, cmds)
}

func TestPrepareEnvs(t *testing.T) {
	path := t.TempDir()
	step := api.Step{
		Name: "train",
		Env: []api.EnvVar{
			{Name: "EPOCHS", Value: "100"},
			{Name: "TAG", Value: "with space"},
		},
	}

	envfilePath, err := prepareEnvs(context.Background(), path, step)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(path, "train_envfile.properties"), envfilePath)

	content, err := os.ReadFile(envfilePath)
	require.NoError(t, err)
	assert.Equal(t, "EPOCHS=100\nTAG='with space'\n", string(content))
}

func TestPrepareEnvsNoEnvironment(t *testing.T) {
	envfilePath, err := prepareEnvs(context.Background(), t.TempDir(), api.Step{Name: "train"})
	require.NoError(t, err)
	require.Equal(t, "-", envfilePath)
}

func TestHandleJidAndJobUID(t *testing.T) {
	path := t.TempDir()
	JIDs := make(map[string]*JidStruct)
	spec := &api.JobSpec{UID: "uid-77", Name: "progsnn-train", Experiment: "snn"}

	jid, err := handleJidAndJobUID(context.Background(), spec, &JIDs, "Submitted batch job 4242", path)
	require.NoError(t, err)
	require.Equal(t, "4242", jid)

	content, err := os.ReadFile(filepath.Join(path, "JobID.jid"))
	require.NoError(t, err)
	assert.Equal(t, "4242", string(content))

	require.Contains(t, JIDs, "uid-77")
	assert.Equal(t, "4242", JIDs["uid-77"].JID)
	assert.Equal(t, "snn", JIDs["uid-77"].Experiment)
}

func TestHandleJidAndJobUIDUnparsableOutput(t *testing.T) {
	JIDs := make(map[string]*JidStruct)
	spec := &api.JobSpec{UID: "uid-78"}

	_, err := handleJidAndJobUID(context.Background(), spec, &JIDs, "sbatch: error: invalid partition", t.TempDir())
	require.Error(t, err)
	require.NotContains(t, JIDs, "uid-78")
}

func TestSLURMBatchSubmitStagesGeneratedFiles(t *testing.T) {
	config := testConfig(t)
	scriptPath := filepath.Join(t.TempDir(), "job.slurm")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/bash\n"), 0774))

	runner := &MockRunner{
		MockRunCommand: func(cmd string) (string, error) {
			assert.Equal(t, "sbatch "+scriptPath, cmd)
			return "Submitted batch job 99\n", nil
		},
	}

	out, err := SLURMBatchSubmit(context.Background(), config, runner, scriptPath, []string{scriptPath})
	require.NoError(t, err)
	assert.Equal(t, "Submitted batch job 99", out)
	assert.Equal(t, []string{scriptPath}, runner.StagedFiles)
}

func TestGetExitCode(t *testing.T) {
	path := t.TempDir()
	require.NoError(t, os.WriteFile(path+"/run-train.status", []byte("137\n"), 0644))

	exitCode, err := getExitCode(context.Background(), path, "train", "0", "")
	require.NoError(t, err)
	assert.Equal(t, int32(137), exitCode)
}

func TestGetExitCodeFallsBackToSchedulerCode(t *testing.T) {
	path := t.TempDir()

	exitCode, err := getExitCode(context.Background(), path, "train", "15", "")
	require.NoError(t, err)
	assert.Equal(t, int32(15), exitCode)

	// The fallback persists the code so later calls read the file.
	content, err := os.ReadFile(path + "/setup-train.status")
	require.NoError(t, err)
	assert.Equal(t, "15", string(content))
}

func TestLoadJIDs(t *testing.T) {
	config := testConfig(t)
	h := &SidecarHandler{Config: config, JIDs: &map[string]*JidStruct{}, Ctx: context.Background()}

	path := jobDirectory(config, "snn", "uid-55")
	require.NoError(t, os.MkdirAll(path, 0755))
	started := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	require.NoError(t, os.WriteFile(path+"/JobID.jid", []byte("555"), 0644))
	require.NoError(t, os.WriteFile(path+"/JobUID.uid", []byte("uid-55"), 0644))
	require.NoError(t, os.WriteFile(path+"/Experiment.exp", []byte("snn"), 0644))
	require.NoError(t, os.WriteFile(path+"/JobName.name", []byte("progsnn-train"), 0644))
	require.NoError(t, os.WriteFile(path+"/StartedAt.time", []byte(started.Format(timestampFormat)), 0644))

	require.NoError(t, h.LoadJIDs())

	require.Contains(t, *h.JIDs, "uid-55")
	entry := (*h.JIDs)["uid-55"]
	assert.Equal(t, "555", entry.JID)
	assert.Equal(t, "snn", entry.Experiment)
	assert.Equal(t, "progsnn-train", entry.Name)
	assert.True(t, entry.StartTime.Equal(started))
	assert.True(t, entry.EndTime.IsZero())
}

func TestJidRegistryConcurrentAccess(t *testing.T) {
	JIDs := make(map[string]*JidStruct)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		uid := fmt.Sprintf("uid-%d", i)
		path := t.TempDir()
		wg.Add(2)
		go func() {
			defer wg.Done()
			spec := &api.JobSpec{UID: uid, Name: "progsnn-train", Experiment: "snn"}
			_, err := handleJidAndJobUID(ctx, spec, &JIDs, "Submitted batch job 1", path)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			checkIfJidExists(ctx, &JIDs, uid)
			removeJID(uid, &JIDs)
		}()
	}
	wg.Wait()
}

func TestParsingTimeFromString(t *testing.T) {
	now := time.Now()
	parsed, err := parsingTimeFromString(context.Background(), now.Format(timestampFormat), timestampFormat)
	require.NoError(t, err)
	assert.WithinDuration(t, now, parsed, time.Second)

	_, err = parsingTimeFromString(context.Background(), "not a timestamp", timestampFormat)
	require.Error(t, err)
}
