package api

import (
	"time"
)

// EnvVar is a single environment variable passed to a job step.
type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// EnvActivation describes how the job environment is brought up before any
// step runs. Exactly one of Conda, Venv or Modules is expected to be set.
type EnvActivation struct {
	// Conda is the name of a conda environment to activate.
	Conda string `json:"conda,omitempty" yaml:"conda,omitempty"`
	// Venv is the path of a virtualenv root; its bin/activate gets sourced.
	Venv string `json:"venv,omitempty" yaml:"venv,omitempty"`
	// Modules are names passed to "module load".
	Modules []string `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// ResourceRequest maps onto sbatch directives. Zero values are left out of the
// generated script, except CPU and memory which fall back to minimal defaults.
type ResourceRequest struct {
	CPUsPerTask int    `json:"cpusPerTask,omitempty" yaml:"cpusPerTask,omitempty"`
	MemoryMB    int64  `json:"memoryMB,omitempty" yaml:"memoryMB,omitempty"`
	GPUs        int    `json:"gpus,omitempty" yaml:"gpus,omitempty"`
	Gres        string `json:"gres,omitempty" yaml:"gres,omitempty"`
	Partition   string `json:"partition,omitempty" yaml:"partition,omitempty"`
	Nodes       int    `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	NTasks      int    `json:"ntasks,omitempty" yaml:"ntasks,omitempty"`
	// WallTime uses the sbatch --time format, e.g. "04:00:00".
	WallTime string `json:"wallTime,omitempty" yaml:"wallTime,omitempty"`
}

// Step is one command executed inside the batch job. Setup steps run
// sequentially before anything else and abort the job on failure; regular
// steps run in the background and are waited on collectively.
type Step struct {
	Name    string   `json:"name" yaml:"name"`
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []EnvVar `json:"env,omitempty" yaml:"env,omitempty"`
	Setup   bool     `json:"setup,omitempty" yaml:"setup,omitempty"`
}

// JobSpec is the full description of a training job submitted to the sidecar.
// 1 JobSpec = 1 SLURM job. Every step is a line in the generated batch script.
type JobSpec struct {
	// UID identifies the job on the sidecar. Assigned at submission when empty.
	UID        string `json:"uid,omitempty" yaml:"uid,omitempty"`
	Name       string `json:"name" yaml:"name"`
	Experiment string `json:"experiment,omitempty" yaml:"experiment,omitempty"`
	// WorkingDir is where the steps run; the generated script cds into it.
	WorkingDir string          `json:"workingDir,omitempty" yaml:"workingDir,omitempty"`
	Activation EnvActivation   `json:"activation,omitempty" yaml:"activation,omitempty"`
	Steps      []Step          `json:"steps" yaml:"steps"`
	Resources  ResourceRequest `json:"resources,omitempty" yaml:"resources,omitempty"`
	// SbatchFlags are raw flags appended verbatim as #SBATCH lines.
	SbatchFlags []string `json:"sbatchFlags,omitempty" yaml:"sbatchFlags,omitempty"`
	Account     string   `json:"account,omitempty" yaml:"account,omitempty"`
	MailUser    string   `json:"mailUser,omitempty" yaml:"mailUser,omitempty"`
}

// JobPhase is the sidecar-level state of a job, folded down from SLURM states.
type JobPhase string

const (
	PhasePending   JobPhase = "Pending"
	PhaseRunning   JobPhase = "Running"
	PhaseCompleted JobPhase = "Completed"
	PhaseFailed    JobPhase = "Failed"
	PhaseCancelled JobPhase = "Cancelled"
	PhaseUnknown   JobPhase = "Unknown"
)

// Terminal reports whether the phase can no longer change.
func (p JobPhase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// StepStatus carries the observed exit code of a single finished step.
type StepStatus struct {
	Name     string `json:"name"`
	ExitCode int32  `json:"exitCode"`
	Setup    bool   `json:"setup,omitempty"`
}

// JobStatus is what /status returns for each requested job.
type JobStatus struct {
	UID        string       `json:"uid"`
	Name       string       `json:"name"`
	Experiment string       `json:"experiment"`
	JID        string       `json:"jid"`
	Phase      JobPhase     `json:"phase"`
	Steps      []StepStatus `json:"steps,omitempty"`
	StartTime  time.Time    `json:"startTime,omitempty"`
	EndTime    time.Time    `json:"endTime,omitempty"`
}

// SubmitResponse is returned by /create once sbatch accepted the job.
type SubmitResponse struct {
	UID string `json:"uid"`
	JID string `json:"jid"`
}

// LogOpts mirrors the options of the log retrieval call.
type LogOpts struct {
	Tail       int  `json:"tail,omitempty"`
	LimitBytes int  `json:"limitBytes,omitempty"`
	Follow     bool `json:"follow,omitempty"`
}

// LogRequest identifies the job step to read logs from.
type LogRequest struct {
	UID        string  `json:"uid"`
	Experiment string  `json:"experiment"`
	StepName   string  `json:"stepName"`
	Opts       LogOpts `json:"opts"`
}

// HistoryEntry is one row of the job history store as exposed on /history.
type HistoryEntry struct {
	UID         string     `json:"uid"`
	JID         string     `json:"jid"`
	Name        string     `json:"name"`
	Experiment  string     `json:"experiment"`
	Phase       JobPhase   `json:"phase"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	ExitCode    *int32     `json:"exitCode,omitempty"`
}
