package slurm

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

// noJobFound is returned when the scheduler no longer knows the job ID,
// typically once the job left the queue and accounting window.
type noJobFound struct {
	msg string
}

func (e *noJobFound) Error() string {
	return e.msg
}

// isNoJobFoundError checks if an error is of type noJobFound
func isNoJobFoundError(err error) bool {
	_, ok := errors.Cause(err).(*noJobFound)
	return ok
}

func errNoJobForUID(uid string) error {
	return errors.Errorf("no job found with UID %s", uid)
}

// jobInfo holds the fields of interest parsed from scontrol show job.
type jobInfo struct {
	ID       string
	Name     string
	State    string
	ExitCode string
	Reason   string
}

// getJobInfo queries scontrol for a given job ID and parses its key=value output.
func getJobInfo(ctx context.Context, config SlurmConfig, runner CommandRunner, jobID string) (*jobInfo, error) {
	output, err := runner.RunCommand(ctx, config.Scontrolpath+" show job "+jobID)
	if err != nil {
		if strings.Contains(output, "Invalid job id specified") || strings.Contains(err.Error(), "Invalid job id specified") {
			return nil, &noJobFound{msg: "no job found for ID " + jobID}
		}
		return nil, errors.Wrapf(err, "failed to retrieve job info for job %s", jobID)
	}
	return parseJobInfo(output, jobID)
}

// parseJobInfo reads the space separated key=value pairs of scontrol show job output.
func parseJobInfo(output string, jobID string) (*jobInfo, error) {
	out := strings.TrimSpace(output)
	if out == "" {
		return nil, &noJobFound{msg: "no job found for ID " + jobID}
	}
	info := &jobInfo{ID: jobID}
	for _, field := range strings.Fields(out) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		switch key {
		case "JobName":
			info.Name = value
		case "JobState":
			info.State = value
		case "ExitCode":
			info.ExitCode = value
		case "Reason":
			info.Reason = value
		}
	}
	if info.State == "" {
		return nil, errors.Errorf("failed to parse job state from scontrol output for job %s", jobID)
	}
	return info, nil
}

// phaseForSqueueCode maps the squeue short state codes to a job phase.
// Unknown codes map to JobUnknown, states listed in neither branch of the
// scheduler docs are treated the same way.
func phaseForSqueueCode(code string) api.JobPhase {
	switch code {
	case "PD", "CF", "S", "ST":
		return api.PhasePending
	case "R", "CG":
		return api.PhaseRunning
	case "CD":
		return api.PhaseCompleted
	case "F", "BF", "NF", "OOM", "TO", "DL":
		return api.PhaseFailed
	case "CA", "PR":
		return api.PhaseCancelled
	default:
		return api.PhaseUnknown
	}
}

// phaseForLongState maps the scontrol long state names to a job phase.
func phaseForLongState(state string) api.JobPhase {
	switch state {
	case "PENDING", "CONFIGURING", "SUSPENDED", "REQUEUED":
		return api.PhasePending
	case "RUNNING", "COMPLETING":
		return api.PhaseRunning
	case "COMPLETED":
		return api.PhaseCompleted
	case "FAILED", "BOOT_FAIL", "NODE_FAIL", "OUT_OF_MEMORY", "TIMEOUT", "DEADLINE":
		return api.PhaseFailed
	case "CANCELLED", "PREEMPTED":
		return api.PhaseCancelled
	default:
		return api.PhaseUnknown
	}
}
