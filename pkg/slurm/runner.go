package slurm

import (
	"context"
	"errors"
	"io"
	"strings"

	exec2 "github.com/alexellis/go-execute/pkg/v1"
	"github.com/containerd/containerd/log"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/sshutil"
)

// CommandRunner executes scheduler commands (sbatch, squeue, scancel,
// scontrol) either on the local host or on a login node over SSH, and stages
// generated scripts where the scheduler can see them.
type CommandRunner interface {
	RunCommand(ctx context.Context, cmd string) (string, error)
	// Stage makes a locally generated file available at the same path on the
	// submission host. A no-op when the sidecar runs on the cluster itself.
	Stage(ctx context.Context, source io.Reader, path string, permissions string) error
}

// LocalRunner shells out on the host running the sidecar.
type LocalRunner struct{}

// RunCommand runs cmd through "sh -c" and returns its stdout.
// Stderr output is reported as an error, like sbatch does on refusal.
func (LocalRunner) RunCommand(ctx context.Context, cmd string) (string, error) {
	shell := exec2.ExecTask{
		Command: "sh",
		Args:    []string{"-c", cmd},
		Shell:   true,
	}

	execReturn, err := shell.Execute()
	if err != nil {
		log.G(ctx).Error("Unable to run command " + cmd)
		return "", err
	}

	if execReturn.Stderr != "" {
		return execReturn.Stdout, errors.New(execReturn.Stderr)
	}
	return execReturn.Stdout, nil
}

// Stage is a no-op: the file has already been written below DataRootFolder.
func (LocalRunner) Stage(ctx context.Context, source io.Reader, path string, permissions string) error {
	return nil
}

// SSHRunner submits through a cluster login node. DataRootFolder is expected
// to live on a shared filesystem, only generated scripts are copied.
type SSHRunner struct {
	client *sshutil.SSHClient
}

// NewRunner picks the runner matching the configuration.
func NewRunner(config SlurmConfig) (CommandRunner, error) {
	if config.RemoteHost == "" {
		return LocalRunner{}, nil
	}

	auth := []ssh.AuthMethod{}
	if config.RemotePrivateKey != "" {
		keyAuth, err := sshutil.ReadPrivateKey(config.RemotePrivateKey)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to load the private key for remote submission")
		}
		auth = append(auth, keyAuth)
	}
	if config.RemotePassword != "" {
		auth = append(auth, ssh.Password(config.RemotePassword))
	}
	if len(auth) == 0 {
		return nil, pkgerrors.New("remote submission requires RemotePrivateKey or RemotePassword")
	}

	return &SSHRunner{client: &sshutil.SSHClient{
		Config: &ssh.ClientConfig{
			User: config.RemoteUser,
			Auth: auth,
			// Login nodes are provisioned out of band, host keys are not
			// tracked by the sidecar.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		},
		Host: config.RemoteHost,
		Port: config.RemotePort,
	}}, nil
}

func (r *SSHRunner) RunCommand(ctx context.Context, cmd string) (string, error) {
	out, err := r.client.RunCommand(cmd)
	if err != nil {
		return "", pkgerrors.Wrap(err, strings.TrimSpace(out))
	}
	return out, nil
}

func (r *SSHRunner) Stage(ctx context.Context, source io.Reader, path string, permissions string) error {
	return r.client.CopyFile(ctx, source, path, permissions)
}
