package sshutil

import (
	"bytes"
	"context"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path"

	scp "github.com/bramvdbogaerde/go-scp"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Client is the interface allowing to run commands on a login node.
type Client interface {
	RunCommand(string) (string, error)
}

// SSHClient runs commands on a remote host, one session per command.
type SSHClient struct {
	Config *ssh.ClientConfig
	Host   string
	Port   int
}

// RunCommand runs a command remotely and returns its combined stdout/stderr.
func (client *SSHClient) RunCommand(cmd string) (string, error) {
	session, err := client.newSession()
	if err != nil {
		return "", err
	}
	defer session.Close()
	var b bytes.Buffer
	session.Stderr = &b
	session.Stdout = &b

	logrus.Debugf("[SSHSession] %q", cmd)
	err = session.Run(cmd)
	return b.String(), err
}

func (client *SSHClient) newSession() (*ssh.Session, error) {
	connection, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", client.Host, client.Port), client.Config)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to open SSH connection")
	}

	session, err := connection.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create session")
	}

	return session, nil
}

// CopyFile copies a reader to the given remote path with specific permissions,
// creating parent directories first.
func (client *SSHClient) CopyFile(ctx context.Context, source io.Reader, remotePath, permissions string) error {
	scpHostPort := fmt.Sprintf("%s:%d", client.Host, client.Port)
	scpClient := scp.NewClient(scpHostPort, client.Config)

	err := scpClient.Connect()
	if err != nil {
		return errors.Wrapf(err, "Couldn't establish a connection to the remote host:%q", scpHostPort)
	}
	defer scpClient.Close()

	remoteDir := path.Dir(remotePath)
	_, err = client.RunCommand(fmt.Sprintf("mkdir -p %s", remoteDir))
	if err != nil {
		return errors.Wrapf(err, "Couldn't create the remote directory:%q", remoteDir)
	}

	logrus.Debugf("Copy source over SSH to remote path:%s", remotePath)
	return scpClient.CopyFile(ctx, source, remotePath, permissions)
}

// ReadPrivateKey returns an authentication method relying on private/public
// key pairs. The argument is either a path to the private key file, or the
// content of this private key file.
func ReadPrivateKey(pk string) (ssh.AuthMethod, error) {
	var p []byte
	keyPath, err := homedir.Expand(pk)
	if err != nil {
		return nil, errors.Wrap(err, "failed to expand key path")
	}
	if _, err := os.Stat(keyPath); err == nil {
		p, err = os.ReadFile(keyPath)
		if err != nil {
			p = []byte(pk)
		}
	} else {
		p = []byte(pk)
	}

	// Parse the private key on our own first so that we can show a nicer
	// error if the key has a password.
	block, _ := pem.Decode(p)
	if block == nil {
		return nil, errors.Errorf("Failed to read key %q: no key found", pk)
	}
	if block.Headers["Proc-Type"] == "4,ENCRYPTED" {
		return nil, errors.Errorf("Failed to read key %q: password protected keys are not supported, please decrypt the key prior to use", pk)
	}

	signer, err := ssh.ParsePrivateKey(p)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to parse key file %q", pk)
	}

	return ssh.PublicKeys(signer), nil
}
