// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

package hostops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/toeirei/warden/internal/model"
	"golang.org/x/crypto/ssh"
)

// KnownHosts resolves pinned host keys. The db store implements it.
type KnownHosts interface {
	GetKnownHostKey(hostname string) (string, error)
}

// SSHConfig carries the connection settings for a fleet run.
type SSHConfig struct {
	User       string // default connect user when the host entry has none
	PrivateKey []byte // PEM-encoded identity; may be encrypted
	Passphrase []byte // passphrase for the identity, nil when unencrypted
	Timeout    time.Duration
}

// Conn is an established SSH+SFTP connection to one host. It backs both the
// read-only state evaluator and the primitive runner.
type Conn struct {
	client *ssh.Client
	sftp   *sftp.Client
}

// Dial connects to a host, verifying its key against the pinned known-hosts
// store. An unknown or mismatching host key fails the connection; first
// contact requires `warden trust-host`.
func Dial(host model.Host, cfg SSHConfig, known KnownHosts) (*Conn, error) {
	hostKeyCallback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		// The hostname passed to the callback can include the port. Strip it
		// so we look up the correct pinned key.
		name, _, err := net.SplitHostPort(hostname)
		if err != nil {
			name = hostname
		}

		presentedKey := string(ssh.MarshalAuthorizedKey(key))

		knownKey, err := known.GetKnownHostKey(name)
		if err != nil {
			return fmt.Errorf("failed to query known_hosts store: %w", err)
		}
		if knownKey == "" {
			return fmt.Errorf("unknown host key for %s. run 'warden trust-host' to add it", name)
		}
		if knownKey != presentedKey {
			return fmt.Errorf("!!! HOST KEY MISMATCH FOR %s !!!\nRemote key presented: %s\nThis could be a man-in-the-middle attack", name, presentedKey)
		}
		return nil
	}

	user := host.User
	if user == "" {
		user = cfg.User
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var authErr error
	if len(cfg.PrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if len(cfg.Passphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(cfg.PrivateKey, cfg.Passphrase)
		} else {
			signer, err = ssh.ParsePrivateKey(cfg.PrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}

		clientCfg := &ssh.ClientConfig{
			User:            user,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		}

		client, err := ssh.Dial("tcp", host.DialAddr(), clientCfg)
		if err == nil {
			sftpClient, sftpErr := sftp.NewClient(client)
			if sftpErr != nil {
				client.Close()
				return nil, fmt.Errorf("failed to create sftp client: %w", sftpErr)
			}
			return &Conn{client: client, sftp: sftpClient}, nil
		}
		// Non-auth failures will not improve with the agent; fail fast.
		if !strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("connection with identity failed: %w", err)
		}
		authErr = err
	}

	agentClient := getSSHAgent()
	if agentClient == nil {
		if authErr != nil {
			return nil, fmt.Errorf("identity authentication failed, and no SSH agent available for fallback: %w", authErr)
		}
		return nil, fmt.Errorf("no authentication method available (no identity configured and no ssh agent found)")
	}

	clientCfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeysCallback(agentClient.Signers)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	client, err := ssh.Dial("tcp", host.DialAddr(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connection with ssh agent failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}

	return &Conn{client: client, sftp: sftpClient}, nil
}

// Close closes the underlying SSH and SFTP clients.
func (c *Conn) Close() {
	if c.sftp != nil {
		c.sftp.Close()
	}
	if c.client != nil {
		c.client.Close()
	}
}

// RunStatus executes a remote command and returns its stdout and exit code.
// A nonzero exit is not an error; err is reserved for transport failures.
// The session is torn down when ctx is cancelled.
func (c *Conn) RunStatus(ctx context.Context, cmd string) (string, int, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return "", 0, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return "", 0, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), exitErr.ExitStatus(), nil
		}
		return "", 0, fmt.Errorf("remote command failed: %w", err)
	}
	return stdout.String(), 0, nil
}

// Run executes a remote command and treats a nonzero exit as an error.
func (c *Conn) Run(ctx context.Context, cmd string) (string, error) {
	out, code, err := c.RunStatus(ctx, cmd)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return out, fmt.Errorf("command %q exited %d", cmd, code)
	}
	return out, nil
}

// Stat reports whether a remote path exists.
func (c *Conn) Stat(path string) (bool, error) {
	_, err := c.sftp.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ReadFile returns the content of a remote file.
func (c *Conn) ReadFile(path string) ([]byte, error) {
	f, err := c.sftp.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("failed to read remote file %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// List returns the entry names of a remote directory.
func (c *Conn) List(dir string) ([]string, error) {
	entries, err := c.sftp.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// FetchHostKey connects to a host just to retrieve its public key, for the
// trust-host flow. The handshake is aborted once the key is captured.
func FetchHostKey(host model.Host) (ssh.PublicKey, error) {
	keyChan := make(chan ssh.PublicKey, 1)

	config := &ssh.ClientConfig{
		// No authentication needed, just start the handshake.
		User: "warden-probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			keyChan <- key
			// Returning an error gracefully stops the handshake.
			return fmt.Errorf("warden: successfully retrieved host key")
		},
		Timeout: 5 * time.Second,
	}

	_, err := ssh.Dial("tcp", host.DialAddr(), config)
	if err != nil {
		if strings.Contains(err.Error(), "warden: successfully retrieved host key") {
			return <-keyChan, nil
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", host, err)
	}

	return nil, fmt.Errorf("ssh.Dial succeeded unexpectedly, could not retrieve key")
}
