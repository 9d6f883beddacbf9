package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"sync"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/pkg/file"
	"github.com/kevinburke/ssh_config"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NativeOptions configures a NativeTransport.
type NativeOptions struct {
	SSHConfigPath         string        // Path to the ssh client config used to resolve aliases
	KnownHostsPath        string        // Path to known_hosts used for host key verification
	InsecureIgnoreHostKey bool          // Skip host key verification entirely
	ConnectionTimeout     time.Duration // Dial and handshake timeout
	DefaultIdentityFiles  []string      // Keys tried when the alias names no IdentityFile
}

// endpoint is an alias resolved through the ssh config.
type endpoint struct {
	addr          string
	user          string
	identityFiles []string
}

// NativeTransport speaks SSH in-process with golang.org/x/crypto/ssh and keeps
// one client connection per host alias.
type NativeTransport struct {
	options    NativeOptions
	sshConfig  *ssh_config.Config
	fileClient file.FileOperations
	logger     zerolog.Logger

	clients    map[string]*ssh.Client
	clientsMux sync.Mutex
}

// NewNativeTransport loads the ssh config (a missing file is treated as empty)
// and returns a transport ready to dial.
func NewNativeTransport(options NativeOptions, fileClient file.FileOperations, logger zerolog.Logger) (*NativeTransport, error) {
	if options.ConnectionTimeout == 0 {
		options.ConnectionTimeout = constants.ConnectionTimeout
	}

	t := &NativeTransport{
		options:    options,
		fileClient: fileClient,
		logger:     logger,
		clients:    make(map[string]*ssh.Client),
	}

	if options.SSHConfigPath == "" {
		return t, nil
	}

	exists, err := fileClient.IsFileExists(options.SSHConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat ssh config: %w", err)
	}
	if !exists {
		logger.Debug().Str("path", options.SSHConfigPath).Msg("ssh config not found, using aliases as host names")
		return t, nil
	}

	data, err := fileClient.ReadFileRaw(options.SSHConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ssh config: %w", err)
	}
	t.sshConfig, err = ssh_config.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh config: %w", err)
	}
	return t, nil
}

// Run executes command on host over a cached SSH connection.
func (t *NativeTransport) Run(ctx context.Context, host, command string, timeout time.Duration) (ExecResult, error) {
	client, err := t.client(ctx, host)
	if err != nil {
		return ExecResult{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		t.drop(host, client)
		return ExecResult{}, fmt.Errorf("failed to open SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err == nil {
			return ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return ExecResult{
				ExitCode: exitErr.ExitStatus(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
		t.drop(host, client)
		return ExecResult{}, fmt.Errorf("remote command failed: %w", err)

	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		t.logger.Error().Str("host", host).Dur("timeout", timeout).Msg("Remote command timed out")
		return ExecResult{}, fmt.Errorf("%w after %s", ErrTimeout, timeout)

	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ExecResult{}, ctx.Err()
	}
}

// Close closes every cached connection.
func (t *NativeTransport) Close() error {
	t.clientsMux.Lock()
	defer t.clientsMux.Unlock()

	var errs []error
	for host, client := range t.clients {
		if err := client.Close(); err != nil {
			t.logger.Error().Err(err).Str("host", host).Msg("Failed to close SSH connection")
			errs = append(errs, err)
		} else {
			t.logger.Debug().Str("host", host).Msg("Closed SSH connection")
		}
		delete(t.clients, host)
	}
	return errors.Join(errs...)
}

// client returns the cached connection for host, dialing a new one if needed.
func (t *NativeTransport) client(ctx context.Context, host string) (*ssh.Client, error) {
	t.clientsMux.Lock()
	client, exists := t.clients[host]
	t.clientsMux.Unlock()
	if exists {
		return client, nil
	}

	ep, err := t.resolve(host)
	if err != nil {
		return nil, err
	}

	config, closeAgent, err := t.clientConfig(ep)
	if err != nil {
		return nil, err
	}
	// The agent is only consulted during the handshake.
	defer closeAgent()

	dialer := net.Dialer{Timeout: t.options.ConnectionTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.addr)
	if err != nil {
		t.logger.Error().Err(err).Str("addr", ep.addr).Msg("Failed to dial SSH server")
		return nil, fmt.Errorf("failed to dial %s: %w", ep.addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, ep.addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", ep.addr, err)
	}
	client = ssh.NewClient(sshConn, chans, reqs)

	t.clientsMux.Lock()
	defer t.clientsMux.Unlock()
	if existing, ok := t.clients[host]; ok {
		// Lost a dial race; keep the first connection.
		client.Close()
		return existing, nil
	}
	t.clients[host] = client

	t.logger.Debug().Str("host", host).Str("addr", ep.addr).Msg("SSH connection established")
	return client, nil
}

// drop forgets a broken connection so the next Run redials.
func (t *NativeTransport) drop(host string, client *ssh.Client) {
	t.clientsMux.Lock()
	if existing, ok := t.clients[host]; ok && existing == client {
		delete(t.clients, host)
	}
	t.clientsMux.Unlock()
	client.Close()
}

// resolve maps an alias to address, user and identity files.
func (t *NativeTransport) resolve(alias string) (endpoint, error) {
	get := func(key string) (value string) {
		if t.sshConfig == nil {
			return ""
		}
		// ssh_config panics on Match blocks
		defer func() {
			if r := recover(); r != nil {
				t.logger.Warn().Str("alias", alias).Msgf("Unsupported ssh config directive: %v", r)
				value = ""
			}
		}()
		value, err := t.sshConfig.Get(alias, key)
		if err != nil {
			t.logger.Warn().Err(err).Str("alias", alias).Str("key", key).Msg("Failed to read ssh config value")
			return ""
		}
		return value
	}

	hostName := get("HostName")
	if hostName == "" {
		hostName = alias
	}
	port := get("Port")
	if port == "" {
		port = constants.DefaultSSHPort
	}

	userName := get("User")
	if userName == "" {
		current, err := user.Current()
		if err != nil {
			return endpoint{}, fmt.Errorf("no User for %s and current user unknown: %w", alias, err)
		}
		userName = current.Username
	}

	var identityFiles []string
	if t.sshConfig != nil {
		func() {
			defer func() { _ = recover() }()
			identityFiles, _ = t.sshConfig.GetAll(alias, "IdentityFile")
		}()
	}
	if len(identityFiles) == 0 {
		identityFiles = t.options.DefaultIdentityFiles
	}

	return endpoint{
		addr:          net.JoinHostPort(hostName, port),
		user:          userName,
		identityFiles: identityFiles,
	}, nil
}

// clientConfig builds the auth and host key policy for ep. The returned func
// closes the ssh-agent connection and must be called once the handshake is over.
func (t *NativeTransport) clientConfig(ep endpoint) (*ssh.ClientConfig, func(), error) {
	signers := t.loadSigners(ep.identityFiles)

	var agentClient agent.ExtendedAgent
	closeAgent := func() {}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Failed to connect to ssh-agent")
		} else {
			agentClient = agent.NewClient(conn)
			closeAgent = func() {
				if err := conn.Close(); err != nil {
					t.logger.Debug().Err(err).Msg("Failed to close ssh-agent connection")
				}
			}
		}
	}

	if len(signers) == 0 && agentClient == nil {
		return nil, closeAgent, fmt.Errorf("no usable SSH keys for %s", ep.addr)
	}

	// A single publickey method; x/crypto/ssh tries each method type once.
	auth := ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		all := append([]ssh.Signer(nil), signers...)
		if agentClient != nil {
			agentSigners, err := agentClient.Signers()
			if err != nil {
				t.logger.Warn().Err(err).Msg("Failed to list ssh-agent keys")
			}
			all = append(agentSigners, all...)
		}
		return all, nil
	})

	hostKeyCallback, err := t.hostKeyCallback()
	if err != nil {
		closeAgent()
		return nil, func() {}, err
	}

	return &ssh.ClientConfig{
		User:            ep.user,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.options.ConnectionTimeout,
	}, closeAgent, nil
}

func (t *NativeTransport) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.options.InsecureIgnoreHostKey {
		t.logger.Warn().Msg("Host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := knownhosts.New(t.options.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", t.options.KnownHostsPath, err)
	}
	return callback, nil
}

// loadSigners parses every readable, unencrypted private key in paths.
func (t *NativeTransport) loadSigners(paths []string) []ssh.Signer {
	var signers []ssh.Signer
	for _, p := range paths {
		path, err := t.fileClient.ExpandPath(p)
		if err != nil {
			continue
		}
		key, err := t.fileClient.ReadFileRaw(path)
		if err != nil {
			t.logger.Debug().Err(err).Str("path", path).Msg("Skipping identity file")
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			t.logger.Debug().Err(err).Str("path", path).Msg("Failed to parse SSH private key")
			continue
		}
		signers = append(signers, signer)
	}
	return signers
}
