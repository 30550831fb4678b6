// Package ssh executes commands on cluster hosts over SSH. It is used to
// pull admin credentials off the first control plane and to probe node
// reachability for status reporting.
//
// Security: host key verification is disabled by default because cluster
// nodes are rebuilt in place and their host keys rotate. Configure
// HostKeyCallback when running against long-lived hosts.
package ssh

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/proxcluster/cpc/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
	defaultAttempts    = 3
	defaultRetryDelay  = 5 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Config holds SSH client configuration.
type Config struct {
	Host       string
	Port       int
	User       string
	PrivateKey []byte

	// DialTimeout bounds the TCP connection attempt. Zero means
	// defaultDialTimeout.
	DialTimeout time.Duration

	// MaxAttempts is the number of connection attempts before giving up.
	// Zero means defaultAttempts.
	MaxAttempts int

	// RetryDelay is the initial delay between connection attempts. Zero
	// means defaultRetryDelay.
	RetryDelay time.Duration

	// HostKeyCallback handles host key verification. Nil falls back to
	// ssh.InsecureIgnoreHostKey().
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on a remote host. The private key is parsed once
// at construction; connections are established per call.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient validates the configuration, parses the private key, and
// returns a client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}
	if len(cfg.PrivateKey) == 0 {
		return nil, fmt.Errorf("config private key cannot be empty")
	}

	// Copy so defaults never leak back into the caller's struct.
	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.MaxAttempts == 0 {
		configCopy.MaxAttempts = defaultAttempts
	}
	if configCopy.RetryDelay == 0 {
		configCopy.RetryDelay = defaultRetryDelay
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // cluster hosts rotate keys on rebuild
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{config: &configCopy, signer: signer}, nil
}

// NewClientFromKeyFile reads the private key from disk, expanding a missing
// path into a useful error, and builds a client for the host.
func NewClientFromKeyFile(host, user, keyPath string) (*Client, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key %s: %w", keyPath, err)
	}
	return NewClient(&Config{Host: host, User: user, PrivateKey: key})
}

// Execute runs a command on the remote host, retrying the connection, and
// returns the combined output.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(client, command)
}

// Reachable reports whether the host accepts an SSH connection within the
// timeout. It makes a single attempt; callers decide how stale answers age.
func (c *Client) Reachable(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.dial(ctx)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	var client *ssh.Client
	err := retry.Do(ctx, func() error {
		var dialErr error
		client, dialErr = c.dial(ctx)
		return dialErr
	},
		retry.WithMaxAttempts(c.config.MaxAttempts),
		retry.WithInitialDelay(c.config.RetryDelay),
		retry.WithMaxDelay(defaultMaxDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s:%d after %d attempts: %w",
			c.config.Host, c.config.Port, c.config.MaxAttempts, err)
	}
	return client, nil
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ssh.Dial("tcp", fmt.Sprintf("%s:%d", c.config.Host, c.config.Port), config)
}

func (c *Client) runCommand(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
			c.config.Host, err, command, string(output))
	}
	return string(output), nil
}
