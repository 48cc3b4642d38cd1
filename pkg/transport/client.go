package transport

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kevinburke/ssh_config"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/reconlab/recon/internal/errors"
)

// Client is the concrete SSH-backed transport. It satisfies Conn.
type Client struct {
	target Target

	// chanMu serializes every operation that opens a new logical channel:
	// command sessions, direct-tcpip forwards, and interactive channels.
	chanMu sync.Mutex

	mu     sync.Mutex
	client *ssh.Client
	closed bool
}

// Phase marks progress through connection establishment, for callers that
// surface connection state (the session manager's state machine).
type Phase int

const (
	// PhaseConnecting covers the TCP dial.
	PhaseConnecting Phase = iota
	// PhaseAuthenticating covers the SSH handshake and auth exchange.
	PhaseAuthenticating
)

// Dial establishes the SSH connection to target within timeout.
// Failure modes map to the error taxonomy: AUTH for rejected credentials or
// a host key mismatch, TIMEOUT for an exceeded deadline, NETWORK otherwise.
func Dial(target Target, creds Credentials, timeout time.Duration) (*Client, error) {
	return DialPhased(target, creds, timeout, nil)
}

// DialPhased is Dial with a progress hook invoked at the start of each
// connection phase. onPhase may be nil.
func DialPhased(target Target, creds Credentials, timeout time.Duration, onPhase func(Phase)) (*Client, error) {
	settings := resolveSettings(target)
	config, err := buildClientConfig(settings, creds, timeout)
	if err != nil {
		return nil, err
	}

	if onPhase != nil {
		onPhase(PhaseConnecting)
	}
	address := settings.address()
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.WrapWithCode(err, errors.ErrTimeout,
				fmt.Sprintf("Connecting to %s timed out after %s", address, timeout),
				"Host might be offline or blocked by a firewall")
		}
		return nil, errors.WrapWithCode(err, errors.ErrNetwork,
			fmt.Sprintf("Can't reach '%s' at %s", target.Host, address),
			suggestionForDialError(err))
	}

	if onPhase != nil {
		onPhase(PhaseAuthenticating)
	}

	// Bound the handshake with the same deadline as the TCP dial.
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, categorizeHandshakeError(target.Host, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		target: Target{Host: settings.hostname, Port: settings.port, User: settings.user},
		client: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// Target returns the resolved endpoint.
func (c *Client) Target() Target {
	return c.target
}

// Ping checks liveness without opening a channel.
func (c *Client) Ping() error {
	client, err := c.conn()
	if err != nil {
		return err
	}
	if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
		return errors.WrapWithCode(err, errors.ErrChannel,
			"Connection to "+c.target.Host+" lost",
			"Reconnect to continue")
	}
	return nil
}

// Close tears down the connection and every channel multiplexed on it.
// Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.client == nil {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// conn returns the live ssh client or a CHANNEL error if the transport is
// closed.
func (c *Client) conn() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.client == nil {
		return nil, errors.New(errors.ErrChannel,
			"Connection to "+c.target.Host+" is closed",
			"Reconnect to continue")
	}
	return c.client, nil
}

// settings holds resolved connection parameters.
type settings struct {
	hostname string
	port     int
	user     string
}

func (s *settings) address() string {
	return net.JoinHostPort(s.hostname, strconv.Itoa(s.port))
}

// resolveSettings merges the explicit target with ~/.ssh/config defaults,
// explicit fields winning.
func resolveSettings(target Target) *settings {
	s := &settings{
		hostname: target.Host,
		port:     22,
		user:     target.User,
	}
	if target.Port != 0 {
		s.port = target.Port
	}
	if s.user == "" {
		s.user = localUser()
	}

	cfgPath := filepath.Join(homeDir(), ".ssh", "config")
	content, err := os.ReadFile(cfgPath)
	if err != nil {
		return s
	}
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return s
	}

	if hostname, _ := cfg.Get(target.Host, "HostName"); hostname != "" {
		s.hostname = hostname
	}
	if target.Port == 0 {
		if port, _ := cfg.Get(target.Host, "Port"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				s.port = p
			}
		}
	}
	if target.User == "" {
		if user, _ := cfg.Get(target.Host, "User"); user != "" {
			s.user = user
		}
	}
	return s
}

// buildClientConfig assembles auth methods: key file first when present,
// then the password.
func buildClientConfig(s *settings, creds Credentials, timeout time.Duration) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if creds.KeyPath != "" {
		if auth, err := keyFileAuth(creds.KeyPath); err == nil {
			authMethods = append(authMethods, auth)
		}
	}
	if creds.Password != "" {
		authMethods = append(authMethods, ssh.Password(creds.Password))
	}

	if len(authMethods) == 0 {
		return nil, errors.New(errors.ErrAuth,
			"No credentials provided",
			"Supply a password or run 'recon setup' to deploy a key")
	}

	hostKeyCallback, err := acceptNewHostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            s.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// acceptNewHostKeyCallback verifies known hosts and records first-seen keys,
// matching OpenSSH's accept-new policy. A changed key is still rejected.
func acceptNewHostKeyCallback() (ssh.HostKeyCallback, error) {
	knownHostsPath := filepath.Join(homeDir(), ".ssh", "known_hosts")
	if _, err := os.Stat(knownHostsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(knownHostsPath), 0700); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to create ~/.ssh", "Check home directory permissions")
		}
		if err := os.WriteFile(knownHostsPath, []byte{}, 0600); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to create known_hosts", "Check ~/.ssh permissions")
		}
	}

	verify, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to load known_hosts", "Check "+knownHostsPath)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if stderrors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			return appendKnownHost(knownHostsPath, hostname, key)
		}
		return errors.WrapWithCode(err, errors.ErrAuth,
			"Host key for "+hostname+" changed",
			"If the host was reinstalled, remove the old entry: ssh-keygen -R "+hostname)
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	line := knownhosts.Line([]string{hostname}, key)
	_, err = f.WriteString(line + "\n")
	return err
}

// categorizeHandshakeError maps SSH handshake failures onto the taxonomy.
func categorizeHandshakeError(host string, err error) error {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return err // host key callback already categorized it
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "unable to authenticate"),
		strings.Contains(errStr, "no supported methods"),
		strings.Contains(errStr, "permission denied"):
		return errors.WrapWithCode(err, errors.ErrAuth,
			"Authentication to '"+host+"' failed",
			"Check the username and password")
	case isTimeout(err):
		return errors.WrapWithCode(err, errors.ErrTimeout,
			"SSH handshake with '"+host+"' timed out",
			"Host might be overloaded or behind a filtering firewall")
	default:
		return errors.WrapWithCode(err, errors.ErrNetwork,
			"SSH handshake with '"+host+"' didn't go through",
			"Try connecting manually first: ssh "+host)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "timeout") ||
		strings.Contains(err.Error(), "i/o timeout")
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is an SSH server running on that box?"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	return "Make sure the host is reachable: ping <host>"
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func localUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "root"
}
