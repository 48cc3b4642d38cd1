package transport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reconlab/recon/internal/errors"
)

// skipIfNoSSH skips integration tests unless a target host is configured.
func skipIfNoSSH(t *testing.T) {
	t.Helper()
	if os.Getenv("RECON_TEST_SSH_HOST") == "" {
		t.Skip("Skipping SSH test: RECON_TEST_SSH_HOST not set")
	}
}

func TestDial_Integration(t *testing.T) {
	skipIfNoSSH(t)

	host := os.Getenv("RECON_TEST_SSH_HOST")
	client, err := Dial(Target{Host: host}, Credentials{KeyPath: os.Getenv("RECON_TEST_SSH_KEY")}, 10*time.Second)
	if err != nil {
		t.Fatalf("Dial(%q) failed: %v", host, err)
	}
	defer client.Close()

	if err := client.Ping(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestResolveSettings_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USER", "localdev")

	s := resolveSettings(Target{Host: "example.com"})

	if s.hostname != "example.com" {
		t.Errorf("hostname = %q, want 'example.com'", s.hostname)
	}
	if s.port != 22 {
		t.Errorf("port = %d, want 22", s.port)
	}
	if s.user != "localdev" {
		t.Errorf("user = %q, want 'localdev'", s.user)
	}
}

func TestResolveSettings_SSHConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0700); err != nil {
		t.Fatal(err)
	}
	cfg := "Host bench\n  HostName 10.0.0.5\n  Port 2222\n  User lab\n"
	if err := os.WriteFile(filepath.Join(sshDir, "config"), []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	s := resolveSettings(Target{Host: "bench"})

	if s.hostname != "10.0.0.5" {
		t.Errorf("hostname = %q, want '10.0.0.5'", s.hostname)
	}
	if s.port != 2222 {
		t.Errorf("port = %d, want 2222", s.port)
	}
	if s.user != "lab" {
		t.Errorf("user = %q, want 'lab'", s.user)
	}
}

func TestResolveSettings_ExplicitFieldsWin(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0700); err != nil {
		t.Fatal(err)
	}
	cfg := "Host bench\n  Port 2222\n  User lab\n"
	if err := os.WriteFile(filepath.Join(sshDir, "config"), []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	s := resolveSettings(Target{Host: "bench", Port: 22022, User: "admin"})

	if s.port != 22022 {
		t.Errorf("port = %d, want explicit 22022", s.port)
	}
	if s.user != "admin" {
		t.Errorf("user = %q, want explicit 'admin'", s.user)
	}
}

func TestBuildClientConfig_NoCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := buildClientConfig(&settings{hostname: "h", port: 22, user: "u"}, Credentials{}, time.Second)
	if err == nil {
		t.Fatal("expected an error with no credentials")
	}
	if !errors.IsCode(err, errors.ErrAuth) {
		t.Errorf("error code = %s, want AUTH", errors.Code(err))
	}
}

func TestBuildClientConfig_PasswordOnly(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := buildClientConfig(&settings{hostname: "h", port: 22, user: "lab"}, Credentials{Password: "x"}, time.Second)
	if err != nil {
		t.Fatalf("buildClientConfig failed: %v", err)
	}
	if cfg.User != "lab" {
		t.Errorf("User = %q, want 'lab'", cfg.User)
	}
	if len(cfg.Auth) != 1 {
		t.Errorf("len(Auth) = %d, want 1", len(cfg.Auth))
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func TestCategorizeHandshakeError(t *testing.T) {
	tests := []struct {
		errMsg string
		code   string
	}{
		{"ssh: unable to authenticate, attempted methods [password]", errors.ErrAuth},
		{"ssh: handshake failed: i/o timeout", errors.ErrTimeout},
		{"ssh: handshake failed: EOF", errors.ErrNetwork},
	}

	for _, tt := range tests {
		err := categorizeHandshakeError("bench", stringError(tt.errMsg))
		if !errors.IsCode(err, tt.code) {
			t.Errorf("categorizeHandshakeError(%q) code = %s, want %s",
				tt.errMsg, errors.Code(err), tt.code)
		}
	}
}

func TestCategorizeHandshakeError_KeepsStructuredErrors(t *testing.T) {
	original := errors.New(errors.ErrAuth, "Host key for bench changed", "")
	err := categorizeHandshakeError("bench", original)
	if err != original {
		t.Errorf("structured errors must pass through unchanged, got %v", err)
	}
}

func TestSuggestionForDialError(t *testing.T) {
	tests := []struct {
		errMsg   string
		contains string
	}{
		{"connection refused", "SSH server"},
		{"no route to host", "route"},
		{"random error", "reachable"},
	}

	for _, tt := range tests {
		suggestion := suggestionForDialError(stringError(tt.errMsg))
		if !strings.Contains(suggestion, tt.contains) {
			t.Errorf("suggestionForDialError(%q) = %q, want to contain %q",
				tt.errMsg, suggestion, tt.contains)
		}
	}
}

func TestIsTimeout(t *testing.T) {
	if !isTimeout(stringError("dial tcp: i/o timeout")) {
		t.Error("i/o timeout must be a timeout")
	}
	if isTimeout(stringError("connection refused")) {
		t.Error("connection refused is not a timeout")
	}
}
