package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrAuth, "Login rejected", "Check the username and password")

	if err.Code != ErrAuth {
		t.Errorf("Code = %q, want %q", err.Code, ErrAuth)
	}
	msg := err.Error()
	if !strings.Contains(msg, "Login rejected") {
		t.Errorf("Error() missing message: %q", msg)
	}
	if !strings.Contains(msg, "Check the username and password") {
		t.Errorf("Error() missing suggestion: %q", msg)
	}
}

func TestWrapWithCode(t *testing.T) {
	cause := stderrors.New("connection reset by peer")
	err := WrapWithCode(cause, ErrNetwork, "Lost the connection", "Reconnect and retry")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match cause with errors.Is")
	}
	if !strings.Contains(err.Error(), "connection reset by peer") {
		t.Errorf("Error() should include cause: %q", err.Error())
	}
}

func TestWrap_DefaultsToNetwork(t *testing.T) {
	err := Wrap(stderrors.New("boom"), "Something broke")
	if err.Code != ErrNetwork {
		t.Errorf("Wrap code = %q, want %q", err.Code, ErrNetwork)
	}
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"matching code", New(ErrTunnel, "busy", ""), ErrTunnel, true},
		{"mismatched code", New(ErrTunnel, "busy", ""), ErrAuth, false},
		{"wrapped structured error", WrapWithCode(New(ErrTimeout, "slow", ""), ErrChannel, "outer", ""), ErrChannel, true},
		{"plain error", stderrors.New("plain"), ErrAuth, false},
		{"nil error", nil, ErrAuth, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	if got := Code(New(ErrDiscovery, "bad output", "")); got != ErrDiscovery {
		t.Errorf("Code() = %q, want %q", got, ErrDiscovery)
	}
	if got := Code(stderrors.New("plain")); got != "" {
		t.Errorf("Code() on plain error = %q, want empty", got)
	}
}
