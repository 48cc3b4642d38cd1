package logger

import "testing"

func TestBufferLogger_CapturesLevels(t *testing.T) {
	l := NewBufferLogger()

	l.Debug("dbg %d", 1)
	l.Info("info")
	l.Warn("warn")
	l.Error("err")

	if len(l.Messages) != 4 {
		t.Fatalf("captured %d messages, want 4", len(l.Messages))
	}
	if l.Messages[0].Message != "dbg 1" {
		t.Errorf("debug message = %q, want %q", l.Messages[0].Message, "dbg 1")
	}
	for _, level := range []string{"debug", "info", "warn", "error"} {
		if !l.HasLevel(level) {
			t.Errorf("HasLevel(%q) = false, want true", level)
		}
	}
}

func TestBufferLogger_Clear(t *testing.T) {
	l := NewBufferLogger()
	l.Info("something")
	l.Clear()

	if len(l.Messages) != 0 {
		t.Errorf("messages after Clear = %d, want 0", len(l.Messages))
	}
}

func TestNoop_DiscardsEverything(t *testing.T) {
	// Must not panic or block.
	l := Noop()
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	buf := NewBufferLogger()
	SetDefault(buf)

	Default().Info("routed")
	if len(buf.Messages) != 1 {
		t.Errorf("default logger did not route message, got %d", len(buf.Messages))
	}
}
