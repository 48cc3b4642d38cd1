package testing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/reconlab/recon/internal/errors"
	"github.com/reconlab/recon/pkg/transport"
)

var _ transport.Conn = (*MockTransport)(nil)

func TestExecute_ScriptedExact(t *testing.T) {
	m := NewMockTransport("10.0.0.5", "lab")
	m.Script("ipconfig", CommandResponse{Stdout: "output"})

	result, err := m.Execute(context.Background(), "ipconfig")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Stdout != "output" {
		t.Errorf("Stdout = %q, want 'output'", result.Stdout)
	}
	if got := m.Executed(); len(got) != 1 || got[0] != "ipconfig" {
		t.Errorf("Executed() = %v", got)
	}
}

func TestExecute_UnscriptedLooksLikeUnknownCommand(t *testing.T) {
	m := NewMockTransport("10.0.0.5", "lab")

	result, err := m.Execute(context.Background(), "wmic path Win32_SerialPort")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.ExitCode != 9009 {
		t.Errorf("ExitCode = %d, want 9009", result.ExitCode)
	}
}

func TestExecute_PatternOrder(t *testing.T) {
	m := NewMockTransport("10.0.0.5", "lab")
	m.ScriptPattern(`^ping .*192\.168\.7\.3$`, CommandResponse{ExitCode: 0})
	m.ScriptPattern(`^ping `, CommandResponse{ExitCode: 1})

	live, _ := m.Execute(context.Background(), "ping -n 1 -w 25 192.168.7.3")
	dead, _ := m.Execute(context.Background(), "ping -n 1 -w 25 192.168.7.9")

	if live.ExitCode != 0 {
		t.Errorf("first matching pattern must win, got exit %d", live.ExitCode)
	}
	if dead.ExitCode != 1 {
		t.Errorf("fallback pattern must catch the rest, got exit %d", dead.ExitCode)
	}
}

func TestExecute_AfterClose(t *testing.T) {
	m := NewMockTransport("10.0.0.5", "lab")
	m.Close()

	_, err := m.Execute(context.Background(), "ipconfig")
	if !errors.IsCode(err, errors.ErrChannel) {
		t.Errorf("expected CHANNEL error after close, got %v", err)
	}
}

func TestMaxInFlight_TracksConcurrency(t *testing.T) {
	m := NewMockTransport("10.0.0.5", "lab")
	m.ScriptPattern(`.`, CommandResponse{Delay: 20 * time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Execute(context.Background(), "cmd")
		}()
	}
	wg.Wait()

	if m.MaxInFlight() < 2 {
		t.Errorf("MaxInFlight = %d, want at least 2 for parallel calls", m.MaxInFlight())
	}
}

func TestOpenDirect_RecordsAddresses(t *testing.T) {
	m := NewMockTransport("10.0.0.5", "lab")

	conn, err := m.OpenDirect("192.168.7.3:443")
	if err != nil {
		t.Fatalf("OpenDirect failed: %v", err)
	}
	defer conn.Close()

	if got := m.Dialed(); len(got) != 1 || got[0] != "192.168.7.3:443" {
		t.Errorf("Dialed() = %v", got)
	}
}
