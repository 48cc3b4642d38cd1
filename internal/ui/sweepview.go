package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reconlab/recon/internal/discovery"
	"github.com/reconlab/recon/internal/inventory"
)

// SpinnerFrames is the shared animation for Bubble Tea programs.
var SpinnerFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10,
}

type nodeMsg struct {
	node inventory.DiscoveredNode
	ok   bool
}

type refreshMsg time.Time

// SweepView is the live scan display: a progress bar over the address range
// and the nodes found so far. Quitting cancels the sweep but keeps what it
// already committed.
type SweepView struct {
	sweep *discovery.Sweep
	label string

	spin  spinner.Model
	bar   progress.Model
	found []inventory.DiscoveredNode

	done    bool
	summary discovery.Summary
}

// NewSweepView creates the view for a started sweep. label names the network
// being swept.
func NewSweepView(sweep *discovery.Sweep, label string) SweepView {
	sp := spinner.New()
	sp.Spinner = SpinnerFrames
	sp.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	return SweepView{
		sweep: sweep,
		label: label,
		spin:  sp,
		bar:   progress.New(progress.WithDefaultGradient()),
	}
}

// Init implements tea.Model.
func (v SweepView) Init() tea.Cmd {
	return tea.Batch(v.spin.Tick, v.waitForNode(), refreshTick())
}

// Update implements tea.Model.
func (v SweepView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			// Stop dispatching; in-flight probes still land before the
			// channel closes and the view exits.
			v.sweep.Cancel()
		}
		return v, nil

	case nodeMsg:
		if !msg.ok {
			v.summary = v.sweep.Wait()
			v.done = true
			return v, tea.Quit
		}
		v.found = append(v.found, msg.node)
		return v, v.waitForNode()

	case refreshMsg:
		return v, refreshTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		v.spin, cmd = v.spin.Update(msg)
		return v, cmd

	case tea.WindowSizeMsg:
		v.bar.Width = msg.Width - 8
		return v, nil
	}
	return v, nil
}

// View implements tea.Model.
func (v SweepView) View() string {
	var b strings.Builder

	header := lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	live := lipgloss.NewStyle().Foreground(ColorSuccess)

	probed, found := v.sweep.Progress()

	b.WriteString(header.Render("Sweeping "+v.label) + "\n\n")

	if v.done {
		symbol := SymbolComplete
		if v.summary.Canceled {
			symbol = SymbolFail
		}
		b.WriteString(fmt.Sprintf("%s %d probed, %d live\n",
			live.Render(symbol), v.summary.Probed, v.summary.Found))
	} else {
		b.WriteString(fmt.Sprintf("%s %d/%d probed, %d live\n",
			v.spin.View(), probed, v.sweep.Total, found))
		b.WriteString(v.bar.ViewAs(float64(probed)/float64(v.sweep.Total)) + "\n")
	}

	for _, node := range v.found {
		b.WriteString(fmt.Sprintf("  %s %s\n", live.Render(SymbolLive), node.IP))
	}

	if !v.done {
		b.WriteString("\n" + muted.Render("press q to stop") + "\n")
	}
	return b.String()
}

// Found returns the nodes seen by the view, in arrival order.
func (v SweepView) Found() []inventory.DiscoveredNode {
	return v.found
}

// Summary returns the sweep result once the view has finished.
func (v SweepView) Summary() discovery.Summary {
	return v.summary
}

func (v SweepView) waitForNode() tea.Cmd {
	return func() tea.Msg {
		node, ok := <-v.sweep.Nodes
		return nodeMsg{node: node, ok: ok}
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// RunSweepView drives the view to completion and returns the sweep summary.
func RunSweepView(sweep *discovery.Sweep, label string) (discovery.Summary, error) {
	program := tea.NewProgram(NewSweepView(sweep, label))
	model, err := program.Run()
	if err != nil {
		sweep.Cancel()
		return sweep.Wait(), err
	}
	return model.(SweepView).Summary(), nil
}
