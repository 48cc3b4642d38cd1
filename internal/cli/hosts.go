package cli

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/reconlab/recon/internal/logger"
	"github.com/reconlab/recon/internal/ui"
)

// hostsCommand lists the cached hosts, most recently used first. Local only.
func hostsCommand() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := openStore(cfg, logger.Default())

	hosts := store.Hosts()
	if len(hosts) == 0 {
		fmt.Println("No cached hosts yet. Connect once and they'll show up here.")
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true)
	muted := lipgloss.NewStyle().Foreground(ui.ColorMuted)

	for _, rec := range hosts {
		nodes := 0
		for cidr := range rec.Nodes {
			nodes += len(rec.NodeList(cidr))
		}
		fmt.Printf("%s %s\n", bold.Render(rec.Identity.Key()),
			muted.Render("last used "+formatAge(time.Since(rec.LastActive))))
		fmt.Printf("  %s\n", muted.Render(fmt.Sprintf(
			"%d consoles, %d networks, %d nodes",
			len(rec.Consoles), len(rec.Networks), nodes)))
	}

	fmt.Println()
	fmt.Println(muted.Render("cache: " + store.Path()))
	return nil
}

// formatAge renders a duration as a rough age string.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
