package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	expected := []string{
		"consoles", "networks", "scan", "tunnel",
		"shell", "console", "hosts", "setup", "version",
	}

	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}

	for _, name := range expected {
		assert.True(t, registered[name], "missing command: %s", name)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	for _, name := range []string{"config", "host", "user", "key", "password-env"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing flag: %s", name)
	}
}
