package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and returns what it wrote.
// Flag values are reset afterwards so tests do not leak into each other.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	resetFlags(rootCmd)
	return strings.TrimSpace(buf.String()), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "pocrop", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	output, err := executeCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, output, "straightens photographs")
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "Usage:")
}

func TestRootCommandVersion(t *testing.T) {
	output, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, output, "pocrop")
	assert.Contains(t, output, "commit:")
}

func TestRootCommandSubcommands(t *testing.T) {
	commandNames := make([]string, 0, len(rootCmd.Commands()))
	for _, subcmd := range rootCmd.Commands() {
		commandNames = append(commandNames, subcmd.Name())
	}

	expectedCommands := []string{"detect", "correct", "filter", "measure", "package", "serve", "config", "version"}
	for _, expected := range expectedCommands {
		assert.Contains(t, commandNames, expected, "Expected subcommand '%s' not found", expected)
	}
}

func TestRootCommandInvalidFlag(t *testing.T) {
	output, err := executeCommand(t, "--invalid-flag")
	require.Error(t, err)
	assert.Contains(t, output, "unknown flag")
}

func TestRootCommandNoArgs(t *testing.T) {
	output, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, output, "Usage:")
}

func TestRootCommandConfiguration(t *testing.T) {
	assert.True(t, rootCmd.HasSubCommands())
	for _, name := range []string{"config", "verbose", "log-level", "temp-dir", "version"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}

func TestVersionCommand(t *testing.T) {
	output, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output, "pocrop "))

	output, err = executeCommand(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev", output)
}

func TestConfigCommand(t *testing.T) {
	output, err := executeCommand(t, "config")
	require.NoError(t, err)
	assert.Contains(t, output, "aspect_ratio: A4Portrait")
	assert.Contains(t, output, "max_corners:")
	assert.Contains(t, output, "record_format: json")

	output, err = executeCommand(t, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, output, "/etc/pocrop")
	assert.Contains(t, output, "POCROP")
}

func TestConfigInitCommand(t *testing.T) {
	path := t.TempDir() + "/pocrop.yaml"
	output, err := executeCommand(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, output, path)
	assert.FileExists(t, path)
}
