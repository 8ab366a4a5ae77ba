package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsToHelp(t *testing.T) {
	t.Parallel()

	parsed, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, CommandHelp, parsed.Command)
	require.True(t, parsed.ShowHelp)
}

func TestParseCommands(t *testing.T) {
	t.Parallel()

	cases := []struct {
		args []string
		want Command
	}{
		{[]string{"start"}, CommandStart},
		{[]string{"finish"}, CommandFinish},
		{[]string{"status"}, CommandStatus},
		{[]string{"watch"}, CommandWatch},
		{[]string{"devices"}, CommandDevices},
		{[]string{"doctor"}, CommandDoctor},
		{[]string{"version"}, CommandVersion},
		{[]string{"help"}, CommandHelp},
	}

	for _, tc := range cases {
		parsed, err := Parse(tc.args)
		require.NoError(t, err, "args %v", tc.args)
		require.Equal(t, tc.want, parsed.Command)
	}
}

func TestParseConfigFlag(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]string{"--config", "/tmp/viva.jsonc", "start"})
	require.NoError(t, err)
	require.Equal(t, CommandStart, parsed.Command)
	require.Equal(t, "/tmp/viva.jsonc", parsed.ConfigPath)
	require.False(t, parsed.ShowHelp)
}

func TestParseConfigRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Parse([]string{"--config"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--config requires a path")
}

func TestParseRejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := Parse([]string{"toggle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown command")

	_, err = Parse([]string{"--verbose"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown flag")
}

func TestParseRejectsTrailingArguments(t *testing.T) {
	t.Parallel()

	_, err := Parse([]string{"start", "now"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected arguments")
}

func TestParseVersionFlag(t *testing.T) {
	t.Parallel()

	parsed, err := Parse([]string{"--version"})
	require.NoError(t, err)
	require.Equal(t, CommandVersion, parsed.Command)
	require.False(t, parsed.ShowHelp)
}

func TestHelpTextListsCommands(t *testing.T) {
	t.Parallel()

	text := HelpText("viva")
	require.True(t, strings.HasPrefix(text, "Usage:"))
	for _, cmd := range []string{"start", "finish", "status", "watch", "devices", "doctor", "version", "help"} {
		require.Contains(t, text, cmd)
	}
	require.Contains(t, text, "config.jsonc")
}
