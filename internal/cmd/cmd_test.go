package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/bikeshare/internal/notify"
	"github.com/runger/bikeshare/internal/orchestrator"
)

// withHome points every path at a fresh directory and resets flag globals.
func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("BIKESHARE_HOME", home)
	for _, k := range []string{"BIKESHARE_DB_PATH", "BIKESHARE_SOCKET_PATH", "BIKESHARE_LOCK_TIMEOUT_MS", "BIKESHARE_DEBUG", "BIKESHARE_LOG_LEVEL", "NO_COLOR"} {
		t.Setenv(k, "")
	}
	t.Cleanup(resetFlags)
	return home
}

func resetFlags() {
	colorMode = "auto"
	verbose = false
	submitLocal = false
	submitSource = ""
	editLocal = false
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--color", "never"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func seedFleet(t *testing.T) {
	t.Helper()
	out, err := runCLI(t, "seed", filepath.Join("testdata", "fleet.yaml"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "Bikes 2 rows")
	assert.Contains(t, out, "Seeded ")
}

func TestSubmit_CheckoutThenManualReturn(t *testing.T) {
	withHome(t)
	seedFleet(t)

	out, err := runCLI(t, "submit", "checkout", "a@inst.edu", "trek100", "yes", "yes")
	require.NoError(t, err, out)
	assert.Contains(t, out, notify.CodeCheckoutOK)
	assert.Contains(t, out, "Enjoy your ride")

	out, err = runCLI(t, "status")
	require.NoError(t, err, out)
	assert.Contains(t, out, "not running")
	assert.Contains(t, out, "2 bikes, 1 users, 1 events")
	assert.Contains(t, out, "checked out")
	assert.Contains(t, out, "a@inst.edu")

	out, err = runCLI(t, "edit", "Bikes", "2", "5", "available")
	require.NoError(t, err, out)
	assert.Contains(t, out, string(orchestrator.EditManualReturn))

	out, err = runCLI(t, "status")
	require.NoError(t, err, out)
	assert.NotContains(t, out, "checked out")
}

func TestSubmit_FailedRunReturnsError(t *testing.T) {
	withHome(t)
	seedFleet(t)

	out, err := runCLI(t, "submit", "checkout", "a@elsewhere.com", "Trek100", "yes", "yes")
	require.Error(t, err)
	assert.ErrorIs(t, err, errRunFailed)
	assert.Contains(t, out, "failed")

	_, err = runCLI(t, "submit", "reserve", "a@inst.edu")
	assert.ErrorIs(t, err, errRunFailed)
}

func TestEdit_SettingsTableAndArgs(t *testing.T) {
	withHome(t)
	seedFleet(t)

	out, err := runCLI(t, "edit", "Thresholds", "4", "1", "notice_hours")
	require.NoError(t, err, out)
	assert.Contains(t, out, string(orchestrator.EditSettingsInvalidated))

	_, err = runCLI(t, "edit", "Bikes", "1", "5", "available")
	assert.Error(t, err, "header row is not editable")
	_, err = runCLI(t, "edit", "Bikes", "x", "5", "available")
	assert.Error(t, err)
	_, err = runCLI(t, "edit", "Bikes", "9", "5", "available")
	assert.Error(t, err, "row past the end")
}

func TestAccrue(t *testing.T) {
	withHome(t)
	seedFleet(t)

	_, err := runCLI(t, "submit", "checkout", "a@inst.edu", "Trek100", "yes", "yes")
	require.NoError(t, err)

	out, err := runCLI(t, "accrue")
	require.NoError(t, err, out)
	assert.Contains(t, out, "checked out: 1")
	assert.NotContains(t, out, "overdue")
}

func TestSettingsShow(t *testing.T) {
	withHome(t)
	seedFleet(t)

	out, err := runCLI(t, "settings", "show")
	require.NoError(t, err, out)
	assert.Contains(t, out, "system_active = yes")
	assert.Contains(t, out, "email_domains = inst.edu")
	assert.Contains(t, out, "Missing:")

	out, err = runCLI(t, "settings", "show", "thresholds")
	require.NoError(t, err, out)
	assert.Contains(t, out, "max_checkout_hours = 72")
	assert.NotContains(t, out, "system_active")

	_, err = runCLI(t, "settings", "show", "nope")
	assert.Error(t, err)

	_, err = runCLI(t, "settings", "reload")
	assert.Error(t, err, "no daemon is running")
}

func TestConfigCmd_GetSetList(t *testing.T) {
	home := withHome(t)

	out, err := runCLI(t, "config", "lock.timeout_ms")
	require.NoError(t, err)
	assert.Equal(t, "30000\n", out)

	out, err = runCLI(t, "config", "lock.timeout_ms", "10000")
	require.NoError(t, err, out)
	assert.Contains(t, out, filepath.Join(home, "config.yaml"))

	out, err = runCLI(t, "config", "lock.timeout_ms")
	require.NoError(t, err)
	assert.Equal(t, "10000\n", out)

	_, err = runCLI(t, "config", "lock.mode", "carrier-pigeon")
	assert.Error(t, err)

	out, err = runCLI(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "store.driver = sqlite")
	assert.Contains(t, out, "sheets.thresholds = Thresholds")
}

func TestStatus_NoDatabase(t *testing.T) {
	withHome(t)

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(not created)")
	assert.Contains(t, out, "not found, using defaults")
}

func TestSeed_MemoryDriverRefused(t *testing.T) {
	withHome(t)
	_, err := runCLI(t, "config", "store.driver", "memory")
	require.NoError(t, err)

	_, err = runCLI(t, "seed", filepath.Join("testdata", "fleet.yaml"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	withHome(t)
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "bikeshare dev\n"))
}

func TestColorFlag_Invalid(t *testing.T) {
	withHome(t)
	resetFlags()
	rootCmd.SetArgs([]string{"--color", "sometimes", "version"})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	assert.Error(t, rootCmd.Execute())
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatSize(tt.bytes))
	}
}
