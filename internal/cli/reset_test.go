package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/sitetime/internal/storage"
)

func seedTimes(t *testing.T, store *storage.SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SetTrackedSites(ctx, []string{"a.com"}))
	_, err := store.AddTime(ctx, "a.com", 10, true)
	require.NoError(t, err)
	_, err = store.AddTime(ctx, "b.com", 5, false)
	require.NoError(t, err)
}

func TestReset_WithoutAllFlag_Errors(t *testing.T) {
	err := RunWithArgs("test", []string{"reset"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset requires --all flag for safety")
}

func TestReset_WithStore(t *testing.T) {
	store := openTestStore(t)
	seedTimes(t, store)

	cmd := &ResetCommand{All: true, Force: true, globals: &GlobalFlags{}}
	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(store, testConfig(t)))
	})
	assert.Contains(t, output, "Reset all recorded time")

	ctx := context.Background()
	times, err := store.SiteTimes(ctx)
	require.NoError(t, err)
	assert.Empty(t, times)

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Totals{}, totals)

	sites, _, err := store.TrackedSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com"}, sites)
}

func TestReset_JSONOutput(t *testing.T) {
	store := openTestStore(t)
	cmd := &ResetCommand{All: true, Force: true, globals: &GlobalFlags{JSON: true}}

	output := captureOutput(t, func() {
		require.NoError(t, cmd.executeWithStore(store, testConfig(t)))
	})

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(output), &result))
	assert.Equal(t, true, result["reset"])
}

func TestReset_Confirmation(t *testing.T) {
	cmd := &ResetCommand{All: true, globals: &GlobalFlags{}, in: strings.NewReader("RESET\n")}
	var err error
	output := captureOutput(t, func() { err = cmd.confirm() })
	require.NoError(t, err)
	assert.Contains(t, output, `Type "RESET" to confirm`)

	cmd.in = strings.NewReader("yes\n")
	captureOutput(t, func() { err = cmd.confirm() })
	assert.ErrorContains(t, err, "confirmation text did not match")

	cmd.in = strings.NewReader("")
	captureOutput(t, func() { err = cmd.confirm() })
	assert.ErrorContains(t, err, "no input received")
}

func TestReset_WrongConfirmationLeavesData(t *testing.T) {
	cfgPath := writeTestConfig(t, "")

	// Seed through the CLI so the data lands in the configured database.
	captureOutput(t, func() {
		require.NoError(t, RunWithArgs("test", []string{"--config", cfgPath, "record", "--domain", "a.com", "--seconds", "3"}))
	})

	cmd := &ResetCommand{All: true, globals: &GlobalFlags{Config: cfgPath}, in: strings.NewReader("nope\n")}
	var err error
	captureOutput(t, func() { err = cmd.Execute(nil) })
	require.Error(t, err)

	output := captureOutput(t, func() {
		require.NoError(t, RunWithArgs("test", []string{"--config", cfgPath, "--json", "times"}))
	})
	assert.Contains(t, output, `"a.com"`)
}
