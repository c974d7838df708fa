package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioDir = filepath.Join("..", "simulate", "testdata", "scenarios")

func TestSimulate_Text(t *testing.T) {
	out, err := execute(t, "simulate", filepath.Join(scenarioDir, "scenario_b_walk_in_conflict.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "scenario scenario_b_walk_in_conflict\n")
	assert.Contains(t, out, "conflict walk/res tables=[5] urgency=warning minutes=60 vacate_by=18:45")
	assert.Contains(t, out, `notify warning "Table 5 needed at 19:00"`)
	assert.Contains(t, out, "1 passed, 0 failed")
}

func TestSimulate_JSON(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	out, err := execute(t, append([]string{"--format", "json", "simulate"}, files...)...)
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(len(files)), data["passed"])
	assert.Equal(t, float64(0), data["failed"])
	assert.Len(t, data["results"], len(files))
}

func TestSimulate_FailedExpectation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: wrong
date: "2026-03-14"
start: "18:00"
tables:
  - {id: t5, number: 5}
steps:
  - tick: true
  - expect:
      open_conflicts: 2
`), 0o644))

	out, err := execute(t, "simulate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "expect     FAILED (1)")
	assert.Contains(t, out, "- open conflicts: got 0, want 2")
	assert.Contains(t, out, "0 passed, 1 failed")
}

func TestSimulate_InvalidScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: typo\nstpes: []\n"), 0o644))

	out, err := execute(t, "simulate", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_SCENARIO]")
}

func TestSimulate_RequiresArgument(t *testing.T) {
	_, err := execute(t, "simulate")
	require.Error(t, err)
}
