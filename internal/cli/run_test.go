package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCommand_Pass(t *testing.T) {
	dir := writeFixture(t, map[string]string{"counter": passingScenario})

	out, _, err := execute(t, "run", filepath.Join(dir, "counter.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ counter (2 notification(s))")
	assert.Contains(t, out, "[1] watch set event n done: null -> 1")
	assert.Contains(t, out, "[2] watch set event n done: 1 -> 2")
	assert.Contains(t, out, "n = 2")
	assert.Contains(t, out, `label = "c"`)
	assert.Contains(t, out, "limit = 10")
}

func TestRunCommand_Fail(t *testing.T) {
	dir := writeFixture(t, map[string]string{"wrong": failingScenario})

	out, _, err := execute(t, "run", filepath.Join(dir, "wrong.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ counter_wrong")
	assert.Contains(t, out, "Assertion failed: notified")
}

func TestRunCommand_JSON(t *testing.T) {
	dir := writeFixture(t, map[string]string{"counter": passingScenario})

	out, _, err := execute(t, "--format", "json", "run", filepath.Join(dir, "counter.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "counter", resp.Data.Name)
	require.Len(t, resp.Data.Trace, 2)
	assert.Equal(t, "done", resp.Data.Trace[0].Stage)
	assert.EqualValues(t, 2, resp.Data.State["n"])
	assert.Len(t, resp.Data.Digest, 64)

	again, _, err := execute(t, "--format", "json", "run", filepath.Join(dir, "counter.yaml"))
	require.NoError(t, err)
	assert.Equal(t, out, again, "runs are deterministic")
}

func TestRunCommand_Overrides(t *testing.T) {
	dir := writeFixture(t, map[string]string{"counter": passingScenario})
	settingsFile := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settingsFile, []byte("limit: 7\nn: 0\n"), 0644))

	out, _, err := execute(t, "run", filepath.Join(dir, "counter.yaml"), "--set", "limit=5")
	require.NoError(t, err)
	assert.Contains(t, out, "limit = 5")

	out, _, err = execute(t, "run", filepath.Join(dir, "counter.yaml"), "--settings", settingsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "limit = 7")

	out, _, err = execute(t, "run", filepath.Join(dir, "counter.yaml"), "--settings", settingsFile, "--set", "limit=8")
	require.NoError(t, err)
	assert.Contains(t, out, "limit = 8", "--set wins over the settings file")
}

func TestRunCommand_Errors(t *testing.T) {
	dir := writeFixture(t, map[string]string{"counter": passingScenario})
	scenario := filepath.Join(dir, "counter.yaml")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing scenario", []string{"run", filepath.Join(dir, "nope.yaml")}, "failed to load scenario"},
		{"malformed override", []string{"run", scenario, "--set", "limit"}, "invalid settings"},
		{"missing settings file", []string{"run", scenario, "--settings", filepath.Join(dir, "nope.yaml")}, "invalid settings"},
		{"unconfigurable field", []string{"run", scenario, "--set", "label=x"}, "scenario setup failed"},
		{"rejected value", []string{"run", scenario, "--set", "n=-1"}, "scenario setup failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunCommand_VerboseLogsEvents(t *testing.T) {
	dir := writeFixture(t, map[string]string{"counter": passingScenario})

	_, errOut, err := execute(t, "-v", "run", filepath.Join(dir, "counter.yaml"))
	require.NoError(t, err)
	assert.Contains(t, errOut, "running scenario")
	assert.Contains(t, errOut, "msg=event")
	assert.Contains(t, errOut, "field=n")
}

func TestRunCommand_Journal(t *testing.T) {
	dir := writeFixture(t, map[string]string{"counter": passingScenario})
	db := filepath.Join(t.TempDir(), "trace.db")

	_, _, err := execute(t, "run", filepath.Join(dir, "counter.yaml"), "--journal", db)
	require.NoError(t, err)

	_, err = os.Stat(db)
	require.NoError(t, err)

	out, _, err := execute(t, "trace", "--db", db, "--stage", "done")
	require.NoError(t, err)
	assert.Contains(t, out, "counter (Counter)")
	assert.Contains(t, out, "[2] counter set event n done: 1 -> 2")
}

func TestLoadOverrides(t *testing.T) {
	values, err := loadOverrides("", []string{"limit=3", "label=x y"})
	require.NoError(t, err)
	assert.Equal(t, 3, values["limit"])
	assert.Equal(t, "x y", values["label"])

	values, err = loadOverrides("", nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}
