package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const counterCUE = `package counter

types: Counter: {
	docs: "A bounded counter."
	fields: {
		n: {type: "int", default: 0, min: 0, tags: config: true}
		label: {type: "string", default: "c", docs: "Display label."}
		limit: {type: "int", default: 10, tags: config: true}
		id: {type: "string", readonly: true}
	}
}
`

const passingScenario = `name: counter
description: Two sets of a watched field
schema: ../schema
type: Counter
observe:
  - label: watch
    fields: [n]
    kinds: [set]
    stages: [done]
steps:
  - set: n
    value: 1
  - set: n
    value: 2
assertions:
  - type: notified
    observer: watch
    values: [1, 2]
`

const failingScenario = `name: counter_wrong
schema: ../schema
type: Counter
observe:
  - label: watch
    fields: [n]
    stages: [done]
steps:
  - set: n
    value: 1
assertions:
  - type: notified
    observer: watch
    values: [3]
`

// writeFixture lays out root/schema/counter.cue and root/scenarios/<name>.yaml
// and returns the scenarios directory.
func writeFixture(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "schema"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "schema", "counter.cue"), []byte(counterCUE), 0644))

	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0644))
	}
	return dir
}

// schemaDir returns the schema directory next to a fixture's scenarios.
func schemaDir(scenariosDir string) string {
	return filepath.Join(filepath.Dir(scenariosDir), "schema")
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
