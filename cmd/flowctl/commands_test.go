package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlFlow = `
nodes:
  - id: "1"
    type: message
    data:
      content: "Hi {{name}}"
  - id: "2"
    type: question
    data:
      question: "Continue?"
      options: ["yes", "no"]
  - id: "3"
    type: message
    data:
      content: "Great"
  - id: "4"
    type: message
    data:
      content: "Bye"
edges:
  - {source: "1", target: "2"}
  - {source: "2", target: "3", sourceHandle: "option-0"}
  - {source: "2", target: "4", sourceHandle: "option-1"}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := runCmd()
	if args[0] == "validate" {
		cmd = validateCmd()
	}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args[1:])
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateYAML(t *testing.T) {
	path := writeFile(t, "flow.yaml", yamlFlow)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "4 nodes")
	assert.Contains(t, out, `entry node "1"`)
}

func TestValidateRejectsBrokenFlow(t *testing.T) {
	path := writeFile(t, "flow.json", `{"nodes":[]}`)

	_, err := execute(t, "validate", path)
	assert.Error(t, err)
}

func TestRunWithReplies(t *testing.T) {
	path := writeFile(t, "flow.yml", yamlFlow)

	out, err := execute(t, "run", path, "--var", "name=Ana", "--reply", "2", "--dialog", "chat9")
	require.NoError(t, err)
	assert.Contains(t, out, "💬 [chat9] Hi Ana")
	assert.Contains(t, out, "Continue?")
	assert.Contains(t, out, "💬 [chat9] Bye")
	assert.NotContains(t, out, "Great")
	assert.Contains(t, out, `"status": "completed"`)
}

func TestYAMLToJSON(t *testing.T) {
	doc, err := yamlToJSON([]byte("nodes: []\nedges: []\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[],"edges":[]}`, string(doc))

	_, err = yamlToJSON([]byte("nodes: [\n"))
	assert.Error(t, err)
}
