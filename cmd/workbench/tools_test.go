package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		inferExplain = false
		modelFacets = false
		logLevel = ""
		logFormat = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

const toolGraph = `{"graph": {
  "nodes": [
    {"id": "gen", "type": "nodetool.image.Generate"},
    {"id": "out", "type": "nodetool.output.ImageOutput", "data": {"name": "picture"}}
  ],
  "edges": [
    {"source": "gen", "sourceHandle": "image", "target": "out", "targetHandle": "value"}
  ]
}}`

const toolCatalog = `
nodes:
  - node_type: nodetool.image.Generate
    outputs:
      - name: image
        type:
          type: image
`

func TestInferCommand(t *testing.T) {
	graph := writeFile(t, "wf.json", toolGraph)
	catalog := writeFile(t, "catalog.yaml", toolCatalog)

	out, err := execute(t, "infer", graph, "--catalog", catalog)
	require.NoError(t, err)

	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &schema), out)
	assert.Equal(t, "image", schema.Properties["picture"].Type)
	assert.Equal(t, []string{"picture"}, schema.Required)

	out, err = execute(t, "infer", graph, "--catalog", catalog, "--explain")
	require.NoError(t, err)
	assert.Contains(t, out, `"output_node_id": "out"`)
}

func TestInferCommandLogsCatalogMisses(t *testing.T) {
	graph := writeFile(t, "wf.json", toolGraph)
	catalog := writeFile(t, "catalog.yaml", `
nodes:
  - node_type: nodetool.text.Split
`)

	out, err := execute(t, "infer", graph, "--catalog", catalog, "--log-level", "debug", "--log-format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "node type not in catalog")
	assert.Contains(t, out, "node_type=nodetool.image.Generate")
	assert.Contains(t, out, "null")
}

func TestInferCommandRejectsInvalidGraph(t *testing.T) {
	graph := writeFile(t, "bad.json", `{"nodes": [{"type": "x"}], "edges": []}`)
	catalog := writeFile(t, "catalog.yaml", toolCatalog)

	_, err := execute(t, "infer", graph, "--catalog", catalog)
	assert.Error(t, err)
}

func TestDiffCommand(t *testing.T) {
	from := writeFile(t, "from.json", `{"nodes": [{"id": "a", "type": "t"}], "edges": []}`)
	to := writeFile(t, "to.json", `{"nodes": [{"id": "a", "type": "t"}, {"id": "b", "type": "t"}], "edges": []}`)

	out, err := execute(t, "diff", from, to)
	require.NoError(t, err)

	var res struct {
		Summary struct {
			Added     int `json:"added"`
			Unchanged int `json:"unchanged"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, 1, res.Summary.Added)
	assert.Equal(t, 1, res.Summary.Unchanged)
}

func TestModelsCommand(t *testing.T) {
	file := writeFile(t, "models.json", `[{"id":"a","name":"Mistral-7B-Instruct"},{"id":"b","name":"Gemma-2B"}]`)

	out, err := execute(t, "models", file, "--facets")
	require.NoError(t, err)
	assert.Contains(t, out, `"mistral": 1`)
	assert.Contains(t, out, `"gemma": 1`)
}
