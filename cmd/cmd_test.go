package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghodss/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/halomesh/mesh"
)

func TestRunGenerate(t *testing.T) {
	dir := t.TempDir()
	inputFile := filepath.Join(dir, "mesh.yaml")
	fileInput := []byte(`
Title: Test Case
Cells: [4, 2]
Lengths: [4., 2.]
Parts: 2
`)
	require.NoError(t, os.WriteFile(inputFile, fileInput, 0o644))
	gm := &GenerateModel{
		InputFile: inputFile,
		OutDir:    filepath.Join(dir, "out"),
		All:       true,
		Verbose:   true,
	}
	var buf bytes.Buffer
	require.NoError(t, RunGenerate(gm, &buf))
	assert.Contains(t, buf.String(), "Fragment 1 of 2 (2D)")
	assert.Contains(t, buf.String(), `comm pattern "nodes" rank 1`)

	for np := 0; np < 2; np++ {
		data, err := os.ReadFile(fragmentFile(gm.OutDir, np))
		require.NoError(t, err)
		var doc map[string]interface{}
		require.NoError(t, yaml.Unmarshal(data, &doc))
		assert.Equal(t, float64(np), doc["part"])
		assert.Equal(t, "Quad", doc["cellType"])
	}
}

func TestRunGenerateSinglePart(t *testing.T) {
	gm := &GenerateModel{}
	gm.Params.Cells = []int{3}
	gm.Params.Lengths = []float64{1.5}
	gm.Params.Parts = 2
	// 4 nodes split 2/2, 3 cells split 2/1
	var buf bytes.Buffer
	require.NoError(t, RunGenerate(gm, &buf))
	assert.Contains(t, buf.String(), "Fragment 0 of 2 (1D)")
	assert.Contains(t, buf.String(), "Nodes: 3 (2 owned, 1 ghost)")

	gm.Params.Part = 2
	err := RunGenerate(gm, &buf)
	assert.ErrorIs(t, err, mesh.ErrSetup)

	gm = &GenerateModel{InputFile: filepath.Join(t.TempDir(), "missing.yaml")}
	assert.Error(t, RunGenerate(gm, &buf))
}

func TestRunHalo(t *testing.T) {
	for _, nparts := range []int{1, 2, 3, 5} {
		gm := &GenerateModel{All: true, Verbose: true}
		gm.Params.Cells = []int{4, 2}
		gm.Params.Lengths = []float64{4, 2}
		gm.Params.Parts = nparts
		var buf bytes.Buffer
		require.NoError(t, RunHalo(gm, &buf), "%d parts", nparts)
		assert.NotContains(t, buf.String(), "disagree")
	}
}
