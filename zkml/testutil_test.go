package zkml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// classifierGraph builds a small but representative model: a 60->2 linear
// layer with bias followed by ReLU, weights already in fixed-point form.
func classifierGraph() *ModelGraph {
	weights := make([]int64, FeatureCount*2)
	for i := 0; i < FeatureCount; i++ {
		weights[i*2] = 1
		weights[i*2+1] = 2
	}
	return &ModelGraph{
		FormatVersion: 1,
		Name:          "rug-classifier-test",
		Scale:         1000,
		Input:         ModelInput{Name: "features", Shape: []int{1, FeatureCount}},
		Output:        ModelOutput{Name: "scores"},
		Initializers: []ModelInitializer{
			{Name: "w", Shape: []int{FeatureCount, 2}, Data: weights},
			{Name: "b", Shape: []int{1, 2}, Data: []int64{10, -10000}},
		},
		Nodes: []ModelNode{
			{Op: "matmul", Inputs: []string{"features", "w"}, Output: "linear"},
			{Op: "add", Inputs: []string{"linear", "b"}, Output: "biased"},
			{Op: "relu", Inputs: []string{"biased"}, Output: "scores"},
		},
	}
}

// writeModel serializes a graph to a temp file and returns its path.
func writeModel(t *testing.T, g *ModelGraph) string {
	t.Helper()
	data, err := json.Marshal(g)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// testFeatures returns a deterministic in-bound witness.
func testFeatures() []int64 {
	features := make([]int64, FeatureCount)
	for i := range features {
		features[i] = int64(i)
	}
	return features
}

// Preprocessing dominates test runtime, so the standard test program is
// preprocessed once and shared.
var (
	setupOnce sync.Once
	setupProg *Program
	setupPP   *PreprocessingData
	setupErr  error
)

func preprocessedClassifier(t *testing.T) (*Program, *PreprocessingData) {
	t.Helper()
	setupOnce.Do(func() {
		path := writeModel(t, classifierGraph())
		setupProg, setupErr = Decode(path)
		if setupErr != nil {
			return
		}
		setupPP, setupErr = Preprocess(setupProg)
	})
	require.NoError(t, setupErr)
	return setupProg, setupPP
}
