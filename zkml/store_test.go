package zkml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	dir := t.TempDir()

	require.NoError(t, SavePreprocessing(dir, pp))

	loaded, err := LoadPreprocessing(dir, prog)
	require.NoError(t, err)
	assert.Equal(t, pp.Shape.Constraints, loaded.Shape.Constraints)
	assert.Equal(t, pp.Shape.PublicInputs, loaded.Shape.PublicInputs)
	assert.Equal(t, pp.Shape.SRSSize, loaded.Shape.SRSSize)

	// Proving with reloaded artifacts verifies against the original key.
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(loaded))
	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)
	result, err := machine.Prove(trace, output)
	require.NoError(t, err)

	valid, err := Verify(result.Proof, result.VerifyingKey, result.Output)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestLoadRejectsForeignArtifacts(t *testing.T) {
	_, pp := preprocessedClassifier(t)
	dir := t.TempDir()
	require.NoError(t, SavePreprocessing(dir, pp))

	g := classifierGraph()
	g.Initializers[1].Data[0]++
	other, err := Decode(writeModel(t, g))
	require.NoError(t, err)

	_, err = LoadPreprocessing(dir, other)
	require.ErrorIs(t, err, ErrNotPreprocessed)
}

func TestLoadMissingArtifacts(t *testing.T) {
	prog, _ := preprocessedClassifier(t)
	_, err := LoadPreprocessing(t.TempDir(), prog)
	require.ErrorIs(t, err, ErrNotPreprocessed)
}
