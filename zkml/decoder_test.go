package zkml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClassifier(t *testing.T) {
	prog, err := Decode(writeModel(t, classifierGraph()))
	require.NoError(t, err)

	assert.Equal(t, "rug-classifier-test", prog.Name)
	assert.Equal(t, int64(1000), prog.Scale)
	assert.Equal(t, FeatureCount, prog.InputLen)
	assert.Equal(t, 2, prog.OutputLen)
	// input load + three lowered nodes
	require.Len(t, prog.Code, 4)
	assert.Equal(t, OpInput, prog.Code[0].Op)
	assert.Equal(t, OpMatMul, prog.Code[1].Op)
	assert.Equal(t, OpAdd, prog.Code[2].Op)
	assert.Equal(t, OpRelu, prog.Code[3].Op)
	assert.Positive(t, prog.Code[3].BoundBits)
	assert.Equal(t, prog.Code[3].Dst, prog.OutputReg)
}

func TestDecodeDeterministic(t *testing.T) {
	path := writeModel(t, classifierGraph())
	a, err := Decode(path)
	require.NoError(t, err)
	b, err := Decode(path)
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())
	assert.Equal(t, a.Code, b.Code)
}

func TestDecodeDigestChangesWithWeights(t *testing.T) {
	a, err := Decode(writeModel(t, classifierGraph()))
	require.NoError(t, err)

	g := classifierGraph()
	g.Initializers[1].Data[0]++
	b, err := Decode(writeModel(t, g))
	require.NoError(t, err)

	assert.NotEqual(t, a.Digest(), b.Digest())
}

func TestDecodeUnsupportedOperator(t *testing.T) {
	g := classifierGraph()
	g.Nodes = append(g.Nodes, ModelNode{Op: "sigmoid", Inputs: []string{"scores"}, Output: "probs"})
	g.Output.Name = "probs"

	_, err := Decode(writeModel(t, g))
	require.ErrorIs(t, err, ErrModelLoad)
	assert.Contains(t, err.Error(), "unsupported operator")
}

func TestDecodeBadInputShape(t *testing.T) {
	g := classifierGraph()
	g.Input.Shape = []int{1, 30}
	_, err := Decode(writeModel(t, g))
	require.ErrorIs(t, err, ErrModelLoad)
}

func TestDecodeMatMulWeightMustBeInitializer(t *testing.T) {
	g := classifierGraph()
	g.Nodes[0].Inputs[1] = "features"
	_, err := Decode(writeModel(t, g))
	require.ErrorIs(t, err, ErrModelLoad)
}

func TestDecodeOutputMustBeFinalNode(t *testing.T) {
	g := classifierGraph()
	g.Output.Name = "linear"
	_, err := Decode(writeModel(t, g))
	require.ErrorIs(t, err, ErrModelLoad)
}

func TestDecodeMissingModelFile(t *testing.T) {
	_, err := Decode("does-not-exist.json")
	require.ErrorIs(t, err, ErrModelLoad)
}
