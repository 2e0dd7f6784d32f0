package zkml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceClassifier(t *testing.T) {
	prog, err := Decode(writeModel(t, classifierGraph()))
	require.NoError(t, err)

	// features 0..59: sum 1770, so linear = [1770+10, 2*1770-10000] and
	// ReLU clamps the negative second score.
	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)

	assert.Equal(t, []int64{1780, 0}, output.Values)
	assert.Equal(t, int64(1000), output.Scale)
	assert.Equal(t, prog.Digest(), trace.ProgramDigest)
	require.Len(t, trace.Steps, len(prog.Code))

	// The final step carries the pre-int64 output values.
	last := trace.Steps[len(trace.Steps)-1]
	require.Len(t, last.Values, 2)
	assert.Equal(t, int64(1780), last.Values[0].Int64())
	assert.Equal(t, int64(0), last.Values[1].Int64())
}

func TestTraceAllZeros(t *testing.T) {
	prog, err := Decode(writeModel(t, classifierGraph()))
	require.NoError(t, err)

	_, output, err := Trace(prog, make([]int64, FeatureCount))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 0}, output.Values)
}

func TestTraceWrongFeatureCount(t *testing.T) {
	prog, err := Decode(writeModel(t, classifierGraph()))
	require.NoError(t, err)

	_, _, err = Trace(prog, []int64{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = Trace(prog, make([]int64, FeatureCount+1))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestTraceFeatureOutOfBound(t *testing.T) {
	prog, err := Decode(writeModel(t, classifierGraph()))
	require.NoError(t, err)

	// Admissible features are 32-bit signed: 2^31 is out, -2^31 is in.
	features := testFeatures()
	features[7] = InputBound
	_, _, err = Trace(prog, features)
	require.ErrorIs(t, err, ErrInvalidInput)

	features[7] = -InputBound - 1
	_, _, err = Trace(prog, features)
	require.ErrorIs(t, err, ErrInvalidInput)

	features[7] = -InputBound
	_, _, err = Trace(prog, features)
	require.NoError(t, err)

	features[7] = InputBound - 1
	_, _, err = Trace(prog, features)
	require.NoError(t, err)
}

func TestTraceNegativeFeaturesWithinBound(t *testing.T) {
	prog, err := Decode(writeModel(t, classifierGraph()))
	require.NoError(t, err)

	features := make([]int64, FeatureCount)
	for i := range features {
		features[i] = -1
	}
	// linear = [-60+10, -120-10000], both negative, ReLU zeroes both.
	_, output, err := Trace(prog, features)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0}, output.Values)
}
