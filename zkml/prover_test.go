package zkml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProveVerify(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)

	result, err := machine.Prove(trace, output)
	require.NoError(t, err)

	valid, err := Verify(result.Proof, result.VerifyingKey, result.Output)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestVerifyRejectsTamperedOutput(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)
	result, err := machine.Prove(trace, output)
	require.NoError(t, err)

	forged, err := MarshalOutput(&ProgramOutput{
		Values: []int64{output.Values[0] + 1, output.Values[1]},
		Scale:  output.Scale,
	})
	require.NoError(t, err)

	valid, err := Verify(result.Proof, result.VerifyingKey, forged)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyRejectsRescaledOutput(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)
	result, err := machine.Prove(trace, output)
	require.NoError(t, err)

	// Same values, different claimed scale.
	forged, err := MarshalOutput(&ProgramOutput{Values: output.Values, Scale: output.Scale * 10})
	require.NoError(t, err)

	valid, err := Verify(result.Proof, result.VerifyingKey, forged)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)
	result, err := machine.Prove(trace, output)
	require.NoError(t, err)

	// Flip one byte near the middle of the envelope. Depending on where it
	// lands this either corrupts the encoding or breaks the proof; neither
	// may verify.
	tampered := append([]byte(nil), result.Proof...)
	tampered[len(tampered)/2] ^= 0x01

	valid, err := Verify(tampered, result.VerifyingKey, result.Output)
	if err == nil {
		assert.False(t, valid)
	} else {
		assert.ErrorIs(t, err, ErrDeserialization)
	}
}

func TestVerifyRejectsTamperedVerifyingKey(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)
	result, err := machine.Prove(trace, output)
	require.NoError(t, err)

	// Flip a byte in the envelope header, the digest region, and the raw
	// key body. Each lands differently (broken encoding, digest mismatch,
	// corrupted key); none may verify.
	offsets := []int{0, 16, len(result.VerifyingKey) / 2, len(result.VerifyingKey) - 1}
	for _, off := range offsets {
		tampered := append([]byte(nil), result.VerifyingKey...)
		tampered[off] ^= 0x01

		valid, err := Verify(result.Proof, tampered, result.Output)
		if err == nil {
			assert.False(t, valid, "offset %d", off)
		} else {
			assert.ErrorIs(t, err, ErrDeserialization, "offset %d", off)
		}
	}
}

func TestProveWithoutPreprocessing(t *testing.T) {
	prog, _ := preprocessedClassifier(t)
	machine := NewMachine(prog)

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)

	_, err = machine.Prove(trace, output)
	require.ErrorIs(t, err, ErrNotPreprocessed)

	_, err = machine.VerifyingKey()
	require.ErrorIs(t, err, ErrNotPreprocessed)
}

func TestProveRejectsForeignTrace(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	g := classifierGraph()
	g.Initializers[1].Data[0]++
	other, err := Decode(writeModel(t, g))
	require.NoError(t, err)

	trace, output, err := Trace(other, testFeatures())
	require.NoError(t, err)

	_, err = machine.Prove(trace, output)
	require.ErrorIs(t, err, ErrProving)
}

func TestProveRejectsMismatchedOutput(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)

	output.Values[0]++
	_, err = machine.Prove(trace, output)
	require.ErrorIs(t, err, ErrProving)
}

func TestUsePreprocessingRejectsForeignProgram(t *testing.T) {
	_, pp := preprocessedClassifier(t)

	g := classifierGraph()
	g.Initializers[1].Data[0]++
	other, err := Decode(writeModel(t, g))
	require.NoError(t, err)

	machine := NewMachine(other)
	require.ErrorIs(t, machine.UsePreprocessing(pp), ErrPreprocessing)
}

func TestProofsAreNondeterministicButBothVerify(t *testing.T) {
	prog, pp := preprocessedClassifier(t)
	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))

	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)

	first, err := machine.Prove(trace, output)
	require.NoError(t, err)
	second, err := machine.Prove(trace, output)
	require.NoError(t, err)

	for _, result := range []*ProofResult{first, second} {
		valid, err := Verify(result.Proof, result.VerifyingKey, result.Output)
		require.NoError(t, err)
		assert.True(t, valid)
	}
}

func TestPreprocessingIsInteroperable(t *testing.T) {
	prog, pp := preprocessedClassifier(t)

	// A second, independent preprocessing run of the same program must
	// yield keys that verify proofs produced under the first.
	fresh, err := Preprocess(prog)
	require.NoError(t, err)

	machine := NewMachine(prog)
	require.NoError(t, machine.UsePreprocessing(pp))
	trace, output, err := Trace(prog, testFeatures())
	require.NoError(t, err)
	result, err := machine.Prove(trace, output)
	require.NoError(t, err)

	other := NewMachine(prog)
	require.NoError(t, other.UsePreprocessing(fresh))
	freshVK, err := other.VerifyingKey()
	require.NoError(t, err)

	valid, err := Verify(result.Proof, freshVK, result.Output)
	require.NoError(t, err)
	assert.True(t, valid)
}
