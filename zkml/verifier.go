package zkml

import (
	"crypto/subtle"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
)

// Verify checks a proof envelope against a verifying key envelope and a
// claimed output. It is stateless: everything needed arrives in the three
// byte slices.
//
// Malformed inputs return ErrDeserialization; an internal failure while
// rebuilding the public witness returns ErrVerification. A well-formed but
// wrong proof returns (false, nil). All binding checks run before the
// result is decided so an accept never depends on a partial check.
func Verify(proofBytes, keyBytes, outputBytes []byte) (bool, error) {
	proofEnv, err := decodeProofEnvelope(proofBytes)
	if err != nil {
		return false, err
	}
	keyEnv, err := decodeKeyEnvelope(keyBytes)
	if err != nil {
		return false, err
	}
	output, err := UnmarshalOutput(outputBytes)
	if err != nil {
		return false, err
	}

	proof, err := readPlonkProof(proofEnv.Proof)
	if err != nil {
		return false, err
	}
	vk, err := readPlonkVerifyingKey(keyEnv.VerifyingKey)
	if err != nil {
		return false, err
	}

	witness, err := publicWitness(output, proofEnv.InputCommitment)
	if err != nil {
		return false, fmt.Errorf("%w: build public witness: %v", ErrVerification, err)
	}

	// Accept only if the proof verifies AND the proof and key were derived
	// from the same program. Both checks always run.
	digestsMatch := subtle.ConstantTimeCompare(proofEnv.ProgramDigest, keyEnv.ProgramDigest) == 1
	proofValid := plonk.Verify(proof, vk, witness) == nil
	return digestsMatch && proofValid, nil
}

// publicWitness rebuilds the public part of the witness from the claimed
// output and the input commitment carried by the proof envelope.
func publicWitness(output *ProgramOutput, commitment []byte) (witness.Witness, error) {
	assignment := &InferenceCircuit{
		Output:          make([]frontend.Variable, len(output.Values)),
		InputCommitment: new(big.Int).SetBytes(commitment),
		Scale:           output.Scale,
	}
	for i, v := range output.Values {
		assignment.Output[i] = v
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, err
	}
	return w, nil
}
