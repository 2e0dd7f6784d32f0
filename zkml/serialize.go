package zkml

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/fxamacker/cbor/v2"
)

// envelopeVersion is the wire format version of proof and key envelopes.
const envelopeVersion = 1

// proofEnvelope is the transportable proof: the raw PLONK proof plus the
// bindings a verifier needs to rebuild the public witness.
type proofEnvelope struct {
	Version         uint8  `cbor:"v"`
	ProgramDigest   []byte `cbor:"digest"`
	InputCommitment []byte `cbor:"commitment"`
	Proof           []byte `cbor:"proof"`
}

// keyEnvelope is the transportable verifying key, tagged with the digest of
// the program it was derived from.
type keyEnvelope struct {
	Version       uint8  `cbor:"v"`
	ProgramDigest []byte `cbor:"digest"`
	VerifyingKey  []byte `cbor:"vk"`
}

func encodeProofEnvelope(digest, commitment [32]byte, proof plonk.Proof) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize proof: %v", ErrProving, err)
	}
	return cbor.Marshal(proofEnvelope{
		Version:         envelopeVersion,
		ProgramDigest:   digest[:],
		InputCommitment: commitment[:],
		Proof:           buf.Bytes(),
	})
}

func decodeProofEnvelope(data []byte) (*proofEnvelope, error) {
	var env proofEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: proof envelope: %v", ErrDeserialization, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: proof envelope version %d", ErrDeserialization, env.Version)
	}
	if len(env.ProgramDigest) != 32 || len(env.InputCommitment) != 32 || len(env.Proof) == 0 {
		return nil, fmt.Errorf("%w: proof envelope field sizes", ErrDeserialization)
	}
	return &env, nil
}

func encodeKeyEnvelope(digest [32]byte, vk plonk.VerifyingKey) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("%w: serialize verifying key: %v", ErrProving, err)
	}
	return cbor.Marshal(keyEnvelope{
		Version:       envelopeVersion,
		ProgramDigest: digest[:],
		VerifyingKey:  buf.Bytes(),
	})
}

func decodeKeyEnvelope(data []byte) (*keyEnvelope, error) {
	var env keyEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: key envelope: %v", ErrDeserialization, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: key envelope version %d", ErrDeserialization, env.Version)
	}
	if len(env.ProgramDigest) != 32 || len(env.VerifyingKey) == 0 {
		return nil, fmt.Errorf("%w: key envelope field sizes", ErrDeserialization)
	}
	return &env, nil
}

// readPlonkProof deserializes raw PLONK proof bytes.
func readPlonkProof(raw []byte) (plonk.Proof, error) {
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: plonk proof: %v", ErrDeserialization, err)
	}
	return proof, nil
}

// readPlonkVerifyingKey deserializes raw PLONK verifying key bytes.
func readPlonkVerifyingKey(raw []byte) (plonk.VerifyingKey, error) {
	vk := plonk.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: plonk verifying key: %v", ErrDeserialization, err)
	}
	return vk, nil
}

// MarshalOutput renders the program output in its canonical byte form, the
// only form the verifier accepts. json.Marshal over the fixed struct keeps
// key order and spacing stable.
func MarshalOutput(out *ProgramOutput) ([]byte, error) {
	return json.Marshal(out)
}

// UnmarshalOutput parses claimed output bytes and rejects any non-canonical
// encoding, so a byte-level mutation of a valid output either changes the
// claimed values or is flagged as malformed. It never silently round-trips.
func UnmarshalOutput(data []byte) (*ProgramOutput, error) {
	var out ProgramOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrDeserialization, err)
	}
	canonical, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrDeserialization, err)
	}
	if !bytes.Equal(canonical, data) {
		return nil, fmt.Errorf("%w: output is not in canonical form", ErrDeserialization)
	}
	return &out, nil
}
