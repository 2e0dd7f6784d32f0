package zkml

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog/log"
)

// Machine owns a decoded program and its preprocessing state. A Machine is
// created bare and must run Preprocess (or adopt cached artifacts through
// UsePreprocessing) before it can prove.
type Machine struct {
	prog *Program

	mu sync.RWMutex
	pp *PreprocessingData
}

// NewMachine wraps a decoded program with no preprocessing attached.
func NewMachine(prog *Program) *Machine {
	return &Machine{prog: prog}
}

// Program returns the program this machine was built for.
func (m *Machine) Program() *Program {
	return m.prog
}

// Preprocess runs circuit compilation and the PLONK setup for the machine's
// program. Calling it on an already preprocessed machine is a no-op.
func (m *Machine) Preprocess() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pp != nil {
		return nil
	}
	pp, err := Preprocess(m.prog)
	if err != nil {
		return err
	}
	m.pp = pp
	return nil
}

// UsePreprocessing attaches previously generated preprocessing data, e.g.
// loaded from the artifact store. The data must match the machine's program.
func (m *Machine) UsePreprocessing(pp *PreprocessingData) error {
	if pp == nil || pp.Program == nil {
		return fmt.Errorf("%w: nil preprocessing data", ErrPreprocessing)
	}
	if pp.Program.Digest() != m.prog.Digest() {
		return fmt.Errorf("%w: preprocessing belongs to a different program", ErrPreprocessing)
	}
	m.mu.Lock()
	m.pp = pp
	m.mu.Unlock()
	return nil
}

// Preprocessing returns the attached preprocessing data, or nil if the
// machine has not been preprocessed.
func (m *Machine) Preprocessing() *PreprocessingData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pp
}

// VerifyingKey returns the serialized verifying key envelope for the
// machine's program.
func (m *Machine) VerifyingKey() ([]byte, error) {
	pp := m.Preprocessing()
	if pp == nil {
		return nil, fmt.Errorf("%w: preprocess before exporting the verifying key", ErrNotPreprocessed)
	}
	return encodeKeyEnvelope(m.prog.Digest(), pp.VerifyingKey)
}

// ProofResult bundles everything a prover hands to a verifier: the proof
// envelope, the matching verifying key envelope, and the claimed output in
// canonical form.
type ProofResult struct {
	Proof           []byte
	VerifyingKey    []byte
	Output          []byte
	InputCommitment [32]byte
}

// Prove generates a proof that the given trace executed the machine's
// program and produced the given output. The trace and output must come
// from Trace on the same program; any disagreement is a proving error, not
// a silently wrong proof.
func (m *Machine) Prove(trace *ExecutionTrace, output *ProgramOutput) (*ProofResult, error) {
	pp := m.Preprocessing()
	if pp == nil {
		return nil, fmt.Errorf("%w: preprocess before proving", ErrNotPreprocessed)
	}
	if trace == nil || output == nil {
		return nil, fmt.Errorf("%w: nil trace or output", ErrProving)
	}
	if trace.ProgramDigest != m.prog.Digest() {
		return nil, fmt.Errorf("%w: trace belongs to a different program", ErrProving)
	}
	if len(trace.Steps) != len(m.prog.Code) {
		return nil, fmt.Errorf("%w: trace has %d steps, program has %d instructions", ErrProving, len(trace.Steps), len(m.prog.Code))
	}
	if output.Scale != m.prog.Scale {
		return nil, fmt.Errorf("%w: output scale %d does not match program scale %d", ErrProving, output.Scale, m.prog.Scale)
	}
	if err := checkTraceOutput(trace, output); err != nil {
		return nil, err
	}

	commitment := InputCommitment(trace.Features)

	assignment := &InferenceCircuit{
		Output:          make([]frontend.Variable, len(output.Values)),
		InputCommitment: new(big.Int).SetBytes(commitment[:]),
		Scale:           output.Scale,
		Features:        make([]frontend.Variable, len(trace.Features)),
	}
	for i, v := range output.Values {
		assignment.Output[i] = v
	}
	for i, v := range trace.Features {
		assignment.Features[i] = v
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: build witness: %v", ErrProving, err)
	}

	log.Debug().
		Str("program", m.prog.Name).
		Int("constraints", pp.Shape.Constraints).
		Msg("generating proof")

	proof, err := plonk.Prove(pp.CCS, pp.ProvingKey, witness)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProving, err)
	}

	proofBytes, err := encodeProofEnvelope(m.prog.Digest(), commitment, proof)
	if err != nil {
		return nil, err
	}
	vkBytes, err := encodeKeyEnvelope(m.prog.Digest(), pp.VerifyingKey)
	if err != nil {
		return nil, err
	}
	outBytes, err := MarshalOutput(output)
	if err != nil {
		return nil, fmt.Errorf("%w: serialize output: %v", ErrProving, err)
	}

	return &ProofResult{
		Proof:           proofBytes,
		VerifyingKey:    vkBytes,
		Output:          outBytes,
		InputCommitment: commitment,
	}, nil
}

// checkTraceOutput confirms the claimed output equals the final values of
// the trace.
func checkTraceOutput(trace *ExecutionTrace, output *ProgramOutput) error {
	last := trace.Steps[len(trace.Steps)-1]
	if len(last.Values) != len(output.Values) {
		return fmt.Errorf("%w: output has %d values, trace produced %d", ErrProving, len(output.Values), len(last.Values))
	}
	for i, v := range last.Values {
		if !v.IsInt64() || v.Int64() != output.Values[i] {
			return fmt.Errorf("%w: output value %d disagrees with the trace", ErrProving, i)
		}
	}
	return nil
}
