package zkml

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	kzgbn254 "github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/consensys/gnark-crypto/kzg"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/scs"
)

// maxBoundBits caps the magnitude bound of any register value well below the
// BN254 scalar field (254 bits), so signed values never wrap and the relu
// decomposition stays sound.
const maxBoundBits = 250

// CircuitShape is the public description of the compiled circuit.
type CircuitShape struct {
	Constraints  int
	PublicInputs int
	SRSSize      uint64
}

// PreprocessingData is the one-time, model-specific setup shared by every
// proof and verification for that model. It is immutable after creation and
// safe to use from concurrent Prove calls; regenerating it per proof is both
// expensive and, under a different SRS, would invalidate existing proofs.
type PreprocessingData struct {
	Program      *Program
	CCS          constraint.ConstraintSystem
	ProvingKey   plonk.ProvingKey
	VerifyingKey plonk.VerifyingKey
	Shape        CircuitShape
}

// Preprocess compiles the bytecode program into a PLONK constraint system
// over BN254 and runs the scheme setup against a KZG SRS derived
// deterministically from the program digest. It is a pure function of the
// program: two runs over the same model produce interoperable keys.
func Preprocess(prog *Program) (*PreprocessingData, error) {
	for r, bound := range prog.Bounds {
		if bound.BitLen() > maxBoundBits {
			return nil, fmt.Errorf("%w: register %d bound needs %d bits, field allows %d",
				ErrPreprocessing, r, bound.BitLen(), maxBoundBits)
		}
	}

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, newCircuitTemplate(prog))
	if err != nil {
		return nil, fmt.Errorf("%w: compile: %v", ErrPreprocessing, err)
	}

	srs, srsLagrange, srsSize, err := deterministicSRS(ccs, prog.Digest())
	if err != nil {
		return nil, fmt.Errorf("%w: srs: %v", ErrPreprocessing, err)
	}

	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	if err != nil {
		return nil, fmt.Errorf("%w: setup: %v", ErrPreprocessing, err)
	}

	return &PreprocessingData{
		Program:      prog,
		CCS:          ccs,
		ProvingKey:   pk,
		VerifyingKey: vk,
		Shape: CircuitShape{
			Constraints:  ccs.GetNbConstraints(),
			PublicInputs: ccs.GetNbPublicVariables(),
			SRSSize:      srsSize,
		},
	}, nil
}

// deterministicSRS builds canonical and Lagrange KZG reference strings sized
// to the constraint system, with the toxic scalar derived from the program
// digest. The seed is the recorded digest itself, so setup is reproducible
// on any machine; a ceremony SRS can replace this at deployment without
// touching callers.
func deterministicSRS(ccs constraint.ConstraintSystem, digest [32]byte) (kzg.SRS, kzg.SRS, uint64, error) {
	sizeSystem := ccs.GetNbConstraints() + ccs.GetNbPublicVariables()
	sizeLagrange := ecc.NextPowerOfTwo(uint64(sizeSystem))
	sizeCanonical := sizeLagrange + 3

	tau := srsTau(digest)
	srs, err := kzgbn254.NewSRS(sizeCanonical, tau)
	if err != nil {
		return nil, nil, 0, err
	}

	srsLagrange := &kzgbn254.SRS{Vk: srs.Vk}
	srsLagrange.Pk.G1, err = kzgbn254.ToLagrangeG1(srs.Pk.G1[:sizeLagrange])
	if err != nil {
		return nil, nil, 0, err
	}
	return srs, srsLagrange, sizeCanonical, nil
}

// srsTau maps the program digest into a nonzero scalar.
func srsTau(digest [32]byte) *big.Int {
	seed := sha256.Sum256(append(digest[:], []byte("kzg-srs-tau")...))
	var e fr.Element
	e.SetBytes(seed[:])
	if e.IsZero() {
		e.SetOne()
	}
	return e.BigInt(new(big.Int))
}
