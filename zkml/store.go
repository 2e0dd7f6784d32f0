package zkml

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/rs/zerolog/log"
)

// Artifact file names inside a preprocessing directory.
var (
	circuitFile = "circuit.bin"
	pkFile      = "pk.bin"
	vkFile      = "vk.bin"
	digestFile  = "program.digest"
)

// SavePreprocessing writes the preprocessing artifacts for a program into
// dir, one file per artifact plus the program digest that ties them together.
func SavePreprocessing(dir string, pp *PreprocessingData) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}

	digest := pp.Program.Digest()
	if err := os.WriteFile(filepath.Join(dir, digestFile), []byte(hex.EncodeToString(digest[:])), 0o644); err != nil {
		return fmt.Errorf("%w: write digest: %v", ErrPreprocessing, err)
	}

	// Write the circuit.
	circuitF, err := os.Create(filepath.Join(dir, circuitFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}
	defer circuitF.Close()
	circuitW := bufio.NewWriter(circuitF)
	if _, err := pp.CCS.WriteTo(circuitW); err != nil {
		return fmt.Errorf("%w: write circuit: %v", ErrPreprocessing, err)
	}
	if err := circuitW.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}

	// Write the proving key.
	pkF, err := os.Create(filepath.Join(dir, pkFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}
	defer pkF.Close()
	pkW := bufio.NewWriter(pkF)
	if _, err := pp.ProvingKey.WriteTo(pkW); err != nil {
		return fmt.Errorf("%w: write proving key: %v", ErrPreprocessing, err)
	}
	if err := pkW.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}

	// Write the verifying key.
	vkF, err := os.Create(filepath.Join(dir, vkFile))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}
	defer vkF.Close()
	vkW := bufio.NewWriter(vkF)
	if _, err := pp.VerifyingKey.WriteTo(vkW); err != nil {
		return fmt.Errorf("%w: write verifying key: %v", ErrPreprocessing, err)
	}
	if err := vkW.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrPreprocessing, err)
	}

	return nil
}

// LoadPreprocessing reads preprocessing artifacts for prog from dir. It
// fails if the stored digest does not match the program, so stale artifacts
// from an older model are never reused.
func LoadPreprocessing(dir string, prog *Program) (*PreprocessingData, error) {
	stored, err := os.ReadFile(filepath.Join(dir, digestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPreprocessed, err)
	}
	digest := prog.Digest()
	if string(stored) != hex.EncodeToString(digest[:]) {
		return nil, fmt.Errorf("%w: stored artifacts belong to a different program", ErrNotPreprocessed)
	}

	// Read the circuit.
	circuitF, err := os.Open(filepath.Join(dir, circuitFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPreprocessed, err)
	}
	defer circuitF.Close()
	ccs := plonk.NewCS(ecc.BN254)
	if _, err := ccs.ReadFrom(bufio.NewReader(circuitF)); err != nil {
		return nil, fmt.Errorf("%w: read circuit: %v", ErrDeserialization, err)
	}

	// Read the proving key.
	pkF, err := os.Open(filepath.Join(dir, pkFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPreprocessed, err)
	}
	defer pkF.Close()
	pk := plonk.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(bufio.NewReader(pkF)); err != nil {
		return nil, fmt.Errorf("%w: read proving key: %v", ErrDeserialization, err)
	}

	// Read the verifying key.
	vkF, err := os.Open(filepath.Join(dir, vkFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPreprocessed, err)
	}
	defer vkF.Close()
	vk := plonk.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bufio.NewReader(vkF)); err != nil {
		return nil, fmt.Errorf("%w: read verifying key: %v", ErrDeserialization, err)
	}

	return &PreprocessingData{
		Program:      prog,
		CCS:          ccs,
		ProvingKey:   pk,
		VerifyingKey: vk,
		Shape: CircuitShape{
			Constraints:  ccs.GetNbConstraints(),
			PublicInputs: ccs.GetNbPublicVariables(),
			SRSSize:      ecc.NextPowerOfTwo(uint64(ccs.GetNbConstraints()+ccs.GetNbPublicVariables())) + 3,
		},
	}, nil
}

// PreprocessCached loads preprocessing artifacts from dir when they match
// prog, and otherwise regenerates and saves them.
func PreprocessCached(prog *Program, dir string) (*PreprocessingData, error) {
	if pp, err := LoadPreprocessing(dir, prog); err == nil {
		log.Debug().Str("dir", dir).Msg("loaded cached preprocessing artifacts")
		return pp, nil
	}
	pp, err := Preprocess(prog)
	if err != nil {
		return nil, err
	}
	if err := SavePreprocessing(dir, pp); err != nil {
		return nil, err
	}
	return pp, nil
}
