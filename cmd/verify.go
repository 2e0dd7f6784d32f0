package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rugdetector/zkml-gnark/zkml"
)

// verifyRequest is the JSON the verifier reads from stdin. The output field
// is kept as raw bytes so the claimed statement is checked exactly as the
// prover emitted it.
type verifyRequest struct {
	Proof        string          `json:"proof"`
	VerifyingKey string          `json:"verifying_key"`
	Output       json.RawMessage `json:"output"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a proof against a verifying key and claimed output",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("%w: read stdin: %v", zkml.ErrDeserialization, err)
		}
		var req verifyRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("%w: %v", zkml.ErrDeserialization, err)
		}

		proof, err := hex.DecodeString(req.Proof)
		if err != nil {
			return fmt.Errorf("%w: proof is not valid hex: %v", zkml.ErrDeserialization, err)
		}
		vk, err := hex.DecodeString(req.VerifyingKey)
		if err != nil {
			return fmt.Errorf("%w: verifying key is not valid hex: %v", zkml.ErrDeserialization, err)
		}

		valid, err := zkml.Verify(proof, vk, []byte(req.Output))
		if err != nil {
			return err
		}
		return writeJSON(map[string]bool{"valid": valid})
	},
}
