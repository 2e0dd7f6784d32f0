package cmd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rugdetector/zkml-gnark/zkml"
)

var proveCmdModelPath string
var proveCmdDataDir string

func init() {
	proveCmd.Flags().StringVar(&proveCmdModelPath, "model", "", "path to the model file")
	proveCmd.Flags().StringVar(&proveCmdDataDir, "data", "", "directory for preprocessing artifacts (default: next to the model)")
}

// proveRequest is the JSON the prover reads from stdin.
type proveRequest struct {
	Features []int64 `json:"features"`
}

// proveResponse is the JSON the prover writes to stdout. The output field
// carries the canonical output bytes the verifier expects.
type proveResponse struct {
	Proof        string          `json:"proof"`
	VerifyingKey string          `json:"verifying_key"`
	Output       json.RawMessage `json:"output"`
}

var proveCmd = &cobra.Command{
	Use:   "prove",
	Short: "Run the model on witness features and prove the execution",
	RunE: func(cmd *cobra.Command, args []string) error {
		if proveCmdModelPath == "" {
			return errors.New("--model is required")
		}

		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("%w: read stdin: %v", zkml.ErrInvalidInput, err)
		}
		var req proveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("%w: %v", zkml.ErrInvalidInput, err)
		}

		prog, err := zkml.Decode(proveCmdModelPath)
		if err != nil {
			return err
		}

		machine := zkml.NewMachine(prog)
		pp, err := zkml.PreprocessCached(prog, artifactDir(proveCmdModelPath, proveCmdDataDir))
		if err != nil {
			return err
		}
		if err := machine.UsePreprocessing(pp); err != nil {
			return err
		}

		trace, output, err := zkml.Trace(prog, req.Features)
		if err != nil {
			return err
		}
		log.Debug().Int("steps", len(trace.Steps)).Msg("execution traced")

		result, err := machine.Prove(trace, output)
		if err != nil {
			return err
		}

		return writeJSON(proveResponse{
			Proof:        hex.EncodeToString(result.Proof),
			VerifyingKey: hex.EncodeToString(result.VerifyingKey),
			Output:       json.RawMessage(result.Output),
		})
	},
}
