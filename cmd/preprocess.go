package cmd

import (
	"encoding/hex"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rugdetector/zkml-gnark/zkml"
)

var preprocessCmdModelPath string
var preprocessCmdDataDir string

func init() {
	preprocessCmd.Flags().StringVar(&preprocessCmdModelPath, "model", "", "path to the model file")
	preprocessCmd.Flags().StringVar(&preprocessCmdDataDir, "data", "", "directory for preprocessing artifacts (default: next to the model)")
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Decode a model and generate proving and verifying keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		if preprocessCmdModelPath == "" {
			return errors.New("--model is required")
		}
		dataDir := artifactDir(preprocessCmdModelPath, preprocessCmdDataDir)

		prog, err := zkml.Decode(preprocessCmdModelPath)
		if err != nil {
			return err
		}
		digest := prog.Digest()
		log.Info().Str("model", prog.Name).Str("digest", hex.EncodeToString(digest[:])).Msg("model decoded")

		pp, err := zkml.Preprocess(prog)
		if err != nil {
			return err
		}
		if err := zkml.SavePreprocessing(dataDir, pp); err != nil {
			return err
		}

		return writeJSON(map[string]any{
			"status":        "preprocessed",
			"model":         prog.Name,
			"digest":        hex.EncodeToString(digest[:]),
			"constraints":   pp.Shape.Constraints,
			"public_inputs": pp.Shape.PublicInputs,
			"data_dir":      dataDir,
		})
	},
}
