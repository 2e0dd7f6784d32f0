package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rugdetector/zkml-gnark/zkml"
)

var rootCmdVerbose bool

var rootCmd = &cobra.Command{
	Use:           zkml.Name,
	Short:         "Prove and verify rug-pull classifier inferences",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if rootCmdVerbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()

		// gnark logs to stdout by default, which would corrupt the JSON
		// output stream.
		gnarklogger.Set(zerolog.New(io.Discard))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootCmdVerbose, "verbose", false, "enable debug logging")
	rootCmd.AddCommand(preprocessCmd)
	rootCmd.AddCommand(proveCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the CLI. Failures are reported as a single JSON object on
// stderr and a non-zero exit code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		msg, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintln(os.Stderr, string(msg))
		os.Exit(1)
	}
}

// writeJSON emits v on stdout followed by a newline.
func writeJSON(v any) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Println(string(enc))
	return nil
}

// artifactDir resolves the preprocessing artifact directory: the --data
// flag when given, otherwise a directory next to the model file.
func artifactDir(modelPath, flag string) string {
	if flag != "" {
		return flag
	}
	return filepath.Join(filepath.Dir(modelPath), "zkml-artifacts")
}
