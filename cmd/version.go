package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rugdetector/zkml-gnark/zkml"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print toolchain version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(zkml.VersionDescriptor())
	},
}
