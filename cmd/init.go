package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ziadkadry99/examrender/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize examrender configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to pick the rendering engine, page size and image base URL, and writes a .examrender.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
