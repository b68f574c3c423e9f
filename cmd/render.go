package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/live"
	"github.com/ziadkadry99/examrender/internal/texmath"
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Print the interactive HTML for an exam document",
	Long:  `Runs the interactive pipeline on a file and prints the mount markup. Images resolve to URLs under base_url.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("base-url"); v != "" {
			cfg.BaseURL = v
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		logger := slog.Default()
		r := live.NewRenderer(texmath.DefaultLoader(texmath.WithLogger(logger)), assets.NewRemote(cfg.BaseURL), logger)
		out, err := r.Render(context.Background(), string(content))
		if out != "" {
			fmt.Fprintln(cmd.OutOrStdout(), out)
		}
		return err
	},
}

func init() {
	renderCmd.Flags().String("base-url", "", "image base URL (overrides config)")
	rootCmd.AddCommand(renderCmd)
}
