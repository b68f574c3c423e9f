package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/examrender/internal/config"
	"github.com/ziadkadry99/examrender/internal/export"
	"github.com/ziadkadry99/examrender/internal/progress"
	"github.com/ziadkadry99/examrender/internal/sources"
)

var exportCmd = &cobra.Command{
	Use:   "export <file|dir|glob>...",
	Short: "Export exam documents to paginated PDF",
	Long: `Builds a PDF beside each source file. Images are read from the images
directory next to the source's parent directory and embedded. The command
exits non-zero if any build fails; other builds still complete.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("engine", "", "rendering engine: chrome or native (overrides config)")
	exportCmd.Flags().String("stylesheet", "", "stylesheet path (overrides config)")
	exportCmd.Flags().Duration("timeout", 0, "per-build time limit (overrides config)")
	exportCmd.Flags().Int("concurrency", 0, "max parallel builds (overrides config)")
	exportCmd.Flags().Bool("bar", false, "show a progress bar instead of progress lines")
	rootCmd.AddCommand(exportCmd)
}

func applyExportFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("engine"); v != "" {
		cfg.Engine = config.EngineType(v)
	}
	if v, _ := cmd.Flags().GetString("stylesheet"); v != "" {
		cfg.Stylesheet = v
	}
	if v, _ := cmd.Flags().GetDuration("timeout"); v > 0 {
		cfg.Timeout = v
	}
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.MaxConcurrency = v
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	start := time.Now()
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyExportFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	paths, err := sources.Expand(args, sources.Options{})
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no exam sources found")
	}

	setup, err := cfg.PageSetup()
	if err != nil {
		return err
	}
	launcher, err := newLauncher(cfg, logger)
	if err != nil {
		return err
	}
	compiler, closer, err := newCompiler(cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	x := export.New(launcher, cfg.StylesheetPath(), logger)
	x.Setup = setup
	x.Timeout = cfg.Timeout
	x.Math = compiler

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bar, _ := cmd.Flags().GetBool("bar")
	reporter := progress.NewReporter(os.Stdout, !bar)
	reporter.Start(len(paths))
	batch := export.NewBatch(x, cfg.MaxConcurrency, func(done, total int, path string, err error) {
		if err != nil {
			reporter.Update(done, fmt.Sprintf("%s failed", path))
			return
		}
		reporter.Update(done, fmt.Sprintf("%s -> %s", path, export.OutputPath(path)))
	})
	results := batch.Run(ctx, paths)
	reporter.Finish()

	for _, r := range results {
		if r.Err != nil {
			logger.Error("export failed", "source", r.Path, "error", r.Err)
			continue
		}
		logger.Debug("export written", "source", r.Path, "pdf", r.Artifact.Path, "pages", r.Artifact.PageCount, "build", r.Artifact.ID)
	}

	failed := export.Failed(results)
	logger.Info("export finished", "total", len(results), "failed", failed, "engine", cfg.Engine, "elapsed", time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d exports failed", failed, len(results))
	}
	return nil
}
