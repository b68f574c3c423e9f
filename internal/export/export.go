// Package export builds paginated PDF artifacts from exam source files.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/document"
	"github.com/ziadkadry99/examrender/internal/engine"
	"github.com/ziadkadry99/examrender/internal/texmath"
)

var (
	// ErrInputNotFound is returned when the source or stylesheet is missing.
	ErrInputNotFound = errors.New("export: input not found")
	// ErrStylesheetNotFound is the InputNotFound case for the stylesheet.
	ErrStylesheetNotFound = fmt.Errorf("%w: stylesheet", ErrInputNotFound)
)

// DefaultTimeout bounds one build, from reading its inputs to the engine's
// output.
const DefaultTimeout = 60 * time.Second

// Artifact is the output of one build.
type Artifact struct {
	ID        string
	Source    string
	Path      string // destination: the source path with a .pdf extension
	Data      []byte
	PageCount int
	Setup     engine.PageSetup
}

// Exporter runs static builds. Each build gets its own engine instance from
// Launcher; an Exporter may run many builds concurrently.
type Exporter struct {
	Launcher   engine.Launcher
	Stylesheet string
	Setup      engine.PageSetup
	Timeout    time.Duration
	Math       texmath.Compiler
	Logger     *slog.Logger
}

// New creates an Exporter with the default page setup and timeout and a
// synchronous math compiler.
func New(launcher engine.Launcher, stylesheet string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		Launcher:   launcher,
		Stylesheet: stylesheet,
		Setup:      engine.DefaultPageSetup(),
		Timeout:    DefaultTimeout,
		Math:       texmath.New(texmath.WithLogger(logger)),
		Logger:     logger,
	}
}

// OutputPath returns the artifact path for a source file.
func OutputPath(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".pdf"
}

// Build renders the source file at path. Nothing is written; see Write.
func (x *Exporter) Build(ctx context.Context, path string) (*Artifact, error) {
	id := uuid.NewString()
	log := x.Logger.With("build", id, "source", path)

	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	source, err := readFile(ctx, path)
	if err != nil {
		return nil, inputError(ctx, ErrInputNotFound, path, err)
	}
	css, err := readFile(ctx, x.Stylesheet)
	if err != nil {
		return nil, inputError(ctx, ErrStylesheetNotFound, x.Stylesheet, err)
	}
	log.Info("reading source", "bytes", len(source))

	images := assets.NewStatic(assets.ImagesDirFor(path), log)
	doc, err := document.New(x.Math, images, log).Assemble(string(source))
	if err != nil {
		return nil, fmt.Errorf("assembling %s: %w", path, err)
	}
	log.Info("document assembled", "fragments", len(doc.Fragments()))

	out, err := x.runEngine(ctx, shell(string(css), doc.HTML), log)
	if err != nil {
		log.Error("build failed", "error", err)
		return nil, err
	}
	log.Info("pdf rendered", "pages", out.PageCount, "size_kb", fmt.Sprintf("%.1f", float64(len(out.Data))/1024))

	return &Artifact{
		ID:        id,
		Source:    path,
		Path:      OutputPath(path),
		Data:      out.Data,
		PageCount: out.PageCount,
		Setup:     x.Setup,
	}, nil
}

type engineResult struct {
	out engine.Output
	err error
}

type readResult struct {
	data []byte
	err  error
}

// readFile reads path unless ctx ends first. A read that never returns, as
// on a hung network mount, is abandoned.
func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan readResult, 1)
	go func() {
		data, err := os.ReadFile(path)
		done <- readResult{data, err}
	}()
	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// inputError classifies a failed input read. Missing files are input errors;
// a read cut off by the build bound is reported the way engine timeouts are.
func inputError(ctx context.Context, kind error, path string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return engine.Fail(engine.OpSettle, fmt.Errorf("build did not finish: reading %s: %w", path, err))
	}
	return fmt.Errorf("%w: %s: %v", kind, path, err)
}

// runEngine drives launch, load and export in a worker goroutine bounded by
// ctx. A worker that ignores its context is abandoned; its result is
// discarded and its engine closed when it finally returns.
func (x *Exporter) runEngine(ctx context.Context, markup string, log *slog.Logger) (engine.Output, error) {
	done := make(chan engineResult, 1)
	go func() {
		var res engineResult
		defer func() {
			if r := recover(); r != nil {
				res = engineResult{err: engine.Fail(engine.OpCrash, fmt.Errorf("panic: %v", r))}
			}
			done <- res
		}()
		res.out, res.err = x.drive(ctx, markup, log)
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return engine.Output{}, engine.Fail(engine.OpSettle, fmt.Errorf("build did not finish: %w", ctx.Err()))
	}
}

func (x *Exporter) drive(ctx context.Context, markup string, log *slog.Logger) (engine.Output, error) {
	eng, err := x.Launcher.Launch(ctx)
	if err != nil {
		return engine.Output{}, engine.Fail(engine.OpLaunch, err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn("closing engine", "error", err)
		}
	}()

	log.Debug("loading document", "bytes", len(markup))
	if err := eng.Load(ctx, markup); err != nil {
		return engine.Output{}, engine.Fail(engine.OpLoad, err)
	}
	out, err := eng.Export(ctx, x.Setup)
	if err != nil {
		return engine.Output{}, engine.Fail(engine.OpExport, err)
	}
	if len(out.Data) == 0 {
		return engine.Output{}, engine.Fail(engine.OpExport, errors.New("engine produced no output"))
	}
	return out, nil
}

// Write stores the artifact at a.Path. The file appears only once it is
// complete.
func (a *Artifact) Write() error {
	dir := filepath.Dir(a.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(a.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", a.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", a.Path, err)
	}
	if err := os.Rename(tmp.Name(), a.Path); err != nil {
		return fmt.Errorf("renaming into %s: %w", a.Path, err)
	}
	return nil
}

// Export builds path and writes the artifact beside it.
func (x *Exporter) Export(ctx context.Context, path string) (*Artifact, error) {
	a, err := x.Build(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := a.Write(); err != nil {
		return nil, err
	}
	x.Logger.Info("pdf written", "build", a.ID, "path", a.Path)
	return a, nil
}
