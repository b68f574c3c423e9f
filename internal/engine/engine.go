// Package engine defines the rendering-engine capability used by the static
// renderer: load a complete markup document, wait for it to settle, and
// export it as paginated output.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEngineFailure is the taxonomy class for every engine-side failure.
var ErrEngineFailure = errors.New("engine: failure")

// Failure operations.
const (
	OpLaunch = "launch"
	OpLoad   = "load"
	OpSettle = "settle"
	OpExport = "export"
	OpCrash  = "crash"
)

// Failure records which engine operation failed.
type Failure struct {
	Op  string
	Err error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "engine " + f.Op + " failed"
	}
	return fmt.Sprintf("engine %s failed: %v", f.Op, f.Err)
}

// Unwrap exposes both the taxonomy sentinel and the cause.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{ErrEngineFailure}
	}
	return []error{ErrEngineFailure, f.Err}
}

// Fail wraps err as a Failure for op. An error that already is a Failure is
// returned unchanged.
func Fail(op string, err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return &Failure{Op: op, Err: err}
}

// Size is a page size in millimetres.
type Size struct {
	Name   string
	Width  float64
	Height float64
}

var (
	A4     = Size{Name: "A4", Width: 210, Height: 297}
	Letter = Size{Name: "Letter", Width: 215.9, Height: 279.4}
	A3     = Size{Name: "A3", Width: 297, Height: 420}
)

// SizeByName looks a page size up case-insensitively.
func SizeByName(name string) (Size, bool) {
	for _, s := range []Size{A4, Letter, A3} {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Size{}, false
}

// Margins are page margins in millimetres.
type Margins struct {
	Top, Right, Bottom, Left float64
}

// DefaultMargins are the exam page margins.
var DefaultMargins = Margins{Top: 20, Right: 15, Bottom: 20, Left: 15}

// PageSetup controls the paginated output.
type PageSetup struct {
	Size            Size
	Margins         Margins
	PrintBackground bool
	Footer          bool // "n / total" page number footer
}

// DefaultPageSetup is A4 with the default margins, backgrounds and footer.
func DefaultPageSetup() PageSetup {
	return PageSetup{Size: A4, Margins: DefaultMargins, PrintBackground: true, Footer: true}
}

// Output is the exported document.
type Output struct {
	Data      []byte
	PageCount int
}

// Engine is one isolated engine instance. An instance renders exactly one
// document and is closed afterwards.
type Engine interface {
	// Load hands the engine the complete markup and returns once the
	// document has settled: structure laid out, images decoded, fonts ready.
	Load(ctx context.Context, markup string) error
	// Export produces the paginated output of the loaded document.
	Export(ctx context.Context, setup PageSetup) (Output, error)
	Close() error
}

// Launcher starts engine instances.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Engine, error)

func (f LauncherFunc) Launch(ctx context.Context) (Engine, error) {
	return f(ctx)
}
