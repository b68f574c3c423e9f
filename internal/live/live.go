// Package live renders exam content into interactive mount points.
package live

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"sync"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/document"
	"github.com/ziadkadry99/examrender/internal/engine"
	"github.com/ziadkadry99/examrender/internal/texmath"
)

// ErrSuperseded is returned by View.Show when a later Show replaced the
// request before it could be mounted.
var ErrSuperseded = errors.New("live: superseded by a newer request")

// Mount is a target container whose contents can be replaced.
type Mount interface {
	Replace(html string) error
}

// Buffer is an in-memory Mount.
type Buffer struct {
	mu     sync.Mutex
	html   string
	writes int
}

func (b *Buffer) Replace(html string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.html = html
	b.writes++
	return nil
}

// HTML returns the current contents.
func (b *Buffer) HTML() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.html
}

// Writes counts Replace calls.
func (b *Buffer) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Renderer runs the interactive pipeline: the math engine comes from a
// shared Loader and images resolve to URLs.
type Renderer struct {
	Loader *texmath.Loader
	Assets assets.Resolver
	Logger *slog.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(loader *texmath.Loader, resolver assets.Resolver, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{Loader: loader, Assets: resolver, Logger: logger}
}

// Render returns the mount markup for content. If the math engine cannot be
// loaded, the escaped content is returned together with an engine failure.
func (r *Renderer) Render(ctx context.Context, content string) (string, error) {
	compiler, err := r.Loader.Get(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.Logger.Error("math engine unavailable, showing raw content", "error", err)
		return html.EscapeString(content), engine.Fail(engine.OpLoad, err)
	}

	doc, err := document.New(compiler, r.Assets, r.Logger).Assemble(content)
	if err != nil {
		r.Logger.Error("assembling content, showing raw content", "error", err)
		return html.EscapeString(content), engine.Fail(engine.OpLoad, err)
	}
	return doc.HTML, nil
}

// Mount renders content and replaces target's contents. An engine failure
// still replaces the contents, with the raw text, and is returned.
func (r *Renderer) Mount(ctx context.Context, content string, target Mount) error {
	out, err := r.Render(ctx, content)
	if err != nil && !errors.Is(err, engine.ErrEngineFailure) {
		return err
	}
	if rerr := target.Replace(out); rerr != nil {
		return rerr
	}
	return err
}

// View binds a Renderer to one mount point. Overlapping Show calls resolve
// last-write-wins.
type View struct {
	renderer *Renderer
	target   Mount

	mu  sync.Mutex
	gen uint64
}

// NewView creates a View.
func NewView(r *Renderer, target Mount) *View {
	return &View{renderer: r, target: target}
}

// Show renders content into the view. If another Show started after this
// one by the time rendering finishes, the mount is left alone and
// ErrSuperseded is returned.
func (v *View) Show(ctx context.Context, content string) error {
	v.mu.Lock()
	v.gen++
	mine := v.gen
	v.mu.Unlock()

	out, err := v.renderer.Render(ctx, content)

	v.mu.Lock()
	defer v.mu.Unlock()
	if mine != v.gen {
		return ErrSuperseded
	}
	if err != nil && !errors.Is(err, engine.ErrEngineFailure) {
		return err
	}
	if rerr := v.target.Replace(out); rerr != nil {
		return rerr
	}
	return err
}
