// Package native is a pure-Go rendering engine. It lays out the assembled
// document markup, including MathML, directly onto PDF pages.
package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/ziadkadry99/examrender/internal/engine"
)

// Launcher creates native engine instances.
type Launcher struct {
	FontPath string // optional UTF-8 TrueType font
	Logger   *slog.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(fontPath string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{FontPath: fontPath, Logger: logger}
}

func (l *Launcher) Launch(ctx context.Context) (engine.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, engine.Fail(engine.OpLaunch, err)
	}
	return &Engine{fontPath: l.FontPath, logger: l.Logger}, nil
}

// Engine renders one document.
type Engine struct {
	fontPath string
	logger   *slog.Logger

	doc      *html.Node
	pictures map[*html.Node]*picture
	font     []byte
	closed   bool
}

// Load parses markup, decodes every embedded image and reads the font. The
// document is settled when Load returns.
func (e *Engine) Load(ctx context.Context, markup string) error {
	if e.closed {
		return engine.Fail(engine.OpLoad, errors.New("engine closed"))
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return engine.Fail(engine.OpLoad, err)
	}

	pictures := make(map[*html.Node]*picture)
	var settleErr error
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if settleErr != nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "img" {
			if err := ctx.Err(); err != nil {
				settleErr = err
				return
			}
			pic, err := decodePicture(attr(n, "src"))
			if err != nil {
				e.logger.Debug("image shown as text", "alt", attr(n, "alt"), "reason", err)
			} else {
				pictures[n] = pic
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if settleErr != nil {
		return engine.Fail(engine.OpSettle, settleErr)
	}

	if e.fontPath != "" && e.font == nil {
		font, err := os.ReadFile(e.fontPath)
		if err != nil {
			return engine.Fail(engine.OpLoad, fmt.Errorf("reading font: %w", err))
		}
		e.font = font
	}
	if err := ctx.Err(); err != nil {
		return engine.Fail(engine.OpSettle, err)
	}

	e.doc = doc
	e.pictures = pictures
	e.logger.Debug("document settled", "images", len(pictures))
	return nil
}

// Export lays out the loaded document.
func (e *Engine) Export(ctx context.Context, setup engine.PageSetup) (engine.Output, error) {
	if e.doc == nil {
		return engine.Output{}, engine.Fail(engine.OpExport, errors.New("no document loaded"))
	}
	r := newRenderer(ctx, setup, e.font, e.pictures)
	if err := r.render(e.doc); err != nil {
		return engine.Output{}, engine.Fail(engine.OpExport, err)
	}

	pages := r.pdf.PageCount()
	var buf bytes.Buffer
	if err := r.pdf.Output(&buf); err != nil {
		return engine.Output{}, engine.Fail(engine.OpExport, err)
	}
	e.logger.Debug("pdf laid out", "bytes", buf.Len(), "pages", pages)
	return engine.Output{Data: buf.Bytes(), PageCount: pages}, nil
}

func (e *Engine) Close() error {
	e.closed = true
	e.doc = nil
	e.pictures = nil
	return nil
}
