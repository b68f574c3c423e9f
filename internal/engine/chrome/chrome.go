// Package chrome renders documents with a headless Chrome instance driven
// over the DevTools protocol.
package chrome

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ledongthuc/pdf"

	"github.com/ziadkadry99/examrender/internal/engine"
)

const (
	settleInterval = 50 * time.Millisecond

	settledJS = `document.readyState === "complete" &&
	Array.from(document.images).every(function (img) { return img.complete; }) &&
	(!document.fonts || document.fonts.status === "loaded")`

	footerTemplate = `<div style="font-size:9px;width:100%;text-align:center;color:#555;">` +
		`<span class="pageNumber"></span> / <span class="totalPages"></span></div>`
)

// Launcher starts one browser process per Launch call.
type Launcher struct {
	ExecPath string // empty uses the system Chrome lookup
	Logger   *slog.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(execPath string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{ExecPath: execPath, Logger: logger}
}

// Launch starts a fresh headless browser. The returned engine owns the
// process; Close terminates it.
func (l *Launcher) Launch(ctx context.Context) (engine.Engine, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	// The browser outlives the launch call, so it is not bound to ctx.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	e := &Engine{
		ctx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		logger: l.Logger,
	}
	// The first Run starts the process and ties it to browserCtx, so it must
	// not run on a derived context. ctx is honored by tearing the browser down.
	stop := context.AfterFunc(ctx, e.cancel)
	err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank"))
	stop()
	if err != nil {
		e.cancel()
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, engine.Fail(engine.OpLaunch, err)
	}
	l.Logger.Debug("browser launched")
	return e, nil
}

// Engine is one headless browser tab.
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// run executes actions in the browser, also stopping when ctx is done.
func (e *Engine) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(e.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

func (e *Engine) Load(ctx context.Context, markup string) error {
	err := e.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
	}))
	if err != nil {
		return engine.Fail(engine.OpLoad, err)
	}
	if err := e.settle(ctx); err != nil {
		return engine.Fail(engine.OpSettle, err)
	}
	return nil
}

// settle polls until the document, its images and its fonts are ready.
func (e *Engine) settle(ctx context.Context) error {
	ticker := time.NewTicker(settleInterval)
	defer ticker.Stop()
	for {
		var ready bool
		if err := e.run(ctx, chromedp.Evaluate(settledJS, &ready)); err != nil {
			return err
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) Export(ctx context.Context, setup engine.PageSetup) (engine.Output, error) {
	var data []byte
	err := e.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.PrintToPDF().
			WithPrintBackground(setup.PrintBackground).
			WithPaperWidth(inches(setup.Size.Width)).
			WithPaperHeight(inches(setup.Size.Height)).
			WithMarginTop(inches(setup.Margins.Top)).
			WithMarginRight(inches(setup.Margins.Right)).
			WithMarginBottom(inches(setup.Margins.Bottom)).
			WithMarginLeft(inches(setup.Margins.Left)).
			WithPreferCSSPageSize(false)
		if setup.Footer {
			params = params.
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate("<div></div>").
				WithFooterTemplate(footerTemplate)
		}
		var err error
		data, _, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return engine.Output{}, engine.Fail(engine.OpExport, err)
	}

	pages, err := PageCount(data)
	if err != nil {
		return engine.Output{}, engine.Fail(engine.OpExport, err)
	}
	e.logger.Debug("pdf printed", "bytes", len(data), "pages", pages)
	return engine.Output{Data: data, PageCount: pages}, nil
}

func (e *Engine) Close() error {
	e.cancel()
	return nil
}

// PageCount reads the number of pages of a PDF document.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("empty pdf")
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("reading pdf: %w", err)
	}
	return r.NumPage(), nil
}

func inches(mm float64) float64 {
	return mm / 25.4
}
