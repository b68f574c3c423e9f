// Package texmath typesets TeX expressions into MathML fragments.
package texmath

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
)

// ErrMalformedMath is reported when an expression cannot be typeset.
var ErrMalformedMath = errors.New("texmath: malformed math")

// Mode selects inline or block (display) typesetting.
type Mode int

const (
	Inline Mode = iota
	Display
)

func (m Mode) String() string {
	if m == Display {
		return "display"
	}
	return "inline"
}

// Fragment is the result of compiling one expression. When Fallback is set,
// Markup holds the escaped raw text instead of MathML.
type Fragment struct {
	Raw      string
	Mode     Mode
	Markup   string
	Fallback bool
}

// Compiler turns a TeX expression into a Fragment. Implementations never
// fail: malformed input yields a fallback fragment.
type Compiler interface {
	Compile(raw string, mode Mode) Fragment
}

// Backend converts TeX into MathML markup.
type Backend interface {
	Convert(tex string, mode Mode) (string, error)
}

// TreebloodBackend converts TeX through goldmark's treeblood math extension.
type TreebloodBackend struct {
	md goldmark.Markdown
}

// NewTreebloodBackend creates the default backend.
func NewTreebloodBackend() *TreebloodBackend {
	return &TreebloodBackend{
		md: goldmark.New(goldmark.WithExtensions(treeblood.MathML())),
	}
}

// Convert wraps tex in math delimiters, renders it and extracts the
// resulting <math> element.
func (b *TreebloodBackend) Convert(tex string, mode Mode) (string, error) {
	delim := "$"
	if mode == Display {
		delim = "$$"
	}
	var buf bytes.Buffer
	if err := b.md.Convert([]byte(delim+tex+delim), &buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMath, err)
	}
	out := buf.String()
	start := strings.Index(out, "<math")
	end := strings.LastIndex(out, "</math>")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no MathML produced for %q", ErrMalformedMath, tex)
	}
	mml := out[start : end+len("</math>")]
	if strings.Contains(mml, "<merror") {
		return "", fmt.Errorf("%w: backend reported an error for %q", ErrMalformedMath, tex)
	}
	if mode == Display {
		mml = markDisplay(mml)
	}
	return mml, nil
}

// markDisplay adds display="block" to the root element when missing.
func markDisplay(mml string) string {
	tagEnd := strings.IndexByte(mml, '>')
	if tagEnd < 0 || strings.Contains(mml[:tagEnd], "display=") {
		return mml
	}
	return `<math display="block"` + mml[len("<math"):]
}

// Typesetter is the synchronous Compiler. It serializes backend calls, so a
// single Typesetter may be shared between goroutines.
type Typesetter struct {
	mu      sync.Mutex
	backend Backend
	logger  *slog.Logger
}

// Option configures a Typesetter.
type Option func(*Typesetter)

// WithBackend replaces the TeX backend.
func WithBackend(b Backend) Option {
	return func(t *Typesetter) {
		t.backend = b
	}
}

// WithLogger sets the logger used for compile diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Typesetter) {
		t.logger = l
	}
}

// New creates a Typesetter backed by treeblood unless overridden.
func New(opts ...Option) *Typesetter {
	t := &Typesetter{}
	for _, opt := range opts {
		opt(t)
	}
	if t.backend == nil {
		t.backend = NewTreebloodBackend()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Compile typesets raw. Validation errors, backend errors and backend panics
// are logged and produce a fallback fragment.
func (t *Typesetter) Compile(raw string, mode Mode) (frag Fragment) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("math compile panicked", "raw", raw, "mode", mode.String(), "panic", r)
			frag = Fallback(raw, mode)
		}
	}()

	if err := Validate(raw); err != nil {
		t.logger.Warn("math compile failed", "raw", raw, "mode", mode.String(), "error", err)
		return Fallback(raw, mode)
	}

	t.mu.Lock()
	markup, err := t.backend.Convert(normalize(raw), mode)
	t.mu.Unlock()
	if err != nil {
		t.logger.Warn("math compile failed", "raw", raw, "mode", mode.String(), "error", err)
		return Fallback(raw, mode)
	}
	return Fragment{Raw: raw, Mode: mode, Markup: markup}
}

// Fallback returns the literal fragment used when raw cannot be typeset.
func Fallback(raw string, mode Mode) Fragment {
	return Fragment{Raw: raw, Mode: mode, Markup: html.EscapeString(raw), Fallback: true}
}

// normalize folds line breaks into spaces; TeX treats both as whitespace and
// the delimiter parser does not accept multi-line inline input.
func normalize(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", " ")
	raw = strings.ReplaceAll(raw, "\n", " ")
	return strings.TrimSpace(raw)
}
