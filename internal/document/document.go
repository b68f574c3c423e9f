// Package document assembles exam text, compiled math and resolved images
// into one ordered structure and lowers it to HTML.
package document

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	xhtml "golang.org/x/net/html"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/span"
	"github.com/ziadkadry99/examrender/internal/texmath"
)

// NodeKind identifies the content of a Node.
type NodeKind int

const (
	NodeText NodeKind = iota
	NodeMath
	NodeImage
)

// Node is one element of a rendered document in source order.
type Node struct {
	Kind    NodeKind
	Text    string // literal text, or the source text of a span
	Segment span.Segment
	Math    texmath.Fragment
	Image   assets.Asset
}

// Document is the intermediate form shared by the static and interactive
// renderers.
type Document struct {
	Source string
	Nodes  []Node
	HTML   string
}

// Text concatenates the source text of all nodes. It always equals Source.
func (d *Document) Text() string {
	var b strings.Builder
	b.Grow(len(d.Source))
	for _, n := range d.Nodes {
		b.WriteString(n.Text)
	}
	return b.String()
}

// Fragments returns the math and image nodes.
func (d *Document) Fragments() []Node {
	var out []Node
	for _, n := range d.Nodes {
		if n.Kind != NodeText {
			out = append(out, n)
		}
	}
	return out
}

// Assembler runs scan, compile, resolve and structural lowering for one
// document at a time. It holds no per-document state.
type Assembler struct {
	Math      texmath.Compiler
	Assets    assets.Resolver
	Logger    *slog.Logger
	Highlight bool
}

// New creates an Assembler with code highlighting enabled.
func New(math texmath.Compiler, resolver assets.Resolver, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{Math: math, Assets: resolver, Logger: logger, Highlight: true}
}

// Assemble builds the Document for source.
func (a *Assembler) Assemble(source string) (*Document, error) {
	segs := span.Scan(source)
	spans := span.Spans(segs)
	m := pickMarks(source)

	// First pass: learn which placeholders land where markup is not rendered
	// as text. Those spans stay literal rather than be compiled.
	literal := a.literalSpans(a.markdown(m, nil), m, segs, source)

	doc := &Document{Source: source}
	fragHTML := make([]string, 0, len(spans))
	var residual strings.Builder
	residual.Grow(len(source))

	for _, seg := range segs {
		src := seg.Source(source)
		if seg.Kind == span.Literal || literal[seg.Start] {
			doc.Nodes = append(doc.Nodes, Node{Kind: NodeText, Text: src, Segment: seg})
			residual.WriteString(src)
			continue
		}

		node := Node{Text: src, Segment: seg}
		var out string
		switch seg.Kind {
		case span.Math:
			mode := texmath.Inline
			if seg.Display {
				mode = texmath.Display
			}
			node.Kind = NodeMath
			node.Math = a.Math.Compile(seg.Raw, mode)
			out = mathHTML(node.Math, src)
		case span.Image:
			node.Kind = NodeImage
			node.Image = a.Assets.Resolve(seg.Path, seg.Alt)
			out = imageHTML(node.Image)
		}
		doc.Nodes = append(doc.Nodes, node)
		residual.WriteString(m.placeholder(len(fragHTML)))
		fragHTML = append(fragHTML, out)
	}

	var buf bytes.Buffer
	if err := a.markdown(m, fragHTML).Convert([]byte(residual.String()), &buf); err != nil {
		return nil, fmt.Errorf("lowering markup: %w", err)
	}
	doc.HTML = substituteRemaining(buf.String(), m, fragHTML)

	a.Logger.Debug("document assembled", "nodes", len(doc.Nodes), "fragments", len(fragHTML))
	return doc, nil
}

func (a *Assembler) markdown(m marks, fragHTML []string) goldmark.Markdown {
	exts := []goldmark.Extender{
		extension.GFM,
		&fragmentExtension{marks: m, html: fragHTML},
	}
	if a.Highlight {
		exts = append(exts, highlighting.NewHighlighting(
			highlighting.WithStyle("github"),
		))
	}
	return goldmark.New(
		goldmark.WithExtensions(exts...),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
}

// literalSpans parses the text with every span replaced by a placeholder and
// reports, by segment start, the spans whose placeholder sits in code, in a
// link or image destination or title, in a reference definition, in image
// alt text, or inside an HTML tag.
func (a *Assembler) literalSpans(md goldmark.Markdown, m marks, segs []span.Segment, source string) map[int]bool {
	var residual strings.Builder
	type at struct{ start, stop, seg int }
	var places []at
	for _, seg := range segs {
		if seg.Kind == span.Literal {
			residual.WriteString(seg.Source(source))
			continue
		}
		p := m.placeholder(len(places))
		places = append(places, at{residual.Len(), residual.Len() + len(p), seg.Start})
		residual.WriteString(p)
	}
	if len(places) == 0 {
		return nil
	}

	literal := make(map[int]bool)
	byIndex := func(b []byte) {
		for _, i := range m.indices(b) {
			if i >= 0 && i < len(places) {
				literal[places[i].seg] = true
			}
		}
	}

	src := []byte(residual.String())
	pc := parser.NewContext()
	root := md.Parser().Parse(text.NewReader(src), parser.WithContext(pc))
	var ranges [][2]int
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				ranges = append(ranges, [2]int{seg.Start, seg.Stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			ranges = append(ranges, textRanges(n)...)
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			byIndex(n.Destination)
			byIndex(n.Title)
		case *ast.Image:
			byIndex(n.Destination)
			byIndex(n.Title)
			ranges = append(ranges, textRanges(n)...)
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			byIndex(n.URL(src))
		case *ast.RawHTML:
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				ranges = append(ranges, [2]int{seg.Start, seg.Stop})
			}
		case *ast.HTMLBlock:
			ranges = append(ranges, htmlTagRanges(n, src)...)
		}
		return ast.WalkContinue, nil
	})
	for _, ref := range pc.References() {
		byIndex(ref.Label())
		byIndex(ref.Destination())
		byIndex(ref.Title())
	}

	for _, p := range places {
		for _, r := range ranges {
			if p.start < r[1] && r[0] < p.stop {
				literal[p.seg] = true
				break
			}
		}
	}
	return literal
}

// textRanges returns the source ranges of the text nodes below n.
func textRanges(n ast.Node) [][2]int {
	var out [][2]int
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			out = append(out, [2]int{t.Segment.Start, t.Segment.Stop})
		}
		return ast.WalkContinue, nil
	})
	return out
}

// htmlTagRanges returns the source ranges of the tags, comments and
// declarations in an HTML block. Text between tags is not included.
func htmlTagRanges(n *ast.HTMLBlock, src []byte) [][2]int {
	lines := n.Lines()
	if lines.Len() == 0 {
		return nil
	}
	start, stop := lines.At(0).Start, lines.At(lines.Len()-1).Stop
	if n.HasClosure() {
		stop = n.ClosureLine.Stop
	}

	var out [][2]int
	z := xhtml.NewTokenizer(bytes.NewReader(src[start:stop]))
	off := start
	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			return out
		}
		size := len(z.Raw())
		if tt != xhtml.TextToken {
			out = append(out, [2]int{off, off + size})
		}
		off += size
	}
}

// substituteRemaining replaces placeholders the inline parser never saw,
// such as those inside raw HTML blocks.
func substituteRemaining(out string, m marks, fragHTML []string) string {
	if !strings.Contains(out, m.open) {
		return out
	}
	pairs := make([]string, 0, 2*len(fragHTML))
	for i, h := range fragHTML {
		pairs = append(pairs, m.placeholder(i), h)
	}
	return strings.NewReplacer(pairs...).Replace(out)
}

func mathHTML(f texmath.Fragment, src string) string {
	if f.Fallback {
		return `<span class="math-fallback">` + html.EscapeString(src) + `</span>`
	}
	class := "math math-inline"
	if f.Mode == texmath.Display {
		class = "math math-display"
	}
	return `<span class="` + class + `">` + f.Markup + `</span>`
}

func imageHTML(a assets.Asset) string {
	return `<img class="exam-image" src="` + html.EscapeString(a.Src()) + `" alt="` + html.EscapeString(a.Alt) + `" />`
}
