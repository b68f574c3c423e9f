package document

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// marks delimit span placeholders. Both are private-use code points absent
// from the document, so no source text reads as a placeholder and no
// markdown parser treats them as syntax.
type marks struct {
	open, close string
}

func pickMarks(source string) marks {
	var found []rune
	for r := rune(0xE000); r <= 0xF8FF && len(found) < 2; r++ {
		if !strings.ContainsRune(source, r) {
			found = append(found, r)
		}
	}
	if len(found) < 2 {
		return marks{open: "\uE000", close: "\uE001"}
	}
	return marks{open: string(found[0]), close: string(found[1])}
}

func (m marks) placeholder(i int) string {
	return m.open + strconv.Itoa(i) + m.close
}

// indices lists the placeholder indices that occur in b.
func (m marks) indices(b []byte) []int {
	var out []int
	for {
		i := bytes.Index(b, []byte(m.open))
		if i < 0 {
			return out
		}
		b = b[i+len(m.open):]
		end := bytes.Index(b, []byte(m.close))
		if end < 0 {
			return out
		}
		if idx, err := strconv.Atoi(string(b[:end])); err == nil {
			out = append(out, idx)
		}
		b = b[end+len(m.close):]
	}
}

// fragmentNode is an opaque inline leaf standing in for a compiled span.
type fragmentNode struct {
	ast.BaseInline
	Index int
}

var kindFragment = ast.NewNodeKind("Fragment")

func (n *fragmentNode) Kind() ast.NodeKind {
	return kindFragment
}

func (n *fragmentNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Index": strconv.Itoa(n.Index)}, nil)
}

type fragmentParser struct {
	marks marks
	count int
}

var _ parser.InlineParser = (*fragmentParser)(nil)

func (p *fragmentParser) Trigger() []byte {
	return []byte{p.marks.open[0]}
}

func (p *fragmentParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, []byte(p.marks.open)) {
		return nil
	}
	rest := line[len(p.marks.open):]
	end := bytes.Index(rest, []byte(p.marks.close))
	if end <= 0 {
		return nil
	}
	idx, err := strconv.Atoi(string(rest[:end]))
	if err != nil || idx < 0 || idx >= p.count {
		return nil
	}
	block.Advance(len(p.marks.open) + end + len(p.marks.close))
	return &fragmentNode{Index: idx}
}

type fragmentRenderer struct {
	html []string
}

var _ renderer.NodeRenderer = (*fragmentRenderer)(nil)

func (r *fragmentRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(kindFragment, func(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			_, _ = w.WriteString(r.html[node.(*fragmentNode).Index])
		}
		return ast.WalkSkipChildren, nil
	})
}

// fragmentExtension wires the placeholder parser and renderer for one
// document's fragment table.
type fragmentExtension struct {
	marks marks
	html  []string
}

func (e *fragmentExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(&fragmentParser{marks: e.marks, count: len(e.html)}, 50),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(&fragmentRenderer{html: e.html}, 50),
		),
	)
}
