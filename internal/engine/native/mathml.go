package native

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// mathBox is a laid out MathML node. Offsets are in millimetres relative to
// the parent's baseline origin; y grows upwards.
type mathBox struct {
	width   float64
	ascent  float64
	descent float64
	runs    []run
	rules   []rule
	kids    []*mathBox
	x, y    float64
	hidden  bool
	fence   bool
	node    *html.Node
}

// rule is a line segment relative to its box origin, y up.
type rule struct {
	x1, y1, x2, y2 float64
	width          float64
}

func (b *mathBox) height() float64 {
	return b.ascent + b.descent
}

type mathLayout struct {
	fonts *fonts
}

// measure lays out n at font size size (points).
func (m *mathLayout) measure(n *html.Node, size float64) *mathBox {
	if n.Type == html.TextNode {
		text := collapse(n.Data)
		if text == "" {
			return nil
		}
		return m.text(text, m.fonts.math(size))
	}
	if n.Type != html.ElementNode {
		return nil
	}

	em := size * ptToMM
	switch n.Data {
	case "annotation", "annotation-xml", "none", "mprescripts":
		return nil

	case "semantics":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if b := m.measure(c, size); b != nil {
				return b
			}
		}
		return nil

	case "mi":
		text := collapse(textOf(n))
		fc := m.fonts.math(size)
		if runeCount(text) == 1 && attr(n, "mathvariant") != "normal" {
			fc = fc.italic()
		}
		if attr(n, "mathvariant") == "bold" {
			fc = fc.bold()
		}
		b := m.text(text, fc)
		b.node = n
		return b

	case "mn":
		b := m.text(collapse(textOf(n)), m.fonts.math(size))
		b.node = n
		return b

	case "mtext", "ms":
		b := m.text(textOf(n), m.fonts.math(size))
		b.node = n
		return b

	case "mo":
		return m.operator(n, size)

	case "mspace":
		b := &mathBox{node: n, width: length(attr(n, "width"), em)}
		b.ascent = length(attr(n, "height"), em)
		b.descent = length(attr(n, "depth"), em)
		return b

	case "mfrac":
		return m.fraction(n, size)

	case "msup", "msub", "msubsup":
		return m.scripts(n, size)

	case "munder", "mover", "munderover":
		return m.limits(n, size)

	case "msqrt":
		return m.radical(n, m.row(children(n), size), nil, size)

	case "mroot":
		kids := children(n)
		if len(kids) < 2 {
			return m.radical(n, m.row(kids, size), nil, size)
		}
		return m.radical(n, m.measure(kids[0], size), m.measure(kids[1], size*0.6), size)

	case "mtable":
		return m.table(n, size)

	case "mphantom":
		b := m.row(children(n), size)
		b.hidden = true
		return b

	case "mstyle":
		if attr(n, "displaystyle") == "false" || attr(n, "scriptlevel") == "1" {
			return m.row(children(n), size*0.8)
		}
		return m.row(children(n), size)

	default:
		// math, mrow, mpadded, menclose, mfenced and anything unknown lay
		// out as a horizontal row.
		b := m.row(children(n), size)
		b.node = n
		return b
	}
}

func (m *mathLayout) text(s string, fc face) *mathBox {
	rs := m.fonts.runs(s, fc)
	return &mathBox{
		runs:    rs,
		width:   runsWidth(rs),
		ascent:  fc.mm() * 0.72,
		descent: fc.mm() * 0.22,
	}
}

// largeOps are drawn bigger in display style.
var largeOps = map[string]bool{"∑": true, "∏": true, "∫": true, "∮": true, "⋃": true, "⋂": true}

// spacedOps get medium space on both sides.
var spacedOps = map[string]bool{
	"+": true, "−": true, "-": true, "=": true, "<": true, ">": true,
	"×": true, "÷": true, "±": true, "≤": true, "≥": true, "≠": true,
	"≈": true, "≡": true, "→": true, "⇒": true, "⇔": true, "∈": true,
	"∉": true, "⊂": true, "⊆": true, "∪": true, "∩": true, "·": true,
	"⋅": true, "∼": true, "≅": true, "∝": true, ":=": true, "←": true,
}

func (m *mathLayout) operator(n *html.Node, size float64) *mathBox {
	text := collapse(textOf(n))
	if text == "" {
		return nil
	}
	if text == "-" {
		text = "−"
	}
	fc := m.fonts.math(size)
	if largeOps[text] && attr(n, "largeop") != "false" {
		fc = fc.scaled(1.4)
	}
	b := m.text(text, fc)
	b.node = n
	b.fence = attr(n, "fence") == "true" || attr(n, "stretchy") == "true" || isFence(text)

	if spacedOps[text] && attr(n, "form") != "prefix" {
		pad := fc.mm() * 0.22
		b.width += 2 * pad
		b.kids = []*mathBox{{runs: b.runs, width: runsWidth(b.runs), ascent: b.ascent, descent: b.descent, x: pad}}
		b.runs = nil
	}
	return b
}

func isFence(s string) bool {
	switch s {
	case "(", ")", "[", "]", "{", "}", "|", "‖", "⟨", "⟩", "〈", "〉":
		return true
	}
	return false
}

// row stacks children horizontally on a shared baseline, growing fences to
// the height of their neighbours.
func (m *mathLayout) row(nodes []*html.Node, size float64) *mathBox {
	b := &mathBox{}
	var kids []*mathBox
	var content float64
	for _, c := range nodes {
		k := m.measure(c, size)
		if k == nil {
			continue
		}
		kids = append(kids, k)
		if !k.fence && k.height() > content {
			content = k.height()
		}
	}

	base := size * ptToMM
	for i, k := range kids {
		if !k.fence || content <= base*1.2 || k.node == nil {
			continue
		}
		grow := content / base
		grown := m.text(collapse(textOf(k.node)), m.fonts.math(size*grow))
		grown.node = k.node
		grown.fence = true
		// center on the math axis
		axis := base * 0.25
		mid := (grown.ascent - grown.descent) / 2
		grown.y = axis - mid
		kids[i] = grown
	}

	var x float64
	for _, k := range kids {
		k.x = x
		x += k.width
		if a := k.ascent + k.y; a > b.ascent {
			b.ascent = a
		}
		if d := k.descent - k.y; d > b.descent {
			b.descent = d
		}
	}
	b.width = x
	b.kids = kids
	return b
}

func (m *mathLayout) fraction(n *html.Node, size float64) *mathBox {
	kids := children(n)
	if len(kids) < 2 {
		return m.row(kids, size)
	}
	inner := size * 0.85
	num := m.measure(kids[0], inner)
	den := m.measure(kids[1], inner)
	if num == nil {
		num = &mathBox{}
	}
	if den == nil {
		den = &mathBox{}
	}

	em := size * ptToMM
	pad := em * 0.15
	gap := em * 0.12
	axis := em * 0.25
	thick := 0.25
	if lt := attr(n, "linethickness"); lt == "0" || lt == "0px" || lt == "0em" {
		thick = 0
	}

	w := num.width
	if den.width > w {
		w = den.width
	}
	b := &mathBox{node: n, width: w + 2*pad}
	num.x = (b.width - num.width) / 2
	den.x = (b.width - den.width) / 2
	num.y = axis + thick/2 + gap + num.descent
	den.y = axis - thick/2 - gap - den.ascent
	b.ascent = num.y + num.ascent
	b.descent = -den.y + den.descent
	b.kids = []*mathBox{num, den}
	if thick > 0 {
		b.rules = []rule{{x1: pad / 2, y1: axis, x2: b.width - pad/2, y2: axis, width: thick}}
	}
	return b
}

func (m *mathLayout) scripts(n *html.Node, size float64) *mathBox {
	kids := children(n)
	if len(kids) < 2 {
		return m.row(kids, size)
	}
	base := m.measure(kids[0], size)
	if base == nil {
		base = &mathBox{}
	}
	em := size * ptToMM
	script := size * 0.7

	var sub, sup *mathBox
	switch n.Data {
	case "msup":
		sup = m.measure(kids[1], script)
	case "msub":
		sub = m.measure(kids[1], script)
	default:
		sub = m.measure(kids[1], script)
		if len(kids) > 2 {
			sup = m.measure(kids[2], script)
		}
	}

	b := &mathBox{node: n, kids: []*mathBox{base}, ascent: base.ascent, descent: base.descent}
	shift := base.width + em*0.05
	var w float64
	if sup != nil {
		up := base.ascent * 0.55
		if up < em*0.35 {
			up = em * 0.35
		}
		sup.x, sup.y = shift, up
		b.kids = append(b.kids, sup)
		if a := sup.y + sup.ascent; a > b.ascent {
			b.ascent = a
		}
		w = sup.width
	}
	if sub != nil {
		down := em * 0.22
		if base.descent > down {
			down = base.descent
		}
		sub.x, sub.y = shift, -down
		b.kids = append(b.kids, sub)
		if d := down + sub.descent; d > b.descent {
			b.descent = d
		}
		if sub.width > w {
			w = sub.width
		}
	}
	b.width = shift + w + em*0.05
	return b
}

func (m *mathLayout) limits(n *html.Node, size float64) *mathBox {
	kids := children(n)
	if len(kids) < 2 {
		return m.row(kids, size)
	}
	base := m.measure(kids[0], size)
	if base == nil {
		base = &mathBox{}
	}
	em := size * ptToMM
	script := size * 0.7
	accent := attr(n, "accent") == "true"
	if accent {
		script = size
	}

	var under, over *mathBox
	switch n.Data {
	case "munder":
		under = m.measure(kids[1], script)
	case "mover":
		over = m.measure(kids[1], script)
	default:
		under = m.measure(kids[1], script)
		if len(kids) > 2 {
			over = m.measure(kids[2], script)
		}
	}

	w := base.width
	for _, k := range []*mathBox{under, over} {
		if k != nil && k.width > w {
			w = k.width
		}
	}
	gap := em * 0.1
	if accent {
		gap = -em * 0.2
	}
	b := &mathBox{node: n, width: w, ascent: base.ascent, descent: base.descent}
	base.x = (w - base.width) / 2
	b.kids = []*mathBox{base}
	if over != nil {
		over.x = (w - over.width) / 2
		over.y = base.ascent + gap + over.descent
		b.ascent = over.y + over.ascent
		b.kids = append(b.kids, over)
	}
	if under != nil {
		under.x = (w - under.width) / 2
		under.y = -(base.descent + em*0.1 + under.ascent)
		b.descent = -under.y + under.descent
		b.kids = append(b.kids, under)
	}
	return b
}

func (m *mathLayout) radical(n *html.Node, body, index *mathBox, size float64) *mathBox {
	if body == nil {
		body = &mathBox{}
	}
	em := size * ptToMM
	sign := em * 0.55
	gap := em * 0.12
	top := body.ascent + gap
	bottom := body.descent

	var lead float64
	b := &mathBox{node: n}
	if index != nil {
		if index.width > sign*0.5 {
			lead = index.width - sign*0.5
		}
		index.x = 0
		index.y = top * 0.45
		b.kids = append(b.kids, index)
	}

	body.x = lead + sign + gap
	b.kids = append(b.kids, body)
	b.width = body.x + body.width + gap
	b.ascent = top + 0.3
	if index != nil && index.y+index.ascent > b.ascent {
		b.ascent = index.y + index.ascent
	}
	b.descent = bottom

	lw := 0.25
	b.rules = []rule{
		{x1: lead, y1: top * 0.4, x2: lead + sign*0.3, y2: top * 0.5, width: lw},
		{x1: lead + sign*0.3, y1: top * 0.5, x2: lead + sign*0.6, y2: -bottom, width: lw * 1.6},
		{x1: lead + sign*0.6, y1: -bottom, x2: lead + sign, y2: top, width: lw},
		{x1: lead + sign, y1: top, x2: b.width, y2: top, width: lw},
	}
	return b
}

func (m *mathLayout) table(n *html.Node, size float64) *mathBox {
	var rows [][]*mathBox
	var cols []float64
	for _, tr := range children(n) {
		if tr.Data != "mtr" && tr.Data != "mlabeledtr" {
			continue
		}
		var row []*mathBox
		for i, td := range children(tr) {
			cell := m.row(children(td), size)
			row = append(row, cell)
			if i >= len(cols) {
				cols = append(cols, 0)
			}
			if cell.width > cols[i] {
				cols[i] = cell.width
			}
		}
		rows = append(rows, row)
	}

	em := size * ptToMM
	colGap := em * 0.8
	rowGap := em * 0.3

	b := &mathBox{node: n}
	var y, total float64
	type placed struct {
		cells []*mathBox
		asc   float64
		desc  float64
	}
	var laid []placed
	for _, row := range rows {
		p := placed{cells: row, asc: em * 0.72, desc: em * 0.22}
		for _, c := range row {
			if c.ascent > p.asc {
				p.asc = c.ascent
			}
			if c.descent > p.desc {
				p.desc = c.descent
			}
		}
		laid = append(laid, p)
		total += p.asc + p.desc
	}
	if len(laid) > 1 {
		total += rowGap * float64(len(laid)-1)
	}

	// First row top sits at half the height above the axis.
	axis := em * 0.25
	y = axis + total/2
	for _, p := range laid {
		baseline := y - p.asc
		var x float64
		for i, c := range p.cells {
			c.x = x + (cols[i]-c.width)/2
			c.y = baseline
			b.kids = append(b.kids, c)
			x += cols[i] + colGap
		}
		y = baseline - p.desc - rowGap
	}

	for i, w := range cols {
		b.width += w
		if i > 0 {
			b.width += colGap
		}
	}
	b.ascent = axis + total/2
	b.descent = total/2 - axis
	return b
}

// draw paints b with its origin at x on the page baseline (page
// coordinates, y down).
func (m *mathLayout) draw(b *mathBox, x, baseline float64) {
	if b == nil || b.hidden {
		return
	}
	if len(b.runs) > 0 {
		m.fonts.draw(b.runs, x, baseline)
	}
	pdf := m.fonts.pdf
	for _, r := range b.rules {
		pdf.SetLineWidth(r.width)
		pdf.Line(x+r.x1, baseline-r.y1, x+r.x2, baseline-r.y2)
	}
	for _, k := range b.kids {
		m.draw(k, x+k.x, baseline-k.y)
	}
}

func children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		} else if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			out = append(out, c)
		}
	}
	return out
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// length parses a MathML length such as "0.2778em", "3pt" or "2px".
func length(v string, em float64) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	units := map[string]float64{
		"em": em,
		"ex": em * 0.45,
		"pt": ptToMM,
		"px": 25.4 / 96,
		"mm": 1,
		"cm": 10,
		"in": 25.4,
	}
	for suffix, k := range units {
		if strings.HasSuffix(v, suffix) {
			f, err := strconv.ParseFloat(strings.TrimSuffix(v, suffix), 64)
			if err != nil {
				return 0
			}
			return f * k
		}
	}
	switch v {
	case "thinmathspace":
		return em / 6
	case "mediummathspace":
		return em * 2 / 9
	case "thickmathspace":
		return em * 5 / 18
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f * em
}
