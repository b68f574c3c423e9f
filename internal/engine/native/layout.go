package native

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"golang.org/x/net/html"

	"github.com/ziadkadry99/examrender/internal/engine"
)

const (
	bodySize   = 11.0
	codeSize   = 9.0
	tableSize  = 10.0
	footerSize = 9.0
	listIndent = 7.0
	quoteInset = 6.0
	pxToMM     = 25.4 / 96
)

var headingSizes = map[string]float64{
	"h1": 20, "h2": 16, "h3": 13.5, "h4": 12, "h5": 11, "h6": 10,
}

type rgb struct{ r, g, b int }

var (
	black     = rgb{0, 0, 0}
	linkColor = rgb{20, 80, 160}
	quoteText = rgb{90, 90, 90}
)

// renderer walks the parsed document and paints it page by page. The
// cursor y is the top of the next line in page coordinates.
type renderer struct {
	ctx      context.Context
	pdf      *fpdf.Fpdf
	fonts    *fonts
	math     *mathLayout
	setup    engine.PageSetup
	pictures map[*html.Node]*picture
	names    map[*picture]string

	pageW, pageH float64
	margins      engine.Margins
	y            float64
	indent       float64
	color        rgb
	marker       []run
	err          error
}

func newRenderer(ctx context.Context, setup engine.PageSetup, font []byte, pictures map[*html.Node]*picture) *renderer {
	if setup.Size.Width <= 0 || setup.Size.Height <= 0 {
		setup.Size = engine.A4
	}
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: setup.Size.Width, Ht: setup.Size.Height},
	})
	m := setup.Margins
	pdf.SetMargins(m.Left, m.Top, m.Right)
	pdf.SetAutoPageBreak(false, m.Bottom)
	pdf.AliasNbPages("{nb}")
	pdf.SetCreator("examrender", true)

	r := &renderer{
		ctx:      ctx,
		pdf:      pdf,
		setup:    setup,
		pictures: pictures,
		names:    make(map[*picture]string),
		pageW:    setup.Size.Width,
		pageH:    setup.Size.Height,
		margins:  m,
		color:    black,
	}
	r.fonts = newFonts(pdf, font)
	r.math = &mathLayout{fonts: r.fonts}
	if setup.Footer {
		pdf.SetFooterFunc(r.footer)
	}
	return r
}

func (r *renderer) render(doc *html.Node) error {
	r.newPage()
	body := findElement(doc, "body")
	if body == nil {
		body = doc
	}
	r.blocks(body)
	if r.err != nil {
		return r.err
	}
	if r.pdf.Err() {
		return r.pdf.Error()
	}
	return nil
}

func (r *renderer) footer() {
	rs := r.fonts.runs(fmt.Sprintf("%d / {nb}", r.pdf.PageNo()), r.fonts.body(footerSize))
	r.pdf.SetTextColor(85, 85, 85)
	r.fonts.draw(rs, (r.pageW-runsWidth(rs))/2, r.pageH-r.margins.Bottom/2)
	r.setColor(r.color)
}

func (r *renderer) newPage() {
	r.pdf.AddPage()
	r.y = r.margins.Top
	r.setColor(r.color)
}

// ensure starts a new page when h does not fit below the cursor.
func (r *renderer) ensure(h float64) {
	if r.y+h > r.pageH-r.margins.Bottom && r.y > r.margins.Top+0.01 {
		r.newPage()
	}
}

func (r *renderer) space(h float64) {
	if r.y > r.margins.Top+0.01 {
		r.y += h
	}
}

func (r *renderer) left() float64 {
	return r.margins.Left + r.indent
}

func (r *renderer) contentWidth() float64 {
	return r.pageW - r.margins.Left - r.margins.Right - r.indent
}

func (r *renderer) setColor(c rgb) {
	r.pdf.SetTextColor(c.r, c.g, c.b)
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"body": true, "dd": true, "details": true, "div": true, "dl": true,
	"dt": true, "fieldset": true, "figcaption": true, "figure": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "head": true, "header": true,
	"hr": true, "html": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "style": true,
	"script": true, "summary": true, "table": true, "title": true,
	"ul": true, "template": true, "noscript": true,
}

func isBlock(n *html.Node) bool {
	return n.Type == html.ElementNode && blockElements[n.Data]
}

// blocks lays out the children of n, gathering runs of inline content into
// anonymous paragraphs.
func (r *renderer) blocks(n *html.Node) {
	var inline []*html.Node
	flush := func() {
		if len(inline) > 0 {
			r.paragraph(inline, r.fonts.body(bodySize))
			inline = nil
		}
	}
	for c := n.FirstChild; c != nil && r.err == nil; c = c.NextSibling {
		if err := r.ctx.Err(); err != nil {
			r.err = err
			return
		}
		switch {
		case isBlock(c):
			flush()
			r.block(c)
		case c.Type == html.TextNode, c.Type == html.ElementNode:
			inline = append(inline, c)
		}
	}
	flush()
}

func (r *renderer) block(n *html.Node) {
	switch n.Data {
	case "head", "style", "script", "title", "template", "noscript":
		return
	case "p", "dt", "dd", "figcaption", "summary":
		r.paragraph(childNodes(n), r.fonts.body(bodySize))
		r.space(2.5)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		r.space(3.5)
		r.paragraph(childNodes(n), r.fonts.body(headingSizes[n.Data]).bold())
		r.space(1.5)
	case "ul", "ol":
		r.list(n)
	case "pre":
		r.pre(n)
	case "blockquote":
		r.quote(n)
	case "hr":
		r.hr()
	case "table":
		r.table(n)
	default:
		r.blocks(n)
	}
}

type itemKind int

const (
	itemWord itemKind = iota
	itemSpace
	itemBreak
	itemBox
	itemDisplay
)

// item is one inline element of a paragraph.
type item struct {
	kind    itemKind
	runs    []run
	width   float64
	ascent  float64
	descent float64
	math    *mathBox
	pic     *picture
	link    bool
	text    string // source text of a word
	face    face
}

func (r *renderer) paragraph(nodes []*html.Node, fc face) {
	var items []item
	for _, n := range nodes {
		items = r.collect(n, fc, false, items)
	}
	if !hasContent(items) {
		return
	}
	for _, l := range breakLines(r.splitWide(items, r.contentWidth()), r.contentWidth()) {
		r.line(l, fc)
	}
}

func hasContent(items []item) bool {
	for _, it := range items {
		if it.kind != itemSpace {
			return true
		}
	}
	return false
}

func (r *renderer) collect(n *html.Node, fc face, link bool, out []item) []item {
	switch n.Type {
	case html.TextNode:
		return r.words(n.Data, fc, link, out)
	case html.ElementNode:
	default:
		return out
	}

	switch n.Data {
	case "script", "style", "head", "title":
		return out
	case "br":
		return append(out, item{kind: itemBreak})
	case "img":
		return r.image(n, fc, link, out)
	case "math":
		return r.formula(n, fc, out)
	case "b", "strong", "th":
		fc = fc.bold()
	case "i", "em", "cite", "var":
		fc = fc.italic()
	case "code", "kbd", "samp", "tt":
		fc = r.fonts.mono(fc.size * 0.95)
	case "a":
		link = attr(n, "href") != ""
	}
	if hasClass(n, "math-fallback") {
		fc = r.fonts.mono(fc.size * 0.95)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = r.collect(c, fc, link, out)
	}
	return out
}

func (r *renderer) words(s string, fc face, link bool, out []item) []item {
	if s == "" {
		return out
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return append(out, r.spaceItem(fc))
	}
	if first, _ := utf8.DecodeRuneInString(s); unicode.IsSpace(first) {
		out = append(out, r.spaceItem(fc))
	}
	for i, w := range fields {
		if i > 0 {
			out = append(out, r.spaceItem(fc))
		}
		rs := r.fonts.runs(w, fc)
		out = append(out, item{
			kind:    itemWord,
			runs:    rs,
			width:   runsWidth(rs),
			ascent:  fc.mm() * 0.75,
			descent: fc.mm() * 0.25,
			link:    link,
			text:    w,
			face:    fc,
		})
	}
	if last, _ := utf8.DecodeLastRuneInString(s); unicode.IsSpace(last) {
		out = append(out, r.spaceItem(fc))
	}
	return out
}

func (r *renderer) spaceItem(fc face) item {
	rs := r.fonts.runs(" ", fc)
	return item{kind: itemSpace, width: runsWidth(rs)}
}

func (r *renderer) formula(n *html.Node, fc face, out []item) []item {
	box := r.math.measure(n, fc.size)
	if box == nil {
		return out
	}
	kind := itemBox
	if attr(n, "display") == "block" {
		kind = itemDisplay
	}
	return append(out, item{kind: kind, width: box.width, ascent: box.ascent, descent: box.descent, math: box})
}

// image sizes a decoded picture to the content area. Pictures that were not
// decoded are shown by their alt text.
func (r *renderer) image(n *html.Node, fc face, link bool, out []item) []item {
	pic := r.pictures[n]
	if pic == nil {
		alt := attr(n, "alt")
		if alt == "" {
			alt = "image"
		}
		return r.words("["+alt+"]", fc.italic(), link, out)
	}
	w := float64(pic.width) * pxToMM
	h := float64(pic.height) * pxToMM
	if maxW := r.contentWidth(); w > maxW {
		h *= maxW / w
		w = maxW
	}
	if maxH := (r.pageH - r.margins.Top - r.margins.Bottom) * 0.6; h > maxH {
		w *= maxH / h
		h = maxH
	}
	return append(out, item{kind: itemBox, pic: pic, width: w, ascent: h})
}

// line is one laid out row of items.
type line struct {
	items   []item
	width   float64
	ascent  float64
	descent float64
	center  bool
	blank   bool
}

// splitWide cuts words wider than maxW into pieces that fit, joined by
// zero-width spaces so breakLines may wrap between them.
func (r *renderer) splitWide(items []item, maxW float64) []item {
	if maxW <= 0 {
		return items
	}
	var out []item
	for _, it := range items {
		if it.kind != itemWord || it.width <= maxW || it.text == "" {
			out = append(out, it)
			continue
		}
		var piece strings.Builder
		var w float64
		pieces := 0
		emit := func() {
			if piece.Len() == 0 {
				return
			}
			if pieces > 0 {
				out = append(out, item{kind: itemSpace})
			}
			pieces++
			part := it
			part.text = piece.String()
			part.runs = r.fonts.runs(part.text, it.face)
			part.width = runsWidth(part.runs)
			out = append(out, part)
			piece.Reset()
			w = 0
		}
		for _, ru := range it.text {
			rw := runsWidth(r.fonts.runs(string(ru), it.face))
			if w+rw > maxW {
				emit()
			}
			piece.WriteRune(ru)
			w += rw
		}
		emit()
	}
	return out
}

// breakLines fills lines greedily. Breaks happen at spaces, explicit breaks
// and around display formulas, so punctuation stays with the word or formula
// it follows. A glued run wider than maxW breaks between its items.
func breakLines(items []item, maxW float64) []line {
	var lines []line
	var cur line
	var chunk []item
	var chunkW float64
	var space *item

	push := func() {
		if len(cur.items) > 0 {
			lines = append(lines, cur)
		}
		cur = line{}
	}
	place := func(group []item, w float64) {
		var spaceW float64
		if space != nil && len(cur.items) > 0 {
			spaceW = space.width
		}
		if len(cur.items) > 0 && cur.width+spaceW+w > maxW {
			push()
			spaceW = 0
		}
		if spaceW > 0 {
			cur.items = append(cur.items, *space)
			cur.width += spaceW
		}
		cur.items = append(cur.items, group...)
		cur.width += w
		space = nil
	}
	addChunk := func() {
		if len(chunk) == 0 {
			return
		}
		if chunkW > maxW {
			for _, it := range chunk {
				place([]item{it}, it.width)
			}
		} else {
			place(chunk, chunkW)
		}
		chunk, chunkW = nil, 0
	}

	for _, it := range items {
		switch it.kind {
		case itemSpace:
			addChunk()
			if space == nil {
				s := it
				space = &s
			}
		case itemBreak:
			addChunk()
			if len(cur.items) == 0 {
				lines = append(lines, line{blank: true})
			}
			push()
			space = nil
		case itemDisplay:
			addChunk()
			push()
			lines = append(lines, line{items: []item{it}, width: it.width, center: true})
			space = nil
		default:
			chunk = append(chunk, it)
			chunkW += it.width
		}
	}
	addChunk()
	push()

	for i := range lines {
		for _, it := range lines[i].items {
			if it.ascent > lines[i].ascent {
				lines[i].ascent = it.ascent
			}
			if it.descent > lines[i].descent {
				lines[i].descent = it.descent
			}
		}
	}
	return lines
}

// metrics returns the ascent, descent and leading of l set in fc.
func metrics(l line, fc face) (asc, desc, gap float64) {
	asc, desc = l.ascent, l.descent
	asc = max(asc, fc.mm()*0.75)
	desc = max(desc, fc.mm()*0.25)
	gap = fc.mm() * 0.45
	if l.center {
		gap = fc.mm() * 1.1
	}
	return asc, desc, gap
}

func (r *renderer) line(l line, fc face) {
	asc, desc, gap := metrics(l, fc)
	h := asc + desc + gap
	r.ensure(h)
	baseline := r.y + gap/2 + asc

	x := r.left()
	if l.center && l.width < r.contentWidth() {
		x += (r.contentWidth() - l.width) / 2
	}
	if r.marker != nil {
		r.setColor(black)
		r.fonts.draw(r.marker, r.left()-runsWidth(r.marker)-2, baseline)
		r.setColor(r.color)
		r.marker = nil
	}
	r.drawItems(l.items, x, baseline)
	r.y += h
}

func (r *renderer) drawItems(items []item, x, baseline float64) {
	for _, it := range items {
		switch {
		case it.math != nil:
			r.pdf.SetDrawColor(r.color.r, r.color.g, r.color.b)
			r.math.draw(it.math, x, baseline)
			r.pdf.SetDrawColor(0, 0, 0)
		case it.pic != nil:
			r.drawPicture(it, x, baseline-it.ascent)
		case it.kind == itemWord:
			if it.link {
				r.setColor(linkColor)
			}
			r.fonts.draw(it.runs, x, baseline)
			if it.link {
				r.pdf.SetDrawColor(linkColor.r, linkColor.g, linkColor.b)
				r.pdf.SetLineWidth(0.2)
				r.pdf.Line(x, baseline+0.6, x+it.width, baseline+0.6)
				r.pdf.SetDrawColor(0, 0, 0)
				r.setColor(r.color)
			}
		}
		x += it.width
	}
}

func (r *renderer) drawPicture(it item, x, top float64) {
	name, ok := r.names[it.pic]
	if !ok {
		name = "img" + strconv.Itoa(len(r.names))
		r.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: it.pic.kind}, bytes.NewReader(it.pic.data))
		r.names[it.pic] = name
	}
	r.pdf.ImageOptions(name, x, top, it.width, it.ascent, false, fpdf.ImageOptions{ImageType: it.pic.kind}, 0, "")
}

func (r *renderer) list(n *html.Node) {
	ordered := n.Data == "ol"
	num := 1
	if v, err := strconv.Atoi(attr(n, "start")); ordered && err == nil {
		num = v
	}
	r.indent += listIndent
	for c := n.FirstChild; c != nil && r.err == nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		label := "•"
		if ordered {
			label = strconv.Itoa(num) + "."
			num++
		}
		r.marker = r.fonts.runs(label, r.fonts.body(bodySize))
		r.blocks(c)
		r.marker = nil
	}
	r.indent -= listIndent
	r.space(1.5)
}

// pre sets preformatted text line by line, wrapping at the content width.
func (r *renderer) pre(n *html.Node) {
	fc := r.fonts.mono(codeSize)
	lineH := fc.mm() * 1.45
	text := strings.TrimRight(strings.ReplaceAll(textOf(n), "\t", "    "), "\n")

	r.fonts.use(fc)
	charW := r.pdf.GetStringWidth("m")
	perLine := 80
	if charW > 0 {
		perLine = int((r.contentWidth() - 4) / charW)
	}
	if perLine < 10 {
		perLine = 10
	}

	r.space(1)
	for _, raw := range strings.Split(text, "\n") {
		for _, l := range wrapRunes(raw, perLine) {
			r.ensure(lineH)
			r.pdf.SetFillColor(246, 248, 250)
			r.pdf.Rect(r.left(), r.y, r.contentWidth(), lineH, "F")
			r.fonts.draw(r.fonts.runs(l, fc), r.left()+2, r.y+lineH*0.72)
			r.y += lineH
		}
	}
	r.space(2.5)
}

func wrapRunes(s string, n int) []string {
	rs := []rune(s)
	if len(rs) <= n {
		return []string{s}
	}
	var out []string
	for len(rs) > n {
		out = append(out, string(rs[:n]))
		rs = rs[n:]
	}
	return append(out, string(rs))
}

func (r *renderer) quote(n *html.Node) {
	startPage, startY := r.pdf.PageNo(), r.y
	prev := r.color
	r.indent += quoteInset
	r.color = quoteText
	r.setColor(r.color)
	r.blocks(n)
	r.color = prev
	r.setColor(r.color)
	r.indent -= quoteInset

	top := startY
	if r.pdf.PageNo() != startPage {
		top = r.margins.Top
	}
	x := r.left() + 2
	r.pdf.SetDrawColor(200, 200, 200)
	r.pdf.SetLineWidth(0.8)
	r.pdf.Line(x, top, x, r.y-1.5)
	r.pdf.SetDrawColor(0, 0, 0)
}

func (r *renderer) hr() {
	r.ensure(5)
	r.pdf.SetDrawColor(180, 180, 180)
	r.pdf.SetLineWidth(0.3)
	r.pdf.Line(r.left(), r.y+2.5, r.left()+r.contentWidth(), r.y+2.5)
	r.pdf.SetDrawColor(0, 0, 0)
	r.y += 5
}

type tableCell struct {
	header bool
	lines  []line
	height float64
	face   face
}

func (r *renderer) table(n *html.Node) {
	var rows [][]*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.Data == "tr" {
				var cells []*html.Node
				for td := c.FirstChild; td != nil; td = td.NextSibling {
					if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
						cells = append(cells, td)
					}
				}
				rows = append(rows, cells)
				continue
			}
			walk(c)
		}
	}
	walk(n)

	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return
	}
	colW := r.contentWidth() / float64(cols)
	const pad = 1.5

	r.space(1)
	for _, row := range rows {
		if r.err = r.ctx.Err(); r.err != nil {
			return
		}
		cells := make([]tableCell, len(row))
		var rowH float64
		for i, td := range row {
			cell := tableCell{header: td.Data == "th", face: r.fonts.body(tableSize)}
			if cell.header {
				cell.face = cell.face.bold()
			}
			var items []item
			for c := td.FirstChild; c != nil; c = c.NextSibling {
				items = r.collect(c, cell.face, false, items)
			}
			cell.lines = breakLines(r.splitWide(items, colW-2*pad), colW-2*pad)
			for _, l := range cell.lines {
				asc, desc, gap := metrics(l, cell.face)
				cell.height += asc + desc + gap
			}
			cells[i] = cell
			if cell.height > rowH {
				rowH = cell.height
			}
		}
		rowH += 2 * pad
		r.ensure(rowH)

		r.pdf.SetDrawColor(190, 190, 190)
		r.pdf.SetLineWidth(0.2)
		for i := 0; i < cols; i++ {
			x := r.left() + float64(i)*colW
			style := "D"
			if i < len(cells) && cells[i].header {
				r.pdf.SetFillColor(240, 240, 240)
				style = "FD"
			}
			r.pdf.Rect(x, r.y, colW, rowH, style)
			if i >= len(cells) {
				continue
			}
			y := r.y + pad
			for _, l := range cells[i].lines {
				asc, desc, gap := metrics(l, cells[i].face)
				lx := x + pad
				if l.center && l.width < colW-2*pad {
					lx += (colW - 2*pad - l.width) / 2
				}
				r.drawItems(l.items, lx, y+gap/2+asc)
				y += asc + desc + gap
			}
		}
		r.pdf.SetDrawColor(0, 0, 0)
		r.y += rowH
	}
	r.space(2.5)
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
