package native

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/ziadkadry99/examrender/internal/engine"
)

func render(t *testing.T, markup string) engine.Output {
	t.Helper()
	ctx := context.Background()
	eng, err := NewLauncher("", nil).Launch(ctx)
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	defer eng.Close()
	if err := eng.Load(ctx, markup); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	out, err := eng.Export(ctx, engine.DefaultPageSetup())
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	return out
}

func pages(t *testing.T, data []byte) int {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading pdf: %v", err)
	}
	return r.NumPage()
}

func TestExportSinglePage(t *testing.T) {
	out := render(t, `<html><body><h1>Exam</h1><p>What is <span class="math math-display"><math display="block"><msup><mi>x</mi><mn>2</mn></msup></math></span>?</p></body></html>`)
	if !bytes.HasPrefix(out.Data, []byte("%PDF")) {
		t.Fatal("output is not a pdf")
	}
	if out.PageCount != 1 {
		t.Errorf("expected 1 page, got %d", out.PageCount)
	}
	if got := pages(t, out.Data); got != 1 {
		t.Errorf("reader sees %d pages", got)
	}
}

func TestExportPaginates(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<body>")
	for i := 0; i < 120; i++ {
		sb.WriteString("<p>Question text that fills the page with enough words to wrap at least once across the content width.</p>")
	}
	sb.WriteString("</body>")
	out := render(t, sb.String())
	if out.PageCount < 2 {
		t.Fatalf("expected several pages, got %d", out.PageCount)
	}
	if got := pages(t, out.Data); got != out.PageCount {
		t.Errorf("page count %d does not match reader %d", out.PageCount, got)
	}
}

func TestExportEmptyDocument(t *testing.T) {
	out := render(t, "")
	if out.PageCount != 1 {
		t.Errorf("empty document should produce one page, got %d", out.PageCount)
	}
}

func TestExportMixedContent(t *testing.T) {
	markup := `<body>
<h2>Part A</h2>
<ol><li>First <strong>bold</strong> and <em>italic</em></li><li>Second with <code>code</code></li></ol>
<ul><li>Nested<ul><li>deeper</li></ul></li></ul>
<blockquote><p>Quoted hint</p></blockquote>
<pre><code>for i := 0; i &lt; 3; i++ {
	fmt.Println(i)
}</code></pre>
<hr>
<table><thead><tr><th>x</th><th>f(x)</th></tr></thead><tbody><tr><td>1</td><td><math><mfrac><mn>1</mn><mn>2</mn></mfrac></math></td></tr></tbody></table>
<p><math><msqrt><mi>a</mi></msqrt><mo>+</mo><mroot><mi>b</mi><mn>3</mn></mroot><mo>≤</mo><munderover><mo>∑</mo><mrow><mi>i</mi><mo>=</mo><mn>1</mn></mrow><mi>n</mi></munderover><msub><mi>α</mi><mi>i</mi></msub></math></p>
<p><math><mrow><mo stretchy="true">(</mo><mfrac><mi>a</mi><mi>b</mi></mfrac><mo stretchy="true">)</mo></mrow><mtable><mtr><mtd><mn>1</mn></mtd><mtd><mn>0</mn></mtd></mtr></mtable></math></p>
<p><span class="math-fallback">$\frac{1}{2$</span> and <img src="../images/missing.png" alt="missing"></p>
<p><a href="https://example.com">a link</a><br>after break</p>
</body>`
	out := render(t, markup)
	if out.PageCount < 1 || len(out.Data) == 0 {
		t.Fatalf("unexpected output: %d pages, %d bytes", out.PageCount, len(out.Data))
	}
}

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestLoadDecodesEmbeddedImages(t *testing.T) {
	ctx := context.Background()
	eng := &Engine{logger: NewLauncher("", nil).Logger}
	markup := `<p><img class="exam-image" src="` + pngDataURI(t, 40, 20) + `" alt="graph"><img src="../images/x.png" alt="x"></p>`
	if err := eng.Load(ctx, markup); err != nil {
		t.Fatal(err)
	}
	if len(eng.pictures) != 1 {
		t.Fatalf("expected one decoded picture, got %d", len(eng.pictures))
	}
	for _, pic := range eng.pictures {
		if pic.width != 40 || pic.height != 20 || pic.kind != "PNG" {
			t.Errorf("unexpected picture %+v", pic)
		}
	}
	out, err := eng.Export(ctx, engine.DefaultPageSetup())
	if err != nil {
		t.Fatal(err)
	}
	if out.PageCount != 1 {
		t.Errorf("expected 1 page, got %d", out.PageCount)
	}
}

func TestLoadHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng, err := NewLauncher("", nil).Launch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	err = eng.Load(ctx, "<p>x</p>")
	var f *engine.Failure
	if !errors.As(err, &f) || f.Op != engine.OpSettle {
		t.Fatalf("expected settle failure, got %v", err)
	}
	if !errors.Is(err, engine.ErrEngineFailure) {
		t.Error("expected ErrEngineFailure")
	}
}

func TestExportWithoutLoad(t *testing.T) {
	eng, _ := NewLauncher("", nil).Launch(context.Background())
	_, err := eng.Export(context.Background(), engine.DefaultPageSetup())
	if !errors.Is(err, engine.ErrEngineFailure) {
		t.Fatalf("expected engine failure, got %v", err)
	}
}

func TestLoadMissingFont(t *testing.T) {
	eng, _ := NewLauncher("/nonexistent/font.ttf", nil).Launch(context.Background())
	err := eng.Load(context.Background(), "<p>x</p>")
	var f *engine.Failure
	if !errors.As(err, &f) || f.Op != engine.OpLoad {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func TestDecodePicture(t *testing.T) {
	if _, err := decodePicture("../images/a.png"); err == nil {
		t.Error("relative reference should not decode")
	}
	if _, err := decodePicture("data:image/svg+xml;base64,PHN2Zz48L3N2Zz4="); !errors.Is(err, errNotRaster) {
		t.Errorf("svg: got %v", err)
	}
	if _, err := decodePicture("data:image/png;base64,!!!"); err == nil {
		t.Error("bad base64 should fail")
	}
	pic, err := decodePicture(pngDataURI(t, 3, 2))
	if err != nil {
		t.Fatal(err)
	}
	if pic.width != 3 || pic.height != 2 {
		t.Errorf("size %dx%d", pic.width, pic.height)
	}
}

func TestBreakLines(t *testing.T) {
	word := func(w float64) item { return item{kind: itemWord, width: w, ascent: 3} }
	space := item{kind: itemSpace, width: 1}

	items := []item{word(10), space, word(10), space, word(10)}
	lines := breakLines(items, 25)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].width != 21 || lines[1].width != 10 {
		t.Errorf("widths %v, %v", lines[0].width, lines[1].width)
	}

	// Adjacent items without a space move together while they fit.
	lines = breakLines([]item{word(10), space, word(10), word(5)}, 22)
	if len(lines) != 2 || lines[1].width != 15 {
		t.Errorf("glued items split: %+v", lines)
	}

	// A glued run wider than the line breaks between its items.
	lines = breakLines([]item{word(20), word(20)}, 25)
	if len(lines) != 2 {
		t.Errorf("oversized run kept on %d lines", len(lines))
	}

	display := item{kind: itemDisplay, width: 5, ascent: 6}
	lines = breakLines([]item{word(3), display, word(3)}, 100)
	if len(lines) != 3 || !lines[1].center || lines[1].ascent != 6 {
		t.Errorf("display formula should sit on its own centered line: %+v", lines)
	}

	lines = breakLines([]item{word(3), {kind: itemBreak}, {kind: itemBreak}, word(3)}, 100)
	if len(lines) != 3 || !lines[1].blank {
		t.Errorf("expected a blank line between breaks: %+v", lines)
	}
}

func TestSplitWideWord(t *testing.T) {
	r := newRenderer(context.Background(), engine.DefaultPageSetup(), nil, nil)
	r.newPage()
	long := strings.Repeat("x", 5000)
	maxW := r.contentWidth()

	items := r.splitWide(r.words("see "+long, r.fonts.body(bodySize), false, nil), maxW)
	lines := breakLines(items, maxW)
	if len(lines) < 3 {
		t.Fatalf("expected the word to wrap, got %d lines", len(lines))
	}
	var text strings.Builder
	for i, l := range lines {
		if l.width > maxW+1e-6 {
			t.Errorf("line %d is %v wide, limit %v", i, l.width, maxW)
		}
		for _, it := range l.items {
			if it.kind == itemWord {
				text.WriteString(it.text)
			}
		}
	}
	if text.String() != "see"+long {
		t.Error("text lost while splitting")
	}
}

func TestExportLongWord(t *testing.T) {
	out := render(t, "<html><body><p>"+strings.Repeat("abcdefghij", 2000)+"</p></body></html>")
	if out.PageCount < 2 {
		t.Errorf("expected the wrapped word to span pages, got %d", out.PageCount)
	}
}

func TestMathFraction(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<math><mfrac><mi>a</mi><mi>b</mi></mfrac></math>`))
	if err != nil {
		t.Fatal(err)
	}
	r := newRenderer(context.Background(), engine.DefaultPageSetup(), nil, nil)
	r.newPage()
	box := r.math.measure(findElement(doc, "math"), bodySize)
	if box == nil || len(box.kids) != 1 {
		t.Fatalf("unexpected box %+v", box)
	}
	frac := box.kids[0]
	if len(frac.rules) != 1 {
		t.Fatalf("fraction should draw one bar, got %d", len(frac.rules))
	}
	num, den := frac.kids[0], frac.kids[1]
	if num.y <= 0 || den.y >= 0 {
		t.Errorf("numerator above and denominator below the baseline: %v, %v", num.y, den.y)
	}
	if box.height() <= bodySize*ptToMM {
		t.Errorf("fraction should be taller than a line of text: %v", box.height())
	}
}

func TestMathSkipsAnnotation(t *testing.T) {
	doc, _ := html.Parse(strings.NewReader(`<math><semantics><mi>x</mi><annotation encoding="application/x-tex">x</annotation></semantics></math>`))
	r := newRenderer(context.Background(), engine.DefaultPageSetup(), nil, nil)
	r.newPage()
	semantic := r.math.measure(findElement(doc, "math"), bodySize)
	plain, _ := html.Parse(strings.NewReader(`<math><mi>x</mi></math>`))
	want := r.math.measure(findElement(plain, "math"), bodySize)
	if semantic.width != want.width {
		t.Errorf("annotation text was laid out: %v vs %v", semantic.width, want.width)
	}
}

func TestRunsUseSymbolFont(t *testing.T) {
	r := newRenderer(context.Background(), engine.DefaultPageSetup(), nil, nil)
	rs := r.fonts.runs("a≤β", r.fonts.math(11))
	if len(rs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(rs))
	}
	if rs[0].face.family != "Times" || rs[0].text != "a" {
		t.Errorf("run 0: %+v", rs[0])
	}
	if rs[1].face.family != "Symbol" || rs[1].text != "\xa3b" {
		t.Errorf("run 1: %+v", rs[1])
	}
}

func TestLength(t *testing.T) {
	em := 4.0
	tests := map[string]float64{
		"":              0,
		"1em":           4,
		"0.5em":         2,
		"10mm":          10,
		"1in":           25.4,
		"thinmathspace": em / 6,
		"2":             8,
		"garbage":       0,
	}
	for in, want := range tests {
		if got := length(in, em); got != want {
			t.Errorf("length(%q) = %v, want %v", in, got, want)
		}
	}
}
