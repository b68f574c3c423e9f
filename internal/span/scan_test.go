package span

import (
	"testing"
)

func TestScanBlockMathIsOneSpan(t *testing.T) {
	for _, x := range []string{"x^2", `\frac{a}{b}`, "a + b = c", "\\sum_{i=1}^n i\n= \\frac{n(n+1)}{2}"} {
		text := "before $$" + x + "$$ after"
		spans := Spans(Scan(text))
		if len(spans) != 1 {
			t.Fatalf("%q: expected 1 span, got %d: %+v", x, len(spans), spans)
		}
		s := spans[0]
		if s.Kind != Math || !s.Display {
			t.Errorf("%q: expected block math, got %+v", x, s)
		}
		if s.Raw != x {
			t.Errorf("raw: got %q, want %q", s.Raw, x)
		}
		if s.Source(text) != "$$"+x+"$$" {
			t.Errorf("source: got %q", s.Source(text))
		}
	}
}

func TestScanInlineMath(t *testing.T) {
	for _, x := range []string{"x", "a^2+b^2", `\sqrt{2}`} {
		text := "$" + x + "$"
		segs := Scan(text)
		if len(segs) != 1 {
			t.Fatalf("%q: expected 1 segment, got %d", x, len(segs))
		}
		if segs[0].Kind != Math || segs[0].Display || segs[0].Raw != x {
			t.Errorf("%q: unexpected segment %+v", x, segs[0])
		}
	}
}

func TestScanWhatIsXSquared(t *testing.T) {
	text := "What is $$x^2$$?"
	segs := Scan(text)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Kind != Literal || segs[0].Source(text) != "What is " {
		t.Errorf("prefix: %+v", segs[0])
	}
	if segs[1].Kind != Math || !segs[1].Display || segs[1].Raw != "x^2" {
		t.Errorf("math: %+v", segs[1])
	}
	if segs[2].Kind != Literal || segs[2].Source(text) != "?" {
		t.Errorf("suffix: %+v", segs[2])
	}
}

func TestScanImages(t *testing.T) {
	text := "See ![a $cost$ chart](../images/cost$1.png) then $y$."
	segs := Scan(text)
	spans := Spans(segs)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(spans), spans)
	}
	if spans[0].Kind != Image || spans[0].Alt != "a $cost$ chart" || spans[0].Path != "cost$1.png" {
		t.Errorf("image: %+v", spans[0])
	}
	if spans[1].Kind != Math || spans[1].Raw != "y" {
		t.Errorf("math: %+v", spans[1])
	}
}

func TestScanOtherImagePathsStayLiteral(t *testing.T) {
	text := "![logo](https://example.com/logo.png)"
	segs := Scan(text)
	if len(segs) != 1 || segs[0].Kind != Literal {
		t.Errorf("expected a single literal, got %+v", segs)
	}
}

func TestScanUnmatchedDollar(t *testing.T) {
	tests := []string{
		"costs $5",
		"$",
		"$$",
		"$$$$",
		"line one $\nline two$",
		"",
	}
	for _, text := range tests {
		segs := Scan(text)
		if len(Spans(segs)) != 0 {
			t.Errorf("%q: expected no spans, got %+v", text, segs)
		}
		if got := Reconstruct(text, segs); got != text {
			t.Errorf("%q: reconstruct got %q", text, got)
		}
	}
}

func TestScanNestedMathDoesNotPanic(t *testing.T) {
	text := "$a $$b$$ c$"
	segs := Scan(text)
	if got := Reconstruct(text, segs); got != text {
		t.Errorf("reconstruct: got %q", got)
	}
	spans := Spans(segs)
	if len(spans) != 1 || !spans[0].Display || spans[0].Raw != "b" {
		t.Errorf("expected only the block span, got %+v", spans)
	}
}

func TestScanCoversText(t *testing.T) {
	texts := []string{
		"plain",
		"$a$ and $b$",
		"$$a$$$b$",
		"1. $x$\n2. ![fig](../images/f.png)\n\n$$\\int_0^1 x\\,dx$$",
		"price $3 or $$",
		"中文 $\\alpha$ 題目",
	}
	for _, text := range texts {
		segs := Scan(text)
		pos := 0
		for i, s := range segs {
			if s.Start != pos {
				t.Fatalf("%q: segment %d starts at %d, want %d", text, i, s.Start, pos)
			}
			if s.End <= s.Start {
				t.Fatalf("%q: empty segment %d", text, i)
			}
			pos = s.End
		}
		if pos != len(text) {
			t.Fatalf("%q: covered %d of %d bytes", text, pos, len(text))
		}
		if got := Reconstruct(text, segs); got != text {
			t.Errorf("reconstruct got %q, want %q", got, text)
		}
	}
}

func TestScanAdjacentBlockThenInline(t *testing.T) {
	text := "$$a$$$b$"
	spans := Spans(Scan(text))
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %+v", spans)
	}
	if !spans[0].Display || spans[0].Raw != "a" {
		t.Errorf("first: %+v", spans[0])
	}
	if spans[1].Display || spans[1].Raw != "b" {
		t.Errorf("second: %+v", spans[1])
	}
}
