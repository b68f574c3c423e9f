package native

import (
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

const ptToMM = 25.4 / 72

// face selects a font family, style ("", "B", "I", "BI") and size in points.
type face struct {
	family string
	style  string
	size   float64
}

func (f face) bold() face {
	if !strings.Contains(f.style, "B") {
		f.style = "B" + f.style
	}
	return f
}

func (f face) italic() face {
	if !strings.Contains(f.style, "I") {
		f.style += "I"
	}
	return f
}

func (f face) scaled(k float64) face {
	f.size *= k
	return f
}

// mm returns the font size in millimetres.
func (f face) mm() float64 {
	return f.size * ptToMM
}

// run is text already encoded for one font.
type run struct {
	face  face
	text  string
	width float64
}

// fonts maps logical faces to the fonts registered with the document.
// With a UTF-8 font every face uses it; otherwise core fonts are used and
// text is encoded as Windows-1252, with math symbols taken from the core
// Symbol font.
type fonts struct {
	pdf  *fpdf.Fpdf
	utf8 bool
}

const utf8Family = "examfont"

func newFonts(pdf *fpdf.Fpdf, ttf []byte) *fonts {
	f := &fonts{pdf: pdf}
	if len(ttf) > 0 {
		for _, style := range []string{"", "B", "I", "BI"} {
			pdf.AddUTF8FontFromBytes(utf8Family, style, ttf)
		}
		f.utf8 = !pdf.Err()
	}
	return f
}

func (f *fonts) body(size float64) face {
	if f.utf8 {
		return face{family: utf8Family, size: size}
	}
	return face{family: "Helvetica", size: size}
}

func (f *fonts) mono(size float64) face {
	if f.utf8 {
		return face{family: utf8Family, size: size}
	}
	return face{family: "Courier", size: size}
}

func (f *fonts) math(size float64) face {
	if f.utf8 {
		return face{family: utf8Family, size: size}
	}
	return face{family: "Times", size: size}
}

func (f *fonts) use(fc face) {
	f.pdf.SetFont(fc.family, fc.style, fc.size)
}

// runs splits s into measured runs for fc.
func (f *fonts) runs(s string, fc face) []run {
	if s == "" {
		return nil
	}
	if f.utf8 {
		return []run{f.measure(run{face: fc, text: s})}
	}

	symbol := face{family: "Symbol", size: fc.size}
	var out []run
	var cur []byte
	curSymbol := false
	flush := func() {
		if len(cur) == 0 {
			return
		}
		rf := fc
		if curSymbol {
			rf = symbol
		}
		out = append(out, f.measure(run{face: rf, text: string(cur)}))
		cur = nil
	}
	for _, r := range s {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok && !forceSymbol(r) {
			if curSymbol {
				flush()
				curSymbol = false
			}
			cur = append(cur, b)
			continue
		}
		if b, ok := symbolGlyphs[r]; ok {
			if !curSymbol {
				flush()
				curSymbol = true
			}
			cur = append(cur, b)
			continue
		}
		if curSymbol {
			flush()
			curSymbol = false
		}
		cur = append(cur, '?')
	}
	flush()
	return out
}

func (f *fonts) measure(r run) run {
	f.use(r.face)
	r.width = f.pdf.GetStringWidth(r.text)
	return r
}

func runsWidth(rs []run) float64 {
	var w float64
	for _, r := range rs {
		w += r.width
	}
	return w
}

// draw writes runs left to right starting at x on the given baseline.
func (f *fonts) draw(rs []run, x, baseline float64) float64 {
	for _, r := range rs {
		f.use(r.face)
		f.pdf.Text(x, baseline, r.text)
		x += r.width
	}
	return x
}

// forceSymbol reports runes that Windows-1252 has but that read better in
// the Symbol font inside formulas.
func forceSymbol(r rune) bool {
	return r == '×' || r == '÷' || r == '±' || r == '·'
}

// symbolGlyphs maps Unicode math characters to Adobe Symbol font codes.
var symbolGlyphs = map[rune]byte{
	'α': 'a', 'β': 'b', 'γ': 'g', 'δ': 'd', 'ε': 'e', 'ϵ': 'e', 'ζ': 'z',
	'η': 'h', 'θ': 'q', 'ϑ': 'J', 'ι': 'i', 'κ': 'k', 'λ': 'l', 'μ': 'm',
	'ν': 'n', 'ξ': 'x', 'ο': 'o', 'π': 'p', 'ϖ': 'v', 'ρ': 'r', 'σ': 's',
	'ς': 'V', 'τ': 't', 'υ': 'u', 'φ': 'f', 'ϕ': 'j', 'χ': 'c', 'ψ': 'y',
	'ω': 'w',
	'Γ': 'G', 'Δ': 'D', 'Θ': 'Q', 'Λ': 'L', 'Ξ': 'X', 'Π': 'P', 'Σ': 'S',
	'Υ': 'U', 'Φ': 'F', 'Ψ': 'Y', 'Ω': 'W',

	'∀': 0x22, '∃': 0x24, '∋': 0x27, '∗': 0x2A, '−': 0x2D, '≅': 0x40,
	'⊥': 0x5E, '∼': 0x7E, '′': 0xA2, '≤': 0xA3, '∞': 0xA5, '↔': 0xAB,
	'←': 0xAC, '↑': 0xAD, '→': 0xAE, '↓': 0xAF, '°': 0xB0, '±': 0xB1,
	'″': 0xB2, '≥': 0xB3, '×': 0xB4, '∝': 0xB5, '∂': 0xB6, '•': 0xB7,
	'÷': 0xB8, '≠': 0xB9, '≡': 0xBA, '≈': 0xBB, '…': 0xBC, '⋯': 0xBC,
	'ℵ': 0xC0, 'ℑ': 0xC1, 'ℜ': 0xC2, '℘': 0xC3, '⊗': 0xC4, '⊕': 0xC5,
	'∅': 0xC6, '∩': 0xC7, '∪': 0xC8, '⊃': 0xC9, '⊇': 0xCA, '⊄': 0xCB,
	'⊂': 0xCC, '⊆': 0xCD, '∈': 0xCE, '∉': 0xCF, '∠': 0xD0, '∇': 0xD1,
	'∏': 0xD5, '√': 0xD6, '⋅': 0xD7, '·': 0xD7, '¬': 0xD8, '∧': 0xD9,
	'∨': 0xDA, '⇔': 0xDB, '⇐': 0xDC, '⇑': 0xDD, '⇒': 0xDE, '⇓': 0xDF,
	'◊': 0xE0, '〈': 0xE1, '⟨': 0xE1, '∑': 0xE5, '〉': 0xF1, '⟩': 0xF1,
	'∫': 0xF2, '∣': '|', '∥': '|', '‖': '|',
}

// collapse folds runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// runeCount counts characters in s.
func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}
