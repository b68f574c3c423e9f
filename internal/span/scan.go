// Package span locates math and image regions inside exam text.
package span

import (
	"regexp"
	"strings"
)

// Kind identifies what a Segment holds.
type Kind int

const (
	Literal Kind = iota
	Math
	Image
)

func (k Kind) String() string {
	switch k {
	case Math:
		return "math"
	case Image:
		return "image"
	default:
		return "literal"
	}
}

// Segment is a located region of the source text. Offsets are byte offsets
// into the text passed to Scan; End is exclusive.
type Segment struct {
	Kind  Kind
	Start int
	End   int

	// Math segments.
	Raw     string
	Display bool

	// Image segments. Path is the file name under the images directory.
	Alt  string
	Path string
}

// Source returns the slice of text this segment covers.
func (s Segment) Source(text string) string {
	return text[s.Start:s.End]
}

// ImagePrefix is the relative directory exam sources use for images.
const ImagePrefix = "../images/"

var (
	imagePattern      = regexp.MustCompile(`!\[([^\]]*)\]\(\.\./images/([^)]+)\)`)
	blockMathPattern  = regexp.MustCompile(`\$\$([^$]+?)\$\$`)
	inlineMathPattern = regexp.MustCompile(`\$([^$\n]+?)\$`)
)

// Scan splits text into literal, math and image segments that cover it with
// no gaps or overlaps. Passes run in a fixed order: images, then block math,
// then inline math, each pass only looking at text earlier passes left as
// literal. Unmatched dollars stay literal.
func Scan(text string) []Segment {
	segs := []Segment{{Kind: Literal, Start: 0, End: len(text)}}
	segs = refine(text, segs, imagePattern, func(m []int) Segment {
		return Segment{
			Kind: Image,
			Alt:  text[m[2]:m[3]],
			Path: text[m[4]:m[5]],
		}
	})
	segs = refine(text, segs, blockMathPattern, func(m []int) Segment {
		return Segment{Kind: Math, Raw: text[m[2]:m[3]], Display: true}
	})
	segs = refine(text, segs, inlineMathPattern, func(m []int) Segment {
		return Segment{Kind: Math, Raw: text[m[2]:m[3]]}
	})
	return compact(segs)
}

// refine runs re over every literal segment and splits it around matches.
// Offsets from the match are absolute once the literal's start is added.
func refine(text string, segs []Segment, re *regexp.Regexp, build func(m []int) Segment) []Segment {
	out := make([]Segment, 0, len(segs))
	for _, seg := range segs {
		if seg.Kind != Literal {
			out = append(out, seg)
			continue
		}
		chunk := text[seg.Start:seg.End]
		matches := re.FindAllStringSubmatchIndex(chunk, -1)
		if len(matches) == 0 {
			out = append(out, seg)
			continue
		}
		pos := seg.Start
		for _, m := range matches {
			abs := make([]int, len(m))
			for i, off := range m {
				if off < 0 {
					abs[i] = off
					continue
				}
				abs[i] = seg.Start + off
			}
			if abs[0] > pos {
				out = append(out, Segment{Kind: Literal, Start: pos, End: abs[0]})
			}
			s := build(abs)
			s.Start, s.End = abs[0], abs[1]
			out = append(out, s)
			pos = abs[1]
		}
		if pos < seg.End {
			out = append(out, Segment{Kind: Literal, Start: pos, End: seg.End})
		}
	}
	return out
}

// compact drops empty literals and merges adjacent ones.
func compact(segs []Segment) []Segment {
	out := segs[:0]
	for _, s := range segs {
		if s.Kind == Literal {
			if s.Start == s.End {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Kind == Literal && out[n-1].End == s.Start {
				out[n-1].End = s.End
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// Reconstruct concatenates the source text of every segment in order.
func Reconstruct(text string, segs []Segment) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, s := range segs {
		b.WriteString(s.Source(text))
	}
	return b.String()
}

// Spans returns only the math and image segments.
func Spans(segs []Segment) []Segment {
	var out []Segment
	for _, s := range segs {
		if s.Kind != Literal {
			out = append(out, s)
		}
	}
	return out
}
