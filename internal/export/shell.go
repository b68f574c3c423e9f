package export

import "strings"

// fragmentCSS styles compiled math and embedded images. It follows the
// user stylesheet so the stylesheet cannot hide fragments by accident.
const fragmentCSS = `
.math-inline { display: inline-block; vertical-align: middle; }
.math-display { display: block; text-align: center; margin: 1em 0; }
.math-display math { display: block; }
.math-fallback { font-family: monospace; white-space: pre-wrap; }
img.exam-image { max-width: 100%; }
`

// shell wraps the document body in a complete markup document carrying the
// stylesheet.
func shell(css, body string) string {
	var b strings.Builder
	b.Grow(len(css) + len(body) + len(fragmentCSS) + 128)
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"UTF-8\">\n<style>\n")
	b.WriteString(escapeStyle(css))
	b.WriteString(fragmentCSS)
	b.WriteString("</style>\n</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// escapeStyle keeps a stylesheet from closing its own style element.
func escapeStyle(css string) string {
	return strings.ReplaceAll(css, "</style", `<\/style`)
}
