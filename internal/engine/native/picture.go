package native

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/url"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// picture is a decoded image ready for embedding.
type picture struct {
	kind   string // fpdf image type: PNG or JPG
	data   []byte
	width  int // pixels
	height int
}

var errNotRaster = errors.New("image is not a raster format")

// decodePicture decodes an img src. Only data URIs carry bytes; anything
// else, like an unresolved relative reference, is reported as an error and
// the image is shown by its alt text.
func decodePicture(src string) (*picture, error) {
	mediaType, data, err := parseDataURI(src)
	if err != nil {
		return nil, err
	}
	if mediaType == "image/svg+xml" {
		return nil, errNotRaster
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", mediaType, err)
	}
	if format == "jpeg" {
		return &picture{kind: "JPG", data: data, width: cfg.Width, height: cfg.Height}, nil
	}

	// Everything else is re-encoded as a plain PNG, which covers WebP,
	// BMP, TIFF, GIF and interlaced PNG input.
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", mediaType, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("re-encoding %s: %w", mediaType, err)
	}
	b := img.Bounds()
	return &picture{kind: "PNG", data: buf.Bytes(), width: b.Dx(), height: b.Dy()}, nil
}

func parseDataURI(src string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not embedded: %q", src)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data uri")
	}
	parts := strings.Split(meta, ";")
	mediaType := strings.ToLower(parts[0])
	isBase64 := false
	for _, p := range parts[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}
	if !isBase64 {
		text, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, err
		}
		return mediaType, []byte(text), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding base64: %w", err)
	}
	return mediaType, data, nil
}
