// Package assets maps exam image references to embeddable data or URLs.
package assets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrMissingAsset marks an image reference that does not resolve.
var ErrMissingAsset = errors.New("assets: missing asset")

// Asset is a resolved (or unresolved) image reference.
type Asset struct {
	Ref       string // reference as written in the source, e.g. ../images/a.png
	Name      string // file name under the images directory
	Alt       string
	MediaType string
	Data      []byte
	URL       string
	Resolved  bool
}

// Src returns the value for an img src attribute: a data URI for embedded
// bytes, the URL for remote assets, otherwise the original reference.
func (a Asset) Src() string {
	switch {
	case a.Resolved && a.Data != nil:
		return "data:" + a.MediaType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
	case a.Resolved && a.URL != "":
		return a.URL
	default:
		return a.Ref
	}
}

// Resolver resolves one image reference. Resolution never fails: unresolved
// assets are returned with Resolved unset.
type Resolver interface {
	Resolve(name, alt string) Asset
}

// Ref rebuilds the source reference for an image name.
func Ref(name string) string {
	return "../images/" + name
}

// MediaType guesses the media type from the file extension, defaulting to
// image/png.
func MediaType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return "image/svg+xml"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// cleanName rejects names that would escape the images directory.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrMissingAsset)
	}
	clean := path.Clean(filepath.ToSlash(name))
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q escapes the images directory", ErrMissingAsset, name)
	}
	return clean, nil
}

// Static reads images from a directory and embeds their bytes.
type Static struct {
	Dir    string
	Logger *slog.Logger
}

// NewStatic creates a Static resolver rooted at dir.
func NewStatic(dir string, logger *slog.Logger) *Static {
	if logger == nil {
		logger = slog.Default()
	}
	return &Static{Dir: dir, Logger: logger}
}

// ImagesDirFor returns the images directory for a source file: a sibling
// images/ directory one level above the file's directory.
func ImagesDirFor(sourcePath string) string {
	return filepath.Join(filepath.Dir(sourcePath), "..", "images")
}

// Path returns the file an image name refers to inside the directory.
func (s *Static) Path(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, filepath.FromSlash(clean)), nil
}

func (s *Static) Resolve(name, alt string) Asset {
	a := Asset{Ref: Ref(name), Name: name, Alt: alt, MediaType: MediaType(name)}

	full, err := s.Path(name)
	if err != nil {
		s.logger().Warn("image not resolved", "image", name, "error", err)
		return a
	}
	data, err := os.ReadFile(full)
	if err != nil {
		s.logger().Warn("image not found", "image", name, "path", full, "error", fmt.Errorf("%w: %v", ErrMissingAsset, err))
		return a
	}

	a.Data = data
	a.Resolved = true
	s.logger().Info("image embedded", "image", name, "size_kb", fmt.Sprintf("%.1f", float64(len(data))/1024))
	return a
}

func (s *Static) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// DefaultBaseURL is the interactive image server used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

// Remote maps image names to URLs under a base address. No bytes are read.
type Remote struct {
	BaseURL string
}

// NewRemote creates a Remote resolver; an empty base uses DefaultBaseURL.
func NewRemote(baseURL string) *Remote {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Remote{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (r *Remote) Resolve(name, alt string) Asset {
	a := Asset{Ref: Ref(name), Name: name, Alt: alt, MediaType: MediaType(name)}
	clean, err := cleanName(name)
	if err != nil {
		return a
	}
	segments := strings.Split(clean, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	a.URL = r.BaseURL + "/api/images/" + strings.Join(segments, "/")
	a.Resolved = true
	return a
}
