package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/engine"
)

// StylesheetName is the stylesheet looked up next to the install directory.
const StylesheetName = "pdf-style.css"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	m := engine.DefaultMargins
	return &Config{
		Engine:         EngineChrome,
		ImagesDir:      "images",
		BaseURL:        assets.DefaultBaseURL,
		Timeout:        60 * time.Second,
		MaxConcurrency: 4,
		Page: PageConfig{
			Size:    engine.A4.Name,
			Margins: MarginsConfig{Top: m.Top, Right: m.Right, Bottom: m.Bottom, Left: m.Left},
		},
		Server: ServerConfig{Port: 8000},
	}
}

// StylesheetPath returns the configured stylesheet, or pdf-style.css one
// directory above the executable's directory.
func (c *Config) StylesheetPath() string {
	if c.Stylesheet != "" {
		return c.Stylesheet
	}
	exe, err := os.Executable()
	if err != nil {
		return StylesheetName
	}
	return filepath.Join(filepath.Dir(filepath.Dir(exe)), StylesheetName)
}

// PageSetup converts the page settings into an engine page setup.
func (c *Config) PageSetup() (engine.PageSetup, error) {
	setup := engine.DefaultPageSetup()
	size, ok := engine.SizeByName(c.Page.Size)
	if !ok {
		return setup, fmt.Errorf("unknown page size %q", c.Page.Size)
	}
	setup.Size = size
	setup.Margins = engine.Margins{
		Top:    c.Page.Margins.Top,
		Right:  c.Page.Margins.Right,
		Bottom: c.Page.Margins.Bottom,
		Left:   c.Page.Margins.Left,
	}
	return setup, nil
}
