package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
)

// DefaultPath is the configuration file written by the wizard.
const DefaultPath = ".examrender.yml"

// stylesheetCandidates are checked, in order, for an existing stylesheet.
var stylesheetCandidates = []string{
	StylesheetName,
	filepath.Join("..", StylesheetName),
	filepath.Join("exams", StylesheetName),
}

// detectStylesheet returns the first stylesheet found near the current directory.
func detectStylesheet() string {
	for _, candidate := range stylesheetCandidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .examrender.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to examrender! Let's configure your project.")
	fmt.Println()

	cfg := DefaultConfig()

	stylesheet := detectStylesheet()
	if stylesheet != "" {
		fmt.Printf("Found stylesheet: %s\n\n", stylesheet)
	}

	// 1. Engine selection.
	enginePrompt := promptui.Select{
		Label: "Select rendering engine",
		Items: []string{
			"chrome: headless Chrome, full stylesheet support",
			"native: built-in PDF writer, no browser needed",
		},
	}
	engineIdx, _, err := enginePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("engine selection: %w", err)
	}
	cfg.Engine = []EngineType{EngineChrome, EngineNative}[engineIdx]

	// 2. Page size.
	sizePrompt := promptui.Select{
		Label: "Select page size",
		Items: []string{"A4", "Letter", "A3"},
	}
	_, cfg.Page.Size, err = sizePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("page size selection: %w", err)
	}

	// 3. Image base URL for interactive rendering.
	basePrompt := promptui.Prompt{
		Label:   "Image server base URL",
		Default: cfg.BaseURL,
	}
	cfg.BaseURL, err = basePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}

	// 4. Stylesheet.
	stylePrompt := promptui.Prompt{
		Label:   "Stylesheet for static exports (blank for the install default)",
		Default: stylesheet,
	}
	cfg.Stylesheet, err = stylePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("stylesheet: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(DefaultPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultPath)
	return cfg, nil
}
