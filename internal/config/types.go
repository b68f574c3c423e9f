package config

import "time"

// EngineType selects the static rendering engine.
type EngineType string

const (
	EngineChrome EngineType = "chrome"
	EngineNative EngineType = "native"
)

// Config is the top-level examrender configuration, corresponding to .examrender.yml.
type Config struct {
	Engine         EngineType    `yaml:"engine" koanf:"engine"`
	ChromePath     string        `yaml:"chrome_path,omitempty" koanf:"chrome_path"`
	Stylesheet     string        `yaml:"stylesheet,omitempty" koanf:"stylesheet"`
	ImagesDir      string        `yaml:"images_dir" koanf:"images_dir"`
	BaseURL        string        `yaml:"base_url" koanf:"base_url"`
	Timeout        time.Duration `yaml:"timeout" koanf:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency" koanf:"max_concurrency"`
	CachePath      string        `yaml:"cache_path,omitempty" koanf:"cache_path"`
	FontPath       string        `yaml:"font_path,omitempty" koanf:"font_path"`
	Page           PageConfig    `yaml:"page" koanf:"page"`
	Server         ServerConfig  `yaml:"server" koanf:"server"`
}

// PageConfig holds static page geometry.
type PageConfig struct {
	Size    string        `yaml:"size" koanf:"size"`
	Margins MarginsConfig `yaml:"margins" koanf:"margins"`
}

// MarginsConfig holds page margins in millimetres.
type MarginsConfig struct {
	Top    float64 `yaml:"top" koanf:"top"`
	Right  float64 `yaml:"right" koanf:"right"`
	Bottom float64 `yaml:"bottom" koanf:"bottom"`
	Left   float64 `yaml:"left" koanf:"left"`
}

// ServerConfig holds interactive server settings.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
