package watch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level watcher configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Pages     []PageConfig    `yaml:"pages"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Warm      WarmConfig      `yaml:"warm"`
	Sinks     []SinkConfig    `yaml:"sinks"`
	Journal   JournalConfig   `yaml:"journal"`
	Admin     AdminConfig     `yaml:"admin"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`           // ws:// URL of external Chrome; empty = launch local
	RecycleInterval time.Duration `yaml:"recycle_interval"` // default 4h
	NavigateTimeout time.Duration `yaml:"navigate_timeout"` // default 30s
}

// PageConfig defines a page to watch.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// ReconcileConfig controls the lazy-load sweep.
type ReconcileConfig struct {
	Interval  time.Duration `yaml:"interval"`   // default 2s
	MaxRounds int           `yaml:"max_rounds"` // default 10
}

// WarmConfig controls background cache warming.
type WarmConfig struct {
	Disabled bool          `yaml:"disabled"`
	Timeout  time.Duration `yaml:"timeout"` // default 30s
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// JournalConfig controls event persistence.
type JournalConfig struct {
	Path string `yaml:"path"` // empty = journal disabled
}

// AdminConfig controls the operator HTTP surface.
type AdminConfig struct {
	Listen string `yaml:"listen"` // empty = admin server disabled
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("watch: parse config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in the zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = 2 * time.Second
	}
	if c.Reconcile.MaxRounds <= 0 {
		c.Reconcile.MaxRounds = 10
	}
	if c.Warm.Timeout <= 0 {
		c.Warm.Timeout = 30 * time.Second
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
}
