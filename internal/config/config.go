package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings for the sync service. Values are loaded
// from a YAML file and may be overridden by CLI flags.
type Config struct {
	// Root is the repository root to keep indexed.
	Root string `yaml:"root"`

	// DataDir holds the index database and fingerprint file. It is always
	// excluded from scanning and watching.
	DataDir string `yaml:"data_dir"`

	Embedder  EmbedderConfig  `yaml:"embedder"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Scan      ScanConfig      `yaml:"scan"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Engine    EngineConfig    `yaml:"engine"`
	Watch     WatchConfig     `yaml:"watch"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider  string `yaml:"provider"` // "openai", "ollama", or "local"
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"`
}

// ChunkingConfig controls the sliding line window.
type ChunkingConfig struct {
	WindowLines int `yaml:"window_lines"`
	StrideLines int `yaml:"stride_lines"`
}

// ScanConfig controls which files the scanner considers indexable.
type ScanConfig struct {
	ExcludeDirs  []string `yaml:"exclude_dirs"`
	Extensions   []string `yaml:"extensions"`
	MaxFileBytes int64    `yaml:"max_file_bytes"`
}

// SchedulerConfig controls debounce behavior.
type SchedulerConfig struct {
	// QuietPeriod is how long the scheduler waits for notifications to stop
	// arriving before dispatching a cycle.
	QuietPeriod time.Duration `yaml:"quiet_period"`

	// MaxWait caps how long a change can sit pending under a continuous
	// stream of notifications. Zero means 5x the quiet period.
	MaxWait time.Duration `yaml:"max_wait"`
}

// EngineConfig controls sync cycle execution.
type EngineConfig struct {
	Workers      int           `yaml:"workers"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

// WatchConfig controls the long-running watch mode.
type WatchConfig struct {
	// RescanInterval is the period of the full re-scan safety net. Zero
	// disables the periodic trigger.
	RescanInterval time.Duration `yaml:"rescan_interval"`
}

// DefaultExtensions is the set of file extensions indexed when the config
// does not name its own.
var DefaultExtensions = []string{
	".py", ".rs", ".go", ".js", ".jsx", ".ts", ".tsx",
	".java", ".kt", ".swift", ".c", ".cc", ".cpp", ".h", ".hpp",
	".xml", ".json",
}

// Default returns a configuration with all defaults applied, rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Root:    dir,
		DataDir: filepath.Join(dir, ".semsync"),
		Embedder: EmbedderConfig{
			Provider:  "local",
			BatchSize: 64,
			CacheSize: 10000,
		},
		Chunking: ChunkingConfig{
			WindowLines: 80,
			StrideLines: 60,
		},
		Scan: ScanConfig{
			ExcludeDirs:  []string{"node_modules", "vendor", "target", "dist", "build", "__pycache__"},
			Extensions:   DefaultExtensions,
			MaxFileBytes: 1 << 20,
		},
		Scheduler: SchedulerConfig{
			QuietPeriod: 2 * time.Second,
			MaxWait:     10 * time.Second,
		},
		Engine: EngineConfig{
			Workers:      4,
			LockTimeout:  30 * time.Second,
			CycleTimeout: 10 * time.Minute,
		},
		Watch: WatchConfig{
			RescanInterval: 5 * time.Minute,
		},
	}
}

// Load reads a YAML config file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Root == "" {
		cfg.Root = "."
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default(c.Root)

	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Embedder.Provider == "" {
		c.Embedder.Provider = def.Embedder.Provider
	}
	if c.Embedder.BatchSize <= 0 {
		c.Embedder.BatchSize = def.Embedder.BatchSize
	}
	if c.Embedder.CacheSize <= 0 {
		c.Embedder.CacheSize = def.Embedder.CacheSize
	}
	if c.Chunking.WindowLines <= 0 {
		c.Chunking.WindowLines = def.Chunking.WindowLines
	}
	if c.Chunking.StrideLines <= 0 {
		c.Chunking.StrideLines = def.Chunking.StrideLines
	}
	if len(c.Scan.Extensions) == 0 {
		c.Scan.Extensions = def.Scan.Extensions
	}
	if c.Scan.ExcludeDirs == nil {
		c.Scan.ExcludeDirs = def.Scan.ExcludeDirs
	}
	if c.Scan.MaxFileBytes <= 0 {
		c.Scan.MaxFileBytes = def.Scan.MaxFileBytes
	}
	if c.Scheduler.QuietPeriod <= 0 {
		c.Scheduler.QuietPeriod = def.Scheduler.QuietPeriod
	}
	if c.Scheduler.MaxWait <= 0 {
		c.Scheduler.MaxWait = 5 * c.Scheduler.QuietPeriod
	}
	if c.Engine.Workers <= 0 {
		c.Engine.Workers = def.Engine.Workers
	}
	if c.Engine.LockTimeout <= 0 {
		c.Engine.LockTimeout = def.Engine.LockTimeout
	}
	if c.Engine.CycleTimeout <= 0 {
		c.Engine.CycleTimeout = def.Engine.CycleTimeout
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Chunking.StrideLines >= c.Chunking.WindowLines {
		return fmt.Errorf("chunking: stride_lines (%d) must be smaller than window_lines (%d)",
			c.Chunking.StrideLines, c.Chunking.WindowLines)
	}
	if c.Scheduler.MaxWait < c.Scheduler.QuietPeriod {
		return fmt.Errorf("scheduler: max_wait (%s) must be at least quiet_period (%s)",
			c.Scheduler.MaxWait, c.Scheduler.QuietPeriod)
	}
	switch c.Embedder.Provider {
	case "openai", "ollama", "local":
	default:
		return fmt.Errorf("embedder: unknown provider %q", c.Embedder.Provider)
	}
	return nil
}

// IndexPath returns the path of the SQLite index database.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// FingerprintPath returns the path of the fingerprint file.
func (c *Config) FingerprintPath() string {
	return filepath.Join(c.DataDir, "fingerprints.json")
}
