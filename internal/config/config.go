package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pders01/moji/internal/validation"
)

type Config struct {
	Search   SearchConfig   `mapstructure:"search"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Image    ImageConfig    `mapstructure:"image"`
	Window   WindowConfig   `mapstructure:"window"`
	Errors   ErrorsConfig   `mapstructure:"errors"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	UI       UIConfig       `mapstructure:"ui"`
	Media    MediaConfig    `mapstructure:"media"`
	Keys     KeyConfig      `mapstructure:"keys"`
}

type SearchConfig struct {
	Source            string        `mapstructure:"source"`
	BaseURL           string        `mapstructure:"base_url"`
	WarmupURL         string        `mapstructure:"warmup_url"`
	FeedURL           string        `mapstructure:"feed_url"`
	TTL               time.Duration `mapstructure:"ttl"`
	CacheEntries      int           `mapstructure:"cache_entries"`
	Attempts          int           `mapstructure:"attempts"`
	BackoffStep       time.Duration `mapstructure:"backoff_step"`
	WarmupOnThrottle  bool          `mapstructure:"warmup_on_throttle"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	AllowPrivateHosts bool          `mapstructure:"allow_private_hosts"`
}

type FetchConfig struct {
	Workers        int           `mapstructure:"workers"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	Attempts       int           `mapstructure:"attempts"`
	MaxBytes       int64         `mapstructure:"max_bytes"`
	ProbeBytes     int           `mapstructure:"probe_bytes"`
	ChunkSize      int           `mapstructure:"chunk_size"`
	CancelGrace    time.Duration `mapstructure:"cancel_grace"`
	Variant        string        `mapstructure:"variant"`
}

type CacheConfig struct {
	ByteBudget int64 `mapstructure:"byte_budget"`
	// MaxItemBytes of zero means half the budget.
	MaxItemBytes int64 `mapstructure:"max_item_bytes"`
}

type ImageConfig struct {
	MaxPixels    int64 `mapstructure:"max_pixels"`
	MaxDimension int   `mapstructure:"max_dimension"`
}

type WindowConfig struct {
	Columns           int `mapstructure:"columns"`
	RowHeight         int `mapstructure:"row_height"`
	BufferRows        int `mapstructure:"buffer_rows"`
	LoadMoreThreshold int `mapstructure:"load_more_threshold"`
}

type ErrorsConfig struct {
	ReportInterval time.Duration `mapstructure:"report_interval"`
	SampleSize     int           `mapstructure:"sample_size"`
}

type DatabaseConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type UIConfig struct {
	Colors UIColors `mapstructure:"colors"`
	// LinePixels converts terminal lines to the pixel units of [window].
	LinePixels int `mapstructure:"line_pixels"`
}

type UIColors struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
	Accent    string `mapstructure:"accent"`
	Text      string `mapstructure:"text"`
	Muted     string `mapstructure:"muted"`
	Error     string `mapstructure:"error"`
	Success   string `mapstructure:"success"`
}

type MediaConfig struct {
	Darwin        []string `mapstructure:"darwin"`
	Linux         []string `mapstructure:"linux"`
	Windows       []string `mapstructure:"windows"`
	DefaultOpener string   `mapstructure:"default_opener"`
}

type KeyConfig struct {
	Bindings KeyBindings `mapstructure:"bindings"`
}

type KeyBindings struct {
	Quit   string `mapstructure:"quit"`
	Search string `mapstructure:"search"`
	Open   string `mapstructure:"open"`
	Copy   string `mapstructure:"copy"`
	Errors string `mapstructure:"errors"`
	Clear  string `mapstructure:"clear"`
	Back   string `mapstructure:"back"`
	Help   string `mapstructure:"help"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Search: SearchConfig{
			Source:            "container",
			BaseURL:           "https://m.weibo.cn/api/container/getIndex",
			WarmupURL:         "https://m.weibo.cn/",
			FeedURL:           "https://www.reddit.com/r/{keyword}/.rss",
			TTL:               300 * time.Second,
			CacheEntries:      50,
			Attempts:          3,
			BackoffStep:       1200 * time.Millisecond,
			WarmupOnThrottle:  true,
			ConnectTimeout:    2 * time.Second,
			ReadTimeout:       5 * time.Second,
			RequestsPerSecond: 2,
			Burst:             3,
		},
		Fetch: FetchConfig{
			Workers:        8,
			ConnectTimeout: 2 * time.Second,
			ReadTimeout:    5 * time.Second,
			Attempts:       2,
			MaxBytes:       10 << 20,
			ProbeBytes:     64 << 10,
			ChunkSize:      16 << 10,
			CancelGrace:    100 * time.Millisecond,
			Variant:        "display",
		},
		Cache: CacheConfig{
			ByteBudget: 50 << 20,
		},
		Image: ImageConfig{
			MaxPixels:    24_000_000,
			MaxDimension: 12_000,
		},
		Window: WindowConfig{
			Columns:           4,
			RowHeight:         80,
			BufferRows:        1,
			LoadMoreThreshold: 100,
		},
		Errors: ErrorsConfig{
			ReportInterval: 2 * time.Second,
			SampleSize:     5,
		},
		Database: DatabaseConfig{
			Path:    filepath.Join(homeDir, ".moji", "history.db"),
			Timeout: 1 * time.Second,
		},
		Log: LogConfig{
			Level: "off",
			File:  filepath.Join(homeDir, ".moji", "moji.log"),
		},
		UI: UIConfig{
			Colors: UIColors{
				Primary:   "#FF8C42",
				Secondary: "#4ECDC4",
				Accent:    "#FFD166",
				Text:      "#EAEAEA",
				Muted:     "#94A3B8",
				Error:     "#F87171",
				Success:   "#4ADE80",
			},
			LinePixels: 20,
		},
		Media: MediaConfig{
			Darwin:        []string{"qlmanage", "open"},
			Linux:         []string{"imv", "feh", "eog", "xdg-open"},
			Windows:       []string{"rundll32"},
			DefaultOpener: getDefaultOpener(),
		},
		Keys: KeyConfig{
			Bindings: KeyBindings{
				Quit:   "q",
				Search: "/",
				Open:   "o",
				Copy:   "y",
				Errors: "e",
				Clear:  "c",
				Back:   "esc",
				Help:   "?",
			},
		},
	}
}

func getDefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "windows":
		return "rundll32"
	default:
		return "xdg-open"
	}
}

// setDefaults registers every leaf of the default settings so MOJI_SECTION_KEY
// env vars and partial config files override individual keys.
func setDefaults(v *viper.Viper, cfg *Config) {
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, val := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if sub, ok := val.(map[string]interface{}); ok {
				walk(key, sub)
				continue
			}
			v.SetDefault(key, val)
		}
	}
	walk("", settings(cfg))
}

// Load reads configuration from configPath, or from ~/.config/moji/config.toml
// when empty. A .env file in the working directory is applied first so MOJI_*
// overrides can live next to the binary.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, defaultConfig())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join(homeDir, ".config", "moji"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MOJI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := expandPaths(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func expandPaths(cfg *Config) error {
	var err error
	if cfg.Database.Path, err = expandPath(cfg.Database.Path); err != nil {
		return fmt.Errorf("database path: %w", err)
	}
	if cfg.Log.File, err = expandPath(cfg.Log.File); err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" || path == ":memory:" {
		return path, nil
	}
	path, err := validation.ExpandHome(path)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return path, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, n int64) {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, n))
		}
	}

	positive("search.cache_entries", int64(c.Search.CacheEntries))
	positive("search.attempts", int64(c.Search.Attempts))
	positive("fetch.workers", int64(c.Fetch.Workers))
	positive("fetch.attempts", int64(c.Fetch.Attempts))
	positive("fetch.max_bytes", c.Fetch.MaxBytes)
	positive("fetch.chunk_size", int64(c.Fetch.ChunkSize))
	positive("cache.byte_budget", c.Cache.ByteBudget)
	positive("window.columns", int64(c.Window.Columns))
	positive("window.row_height", int64(c.Window.RowHeight))
	if c.Window.BufferRows < 0 {
		errs = append(errs, fmt.Errorf("window.buffer_rows must not be negative"))
	}
	if c.Search.TTL <= 0 {
		errs = append(errs, fmt.Errorf("search.ttl must be positive"))
	}
	if c.Cache.MaxItemBytes < 0 {
		errs = append(errs, fmt.Errorf("cache.max_item_bytes must not be negative"))
	}

	v := validation.ForHosts(c.Search.AllowPrivateHosts)
	if c.Search.Source == "container" || c.Search.Source == "" {
		if _, err := v.ValidateAndNormalize(c.Search.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("search.base_url: %w", err))
		}
	}
	if c.Search.Source == "feed" && !strings.Contains(c.Search.FeedURL, "{keyword}") {
		errs = append(errs, fmt.Errorf("search.feed_url must contain {keyword}"))
	}

	return errors.Join(errs...)
}

// settings renders cfg as nested maps keyed like the TOML file. Durations
// are strings for readability.
func settings(config *Config) map[string]interface{} {
	out := make(map[string]interface{})
	out["search"] = map[string]interface{}{
		"source":              config.Search.Source,
		"base_url":            config.Search.BaseURL,
		"warmup_url":          config.Search.WarmupURL,
		"feed_url":            config.Search.FeedURL,
		"ttl":                 config.Search.TTL.String(),
		"cache_entries":       config.Search.CacheEntries,
		"attempts":            config.Search.Attempts,
		"backoff_step":        config.Search.BackoffStep.String(),
		"warmup_on_throttle":  config.Search.WarmupOnThrottle,
		"connect_timeout":     config.Search.ConnectTimeout.String(),
		"read_timeout":        config.Search.ReadTimeout.String(),
		"requests_per_second": config.Search.RequestsPerSecond,
		"burst":               config.Search.Burst,
		"allow_private_hosts": config.Search.AllowPrivateHosts,
	}
	out["fetch"] = map[string]interface{}{
		"workers":         config.Fetch.Workers,
		"connect_timeout": config.Fetch.ConnectTimeout.String(),
		"read_timeout":    config.Fetch.ReadTimeout.String(),
		"attempts":        config.Fetch.Attempts,
		"max_bytes":       config.Fetch.MaxBytes,
		"probe_bytes":     config.Fetch.ProbeBytes,
		"chunk_size":      config.Fetch.ChunkSize,
		"cancel_grace":    config.Fetch.CancelGrace.String(),
		"variant":         config.Fetch.Variant,
	}
	out["cache"] = map[string]interface{}{
		"byte_budget":    config.Cache.ByteBudget,
		"max_item_bytes": config.Cache.MaxItemBytes,
	}
	out["image"] = map[string]interface{}{
		"max_pixels":    config.Image.MaxPixels,
		"max_dimension": config.Image.MaxDimension,
	}
	out["window"] = map[string]interface{}{
		"columns":             config.Window.Columns,
		"row_height":          config.Window.RowHeight,
		"buffer_rows":         config.Window.BufferRows,
		"load_more_threshold": config.Window.LoadMoreThreshold,
	}
	out["errors"] = map[string]interface{}{
		"report_interval": config.Errors.ReportInterval.String(),
		"sample_size":     config.Errors.SampleSize,
	}
	out["database"] = map[string]interface{}{
		"path":    config.Database.Path,
		"timeout": config.Database.Timeout.String(),
	}
	out["log"] = map[string]interface{}{
		"level": config.Log.Level,
		"file":  config.Log.File,
	}
	c := config.UI.Colors
	out["ui"] = map[string]interface{}{
		"line_pixels": config.UI.LinePixels,
		"colors": map[string]interface{}{
			"primary":   c.Primary,
			"secondary": c.Secondary,
			"accent":    c.Accent,
			"text":      c.Text,
			"muted":     c.Muted,
			"error":     c.Error,
			"success":   c.Success,
		},
	}
	out["media"] = map[string]interface{}{
		"darwin":         config.Media.Darwin,
		"linux":          config.Media.Linux,
		"windows":        config.Media.Windows,
		"default_opener": config.Media.DefaultOpener,
	}
	b := config.Keys.Bindings
	out["keys"] = map[string]interface{}{
		"bindings": map[string]interface{}{
			"quit":   b.Quit,
			"search": b.Search,
			"open":   b.Open,
			"copy":   b.Copy,
			"errors": b.Errors,
			"clear":  b.Clear,
			"back":   b.Back,
			"help":   b.Help,
		},
	}
	return out
}

func Save(config *Config, path string) error {
	v := viper.New()
	for k, val := range settings(config) {
		v.Set(k, val)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
