package pubcover

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/eringen/pubcover/ogimage"
)

// Environment variables that override the config file.
const (
	EnvStoreURL     = "PUBCOVER_STORE_URL"
	EnvStoreToken   = "PUBCOVER_STORE_TOKEN"
	EnvServerToken  = "PUBCOVER_SERVER_TOKEN"
	EnvDatabasePath = "PUBCOVER_DATABASE_PATH"
	EnvLogLevel     = "PUBCOVER_LOG_LEVEL"
)

// DefaultConfigFile is looked up in the working directory when no path is given.
const DefaultConfigFile = "pubcover.toml"

// CanvasConfig describes the cover canvas and its colours.
type CanvasConfig struct {
	Width           int    `toml:"width"`
	Height          int    `toml:"height"`
	X0              int    `toml:"x0"`
	Y0              int    `toml:"y0"`
	Background      string `toml:"background"`
	Fill            string `toml:"fill"`
	Stroke          string `toml:"stroke"`
	StrokeWidth     int    `toml:"stroke_width"`
	BackgroundImage string `toml:"background_image"`
	FontFile        string `toml:"font_file"`
}

// OutputConfig controls encoding and local output.
type OutputConfig struct {
	Format      string `toml:"format"`
	Density     int    `toml:"density"`
	JPEGQuality int    `toml:"jpeg_quality"`
	Dir         string `toml:"dir"`
}

// StoreConfig points at the remote asset server.
type StoreConfig struct {
	URL            string `toml:"url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// SourceConfig says where titles come from.
type SourceConfig struct {
	DatabasePath string `toml:"database_path"`
	TitlesFile   string `toml:"titles_file"`
}

// ServerConfig configures `pubcover serve`.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	DatabasePath string `toml:"database_path"`
	Token        string `toml:"token"`
	MaxUploadMB  int    `toml:"max_upload_mb"`
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	Workers  int    `toml:"workers"`
	LockFile string `toml:"lock_file"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config holds all configuration for pubcover.
type Config struct {
	Canvas  CanvasConfig  `toml:"canvas"`
	Output  OutputConfig  `toml:"output"`
	Store   StoreConfig   `toml:"store"`
	Source  SourceConfig  `toml:"source"`
	Server  ServerConfig  `toml:"server"`
	Batch   BatchConfig   `toml:"batch"`
	Logging LoggingConfig `toml:"logging"`
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func (c *Config) setDefaults() {
	if c.Canvas.Width == 0 {
		c.Canvas.Width = ogimage.CanvasWidth
	}
	if c.Canvas.Height == 0 {
		c.Canvas.Height = ogimage.CanvasHeight
	}
	if c.Canvas.X0 == 0 {
		c.Canvas.X0 = 80
	}
	if c.Canvas.Y0 == 0 {
		c.Canvas.Y0 = 80
	}
	if c.Canvas.Background == "" {
		c.Canvas.Background = "#0f172a"
	}
	if c.Canvas.Fill == "" {
		c.Canvas.Fill = "#ffffff"
	}
	if c.Canvas.Stroke == "" {
		c.Canvas.Stroke = "#00000066"
	}
	if c.Canvas.StrokeWidth == 0 {
		c.Canvas.StrokeWidth = 12
	}
	if c.Output.Format == "" {
		c.Output.Format = string(ogimage.FormatPNG)
	}
	if c.Output.Density == 0 {
		c.Output.Density = 1
	}
	if c.Output.JPEGQuality == 0 {
		c.Output.JPEGQuality = 90
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "public/og"
	}
	if c.Store.TimeoutSeconds == 0 {
		c.Store.TimeoutSeconds = 30
	}
	if c.Source.DatabasePath == "" {
		c.Source.DatabasePath = "data/blog.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":3100"
	}
	if c.Server.DatabasePath == "" {
		c.Server.DatabasePath = "data/assets.db"
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 10
	}
	if c.Batch.Workers == 0 {
		c.Batch.Workers = 4
	}
	if c.Batch.LockFile == "" {
		c.Batch.LockFile = "data/pubcover.lock"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// LoadConfig reads path, applies defaults and environment overrides, and
// validates the result. An empty path tries DefaultConfigFile. A missing file
// is not an error; exists reports whether one was read.
func LoadConfig(path string) (cfg *Config, exists bool, err error) {
	cfg = &Config{}
	if path == "" {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, false, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", path, err)
		}
		exists = true
	}
	cfg.setDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, exists, err
	}
	return cfg, exists, nil
}

func (c *Config) applyEnv() {
	c.Store.URL = EnvOr(EnvStoreURL, c.Store.URL)
	c.Store.Token = EnvOr(EnvStoreToken, c.Store.Token)
	c.Server.Token = EnvOr(EnvServerToken, c.Server.Token)
	c.Source.DatabasePath = EnvOr(EnvDatabasePath, c.Source.DatabasePath)
	c.Logging.Level = EnvOr(EnvLogLevel, c.Logging.Level)
}

// Region returns the text region described by the canvas section.
func (c *Config) Region() ogimage.Region {
	return ogimage.Region{
		Width:  c.Canvas.Width,
		Height: c.Canvas.Height,
		X0:     c.Canvas.X0,
		Y0:     c.Canvas.Y0,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Region().Validate(); err != nil {
		return fmt.Errorf("canvas: %w", err)
	}
	for name, v := range map[string]string{
		"background": c.Canvas.Background,
		"fill":       c.Canvas.Fill,
		"stroke":     c.Canvas.Stroke,
	} {
		if _, err := ogimage.ParseHexColor(v); err != nil {
			return fmt.Errorf("canvas.%s: %w", name, err)
		}
	}
	if c.Canvas.StrokeWidth < 0 {
		return fmt.Errorf("canvas.stroke_width must not be negative")
	}
	if _, err := ogimage.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Output.Density < 1 || c.Output.Density > ogimage.MaxDensity {
		return fmt.Errorf("output.density must be between 1 and %d", ogimage.MaxDensity)
	}
	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be between 1 and 100")
	}
	if c.Store.TimeoutSeconds < 0 {
		return fmt.Errorf("store.timeout_seconds must not be negative")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be at least 1")
	}
	return nil
}

// StoreTimeout returns the per-request timeout for the asset server client.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

// RendererOptions builds renderer options, loading the font and background
// image files when configured.
func (c *Config) RendererOptions() (ogimage.Options, error) {
	if err := c.Validate(); err != nil {
		return ogimage.Options{}, err
	}
	bg, err := ogimage.ParseHexColor(c.Canvas.Background)
	if err != nil {
		return ogimage.Options{}, fmt.Errorf("canvas.background: %w", err)
	}
	fill, err := ogimage.ParseHexColor(c.Canvas.Fill)
	if err != nil {
		return ogimage.Options{}, fmt.Errorf("canvas.fill: %w", err)
	}
	stroke, err := ogimage.ParseHexColor(c.Canvas.Stroke)
	if err != nil {
		return ogimage.Options{}, fmt.Errorf("canvas.stroke: %w", err)
	}
	format, err := ogimage.ParseFormat(c.Output.Format)
	if err != nil {
		return ogimage.Options{}, fmt.Errorf("output.format: %w", err)
	}

	opts := ogimage.Options{
		Region: c.Region(),
		Style: ogimage.Style{
			Background:  bg,
			Fill:        fill,
			Stroke:      stroke,
			StrokeWidth: c.Canvas.StrokeWidth,
		},
		Format:      format,
		Density:     c.Output.Density,
		JPEGQuality: c.Output.JPEGQuality,
	}
	if path := strings.TrimSpace(c.Canvas.FontFile); path != "" {
		f, err := ogimage.LoadFont(path)
		if err != nil {
			return ogimage.Options{}, err
		}
		opts.Font = f
	}
	if path := strings.TrimSpace(c.Canvas.BackgroundImage); path != "" {
		img, err := ogimage.LoadBackground(path)
		if err != nil {
			return ogimage.Options{}, err
		}
		opts.Background = img
	}
	return opts, nil
}

// WriteSampleConfig writes the bundled sample configuration to path.
func WriteSampleConfig(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check config path: %w", err)
		}
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(SampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance before
// the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStore uses an already opened Store instead of opening
// Server.DatabasePath.
func WithStore(s *Store) Option {
	return func(a *App) {
		a.Store = s
	}
}
