package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"eventmap/internal/model"
)

// Defaults shared by DefaultConfig and Normalize.
const (
	DefaultListen          = "127.0.0.1:8080"
	DefaultLocateZoom      = 17
	DefaultTileURL         = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultAttribution     = "&copy; OpenStreetMap contributors"
	DefaultMinZoom         = 2
	DefaultMaxZoom         = 18
	DefaultInitialZoom     = 2
	DefaultViewIdleMinutes = 30
	DefaultSweepCron       = "*/5 * * * *"
	DefaultFeedHorizonDays = 90
	DefaultSnapshotWidth   = 1280
	DefaultSnapshotHeight  = 800
)

var (
	// DefaultCenter is the student union coordinate the tracker centers on at mount.
	DefaultCenter = model.Coordinate{Lat: 35.30881988721451, Lng: -80.73359802880277}
	// DefaultInitialCenter is the map container center before the tracker recenters.
	DefaultInitialCenter = model.Coordinate{Lat: 35.307, Lng: -80.735}
)

// MapConfig describes the tile layer and zoom limits handed to the UI.
type MapConfig struct {
	TileURL       string           `yaml:"tile_url" json:"tile_url"`
	Attribution   string           `yaml:"attribution" json:"attribution"`
	MinZoom       int              `yaml:"min_zoom" json:"min_zoom"`
	MaxZoom       int              `yaml:"max_zoom" json:"max_zoom"`
	InitialZoom   int              `yaml:"initial_zoom" json:"initial_zoom"`
	InitialCenter model.Coordinate `yaml:"initial_center" json:"initial_center"`
}

// FeedConfig describes a single iCalendar source whose geo-tagged VEVENTs are
// appended to the event store at startup.
type FeedConfig struct {
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// URL is an http(s) endpoint or a local file path.
	URL string `yaml:"url" json:"url"`
	// HorizonDays bounds recurrence expansion from now.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`
}

// SnapshotConfig controls the headless Chromium preview capture.
type SnapshotConfig struct {
	// Cron schedules periodic captures; empty disables them.
	Cron       string `yaml:"cron" json:"cron"`
	OutputPath string `yaml:"output_path" json:"output_path"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DataPath overrides the bundled events.json when set.
	DataPath string `yaml:"data_path" json:"data_path"`

	// DefaultCenter is where a freshly mounted view is centered.
	DefaultCenter model.Coordinate `yaml:"default_center" json:"default_center"`

	// LocateZoom is the zoom used on mount and after every successful fix.
	LocateZoom int `yaml:"locate_zoom" json:"locate_zoom"`

	Map MapConfig `yaml:"map" json:"map"`

	// ExtraEvents are appended after the base dataset, in order.
	ExtraEvents []model.Event `yaml:"extra_events" json:"extra_events"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// ViewIdleMinutes is how long an untouched view survives before it is swept.
	ViewIdleMinutes int `yaml:"view_idle_minutes" json:"view_idle_minutes"`

	// SweepCron schedules the idle view sweep.
	SweepCron string `yaml:"sweep_cron" json:"sweep_cron"`

	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen:        DefaultListen,
		LogLevel:      "info",
		DefaultCenter: DefaultCenter,
		LocateZoom:    DefaultLocateZoom,
		Map: MapConfig{
			TileURL:       DefaultTileURL,
			Attribution:   DefaultAttribution,
			MinZoom:       DefaultMinZoom,
			MaxZoom:       DefaultMaxZoom,
			InitialZoom:   DefaultInitialZoom,
			InitialCenter: DefaultInitialCenter,
		},
		ExtraEvents:     []model.Event{},
		Feeds:           []FeedConfig{},
		ViewIdleMinutes: DefaultViewIdleMinutes,
		SweepCron:       DefaultSweepCron,
		Snapshot: SnapshotConfig{
			OutputPath: "./cache/preview.png",
			Width:      DefaultSnapshotWidth,
			Height:     DefaultSnapshotHeight,
		},
	}
	return cfg
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DefaultCenter == (model.Coordinate{}) {
		c.DefaultCenter = DefaultCenter
	}
	if c.LocateZoom <= 0 {
		c.LocateZoom = DefaultLocateZoom
	}

	if c.Map.TileURL == "" {
		c.Map.TileURL = DefaultTileURL
	}
	if c.Map.Attribution == "" {
		c.Map.Attribution = DefaultAttribution
	}
	if c.Map.MinZoom <= 0 {
		c.Map.MinZoom = DefaultMinZoom
	}
	if c.Map.MaxZoom <= 0 || c.Map.MaxZoom < c.Map.MinZoom {
		c.Map.MaxZoom = DefaultMaxZoom
	}
	if c.Map.InitialZoom < c.Map.MinZoom || c.Map.InitialZoom > c.Map.MaxZoom {
		c.Map.InitialZoom = c.Map.MinZoom
	}
	if c.Map.InitialCenter == (model.Coordinate{}) {
		c.Map.InitialCenter = DefaultInitialCenter
	}

	if c.ExtraEvents == nil {
		c.ExtraEvents = []model.Event{}
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].HorizonDays <= 0 {
			c.Feeds[i].HorizonDays = DefaultFeedHorizonDays
		}
	}

	if c.ViewIdleMinutes <= 0 {
		c.ViewIdleMinutes = DefaultViewIdleMinutes
	}
	if c.SweepCron == "" {
		c.SweepCron = DefaultSweepCron
	}
	if c.Snapshot.OutputPath == "" {
		c.Snapshot.OutputPath = "./cache/preview.png"
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = DefaultSnapshotWidth
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = DefaultSnapshotHeight
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventmap-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
