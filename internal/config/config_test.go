package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultCenter, cfg.DefaultCenter)
	assert.Equal(t, 17, cfg.LocateZoom)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: ":9000"
map:
  max_zoom: 1
extra_events:
  - name: "Open House"
    start: "2025-04-01T10:00:00-04:00"
    end: "2025-04-01T12:00:00-04:00"
    lat: 35.3
    lng: -80.7
feeds:
  - id: campus
    url: ./campus.ics
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, DefaultTileURL, cfg.Map.TileURL)
	assert.Equal(t, DefaultAttribution, cfg.Map.Attribution)
	assert.Equal(t, DefaultMaxZoom, cfg.Map.MaxZoom, "max below min falls back")
	assert.Equal(t, DefaultInitialZoom, cfg.Map.InitialZoom)
	assert.Equal(t, DefaultInitialCenter, cfg.Map.InitialCenter)
	require.Len(t, cfg.ExtraEvents, 1)
	assert.Equal(t, "Open House", cfg.ExtraEvents[0].Name)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, DefaultFeedHorizonDays, cfg.Feeds[0].HorizonDays)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTripKeepsBasicAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.BasicAuth)
	assert.Equal(t, "admin", loaded.BasicAuth.Username)
}

func TestSaveRejectsEmptyInputs(t *testing.T) {
	assert.Error(t, Save("", DefaultConfig()))
	assert.Error(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil))
	_, err := Load("")
	assert.Error(t, err)
}
