package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/normalize"
	"github.com/sells-group/repreneur-cli/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Sources: config.SourcesConfig{
			TimeoutSecs: 30,
			Enabled:     []string{"pappers", "actify", "bodacc"},
			Pappers:     config.PappersConfig{BaseURL: "https://api.pappers.test/v2", RateLimit: 2},
			Actify:      config.ActifyConfig{BaseURL: "https://actify.test", RateLimit: 1},
			Bodacc:      config.BodaccConfig{BaseURL: "https://bodacc.test/api", RateLimit: 5},
		},
		Classify: config.ClassifyConfig{
			Succession: config.SuccessionConfig{MinDirectorAge: 55, FoundedBeforeYear: 2000, RevenueMin: 500000, RevenueMax: 5000000},
			Distressed: config.DistressedConfig{HalfLifeDays: 90},
			Weights:    map[string]float64{"succession": 60, "distressed": 40},
		},
		Dedup:  config.DedupConfig{FuzzyThreshold: 0.85},
		Sink:   config.SinkConfig{SnapshotPath: filepath.Join(dir, "candidates.json"), XLSXPath: filepath.Join(dir, "candidates.xlsx")},
		Store:  config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "runs.db")},
		Server: config.ServerConfig{Port: 8080},
	}
}

func TestBuildRegistry_Order(t *testing.T) {
	reg, err := buildRegistry(testConfig(t), normalize.DefaultSectors())
	require.NoError(t, err)
	assert.Equal(t, []string{"pappers", "actify", "bodacc"}, reg.Names())
}

func TestBuildRegistry_InvalidActifyURL(t *testing.T) {
	c := testConfig(t)
	c.Sources.Actify.BaseURL = "://nope"

	_, err := buildRegistry(c, normalize.DefaultSectors())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actify")
}

func TestSelectAdapters(t *testing.T) {
	c := testConfig(t)

	adapters, err := selectAdapters(c, normalize.DefaultSectors(), []string{"bodacc", "pappers"})
	require.NoError(t, err)
	require.Len(t, adapters, 2)
	assert.Equal(t, "pappers", adapters[0].Name())
	assert.Equal(t, "bodacc", adapters[1].Name())

	c.Sources.Enabled = []string{"actify"}
	adapters, err = selectAdapters(c, normalize.DefaultSectors(), nil)
	require.NoError(t, err)
	require.Len(t, adapters, 1)
	assert.Equal(t, "actify", adapters[0].Name())

	_, err = selectAdapters(c, normalize.DefaultSectors(), []string{"infogreffe"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "infogreffe")
}

func TestLoadSectors_Default(t *testing.T) {
	s, err := loadSectors(testConfig(t))
	require.NoError(t, err)
	assert.Equal(t, normalize.DefaultSectors().Len(), s.Len())
}

func TestLoadSectors_MissingFile(t *testing.T) {
	c := testConfig(t)
	c.Normalize.SectorsFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := loadSectors(c)
	assert.Error(t, err)
}

func TestInitRunEnv_DryRunSkipsLedger(t *testing.T) {
	c := testConfig(t)

	env, err := initRunEnv(context.Background(), c, nil, "", true)
	require.NoError(t, err)
	defer env.Close()

	assert.IsType(t, store.Noop{}, env.Store)
	assert.NotNil(t, env.Pipeline)
	assert.NotNil(t, env.Registry)
	assert.NoFileExists(t, c.Store.DatabaseURL)
}

func TestInitRunEnv_OpensLedger(t *testing.T) {
	c := testConfig(t)

	env, err := initRunEnv(context.Background(), c, []string{"bodacc"}, "", false)
	require.NoError(t, err)
	defer env.Close()

	_, ok := env.Store.(*store.SQLiteStore)
	assert.True(t, ok)
}

func TestInitRunEnv_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Dedup.FuzzyThreshold = 0

	_, err := initRunEnv(context.Background(), c, nil, "", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fuzzy_threshold")
}
