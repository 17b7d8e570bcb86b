package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/propcluster/clustering"
)

type fakeFlags map[string]any

func (f fakeFlags) IsSet(name string) bool {
	_, ok := f[name]
	return ok
}

func (f fakeFlags) String(name string) string {
	s, _ := f[name].(string)
	return s
}

func (f fakeFlags) Float(name string) float64 {
	v, _ := f[name].(float64)
	return v
}

func (f fakeFlags) Int(name string) int {
	v, _ := f[name].(int)
	return v
}

func (f fakeFlags) Bool(name string) bool {
	v, _ := f[name].(bool)
	return v
}

func TestApplyClusterFlagsOnlyTouchesSetFlags(t *testing.T) {
	var cfg clustering.Config
	cfg.ApplyDefaults()
	applyClusterFlags(&cfg, fakeFlags{
		"input":             " terms.json ",
		"primary-threshold": 0.8,
		"workers":           4,
		"file-count":        200.0,
		"embedder":          "openai",
	})
	assert.Equal(t, "terms.json", cfg.Input.Path)
	assert.InDelta(t, 0.8, cfg.Cluster.PrimaryThreshold, 1e-6)
	assert.InDelta(t, 0.95, cfg.Cluster.SecondaryThreshold, 1e-6)
	assert.Equal(t, 4, cfg.Cluster.Workers)
	assert.Equal(t, 200.0, cfg.Frequency.FileCount)
	assert.Equal(t, 0.01, cfg.Frequency.ThresholdPercent)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, "names_frequency", cfg.Input.Field)
}

func TestLoadSettingsFlagsOverrideLogLevel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: warn\n"), 0o644))
	t.Setenv(clustering.EnvLogLevel, "")

	cfg, err := loadSettings(fakeFlags{"config": cfgPath, "env": filepath.Join(dir, "missing.env"), "log-format": "json"})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveOutputPath(clustering.OutputConfig{Dir: dir}, "RUN1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "property_clusters_RUN1.csv"), got)

	explicit := filepath.Join(dir, "out.csv")
	got, err = resolveOutputPath(clustering.OutputConfig{Path: explicit, Dir: "ignored"}, "RUN1")
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}

func TestRunExtractWritesFiles(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.json"),
		[]byte(`{"content":{"final_structured_response":{"items":[{"name":"red"},{"name":"blue"},{"name":"red"}]}}}`), 0o644))

	require.NoError(t, runExtract(in, []string{"name"}, out, zerolog.Nop()))
	assert.FileExists(t, filepath.Join(out, clustering.SummaryFileName))
	assert.FileExists(t, filepath.Join(out, "name.txt"))
	assert.FileExists(t, filepath.Join(out, "name_frequency.txt"))

	store, err := clustering.LoadFrequencyJSON(filepath.Join(out, clustering.SummaryFileName), "name_frequency")
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "blue"}, store.Terms())
	assert.Equal(t, 2, store.Count("red"))
}

func TestRunExtractNothingFound(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.WriteFile(filepath.Join(in, "a.json"), []byte(`{"other":"x"}`), 0o644))
	require.NoError(t, runExtract(in, []string{"name"}, out, zerolog.Nop()))
	assert.NoDirExists(t, out)
}

func TestNewAppHasCommands(t *testing.T) {
	app := newApp()
	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"cluster", "extract", "config"}, names)
}
