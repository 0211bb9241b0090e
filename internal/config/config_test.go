package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// chdir moves into an empty directory so no stray moodsense.yaml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, BackendWorker, cfg.Classifier.Backend)
	assert.Equal(t, 120*time.Second, cfg.Sampling.Budget)
	assert.Equal(t, 500*time.Millisecond, cfg.Sampling.Interval)
	assert.Equal(t, 3*time.Second, cfg.Sampling.StopTimeout)
	assert.Equal(t, 60*time.Second, cfg.Questions.Timeout)
	assert.Equal(t, 5, cfg.Questions.Count)
	assert.Equal(t, "10", cfg.Student.Grade)
	assert.Empty(t, cfg.File)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "moodsense.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
sampling:
  budget: 45s
  interval: 250ms
classifier:
  backend: http
  url: http://models:5000
questions:
  count: 3
`), 0o644))

	t.Setenv("MOODSENSE_QUESTIONS_COUNT", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--db", "postgres://x@localhost/db"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "moodsense.yaml", filepath.Base(cfg.File))
	assert.Equal(t, "debug", cfg.Log.Level, "unset flag must not override the file")
	assert.Equal(t, 45*time.Second, cfg.Sampling.Budget)
	assert.Equal(t, 250*time.Millisecond, cfg.Sampling.Interval)
	assert.Equal(t, BackendHTTP, cfg.Classifier.Backend)
	assert.Equal(t, "http://models:5000", cfg.Classifier.URL)
	assert.Equal(t, 7, cfg.Questions.Count, "env overrides the file")
	assert.Equal(t, "postgres://x@localhost/db", cfg.DB.URL)
}

func TestLoadExplicitPathMissing(t *testing.T) {
	dir := chdir(t)
	_, err := Load(filepath.Join(dir, "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t)
	base, err := Load("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero budget", func(c *Config) { c.Sampling.Budget = 0 }},
		{"negative interval", func(c *Config) { c.Sampling.Interval = -time.Second }},
		{"zero stop timeout", func(c *Config) { c.Sampling.StopTimeout = 0 }},
		{"zero capture", func(c *Config) { c.Capture.Duration = 0 }},
		{"zero fps", func(c *Config) { c.Camera.FPS = 0 }},
		{"unknown backend", func(c *Config) { c.Classifier.Backend = "gpu" }},
		{"no questions", func(c *Config) { c.Questions.Count = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, base.Validate())
}

func TestYAML(t *testing.T) {
	chdir(t)
	cfg, err := Load("", nil)
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)

	var round map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &round))
	assert.Equal(t, "2m0s", round["sampling"]["budget"])
	assert.Equal(t, "worker", round["classifier"]["backend"])
	assert.NotContains(t, string(out), "file:")
}
