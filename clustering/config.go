package clustering

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "config.json"

// Environment variables consulted by ApplyEnv.
const (
	EnvOrtDLL        = "PROPCLUSTER_ORT_DLL"
	EnvModelPath     = "PROPCLUSTER_MODEL_PATH"
	EnvTokenizerPath = "PROPCLUSTER_TOKENIZER_PATH"
	EnvCacheDir      = "PROPCLUSTER_CACHE_DIR"
	EnvCacheDB       = "PROPCLUSTER_CACHE_DB"
	EnvEmbedder      = "PROPCLUSTER_EMBEDDER"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvLogLevel      = "PROPCLUSTER_LOG_LEVEL"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig loads configuration from the given path or the default config.json.
// A missing file yields the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = defaultConfigFile
	}
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyDefaults()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// SaveConfig persists configuration to disk, as YAML when path ends in .yaml/.yml.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	cfg.ApplyDefaults()
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// LoadEnv reads an optional .env file into the process environment. A missing
// file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides embedder and log settings from the environment.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Embedder.OrtDLL, EnvOrtDLL)
	setFromEnv(&c.Embedder.ModelPath, EnvModelPath)
	setFromEnv(&c.Embedder.TokenizerPath, EnvTokenizerPath)
	setFromEnv(&c.Embedder.CacheDir, EnvCacheDir)
	setFromEnv(&c.Embedder.CacheDB, EnvCacheDB)
	setFromEnv(&c.Embedder.Provider, EnvEmbedder)
	setFromEnv(&c.Embedder.APIKey, EnvOpenAIKey)
	setFromEnv(&c.Log.Level, EnvLogLevel)
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// Validate reports the first setting that cannot drive a run.
func (c Config) Validate() error {
	switch {
	case c.Cluster.PrimaryThreshold <= 0 || c.Cluster.PrimaryThreshold > 1:
		return fmt.Errorf("%w: primaryThreshold %v outside (0,1]", ErrInvalidConfig, c.Cluster.PrimaryThreshold)
	case c.Cluster.SecondaryThreshold <= 0 || c.Cluster.SecondaryThreshold > 1:
		return fmt.Errorf("%w: secondaryThreshold %v outside (0,1]", ErrInvalidConfig, c.Cluster.SecondaryThreshold)
	case c.Cluster.MinCommunitySize < 1:
		return fmt.Errorf("%w: minCommunitySize must be at least 1", ErrInvalidConfig)
	case c.Cluster.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.Frequency.FileCount < 0:
		return fmt.Errorf("%w: fileCount must not be negative", ErrInvalidConfig)
	case c.Frequency.ThresholdPercent < 0:
		return fmt.Errorf("%w: thresholdPercent must not be negative", ErrInvalidConfig)
	}
	switch c.Embedder.Provider {
	case ProviderONNX, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: unknown embedder provider %q", ErrInvalidConfig, c.Embedder.Provider)
	}
	return nil
}
