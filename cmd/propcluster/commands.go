package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"yashubustudio/propcluster/clustering"
	"yashubustudio/propcluster/emb"
	"yashubustudio/propcluster/internal/logging"
	"yashubustudio/propcluster/internal/openai"
)

// flagSource is the part of *cli.Command read when applying overrides.
type flagSource interface {
	IsSet(name string) bool
	String(name string) string
	Float(name string) float64
	Int(name string) int
	Bool(name string) bool
}

// loadSettings reads the env file, the config file and the environment, in
// that order, then applies the logging flags.
func loadSettings(cmd flagSource) (clustering.Config, error) {
	if err := clustering.LoadEnv(cmd.String("env")); err != nil {
		return clustering.Config{}, err
	}
	cfg, err := clustering.LoadConfig(cmd.String("config"))
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	return cfg, nil
}

// applyClusterFlags overrides cfg with every cluster flag given explicitly.
func applyClusterFlags(cfg *clustering.Config, cmd flagSource) {
	str := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = strings.TrimSpace(cmd.String(name))
		}
	}
	str("input", &cfg.Input.Path)
	str("field", &cfg.Input.Field)
	str("term-column", &cfg.Input.TermColumn)
	str("count-column", &cfg.Input.CountColumn)
	str("output", &cfg.Output.Path)
	str("output-dir", &cfg.Output.Dir)
	str("embedder", &cfg.Embedder.Provider)
	str("cache-dir", &cfg.Embedder.CacheDir)
	str("cache-db", &cfg.Embedder.CacheDB)
	if cmd.IsSet("primary-threshold") {
		cfg.Cluster.PrimaryThreshold = float32(cmd.Float("primary-threshold"))
	}
	if cmd.IsSet("secondary-threshold") {
		cfg.Cluster.SecondaryThreshold = float32(cmd.Float("secondary-threshold"))
	}
	if cmd.IsSet("min-community-size") {
		cfg.Cluster.MinCommunitySize = cmd.Int("min-community-size")
	}
	if cmd.IsSet("workers") {
		cfg.Cluster.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("file-count") {
		cfg.Frequency.FileCount = cmd.Float("file-count")
	}
	if cmd.IsSet("threshold-percent") {
		cfg.Frequency.ThresholdPercent = cmd.Float("threshold-percent")
	}
	if cmd.IsSet("separate-singletons") {
		cfg.Cluster.SeparateSingletons = cmd.Bool("separate-singletons")
	}
}

func clusterAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyClusterFlags(&cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.New(cfg.Log, os.Stderr)

	store, err := clustering.LoadTerms(cfg.Input.Path, cfg.Input.Field, clustering.TableOptions{
		TermColumn:  cfg.Input.TermColumn,
		CountColumn: cfg.Input.CountColumn,
	})
	if err != nil {
		return fmt.Errorf("read input terms: %w", err)
	}
	logger.Info().Str("input", cfg.Input.Path).Int("terms", store.Len()).Msg("loaded vocabulary")

	embedder, err := buildEmbedder(ctx, cfg.Embedder)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	service, err := clustering.NewService(embedder, clustering.NewThresholdDetector(), cfg, logger)
	if err != nil {
		embedder.Close()
		return fmt.Errorf("init service: %w", err)
	}
	defer service.Close()

	res, err := service.Run(ctx, store)
	if err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	outputPath, err := resolveOutputPath(cfg.Output, res.RunID)
	if err != nil {
		return err
	}
	if err := clustering.WriteResultCSV(outputPath, res.Rows); err != nil {
		return err
	}
	logger.Info().
		Str("output", outputPath).
		Int("clusters", res.Summary.NumberedClusters).
		Int("rows", res.Summary.Rows).
		Msg("result saved")
	if cmd.Bool("stdout") {
		return clustering.WriteRows(os.Stdout, res.Rows)
	}
	return nil
}

func resolveOutputPath(out clustering.OutputConfig, runID string) (string, error) {
	if out.Path != "" {
		absPath, err := filepath.Abs(out.Path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		return absPath, nil
	}
	dir := out.Dir
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	return clustering.DefaultOutputPath(absDir, runID), nil
}

// buildEmbedder wires the configured backend behind the vector cache.
func buildEmbedder(ctx context.Context, cfg clustering.EmbedderConfig) (*clustering.CachedEmbedder, error) {
	var backend clustering.Backend
	switch cfg.Provider {
	case clustering.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		backend = openai.NewEmbedder(cfg.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAIModel),
			openai.WithEmbeddingDimension(cfg.OpenAIDimension))
	default:
		enc := &emb.Encoder{}
		if err := enc.Init(emb.Config{
			OrtDLL:        cfg.OrtDLL,
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			MaxSeqLen:     cfg.MaxSeqLen,
			Dimension:     cfg.Dimension,
			ModelID:       cfg.ModelID,
		}); err != nil {
			return nil, err
		}
		backend = enc
	}

	store, err := openVectorCache(ctx, cfg, backend.ModelID())
	if err != nil {
		backend.Close()
		return nil, err
	}
	return clustering.NewCachedEmbedder(backend, store)
}

func openVectorCache(ctx context.Context, cfg clustering.EmbedderConfig, modelID string) (clustering.VectorCache, error) {
	switch {
	case cfg.CacheDB != "":
		return clustering.OpenSQLiteCache(ctx, cfg.CacheDB, modelID)
	case cfg.CacheDir != "":
		return clustering.NewDirCache(cfg.CacheDir)
	default:
		return clustering.NopCache{}, nil
	}
}

func extractAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log, os.Stderr)
	return runExtract(cmd.String("input"), cmd.StringSlice("keys"), cmd.String("output-dir"), logger)
}

func runExtract(input string, keys []string, outDir string, logger zerolog.Logger) error {
	ext, err := clustering.ExtractFields(input, keys, logger)
	if err != nil {
		return err
	}
	found := false
	for _, k := range ext.Keys {
		n := len(ext.Unique(k))
		logger.Info().Str("key", k).Int("unique", n).Int("occurrences", ext.Occurrences(k)).Msg("extracted field")
		found = found || n > 0
	}
	if !found {
		logger.Warn().Msg("no values extracted, nothing written")
		return nil
	}
	if err := clustering.WriteExtraction(outDir, ext); err != nil {
		return err
	}
	logger.Info().Str("file", filepath.Join(outDir, clustering.SummaryFileName)).Msg("extraction saved")
	return nil
}

func configInitAction(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	var cfg clustering.Config
	cfg.ApplyDefaults()
	if err := clustering.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", path)
	return nil
}
