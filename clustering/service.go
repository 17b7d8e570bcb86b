package clustering

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one pipeline run.
type Result struct {
	RunID       string            `json:"runId"`
	Threshold   float64           `json:"threshold"`
	Primary     []PrimaryCluster  `json:"primary"`
	Unclustered []UnclusteredItem `json:"unclustered"`
	Final       []FinalCluster    `json:"final"`
	Rows        []Row             `json:"rows"`
	Summary     Summary           `json:"summary"`
}

// Service runs the two-round clustering pipeline over a TermStore.
type Service struct {
	embedder Embedder
	detector CommunityDetector
	cfg      Config
	logger   zerolog.Logger
}

// NewService constructs a service. A nil detector selects ThresholdDetector.
func NewService(embedder Embedder, detector CommunityDetector, cfg Config, logger zerolog.Logger) (*Service, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if detector == nil {
		detector = NewThresholdDetector()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{embedder: embedder, detector: detector, cfg: cfg, logger: logger}, nil
}

// Config returns a copy of the active configuration.
func (s *Service) Config() Config {
	return s.cfg.Clone()
}

// Close releases embedder resources.
func (s *Service) Close() error {
	return s.embedder.Close()
}

// Run embeds the vocabulary, clusters it twice, merges rare sub-clusters and
// aggregates the numbered table.
func (s *Service) Run(ctx context.Context, store *TermStore) (*Result, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: term store is nil", ErrInvalidInput)
	}
	started := time.Now()
	threshold := s.cfg.Frequency.ThresholdValue()
	res := &Result{RunID: newRunID(), Threshold: threshold}
	log := s.logger.With().Str("run", res.RunID).Logger()

	terms := store.Terms()
	log.Info().Int("terms", len(terms)).Int("occurrences", store.Total()).Float64("threshold", threshold).Msg("starting clustering run")
	if len(terms) == 0 {
		res.Rows, res.Summary = ResultAggregator{Threshold: threshold}.Aggregate(nil, nil, store)
		return res, nil
	}

	vectors, err := s.embedder.EmbedTexts(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("embed vocabulary: %w", err)
	}
	primary := PrimaryClusterer{
		Detector:  s.detector,
		MinSize:   s.cfg.Cluster.MinCommunitySize,
		Threshold: s.cfg.Cluster.PrimaryThreshold,
	}
	clusters, unclustered, err := primary.Cluster(terms, vectors, store)
	if err != nil {
		return nil, err
	}
	res.Primary = clusters
	log.Info().Int("clusters", len(clusters)).Int("unclustered", len(unclustered)).Msg("primary clustering done")

	finals, dropped, err := s.refineAll(ctx, log, clusters, store, threshold)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		if s.cfg.Cluster.RedirectsDropped() {
			unclustered = append(unclustered, dropped...)
			sort.SliceStable(unclustered, func(i, j int) bool {
				return store.Index(unclustered[i].Term) < store.Index(unclustered[j].Term)
			})
		} else {
			log.Warn().Int("terms", len(dropped)).Msg("dropping members of clusters without sub-clusters")
		}
	}
	res.Unclustered = unclustered
	res.Final = finals

	agg := ResultAggregator{Threshold: threshold, SeparateSingletons: s.cfg.Cluster.SeparateSingletons}
	res.Rows, res.Summary = agg.Aggregate(finals, unclustered, store)
	log.Info().
		Int("numbered", res.Summary.NumberedClusters).
		Int("singletons", res.Summary.PromotedSingletons).
		Int("others", res.Summary.OthersSize).
		Dur("elapsed", time.Since(started)).
		Msg("clustering run complete")
	return res, nil
}

type refined struct {
	finals  []FinalCluster
	dropped []UnclusteredItem
}

// refineAll runs secondary clustering and the merge for every primary cluster.
// Results land in per-cluster slots, so the concatenation order never depends
// on the worker count.
func (s *Service) refineAll(ctx context.Context, log zerolog.Logger, clusters []PrimaryCluster, counts TermCounts, threshold float64) ([]FinalCluster, []UnclusteredItem, error) {
	secondary := SecondaryClusterer{
		Embedder:  s.embedder,
		Detector:  s.detector,
		Threshold: s.cfg.Cluster.SecondaryThreshold,
		Logger:    log,
	}
	merger := FrequencyMerger{Threshold: threshold}
	slots := make([]refined, len(clusters))

	refineOne := func(ctx context.Context, i int) error {
		pc := clusters[i]
		subs, err := secondary.Refine(ctx, pc, counts)
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			log.Warn().Str("cluster", pc.ID).Int("members", len(pc.Members)).Msg("primary cluster produced no sub-clusters")
			slots[i].dropped = append([]UnclusteredItem(nil), pc.Members...)
			return nil
		}
		slots[i].finals = merger.Merge(pc.ID, subs)
		return nil
	}

	workers := s.cfg.Cluster.Workers
	if workers <= 1 {
		for i := range clusters {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			if err := refineOne(ctx, i); err != nil {
				return nil, nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i := range clusters {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return refineOne(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}
	}

	var finals []FinalCluster
	var dropped []UnclusteredItem
	for _, slot := range slots {
		finals = append(finals, slot.finals...)
		dropped = append(dropped, slot.dropped...)
	}
	return finals, dropped, nil
}

func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Now(), entropy).String()
}
