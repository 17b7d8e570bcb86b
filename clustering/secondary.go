package clustering

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SecondaryClusterer refines one primary cluster into sub-clusters by
// re-embedding its members and clustering them under a stricter threshold.
type SecondaryClusterer struct {
	Embedder  Embedder
	Detector  CommunityDetector
	Threshold float32
	Logger    zerolog.Logger
}

// Refine returns the sub-clusters of pc. Clusters with at most one member become
// a single sub-cluster without calling the embedder or the detector. Detection
// runs with a minimum size of 1, so every member lands in exactly one
// sub-cluster; members a detector leaves uncovered are appended as singletons.
func (s SecondaryClusterer) Refine(ctx context.Context, pc PrimaryCluster, counts TermCounts) ([]SubCluster, error) {
	if len(pc.Members) == 0 {
		return nil, &StructureError{Stage: "secondary", Cluster: pc.ID, Index: -1, Reason: "cluster has no members"}
	}
	terms := pc.Terms()
	if len(terms) == 1 {
		return []SubCluster{{Members: terms, TotalFrequency: pc.TotalFrequency()}}, nil
	}

	vectors, err := s.Embedder.EmbedTexts(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("embed members of %s: %w", pc.ID, err)
	}
	if len(vectors) != len(terms) {
		return nil, fmt.Errorf("%w: %s has %d members, got %d vectors", ErrEmbeddingMismatch, pc.ID, len(terms), len(vectors))
	}
	groups, err := s.Detector.Detect(vectors, 1, s.Threshold)
	if err != nil {
		return nil, fmt.Errorf("secondary community detection in %s: %w", pc.ID, err)
	}

	covered := make([]bool, len(terms))
	subs := make([]SubCluster, 0, len(groups))
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		sub := SubCluster{Members: make([]string, 0, len(group))}
		for _, idx := range group {
			if idx < 0 || idx >= len(terms) {
				return nil, &StructureError{Stage: "secondary", Cluster: pc.ID, Index: idx, Reason: "member index out of range"}
			}
			if covered[idx] {
				return nil, &StructureError{Stage: "secondary", Cluster: pc.ID, Index: idx, Reason: "member assigned to two sub-clusters"}
			}
			covered[idx] = true
			sub.Members = append(sub.Members, terms[idx])
			sub.TotalFrequency += counts.Count(terms[idx])
		}
		subs = append(subs, sub)
	}
	if len(subs) > 0 {
		for idx, term := range terms {
			if !covered[idx] {
				subs = append(subs, SubCluster{Members: []string{term}, TotalFrequency: counts.Count(term)})
			}
		}
	}

	s.Logger.Debug().Str("cluster", pc.ID).Int("members", len(terms)).Int("subClusters", len(subs)).Msg("refined primary cluster")
	return subs, nil
}
