package clustering

import "fmt"

// PrimaryClusterer runs the coarse clustering pass over the full vocabulary.
type PrimaryClusterer struct {
	Detector  CommunityDetector
	MinSize   int
	Threshold float32
}

// Cluster partitions terms into primary clusters plus the residual unclustered set.
// terms and vectors are order-aligned. Cluster ids follow the detector's order:
// primary_1, primary_2, ... Unclustered items keep vocabulary order.
func (p PrimaryClusterer) Cluster(terms []string, vectors [][]float32, counts TermCounts) ([]PrimaryCluster, []UnclusteredItem, error) {
	if len(terms) == 0 {
		return nil, nil, nil
	}
	if len(vectors) != len(terms) {
		return nil, nil, fmt.Errorf("%w: %d terms, %d vectors", ErrEmbeddingMismatch, len(terms), len(vectors))
	}
	communities, err := p.Detector.Detect(vectors, p.MinSize, p.Threshold)
	if err != nil {
		return nil, nil, fmt.Errorf("primary community detection: %w", err)
	}

	clustered := make([]bool, len(terms))
	clusters := make([]PrimaryCluster, 0, len(communities))
	for i, community := range communities {
		id := fmt.Sprintf("primary_%d", i+1)
		if len(community) == 0 {
			return nil, nil, &StructureError{Stage: "primary", Cluster: id, Index: -1, Reason: "cluster has no members"}
		}
		members := make([]Member, 0, len(community))
		for _, idx := range community {
			if idx < 0 || idx >= len(terms) {
				return nil, nil, &StructureError{Stage: "primary", Cluster: id, Index: idx, Reason: "term index out of range"}
			}
			if clustered[idx] {
				return nil, nil, &StructureError{Stage: "primary", Cluster: id, Index: idx, Reason: "term already assigned to another cluster"}
			}
			clustered[idx] = true
			members = append(members, Member{Term: terms[idx], Count: counts.Count(terms[idx])})
		}
		clusters = append(clusters, PrimaryCluster{ID: id, Members: members})
	}

	var unclustered []UnclusteredItem
	for idx, term := range terms {
		if !clustered[idx] {
			unclustered = append(unclustered, UnclusteredItem{Term: term, Count: counts.Count(term)})
		}
	}
	return clusters, unclustered, nil
}
