package clustering

import "sort"

// mergeAccumulator is the base sub-cluster of one primary cluster, growing as
// low-frequency sub-clusters are folded into it.
type mergeAccumulator struct {
	members []string
	total   int
}

func newMergeAccumulator(base SubCluster) *mergeAccumulator {
	acc := &mergeAccumulator{members: make([]string, 0, len(base.Members)), total: base.TotalFrequency}
	acc.members = append(acc.members, base.Members...)
	return acc
}

func (a *mergeAccumulator) absorb(sub SubCluster) {
	a.members = append(a.members, sub.Members...)
	a.total += sub.TotalFrequency
}

// FrequencyMerger folds rare sub-clusters into the most frequent one.
type FrequencyMerger struct {
	// Threshold is fileCount × thresholdPercent.
	Threshold float64
}

// Merge sorts subs by total frequency (stable, descending), takes the first as
// the base and absorbs every later sub-cluster whose frequency is strictly below
// the threshold. The result is the base followed by the retained sub-clusters in
// sorted order. subs is not modified. An empty input yields no clusters.
func (m FrequencyMerger) Merge(primaryID string, subs []SubCluster) []FinalCluster {
	if len(subs) == 0 {
		return nil
	}
	sorted := make([]SubCluster, len(subs))
	copy(sorted, subs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalFrequency > sorted[j].TotalFrequency
	})

	base := newMergeAccumulator(sorted[0])
	retained := make([]FinalCluster, 0, len(sorted)-1)
	for _, sub := range sorted[1:] {
		if float64(sub.TotalFrequency) < m.Threshold {
			base.absorb(sub)
			continue
		}
		retained = append(retained, FinalCluster{
			PrimaryID:      primaryID,
			Members:        append([]string(nil), sub.Members...),
			TotalFrequency: sub.TotalFrequency,
		})
	}

	out := make([]FinalCluster, 0, len(retained)+1)
	out = append(out, FinalCluster{
		PrimaryID:      primaryID,
		Members:        base.members,
		TotalFrequency: base.total,
		Base:           true,
	})
	return append(out, retained...)
}
