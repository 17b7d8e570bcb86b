package clustering

import "sort"

// ResultAggregator flattens final clusters and unclustered items into the ranked table.
type ResultAggregator struct {
	// Threshold is fileCount × thresholdPercent.
	Threshold float64
	// SeparateSingletons numbers promoted unclustered items after every final
	// cluster instead of ranking them together.
	SeparateSingletons bool
}

type rankedGroup struct {
	members   []string
	total     int
	singleton bool
}

// Aggregate numbers clusters from 1 in descending total frequency. Unclustered
// items at or above the threshold are promoted to singleton clusters and ranked
// with the final clusters; ties keep final clusters first and otherwise preserve
// input order. Items below the threshold share the Others bucket, emitted last
// in encounter order.
func (a ResultAggregator) Aggregate(finals []FinalCluster, unclustered []UnclusteredItem, counts TermCounts) ([]Row, Summary) {
	groups := make([]rankedGroup, 0, len(finals)+len(unclustered))
	for _, fc := range finals {
		groups = append(groups, rankedGroup{members: fc.Members, total: fc.TotalFrequency})
	}
	if a.SeparateSingletons {
		sortGroups(groups)
	}

	var others []UnclusteredItem
	for _, item := range unclustered {
		if float64(item.Count) < a.Threshold {
			others = append(others, item)
			continue
		}
		groups = append(groups, rankedGroup{members: []string{item.Term}, total: item.Count, singleton: true})
	}
	if !a.SeparateSingletons {
		sortGroups(groups)
	}

	var rows []Row
	var summary Summary
	for i, g := range groups {
		id := i + 1
		for _, term := range g.members {
			count := counts.Count(term)
			if g.singleton {
				count = g.total
			}
			rows = append(rows, Row{
				ClusterID:             id,
				ClusterTotalFrequency: g.total,
				MemberCount:           len(g.members),
				Term:                  term,
				Count:                 count,
			})
		}
		if g.singleton {
			summary.PromotedSingletons++
		} else {
			summary.FromClusters++
		}
	}

	if len(others) > 0 {
		total := 0
		for _, item := range others {
			total += item.Count
		}
		for _, item := range others {
			rows = append(rows, Row{
				Others:                true,
				ClusterTotalFrequency: total,
				MemberCount:           len(others),
				Term:                  item.Term,
				Count:                 item.Count,
			})
		}
		summary.OthersSize = len(others)
		summary.OthersFrequency = total
	}

	summary.NumberedClusters = len(groups)
	summary.Rows = len(rows)
	return rows, summary
}

func sortGroups(groups []rankedGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].total > groups[j].total
	})
}
