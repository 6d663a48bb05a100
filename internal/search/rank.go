package search

import (
	"sort"

	"homecook/videosearch/internal/domain"
)

// Merge dedupes candidates by id (first occurrence wins), orders them by
// metric descending with id ascending as the tie-break, and keeps at most
// limit items. A non-positive limit keeps everything.
func Merge(candidates []domain.CandidateVideo, metric domain.RankMetric, limit int) []domain.CandidateVideo {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]domain.CandidateVideo, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == "" {
			continue
		}
		if _, ok := seen[candidate.ID]; ok {
			continue
		}
		seen[candidate.ID] = struct{}{}
		out = append(out, candidate)
	}
	sortByMetric(out, metric)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortByMetric(items []domain.CandidateVideo, metric domain.RankMetric) {
	sort.SliceStable(items, func(i, j int) bool {
		left, right := items[i].MetricValue(metric), items[j].MetricValue(metric)
		if left != right {
			return left > right
		}
		return items[i].ID < items[j].ID
	})
}
