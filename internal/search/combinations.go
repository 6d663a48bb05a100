package search

import (
	"homecook/videosearch/internal/domain"
)

// TagClassifier partitions tags into vegetable-like, meat-like and other.
type TagClassifier interface {
	Classify(tag domain.Tag) domain.TagClass
}

// ExpandCombinations pairs every vegetable-like tag with every meat-like tag,
// outer loop vegetables, inner loop meats, in input order. Every pair carries
// the full residual. When either class is empty no combinations are returned
// and the caller searches the whole tag set at once.
func ExpandCombinations(classifier TagClassifier, tags []domain.Tag) ([]domain.Combination, []domain.Tag) {
	var vegetables, meats, residual []domain.Tag
	for _, tag := range tags {
		switch classifier.Classify(tag) {
		case domain.TagClassVegetable:
			vegetables = append(vegetables, tag)
		case domain.TagClassMeat:
			meats = append(meats, tag)
		default:
			residual = append(residual, tag)
		}
	}
	if len(vegetables) == 0 || len(meats) == 0 {
		return nil, residual
	}

	combinations := make([]domain.Combination, 0, len(vegetables)*len(meats))
	for _, vegetable := range vegetables {
		for _, meat := range meats {
			combinations = append(combinations, domain.Combination{
				Vegetable: vegetable,
				Meat:      meat,
				Residual:  append([]domain.Tag(nil), residual...),
			})
		}
	}
	return combinations, residual
}

// CombinationQuota is the per-combination result count: small fan-outs get
// more results per pair so the merged list can still fill up.
func (p Policy) CombinationQuota(combinations int) int {
	if combinations < p.CombinationThreshold {
		return p.SmallFanOutQuota
	}
	return p.LargeFanOutQuota
}
