package search

import (
	"reflect"
	"testing"

	"homecook/videosearch/internal/domain"
)

func TestMergeDedupesSortsAndTruncates(t *testing.T) {
	got := Merge([]domain.CandidateVideo{
		video("a", 5, 0),
		video("b", 9, 0),
		video("a", 5, 0),
	}, domain.RankMetricLikeCount, 2)

	if want := []string{"b", "a"}; !reflect.DeepEqual(idsOf(got), want) {
		t.Fatalf("expected %v, got %v", want, idsOf(got))
	}
}

func TestMergeFirstSeenWins(t *testing.T) {
	got := Merge([]domain.CandidateVideo{
		video("a", 1, 0),
		video("b", 5, 0),
		video("a", 100, 0),
	}, domain.RankMetricLikeCount, 0)

	if want := []string{"b", "a"}; !reflect.DeepEqual(idsOf(got), want) {
		t.Fatalf("expected %v, got %v", want, idsOf(got))
	}
	if got[1].LikeCount != 1 {
		t.Fatalf("expected first occurrence to be kept, got likes=%d", got[1].LikeCount)
	}
}

func TestMergeTieBreaksByIDAscending(t *testing.T) {
	got := Merge([]domain.CandidateVideo{
		video("c", 7, 0),
		video("a", 7, 0),
		video("b", 7, 0),
	}, domain.RankMetricLikeCount, 10)

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(idsOf(got), want) {
		t.Fatalf("expected %v, got %v", want, idsOf(got))
	}
}

func TestMergeByViewCount(t *testing.T) {
	got := Merge([]domain.CandidateVideo{
		video("liked", 900, 10),
		video("viewed", 1, 5000),
	}, domain.RankMetricViewCount, 1)

	if len(got) != 1 || got[0].ID != "viewed" {
		t.Fatalf("expected the most viewed video, got %v", idsOf(got))
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	input := []domain.CandidateVideo{video("x", 1, 0), video("y", 2, 0)}
	_ = Merge(input, domain.RankMetricLikeCount, 1)
	if input[0].ID != "x" || input[1].ID != "y" {
		t.Fatalf("input was reordered: %v", idsOf(input))
	}
}

func TestMergeSkipsEmptyIDs(t *testing.T) {
	got := Merge([]domain.CandidateVideo{video("", 50, 0), video("a", 1, 0)}, domain.RankMetricLikeCount, 5)
	if want := []string{"a"}; !reflect.DeepEqual(idsOf(got), want) {
		t.Fatalf("expected %v, got %v", want, idsOf(got))
	}
}
