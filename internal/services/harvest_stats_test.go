package services

import (
	"testing"

	"bindery/internal/models"
)

func scoredPassage(id string, words int, similarity *float64) models.Passage {
	return models.Passage{ID: id, WordCount: words, Similarity: similarity}
}

func TestComputeBucketStats(t *testing.T) {
	s1, s2 := 0.8, 0.6

	bucket := &models.HarvestBucket{
		Candidates:   []models.Passage{scoredPassage("c1", 10, &s1)},
		Approved:     []models.Passage{scoredPassage("a1", 20, &s2), scoredPassage("a2", 30, nil)},
		Gems:         []models.Passage{scoredPassage("g1", 40, nil)},
		Rejected:     []models.Passage{scoredPassage("r1", 50, nil)},
		DuplicateIDs: []string{"d1", "d2"},
	}

	stats := ComputeBucketStats(bucket)

	if stats.TotalCandidates != 7 {
		t.Errorf("totalCandidates = %d, want 7 (5 partitioned + 2 duplicates)", stats.TotalCandidates)
	}
	if stats.Reviewed != 4 {
		t.Errorf("reviewed = %d, want 4", stats.Reviewed)
	}
	if stats.Approved != 2 || stats.Gems != 1 || stats.Rejected != 1 {
		t.Errorf("partition counts wrong: %+v", stats)
	}
	if stats.Duplicates != 2 {
		t.Errorf("duplicates = %d, want 2", stats.Duplicates)
	}
	if want := (0.8 + 0.6) / 2; stats.AvgSimilarity != want {
		t.Errorf("avgSimilarity = %f, want %f", stats.AvgSimilarity, want)
	}
	if stats.ApprovedWordCount != 90 {
		t.Errorf("approvedWordCount = %d, want 90 (approved 50 + gems 40)", stats.ApprovedWordCount)
	}
}

func TestComputeBucketStatsEmpty(t *testing.T) {
	stats := ComputeBucketStats(&models.HarvestBucket{})

	if stats != (models.BucketStats{}) {
		t.Errorf("empty bucket should produce zeroed stats, got %+v", stats)
	}
	// In particular avgSimilarity must be 0, never NaN
	if stats.AvgSimilarity != 0 {
		t.Errorf("avgSimilarity = %f, want 0", stats.AvgSimilarity)
	}
}

func TestComputeBucketStatsRejectedWordsExcluded(t *testing.T) {
	bucket := &models.HarvestBucket{
		Rejected: []models.Passage{scoredPassage("r1", 100, nil)},
	}
	stats := ComputeBucketStats(bucket)
	if stats.ApprovedWordCount != 0 {
		t.Errorf("rejected words must not count, got %d", stats.ApprovedWordCount)
	}
}
