package services

import "bindery/internal/models"

// ComputeBucketStats derives a stats snapshot from the bucket's four
// partitions and its duplicate-id list. The cached Stats field on a bucket
// must always equal the result of this function; the engine recomputes it
// inside every mutation.
func ComputeBucketStats(b *models.HarvestBucket) models.BucketStats {
	stats := models.BucketStats{
		Approved:   len(b.Approved),
		Gems:       len(b.Gems),
		Rejected:   len(b.Rejected),
		Duplicates: len(b.DuplicateIDs),
	}

	stats.Reviewed = stats.Approved + stats.Gems + stats.Rejected

	// Total seen includes duplicates that never made it into a partition
	stats.TotalCandidates = len(b.Candidates) + stats.Reviewed + stats.Duplicates

	sum := 0.0
	scored := 0
	for _, partition := range [][]models.Passage{b.Candidates, b.Approved, b.Gems, b.Rejected} {
		for _, p := range partition {
			if p.Similarity != nil {
				sum += *p.Similarity
				scored++
			}
		}
	}
	if scored > 0 {
		stats.AvgSimilarity = sum / float64(scored)
	}

	for _, p := range b.Approved {
		stats.ApprovedWordCount += p.WordCount
	}
	for _, p := range b.Gems {
		stats.ApprovedWordCount += p.WordCount
	}

	return stats
}
