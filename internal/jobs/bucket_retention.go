package jobs

import (
	"context"
	"log"
	"time"

	"bindery/internal/services"
)

// BucketRetentionJob purges harvest buckets that have sat in a terminal
// state (committed or discarded) past the retention window. It never touches
// non-terminal buckets, so it is safe to run alongside active curation.
type BucketRetentionJob struct {
	engine *services.HarvestService
	window time.Duration
}

// NewBucketRetentionJob creates the retention sweep
func NewBucketRetentionJob(engine *services.HarvestService, window time.Duration) *BucketRetentionJob {
	return &BucketRetentionJob{engine: engine, window: window}
}

// Run executes one sweep
func (j *BucketRetentionJob) Run(ctx context.Context) error {
	log.Printf("[RETENTION] Sweeping terminal buckets older than %v...", j.window)
	start := time.Now()

	purged, err := j.engine.PurgeTerminal(ctx, j.window)
	if err != nil {
		log.Printf("[RETENTION] Sweep failed: %v", err)
		return err
	}

	log.Printf("[RETENTION] Sweep complete: purged %d buckets in %v", purged, time.Since(start))
	return nil
}
