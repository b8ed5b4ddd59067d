package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"bindery/internal/models"
	"github.com/google/uuid"
)

// HarvestService is the harvest-bucket curation engine. It owns the in-memory
// bucket state for the process and persists through the storage gateway.
//
// Mutations are optimistic: the in-memory bucket is updated first and is the
// source of truth for same-process reads; a failed persistence write is
// logged, not rolled back. CommitBucket is the exception — the bucket is
// marked committed only after the book write is confirmed, so a partial
// failure leaves it staged and retryable.
//
// One logical actor mutates a given bucket at a time; the mutex only protects
// the map against concurrent HTTP handlers, it is not a concurrency model.
type HarvestService struct {
	gateway StorageGateway
	metrics *Metrics

	mu      sync.Mutex
	buckets map[string]*models.HarvestBucket

	defaultThreshold float64
}

// NewHarvestService creates the curation engine. metrics may be nil in tests.
func NewHarvestService(gateway StorageGateway, metrics *Metrics, dedupThreshold float64) *HarvestService {
	if dedupThreshold <= 0 || dedupThreshold > 1 {
		dedupThreshold = models.DefaultDedupThreshold
	}
	return &HarvestService{
		gateway:          gateway,
		metrics:          metrics,
		buckets:          make(map[string]*models.HarvestBucket),
		defaultThreshold: dedupThreshold,
	}
}

// WarmStart loads persisted buckets into memory
func (s *HarvestService) WarmStart(ctx context.Context) error {
	buckets, err := s.gateway.LoadBuckets(ctx)
	if err != nil {
		return fmt.Errorf("failed to warm-start harvest engine: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range buckets {
		b := buckets[i]
		s.buckets[b.ID] = &b
	}
	log.Printf("📦 [HARVEST] Loaded %d buckets from store", len(buckets))
	return nil
}

// CreateBucketRequest carries the options for a new bucket
type CreateBucketRequest struct {
	BookID         string
	ThreadID       string
	Queries        []string
	InitiatedBy    string   // "user" or "agent", defaults to "user"
	DedupEnabled   *bool    // defaults to true
	DedupThreshold *float64 // defaults to the engine-wide threshold
}

// CreateBucket allocates a new bucket in the collecting state
func (s *HarvestService) CreateBucket(ctx context.Context, req CreateBucketRequest) (*models.HarvestBucket, error) {
	if req.BookID == "" {
		return nil, fmt.Errorf("book reference is required: %w", ErrBookNotFound)
	}
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	initiatedBy := req.InitiatedBy
	if initiatedBy != models.InitiatorAgent {
		initiatedBy = models.InitiatorUser
	}

	dedup := models.DedupConfig{Enabled: true, Threshold: s.defaultThreshold}
	if req.DedupEnabled != nil {
		dedup.Enabled = *req.DedupEnabled
	}
	if req.DedupThreshold != nil && *req.DedupThreshold > 0 && *req.DedupThreshold <= 1 {
		dedup.Threshold = *req.DedupThreshold
	}

	now := time.Now()
	bucket := &models.HarvestBucket{
		ID:          uuid.New().String(),
		BookID:      req.BookID,
		ThreadID:    req.ThreadID,
		Status:      models.BucketCollecting,
		Queries:     append([]string{}, req.Queries...),
		Candidates:  []models.Passage{},
		Approved:    []models.Passage{},
		Gems:        []models.Passage{},
		Rejected:    []models.Passage{},
		Dedup:       dedup,
		InitiatedBy: initiatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	bucket.Stats = ComputeBucketStats(bucket)

	s.mu.Lock()
	s.buckets[bucket.ID] = bucket
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucket.ID)
	log.Printf("🪣 [HARVEST] Created bucket %s for book %s (%d queries, initiated by %s)",
		bucket.ID, bucket.BookID, len(bucket.Queries), initiatedBy)
	return snapshot, nil
}

// GetBucket returns a snapshot of one bucket
func (s *HarvestService) GetBucket(bucketID string) (*models.HarvestBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		return nil, ErrBucketNotFound
	}
	return cloneBucket(bucket), nil
}

// ListBuckets returns snapshots, optionally filtered by book
func (s *HarvestService) ListBuckets(bookID string) []models.HarvestBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.HarvestBucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		if bookID != "" && b.BookID != bookID {
			continue
		}
		out = append(out, *cloneBucket(b))
	}
	return out
}

// AddCandidate ingests a harvested passage, running dedup first. A passage
// whose id already exists, or whose text scores at or above the bucket's
// threshold against any non-rejected passage, lands in DuplicateIDs instead
// of the candidates partition.
func (s *HarvestService) AddCandidate(ctx context.Context, bucketID string, passage models.Passage) (*models.HarvestBucket, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	if bucket.Status.IsTerminal() {
		s.mu.Unlock()
		log.Printf("🚫 [HARVEST] Rejected candidate for terminal bucket %s (%s)", bucketID, bucket.Status)
		return nil, ErrTerminalBucket
	}

	if passage.ID == "" {
		passage.ID = uuid.New().String()
	}
	if passage.WordCount == 0 {
		passage.WordCount = CountWords(passage.Text)
	}
	passage.Curation.Status = models.CurationCandidate

	if isDup, matchID := s.detectDuplicate(bucket, &passage); isDup {
		if !containsID(bucket.DuplicateIDs, passage.ID) {
			bucket.DuplicateIDs = append(bucket.DuplicateIDs, passage.ID)
		}
		s.touch(bucket)
		snapshot := cloneBucket(bucket)
		s.mu.Unlock()

		s.persist(ctx, bucketID)
		if s.metrics != nil {
			s.metrics.DuplicatesDetected.Inc()
		}
		log.Printf("♻️ [HARVEST] Passage %s is a duplicate of %s in bucket %s", passage.ID, matchID, bucketID)
		return snapshot, nil
	}

	bucket.Candidates = append(bucket.Candidates, passage)
	s.touch(bucket)
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucketID)
	if s.metrics != nil {
		s.metrics.CandidatesIngested.Inc()
	}
	return snapshot, nil
}

// detectDuplicate scans candidates, approved and gems (rejected passages do
// not block re-harvesting). O(n) per insertion; buckets hold at most a few
// hundred passages.
func (s *HarvestService) detectDuplicate(bucket *models.HarvestBucket, passage *models.Passage) (bool, string) {
	for _, partition := range [][]models.Passage{bucket.Candidates, bucket.Approved, bucket.Gems} {
		for i := range partition {
			existing := &partition[i]
			if existing.ID == passage.ID {
				return true, existing.ID
			}
			if bucket.Dedup.Enabled && Similarity(existing.Text, passage.Text) >= bucket.Dedup.Threshold {
				return true, existing.ID
			}
		}
	}
	return false, ""
}

// ApprovePassage moves a candidate into the approved partition
func (s *HarvestService) ApprovePassage(ctx context.Context, bucketID, passageID, curator string) (*models.HarvestBucket, error) {
	return s.curate(ctx, bucketID, passageID, curator, "", models.CurationApproved, "approve")
}

// RejectPassage moves a candidate into the rejected partition
func (s *HarvestService) RejectPassage(ctx context.Context, bucketID, passageID, curator, reason string) (*models.HarvestBucket, error) {
	return s.curate(ctx, bucketID, passageID, curator, reason, models.CurationRejected, "reject")
}

// curate moves a passage out of candidates, stamping the curation record
func (s *HarvestService) curate(ctx context.Context, bucketID, passageID, curator, notes string, target models.CurationStatus, action string) (*models.HarvestBucket, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	if bucket.Status.IsTerminal() {
		s.mu.Unlock()
		log.Printf("🚫 [HARVEST] Cannot %s in terminal bucket %s (%s)", action, bucketID, bucket.Status)
		return nil, ErrTerminalBucket
	}

	passage, rest, found := takePassage(bucket.Candidates, passageID)
	if !found {
		s.mu.Unlock()
		log.Printf("🔍 [HARVEST] Passage %s not in candidates of bucket %s", passageID, bucketID)
		return nil, ErrPassageNotFound
	}
	bucket.Candidates = rest

	now := time.Now()
	passage.Curation.Status = target
	passage.Curation.CuratedAt = &now
	passage.Curation.CuratedBy = curator
	if notes != "" {
		passage.Curation.Notes = notes
	}

	if target == models.CurationApproved {
		bucket.Approved = append(bucket.Approved, passage)
	} else {
		bucket.Rejected = append(bucket.Rejected, passage)
	}
	s.touch(bucket)
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucketID)
	if s.metrics != nil {
		s.metrics.CurationActions.WithLabelValues(action).Inc()
	}
	return snapshot, nil
}

// MarkAsGem moves a passage from candidates or approved into gems. A gem is
// a stronger form of approval, not a separate review.
func (s *HarvestService) MarkAsGem(ctx context.Context, bucketID, passageID, curator string) (*models.HarvestBucket, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	if bucket.Status.IsTerminal() {
		s.mu.Unlock()
		log.Printf("🚫 [HARVEST] Cannot mark gem in terminal bucket %s (%s)", bucketID, bucket.Status)
		return nil, ErrTerminalBucket
	}

	passage, rest, found := takePassage(bucket.Candidates, passageID)
	if found {
		bucket.Candidates = rest
		now := time.Now()
		passage.Curation.CuratedAt = &now
		passage.Curation.CuratedBy = curator
	} else {
		passage, rest, found = takePassage(bucket.Approved, passageID)
		if !found {
			s.mu.Unlock()
			log.Printf("🔍 [HARVEST] Passage %s not in candidates or approved of bucket %s", passageID, bucketID)
			return nil, ErrPassageNotFound
		}
		bucket.Approved = rest
	}

	passage.Curation.Status = models.CurationGem
	bucket.Gems = append(bucket.Gems, passage)
	s.touch(bucket)
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucketID)
	if s.metrics != nil {
		s.metrics.CurationActions.WithLabelValues("gem").Inc()
	}
	return snapshot, nil
}

// MoveToCandidates undoes a curation decision, returning the passage to the
// candidates partition and reversing the stat changes exactly.
func (s *HarvestService) MoveToCandidates(ctx context.Context, bucketID, passageID string) (*models.HarvestBucket, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	if bucket.Status.IsTerminal() {
		s.mu.Unlock()
		log.Printf("🚫 [HARVEST] Cannot undo in terminal bucket %s (%s)", bucketID, bucket.Status)
		return nil, ErrTerminalBucket
	}

	var passage models.Passage
	var rest []models.Passage
	found := false
	if passage, rest, found = takePassage(bucket.Approved, passageID); found {
		bucket.Approved = rest
	} else if passage, rest, found = takePassage(bucket.Gems, passageID); found {
		bucket.Gems = rest
	} else if passage, rest, found = takePassage(bucket.Rejected, passageID); found {
		bucket.Rejected = rest
	} else {
		s.mu.Unlock()
		log.Printf("🔍 [HARVEST] Passage %s not in any reviewed partition of bucket %s", passageID, bucketID)
		return nil, ErrPassageNotFound
	}

	passage.Curation.Status = models.CurationCandidate
	passage.Curation.CuratedAt = nil
	passage.Curation.CuratedBy = ""
	bucket.Candidates = append(bucket.Candidates, passage)
	s.touch(bucket)
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucketID)
	if s.metrics != nil {
		s.metrics.CurationActions.WithLabelValues("undo").Inc()
	}
	return snapshot, nil
}

// FinishCollecting transitions collecting → reviewing
func (s *HarvestService) FinishCollecting(ctx context.Context, bucketID string) (*models.HarvestBucket, error) {
	return s.transition(ctx, bucketID, models.BucketCollecting, models.BucketReviewing, func(b *models.HarvestBucket) error {
		now := time.Now()
		b.CompletedAt = &now
		return nil
	})
}

// StageBucket transitions reviewing → staged; requires at least one approved
// or gem passage.
func (s *HarvestService) StageBucket(ctx context.Context, bucketID string) (*models.HarvestBucket, error) {
	return s.transition(ctx, bucketID, models.BucketReviewing, models.BucketStaged, func(b *models.HarvestBucket) error {
		if len(b.Approved)+len(b.Gems) == 0 {
			log.Printf("🚫 [HARVEST] Bucket %s has nothing approved to stage", bucketID)
			return ErrEmptyStage
		}
		return nil
	})
}

// DiscardBucket transitions any non-terminal state → discarded; nothing is
// written to the book.
func (s *HarvestService) DiscardBucket(ctx context.Context, bucketID string) (*models.HarvestBucket, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	if bucket.Status.IsTerminal() {
		s.mu.Unlock()
		return nil, ErrTerminalBucket
	}

	now := time.Now()
	bucket.Status = models.BucketDiscarded
	bucket.FinalizedAt = &now
	s.touch(bucket)
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucketID)
	if s.metrics != nil {
		s.metrics.BucketsDiscarded.Inc()
	}
	log.Printf("🗑️ [HARVEST] Discarded bucket %s", bucketID)
	return snapshot, nil
}

// CommitBucket writes the approved and gem passages into the target book and
// marks the bucket committed. The bucket transitions only after the book
// write is confirmed; on failure it stays staged so the commit can be
// retried.
func (s *HarvestService) CommitBucket(ctx context.Context, bucketID string) (*models.HarvestBucket, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}
	start := time.Now()

	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	if bucket.Status != models.BucketStaged {
		status := bucket.Status
		s.mu.Unlock()
		log.Printf("🚫 [HARVEST] Cannot commit bucket %s from state %s", bucketID, status)
		if status.IsTerminal() {
			return nil, ErrTerminalBucket
		}
		return nil, ErrInvalidTransition
	}

	// Gems keep their gem status; approved passages stay approved
	passages := bucket.AllApproved()
	bookID := bucket.BookID
	s.mu.Unlock()

	book, err := s.gateway.LoadBook(ctx, bookID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.CommitFailures.Inc()
		}
		return nil, fmt.Errorf("commit of bucket %s failed: %w", bucketID, err)
	}
	if book == nil {
		if s.metrics != nil {
			s.metrics.CommitFailures.Inc()
		}
		return nil, fmt.Errorf("commit of bucket %s: target book %s: %w", bucketID, bookID, ErrBookNotFound)
	}

	if err := s.gateway.UpsertBookPassages(ctx, book.ID, passages); err != nil {
		// Bucket stays staged; caller retries
		if s.metrics != nil {
			s.metrics.CommitFailures.Inc()
		}
		log.Printf("❌ [HARVEST] Commit of bucket %s failed, bucket stays staged: %v", bucketID, err)
		return nil, fmt.Errorf("commit of bucket %s failed: %w", bucketID, err)
	}

	s.mu.Lock()
	bucket, ok = s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	now := time.Now()
	bucket.Status = models.BucketCommitted
	bucket.FinalizedAt = &now
	s.touch(bucket)
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucketID)
	if s.metrics != nil {
		s.metrics.BucketsCommitted.Inc()
		s.metrics.CommitDuration.Observe(time.Since(start).Seconds())
	}
	log.Printf("✅ [HARVEST] Committed bucket %s: %d passages written to book %s", bucketID, len(passages), book.ID)
	return snapshot, nil
}

// PurgeTerminal deletes committed and discarded buckets finalized before the
// retention window. Returns the number purged.
func (s *HarvestService) PurgeTerminal(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window)

	s.mu.Lock()
	var expired []string
	for id, b := range s.buckets {
		if !b.Status.IsTerminal() {
			continue
		}
		finalized := b.UpdatedAt
		if b.FinalizedAt != nil {
			finalized = *b.FinalizedAt
		}
		if finalized.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	purged := 0
	for _, id := range expired {
		if err := s.gateway.DeleteBucket(ctx, id); err != nil {
			log.Printf("⚠️ [HARVEST] Failed to purge bucket %s: %v", id, err)
			continue
		}
		s.mu.Lock()
		delete(s.buckets, id)
		s.mu.Unlock()
		purged++
	}
	return purged, nil
}

// transition performs a guarded lifecycle move between two specific states
func (s *HarvestService) transition(ctx context.Context, bucketID string, from, to models.BucketStatus, mutate func(*models.HarvestBucket) error) (*models.HarvestBucket, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrBucketNotFound
	}
	if bucket.Status != from {
		status := bucket.Status
		s.mu.Unlock()
		log.Printf("🚫 [HARVEST] Bucket %s cannot move %s → %s (currently %s)", bucketID, from, to, status)
		if status.IsTerminal() {
			return nil, ErrTerminalBucket
		}
		return nil, ErrInvalidTransition
	}

	if mutate != nil {
		if err := mutate(bucket); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	}
	bucket.Status = to
	s.touch(bucket)
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	s.persist(ctx, bucketID)
	log.Printf("🪣 [HARVEST] Bucket %s: %s → %s", bucketID, from, to)
	return snapshot, nil
}

// touch recomputes the cached stats and bumps UpdatedAt. Must be called with
// the lock held after every partition mutation.
func (s *HarvestService) touch(bucket *models.HarvestBucket) {
	bucket.Stats = ComputeBucketStats(bucket)
	bucket.UpdatedAt = time.Now()
}

// persist writes the bucket to the gateway. Optimistic: in-memory state is
// already updated, a failed write is logged and left for the next write to
// reconcile (see the service doc comment).
func (s *HarvestService) persist(ctx context.Context, bucketID string) {
	s.mu.Lock()
	bucket, ok := s.buckets[bucketID]
	if !ok {
		s.mu.Unlock()
		return
	}
	snapshot := cloneBucket(bucket)
	s.mu.Unlock()

	if err := s.gateway.UpsertBucket(ctx, snapshot); err != nil {
		log.Printf("⚠️ [HARVEST] Failed to persist bucket %s: %v", bucketID, err)
	}
}

// takePassage removes the passage with the given id from a partition,
// returning it, the remaining slice and whether it was found
func takePassage(partition []models.Passage, passageID string) (models.Passage, []models.Passage, bool) {
	for i := range partition {
		if partition[i].ID == passageID {
			passage := partition[i]
			rest := make([]models.Passage, 0, len(partition)-1)
			rest = append(rest, partition[:i]...)
			rest = append(rest, partition[i+1:]...)
			return passage, rest, true
		}
	}
	return models.Passage{}, partition, false
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// cloneBucket deep-copies a bucket so callers can never mutate partitions
// behind the engine's back
func cloneBucket(b *models.HarvestBucket) *models.HarvestBucket {
	out := *b
	out.Queries = append([]string{}, b.Queries...)
	out.Candidates = clonePassages(b.Candidates)
	out.Approved = clonePassages(b.Approved)
	out.Gems = clonePassages(b.Gems)
	out.Rejected = clonePassages(b.Rejected)
	out.DuplicateIDs = append([]string{}, b.DuplicateIDs...)
	return &out
}

func clonePassages(in []models.Passage) []models.Passage {
	out := make([]models.Passage, len(in))
	copy(out, in)
	for i := range out {
		out[i].Tags = append([]string{}, in[i].Tags...)
		if in[i].Similarity != nil {
			v := *in[i].Similarity
			out[i].Similarity = &v
		}
		if in[i].Curation.CuratedAt != nil {
			t := *in[i].Curation.CuratedAt
			out[i].Curation.CuratedAt = &t
		}
	}
	return out
}
