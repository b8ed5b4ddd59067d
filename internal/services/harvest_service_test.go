package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"bindery/internal/models"
)

// fakeGateway is an in-memory StorageGateway for engine tests
type fakeGateway struct {
	mu      sync.Mutex
	buckets map[string]models.HarvestBucket
	books   map[string]*models.Book
	arcs    map[string]models.NarrativeArc
	links   []models.PassageLink

	failBookWrites bool
	readOnly       bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		buckets: make(map[string]models.HarvestBucket),
		books:   make(map[string]*models.Book),
		arcs:    make(map[string]models.NarrativeArc),
	}
}

func (g *fakeGateway) PrimaryAvailable() bool { return true }
func (g *fakeGateway) FallbackAllowed() bool  { return false }
func (g *fakeGateway) WritesEnabled() bool    { return !g.readOnly }

func (g *fakeGateway) LoadBuckets(ctx context.Context) ([]models.HarvestBucket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.HarvestBucket, 0, len(g.buckets))
	for _, b := range g.buckets {
		out = append(out, b)
	}
	return out, nil
}

func (g *fakeGateway) UpsertBucket(ctx context.Context, bucket *models.HarvestBucket) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buckets[bucket.ID] = *bucket
	return nil
}

func (g *fakeGateway) DeleteBucket(ctx context.Context, bucketID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.buckets, bucketID)
	return nil
}

func (g *fakeGateway) LoadBook(ctx context.Context, idOrURI string) (*models.Book, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if book, ok := g.books[idOrURI]; ok {
		copied := *book
		return &copied, nil
	}
	return nil, nil
}

func (g *fakeGateway) UpsertBookPassages(ctx context.Context, bookID string, passages []models.Passage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failBookWrites {
		return fmt.Errorf("simulated storage failure")
	}
	book, ok := g.books[bookID]
	if !ok {
		return fmt.Errorf("book %s: %w", bookID, ErrBookNotFound)
	}
	book.Passages = append(book.Passages, passages...)
	return nil
}

func (g *fakeGateway) LoadArcs(ctx context.Context, bookID string) ([]models.NarrativeArc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.NarrativeArc
	for _, a := range g.arcs {
		if a.BookID == bookID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (g *fakeGateway) UpsertArc(ctx context.Context, arc *models.NarrativeArc) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.arcs[arc.ID] = *arc
	return nil
}

func (g *fakeGateway) LoadLinks(ctx context.Context, bookID string) ([]models.PassageLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.PassageLink
	for _, l := range g.links {
		if l.BookID == bookID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (g *fakeGateway) AppendLink(ctx context.Context, link *models.PassageLink) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links = append(g.links, *link)
	return nil
}

func (g *fakeGateway) addBook(id, title string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.books[id] = &models.Book{ID: id, Title: title}
}

func (g *fakeGateway) book(id string) *models.Book {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.books[id]
}

func newTestEngine(t *testing.T) (*HarvestService, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway()
	gw.addBook("book-1", "Test Book")
	return NewHarvestService(gw, nil, 0.9), gw
}

func passage(id, text string) models.Passage {
	return models.Passage{
		ID:   id,
		Text: text,
		Source: models.PassageSource{
			System:   "journal",
			SourceID: "entry-" + id,
		},
	}
}

// assertExclusive checks that every passage id appears in at most one of the
// four partitions plus the duplicate-id list
func assertExclusive(t *testing.T, b *models.HarvestBucket) {
	t.Helper()
	seen := make(map[string]string)
	record := func(id, where string) {
		if prev, ok := seen[id]; ok {
			t.Fatalf("passage %s present in both %s and %s", id, prev, where)
		}
		seen[id] = where
	}
	for _, p := range b.Candidates {
		record(p.ID, "candidates")
	}
	for _, p := range b.Approved {
		record(p.ID, "approved")
	}
	for _, p := range b.Gems {
		record(p.ID, "gems")
	}
	for _, p := range b.Rejected {
		record(p.ID, "rejected")
	}
	for _, id := range b.DuplicateIDs {
		record(id, "duplicateIds")
	}
}

// assertStatsDerivable checks the cached stats field equals a fresh recompute
func assertStatsDerivable(t *testing.T, b *models.HarvestBucket) {
	t.Helper()
	derived := ComputeBucketStats(b)
	if !reflect.DeepEqual(derived, b.Stats) {
		t.Fatalf("cached stats drifted from partitions:\n cached:  %+v\n derived: %+v", b.Stats, derived)
	}
}

func TestCreateBucketDefaults(t *testing.T) {
	engine, _ := newTestEngine(t)

	bucket, err := engine.CreateBucket(context.Background(), CreateBucketRequest{
		BookID:  "book-1",
		Queries: []string{"husserl lifeworld"},
	})
	if err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	if bucket.Status != models.BucketCollecting {
		t.Errorf("expected status collecting, got %s", bucket.Status)
	}
	if bucket.InitiatedBy != models.InitiatorUser {
		t.Errorf("expected initiator user, got %s", bucket.InitiatedBy)
	}
	if !bucket.Dedup.Enabled || bucket.Dedup.Threshold != 0.9 {
		t.Errorf("expected dedup enabled at 0.9, got %+v", bucket.Dedup)
	}
	if bucket.Stats.TotalCandidates != 0 || bucket.Stats.Reviewed != 0 {
		t.Errorf("expected zeroed stats, got %+v", bucket.Stats)
	}
	assertStatsDerivable(t, bucket)
}

func TestCreateBucketRequiresBook(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, err := engine.CreateBucket(context.Background(), CreateBucketRequest{}); err == nil {
		t.Fatal("expected error for missing book reference")
	}
}

func TestCreateBucketNoBackend(t *testing.T) {
	engine := NewHarvestService(&unavailableGateway{}, nil, 0.9)

	_, err := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	if !errors.Is(err, ErrNoBackend) {
		t.Fatalf("expected ErrNoBackend, got %v", err)
	}
}

func TestAddCandidateDedup(t *testing.T) {
	tests := []struct {
		name          string
		first         models.Passage
		second        models.Passage
		wantCandidate int
		wantDup       int
	}{
		{
			name:          "identical text different id",
			first:         passage("p1", "the crisis of European sciences"),
			second:        passage("p2", "the crisis of European sciences"),
			wantCandidate: 1,
			wantDup:       1,
		},
		{
			name:          "same id",
			first:         passage("p1", "the crisis of European sciences"),
			second:        passage("p1", "completely unrelated words here"),
			wantCandidate: 1,
			wantDup:       1,
		},
		{
			name:          "distinct texts",
			first:         passage("p1", "the crisis of European sciences"),
			second:        passage("p2", "phenomenology of internal time consciousness"),
			wantCandidate: 2,
			wantDup:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t)
			bucket, err := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
			if err != nil {
				t.Fatalf("CreateBucket failed: %v", err)
			}

			if _, err := engine.AddCandidate(context.Background(), bucket.ID, tt.first); err != nil {
				t.Fatalf("first AddCandidate failed: %v", err)
			}
			updated, err := engine.AddCandidate(context.Background(), bucket.ID, tt.second)
			if err != nil {
				t.Fatalf("second AddCandidate failed: %v", err)
			}

			if len(updated.Candidates) != tt.wantCandidate {
				t.Errorf("expected %d candidates, got %d", tt.wantCandidate, len(updated.Candidates))
			}
			if len(updated.DuplicateIDs) != tt.wantDup {
				t.Errorf("expected %d duplicates, got %d", tt.wantDup, len(updated.DuplicateIDs))
			}
			if updated.Stats.Duplicates != tt.wantDup {
				t.Errorf("stats.duplicates = %d, want %d", updated.Stats.Duplicates, tt.wantDup)
			}
			assertExclusive(t, updated)
			assertStatsDerivable(t, updated)
		})
	}
}

func TestAddCandidateDedupDisabled(t *testing.T) {
	engine, _ := newTestEngine(t)
	disabled := false
	bucket, err := engine.CreateBucket(context.Background(), CreateBucketRequest{
		BookID:       "book-1",
		DedupEnabled: &disabled,
	})
	if err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	if _, err := engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "same text")); err != nil {
		t.Fatalf("AddCandidate failed: %v", err)
	}
	updated, err := engine.AddCandidate(context.Background(), bucket.ID, passage("p2", "same text"))
	if err != nil {
		t.Fatalf("AddCandidate failed: %v", err)
	}

	// Similarity no longer blocks, exact id match still does
	if len(updated.Candidates) != 2 {
		t.Errorf("expected 2 candidates with dedup disabled, got %d", len(updated.Candidates))
	}

	updated, err = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "other text"))
	if err != nil {
		t.Fatalf("AddCandidate failed: %v", err)
	}
	if len(updated.DuplicateIDs) != 1 {
		t.Errorf("expected exact id match to dedup even when disabled, got %d duplicates", len(updated.DuplicateIDs))
	}
}

func TestRejectedDoesNotBlockReharvest(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})

	if _, err := engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "a rejected fragment of text")); err != nil {
		t.Fatalf("AddCandidate failed: %v", err)
	}
	if _, err := engine.RejectPassage(context.Background(), bucket.ID, "p1", "curator", "off topic"); err != nil {
		t.Fatalf("RejectPassage failed: %v", err)
	}

	// Same text, new id: rejected partition is not scanned by dedup
	updated, err := engine.AddCandidate(context.Background(), bucket.ID, passage("p2", "a rejected fragment of text"))
	if err != nil {
		t.Fatalf("AddCandidate failed: %v", err)
	}
	if len(updated.Candidates) != 1 {
		t.Errorf("expected re-harvest past rejected passage, got %d candidates", len(updated.Candidates))
	}
	if len(updated.DuplicateIDs) != 0 {
		t.Errorf("expected no duplicates, got %v", updated.DuplicateIDs)
	}
	assertExclusive(t, updated)
}

func TestApproveRejectStampCuration(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "first fragment"))
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p2", "second fragment entirely different"))

	updated, err := engine.ApprovePassage(context.Background(), bucket.ID, "p1", "alex")
	if err != nil {
		t.Fatalf("ApprovePassage failed: %v", err)
	}
	if len(updated.Approved) != 1 || updated.Approved[0].ID != "p1" {
		t.Fatalf("expected p1 approved, got %+v", updated.Approved)
	}
	if updated.Approved[0].Curation.Status != models.CurationApproved {
		t.Errorf("curation status = %s, want approved", updated.Approved[0].Curation.Status)
	}
	if updated.Approved[0].Curation.CuratedAt == nil || updated.Approved[0].Curation.CuratedBy != "alex" {
		t.Errorf("curation record not stamped: %+v", updated.Approved[0].Curation)
	}

	updated, err = engine.RejectPassage(context.Background(), bucket.ID, "p2", "alex", "too vague")
	if err != nil {
		t.Fatalf("RejectPassage failed: %v", err)
	}
	if len(updated.Rejected) != 1 || updated.Rejected[0].Curation.Notes != "too vague" {
		t.Fatalf("expected p2 rejected with reason, got %+v", updated.Rejected)
	}
	assertExclusive(t, updated)
	assertStatsDerivable(t, updated)
}

func TestCurateMissingPassage(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})

	if _, err := engine.ApprovePassage(context.Background(), bucket.ID, "ghost", "alex"); !errors.Is(err, ErrPassageNotFound) {
		t.Errorf("expected ErrPassageNotFound, got %v", err)
	}

	// Approving an already-approved passage is also a miss: approve requires
	// the passage to be in candidates
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "some fragment"))
	_, _ = engine.ApprovePassage(context.Background(), bucket.ID, "p1", "alex")
	if _, err := engine.ApprovePassage(context.Background(), bucket.ID, "p1", "alex"); !errors.Is(err, ErrPassageNotFound) {
		t.Errorf("expected ErrPassageNotFound on re-approve, got %v", err)
	}
}

func TestMarkAsGem(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "gem straight from candidates"))
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p2", "approved first then promoted"))

	// From candidates
	updated, err := engine.MarkAsGem(context.Background(), bucket.ID, "p1", "alex")
	if err != nil {
		t.Fatalf("MarkAsGem from candidates failed: %v", err)
	}
	if len(updated.Gems) != 1 || updated.Gems[0].Curation.Status != models.CurationGem {
		t.Fatalf("expected p1 as gem, got %+v", updated.Gems)
	}
	if updated.Stats.Reviewed != 1 {
		t.Errorf("gem from candidates should count as reviewed, stats: %+v", updated.Stats)
	}

	// From approved
	_, _ = engine.ApprovePassage(context.Background(), bucket.ID, "p2", "alex")
	updated, err = engine.MarkAsGem(context.Background(), bucket.ID, "p2", "alex")
	if err != nil {
		t.Fatalf("MarkAsGem from approved failed: %v", err)
	}
	if len(updated.Gems) != 2 || len(updated.Approved) != 0 {
		t.Fatalf("expected p2 moved approved → gems, got approved=%d gems=%d", len(updated.Approved), len(updated.Gems))
	}

	// Not from rejected
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p3", "a third unrelated fragment"))
	_, _ = engine.RejectPassage(context.Background(), bucket.ID, "p3", "alex", "")
	if _, err := engine.MarkAsGem(context.Background(), bucket.ID, "p3", "alex"); !errors.Is(err, ErrPassageNotFound) {
		t.Errorf("expected ErrPassageNotFound for rejected passage, got %v", err)
	}
	assertExclusive(t, updated)
	assertStatsDerivable(t, updated)
}

func TestUndoSymmetry(t *testing.T) {
	tests := []struct {
		name   string
		curate func(engine *HarvestService, bucketID string) error
	}{
		{
			name: "approve then undo",
			curate: func(engine *HarvestService, bucketID string) error {
				_, err := engine.ApprovePassage(context.Background(), bucketID, "p1", "alex")
				return err
			},
		},
		{
			name: "reject then undo",
			curate: func(engine *HarvestService, bucketID string) error {
				_, err := engine.RejectPassage(context.Background(), bucketID, "p1", "alex", "meh")
				return err
			},
		},
		{
			name: "gem then undo",
			curate: func(engine *HarvestService, bucketID string) error {
				_, err := engine.MarkAsGem(context.Background(), bucketID, "p1", "alex")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(t)
			bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
			before, err := engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "fragment under curation"))
			if err != nil {
				t.Fatalf("AddCandidate failed: %v", err)
			}

			if err := tt.curate(engine, bucket.ID); err != nil {
				t.Fatalf("curation failed: %v", err)
			}
			after, err := engine.MoveToCandidates(context.Background(), bucket.ID, "p1")
			if err != nil {
				t.Fatalf("MoveToCandidates failed: %v", err)
			}

			if !reflect.DeepEqual(after.Stats, before.Stats) {
				t.Errorf("stats not restored:\n before: %+v\n after:  %+v", before.Stats, after.Stats)
			}
			if len(after.Candidates) != 1 || after.Candidates[0].ID != "p1" {
				t.Fatalf("p1 not back in candidates: %+v", after.Candidates)
			}
			got := after.Candidates[0].Curation
			if got.Status != models.CurationCandidate || got.CuratedAt != nil || got.CuratedBy != "" {
				t.Errorf("curation record not reset: %+v", got)
			}
			if len(after.Approved)+len(after.Gems)+len(after.Rejected) != 0 {
				t.Errorf("reviewed partitions not emptied")
			}
			assertExclusive(t, after)
			assertStatsDerivable(t, after)
		})
	}
}

func TestLifecycleTransitions(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})

	// Cannot stage while collecting
	if _, err := engine.StageBucket(context.Background(), bucket.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition staging from collecting, got %v", err)
	}

	updated, err := engine.FinishCollecting(context.Background(), bucket.ID)
	if err != nil {
		t.Fatalf("FinishCollecting failed: %v", err)
	}
	if updated.Status != models.BucketReviewing || updated.CompletedAt == nil {
		t.Fatalf("expected reviewing with completedAt, got %s %v", updated.Status, updated.CompletedAt)
	}

	// Cannot finish twice
	if _, err := engine.FinishCollecting(context.Background(), bucket.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition finishing twice, got %v", err)
	}
}

func TestStageGuard(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "unreviewed fragment"))
	_, _ = engine.FinishCollecting(context.Background(), bucket.ID)

	if _, err := engine.StageBucket(context.Background(), bucket.ID); !errors.Is(err, ErrEmptyStage) {
		t.Fatalf("expected ErrEmptyStage, got %v", err)
	}

	current, _ := engine.GetBucket(bucket.ID)
	if current.Status != models.BucketReviewing {
		t.Errorf("failed stage must leave bucket reviewing, got %s", current.Status)
	}
}

func TestTerminalImmutability(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "a fragment"))

	discarded, err := engine.DiscardBucket(context.Background(), bucket.ID)
	if err != nil {
		t.Fatalf("DiscardBucket failed: %v", err)
	}
	if discarded.Status != models.BucketDiscarded || discarded.FinalizedAt == nil {
		t.Fatalf("expected discarded with finalizedAt, got %+v", discarded.Status)
	}

	if _, err := engine.AddCandidate(context.Background(), bucket.ID, passage("p2", "late fragment")); !errors.Is(err, ErrTerminalBucket) {
		t.Errorf("AddCandidate on terminal: expected ErrTerminalBucket, got %v", err)
	}
	if _, err := engine.ApprovePassage(context.Background(), bucket.ID, "p1", "alex"); !errors.Is(err, ErrTerminalBucket) {
		t.Errorf("ApprovePassage on terminal: expected ErrTerminalBucket, got %v", err)
	}
	if _, err := engine.StageBucket(context.Background(), bucket.ID); !errors.Is(err, ErrTerminalBucket) {
		t.Errorf("StageBucket on terminal: expected ErrTerminalBucket, got %v", err)
	}
	if _, err := engine.DiscardBucket(context.Background(), bucket.ID); !errors.Is(err, ErrTerminalBucket) {
		t.Errorf("DiscardBucket on terminal: expected ErrTerminalBucket, got %v", err)
	}

	current, _ := engine.GetBucket(bucket.ID)
	if len(current.Candidates) != 1 {
		t.Errorf("partitions mutated after terminal state: %d candidates", len(current.Candidates))
	}
}

func TestCommitCompleteness(t *testing.T) {
	engine, gw := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})

	for i, text := range []string{
		"first fragment about mornings",
		"second fragment about evenings",
		"third fragment about the sea",
	} {
		if _, err := engine.AddCandidate(context.Background(), bucket.ID, passage(fmt.Sprintf("p%d", i+1), text)); err != nil {
			t.Fatalf("AddCandidate failed: %v", err)
		}
	}
	_, _ = engine.ApprovePassage(context.Background(), bucket.ID, "p1", "alex")
	_, _ = engine.ApprovePassage(context.Background(), bucket.ID, "p2", "alex")
	_, _ = engine.MarkAsGem(context.Background(), bucket.ID, "p3", "alex")
	_, _ = engine.FinishCollecting(context.Background(), bucket.ID)
	_, _ = engine.StageBucket(context.Background(), bucket.ID)

	committed, err := engine.CommitBucket(context.Background(), bucket.ID)
	if err != nil {
		t.Fatalf("CommitBucket failed: %v", err)
	}
	if committed.Status != models.BucketCommitted || committed.FinalizedAt == nil {
		t.Fatalf("expected committed with finalizedAt, got %s", committed.Status)
	}

	book := gw.book("book-1")
	if len(book.Passages) != 3 {
		t.Fatalf("expected 3 passages in book, got %d", len(book.Passages))
	}
	statuses := map[string]models.CurationStatus{}
	for _, p := range book.Passages {
		statuses[p.ID] = p.Curation.Status
	}
	if statuses["p1"] != models.CurationApproved || statuses["p2"] != models.CurationApproved {
		t.Errorf("approved passages must keep approved status: %+v", statuses)
	}
	if statuses["p3"] != models.CurationGem {
		t.Errorf("gem passage must keep gem status: %+v", statuses)
	}
}

func TestCommitFailureLeavesStaged(t *testing.T) {
	engine, gw := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "only fragment"))
	_, _ = engine.ApprovePassage(context.Background(), bucket.ID, "p1", "alex")
	_, _ = engine.FinishCollecting(context.Background(), bucket.ID)
	_, _ = engine.StageBucket(context.Background(), bucket.ID)

	gw.failBookWrites = true
	if _, err := engine.CommitBucket(context.Background(), bucket.ID); err == nil {
		t.Fatal("expected commit to fail")
	}

	current, _ := engine.GetBucket(bucket.ID)
	if current.Status != models.BucketStaged {
		t.Fatalf("failed commit must leave bucket staged, got %s", current.Status)
	}

	// Retry succeeds once the backend recovers
	gw.failBookWrites = false
	committed, err := engine.CommitBucket(context.Background(), bucket.ID)
	if err != nil {
		t.Fatalf("retried commit failed: %v", err)
	}
	if committed.Status != models.BucketCommitted {
		t.Errorf("expected committed after retry, got %s", committed.Status)
	}
	if got := len(gw.book("book-1").Passages); got != 1 {
		t.Errorf("expected 1 passage in book after retry, got %d", got)
	}
}

func TestCommitUnknownBook(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "missing-book"})
	_, _ = engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "only fragment"))
	_, _ = engine.ApprovePassage(context.Background(), bucket.ID, "p1", "alex")
	_, _ = engine.FinishCollecting(context.Background(), bucket.ID)
	_, _ = engine.StageBucket(context.Background(), bucket.ID)

	if _, err := engine.CommitBucket(context.Background(), bucket.ID); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}

	current, _ := engine.GetBucket(bucket.ID)
	if current.Status != models.BucketStaged {
		t.Errorf("bucket must stay staged after missing-book commit, got %s", current.Status)
	}
}

func TestCommitRequiresStaged(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})

	if _, err := engine.CommitBucket(context.Background(), bucket.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition committing from collecting, got %v", err)
	}
}

// The concrete scenario from the curation workflow: harvest, dedup, approve,
// stage, commit.
func TestHusserlScenario(t *testing.T) {
	engine, gw := newTestEngine(t)

	bucket, err := engine.CreateBucket(context.Background(), CreateBucketRequest{
		BookID:  "book-1",
		Queries: []string{"husserl lifeworld"},
	})
	if err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	if _, err := engine.AddCandidate(context.Background(), bucket.ID, passage("P1", "the crisis of European sciences")); err != nil {
		t.Fatalf("AddCandidate P1 failed: %v", err)
	}
	updated, err := engine.AddCandidate(context.Background(), bucket.ID, passage("P2", "the crisis of European sciences"))
	if err != nil {
		t.Fatalf("AddCandidate P2 failed: %v", err)
	}

	if len(updated.Candidates) != 1 || updated.Candidates[0].ID != "P1" {
		t.Fatalf("candidates should hold only P1, got %+v", updated.Candidates)
	}
	if len(updated.DuplicateIDs) != 1 || updated.DuplicateIDs[0] != "P2" {
		t.Fatalf("P2 should be in duplicateIds, got %v", updated.DuplicateIDs)
	}

	updated, err = engine.ApprovePassage(context.Background(), bucket.ID, "P1", "alex")
	if err != nil {
		t.Fatalf("ApprovePassage failed: %v", err)
	}
	if updated.Stats.Approved != 1 {
		t.Errorf("stats.approved = %d, want 1", updated.Stats.Approved)
	}
	if updated.Stats.TotalCandidates != 2 {
		t.Errorf("stats.totalCandidates = %d, want 2 (P1 approved + P2 duplicate)", updated.Stats.TotalCandidates)
	}

	if _, err := engine.FinishCollecting(context.Background(), bucket.ID); err != nil {
		t.Fatalf("FinishCollecting failed: %v", err)
	}
	staged, err := engine.StageBucket(context.Background(), bucket.ID)
	if err != nil {
		t.Fatalf("StageBucket failed: %v", err)
	}
	if staged.Status != models.BucketStaged {
		t.Fatalf("expected staged, got %s", staged.Status)
	}

	committed, err := engine.CommitBucket(context.Background(), bucket.ID)
	if err != nil {
		t.Fatalf("CommitBucket failed: %v", err)
	}
	if committed.Status != models.BucketCommitted {
		t.Fatalf("expected committed, got %s", committed.Status)
	}

	book := gw.book("book-1")
	if len(book.Passages) != 1 {
		t.Fatalf("book should gain exactly 1 passage, got %d", len(book.Passages))
	}
	if book.Passages[0].Curation.Status != models.CurationApproved {
		t.Errorf("committed passage status = %s, want approved", book.Passages[0].Curation.Status)
	}
}

func TestAvgSimilarityNeverNaN(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})

	// No passage carries a similarity score
	updated, _ := engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "unscored fragment"))
	if updated.Stats.AvgSimilarity != 0 {
		t.Errorf("avgSimilarity with no scores = %f, want 0", updated.Stats.AvgSimilarity)
	}

	score := 0.75
	scored := passage("p2", "a completely different scored fragment")
	scored.Similarity = &score
	updated, _ = engine.AddCandidate(context.Background(), bucket.ID, scored)
	if updated.Stats.AvgSimilarity != 0.75 {
		t.Errorf("avgSimilarity = %f, want 0.75", updated.Stats.AvgSimilarity)
	}
}

func TestWarmStart(t *testing.T) {
	gw := newFakeGateway()
	gw.addBook("book-1", "Test Book")

	first := NewHarvestService(gw, nil, 0.9)
	bucket, err := first.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	if err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if _, err := first.AddCandidate(context.Background(), bucket.ID, passage("p1", "persisted fragment")); err != nil {
		t.Fatalf("AddCandidate failed: %v", err)
	}

	second := NewHarvestService(gw, nil, 0.9)
	if err := second.WarmStart(context.Background()); err != nil {
		t.Fatalf("WarmStart failed: %v", err)
	}

	restored, err := second.GetBucket(bucket.ID)
	if err != nil {
		t.Fatalf("bucket missing after warm start: %v", err)
	}
	if len(restored.Candidates) != 1 || restored.Candidates[0].ID != "p1" {
		t.Errorf("restored bucket lost candidates: %+v", restored.Candidates)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	engine, _ := newTestEngine(t)
	bucket, _ := engine.CreateBucket(context.Background(), CreateBucketRequest{BookID: "book-1"})
	snapshot, _ := engine.AddCandidate(context.Background(), bucket.ID, passage("p1", "guarded fragment"))

	// Mutating the snapshot must not affect engine state
	snapshot.Candidates[0].Text = "tampered"
	snapshot.Candidates = nil

	current, _ := engine.GetBucket(bucket.ID)
	if len(current.Candidates) != 1 || current.Candidates[0].Text != "guarded fragment" {
		t.Errorf("engine state mutated through snapshot: %+v", current.Candidates)
	}
}
