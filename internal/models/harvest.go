package models

import "time"

// BucketStatus is the lifecycle state of a harvest bucket
type BucketStatus string

const (
	BucketCollecting BucketStatus = "collecting"
	BucketReviewing  BucketStatus = "reviewing"
	BucketStaged     BucketStatus = "staged"
	BucketCommitted  BucketStatus = "committed"
	BucketDiscarded  BucketStatus = "discarded"
)

// IsTerminal reports whether the bucket can never be mutated again
func (s BucketStatus) IsTerminal() bool {
	return s == BucketCommitted || s == BucketDiscarded
}

// Bucket initiator constants
const (
	InitiatorUser  = "user"
	InitiatorAgent = "agent"
)

// Default similarity threshold above which two passages are duplicates
const DefaultDedupThreshold = 0.9

// DedupConfig controls duplicate detection on candidate ingestion
type DedupConfig struct {
	Enabled   bool    `bson:"enabled" json:"enabled"`
	Threshold float64 `bson:"threshold" json:"threshold"`
}

// BucketStats is a denormalized snapshot derived from the four partitions.
// It is a cache, never a source of truth.
type BucketStats struct {
	TotalCandidates   int     `bson:"totalCandidates" json:"total_candidates"` // Everything ever seen, duplicates included
	Reviewed          int     `bson:"reviewed" json:"reviewed"`                // approved + gems + rejected
	Approved          int     `bson:"approved" json:"approved"`
	Gems              int     `bson:"gems" json:"gems"`
	Rejected          int     `bson:"rejected" json:"rejected"`
	Duplicates        int     `bson:"duplicates" json:"duplicates"`
	AvgSimilarity     float64 `bson:"avgSimilarity" json:"avg_similarity"`
	ApprovedWordCount int     `bson:"approvedWordCount" json:"approved_word_count"`
}

// HarvestBucket is a staging area scoped to one book, holding passages in
// four curation partitions pending a commit decision
type HarvestBucket struct {
	ID       string `bson:"_id" json:"id"`
	BookID   string `bson:"bookId" json:"book_id"`
	ThreadID string `bson:"threadId,omitempty" json:"thread_id,omitempty"` // Owning discussion thread, if any

	Status  BucketStatus `bson:"status" json:"status"`
	Queries []string     `bson:"queries" json:"queries"` // Search queries that seeded the harvest

	Candidates []Passage `bson:"candidates" json:"candidates"`
	Approved   []Passage `bson:"approved" json:"approved"`
	Gems       []Passage `bson:"gems" json:"gems"`
	Rejected   []Passage `bson:"rejected" json:"rejected"`

	// IDs recognized as duplicates and excluded from all partitions
	DuplicateIDs []string `bson:"duplicateIds,omitempty" json:"duplicate_ids,omitempty"`

	Dedup DedupConfig `bson:"dedup" json:"dedup"`
	Stats BucketStats `bson:"stats" json:"stats"`

	InitiatedBy string `bson:"initiatedBy" json:"initiated_by"` // "user" or "agent"

	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updated_at"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completed_at,omitempty"` // Collection stopped
	FinalizedAt *time.Time `bson:"finalizedAt,omitempty" json:"finalized_at,omitempty"` // Committed or discarded
}

// AllApproved returns the union of approved and gem passages, the set that a
// commit writes into the book. Gems keep their gem status.
func (b *HarvestBucket) AllApproved() []Passage {
	out := make([]Passage, 0, len(b.Approved)+len(b.Gems))
	out = append(out, b.Approved...)
	out = append(out, b.Gems...)
	return out
}
