package models

import "time"

// CurationStatus is the triage state of a passage within a harvest bucket
type CurationStatus string

const (
	CurationCandidate CurationStatus = "candidate"
	CurationApproved  CurationStatus = "approved"
	CurationGem       CurationStatus = "gem"
	CurationRejected  CurationStatus = "rejected"
)

// PassageSource identifies where a passage was harvested from
type PassageSource struct {
	System   string `bson:"system" json:"system"`                   // Origin system key (e.g. "journal", "notes", "email")
	SourceID string `bson:"sourceId" json:"source_id"`              // ID within the origin system
	Label    string `bson:"label,omitempty" json:"label,omitempty"` // Display label for the origin
}

// CurationRecord tracks who triaged a passage and when
type CurationRecord struct {
	Status    CurationStatus `bson:"status" json:"status"`
	CuratedAt *time.Time     `bson:"curatedAt,omitempty" json:"curated_at,omitempty"`
	CuratedBy string         `bson:"curatedBy,omitempty" json:"curated_by,omitempty"`
	Notes     string         `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Passage is a harvested text fragment with provenance and curation metadata
type Passage struct {
	ID     string        `bson:"id" json:"id"`
	Source PassageSource `bson:"source" json:"source"`
	Text   string        `bson:"text" json:"text"`

	WordCount   int    `bson:"wordCount" json:"word_count"`
	HarvestRole string `bson:"harvestRole,omitempty" json:"harvest_role,omitempty"` // How the harvester selected it ("query_match", "context", "agent_pick")

	// Similarity to the originating search query, when the harvester scored it
	Similarity *float64 `bson:"similarity,omitempty" json:"similarity,omitempty"`

	Curation CurationRecord `bson:"curation" json:"curation"`
	Tags     []string       `bson:"tags,omitempty" json:"tags,omitempty"`
}
