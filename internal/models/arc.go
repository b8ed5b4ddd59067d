package models

import "time"

// ArcStatus is the evaluation state of a narrative arc
type ArcStatus string

const (
	ArcProposed ArcStatus = "proposed"
	ArcApproved ArcStatus = "approved"
	ArcRejected ArcStatus = "rejected"
)

// NarrativeArc is a proposed organizing thesis for a book, evaluated
// independently of passage curation
type NarrativeArc struct {
	ID     string    `bson:"_id" json:"id"`
	BookID string    `bson:"bookId" json:"book_id"`
	Thesis string    `bson:"thesis" json:"thesis"`
	Status ArcStatus `bson:"status" json:"status"`

	ProposedBy  string     `bson:"proposedBy,omitempty" json:"proposed_by,omitempty"`
	EvaluatedAt *time.Time `bson:"evaluatedAt,omitempty" json:"evaluated_at,omitempty"`
	Notes       string     `bson:"notes,omitempty" json:"notes,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// PassageLink is an append-only placement record binding a passage to a
// chapter at a position, used to find passages not yet drafted into text
type PassageLink struct {
	ID        string    `bson:"_id" json:"id"`
	BookID    string    `bson:"bookId" json:"book_id"`
	PassageID string    `bson:"passageId" json:"passage_id"`
	ChapterID string    `bson:"chapterId" json:"chapter_id"`
	Position  int       `bson:"position" json:"position"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}
