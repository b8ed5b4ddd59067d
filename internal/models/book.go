package models

import "time"

// Book is the permanent record that committed passages land in. The engine
// only reads its identity and appends passages; chapters and metadata are
// owned by the book-management collaborator.
type Book struct {
	ID    string `bson:"_id" json:"id"`
	URI   string `bson:"uri,omitempty" json:"uri,omitempty"` // Stable external reference (e.g. "book://memoir-2026")
	Title string `bson:"title" json:"title"`

	Passages   []Passage `bson:"passages" json:"passages"` // Committed record, append-only from the engine's side
	ChapterIDs []string  `bson:"chapterIds,omitempty" json:"chapter_ids,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}
