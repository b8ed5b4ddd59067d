package services

import (
	"context"
	"encoding/json"
	"fmt"

	"bindery/internal/database"
	"bindery/internal/models"
)

// LocalGateway targets the development-only SQLite fallback store. Writes are
// rejected unless the store was explicitly write-enabled at startup.
type LocalGateway struct {
	store         *database.LocalStore
	writesEnabled bool
}

// NewLocalGateway creates a gateway backed by the local store
func NewLocalGateway(store *database.LocalStore, writesEnabled bool) *LocalGateway {
	return &LocalGateway{store: store, writesEnabled: writesEnabled}
}

func (g *LocalGateway) PrimaryAvailable() bool { return false }
func (g *LocalGateway) FallbackAllowed() bool  { return g.store.Ping() == nil }
func (g *LocalGateway) WritesEnabled() bool    { return g.writesEnabled }

func (g *LocalGateway) guardWrite() error {
	if !g.writesEnabled {
		return ErrReadOnlyStore
	}
	return nil
}

// LoadBuckets returns all stored harvest buckets
func (g *LocalGateway) LoadBuckets(ctx context.Context) ([]models.HarvestBucket, error) {
	var buckets []models.HarvestBucket
	err := g.store.ListDocuments(ctx, database.CollectionBuckets, "", func(data []byte) error {
		var b models.HarvestBucket
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("failed to decode stored bucket: %w", err)
		}
		buckets = append(buckets, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// UpsertBucket writes the full bucket document
func (g *LocalGateway) UpsertBucket(ctx context.Context, bucket *models.HarvestBucket) error {
	if err := g.guardWrite(); err != nil {
		return err
	}
	return g.store.PutDocument(ctx, database.CollectionBuckets,
		bucket.ID, bucket.BookID, string(bucket.Status), bucket)
}

// DeleteBucket removes a bucket document (retention sweep)
func (g *LocalGateway) DeleteBucket(ctx context.Context, bucketID string) error {
	if err := g.guardWrite(); err != nil {
		return err
	}
	return g.store.DeleteDocument(ctx, database.CollectionBuckets, bucketID)
}

// LoadBook resolves a book by id, then by its stable URI
func (g *LocalGateway) LoadBook(ctx context.Context, idOrURI string) (*models.Book, error) {
	data, err := g.store.GetDocument(ctx, database.CollectionBooks, idOrURI, false)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data, err = g.store.GetDocument(ctx, database.CollectionBooks, idOrURI, true)
		if err != nil {
			return nil, err
		}
	}
	if data == nil {
		return nil, nil
	}

	var book models.Book
	if err := json.Unmarshal(data, &book); err != nil {
		return nil, fmt.Errorf("failed to decode stored book: %w", err)
	}
	return &book, nil
}

// UpsertBookPassages appends committed passages to the book's record
func (g *LocalGateway) UpsertBookPassages(ctx context.Context, bookID string, passages []models.Passage) error {
	if err := g.guardWrite(); err != nil {
		return err
	}
	if len(passages) == 0 {
		return nil
	}

	book, err := g.LoadBook(ctx, bookID)
	if err != nil {
		return err
	}
	if book == nil {
		return fmt.Errorf("book %s: %w", bookID, ErrBookNotFound)
	}

	book.Passages = append(book.Passages, passages...)
	return g.store.PutDocument(ctx, database.CollectionBooks, book.ID, book.URI, "", book)
}

// LoadArcs returns narrative arcs for a book
func (g *LocalGateway) LoadArcs(ctx context.Context, bookID string) ([]models.NarrativeArc, error) {
	var arcs []models.NarrativeArc
	err := g.store.ListDocuments(ctx, database.CollectionArcs, bookID, func(data []byte) error {
		var a models.NarrativeArc
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("failed to decode stored arc: %w", err)
		}
		arcs = append(arcs, a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return arcs, nil
}

// UpsertArc writes the full arc document
func (g *LocalGateway) UpsertArc(ctx context.Context, arc *models.NarrativeArc) error {
	if err := g.guardWrite(); err != nil {
		return err
	}
	return g.store.PutDocument(ctx, database.CollectionArcs,
		arc.ID, arc.BookID, string(arc.Status), arc)
}

// LoadLinks returns passage placement links for a book
func (g *LocalGateway) LoadLinks(ctx context.Context, bookID string) ([]models.PassageLink, error) {
	var links []models.PassageLink
	err := g.store.ListDocuments(ctx, database.CollectionLinks, bookID, func(data []byte) error {
		var l models.PassageLink
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("failed to decode stored link: %w", err)
		}
		links = append(links, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// AppendLink inserts a placement record; links are append-only
func (g *LocalGateway) AppendLink(ctx context.Context, link *models.PassageLink) error {
	if err := g.guardWrite(); err != nil {
		return err
	}
	return g.store.PutLink(ctx, link.ID, link.BookID, link.PassageID, link.ChapterID, link)
}
