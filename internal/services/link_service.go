package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"bindery/internal/models"
	"github.com/google/uuid"
)

// LinkService is the passage-link registry: append-only placement records
// binding committed passages to chapters, and the derived orphaned-passage
// query over them.
type LinkService struct {
	gateway StorageGateway
}

// NewLinkService creates the link registry
func NewLinkService(gateway StorageGateway) *LinkService {
	return &LinkService{gateway: gateway}
}

// AppendLink records that a passage was placed into a chapter at a position
func (s *LinkService) AppendLink(ctx context.Context, bookID, passageID, chapterID string, position int) (*models.PassageLink, error) {
	if bookID == "" || passageID == "" || chapterID == "" {
		return nil, fmt.Errorf("book, passage and chapter ids are required")
	}
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	link := &models.PassageLink{
		ID:        uuid.New().String(),
		BookID:    bookID,
		PassageID: passageID,
		ChapterID: chapterID,
		Position:  position,
		CreatedAt: time.Now(),
	}

	if err := s.gateway.AppendLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to append link: %w", err)
	}

	log.Printf("🔗 [LINK] Placed passage %s into chapter %s of book %s at position %d",
		passageID, chapterID, bookID, position)
	return link, nil
}

// ListLinks returns placement records for a book, optionally for one chapter
func (s *LinkService) ListLinks(ctx context.Context, bookID, chapterID string) ([]models.PassageLink, error) {
	links, err := s.gateway.LoadLinks(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	if chapterID == "" {
		return links, nil
	}

	filtered := links[:0]
	for _, l := range links {
		if l.ChapterID == chapterID {
			filtered = append(filtered, l)
		}
	}
	return filtered, nil
}

// OrphanedPassages returns the book's committed passages whose id appears in
// no placement link, i.e. harvested but never drafted into a chapter.
func (s *LinkService) OrphanedPassages(ctx context.Context, bookID string) ([]models.Passage, error) {
	book, err := s.gateway.LoadBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load book: %w", err)
	}
	if book == nil {
		return nil, ErrBookNotFound
	}

	links, err := s.gateway.LoadLinks(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}

	linked := make(map[string]struct{}, len(links))
	for _, l := range links {
		linked[l.PassageID] = struct{}{}
	}

	var orphaned []models.Passage
	for _, p := range book.Passages {
		if _, ok := linked[p.ID]; !ok {
			orphaned = append(orphaned, p)
		}
	}
	return orphaned, nil
}
