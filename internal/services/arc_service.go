package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"bindery/internal/models"
	"github.com/google/uuid"
)

// ArcService is the narrative-arc registry: thesis proposals for a book with
// a two-state evaluation attached after creation, independent of any bucket.
type ArcService struct {
	gateway StorageGateway
}

// NewArcService creates the arc registry
func NewArcService(gateway StorageGateway) *ArcService {
	return &ArcService{gateway: gateway}
}

// ProposeArc records a new organizing thesis for a book
func (s *ArcService) ProposeArc(ctx context.Context, bookID, thesis, proposedBy string) (*models.NarrativeArc, error) {
	if bookID == "" || thesis == "" {
		return nil, fmt.Errorf("book id and thesis are required")
	}
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	arc := &models.NarrativeArc{
		ID:         uuid.New().String(),
		BookID:     bookID,
		Thesis:     thesis,
		Status:     models.ArcProposed,
		ProposedBy: proposedBy,
		CreatedAt:  time.Now(),
	}

	if err := s.gateway.UpsertArc(ctx, arc); err != nil {
		return nil, fmt.Errorf("failed to propose arc: %w", err)
	}

	log.Printf("📖 [ARC] Proposed arc %s for book %s", arc.ID, bookID)
	return arc, nil
}

// EvaluateArc settles a proposed arc as approved or rejected. Evaluation is
// one-way; an already evaluated arc cannot be re-evaluated.
func (s *ArcService) EvaluateArc(ctx context.Context, bookID, arcID string, approve bool, notes string) (*models.NarrativeArc, error) {
	if !s.gateway.WritesEnabled() {
		return nil, ErrNoBackend
	}

	arcs, err := s.gateway.LoadArcs(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load arcs: %w", err)
	}

	var arc *models.NarrativeArc
	for i := range arcs {
		if arcs[i].ID == arcID {
			arc = &arcs[i]
			break
		}
	}
	if arc == nil {
		return nil, ErrArcNotFound
	}
	if arc.Status != models.ArcProposed {
		log.Printf("🚫 [ARC] Arc %s already evaluated (%s)", arcID, arc.Status)
		return nil, ErrArcEvaluated
	}

	now := time.Now()
	if approve {
		arc.Status = models.ArcApproved
	} else {
		arc.Status = models.ArcRejected
	}
	arc.EvaluatedAt = &now
	arc.Notes = notes

	if err := s.gateway.UpsertArc(ctx, arc); err != nil {
		return nil, fmt.Errorf("failed to evaluate arc: %w", err)
	}

	log.Printf("📖 [ARC] Arc %s evaluated: %s", arcID, arc.Status)
	return arc, nil
}

// ListArcs returns all arcs proposed for a book
func (s *ArcService) ListArcs(ctx context.Context, bookID string) ([]models.NarrativeArc, error) {
	arcs, err := s.gateway.LoadArcs(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list arcs: %w", err)
	}
	return arcs, nil
}
