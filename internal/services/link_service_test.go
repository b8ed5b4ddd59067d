package services

import (
	"context"
	"errors"
	"testing"

	"bindery/internal/models"
)

func TestAppendAndListLinks(t *testing.T) {
	gw := newFakeGateway()
	gw.addBook("book-1", "Test Book")
	links := NewLinkService(gw)

	if _, err := links.AppendLink(context.Background(), "book-1", "p1", "ch1", 0); err != nil {
		t.Fatalf("AppendLink failed: %v", err)
	}
	if _, err := links.AppendLink(context.Background(), "book-1", "p2", "ch1", 1); err != nil {
		t.Fatalf("AppendLink failed: %v", err)
	}
	if _, err := links.AppendLink(context.Background(), "book-1", "p3", "ch2", 0); err != nil {
		t.Fatalf("AppendLink failed: %v", err)
	}

	all, err := links.ListLinks(context.Background(), "book-1", "")
	if err != nil {
		t.Fatalf("ListLinks failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 links, got %d", len(all))
	}

	ch1, err := links.ListLinks(context.Background(), "book-1", "ch1")
	if err != nil {
		t.Fatalf("ListLinks by chapter failed: %v", err)
	}
	if len(ch1) != 2 {
		t.Errorf("expected 2 links in ch1, got %d", len(ch1))
	}
}

func TestAppendLinkValidation(t *testing.T) {
	gw := newFakeGateway()
	links := NewLinkService(gw)

	if _, err := links.AppendLink(context.Background(), "book-1", "", "ch1", 0); err == nil {
		t.Error("expected error for missing passage id")
	}
	if _, err := links.AppendLink(context.Background(), "book-1", "p1", "", 0); err == nil {
		t.Error("expected error for missing chapter id")
	}
}

func TestOrphanedPassages(t *testing.T) {
	gw := newFakeGateway()
	gw.addBook("book-1", "Test Book")
	gw.books["book-1"].Passages = []models.Passage{
		{ID: "p1", Text: "placed passage"},
		{ID: "p2", Text: "orphaned passage"},
		{ID: "p3", Text: "another orphan"},
	}
	links := NewLinkService(gw)

	if _, err := links.AppendLink(context.Background(), "book-1", "p1", "ch1", 0); err != nil {
		t.Fatalf("AppendLink failed: %v", err)
	}

	orphaned, err := links.OrphanedPassages(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("OrphanedPassages failed: %v", err)
	}
	if len(orphaned) != 2 {
		t.Fatalf("expected 2 orphaned passages, got %d", len(orphaned))
	}
	ids := map[string]bool{}
	for _, p := range orphaned {
		ids[p.ID] = true
	}
	if !ids["p2"] || !ids["p3"] {
		t.Errorf("expected p2 and p3 orphaned, got %v", ids)
	}
}

func TestOrphanedPassagesUnknownBook(t *testing.T) {
	gw := newFakeGateway()
	links := NewLinkService(gw)

	if _, err := links.OrphanedPassages(context.Background(), "missing"); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}
