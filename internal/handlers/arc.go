package handlers

import (
	"bindery/internal/services"
	"github.com/gofiber/fiber/v2"
)

// ArcHandler exposes the narrative arc and passage-link registries over HTTP
type ArcHandler struct {
	arcs  *services.ArcService
	links *services.LinkService
}

// NewArcHandler creates a new arc/link handler
func NewArcHandler(arcs *services.ArcService, links *services.LinkService) *ArcHandler {
	return &ArcHandler{arcs: arcs, links: links}
}

// Register mounts the book-scoped registry routes
func (h *ArcHandler) Register(api fiber.Router) {
	books := api.Group("/books/:bookID")
	books.Post("/arcs", h.ProposeArc)
	books.Get("/arcs", h.ListArcs)
	books.Post("/arcs/:arcID/evaluate", h.EvaluateArc)
	books.Post("/links", h.AppendLink)
	books.Get("/links", h.ListLinks)
	books.Get("/orphans", h.OrphanedPassages)
}

// ProposeArc records a new thesis proposal
// POST /api/books/:bookID/arcs
func (h *ArcHandler) ProposeArc(c *fiber.Ctx) error {
	var req struct {
		Thesis     string `json:"thesis"`
		ProposedBy string `json:"proposed_by"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Thesis == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "thesis is required",
		})
	}

	arc, err := h.arcs.ProposeArc(c.Context(), c.Params("bookID"), req.Thesis, req.ProposedBy)
	if err != nil {
		return curationError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(arc)
}

// ListArcs returns all arcs proposed for a book
// GET /api/books/:bookID/arcs
func (h *ArcHandler) ListArcs(c *fiber.Ctx) error {
	arcs, err := h.arcs.ListArcs(c.Context(), c.Params("bookID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(fiber.Map{"arcs": arcs})
}

// EvaluateArc settles a proposed arc
// POST /api/books/:bookID/arcs/:arcID/evaluate
func (h *ArcHandler) EvaluateArc(c *fiber.Ctx) error {
	var req struct {
		Approve bool   `json:"approve"`
		Notes   string `json:"notes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	arc, err := h.arcs.EvaluateArc(c.Context(), c.Params("bookID"), c.Params("arcID"), req.Approve, req.Notes)
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(arc)
}

// AppendLink records a passage placement
// POST /api/books/:bookID/links
func (h *ArcHandler) AppendLink(c *fiber.Ctx) error {
	var req struct {
		PassageID string `json:"passage_id"`
		ChapterID string `json:"chapter_id"`
		Position  int    `json:"position"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.PassageID == "" || req.ChapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "passage_id and chapter_id are required",
		})
	}

	link, err := h.links.AppendLink(c.Context(), c.Params("bookID"), req.PassageID, req.ChapterID, req.Position)
	if err != nil {
		return curationError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(link)
}

// ListLinks returns placement records for a book
// GET /api/books/:bookID/links?chapter_id=...
func (h *ArcHandler) ListLinks(c *fiber.Ctx) error {
	links, err := h.links.ListLinks(c.Context(), c.Params("bookID"), c.Query("chapter_id"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(fiber.Map{"links": links})
}

// OrphanedPassages returns committed passages never placed into a chapter
// GET /api/books/:bookID/orphans
func (h *ArcHandler) OrphanedPassages(c *fiber.Ctx) error {
	orphaned, err := h.links.OrphanedPassages(c.Context(), c.Params("bookID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(fiber.Map{"orphaned": orphaned})
}
