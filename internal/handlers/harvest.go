package handlers

import (
	"errors"
	"log"

	"bindery/internal/config"
	"bindery/internal/models"
	"bindery/internal/services"
	"github.com/gofiber/fiber/v2"
)

// HarvestHandler exposes the harvest-bucket curation engine over HTTP
type HarvestHandler struct {
	engine  *services.HarvestService
	sources *config.SourcesConfig
}

// NewHarvestHandler creates a new harvest handler
func NewHarvestHandler(engine *services.HarvestService, sources *config.SourcesConfig) *HarvestHandler {
	return &HarvestHandler{engine: engine, sources: sources}
}

// Register mounts the bucket routes
func (h *HarvestHandler) Register(api fiber.Router) {
	buckets := api.Group("/buckets")
	buckets.Post("/", h.CreateBucket)
	buckets.Get("/", h.ListBuckets)
	buckets.Get("/:bucketID", h.GetBucket)
	buckets.Post("/:bucketID/candidates", h.AddCandidate)
	buckets.Post("/:bucketID/passages/:passageID/approve", h.ApprovePassage)
	buckets.Post("/:bucketID/passages/:passageID/reject", h.RejectPassage)
	buckets.Post("/:bucketID/passages/:passageID/gem", h.MarkAsGem)
	buckets.Post("/:bucketID/passages/:passageID/restore", h.MoveToCandidates)
	buckets.Post("/:bucketID/finish", h.FinishCollecting)
	buckets.Post("/:bucketID/stage", h.StageBucket)
	buckets.Post("/:bucketID/commit", h.CommitBucket)
	buckets.Post("/:bucketID/discard", h.DiscardBucket)
}

// CreateBucketRequest is the JSON body for bucket creation
type CreateBucketRequest struct {
	BookID         string   `json:"book_id"`
	ThreadID       string   `json:"thread_id"`
	Queries        []string `json:"queries"`
	InitiatedBy    string   `json:"initiated_by"`
	DedupEnabled   *bool    `json:"dedup_enabled"`
	DedupThreshold *float64 `json:"dedup_threshold"`
}

// CreateBucket creates a new harvest bucket
// POST /api/buckets
func (h *HarvestHandler) CreateBucket(c *fiber.Ctx) error {
	var req CreateBucketRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.BookID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "book_id is required",
		})
	}

	bucket, err := h.engine.CreateBucket(c.Context(), services.CreateBucketRequest{
		BookID:         req.BookID,
		ThreadID:       req.ThreadID,
		Queries:        req.Queries,
		InitiatedBy:    req.InitiatedBy,
		DedupEnabled:   req.DedupEnabled,
		DedupThreshold: req.DedupThreshold,
	})
	if err != nil {
		return curationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(bucket)
}

// ListBuckets lists buckets, optionally filtered by book
// GET /api/buckets?book_id=...
func (h *HarvestHandler) ListBuckets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"buckets": h.engine.ListBuckets(c.Query("book_id")),
	})
}

// GetBucket returns one bucket
// GET /api/buckets/:bucketID
func (h *HarvestHandler) GetBucket(c *fiber.Ctx) error {
	bucket, err := h.engine.GetBucket(c.Params("bucketID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// AddCandidateRequest is the JSON body for candidate ingestion
type AddCandidateRequest struct {
	ID         string   `json:"id"`
	System     string   `json:"system"`
	SourceID   string   `json:"source_id"`
	Text       string   `json:"text"`
	Role       string   `json:"role"`
	Similarity *float64 `json:"similarity"`
	Tags       []string `json:"tags"`
}

// AddCandidate ingests a harvested passage into a bucket
// POST /api/buckets/:bucketID/candidates
func (h *HarvestHandler) AddCandidate(c *fiber.Ctx) error {
	var req AddCandidateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	passage := models.Passage{
		ID: req.ID,
		Source: models.PassageSource{
			System:   req.System,
			SourceID: req.SourceID,
			Label:    h.sources.LabelFor(req.System),
		},
		Text:        req.Text,
		HarvestRole: req.Role,
		Similarity:  req.Similarity,
		Tags:        req.Tags,
	}

	bucket, err := h.engine.AddCandidate(c.Context(), c.Params("bucketID"), passage)
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// ApprovePassage moves a candidate into the approved partition
// POST /api/buckets/:bucketID/passages/:passageID/approve
func (h *HarvestHandler) ApprovePassage(c *fiber.Ctx) error {
	var req struct {
		Curator string `json:"curator"`
	}
	_ = c.BodyParser(&req)

	bucket, err := h.engine.ApprovePassage(c.Context(), c.Params("bucketID"), c.Params("passageID"), req.Curator)
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// RejectPassage moves a candidate into the rejected partition
// POST /api/buckets/:bucketID/passages/:passageID/reject
func (h *HarvestHandler) RejectPassage(c *fiber.Ctx) error {
	var req struct {
		Curator string `json:"curator"`
		Reason  string `json:"reason"`
	}
	_ = c.BodyParser(&req)

	bucket, err := h.engine.RejectPassage(c.Context(), c.Params("bucketID"), c.Params("passageID"), req.Curator, req.Reason)
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// MarkAsGem promotes a candidate or approved passage to a gem
// POST /api/buckets/:bucketID/passages/:passageID/gem
func (h *HarvestHandler) MarkAsGem(c *fiber.Ctx) error {
	var req struct {
		Curator string `json:"curator"`
	}
	_ = c.BodyParser(&req)

	bucket, err := h.engine.MarkAsGem(c.Context(), c.Params("bucketID"), c.Params("passageID"), req.Curator)
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// MoveToCandidates undoes a curation decision
// POST /api/buckets/:bucketID/passages/:passageID/restore
func (h *HarvestHandler) MoveToCandidates(c *fiber.Ctx) error {
	bucket, err := h.engine.MoveToCandidates(c.Context(), c.Params("bucketID"), c.Params("passageID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// FinishCollecting stops collection on a bucket
// POST /api/buckets/:bucketID/finish
func (h *HarvestHandler) FinishCollecting(c *fiber.Ctx) error {
	bucket, err := h.engine.FinishCollecting(c.Context(), c.Params("bucketID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// StageBucket marks a reviewed bucket ready to commit
// POST /api/buckets/:bucketID/stage
func (h *HarvestHandler) StageBucket(c *fiber.Ctx) error {
	bucket, err := h.engine.StageBucket(c.Context(), c.Params("bucketID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// CommitBucket writes approved passages into the book
// POST /api/buckets/:bucketID/commit
func (h *HarvestHandler) CommitBucket(c *fiber.Ctx) error {
	bucket, err := h.engine.CommitBucket(c.Context(), c.Params("bucketID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// DiscardBucket abandons a bucket without committing
// POST /api/buckets/:bucketID/discard
func (h *HarvestHandler) DiscardBucket(c *fiber.Ctx) error {
	bucket, err := h.engine.DiscardBucket(c.Context(), c.Params("bucketID"))
	if err != nil {
		return curationError(c, err)
	}
	return c.JSON(bucket)
}

// curationError maps engine errors onto HTTP statuses. Lifecycle violations
// are conflicts the caller can correct; a missing backend blocks the whole
// workflow.
func curationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrBucketNotFound),
		errors.Is(err, services.ErrPassageNotFound),
		errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrArcNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrTerminalBucket),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrEmptyStage),
		errors.Is(err, services.ErrArcEvaluated):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, services.ErrNoBackend),
		errors.Is(err, services.ErrReadOnlyStore):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "No persistence backend available; curation is blocked",
		})
	default:
		log.Printf("❌ [API] Unexpected error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal error"})
	}
}
