package services

import (
	"context"
	"log"

	"bindery/internal/config"
	"bindery/internal/database"
	"bindery/internal/models"
)

// StorageGateway hides which concrete backend is active. The engine and the
// arc/link registry never branch on backend identity; they ask the gateway.
type StorageGateway interface {
	// PrimaryAvailable reports whether the primary structured store is reachable
	PrimaryAvailable() bool
	// FallbackAllowed reports whether the local fallback store may serve reads
	// (true only outside production deployments)
	FallbackAllowed() bool
	// WritesEnabled reports whether mutating operations can be persisted
	WritesEnabled() bool

	LoadBuckets(ctx context.Context) ([]models.HarvestBucket, error)
	UpsertBucket(ctx context.Context, bucket *models.HarvestBucket) error
	DeleteBucket(ctx context.Context, bucketID string) error

	LoadBook(ctx context.Context, idOrURI string) (*models.Book, error)
	UpsertBookPassages(ctx context.Context, bookID string, passages []models.Passage) error

	LoadArcs(ctx context.Context, bookID string) ([]models.NarrativeArc, error)
	UpsertArc(ctx context.Context, arc *models.NarrativeArc) error

	LoadLinks(ctx context.Context, bookID string) ([]models.PassageLink, error)
	AppendLink(ctx context.Context, link *models.PassageLink) error
}

// SelectGateway picks the active backend once at startup. The primary store
// is authoritative whenever it is reachable; the local store is a
// development-only fallback and is write-enabled only under an explicit flag.
// With neither available the returned gateway fails every write and serves
// empty reads.
func SelectGateway(cfg *config.Config, mongodb *database.MongoDB, local *database.LocalStore) StorageGateway {
	if mongodb != nil {
		log.Println("✅ [STORAGE] Using primary structured store (MongoDB)")
		return NewMongoGateway(mongodb)
	}

	if local != nil && !cfg.IsProduction() {
		writes := cfg.LocalStoreWrites
		if writes {
			log.Println("⚠️ [STORAGE] Using local fallback store with writes enabled (development only)")
		} else {
			log.Println("⚠️ [STORAGE] Using local fallback store (read-only)")
		}
		return NewLocalGateway(local, writes)
	}

	log.Println("❌ [STORAGE] No persistence backend available; mutations will fail")
	return &unavailableGateway{}
}

// unavailableGateway serves empty reads and hard-fails every write
type unavailableGateway struct{}

func (g *unavailableGateway) PrimaryAvailable() bool { return false }
func (g *unavailableGateway) FallbackAllowed() bool  { return false }
func (g *unavailableGateway) WritesEnabled() bool    { return false }

func (g *unavailableGateway) LoadBuckets(ctx context.Context) ([]models.HarvestBucket, error) {
	return nil, nil
}

func (g *unavailableGateway) UpsertBucket(ctx context.Context, bucket *models.HarvestBucket) error {
	return ErrNoBackend
}

func (g *unavailableGateway) DeleteBucket(ctx context.Context, bucketID string) error {
	return ErrNoBackend
}

func (g *unavailableGateway) LoadBook(ctx context.Context, idOrURI string) (*models.Book, error) {
	return nil, nil
}

func (g *unavailableGateway) UpsertBookPassages(ctx context.Context, bookID string, passages []models.Passage) error {
	return ErrNoBackend
}

func (g *unavailableGateway) LoadArcs(ctx context.Context, bookID string) ([]models.NarrativeArc, error) {
	return nil, nil
}

func (g *unavailableGateway) UpsertArc(ctx context.Context, arc *models.NarrativeArc) error {
	return ErrNoBackend
}

func (g *unavailableGateway) LoadLinks(ctx context.Context, bookID string) ([]models.PassageLink, error) {
	return nil, nil
}

func (g *unavailableGateway) AppendLink(ctx context.Context, link *models.PassageLink) error {
	return ErrNoBackend
}
