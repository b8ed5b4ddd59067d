package services

import (
	"context"
	"fmt"
	"time"

	"bindery/internal/database"
	"bindery/internal/models"
	cache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	bookCacheTTL     = 5 * time.Minute
	bookCacheCleanup = 10 * time.Minute
)

// MongoGateway targets the primary structured store
type MongoGateway struct {
	mongodb *database.MongoDB
	buckets *mongo.Collection
	books   *mongo.Collection
	arcs    *mongo.Collection
	links   *mongo.Collection

	// Book lookups are hot during commit; cache them briefly
	bookCache *cache.Cache
}

// NewMongoGateway creates a gateway backed by MongoDB
func NewMongoGateway(mongodb *database.MongoDB) *MongoGateway {
	return &MongoGateway{
		mongodb:   mongodb,
		buckets:   mongodb.Collection(database.CollectionBuckets),
		books:     mongodb.Collection(database.CollectionBooks),
		arcs:      mongodb.Collection(database.CollectionArcs),
		links:     mongodb.Collection(database.CollectionLinks),
		bookCache: cache.New(bookCacheTTL, bookCacheCleanup),
	}
}

// PrimaryAvailable probes the MongoDB connection
func (g *MongoGateway) PrimaryAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return g.mongodb.Ping(ctx) == nil
}

func (g *MongoGateway) FallbackAllowed() bool { return false }
func (g *MongoGateway) WritesEnabled() bool   { return true }

// LoadBuckets returns all non-purged harvest buckets
func (g *MongoGateway) LoadBuckets(ctx context.Context) ([]models.HarvestBucket, error) {
	cursor, err := g.buckets.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load buckets: %w", err)
	}
	defer cursor.Close(ctx)

	var buckets []models.HarvestBucket
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("failed to decode buckets: %w", err)
	}
	return buckets, nil
}

// UpsertBucket writes the full bucket document
func (g *MongoGateway) UpsertBucket(ctx context.Context, bucket *models.HarvestBucket) error {
	_, err := g.buckets.ReplaceOne(ctx,
		bson.M{"_id": bucket.ID},
		bucket,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert bucket %s: %w", bucket.ID, err)
	}
	return nil
}

// DeleteBucket removes a bucket document (retention sweep)
func (g *MongoGateway) DeleteBucket(ctx context.Context, bucketID string) error {
	_, err := g.buckets.DeleteOne(ctx, bson.M{"_id": bucketID})
	if err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", bucketID, err)
	}
	return nil
}

// LoadBook resolves a book by id or by its stable URI
func (g *MongoGateway) LoadBook(ctx context.Context, idOrURI string) (*models.Book, error) {
	if cached, ok := g.bookCache.Get(idOrURI); ok {
		book := cached.(models.Book)
		return &book, nil
	}

	var book models.Book
	err := g.books.FindOne(ctx, bson.M{
		"$or": []bson.M{
			{"_id": idOrURI},
			{"uri": idOrURI},
		},
	}).Decode(&book)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load book %s: %w", idOrURI, err)
	}

	g.bookCache.Set(idOrURI, book, cache.DefaultExpiration)
	return &book, nil
}

// UpsertBookPassages appends committed passages to the book's permanent record
func (g *MongoGateway) UpsertBookPassages(ctx context.Context, bookID string, passages []models.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	result, err := g.books.UpdateOne(ctx,
		bson.M{"_id": bookID},
		bson.M{
			"$push": bson.M{"passages": bson.M{"$each": passages}},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
	if err != nil {
		return fmt.Errorf("failed to write passages to book %s: %w", bookID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("book %s: %w", bookID, ErrBookNotFound)
	}

	// The cached copy no longer reflects the record
	g.bookCache.Delete(bookID)
	return nil
}

// LoadArcs returns narrative arcs for a book, newest first
func (g *MongoGateway) LoadArcs(ctx context.Context, bookID string) ([]models.NarrativeArc, error) {
	cursor, err := g.arcs.Find(ctx, bson.M{"bookId": bookID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to load arcs: %w", err)
	}
	defer cursor.Close(ctx)

	var arcs []models.NarrativeArc
	if err := cursor.All(ctx, &arcs); err != nil {
		return nil, fmt.Errorf("failed to decode arcs: %w", err)
	}
	return arcs, nil
}

// UpsertArc writes the full arc document
func (g *MongoGateway) UpsertArc(ctx context.Context, arc *models.NarrativeArc) error {
	_, err := g.arcs.ReplaceOne(ctx,
		bson.M{"_id": arc.ID},
		arc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert arc %s: %w", arc.ID, err)
	}
	return nil
}

// LoadLinks returns passage placement links for a book
func (g *MongoGateway) LoadLinks(ctx context.Context, bookID string) ([]models.PassageLink, error) {
	cursor, err := g.links.Find(ctx, bson.M{"bookId": bookID},
		options.Find().SetSort(bson.D{
			{Key: "chapterId", Value: 1},
			{Key: "position", Value: 1},
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to load links: %w", err)
	}
	defer cursor.Close(ctx)

	var links []models.PassageLink
	if err := cursor.All(ctx, &links); err != nil {
		return nil, fmt.Errorf("failed to decode links: %w", err)
	}
	return links, nil
}

// AppendLink inserts a placement record; links are append-only
func (g *MongoGateway) AppendLink(ctx context.Context, link *models.PassageLink) error {
	_, err := g.links.InsertOne(ctx, link)
	if err != nil {
		return fmt.Errorf("failed to append link %s: %w", link.ID, err)
	}
	return nil
}
