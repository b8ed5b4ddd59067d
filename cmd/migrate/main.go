// One-shot migration of legacy local-store data into the primary MongoDB
// backend. Run once per installation, then retire the local store file.
//
// Usage:
//
//	migrate -local ./bindery.db -mongo mongodb://localhost:27017/bindery [-dry-run]
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"bindery/internal/database"
	"bindery/internal/services"
)

func main() {
	localPath := flag.String("local", "bindery.db", "Path to the legacy local store")
	mongoURI := flag.String("mongo", "", "MongoDB URI of the primary store")
	dryRun := flag.Bool("dry-run", false, "Report what would be migrated without writing")
	flag.Parse()

	if *mongoURI == "" {
		log.Fatal("❌ -mongo is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := database.NewLocalStore(*localPath)
	if err != nil {
		log.Fatalf("❌ Failed to open local store: %v", err)
	}
	defer store.Close()

	mongoDB, err := database.NewMongoDB(*mongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(ctx)

	if err := mongoDB.Initialize(ctx); err != nil {
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}

	local := services.NewLocalGateway(store, false)
	primary := services.NewMongoGateway(mongoDB)

	buckets, err := local.LoadBuckets(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to load local buckets: %v", err)
	}
	log.Printf("📦 Found %d buckets in local store", len(buckets))

	migrated := 0
	for i := range buckets {
		if *dryRun {
			log.Printf("  would migrate bucket %s (book %s, %s)", buckets[i].ID, buckets[i].BookID, buckets[i].Status)
			continue
		}
		if err := primary.UpsertBucket(ctx, &buckets[i]); err != nil {
			log.Printf("⚠️ Failed to migrate bucket %s: %v", buckets[i].ID, err)
			continue
		}
		migrated++
	}

	// Arcs and links are book-scoped in the primary store but the local store
	// can list them without a book filter by scanning bucket book ids
	bookIDs := make(map[string]struct{})
	for i := range buckets {
		bookIDs[buckets[i].BookID] = struct{}{}
	}

	arcCount, linkCount := 0, 0
	for bookID := range bookIDs {
		arcs, err := local.LoadArcs(ctx, bookID)
		if err != nil {
			log.Printf("⚠️ Failed to load local arcs for book %s: %v", bookID, err)
			continue
		}
		for i := range arcs {
			if *dryRun {
				continue
			}
			if err := primary.UpsertArc(ctx, &arcs[i]); err != nil {
				log.Printf("⚠️ Failed to migrate arc %s: %v", arcs[i].ID, err)
				continue
			}
			arcCount++
		}

		links, err := local.LoadLinks(ctx, bookID)
		if err != nil {
			log.Printf("⚠️ Failed to load local links for book %s: %v", bookID, err)
			continue
		}
		for i := range links {
			if *dryRun {
				continue
			}
			if err := primary.AppendLink(ctx, &links[i]); err != nil {
				log.Printf("⚠️ Failed to migrate link %s: %v", links[i].ID, err)
				continue
			}
			linkCount++
		}
	}

	if *dryRun {
		log.Println("✅ Dry run complete, nothing written")
		return
	}
	log.Printf("✅ Migration complete: %d buckets, %d arcs, %d links", migrated, arcCount, linkCount)
}
