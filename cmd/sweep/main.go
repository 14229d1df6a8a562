// Command sweep reports blobs that exist in object storage but have no
// matching metadata row. Orphans are expected: the upload pipeline never
// deletes a blob after its metadata write fails, so reconciliation is an
// offline concern. By default the sweep only reports; pass -delete to
// remove the orphans.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"photofeed/internal/config"
	"photofeed/internal/database"
	"photofeed/internal/repository/postgres"
	"photofeed/internal/storage"
)

func main() {
	var (
		doDelete = flag.Bool("delete", false, "delete orphan blobs instead of only reporting them")
		minAge   = flag.Duration("min-age", time.Hour, "skip blobs newer than this, they may belong to in-flight uploads")
	)
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	repo := postgres.NewMediaPostgres(db)

	keys, err := repo.StorageKeys(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load storage keys")
	}
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}

	objects, err := objStore.List(ctx, "")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list objects")
	}

	cutoff := time.Now().Add(-*minAge)
	var orphans, deleted, failed int
	for _, obj := range objects {
		if known[obj.Key] {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		orphans++
		ev := log.Info().Str("key", obj.Key).Int64("size", obj.Size).Time("last_modified", obj.LastModified)
		if !*doDelete {
			ev.Msg("orphan blob")
			continue
		}
		if err := objStore.Delete(ctx, obj.Key); err != nil {
			failed++
			log.Error().Str("key", obj.Key).Err(err).Msg("failed to delete orphan blob")
			continue
		}
		deleted++
		ev.Msg("orphan blob deleted")
	}

	log.Info().
		Int("objects", len(objects)).
		Int("referenced", len(known)).
		Int("orphans", orphans).
		Int("deleted", deleted).
		Int("failed", failed).
		Bool("delete_mode", *doDelete).
		Msg("sweep complete")

	if failed > 0 {
		os.Exit(1)
	}
}
