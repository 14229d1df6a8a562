package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

// steps builds the schema for the given notify channel. The trigger must
// publish on the exact channel the bridge listens on, so the channel is a
// parameter, not a constant.
func steps(notifyChannel string) []migrationStep {
	channel := quoteLiteral(notifyChannel)
	return []migrationStep{
		{
			Name: "create_extension_uuid_ossp",
			SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
		},
		{
			Name: "create_table_profiles",
			SQL: `CREATE TABLE IF NOT EXISTS profiles (
  user_id      TEXT        PRIMARY KEY,
  display_name TEXT        NOT NULL,
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		},
		{
			Name: "create_table_images",
			SQL: `CREATE TABLE IF NOT EXISTS images (
  id           UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  owner_id     TEXT        NOT NULL,
  storage_key  TEXT        NOT NULL UNIQUE,
  display_name TEXT        NOT NULL,
  caption      TEXT        NOT NULL DEFAULT '' CHECK (char_length(caption) <= 300),
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
		},
		{
			Name: "create_index_images_owner_id",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_images_owner_id ON images (owner_id);`,
		},
		{
			Name: "create_index_images_created_at",
			SQL:  `CREATE INDEX IF NOT EXISTS idx_images_created_at ON images (created_at DESC, id DESC);`,
		},
		{
			// The payload is the owner_id so subscribers filtered to one
			// uploader can skip refreshes for everyone else's changes.
			Name: "create_function_notify_images_changed",
			SQL: `CREATE OR REPLACE FUNCTION notify_images_changed() RETURNS trigger AS $$
BEGIN
  IF TG_OP = 'DELETE' THEN
    PERFORM pg_notify(` + channel + `, OLD.owner_id);
  ELSE
    PERFORM pg_notify(` + channel + `, NEW.owner_id);
  END IF;
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;`,
		},
		{
			Name: "create_trigger_images_changed",
			SQL: `DROP TRIGGER IF EXISTS images_changed ON images;
CREATE TRIGGER images_changed
  AFTER INSERT OR UPDATE OR DELETE ON images
  FOR EACH ROW EXECUTE FUNCTION notify_images_changed();`,
		},
	}
}

// quoteLiteral renders s as a single-quoted SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// EnsureMigrated checks if the 'images' table exists and runs migrations if
// it doesn't. notifyChannel is baked into the images trigger and must match
// the channel the notify bridge listens on.
func EnsureMigrated(ctx context.Context, db *sql.DB, notifyChannel string, log zerolog.Logger) error {
	start := time.Now()

	var exists bool
	query := "SELECT to_regclass('public.images') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error().Err(err).Msg("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info().
			Dur("duration", time.Since(start)).
			Msg("schema already exists, skipping migration")
		return nil
	}

	log.Info().Str("notify_channel", notifyChannel).Msg("running database migration")

	for _, step := range steps(notifyChannel) {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error().
				Err(err).
				Str("migration_step", step.Name).
				Dur("step_duration", time.Since(stepStart)).
				Msg("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Info().
			Str("migration_step", step.Name).
			Dur("step_duration", time.Since(stepStart)).
			Msg("migration step applied")
	}

	log.Info().
		Dur("duration", time.Since(start)).
		Msg("database migration complete")
	return nil
}
