package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_trivia_schema.sql
var createTriviaSchemaSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createTriviaSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP FUNCTION IF EXISTS user_quiz_stats(TEXT);
DROP TABLE IF EXISTS question_attempts;
DROP TABLE IF EXISTS quiz_sessions;
DROP TABLE IF EXISTS user_roles;
DROP TABLE IF EXISTS questions;`)
			return err
		},
	)
}
