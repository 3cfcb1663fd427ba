package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_files (
	path       TEXT PRIMARY KEY,
	content    BYTEA NOT NULL,
	version    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS ledger_revisions (
	id         BIGSERIAL PRIMARY KEY,
	path       TEXT NOT NULL,
	version    TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore keeps each file as a single row and guards writes with a
// compare-and-swap on the version column. Every accepted write is also
// recorded in ledger_revisions.
type PostgresStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		tracer: otel.Tracer("memberledger/filestore"),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (*File, error) {
	ctx, span := s.tracer.Start(ctx, "filestore.postgres.get",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	f := &File{Path: path}
	err := s.db.QueryRowContext(ctx, `
		SELECT content, version
		FROM ledger_files
		WHERE path = $1
	`, path).Scan(&f.Content, &f.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query file: %w", err)
	}

	span.SetAttributes(attribute.String("file.version", f.Version))
	return f, nil
}

func (s *PostgresStore) Put(ctx context.Context, path string, content []byte, message, expectedVersion string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "filestore.postgres.put",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.String("expected.version", expectedVersion),
			attribute.Int("content.bytes", len(content)),
		),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	version := ContentVersion(content)
	now := time.Now().UTC()

	if expectedVersion == "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_files (path, content, version, updated_at)
			VALUES ($1, $2, $3, $4)
		`, path, content, version, now)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				span.SetAttributes(attribute.Bool("conflict.detected", true))
				return "", ErrVersionMismatch
			}
			return "", fmt.Errorf("insert file: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE ledger_files
			SET content = $1, version = $2, updated_at = $3
			WHERE path = $4 AND version = $5
		`, content, version, now, path, expectedVersion)
		if err != nil {
			return "", fmt.Errorf("update file: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return "", ErrVersionMismatch
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_revisions (path, version, message, created_at)
		VALUES ($1, $2, $3, $4)
	`, path, version, message, now); err != nil {
		return "", fmt.Errorf("insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(
		attribute.String("file.version", version),
		attribute.Bool("put.success", true),
	)
	return version, nil
}
