package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/resumekit/credential-service/internal/core/port"
	"github.com/resumekit/credential-service/internal/repository"
)

const blobTable = "credentials.store_blobs"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BlobRepository implements port.BlobStore over a single jsonb-keyed table.
// Each named blob is one row; Update performs a row-locked read-modify-write
// so a mutation never interleaves with another writer on the same key.
type BlobRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewBlobRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewBlobRepository(exec pgExecutor) *BlobRepository {
	return &BlobRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *BlobRepository) WithClock(clock func() time.Time) {
	if clock != nil {
		r.now = clock
	}
}

// Get returns the payload stored under key, or repository.ErrNotFound.
func (r *BlobRepository) Get(ctx context.Context, key string) ([]byte, error) {
	stmt, args, err := r.builder.
		Select("payload").
		From(blobTable).
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select blob sql: %w", err)
	}

	var payload []byte
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select blob %q: %w", key, err)
	}

	return payload, nil
}

// Set overwrites the payload stored under key (upsert).
func (r *BlobRepository) Set(ctx context.Context, key string, payload []byte) error {
	stmt, args, err := r.upsertSQL(key, payload)
	if err != nil {
		return err
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert blob %q: %w", key, err)
	}

	return nil
}

// Delete removes the blob stored under key.
func (r *BlobRepository) Delete(ctx context.Context, key string) error {
	stmt, args, err := r.builder.
		Delete(blobTable).
		Where(squirrel.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete blob sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Update applies mutate to the current payload inside a transaction holding a
// row lock on the key, then writes the result back. mutate receives nil when
// the blob is absent; returning a nil payload deletes the blob.
func (r *BlobRepository) Update(ctx context.Context, key string, mutate func(current []byte) ([]byte, error)) error {
	if mutate == nil {
		return errors.New("mutate func is required")
	}

	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin blob update: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	selectStmt, selectArgs, err := r.builder.
		Select("payload").
		From(blobTable).
		Where(squirrel.Eq{"key": key}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return fmt.Errorf("build locked select sql: %w", err)
	}

	var current []byte
	if err := tx.QueryRow(ctx, selectStmt, selectArgs...).Scan(&current); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select blob %q for update: %w", key, err)
		}
		current = nil
	}

	next, err := mutate(current)
	if err != nil {
		return err
	}

	if next == nil {
		deleteStmt, deleteArgs, err := r.builder.
			Delete(blobTable).
			Where(squirrel.Eq{"key": key}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete blob sql: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteStmt, deleteArgs...); err != nil {
			return fmt.Errorf("delete blob %q: %w", key, err)
		}
	} else {
		upsertStmt, upsertArgs, err := r.upsertSQL(key, next)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertStmt, upsertArgs...); err != nil {
			return fmt.Errorf("upsert blob %q: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit blob update: %w", err)
	}

	return nil
}

// Ping reports connectivity for readiness checks.
func (r *BlobRepository) Ping(ctx context.Context) error {
	if _, err := r.exec.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (r *BlobRepository) upsertSQL(key string, payload []byte) (string, []any, error) {
	stmt, args, err := r.builder.
		Insert(blobTable).
		Columns("key", "payload", "version", "updated_at").
		Values(key, payload, 1, r.now().UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, version = " + blobTable + ".version + 1, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build upsert blob sql: %w", err)
	}
	return stmt, args, nil
}

var _ port.BlobStore = (*BlobRepository)(nil)
