package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore implements DocumentStore on a single documents table
// with a JSONB body column.
type PostgresStore struct {
	db *sql.DB
}

func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	ps := &PostgresStore{db: db}
	if err := ps.ensureSchema(); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *PostgresStore) ensureSchema() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			body       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, id)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// execer lets the same statements run against the pool or a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (ps *PostgresStore) Get(ctx context.Context, collection, id string, out any) error {
	var raw []byte
	err := ps.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", collection, id, err)
	}
	return decodeDoc(id, body, out)
}

func (ps *PostgresStore) Set(ctx context.Context, collection, id string, doc any) error {
	return ps.set(ctx, ps.db, collection, id, doc, time.Now())
}

func (ps *PostgresStore) set(ctx context.Context, ex execer, collection, id string, doc any, now time.Time) error {
	body, err := toBody(doc, now)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, id)
		DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		collection, id, raw)
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

// UpdateFields merges the given top-level fields into the JSONB body
// without rewriting the rest of the document.
func (ps *PostgresStore) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	return ps.update(ctx, ps.db, collection, id, fields, time.Now())
}

func (ps *PostgresStore) update(ctx context.Context, ex execer, collection, id string, fields map[string]any, now time.Time) error {
	patch, err := toBody(resolveTimestamps(fields, now), now)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	result, err := ex.ExecContext(ctx, `
		UPDATE documents
		SET body = body || $3::jsonb, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		collection, id, raw)
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (ps *PostgresStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	id := uuid.New().String()
	if err := ps.set(ctx, ps.db, collection, id, doc, time.Now()); err != nil {
		return "", err
	}
	return id, nil
}

// Query pushes equality filters into SQL via JSONB containment; ordering
// and limit run on the decoded rows so RFC3339 timestamps and numbers
// sort the same way as the other adapters.
func (ps *PostgresStore) Query(ctx context.Context, collection string, q Query, out any) error {
	query := `SELECT id, body FROM documents WHERE collection = $1`
	args := []any{collection}

	for _, f := range q.Filters {
		probe, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			return fmt.Errorf("failed to marshal filter %s: %w", f.Field, err)
		}
		args = append(args, probe)
		query += fmt.Sprintf(" AND body @> $%d::jsonb", len(args))
	}

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("failed to unmarshal %s/%s: %w", collection, id, err)
		}
		docs = append(docs, document{id: id, data: body})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s rows: %w", collection, err)
	}

	// Filters already applied server-side.
	return decodeDocs(applyQuery(docs, Query{OrderBy: q.OrderBy, Desc: q.Desc, Limit: q.Limit}), out)
}

func (ps *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	result, err := ps.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Transact runs all ops inside one SQL transaction.
func (ps *PostgresStore) Transact(ctx context.Context, ops []Op) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			err = ps.set(ctx, tx, op.Collection, op.ID, resolveTimestamps(op.Doc, now), now)
		case OpUpdate:
			err = ps.update(ctx, tx, op.Collection, op.ID, op.Fields, now)
		case OpDelete:
			_, err = tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2`,
				op.Collection, op.ID)
		}
		if err != nil {
			return fmt.Errorf("transaction failed on %s/%s: %w", op.Collection, op.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
