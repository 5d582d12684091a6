package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const SchemaSQL = `
CREATE TABLE IF NOT EXISTS kv_record
(
    collection VARCHAR     NOT NULL,
    key        VARCHAR     NOT NULL,
    data       JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, key)
);
`

// PostgresStore keeps all collections in the kv_record table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

// EnsureSchema creates the kv_record table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("create kv_record table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (*Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRow(
		ctx,
		`SELECT data FROM kv_record WHERE collection = $1 AND key = $2;`,
		collection, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select %s/%s: %w", collection, key, err)
	}
	return &Record{Key: key, Data: data}, nil
}

func (s *PostgresStore) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		ctx,
		`SELECT key, data FROM kv_record WHERE collection = $1 ORDER BY key;`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var key string
		var data []byte
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		records = append(records, Record{Key: key, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *PostgresStore) Put(ctx context.Context, collection string, record Record) (string, error) {
	if err := validateCollection(collection); err != nil {
		return "", err
	}

	key := record.Key
	if key == "" {
		key = newKey()
	}

	_, err := s.db.Exec(
		ctx,
		`
			INSERT INTO kv_record (collection, key, data, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (collection, key)
			DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at;`,
		collection, key, []byte(record.Data),
	)
	if err != nil {
		return "", fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}
	return key, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateCollection(collection); err != nil {
		return err
	}

	tag, err := s.db.Exec(
		ctx,
		`DELETE FROM kv_record WHERE collection = $1 AND key = $2;`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
