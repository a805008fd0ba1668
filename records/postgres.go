package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore keeps records in the linked_records table
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Lookup(ctx context.Context, entityType, id string) (*Record, error) {
	var rec Record
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_type, id, name, address, data, updated_at
		FROM linked_records
		WHERE entity_type = $1 AND id = $2
	`, entityType, id).Scan(
		&rec.EntityType,
		&rec.ID,
		&rec.Name,
		&rec.Address,
		&data,
		&rec.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to decode record data: %w", err)
		}
	}
	return &rec, nil
}

// Put upserts a record
func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	if rec.EntityType == "" || rec.ID == "" {
		return fmt.Errorf("record needs an entity type and an id")
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to encode record data: %w", err)
	}
	rec.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO linked_records (entity_type, id, name, address, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_type, id) DO UPDATE
		SET name = EXCLUDED.name, address = EXCLUDED.address,
		    data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`, rec.EntityType, rec.ID, rec.Name, rec.Address, data, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, entityType, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM linked_records
		WHERE entity_type = $1 AND id = $2
	`, entityType, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	return nil
}
