package calculators

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/liamcoop/recalc/calculator"
)

// PostgresStore implements DefinitionStore on the calculators table.
// Definitions are stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

func (s *PostgresStore) Add(ctx context.Context, c *Stored) error {
	def, err := json.Marshal(c.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calculators (id, name, definition, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Name, def, c.Active, now, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("calculator %s: %w", c.Name, ErrExists)
		}
		return fmt.Errorf("failed to insert calculator: %w", err)
	}

	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Stored, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, definition, active, created_at, updated_at
		FROM calculators
		WHERE id = $1
	`, id)

	c, err := scanStored(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("calculator with ID %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calculator: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Stored, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, definition, active, created_at, updated_at
		FROM calculators
		WHERE active = true
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active calculators: %w", err)
	}
	defer rows.Close()

	var list []*Stored
	for rows.Next() {
		c, err := scanStored(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calculator: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating calculators: %w", err)
	}
	return list, nil
}

func (s *PostgresStore) Update(ctx context.Context, c *Stored) error {
	def, err := json.Marshal(c.Definition)
	if err != nil {
		return fmt.Errorf("failed to marshal definition: %w", err)
	}

	now := time.Now()
	var created time.Time
	err = s.db.QueryRowContext(ctx, `
		UPDATE calculators
		SET name = $1, definition = $2, active = $3, updated_at = $4
		WHERE id = $5
		RETURNING created_at
	`, c.Name, def, c.Active, now, c.ID).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("calculator with ID %s: %w", c.ID, ErrNotFound)
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("calculator %s: %w", c.Name, ErrExists)
		}
		return fmt.Errorf("failed to update calculator: %w", err)
	}

	c.CreatedAt = created
	c.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM calculators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete calculator: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("calculator with ID %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStored(row scanner) (*Stored, error) {
	var c Stored
	var def []byte
	if err := row.Scan(&c.ID, &c.Name, &def, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	parsed, err := calculator.ParseJSON(def)
	if err != nil {
		return nil, fmt.Errorf("calculator %s: %w", c.ID, err)
	}
	c.Definition = parsed
	return &c, nil
}
