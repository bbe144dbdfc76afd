package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/store"
)

// SavePositions replaces the layout snapshot stored under key.
func (s *PGStore) SavePositions(ctx context.Context, key string, pos map[string]graphview.Point) error {
	if key == "" {
		return fmt.Errorf("postgres: position key must not be empty")
	}
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("postgres: marshal positions: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO layout_positions (key, positions, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET positions = EXCLUDED.positions, updated_at = NOW()`,
		key, raw,
	)
	if err != nil {
		return fmt.Errorf("postgres: save positions: %w", err)
	}
	return nil
}

// LoadPositions fetches the layout snapshot stored under key.
func (s *PGStore) LoadPositions(ctx context.Context, key string) (map[string]graphview.Point, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT positions FROM layout_positions WHERE key = $1`, key,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("positions %q: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	pos := map[string]graphview.Point{}
	if err := json.Unmarshal(raw, &pos); err != nil {
		return nil, fmt.Errorf("postgres: decode positions %q: %w", key, err)
	}
	return pos, nil
}
