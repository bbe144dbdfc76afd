package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pipeloom/pipeloom/pkg/pipeline"
	"github.com/pipeloom/pipeloom/pkg/store"
)

// SavePipeline upserts the full definition as JSONB, keyed by pipeline id.
func (s *PGStore) SavePipeline(ctx context.Context, p *pipeline.Pipeline) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("postgres: pipeline must have an id")
	}
	def, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("postgres: marshal pipeline: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO pipelines (id, name, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, definition = EXCLUDED.definition, updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, def, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save pipeline: %w", err)
	}
	return nil
}

// LoadPipeline fetches a pipeline by id.
func (s *PGStore) LoadPipeline(ctx context.Context, id string) (*pipeline.Pipeline, error) {
	var def []byte
	err := s.db.QueryRow(ctx,
		`SELECT definition FROM pipelines WHERE id = $1`, id,
	).Scan(&def)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pipeline %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres: load pipeline: %w", err)
	}
	var p pipeline.Pipeline
	if err := json.Unmarshal(def, &p); err != nil {
		return nil, fmt.Errorf("postgres: decode pipeline %q: %w", id, err)
	}
	return &p, nil
}

// ListPipelines returns all pipelines, newest first.
func (s *PGStore) ListPipelines(ctx context.Context) ([]*pipeline.Pipeline, error) {
	rows, err := s.db.Query(ctx,
		`SELECT definition FROM pipelines ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pipelines: %w", err)
	}
	defer rows.Close()

	out := []*pipeline.Pipeline{}
	for rows.Next() {
		var def []byte
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("postgres: scan pipeline: %w", err)
		}
		var p pipeline.Pipeline
		if err := json.Unmarshal(def, &p); err != nil {
			return nil, fmt.Errorf("postgres: decode pipeline: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return out, nil
}

// DeletePipeline removes a pipeline by id.
func (s *PGStore) DeletePipeline(ctx context.Context, id string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete pipeline: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("pipeline %q: %w", id, store.ErrNotFound)
	}
	return nil
}
