// Package store persists pipeline definitions and saved diagram layouts.
package store

import (
	"context"
	"errors"

	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/pipeline"
)

// ErrNotFound is returned when a pipeline or layout snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// DefaultPositionKey anchors layout snapshots for pipelines that have
// neither an id nor a name yet.
const DefaultPositionKey = "default"

// PositionKey derives the identity a layout snapshot is stored under: the
// pipeline's id, else its name, else DefaultPositionKey. Saves and loads go
// through the same derivation, so a pipeline that later gains an id starts a
// fresh snapshot under it.
func PositionKey(p *pipeline.Pipeline) string {
	switch {
	case p == nil:
		return DefaultPositionKey
	case p.ID != "":
		return p.ID
	case p.Name != "":
		return p.Name
	}
	return DefaultPositionKey
}

// Store is the persistence interface: pipelines by id, layout snapshots by
// position key. SavePositions replaces the whole snapshot for its key.
type Store interface {
	SavePipeline(ctx context.Context, p *pipeline.Pipeline) error
	LoadPipeline(ctx context.Context, id string) (*pipeline.Pipeline, error)
	ListPipelines(ctx context.Context) ([]*pipeline.Pipeline, error)
	DeletePipeline(ctx context.Context, id string) error

	SavePositions(ctx context.Context, key string, pos map[string]graphview.Point) error
	LoadPositions(ctx context.Context, key string) (map[string]graphview.Point, error)
}
