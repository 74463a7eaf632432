// Package catalog keeps track of materialized views and the segment files
// backing them.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/dot5enko/mvstore/schema"
	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("materialized view not found")
	ErrInvalidName = errors.New("invalid materialized view name")
)

// Entry is one materialized view. Segments are file names inside the view
// directory, the last one is the current version.
type Entry struct {
	Name       string        `json:"name"`
	Uid        uuid.UUID     `json:"uid"`
	LastUpdate time.Time     `json:"last_update"`
	Segments   []string      `json:"segments"`
	Schema     schema.Schema `json:"schema"`
	Query      string        `json:"query,omitempty"`
}

func (e Entry) CurrentSegment() string {
	if len(e.Segments) == 0 {
		return ""
	}
	return e.Segments[len(e.Segments)-1]
}

func (e Entry) Clone() Entry {
	out := e
	out.Segments = append([]string(nil), e.Segments...)
	out.Schema = e.Schema.Clone()
	return out
}

// Catalog is what the expiration sweep needs from an MV registry.
type Catalog interface {
	List(ctx context.Context) ([]Entry, error)
	Get(name string) (Entry, bool)
	Remove(ctx context.Context, name string) error
	DeleteStorage(ctx context.Context, entry Entry) error
}

// ClusterCoordinator deletes a view on every cluster member holding a copy.
type ClusterCoordinator interface {
	DeleteClusterMV(ctx context.Context, name string) error
}

// LocalOnly is the coordinator of a single node deployment.
type LocalOnly struct{}

func (LocalOnly) DeleteClusterMV(ctx context.Context, name string) error {
	return nil
}
