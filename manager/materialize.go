package manager

import (
	"context"
	"fmt"
	"os"

	"github.com/dot5enko/mvstore/catalog"
	"github.com/dot5enko/mvstore/io"
	"github.com/dot5enko/mvstore/paged"
	"github.com/dot5enko/mvstore/table"
	"github.com/google/uuid"
)

// Materialize writes t as the new version of view name. The catalog entry
// is created or refreshed, and segments of the previous version are deleted
// once the entry points at the new one.
func (m *Manager) Materialize(ctx context.Context, name string, t table.Table, query string) (catalog.Entry, error) {
	if err := catalog.ValidateName(name); err != nil {
		return catalog.Entry{}, err
	}

	l := m.viewLock(name)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return catalog.Entry{}, err
	}

	if _, err := m.catalog.EnsureDir(name); err != nil {
		return catalog.Entry{}, err
	}

	uid, err := uuid.NewV7()
	if err != nil {
		return catalog.Entry{}, err
	}

	segmentName := uid.String() + ".seg"
	segmentPath := m.catalog.SegmentPath(name, segmentName)

	rows, writeErr := m.writeSegment(segmentPath, t)
	if writeErr != nil {
		os.Remove(segmentPath)
		return catalog.Entry{}, fmt.Errorf("unable to materialize %s: %w", name, writeErr)
	}

	previous, existed := m.catalog.Get(name)

	entry := catalog.Entry{
		Name:       name,
		Uid:        uid,
		LastUpdate: m.now(),
		Segments:   []string{segmentName},
		Schema:     t.Schema(),
		Query:      query,
	}

	if err := m.catalog.Register(entry); err != nil {
		os.Remove(segmentPath)
		return catalog.Entry{}, err
	}

	if existed {
		for _, old := range previous.Segments {
			if old == segmentName {
				continue
			}
			oldPath := m.catalog.SegmentPath(name, old)
			if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
				m.logger.Warn("unable to delete previous mv segment", "mv", name, "segment", oldPath, "error", err)
			}
		}
	}

	m.logger.Info("materialized view",
		"mv", name,
		"rows", rows,
		"segment", segmentName,
		"refreshed", existed,
	)

	return entry, nil
}

func (m *Manager) writeSegment(path string, t table.Table) (rows int, topErr error) {
	store, err := io.Create(path)
	if err != nil {
		return 0, err
	}

	defer func() {
		if closeErr := store.Close(); closeErr != nil && topErr == nil {
			topErr = closeErr
		}
	}()

	writer, err := paged.WriteSegment(store, t, m.config.Storage.PageRows)
	if err != nil {
		return 0, err
	}

	return writer.RowCount(), nil
}
