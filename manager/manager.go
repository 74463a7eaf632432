// Package manager ties the storage pieces together: aggregate tables that
// spill into the configured directory, materialized views in the catalog,
// and the expiration sweeper.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dot5enko/mvstore/aggregate"
	"github.com/dot5enko/mvstore/catalog"
	"github.com/dot5enko/mvstore/config"
	"github.com/dot5enko/mvstore/freshness"
	"github.com/dot5enko/mvstore/paged"
	"github.com/dot5enko/mvstore/schema"
)

type Manager struct {
	config  *config.Config
	catalog *catalog.DirCatalog
	cluster catalog.ClusterCoordinator
	sweeper *freshness.Sweeper

	// one materialization or expiry removal per view at a time
	mvLocks map[string]*sync.Mutex
	lock    sync.Mutex

	now    func() time.Time
	logger *slog.Logger
}

// New wires a manager. A nil catalog is created in cfg.CatalogDir(), a nil
// cluster coordinator means a single node.
func New(cfg *config.Config, cat *catalog.DirCatalog, cluster catalog.ClusterCoordinator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		cat = catalog.NewDirCatalog(cfg.CatalogDir(), logger)
	}
	if cluster == nil {
		cluster = catalog.LocalOnly{}
	}

	m := &Manager{
		config:  cfg,
		catalog: cat,
		cluster: cluster,
		mvLocks: map[string]*sync.Mutex{},
		now:     time.Now,
		logger:  logger,
	}

	m.sweeper = freshness.NewSweeper(cfg.Policy(), cat, cluster, logger)
	m.sweeper.SetConcurrency(cfg.MV.SweepConcurrency)
	// expiry never removes a view that is being materialized
	m.sweeper.SetViewGuard(func(name string) func() {
		l := m.viewLock(name)
		l.Lock()
		return l.Unlock
	})

	return m
}

// Open builds a manager from cfg and loads the catalog from disk.
func Open(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	m := New(cfg, nil, nil, logger)

	for _, w := range cfg.Warnings {
		m.logger.Warn("config", "warning", w)
	}

	if err := m.catalog.LoadFromDisk(); err != nil {
		return nil, fmt.Errorf("unable to load catalog: %w", err)
	}

	return m, nil
}

func (m *Manager) Config() *config.Config {
	return m.config
}

func (m *Manager) Catalog() *catalog.DirCatalog {
	return m.catalog
}

func (m *Manager) Policy() freshness.Policy {
	return m.sweeper.Policy()
}

// NewAggregateTable returns an in-memory table that spills into the
// configured spill directory once the configured threshold is crossed.
func (m *Manager) NewAggregateTable(s schema.Schema) (*aggregate.Swappable, error) {
	return aggregate.New(s, aggregate.Options{
		Threshold:    m.config.Threshold(),
		PageRows:     m.config.Storage.PageRows,
		CachePages:   m.config.Storage.CachePages,
		StoreFactory: aggregate.TempStoreFactory(m.config.SpillDir()),
		Logger:       m.logger,
	})
}

// OpenMV opens the current segment of a view on a fresh handle. The caller
// closes it.
func (m *Manager) OpenMV(name string) (*paged.Segment, error) {
	entry, ok := m.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, name)
	}

	current := entry.CurrentSegment()
	if current == "" {
		return nil, fmt.Errorf("mv %s has no segments", name)
	}

	return paged.OpenSegmentFile(m.catalog.SegmentPath(name, current), paged.SegmentOptions{
		CachePages: m.config.Storage.CachePages,
		Logger:     m.logger.With("mv", name),
	})
}

type Staleness struct {
	Name       string
	LastUpdate time.Time
	Age        time.Duration
	Stale      bool
	Expired    bool
}

// Staleness evaluates the freshness policy for a view.
func (m *Manager) Staleness(name string) (Staleness, error) {
	entry, ok := m.catalog.Get(name)
	if !ok {
		return Staleness{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, name)
	}

	policy := m.Policy()
	if policy.Now == nil {
		policy.Now = m.now
	}

	return Staleness{
		Name:       name,
		LastUpdate: entry.LastUpdate,
		Age:        policy.Now().Sub(entry.LastUpdate),
		Stale:      policy.IsStale(entry.LastUpdate),
		Expired:    policy.IsExpired(entry.LastUpdate),
	}, nil
}

// Sweep runs a single expiration sweep.
func (m *Manager) Sweep(ctx context.Context) (freshness.SweepReport, error) {
	return m.sweeper.Cleanup(ctx)
}

func (m *Manager) StartSweeper() error {
	if !m.Policy().ExpirationEnabled() {
		m.logger.Info("mv.maxAge not set, expired mv sweeper disabled")
		return nil
	}
	return m.sweeper.Start(m.config.MV.SweepSchedule)
}

func (m *Manager) Close() error {
	m.sweeper.Stop()
	return nil
}

func (m *Manager) viewLock(name string) *sync.Mutex {
	m.lock.Lock()
	defer m.lock.Unlock()

	l, ok := m.mvLocks[name]
	if !ok {
		l = &sync.Mutex{}
		m.mvLocks[name] = l
	}
	return l
}
