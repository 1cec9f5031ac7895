package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"workspace-collections/internal/logging"
	"workspace-collections/internal/observability"
)

// Snapshot is an immutable view of the catalog at a point in time.
type Snapshot struct {
	Catalog        *Catalog
	RefreshedAt    time.Time
	StorageChecked bool
	Fingerprint    string
}

// ManagerConfig controls catalog refresh behavior.
type ManagerConfig struct {
	Catalog *Catalog
	// Inspector is optional; without it the snapshot is static.
	Inspector   *Inspector
	Logger      *logging.Logger
	Metrics     *observability.CatalogRefreshMetrics
	MinInterval time.Duration
	MaxInterval time.Duration
}

// Manager holds the active catalog snapshot and refreshes its storage facts.
type Manager struct {
	base        *Catalog
	inspector   *Inspector
	logger      *logging.Logger
	metrics     *observability.CatalogRefreshMetrics
	minInterval time.Duration
	maxInterval time.Duration
	active      atomic.Value
	refreshMu   sync.Mutex
	wg          sync.WaitGroup
	stop        context.CancelFunc
}

// NewManager builds the initial snapshot. When an inspector is configured the
// first storage inspection must succeed.
func NewManager(ctx context.Context, cfg ManagerConfig) (*Manager, error) {
	if cfg.Catalog == nil {
		cfg.Catalog = Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if maxInterval <= 0 {
		maxInterval = 5 * time.Minute
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	m := &Manager{
		base:        cfg.Catalog,
		inspector:   cfg.Inspector,
		logger:      cfg.Logger.Component("catalog_refresh"),
		metrics:     cfg.Metrics,
		minInterval: minInterval,
		maxInterval: maxInterval,
	}

	if m.inspector == nil {
		m.active.Store(&Snapshot{
			Catalog:     m.base,
			RefreshedAt: time.Now(),
			Fingerprint: fingerprint(m.base),
		})
		return m, nil
	}

	start := time.Now()
	snapshot, err := m.buildSnapshot(ctx)
	if err != nil {
		m.recordRefresh(time.Since(start), false, "startup")
		return nil, err
	}
	m.active.Store(snapshot)
	m.recordRefresh(time.Since(start), true, "startup")
	m.logger.Info("catalog snapshot built",
		slog.Int("collections", snapshot.Catalog.Len()),
		slog.Duration("duration", time.Since(start)),
	)

	return m, nil
}

// Start begins the background refresh loop. It is a no-op without an inspector.
func (m *Manager) Start(ctx context.Context) {
	if m.inspector == nil {
		m.logger.Info("catalog refresh disabled")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.stop = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(loopCtx)
	}()
}

// Wait blocks until the refresh loop exits or ctx is done. If ctx ends first
// the loop is stopped so nothing outlives the call for long.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if m.stop != nil {
			m.stop()
		}
		return ctx.Err()
	}
}

// Current returns the active snapshot.
func (m *Manager) Current() *Snapshot {
	if value := m.active.Load(); value != nil {
		return value.(*Snapshot)
	}
	return nil
}

// Catalog returns the catalog of the active snapshot.
func (m *Manager) Catalog() *Catalog {
	if snapshot := m.Current(); snapshot != nil {
		return snapshot.Catalog
	}
	return m.base
}

// StorageEnabled reports whether snapshots carry storage facts.
func (m *Manager) StorageEnabled() bool {
	return m.inspector != nil
}

// RefreshNow re-inspects storage and swaps the snapshot.
// On failure the previous snapshot stays active.
func (m *Manager) RefreshNow(ctx context.Context) (*Snapshot, error) {
	if m.inspector == nil {
		return nil, ErrStorageDisabled
	}

	start := time.Now()
	snapshot, err := m.buildSnapshot(ctx)
	if err != nil {
		m.recordRefresh(time.Since(start), false, "manual")
		return nil, err
	}
	m.active.Store(snapshot)
	m.recordRefresh(time.Since(start), true, "manual")
	m.logger.Info("catalog refreshed", slog.String("trigger", "manual"))
	return snapshot, nil
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("catalog refresh stopped")
			return
		case <-timer.C:
			m.refreshOnce(ctx, &interval)
			timer.Reset(interval)
		}
	}
}

func (m *Manager) refreshOnce(ctx context.Context, interval *time.Duration) {
	start := time.Now()
	snapshot, err := m.buildSnapshot(ctx)
	if err != nil {
		m.logger.Warn("catalog refresh failed", slog.String("error", err.Error()))
		m.recordRefresh(time.Since(start), false, "poll")
		*interval = m.minInterval
		return
	}

	current := m.Current()
	if current != nil && current.Fingerprint == snapshot.Fingerprint {
		m.recordRefresh(time.Since(start), true, "poll_no_change")
		*interval = nextInterval(*interval, m.minInterval, m.maxInterval)
		return
	}

	m.active.Store(snapshot)
	*interval = m.minInterval
	m.recordRefresh(time.Since(start), true, "poll")
	m.logger.Info("catalog storage changed",
		slog.String("fingerprint", snapshot.Fingerprint),
	)
}

func (m *Manager) buildSnapshot(ctx context.Context) (*Snapshot, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	facts, err := m.inspector.Inspect(ctx, m.base.Collections())
	if err != nil {
		return nil, fmt.Errorf("failed to inspect catalog storage: %w", err)
	}
	cat := m.base.WithStorage(facts)
	return &Snapshot{
		Catalog:        cat,
		RefreshedAt:    time.Now(),
		StorageChecked: true,
		Fingerprint:    fingerprint(cat),
	}, nil
}

func (m *Manager) recordRefresh(duration time.Duration, success bool, trigger string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordRefresh(context.Background(), duration, success, trigger)
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}

// fingerprint hashes the observable state of every entry.
func fingerprint(c *Catalog) string {
	hash := sha256.New()
	for _, e := range c.entries {
		exists, docs := "-", "-"
		if e.Exists != nil {
			exists = fmt.Sprintf("%t", *e.Exists)
		}
		if e.Documents != nil {
			docs = fmt.Sprintf("%d", *e.Documents)
		}
		_, _ = fmt.Fprintf(hash, "%d:%s|%s|%s\n", len(e.Collection), e.Collection, exists, docs)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
