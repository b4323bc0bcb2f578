package adapter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drivefs/drivefs/internal/metadata"
	"github.com/drivefs/drivefs/internal/remote"
	"github.com/drivefs/drivefs/internal/tree"
	"github.com/drivefs/drivefs/pkg/errors"
)

// Names of the conventional self and parent entries.
const (
	SelfEntry   = "."
	ParentEntry = ".."
)

// MetricsRecorder receives operation measurements. *metrics.Collector
// implements it.
type MetricsRecorder interface {
	RecordOperation(operation string, duration time.Duration, err error)
	RecordSync(entries int, duration time.Duration, err error)
	RecordFetch(bytes int64, duration time.Duration)
	RecordCacheHit()
	RecordCacheMiss()
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(string, time.Duration, error) {}
func (nopRecorder) RecordSync(int, time.Duration, error)         {}
func (nopRecorder) RecordFetch(int64, time.Duration)             {}
func (nopRecorder) RecordCacheHit()                              {}
func (nopRecorder) RecordCacheMiss()                             {}

// Options configures an Adapter.
type Options struct {
	Client  remote.Client
	Logger  *zap.Logger
	Metrics MetricsRecorder

	// Query is sent with every listing request.
	Query remote.Query
	// RefreshInterval enables periodic resync after Start; 0 disables it.
	RefreshInterval time.Duration
}

// Stats counts adapter activity since creation.
type Stats struct {
	Syncs        int64
	SyncFailures int64
	Entries      int
	LastSync     time.Time
	Opens        int64
	Reads        int64
	Fetches      int64
	BytesFetched int64
	CacheHits    int64
	Errors       int64
}

// Adapter serves filesystem operations from a tree mirrored from a remote
// document service.
type Adapter struct {
	client  remote.Client
	query   remote.Query
	logger  *zap.Logger
	metrics MetricsRecorder

	// mu serializes every operation, including the content fetch inside
	// ReadFile, so the open/read/release state machine stays atomic under
	// concurrent dispatch.
	mu    sync.Mutex
	root  *tree.DirectoryNode
	stats Stats

	refreshInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
	started         bool
}

// New creates an adapter and performs the initial sync. A failed initial
// sync is returned and no adapter is created.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.Client == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "remote client is required").
			WithComponent("adapter")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}

	a := &Adapter{
		client:          opts.Client,
		query:           opts.Query,
		logger:          opts.Logger.With(zap.String("component", "adapter")),
		metrics:         opts.Metrics,
		refreshInterval: opts.RefreshInterval,
	}
	if err := a.Refresh(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Refresh lists the remote collection and replaces the tree. Files open in
// the old tree stay open in the new one when their remote identifier is
// still listed; their cached content is dropped.
func (a *Adapter) Refresh(ctx context.Context) error {
	start := time.Now()
	entries, err := a.client.ListDocuments(ctx, a.query)
	elapsed := time.Since(start)
	a.metrics.RecordSync(len(entries), elapsed, err)
	if err != nil {
		a.mu.Lock()
		a.stats.SyncFailures++
		a.stats.Errors++
		a.mu.Unlock()
		a.logger.Error("sync failed", zap.Error(err), zap.Duration("duration", elapsed))
		return err
	}

	root := tree.NewRoot(entries)

	a.mu.Lock()
	reopened := carryOpenState(a.root, root)
	a.root = root
	a.stats.Syncs++
	a.stats.Entries = len(entries)
	a.stats.LastSync = time.Now()
	a.mu.Unlock()

	a.logger.Info("synced document listing",
		zap.String("backend", a.client.Name()),
		zap.Int("entries", len(entries)),
		zap.Int("reopened", reopened),
		zap.Duration("duration", elapsed))
	return nil
}

func carryOpenState(old, fresh *tree.DirectoryNode) int {
	if old == nil {
		return 0
	}
	open := map[string]bool{}
	for _, f := range old.Files() {
		if f.IsOpen() {
			open[f.ID()] = true
		}
	}
	n := 0
	for _, f := range fresh.Files() {
		if open[f.ID()] {
			f.Open()
			n++
		}
	}
	return n
}

// Start begins periodic refresh when a refresh interval is configured.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.NewError(errors.ErrCodeInternalError, "adapter already started").
			WithComponent("adapter")
	}
	a.started = true
	a.stopCh = make(chan struct{})

	if a.refreshInterval <= 0 {
		return nil
	}
	a.wg.Add(1)
	go a.refreshLoop(ctx, a.refreshInterval, a.stopCh)
	a.logger.Info("periodic refresh enabled", zap.Duration("interval", a.refreshInterval))
	return nil
}

func (a *Adapter) refreshLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	defer a.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// failures keep the previous tree
			_ = a.Refresh(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends periodic refresh and waits for an in-flight refresh to finish.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	close(a.stopCh)
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListDirectory returns the self and parent entries followed by the names
// of the directory's children.
func (a *Adapter) ListDirectory(path string) ([]string, error) {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	dir, err := tree.ResolveDir(a.root, path)
	if err != nil {
		return nil, a.fail("readdir", path, start, err)
	}
	names := append([]string{SelfEntry, ParentEntry}, dir.Names()...)
	a.metrics.RecordOperation("readdir", time.Since(start), nil)
	return names, nil
}

// GetAttributes returns the metadata block of the node at path.
func (a *Adapter) GetAttributes(path string) (metadata.Block, error) {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	n, err := tree.Resolve(a.root, path)
	if err != nil {
		return metadata.Block{}, a.fail("getattr", path, start, err)
	}
	a.metrics.RecordOperation("getattr", time.Since(start), nil)
	return n.Metadata(), nil
}

// OpenFile marks the file at path open. Opening an open file is a no-op.
func (a *Adapter) OpenFile(path string) error {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := tree.ResolveFile(a.root, path)
	if err != nil {
		return a.fail("open", path, start, err)
	}
	f.Open()
	a.stats.Opens++
	a.metrics.RecordOperation("open", time.Since(start), nil)
	a.logger.Debug("opened", zap.String("path", path))
	return nil
}

// ReadFile reads up to size bytes at offset from the open file at path.
func (a *Adapter) ReadFile(ctx context.Context, path string, size int, offset int64) ([]byte, error) {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := tree.ResolveFile(a.root, path)
	if err != nil {
		return nil, a.fail("read", path, start, err)
	}

	cached := f.Cached()
	data, fetched, err := f.Read(ctx, a.client, size, offset)
	if err != nil {
		return nil, a.fail("read", path, start, err)
	}

	a.stats.Reads++
	switch {
	case fetched:
		n := int64(f.CacheSize())
		a.stats.Fetches++
		a.stats.BytesFetched += n
		a.metrics.RecordCacheMiss()
		a.metrics.RecordFetch(n, time.Since(start))
		a.logger.Debug("fetched content",
			zap.String("path", path),
			zap.Int64("size", n),
			zap.Duration("duration", time.Since(start)))
	case cached:
		a.stats.CacheHits++
		a.metrics.RecordCacheHit()
	}
	a.metrics.RecordOperation("read", time.Since(start), nil)
	return data, nil
}

// CloseFile closes the file at path and discards its cached content,
// regardless of how many times it was opened.
func (a *Adapter) CloseFile(path string) error {
	start := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := tree.ResolveFile(a.root, path)
	if err != nil {
		return a.fail("release", path, start, err)
	}
	f.Release()
	a.metrics.RecordOperation("release", time.Since(start), nil)
	a.logger.Debug("released", zap.String("path", path))
	return nil
}

// Stats returns a snapshot of the activity counters.
func (a *Adapter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// fail records err for op and returns it. Callers hold mu.
func (a *Adapter) fail(op, path string, start time.Time, err error) error {
	a.stats.Errors++
	a.metrics.RecordOperation(op, time.Since(start), err)

	code := errors.CodeOf(err)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("path", path),
		zap.String("category", string(errors.GetCategory(code))),
	}
	switch code {
	case errors.ErrCodeFileNotFound:
		a.logger.Debug("no such entry", fields...)
	case errors.ErrCodeRemoteFailure:
		a.logger.Warn("remote failure", append(fields, zap.Error(err))...)
	default:
		a.logger.Info("operation failed", append(fields, zap.Error(err))...)
	}
	return err
}
