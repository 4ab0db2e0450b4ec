// Package ingest runs fetch-normalize-persist cycles across the source
// adapters. Source failures are isolated per domain: one upstream being down
// degrades that domain to stale and never blocks the others.
package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"citypulse/internal/sources"
	"citypulse/internal/types"
)

// maxConcurrentSources bounds parallel upstream fetches so a full-cycle run
// does not hammer the open API.
const maxConcurrentSources = 4

// Store is the persistence capability the pipeline needs. Satisfied by
// db.SnapshotStore.
type Store interface {
	CommitReload(ctx context.Context, domain types.Domain, records []types.NormalizedRecord, status types.SnapshotStatus, fetchedAt time.Time) error
	CommitUpsert(ctx context.Context, domain types.Domain, records []types.NormalizedRecord, status types.SnapshotStatus, fetchedAt time.Time) error
	MarkStale(ctx context.Context, domain types.Domain) error
	SaveRawPayload(ctx context.Context, domain types.Domain, compressed []byte, fetchedAt time.Time) error
}

// Pipeline coordinates the adapters against the store.
type Pipeline struct {
	adapters map[types.Domain]sources.Adapter
	store    Store
	logger   *slog.Logger
	clock    types.Clock
}

// New creates a Pipeline over the given adapters.
func New(adapters []sources.Adapter, store Store, logger *slog.Logger, clock types.Clock) *Pipeline {
	byDomain := make(map[types.Domain]sources.Adapter, len(adapters))
	for _, a := range adapters {
		byDomain[a.Domain()] = a
	}
	return &Pipeline{
		adapters: byDomain,
		store:    store,
		logger:   logger,
		clock:    clock,
	}
}

// Run ingests the given domains in parallel. Each domain's outcome is
// independent; the returned source errors carry per-domain failures while
// the results report what was committed. Run itself only fails on systemic
// problems (context cancellation).
func (p *Pipeline) Run(ctx context.Context, domains []types.Domain) ([]types.IngestResult, []types.SourceError) {
	var (
		mu      sync.Mutex
		results []types.IngestResult
		errs    []types.SourceError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSources)

	for _, domain := range domains {
		domain := domain
		g.Go(func() error {
			res, srcErr := p.RunDomain(gctx, domain)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, res)
			if srcErr != nil {
				errs = append(errs, *srcErr)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errs
}

// RunDomain ingests a single domain: fetch, normalize, persist, retain raw
// payload. A fetch failure with no usable rows marks the snapshot stale and
// returns a source error; a failure after some pages commits the subset as a
// partial snapshot.
func (p *Pipeline) RunDomain(ctx context.Context, domain types.Domain) (types.IngestResult, *types.SourceError) {
	adapter, ok := p.adapters[domain]
	if !ok {
		return types.IngestResult{Domain: domain, Status: types.SnapshotFailed},
			&types.SourceError{Domain: domain, Code: types.ErrCodeInternal, Message: "no adapter registered"}
	}

	log := p.logger.With(slog.String("domain", string(domain)))
	started := p.clock.Now()

	res, fetchErr := adapter.Fetch(ctx)
	if res == nil || len(res.Records) == 0 {
		if fetchErr == nil {
			// Empty dataset is a valid snapshot (seasonal domains go empty).
			res = &sources.Result{}
		} else {
			log.Error("source fetch failed, keeping previous snapshot",
				slog.String("error", fetchErr.Error()))
			if err := p.store.MarkStale(ctx, domain); err != nil {
				log.Error("failed to mark snapshot stale", slog.String("error", err.Error()))
			}
			return types.IngestResult{Domain: domain, Status: types.SnapshotStale},
				sourceError(domain, fetchErr)
		}
	}

	status := types.SnapshotOK
	var srcErr *types.SourceError
	if fetchErr != nil {
		status = types.SnapshotPartial
		srcErr = sourceError(domain, fetchErr)
		log.Warn("source fetch partially failed, committing subset",
			slog.Int("records", len(res.Records)),
			slog.String("error", fetchErr.Error()))
	}

	fetchedAt := p.clock.Now()
	var commitErr error
	switch adapter.Strategy() {
	case types.PersistUpsert:
		commitErr = p.store.CommitUpsert(ctx, domain, res.Records, status, fetchedAt)
	default:
		commitErr = p.store.CommitReload(ctx, domain, res.Records, status, fetchedAt)
	}
	if commitErr != nil {
		log.Error("snapshot commit failed", slog.String("error", commitErr.Error()))
		return types.IngestResult{Domain: domain, Status: types.SnapshotStale},
			sourceError(domain, commitErr)
	}

	// Raw payload retention is best effort; a failure here never fails the
	// cycle because the normalized snapshot is already committed.
	if len(res.Raw) > 0 {
		if compressed, err := compress(res.Raw); err == nil {
			if err := p.store.SaveRawPayload(ctx, domain, compressed, fetchedAt); err != nil {
				log.Warn("raw payload retention failed", slog.String("error", err.Error()))
			}
		}
	}

	log.Info("domain ingested",
		slog.Int("records", len(res.Records)),
		slog.String("status", string(status)),
		slog.Duration("elapsed", p.clock.Now().Sub(started)))

	return types.IngestResult{Domain: domain, RecordCount: len(res.Records), Status: status}, srcErr
}

// sourceError converts an adapter failure into the JobRun error shape.
func sourceError(domain types.Domain, err error) *types.SourceError {
	return &types.SourceError{
		Domain:  domain,
		Code:    types.CodeOf(err),
		Message: err.Error(),
	}
}

// compress gzips a raw payload for storage.
func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
