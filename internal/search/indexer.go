// Package search projects committed snapshots into a Redis-backed index so
// records are queryable by domain, district, and name without touching the
// primary store.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"citypulse/internal/types"
)

// Document is the indexed projection of one normalized record. It carries
// only what search consumers need; the primary store stays authoritative.
type Document struct {
	Domain       types.Domain `json:"domain"`
	ExternalID   string       `json:"external_id"`
	Name         string       `json:"name"`
	DistrictCode string       `json:"district_code,omitempty"`
	DistrictName string       `json:"district_name"`
	Category     string       `json:"category,omitempty"`
	Capacity     int          `json:"capacity,omitempty"`
	Available    int          `json:"available,omitempty"`

	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`

	FetchedAt int64 `json:"fetched_at"`
}

// SnapshotReader loads committed snapshots. Satisfied by
// db.SnapshotRepository. Reload commits are transactional, so anything read
// here is a fully written snapshot, never a half-replaced one.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, domain types.Domain) (*types.DataSnapshot, error)
}

// DocStore is the index backend: document payloads plus a per-domain id set
// for enumeration. Satisfied by RedisStore.
type DocStore interface {
	// ListIDs returns the ids currently indexed for a domain.
	ListIDs(ctx context.Context, domain types.Domain) ([]string, error)
	// CountIDs returns the number of indexed documents for a domain.
	CountIDs(ctx context.Context, domain types.Domain) (int64, error)
	// Apply atomically writes the upserted documents and removes the listed
	// ids for one domain.
	Apply(ctx context.Context, domain types.Domain, upserts map[string][]byte, removals []string) error
	// GetDoc returns one document payload, or nil if absent.
	GetDoc(ctx context.Context, domain types.Domain, externalID string) ([]byte, error)
}

// Indexer synchronizes the index with the persisted snapshots.
type Indexer struct {
	store     DocStore
	snapshots SnapshotReader
	logger    *slog.Logger
}

// NewIndexer creates an Indexer on the given document store.
func NewIndexer(store DocStore, snapshots SnapshotReader, logger *slog.Logger) *Indexer {
	return &Indexer{store: store, snapshots: snapshots, logger: logger}
}

// SyncDomain rebuilds the index documents for one domain from its last
// committed snapshot. Documents for records that vanished from the snapshot
// are removed. A domain whose snapshot is stale keeps its existing documents
// (they reflect the last good data); a domain with no snapshot is a no-op.
// Returns the number of live documents.
func (ix *Indexer) SyncDomain(ctx context.Context, domain types.Domain) (int, error) {
	snap, err := ix.snapshots.GetSnapshot(ctx, domain)
	if err != nil {
		return 0, err
	}
	if snap == nil || snap.Status == types.SnapshotFailed {
		return 0, nil
	}
	if snap.Status == types.SnapshotStale {
		ix.logger.Info("index sync keeping last good documents for stale domain",
			slog.String("domain", string(domain)))
		n, err := ix.store.CountIDs(ctx, domain)
		if err != nil {
			return 0, indexErr(domain, "failed to count documents", err)
		}
		return int(n), nil
	}

	existing, err := ix.store.ListIDs(ctx, domain)
	if err != nil {
		return 0, indexErr(domain, "failed to list indexed ids", err)
	}

	upserts := make(map[string][]byte, len(snap.Records))
	for i := range snap.Records {
		rec := &snap.Records[i]
		payload, err := json.Marshal(toDocument(rec))
		if err != nil {
			return 0, indexErr(domain, "failed to marshal document", err)
		}
		upserts[rec.ExternalID] = payload
	}

	// Drop documents for records no longer in the snapshot.
	var removals []string
	for _, id := range existing {
		if _, ok := upserts[id]; !ok {
			removals = append(removals, id)
		}
	}

	if err := ix.store.Apply(ctx, domain, upserts, removals); err != nil {
		return 0, indexErr(domain, "failed to write index documents", err)
	}

	ix.logger.Info("domain index synced",
		slog.String("domain", string(domain)),
		slog.Int("documents", len(upserts)),
		slog.Int("removed", len(removals)))
	return len(upserts), nil
}

// SyncAll runs SyncDomain for every domain. One domain failing does not stop
// the others; the first error is returned after all domains were attempted.
func (ix *Indexer) SyncAll(ctx context.Context) (int, error) {
	var total int
	var firstErr error
	for _, domain := range types.AllDomains() {
		n, err := ix.SyncDomain(ctx, domain)
		if err != nil {
			ix.logger.Error("domain index sync failed",
				slog.String("domain", string(domain)),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}
	return total, firstErr
}

// ClearAll deletes every index document and id set. Destructive: only the
// operator-run rebuild binary calls this, never the periodic schedule.
func (ix *Indexer) ClearAll(ctx context.Context) error {
	for _, domain := range types.AllDomains() {
		ids, err := ix.store.ListIDs(ctx, domain)
		if err != nil {
			return indexErr(domain, "failed to list indexed ids", err)
		}
		if err := ix.store.Apply(ctx, domain, nil, ids); err != nil {
			return indexErr(domain, "failed to clear index", err)
		}
	}
	return nil
}

// GetDocument fetches one indexed document. Returns nil if absent.
func (ix *Indexer) GetDocument(ctx context.Context, domain types.Domain, externalID string) (*Document, error) {
	payload, err := ix.store.GetDoc(ctx, domain, externalID)
	if err != nil {
		return nil, indexErr(domain, "failed to read document", err)
	}
	if payload == nil {
		return nil, nil
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, indexErr(domain, "failed to decode document", err)
	}
	return &doc, nil
}

func toDocument(rec *types.NormalizedRecord) Document {
	doc := Document{
		Domain:       rec.Domain,
		ExternalID:   rec.ExternalID,
		Name:         rec.Name,
		DistrictCode: rec.DistrictCode,
		DistrictName: rec.DistrictName,
		Category:     rec.Category,
		Capacity:     rec.Capacity,
		Available:    rec.Available,
		FetchedAt:    rec.FetchedAt.Unix(),
	}
	if rec.Coordinate != nil {
		doc.Lat = rec.Coordinate.Lat
		doc.Lon = rec.Coordinate.Lon
	}
	return doc
}

func indexErr(domain types.Domain, msg string, err error) error {
	return types.NewAppError(types.ErrCodeIndexSync,
		fmt.Sprintf("%s: %s", domain, msg), err)
}
