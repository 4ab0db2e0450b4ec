package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"citypulse/internal/types"
)

type memDocStore struct {
	docs    map[types.Domain]map[string][]byte
	listErr error
	applied int
}

func newMemDocStore() *memDocStore {
	return &memDocStore{docs: make(map[types.Domain]map[string][]byte)}
}

func (s *memDocStore) ListIDs(_ context.Context, domain types.Domain) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var ids []string
	for id := range s.docs[domain] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memDocStore) CountIDs(_ context.Context, domain types.Domain) (int64, error) {
	return int64(len(s.docs[domain])), nil
}

func (s *memDocStore) Apply(_ context.Context, domain types.Domain, upserts map[string][]byte, removals []string) error {
	s.applied++
	if s.docs[domain] == nil {
		s.docs[domain] = make(map[string][]byte)
	}
	for id, payload := range upserts {
		s.docs[domain][id] = payload
	}
	for _, id := range removals {
		delete(s.docs[domain], id)
	}
	return nil
}

func (s *memDocStore) GetDoc(_ context.Context, domain types.Domain, externalID string) ([]byte, error) {
	payload, ok := s.docs[domain][externalID]
	if !ok {
		return nil, nil
	}
	return payload, nil
}

type stubSnapshots struct {
	snaps map[types.Domain]*types.DataSnapshot
}

func (s *stubSnapshots) GetSnapshot(_ context.Context, domain types.Domain) (*types.DataSnapshot, error) {
	return s.snaps[domain], nil
}

func record(domain types.Domain, id, name string) types.NormalizedRecord {
	return types.NormalizedRecord{
		Domain:       domain,
		ExternalID:   id,
		Name:         name,
		DistrictCode: "11110",
		DistrictName: "Jongno-gu",
		Coordinate:   &types.Coordinate{Lat: 37.57, Lon: 126.98},
		FetchedAt:    time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC),
	}
}

func newTestIndexer(store DocStore, snaps map[types.Domain]*types.DataSnapshot) *Indexer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewIndexer(store, &stubSnapshots{snaps: snaps}, logger)
}

func TestSyncDomain_WritesAndRemoves(t *testing.T) {
	store := newMemDocStore()
	store.docs[types.DomainPark] = map[string][]byte{
		"pk-old": []byte(`{}`),
		"pk-1":   []byte(`{"name":"outdated"}`),
	}
	idx := newTestIndexer(store, map[types.Domain]*types.DataSnapshot{
		types.DomainPark: {
			Domain: types.DomainPark,
			Status: types.SnapshotOK,
			Records: []types.NormalizedRecord{
				record(types.DomainPark, "pk-1", "Namsan Park"),
				record(types.DomainPark, "pk-2", "Hangang Park"),
			},
		},
	})

	n, err := idx.SyncDomain(context.Background(), types.DomainPark)
	if err != nil {
		t.Fatalf("SyncDomain() error = %v", err)
	}
	if n != 2 {
		t.Errorf("live documents = %d, want 2", n)
	}
	if _, ok := store.docs[types.DomainPark]["pk-old"]; ok {
		t.Error("vanished record should be removed from the index")
	}

	doc, err := idx.GetDocument(context.Background(), types.DomainPark, "pk-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc == nil || doc.Name != "Namsan Park" {
		t.Errorf("document = %+v, want refreshed Namsan Park", doc)
	}
	if doc.DistrictName != "Jongno-gu" || doc.Lat == 0 {
		t.Errorf("document projection incomplete: %+v", doc)
	}
}

func TestSyncDomain_StaleKeepsDocuments(t *testing.T) {
	store := newMemDocStore()
	store.docs[types.DomainWeather] = map[string][]byte{"POI001": []byte(`{}`)}
	idx := newTestIndexer(store, map[types.Domain]*types.DataSnapshot{
		types.DomainWeather: {Domain: types.DomainWeather, Status: types.SnapshotStale},
	})

	n, err := idx.SyncDomain(context.Background(), types.DomainWeather)
	if err != nil {
		t.Fatalf("SyncDomain() error = %v", err)
	}
	if n != 1 {
		t.Errorf("live documents = %d, want 1 kept", n)
	}
	if store.applied != 0 {
		t.Error("stale domain must not rewrite the index")
	}
}

func TestSyncDomain_AbsentOrFailedIsNoOp(t *testing.T) {
	store := newMemDocStore()
	idx := newTestIndexer(store, map[types.Domain]*types.DataSnapshot{
		types.DomainAirQuality: {Domain: types.DomainAirQuality, Status: types.SnapshotFailed},
	})

	for _, domain := range []types.Domain{types.DomainAirQuality, types.DomainLibrary} {
		n, err := idx.SyncDomain(context.Background(), domain)
		if err != nil {
			t.Fatalf("SyncDomain(%s) error = %v", domain, err)
		}
		if n != 0 || store.applied != 0 {
			t.Errorf("SyncDomain(%s) = %d docs, %d applies; want no-op", domain, n, store.applied)
		}
	}
}

func TestSyncDomain_StoreError(t *testing.T) {
	store := newMemDocStore()
	store.listErr = errors.New("connection refused")
	idx := newTestIndexer(store, map[types.Domain]*types.DataSnapshot{
		types.DomainPark: {
			Domain:  types.DomainPark,
			Status:  types.SnapshotOK,
			Records: []types.NormalizedRecord{record(types.DomainPark, "pk-1", "Namsan Park")},
		},
	})

	_, err := idx.SyncDomain(context.Background(), types.DomainPark)
	if err == nil {
		t.Fatal("expected store error to surface")
	}
	if code := types.CodeOf(err); code != types.ErrCodeIndexSync {
		t.Errorf("error code = %q, want %q", code, types.ErrCodeIndexSync)
	}
}

func TestSyncAll(t *testing.T) {
	store := newMemDocStore()
	idx := newTestIndexer(store, map[types.Domain]*types.DataSnapshot{
		types.DomainPark: {
			Domain: types.DomainPark,
			Status: types.SnapshotOK,
			Records: []types.NormalizedRecord{
				record(types.DomainPark, "pk-1", "Namsan Park"),
			},
		},
		types.DomainLibrary: {
			Domain: types.DomainLibrary,
			Status: types.SnapshotOK,
			Records: []types.NormalizedRecord{
				record(types.DomainLibrary, "lib-1", "Jongno Library"),
				record(types.DomainLibrary, "lib-2", "City Library"),
			},
		},
	})

	total, err := idx.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total documents = %d, want 3", total)
	}
}

func TestClearAll(t *testing.T) {
	store := newMemDocStore()
	store.docs[types.DomainPark] = map[string][]byte{"pk-1": []byte(`{}`)}
	store.docs[types.DomainWeather] = map[string][]byte{"POI001": []byte(`{}`)}
	idx := newTestIndexer(store, map[types.Domain]*types.DataSnapshot{})

	if err := idx.ClearAll(context.Background()); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	for domain, docs := range store.docs {
		if len(docs) != 0 {
			t.Errorf("domain %q still holds %d documents", domain, len(docs))
		}
	}
}

func TestGetDocument_Absent(t *testing.T) {
	idx := newTestIndexer(newMemDocStore(), map[types.Domain]*types.DataSnapshot{})
	doc, err := idx.GetDocument(context.Background(), types.DomainPark, "missing")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc != nil {
		t.Errorf("doc = %+v, want nil for absent id", doc)
	}
}

func TestDocumentProjection(t *testing.T) {
	rec := record(types.DomainCoolingShelter, "sh-1", "Community Center")
	rec.Capacity = 50
	rec.Available = 12
	rec.Category = "shelter"

	payload, err := json.Marshal(toDocument(&rec))
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if doc.Capacity != 50 || doc.Available != 12 || doc.Category != "shelter" {
		t.Errorf("document = %+v", doc)
	}
	if doc.FetchedAt != rec.FetchedAt.Unix() {
		t.Errorf("fetched_at = %d, want %d", doc.FetchedAt, rec.FetchedAt.Unix())
	}
}
