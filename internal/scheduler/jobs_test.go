package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"citypulse/internal/config"
	"citypulse/internal/types"
)

type stubIngest struct {
	results []types.IngestResult
	srcErrs []types.SourceError
	domains []types.Domain
}

func (s *stubIngest) Run(_ context.Context, domains []types.Domain) ([]types.IngestResult, []types.SourceError) {
	s.domains = domains
	return s.results, s.srcErrs
}

type stubEvaluator struct {
	intents   map[types.Domain][]types.NotificationIntent
	errs      map[types.Domain]error
	evaluated []types.Domain
}

func (s *stubEvaluator) EvaluateDomain(_ context.Context, domain types.Domain) ([]types.NotificationIntent, error) {
	s.evaluated = append(s.evaluated, domain)
	if err := s.errs[domain]; err != nil {
		return nil, err
	}
	return s.intents[domain], nil
}

type stubPublisher struct {
	published []types.NotificationIntent
}

func (s *stubPublisher) PublishAll(_ context.Context, intents []types.NotificationIntent) []types.EventResult {
	s.published = append(s.published, intents...)
	return make([]types.EventResult, len(intents))
}

type stubSyncer struct {
	n      int
	err    error
	synced []types.Domain
}

func (s *stubSyncer) SyncDomain(_ context.Context, domain types.Domain) (int, error) {
	s.synced = append(s.synced, domain)
	return s.n, s.err
}

func (s *stubSyncer) SyncAll(context.Context) (int, error) { return s.n, s.err }

type stubPruner struct {
	events, deadLetters, runs, payloads int64
	err                                 error
	cutoffs                             []time.Time
}

func (s *stubPruner) PruneEvents(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoffs = append(s.cutoffs, cutoff)
	return s.events, s.err
}

func (s *stubPruner) PruneDeadLetters(_ context.Context, cutoff time.Time) (int64, error) {
	return s.deadLetters, nil
}

func (s *stubPruner) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return s.runs, nil
}

func (s *stubPruner) PruneRawPayloads(_ context.Context, cutoff time.Time) (int64, error) {
	return s.payloads, nil
}

func newTestJobs(ingest IngestRunner, ev Evaluator, pub IntentPublisher, sync IndexSyncer, pr *stubPruner) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	retain := config.RetentionConfig{
		DeadLetters: 14 * 24 * time.Hour,
		JobHistory:  7 * 24 * time.Hour,
		RawPayloads: 3 * 24 * time.Hour,
	}
	return NewJobs(ingest, ev, pub, sync, pr, pr, pr, retain, logger,
		&fakeClock{now: time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)})
}

func TestIngestTask_EvaluatesAndPublishes(t *testing.T) {
	ingest := &stubIngest{results: []types.IngestResult{
		{Domain: types.DomainWeather, RecordCount: 10, Status: types.SnapshotOK},
	}}
	ev := &stubEvaluator{intents: map[types.Domain][]types.NotificationIntent{
		types.DomainWeather: {{UserID: "usr_1", Domain: types.DomainWeather, DedupeKey: "ntf_a"}},
	}}
	pub := &stubPublisher{}
	sync := &stubSyncer{}
	jb := newTestJobs(ingest, ev, pub, sync, &stubPruner{})

	items, srcErrs, err := jb.IngestTask(types.DomainWeather)(context.Background())
	if err != nil {
		t.Fatalf("task error = %v", err)
	}
	if items != 10 || len(srcErrs) != 0 {
		t.Errorf("items = %d, srcErrs = %v", items, srcErrs)
	}
	if len(ingest.domains) != 1 || ingest.domains[0] != types.DomainWeather {
		t.Errorf("ingested domains = %v", ingest.domains)
	}
	if len(pub.published) != 1 || pub.published[0].DedupeKey != "ntf_a" {
		t.Errorf("published = %+v", pub.published)
	}
	if len(sync.synced) != 1 || sync.synced[0] != types.DomainWeather {
		t.Errorf("synced = %v, want the ingested domain refreshed", sync.synced)
	}
}

func TestIngestTask_SkipsNonEvaluableResults(t *testing.T) {
	ingest := &stubIngest{
		results: []types.IngestResult{
			{Domain: types.DomainWeather, Status: types.SnapshotStale},
			{Domain: types.DomainAirQuality, RecordCount: 25, Status: types.SnapshotPartial},
		},
		srcErrs: []types.SourceError{{Domain: types.DomainWeather, Code: types.ErrCodeFetchTimeout}},
	}
	ev := &stubEvaluator{}
	sync := &stubSyncer{}
	jb := newTestJobs(ingest, ev, &stubPublisher{}, sync, &stubPruner{})

	items, srcErrs, err := jb.IngestTask(types.DomainWeather, types.DomainAirQuality)(context.Background())
	if err != nil {
		t.Fatalf("task error = %v", err)
	}
	if items != 25 {
		t.Errorf("items = %d, want 25", items)
	}
	if len(srcErrs) != 1 {
		t.Errorf("srcErrs = %v, want the fetch failure carried through", srcErrs)
	}
	// Stale weather must not be evaluated or re-synced; partial air quality
	// must be both.
	if len(ev.evaluated) != 1 || ev.evaluated[0] != types.DomainAirQuality {
		t.Errorf("evaluated = %v, want [air_quality]", ev.evaluated)
	}
	if len(sync.synced) != 1 || sync.synced[0] != types.DomainAirQuality {
		t.Errorf("synced = %v, want [air_quality]", sync.synced)
	}
}

func TestIngestTask_EvaluationErrorBecomesSourceError(t *testing.T) {
	ingest := &stubIngest{results: []types.IngestResult{
		{Domain: types.DomainWeather, RecordCount: 3, Status: types.SnapshotOK},
	}}
	ev := &stubEvaluator{errs: map[types.Domain]error{
		types.DomainWeather: types.NewAppError(types.ErrCodePersistence, "state read failed", nil),
	}}
	jb := newTestJobs(ingest, ev, &stubPublisher{}, &stubSyncer{}, &stubPruner{})

	_, srcErrs, err := jb.IngestTask(types.DomainWeather)(context.Background())
	if err != nil {
		t.Fatalf("task error = %v, evaluation failures degrade to partial", err)
	}
	if len(srcErrs) != 1 || srcErrs[0].Code != types.ErrCodePersistence {
		t.Errorf("srcErrs = %+v", srcErrs)
	}
}

func TestIndexSyncTask(t *testing.T) {
	jb := newTestJobs(&stubIngest{}, &stubEvaluator{}, &stubPublisher{}, &stubSyncer{n: 120}, &stubPruner{})
	n, srcErrs, err := jb.IndexSyncTask()(context.Background())
	if err != nil || len(srcErrs) != 0 {
		t.Fatalf("task = %v, %v", srcErrs, err)
	}
	if n != 120 {
		t.Errorf("items = %d, want 120", n)
	}

	jb = newTestJobs(&stubIngest{}, &stubEvaluator{}, &stubPublisher{}, &stubSyncer{err: errors.New("redis down")}, &stubPruner{})
	if _, _, err := jb.IndexSyncTask()(context.Background()); err == nil {
		t.Fatal("expected sync failure to fail the run")
	}
}

func TestCleanupTask(t *testing.T) {
	pr := &stubPruner{events: 4, deadLetters: 2, runs: 10, payloads: 6}
	jb := newTestJobs(&stubIngest{}, &stubEvaluator{}, &stubPublisher{}, &stubSyncer{}, pr)

	total, _, err := jb.CleanupTask()(context.Background())
	if err != nil {
		t.Fatalf("task error = %v", err)
	}
	if total != 22 {
		t.Errorf("pruned total = %d, want 22", total)
	}
	wantCutoff := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC).Add(-14 * 24 * time.Hour)
	if len(pr.cutoffs) != 1 || !pr.cutoffs[0].Equal(wantCutoff) {
		t.Errorf("event cutoff = %v, want %v", pr.cutoffs, wantCutoff)
	}
}

func TestCleanupTask_Error(t *testing.T) {
	pr := &stubPruner{err: errors.New("deadlock")}
	jb := newTestJobs(&stubIngest{}, &stubEvaluator{}, &stubPublisher{}, &stubSyncer{}, pr)
	if _, _, err := jb.CleanupTask()(context.Background()); err == nil {
		t.Fatal("expected prune failure to fail the run")
	}
}

func TestRegisterAll(t *testing.T) {
	reg, _ := newTestRegistry()
	jb := newTestJobs(&stubIngest{}, &stubEvaluator{}, &stubPublisher{}, &stubSyncer{}, &stubPruner{})
	sched := config.ScheduleConfig{
		Weather:        "*/5 * * * *",
		AirQuality:     "*/10 * * * *",
		BikeShare:      "*/5 * * * *",
		Culture:        "0 5 * * *",
		CoolingShelter: "*/30 * * * *",
		Facilities:     "0 4 * * *",
		IndexSync:      "*/10 * * * *",
		Cleanup:        "0 3 * * *",
	}
	if err := RegisterAll(reg, sched, jb); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	infos := reg.Jobs()
	if len(infos) != 8 {
		t.Fatalf("registered %d jobs, want 8", len(infos))
	}
	keys := map[string]bool{}
	for _, info := range infos {
		keys[info.Key] = true
	}
	for _, key := range []string{JobIngestWeather, JobIngestAirQuality, JobIngestBikeShare,
		JobIngestCulture, JobIngestCoolingShelter, JobIngestFacilities, JobIndexSync, JobCleanup} {
		if !keys[key] {
			t.Errorf("job %q not registered", key)
		}
	}
}
