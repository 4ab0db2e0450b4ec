package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"citypulse/internal/types"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type memRecorder struct {
	mu      sync.Mutex
	started []types.JobRun
	runs    []types.JobRun
	skipped []string
}

func (r *memRecorder) Start(_ context.Context, run *types.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = int64(len(r.started) + 1)
	r.started = append(r.started, *run)
	return nil
}

func (r *memRecorder) Finish(_ context.Context, run *types.JobRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *memRecorder) RecordSkipped(_ context.Context, jobKey string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, jobKey)
	return nil
}

func newTestRegistry() (*Registry, *memRecorder) {
	recorder := &memRecorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRegistry(recorder, logger, &fakeClock{now: time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)}), recorder
}

func noopTask(itemCount int, srcErrs []types.SourceError, err error) Task {
	return func(context.Context) (int, []types.SourceError, error) {
		return itemCount, srcErrs, err
	}
}

func TestRegister_DuplicateKey(t *testing.T) {
	reg, _ := newTestRegistry()
	if err := reg.Register("ingest_weather", "*/5 * * * *", noopTask(0, nil, nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := reg.Register("ingest_weather", "*/10 * * * *", noopTask(0, nil, nil))
	if err == nil {
		t.Fatal("expected duplicate key to fail")
	}
	if code := types.CodeOf(err); code != types.ErrCodeConfigInvalid {
		t.Errorf("error code = %q, want %q", code, types.ErrCodeConfigInvalid)
	}
}

func TestRegister_InvalidSchedule(t *testing.T) {
	reg, _ := newTestRegistry()
	err := reg.Register("ingest_weather", "every five minutes", noopTask(0, nil, nil))
	if err == nil {
		t.Fatal("expected invalid schedule to fail")
	}
	if code := types.CodeOf(err); code != types.ErrCodeConfigInvalid {
		t.Errorf("error code = %q, want %q", code, types.ErrCodeConfigInvalid)
	}
}

func TestRunNow_RecordsOutcomes(t *testing.T) {
	tests := []struct {
		name string
		task Task
		want types.JobOutcome
	}{
		{"success", noopTask(12, nil, nil), types.JobSuccess},
		{"partial", noopTask(5, []types.SourceError{{Domain: types.DomainWeather, Code: types.ErrCodeFetchTimeout}}, nil), types.JobPartial},
		{"failure", noopTask(0, nil, errors.New("boom")), types.JobFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, recorder := newTestRegistry()
			if err := reg.Register("job_under_test", "0 * * * *", tt.task); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			outcome, err := reg.RunNow("job_under_test")
			if err != nil {
				t.Fatalf("RunNow() error = %v", err)
			}
			if outcome != tt.want {
				t.Errorf("outcome = %q, want %q", outcome, tt.want)
			}
			if len(recorder.started) != 1 || len(recorder.runs) != 1 {
				t.Fatalf("recorded %d starts / %d finishes, want 1/1", len(recorder.started), len(recorder.runs))
			}
			run := recorder.runs[0]
			if run.Outcome != tt.want || run.FinishedAt == nil {
				t.Errorf("recorded run = %+v", run)
			}
		})
	}
}

type registryCtxKey struct{}

// Manual runs have to survive their requester: the job body executes on the
// registry's base context, and a caller abandoning the trigger (say, an HTTP
// timeout) must neither abort the job nor flip its recorded outcome.
func TestRunNow_RunsOnRegistryContext(t *testing.T) {
	reg, recorder := newTestRegistry()
	base := context.WithValue(context.Background(), registryCtxKey{}, "scheduler")
	reg.Start(base)
	defer reg.Stop(context.Background())

	var taskCtx context.Context
	if err := reg.Register("long_ingest", "0 * * * *", func(ctx context.Context) (int, []types.SourceError, error) {
		taskCtx = ctx
		return 7, nil, nil
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome, err := reg.RunNow("long_ingest")
	if err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if outcome != types.JobSuccess {
		t.Errorf("outcome = %q, want success", outcome)
	}
	if taskCtx == nil || taskCtx.Value(registryCtxKey{}) != "scheduler" {
		t.Error("manual runs must execute on the registry's base context")
	}
	if taskCtx.Err() != nil {
		t.Errorf("task context already done: %v", taskCtx.Err())
	}
	if len(recorder.runs) != 1 || recorder.runs[0].Outcome != types.JobSuccess {
		t.Errorf("recorded runs = %+v, want one success", recorder.runs)
	}
}

func TestRunNow_UnknownJob(t *testing.T) {
	reg, _ := newTestRegistry()
	if _, err := reg.RunNow("no_such_job"); err == nil {
		t.Fatal("expected error for unknown job key")
	}
}

func TestRunNow_PanicBecomesFailure(t *testing.T) {
	reg, recorder := newTestRegistry()
	panicking := func(context.Context) (int, []types.SourceError, error) {
		panic("nil map write")
	}
	if err := reg.Register("panicky", "0 * * * *", panicking); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	outcome, err := reg.RunNow("panicky")
	if err != nil {
		t.Fatalf("RunNow() error = %v, a panicking job must not crash the registry", err)
	}
	if outcome != types.JobFailure {
		t.Errorf("outcome = %q, want failure", outcome)
	}
	if run := recorder.runs[0]; run.Error == "" {
		t.Error("the panic message should be recorded on the run")
	}
}

func TestSingleFlight_ConcurrentRunSkipped(t *testing.T) {
	reg, recorder := newTestRegistry()
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := func(context.Context) (int, []types.SourceError, error) {
		close(entered)
		<-release
		return 1, nil, nil
	}
	if err := reg.Register("slow_job", "0 * * * *", blocking); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	firstDone := make(chan types.JobOutcome, 1)
	go func() {
		outcome, _ := reg.RunNow("slow_job")
		firstDone <- outcome
	}()
	<-entered

	// Second trigger while the first run holds the lock.
	outcome, err := reg.RunNow("slow_job")
	if err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if outcome != types.JobSkipped {
		t.Errorf("concurrent outcome = %q, want skipped", outcome)
	}

	close(release)
	if first := <-firstDone; first != types.JobSuccess {
		t.Errorf("first run outcome = %q, want success", first)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.skipped) != 1 || recorder.skipped[0] != "slow_job" {
		t.Errorf("skipped = %v, want [slow_job]", recorder.skipped)
	}
	// The skip never became a run row.
	if len(recorder.runs) != 1 {
		t.Errorf("recorded %d finished runs, want 1", len(recorder.runs))
	}
}

func TestJobs_View(t *testing.T) {
	reg, _ := newTestRegistry()
	if err := reg.Register("b_job", "0 * * * *", noopTask(0, nil, nil)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("a_job", "*/5 * * * *", noopTask(0, nil, nil)); err != nil {
		t.Fatal(err)
	}

	infos := reg.Jobs()
	if len(infos) != 2 {
		t.Fatalf("got %d jobs, want 2", len(infos))
	}
	if infos[0].Key != "a_job" || infos[1].Key != "b_job" {
		t.Errorf("jobs not sorted by key: %+v", infos)
	}
	if infos[0].Schedule != "*/5 * * * *" {
		t.Errorf("schedule = %q", infos[0].Schedule)
	}
	if infos[0].Running || infos[1].Running {
		t.Error("idle jobs reported running")
	}
}

func TestJobs_ReportsInFlightRun(t *testing.T) {
	reg, _ := newTestRegistry()
	entered := make(chan struct{})
	release := make(chan struct{})
	if err := reg.Register("slow_job", "0 * * * *", func(context.Context) (int, []types.SourceError, error) {
		close(entered)
		<-release
		return 0, nil, nil
	}); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		reg.RunNow("slow_job")
		close(done)
	}()
	<-entered

	infos := reg.Jobs()
	if len(infos) != 1 || !infos[0].Running {
		t.Errorf("jobs = %+v, want slow_job running", infos)
	}

	close(release)
	<-done
}
