// Package scheduler owns the job registry: cron-driven execution with a
// single-flight guarantee per job key and a persisted run history.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"citypulse/internal/types"
)

// Task is one job body. It reports how many items it processed and any
// per-source failures; a non-nil error marks the whole run failed.
type Task func(ctx context.Context) (itemCount int, srcErrs []types.SourceError, err error)

// RunRecorder persists job run history. Satisfied by db.JobRunRepository.
type RunRecorder interface {
	Start(ctx context.Context, run *types.JobRun) error
	Finish(ctx context.Context, run *types.JobRun) error
	RecordSkipped(ctx context.Context, jobKey string, at time.Time) error
}

// JobInfo is the operational view of one registered job.
type JobInfo struct {
	Key      string     `json:"key"`
	Schedule string     `json:"schedule"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	Running  bool       `json:"running"`
}

type job struct {
	key      string
	schedule string
	task     Task
	entryID  cron.EntryID

	// mu is the single-flight run lock. TryLock failing means a run is in
	// flight; the new request is skipped, never queued.
	mu sync.Mutex
}

// Registry registers jobs against cron schedules and enforces at most one
// concurrent run per key.
type Registry struct {
	cron   *cron.Cron
	runs   RunRecorder
	logger *slog.Logger
	clock  types.Clock

	// baseCtx is the context cron-triggered runs inherit; set by Start.
	baseCtx context.Context

	mu   sync.Mutex
	jobs map[string]*job
}

// NewRegistry creates an empty Registry.
func NewRegistry(runs RunRecorder, logger *slog.Logger, clock types.Clock) *Registry {
	return &Registry{
		cron:    cron.New(),
		runs:    runs,
		logger:  logger,
		clock:   clock,
		baseCtx: context.Background(),
		jobs:    make(map[string]*job),
	}
}

// Register adds a job under a unique key with a standard 5-field cron
// schedule. Registration fails on duplicate keys and invalid schedules.
func (r *Registry) Register(key, schedule string, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[key]; exists {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("job %q already registered", key), nil)
	}

	j := &job{key: key, schedule: schedule, task: task}
	entryID, err := r.cron.AddFunc(schedule, func() {
		r.execute(r.baseCtx, j)
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeConfigInvalid,
			fmt.Sprintf("job %q has invalid schedule %q", key, schedule), err)
	}
	j.entryID = entryID
	r.jobs[key] = j
	return nil
}

// RunNow triggers a job outside its schedule and waits for the outcome. A
// run already in flight makes this a recorded skip. The job body runs on the
// registry's base context, never the caller's: a manual ingest can outlive
// the HTTP request that asked for it, and the requester going away must not
// abort the run or record it as failed.
func (r *Registry) RunNow(key string) (types.JobOutcome, error) {
	r.mu.Lock()
	j, ok := r.jobs[key]
	r.mu.Unlock()
	if !ok {
		return "", types.NewAppError(types.ErrCodeInternal,
			fmt.Sprintf("unknown job %q", key), nil)
	}
	return r.execute(r.baseCtx, j), nil
}

// Start begins cron dispatch. Scheduled runs inherit ctx: cancelling it
// aborts in-flight job bodies during shutdown.
func (r *Registry) Start(ctx context.Context) {
	r.baseCtx = ctx
	r.cron.Start()
}

// Stop halts cron dispatch and waits for in-flight runs to finish or the
// context to expire.
func (r *Registry) Stop(ctx context.Context) {
	done := r.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Jobs returns the operational view of every registered job, sorted by key.
func (r *Registry) Jobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]JobInfo, 0, len(r.jobs))
	for _, j := range r.jobs {
		info := JobInfo{Key: j.key, Schedule: j.schedule}
		if entry := r.cron.Entry(j.entryID); !entry.Next.IsZero() {
			next := entry.Next
			info.NextRun = &next
		}
		if !j.mu.TryLock() {
			info.Running = true
		} else {
			j.mu.Unlock()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(a, b int) bool { return infos[a].Key < infos[b].Key })
	return infos
}

// execute runs one job body under the single-flight lock, recording the run.
func (r *Registry) execute(ctx context.Context, j *job) types.JobOutcome {
	if !j.mu.TryLock() {
		r.logger.Warn("job still running, skipping",
			slog.String("job_key", j.key))
		if err := r.runs.RecordSkipped(ctx, j.key, r.clock.Now()); err != nil {
			r.logger.Error("failed to record skipped run",
				slog.String("job_key", j.key),
				slog.String("error", err.Error()))
		}
		return types.JobSkipped
	}
	defer j.mu.Unlock()

	run := &types.JobRun{JobKey: j.key, StartedAt: r.clock.Now()}
	if err := r.runs.Start(ctx, run); err != nil {
		r.logger.Error("failed to record job start",
			slog.String("job_key", j.key),
			slog.String("error", err.Error()))
	}

	itemCount, srcErrs, err := r.runTask(ctx, j.task)

	finished := r.clock.Now()
	run.FinishedAt = &finished
	run.ItemCount = itemCount
	run.SourceErrs = srcErrs
	switch {
	case err != nil:
		run.Outcome = types.JobFailure
		run.Error = err.Error()
	case len(srcErrs) > 0:
		run.Outcome = types.JobPartial
	default:
		run.Outcome = types.JobSuccess
	}

	if err := r.runs.Finish(ctx, run); err != nil {
		r.logger.Error("failed to record job finish",
			slog.String("job_key", j.key),
			slog.String("error", err.Error()))
	}

	r.logger.Info("job finished",
		slog.String("job_key", j.key),
		slog.String("outcome", string(run.Outcome)),
		slog.Int("items", itemCount),
		slog.Duration("elapsed", finished.Sub(run.StartedAt)))
	return run.Outcome
}

// runTask invokes the task, converting a panic into a failed run so one bad
// job body cannot take the daemon down.
func (r *Registry) runTask(ctx context.Context, task Task) (itemCount int, srcErrs []types.SourceError, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = types.NewAppError(types.ErrCodeInternal,
				fmt.Sprintf("job panicked: %v", rec), nil)
		}
	}()
	return task(ctx)
}
