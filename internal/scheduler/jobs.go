package scheduler

import (
	"context"
	"log/slog"
	"time"

	"citypulse/internal/config"
	"citypulse/internal/types"
)

// Job keys. Operators reference these in schedule overrides and the run-now
// endpoint.
const (
	JobIngestWeather        = "ingest_weather"
	JobIngestAirQuality     = "ingest_air_quality"
	JobIngestBikeShare      = "ingest_bike_share"
	JobIngestCulture        = "ingest_culture"
	JobIngestCoolingShelter = "ingest_cooling_shelter"
	JobIngestFacilities     = "ingest_facilities"
	JobIndexSync            = "index_sync"
	JobCleanup              = "notification_cleanup"
)

// IngestRunner runs ingestion cycles. Satisfied by ingest.Pipeline.
type IngestRunner interface {
	Run(ctx context.Context, domains []types.Domain) ([]types.IngestResult, []types.SourceError)
}

// Evaluator produces notification intents from a committed snapshot.
// Satisfied by eval.Engine.
type Evaluator interface {
	EvaluateDomain(ctx context.Context, domain types.Domain) ([]types.NotificationIntent, error)
}

// IntentPublisher delivers intents. Satisfied by notify.Publisher.
type IntentPublisher interface {
	PublishAll(ctx context.Context, intents []types.NotificationIntent) []types.EventResult
}

// IndexSyncer rebuilds the search projection. Satisfied by search.Indexer.
type IndexSyncer interface {
	SyncDomain(ctx context.Context, domain types.Domain) (int, error)
	SyncAll(ctx context.Context) (int, error)
}

// Pruner is the retention capability the cleanup job needs, spread across
// the repositories that own each table.
type Pruner interface {
	PruneEvents(ctx context.Context, cutoff time.Time) (int64, error)
	PruneDeadLetters(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunPruner prunes job history. Satisfied by db.JobRunRepository.
type RunPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PayloadPruner prunes retained raw payloads. Satisfied by db.SnapshotStore.
type PayloadPruner interface {
	PruneRawPayloads(ctx context.Context, cutoff time.Time) (int64, error)
}

// Jobs wires the pipeline stages into schedulable task bodies.
type Jobs struct {
	ingest    IngestRunner
	evaluator Evaluator
	publisher IntentPublisher
	indexer   IndexSyncer

	events   Pruner
	runs     RunPruner
	payloads PayloadPruner
	retain   config.RetentionConfig

	logger *slog.Logger
	clock  types.Clock
}

// NewJobs assembles the job bodies.
func NewJobs(ingest IngestRunner, evaluator Evaluator, publisher IntentPublisher, indexer IndexSyncer, events Pruner, runs RunPruner, payloads PayloadPruner, retain config.RetentionConfig, logger *slog.Logger, clock types.Clock) *Jobs {
	return &Jobs{
		ingest:    ingest,
		evaluator: evaluator,
		publisher: publisher,
		indexer:   indexer,
		events:    events,
		runs:      runs,
		payloads:  payloads,
		retain:    retain,
		logger:    logger,
		clock:     clock,
	}
}

// IngestTask builds the task for one ingestion job: ingest the domains, then
// evaluate each freshly committed snapshot, publish whatever intents the
// evaluation produced, and refresh the domain's search documents. Evaluation
// runs strictly after the commit, so within one run the engine never reads a
// snapshot older than the fetch it follows.
func (jb *Jobs) IngestTask(domains ...types.Domain) Task {
	return func(ctx context.Context) (int, []types.SourceError, error) {
		results, srcErrs := jb.ingest.Run(ctx, domains)

		var items int
		for _, res := range results {
			items += res.RecordCount
			if !res.Status.Evaluable() {
				continue
			}
			intents, err := jb.evaluator.EvaluateDomain(ctx, res.Domain)
			if err != nil {
				srcErrs = append(srcErrs, types.SourceError{
					Domain:  res.Domain,
					Code:    types.CodeOf(err),
					Message: err.Error(),
				})
			} else if len(intents) > 0 {
				jb.publisher.PublishAll(ctx, intents)
			}

			// Index freshness degrades gracefully; the periodic full sync
			// catches anything missed here.
			if _, err := jb.indexer.SyncDomain(ctx, res.Domain); err != nil {
				jb.logger.Warn("post-ingest index sync failed",
					slog.String("domain", string(res.Domain)),
					slog.String("error", err.Error()))
			}
		}
		return items, srcErrs, nil
	}
}

// IndexSyncTask builds the periodic search projection rebuild.
func (jb *Jobs) IndexSyncTask() Task {
	return func(ctx context.Context) (int, []types.SourceError, error) {
		n, err := jb.indexer.SyncAll(ctx)
		return n, nil, err
	}
}

// CleanupTask builds the retention job: prune delivered events, dead
// letters, job history, and raw payloads past their retention windows.
func (jb *Jobs) CleanupTask() Task {
	return func(ctx context.Context) (int, []types.SourceError, error) {
		now := jb.clock.Now()
		var total int64

		n, err := jb.events.PruneEvents(ctx, now.Add(-jb.retain.DeadLetters))
		if err != nil {
			return int(total), nil, err
		}
		total += n

		n, err = jb.events.PruneDeadLetters(ctx, now.Add(-jb.retain.DeadLetters))
		if err != nil {
			return int(total), nil, err
		}
		total += n

		n, err = jb.runs.PruneBefore(ctx, now.Add(-jb.retain.JobHistory))
		if err != nil {
			return int(total), nil, err
		}
		total += n

		n, err = jb.payloads.PruneRawPayloads(ctx, now.Add(-jb.retain.RawPayloads))
		if err != nil {
			return int(total), nil, err
		}
		total += n

		jb.logger.Info("cleanup pruned rows", slog.Int64("rows", total))
		return int(total), nil, nil
	}
}

// RegisterAll registers the full job set against the configured schedules.
func RegisterAll(reg *Registry, sched config.ScheduleConfig, jb *Jobs) error {
	type entry struct {
		key      string
		schedule string
		task     Task
	}
	entries := []entry{
		{JobIngestWeather, sched.Weather, jb.IngestTask(types.DomainWeather)},
		{JobIngestAirQuality, sched.AirQuality, jb.IngestTask(types.DomainAirQuality)},
		{JobIngestBikeShare, sched.BikeShare, jb.IngestTask(types.DomainBikeShare)},
		{JobIngestCulture, sched.Culture, jb.IngestTask(types.DomainCulture)},
		{JobIngestCoolingShelter, sched.CoolingShelter, jb.IngestTask(types.DomainCoolingShelter)},
		{JobIngestFacilities, sched.Facilities, jb.IngestTask(
			types.DomainPark, types.DomainLibrary, types.DomainSportsFacility)},
		{JobIndexSync, sched.IndexSync, jb.IndexSyncTask()},
		{JobCleanup, sched.Cleanup, jb.CleanupTask()},
	}
	for _, e := range entries {
		if err := reg.Register(e.key, e.schedule, e.task); err != nil {
			return err
		}
	}
	return nil
}
