package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"citypulse/internal/geo"
	"citypulse/internal/types"
)

// SnapshotReader loads committed snapshots. Satisfied by db.SnapshotRepository.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, domain types.Domain) (*types.DataSnapshot, error)
}

// InterestSource lists subscriptions per domain. Satisfied by
// db.InterestRepository.
type InterestSource interface {
	ListByCategory(ctx context.Context, category types.Domain) ([]types.UserInterest, error)
}

// StateStore reads and writes the hysteresis memory. Satisfied by
// db.TriggerStateRepository.
type StateStore interface {
	ListByInterest(ctx context.Context, interestID string) ([]types.TriggerState, error)
	Upsert(ctx context.Context, st *types.TriggerState) error
}

// Engine evaluates one domain's snapshot against every interest subscribed
// to it. Interests are evaluated sequentially, so each (interest, domain key)
// state row has a single writer and plain read-modify-write is safe.
type Engine struct {
	snapshots SnapshotReader
	interests InterestSource
	states    StateStore

	defaultRadiusKM float64
	logger          *slog.Logger
	clock           types.Clock
}

// New creates an evaluation engine.
func New(snapshots SnapshotReader, interests InterestSource, states StateStore, defaultRadiusKM float64, logger *slog.Logger, clock types.Clock) *Engine {
	return &Engine{
		snapshots:       snapshots,
		interests:       interests,
		states:          states,
		defaultRadiusKM: defaultRadiusKM,
		logger:          logger,
		clock:           clock,
	}
}

// EvaluateDomain runs one evaluation cycle for a domain and returns the
// notification intents it produced. Domains without a monitored condition
// and snapshots that are stale, failed, or absent produce nothing; the
// stored trigger states are left untouched so a later good cycle resumes
// from real history instead of a spurious reset.
func (e *Engine) EvaluateDomain(ctx context.Context, domain types.Domain) ([]types.NotificationIntent, error) {
	cond, ok := ConditionFor(domain)
	if !ok {
		return nil, nil
	}

	snap, err := e.snapshots.GetSnapshot(ctx, domain)
	if err != nil {
		return nil, err
	}
	if snap == nil || !snap.Status.Evaluable() {
		e.logger.Info("skipping evaluation, no evaluable snapshot",
			slog.String("domain", string(domain)))
		return nil, nil
	}

	interests, err := e.interests.ListByCategory(ctx, domain)
	if err != nil {
		return nil, err
	}

	var intents []types.NotificationIntent
	for i := range interests {
		intent, err := e.evaluateInterest(ctx, cond, snap, &interests[i])
		if err != nil {
			// One interest failing must not starve the rest of the cycle.
			e.logger.Error("interest evaluation failed",
				slog.String("domain", string(domain)),
				slog.String("interest_id", interests[i].ID),
				slog.String("error", err.Error()))
			continue
		}
		if intent != nil {
			intents = append(intents, *intent)
		}
	}
	return intents, nil
}

// evaluateInterest evaluates one subscription against the snapshot and
// applies the hysteresis transition rules.
func (e *Engine) evaluateInterest(ctx context.Context, cond Condition, snap *types.DataSnapshot, interest *types.UserInterest) (*types.NotificationIntent, error) {
	worst, value, ok := e.worstRecord(cond, snap, interest)
	if !ok {
		// Nothing in scope this cycle; leave the state untouched.
		return nil, nil
	}

	newBucket := cond.Bucket(value)
	domainKey := worst.ExternalID

	// The worst record can flip between two stations inside the same
	// severity bucket, which changes the domain key mid-episode. Hysteresis
	// therefore folds every state row the interest owns: what matters is
	// the worst bucket the user was told about anywhere, not just under
	// the current key.
	siblings, err := e.states.ListByInterest(ctx, interest.ID)
	if err != nil {
		return nil, err
	}
	var state *types.TriggerState
	notified := types.SeverityNormal
	for i := range siblings {
		if siblings[i].DomainKey == domainKey {
			state = &siblings[i]
		}
		if siblings[i].LastNotifiedBucket.WorseThan(notified) {
			notified = siblings[i].LastNotifiedBucket
		}
	}
	if state == nil {
		state = &types.TriggerState{
			UserID:             interest.UserID,
			InterestID:         interest.ID,
			DomainKey:          domainKey,
			LastBucket:         types.SeverityNormal,
			LastNotifiedBucket: types.SeverityNormal,
		}
	}

	now := e.clock.Now()
	var intent *types.NotificationIntent

	switch {
	case newBucket.WorseThan(notified):
		// Escalation into a worse bucket than the last one we told the user
		// about. Re-entering the same bucket stays silent, wherever the
		// worst record moved in the meantime.
		intent = e.buildIntent(cond, snap.Domain, interest, worst, value, newBucket,
			types.EventThresholdEscalated, state.EpisodeSeq, now)
		state.LastNotifiedBucket = newBucket
		state.LastNotifiedAt = &now

	case newBucket == types.SeverityNormal && notified != types.SeverityNormal:
		// Return to normal closes the episode on every row the interest
		// owns; a row left elevated under an old key would suppress the
		// next legitimate escalation. The episode counters move forward so
		// a later re-escalation dedupes as a fresh episode. Most interests
		// re-arm silently; clearance messages are opt-in.
		for i := range siblings {
			sib := &siblings[i]
			if sib.DomainKey == domainKey || sib.LastNotifiedBucket == types.SeverityNormal {
				continue
			}
			sib.EpisodeSeq++
			sib.LastNotifiedBucket = types.SeverityNormal
			sib.UpdatedAt = now
			if err := e.states.Upsert(ctx, sib); err != nil {
				return nil, err
			}
		}
		state.EpisodeSeq++
		if interest.NotifyOnClear {
			intent = e.buildIntent(cond, snap.Domain, interest, worst, value, newBucket,
				types.EventThresholdCleared, state.EpisodeSeq, now)
			state.LastNotifiedAt = &now
		}
		state.LastNotifiedBucket = types.SeverityNormal
	}

	state.LastValue = value
	state.LastBucket = newBucket
	state.UpdatedAt = now

	if err := e.states.Upsert(ctx, state); err != nil {
		return nil, err
	}
	return intent, nil
}

// worstRecord filters the snapshot to the interest's scope and picks the
// record with the worst condition value. Records without the condition
// metric are skipped; records without coordinates only match interests that
// set no location.
func (e *Engine) worstRecord(cond Condition, snap *types.DataSnapshot, interest *types.UserInterest) (*types.NormalizedRecord, float64, bool) {
	radius := interest.RadiusKM
	if radius <= 0 {
		radius = e.defaultRadiusKM
	}

	var (
		worst     *types.NormalizedRecord
		worstVal  float64
		worstRank int
	)
	for i := range snap.Records {
		rec := &snap.Records[i]
		value, ok := rec.Metrics[cond.Metric]
		if !ok {
			continue
		}
		if interest.Location != nil {
			if rec.Coordinate == nil {
				continue
			}
			if geo.DistanceKM(*interest.Location, *rec.Coordinate) > radius {
				continue
			}
		}

		rank := cond.Bucket(value).Rank()
		switch {
		case worst == nil,
			rank > worstRank,
			rank == worstRank && cond.Worse(value, worstVal),
			rank == worstRank && value == worstVal && rec.ExternalID < worst.ExternalID:
			worst = rec
			worstVal = value
			worstRank = rank
		}
	}
	if worst == nil {
		return nil, 0, false
	}
	return worst, worstVal, true
}

// buildIntent assembles the notification intent for one transition.
func (e *Engine) buildIntent(cond Condition, domain types.Domain, interest *types.UserInterest, rec *types.NormalizedRecord, value float64, bucket types.Severity, eventType types.EventType, episode int64, now time.Time) *types.NotificationIntent {
	place := rec.Name
	if place == "" {
		place = rec.DistrictName
	}

	unit := cond.Unit
	if unit != "" {
		unit = " " + unit
	}
	condition := fmt.Sprintf("%s = %s%s (%s)", cond.Metric, formatValue(value), unit, bucket)

	var title, message string
	if eventType == types.EventThresholdCleared {
		title = fmt.Sprintf("%s back to normal", capitalize(cond.Label))
		message = fmt.Sprintf("%s near %s has returned to normal (%s%s).",
			capitalize(cond.Label), place, formatValue(value), unit)
	} else {
		title = fmt.Sprintf("%s %s", capitalize(string(bucket)), cond.Label)
		message = fmt.Sprintf("%s at %s is %s%s.",
			capitalize(cond.Label), place, formatValue(value), unit)
	}

	return &types.NotificationIntent{
		UserID:           interest.UserID,
		InterestID:       interest.ID,
		Type:             eventType,
		Domain:           domain,
		DomainKey:        rec.ExternalID,
		Bucket:           bucket,
		Title:            title,
		Message:          message,
		TriggerCondition: condition,
		Location: &types.LocationInfo{
			Coordinate:   rec.Coordinate,
			DistrictName: rec.DistrictName,
			RecordName:   rec.Name,
		},
		DedupeKey:  types.DedupeKey(interest.UserID, domain, rec.ExternalID, bucket, episode),
		EpisodeSeq: episode,
		CreatedAt:  now,
	}
}

// formatValue trims trailing zeros so messages read "33" and "0.04" rather
// than "33.000000".
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
