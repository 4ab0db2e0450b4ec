package types

// Domain identifies one public-data category ingested by the platform.
// Every snapshot, index document, and trigger evaluation is keyed by Domain.
type Domain string

const (
	DomainWeather        Domain = "weather"
	DomainAirQuality     Domain = "air_quality"
	DomainBikeShare      Domain = "bike_share"
	DomainCulture        Domain = "cultural_event"
	DomainCoolingShelter Domain = "cooling_shelter"
	DomainPark           Domain = "park"
	DomainLibrary        Domain = "library"
	DomainSportsFacility Domain = "sports_facility"
)

// AllDomains returns every domain in a stable order. Consumers that iterate
// domains (index sync, cleanup) must use this rather than hardcoding lists.
func AllDomains() []Domain {
	return []Domain{
		DomainWeather,
		DomainAirQuality,
		DomainBikeShare,
		DomainCulture,
		DomainCoolingShelter,
		DomainPark,
		DomainLibrary,
		DomainSportsFacility,
	}
}

// IsValid reports whether d is a recognized domain tag.
func (d Domain) IsValid() bool {
	for _, known := range AllDomains() {
		if d == known {
			return true
		}
	}
	return false
}

// SnapshotStatus describes the health of a persisted domain snapshot.
type SnapshotStatus string

const (
	// SnapshotOK means the snapshot was fully fetched and committed this cycle.
	SnapshotOK SnapshotStatus = "ok"
	// SnapshotPartial means some upstream pages failed but a usable subset
	// was committed.
	SnapshotPartial SnapshotStatus = "partial"
	// SnapshotFailed means the fetch failed and no snapshot has ever been
	// committed for this domain.
	SnapshotFailed SnapshotStatus = "failed"
	// SnapshotStale means this cycle's fetch failed but a previously
	// committed snapshot remains queryable.
	SnapshotStale SnapshotStatus = "stale"
)

// Evaluable reports whether a snapshot with this status may be used as input
// to trigger evaluation. Stale or failed data must never produce intents.
func (s SnapshotStatus) Evaluable() bool {
	return s == SnapshotOK || s == SnapshotPartial
}

// PersistStrategy selects how a domain's records are committed.
type PersistStrategy string

const (
	// PersistReload truncates the domain's records and reloads the full set
	// in one transaction. Used for small, fully-refreshed datasets.
	PersistReload PersistStrategy = "reload"
	// PersistUpsert merges records by external identifier. Used for domains
	// with partial updates (availability counts).
	PersistUpsert PersistStrategy = "upsert"
)

// Severity is the bucketed outcome of comparing a condition value against a
// domain's threshold table. Ordering matters: higher rank means worse.
type Severity string

const (
	SeverityNormal    Severity = "normal"
	SeverityAdvisory  Severity = "advisory"
	SeverityWarning   Severity = "warning"
	SeverityEmergency Severity = "emergency"
)

// Rank returns the ordinal position of the severity bucket. Unknown values
// rank as normal so a corrupted state row can never force an escalation.
func (s Severity) Rank() int {
	switch s {
	case SeverityAdvisory:
		return 1
	case SeverityWarning:
		return 2
	case SeverityEmergency:
		return 3
	default:
		return 0
	}
}

// WorseThan reports whether s is strictly more severe than other.
func (s Severity) WorseThan(other Severity) bool {
	return s.Rank() > other.Rank()
}

// EventType classifies a notification intent.
type EventType string

const (
	// EventThresholdEscalated is sent when a condition crosses into a worse
	// severity bucket than the last notified one.
	EventThresholdEscalated EventType = "threshold_escalated"
	// EventThresholdCleared is sent on return-to-normal, only for interests
	// that opted into clearance notifications.
	EventThresholdCleared EventType = "threshold_cleared"
)

// JobOutcome is the terminal status of a single job run.
type JobOutcome string

const (
	JobSuccess JobOutcome = "success"
	JobPartial JobOutcome = "partial"
	JobFailure JobOutcome = "failure"
	// JobSkipped records a run request that arrived while a previous run of
	// the same key was still in flight. Skipped runs are never queued.
	JobSkipped JobOutcome = "skipped"
)

// PublishStatus is the terminal state of a publish attempt.
type PublishStatus string

const (
	// PublishDelivered means the intent reached the queue.
	PublishDelivered PublishStatus = "delivered"
	// PublishDuplicate means the dedupe key was already published for the
	// current episode; the call is a no-op success.
	PublishDuplicate PublishStatus = "duplicate"
	// PublishDeadLettered means retries were exhausted and the intent was
	// persisted to the dead-letter log instead of dropped.
	PublishDeadLettered PublishStatus = "dead_lettered"
)
