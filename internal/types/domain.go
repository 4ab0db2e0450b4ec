package types

import (
	"fmt"
	"time"
)

// Coordinate is a validated latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lon float64 `json:"lon" validate:"required,longitude"`
}

// Validate checks the coordinate ranges. Adapters call this during
// normalization; records with out-of-range coordinates are dropped rather
// than persisted.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %.6f out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %.6f out of range [-180, 180]", c.Lon)
	}
	return nil
}

// AdministrativeDistrict is the resolved region for a coordinate.
// Reference data, loaded once at startup and looked up read-only.
type AdministrativeDistrict struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// UnresolvedDistrict is the marker stored when the geocoding resolver cannot
// place a coordinate. Ingestion degrades to this value instead of aborting.
const UnresolvedDistrict = "unresolved"

// TimeWindow is a start/end time pair for records that are only relevant
// within a period (event runs, reservation windows, shelter opening hours).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window (inclusive start,
// exclusive end). A zero End means open-ended.
func (w TimeWindow) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || t.Before(w.End)
}

// NormalizedRecord is the common shape every source adapter produces.
// Domain-specific numeric readings live in Metrics (e.g. "temp_c", "pm10",
// "docks_total"); free-form descriptive fields live in Attrs. ExternalID is
// the upstream's stable identifier and is the idempotent upsert key.
type NormalizedRecord struct {
	Domain     Domain      `json:"domain"`
	ExternalID string      `json:"external_id"`
	Name       string      `json:"name"`
	Coordinate *Coordinate `json:"coordinate,omitempty"`

	// Enrichment, filled by the geocoding resolver during normalization.
	DistrictCode string `json:"district_code,omitempty"`
	DistrictName string `json:"district_name,omitempty"`

	Category  string             `json:"category,omitempty"`
	Capacity  int                `json:"capacity,omitempty"`
	Available int                `json:"available,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Attrs     map[string]string  `json:"attrs,omitempty"`
	Window    *TimeWindow        `json:"window,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// DataSnapshot is the full set of normalized records for one domain as of one
// ingestion cycle. All records share FetchedAt. A previous snapshot stays
// visible to readers until a replacement is fully committed.
type DataSnapshot struct {
	Domain    Domain             `json:"domain"`
	FetchedAt time.Time          `json:"fetched_at"`
	Status    SnapshotStatus     `json:"status"`
	Records   []NormalizedRecord `json:"records"`
}

// UserInterest is a user's subscription to a domain, optionally scoped to a
// location radius. Category values are the Domain tags.
type UserInterest struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	Category Domain      `json:"category" db:"category"`
	Location *Coordinate `json:"location,omitempty" db:"-"`
	RadiusKM float64     `json:"radius_km,omitempty" db:"radius_km" validate:"omitempty,gt=0,lte=50"`

	// NotifyOnClear opts into a clearance notification when the condition
	// returns to normal after an escalation. Default is escalations only.
	NotifyOnClear bool `json:"notify_on_clear" db:"notify_on_clear"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TriggerState is the per (user, interest, domain-key) evaluation memory that
// makes hysteresis possible. Created on first evaluation, updated every
// evaluated cycle, deleted only with its interest.
//
// EpisodeSeq increments on return-to-normal; it scopes dedupe keys to one
// condition-crossing episode so a later re-escalation into the same bucket is
// a fresh episode, not a duplicate.
type TriggerState struct {
	UserID     string `db:"user_id"`
	InterestID string `db:"interest_id"`
	DomainKey  string `db:"domain_key"`

	LastValue          float64  `db:"last_value"`
	LastBucket         Severity `db:"last_bucket"`
	LastNotifiedBucket Severity `db:"last_notified_bucket"`

	LastNotifiedAt *time.Time `db:"last_notified_at"`
	EpisodeSeq     int64      `db:"episode_seq"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// LocationInfo is the human-readable location context carried on a
// notification intent.
type LocationInfo struct {
	Coordinate   *Coordinate `json:"coordinate,omitempty"`
	DistrictName string      `json:"district_name,omitempty"`
	RecordName   string      `json:"record_name,omitempty"`
}

// NotificationIntent is the evaluation engine's output: one notification the
// publisher should deliver at least once. DedupeKey collapses duplicate
// attempts for the same condition-crossing episode.
type NotificationIntent struct {
	UserID     string    `json:"user_id"`
	InterestID string    `json:"interest_id"`
	Type       EventType `json:"type"`

	Domain    Domain   `json:"domain"`
	DomainKey string   `json:"domain_key"`
	Bucket    Severity `json:"bucket"`

	Title            string        `json:"title"`
	Message          string        `json:"message"`
	TriggerCondition string        `json:"trigger_condition"`
	Location         *LocationInfo `json:"location,omitempty"`

	DedupeKey  string    `json:"dedupe_key"`
	EpisodeSeq int64     `json:"episode_seq"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventResult reports the outcome of publishing one intent.
type EventResult struct {
	Status    PublishStatus `json:"status"`
	MessageID string        `json:"message_id,omitempty"`
	Attempts  int           `json:"attempts"`
}

// SourceError is one domain's failure within a job run, kept on the JobRun
// for operational inspection.
type SourceError struct {
	Domain  Domain    `json:"domain"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// JobRun tracks one execution of a scheduled job. Ephemeral observability
// data; pruned by the cleanup job.
type JobRun struct {
	ID         int64         `json:"id" db:"id"`
	JobKey     string        `json:"job_key" db:"job_key"`
	StartedAt  time.Time     `json:"started_at" db:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty" db:"finished_at"`
	Outcome    JobOutcome    `json:"outcome" db:"outcome"`
	ItemCount  int           `json:"item_count" db:"item_count"`
	SourceErrs []SourceError `json:"source_errors,omitempty" db:"source_errors"`
	Error      string        `json:"error,omitempty" db:"error"`
}

// IngestResult summarizes one domain's ingestion within a cycle.
type IngestResult struct {
	Domain      Domain         `json:"domain"`
	RecordCount int            `json:"record_count"`
	Status      SnapshotStatus `json:"status"`
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using system time, always UTC.
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }
