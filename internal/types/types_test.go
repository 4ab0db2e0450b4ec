package types

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSeverity_Rank(t *testing.T) {
	tests := []struct {
		s    Severity
		want int
	}{
		{SeverityNormal, 0},
		{SeverityAdvisory, 1},
		{SeverityWarning, 2},
		{SeverityEmergency, 3},
		{Severity("garbage"), 0},
	}
	for _, tt := range tests {
		if got := tt.s.Rank(); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.s, got, tt.want)
		}
	}
}

func TestSeverity_WorseThan(t *testing.T) {
	if !SeverityEmergency.WorseThan(SeverityWarning) {
		t.Error("emergency should be worse than warning")
	}
	if SeverityWarning.WorseThan(SeverityWarning) {
		t.Error("a bucket is not worse than itself")
	}
	if SeverityNormal.WorseThan(SeverityAdvisory) {
		t.Error("normal should not be worse than advisory")
	}
}

func TestSnapshotStatus_Evaluable(t *testing.T) {
	tests := []struct {
		status SnapshotStatus
		want   bool
	}{
		{SnapshotOK, true},
		{SnapshotPartial, true},
		{SnapshotStale, false},
		{SnapshotFailed, false},
	}
	for _, tt := range tests {
		if got := tt.status.Evaluable(); got != tt.want {
			t.Errorf("Evaluable(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCoordinate_Validate(t *testing.T) {
	if err := (Coordinate{Lat: 37.5, Lon: 127.0}).Validate(); err != nil {
		t.Errorf("valid coordinate rejected: %v", err)
	}
	if err := (Coordinate{Lat: 91, Lon: 0}).Validate(); err == nil {
		t.Error("latitude out of range accepted")
	}
	if err := (Coordinate{Lat: 0, Lon: -181}).Validate(); err == nil {
		t.Error("longitude out of range accepted")
	}
}

func TestTimeWindow_Contains(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	w := TimeWindow{Start: start, End: end}
	if !w.Contains(start) {
		t.Error("window start should be inclusive")
	}
	if w.Contains(end) {
		t.Error("window end should be exclusive")
	}
	if w.Contains(start.Add(-time.Hour)) {
		t.Error("time before start should not be contained")
	}

	open := TimeWindow{Start: start}
	if !open.Contains(end.Add(24 * 365 * time.Hour)) {
		t.Error("open-ended window should contain any later time")
	}
}

func TestDedupeKey(t *testing.T) {
	k1 := DedupeKey("usr_1", DomainCoolingShelter, "shelter-42", SeverityWarning, 0)
	k2 := DedupeKey("usr_1", DomainCoolingShelter, "shelter-42", SeverityWarning, 0)
	if k1 != k2 {
		t.Error("dedupe key must be deterministic")
	}
	if !strings.HasPrefix(k1, "ntf_") {
		t.Errorf("dedupe key %q missing prefix", k1)
	}
	if len(k1) != len("ntf_")+32 {
		t.Errorf("dedupe key %q has unexpected length", k1)
	}

	// Any input changing must change the key.
	variants := []string{
		DedupeKey("usr_2", DomainCoolingShelter, "shelter-42", SeverityWarning, 0),
		DedupeKey("usr_1", DomainAirQuality, "shelter-42", SeverityWarning, 0),
		DedupeKey("usr_1", DomainCoolingShelter, "shelter-43", SeverityWarning, 0),
		DedupeKey("usr_1", DomainCoolingShelter, "shelter-42", SeverityEmergency, 0),
		DedupeKey("usr_1", DomainCoolingShelter, "shelter-42", SeverityWarning, 1),
	}
	seen := map[string]bool{k1: true}
	for i, v := range variants {
		if seen[v] {
			t.Errorf("variant %d collided with a previous key", i)
		}
		seen[v] = true
	}
}

func TestAppError(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewAppError(ErrCodeFetchTransient, "upstream request failed", inner)

	if !strings.Contains(err.Error(), "fetch_transient") {
		t.Errorf("Error() = %q, want the code included", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("Unwrap chain should reach the inner error")
	}
	if !err.Retryable() {
		t.Error("fetch_transient should be retryable")
	}
}

func TestCodeOf(t *testing.T) {
	appErr := NewAppError(ErrCodePublish, "send failed", nil)
	wrapped := errors.Join(errors.New("outer"), appErr)

	if got := CodeOf(appErr); got != ErrCodePublish {
		t.Errorf("CodeOf(appErr) = %q, want %q", got, ErrCodePublish)
	}
	if got := CodeOf(wrapped); got != ErrCodePublish {
		t.Errorf("CodeOf(wrapped) = %q, want %q", got, ErrCodePublish)
	}
	if got := CodeOf(errors.New("plain")); got != ErrCodeInternal {
		t.Errorf("CodeOf(plain) = %q, want %q", got, ErrCodeInternal)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestDomain_IsValid(t *testing.T) {
	for _, d := range AllDomains() {
		if !d.IsValid() {
			t.Errorf("domain %q should be valid", d)
		}
	}
	if Domain("traffic").IsValid() {
		t.Error("unknown domain should not be valid")
	}
}
