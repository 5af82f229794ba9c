package model

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestNormalizeClearsTextForNonTerminalStatuses(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		wantStatus  DetailStatus
		wantCleared bool
	}{
		{name: "ready keeps text", status: "ready", wantStatus: StatusReady},
		{name: "stale keeps text", status: "stale", wantStatus: StatusStale},
		{
			name: "pending drops text", status: "pending",
			wantStatus: StatusPending, wantCleared: true,
		},
		{
			name: "failed drops text", status: "failed",
			wantStatus: StatusFailed, wantCleared: true,
		},
		{
			name: "unknown maps to partial and drops text", status: "???",
			wantStatus: StatusPartial, wantCleared: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ClusterSummary{
				ID:           "c1",
				SummaryLong:  "長文の要約です。",
				DiffPoints:   []string{"点1"},
				CreatedAt:    testNow,
				UpdatedAt:    testNow,
				DetailStatus: DetailStatus(tt.status),
			}

			got := Normalize(in, testNow)
			if got.DetailStatus != tt.wantStatus {
				t.Fatalf("status = %q, want %q",
					got.DetailStatus, tt.wantStatus)
			}

			if tt.wantCleared {
				if got.SummaryLong != "" || got.DiffPoints != nil {
					t.Errorf("detail text not cleared: %q %v",
						got.SummaryLong, got.DiffPoints)
				}
			} else if got.SummaryLong != in.SummaryLong {
				t.Errorf("detail text lost: %q", got.SummaryLong)
			}

			// The input record must be untouched.
			if in.SummaryLong != "長文の要約です。" {
				t.Error("input record was mutated")
			}
		})
	}
}

func TestNormalizeDemotesExpiredReadyToStale(t *testing.T) {
	in := ClusterSummary{
		ID:              "c1",
		SummaryLong:     "expired but still renderable",
		CreatedAt:       testNow.Add(-24 * time.Hour),
		UpdatedAt:       testNow.Add(-24 * time.Hour),
		DetailStatus:    StatusReady,
		DetailExpiresAt: timePtr(testNow.Add(-time.Minute)),
	}

	got := Normalize(in, testNow)
	if got.DetailStatus != StatusStale {
		t.Fatalf("status = %q, want stale", got.DetailStatus)
	}
	if got.SummaryLong != in.SummaryLong {
		t.Errorf("stale record should keep its text, got %q", got.SummaryLong)
	}

	// Not yet expired stays ready.
	in.DetailExpiresAt = timePtr(testNow.Add(time.Minute))
	if got := Normalize(in, testNow); got.DetailStatus != StatusReady {
		t.Errorf("unexpired record demoted to %q", got.DetailStatus)
	}
}

func TestNormalizeBackfillsUpdatedAt(t *testing.T) {
	in := ClusterSummary{
		ID:        "c1",
		CreatedAt: testNow,
	}

	got := Normalize(in, testNow)
	if !got.UpdatedAt.Equal(testNow) {
		t.Errorf("UpdatedAt = %v, want CreatedAt fallback %v",
			got.UpdatedAt, testNow)
	}
}

func TestSupersedes(t *testing.T) {
	at := func(offset time.Duration, status DetailStatus) ClusterSummary {
		return ClusterSummary{
			ID:           "c1",
			UpdatedAt:    testNow.Add(offset),
			DetailStatus: status,
		}
	}

	tests := []struct {
		name     string
		existing ClusterSummary
		incoming ClusterSummary
		want     bool
	}{
		{
			name:     "older partial never displaces ready",
			existing: at(0, StatusReady),
			incoming: at(-time.Hour, StatusPartial),
			want:     false,
		},
		{
			name:     "newer partial still loses to ready",
			existing: at(0, StatusReady),
			incoming: at(time.Hour, StatusPartial),
			want:     false,
		},
		{
			name:     "stale partial never displaces optimistic pending",
			existing: at(0, StatusPending),
			incoming: at(-time.Minute, StatusPartial),
			want:     false,
		},
		{
			name:     "ready poll result lands over pending",
			existing: at(0, StatusPending),
			incoming: at(-time.Second, StatusReady),
			want:     true,
		},
		{
			name:     "failed lands over pending",
			existing: at(0, StatusPending),
			incoming: at(time.Second, StatusFailed),
			want:     true,
		},
		{
			name:     "equal priority newer timestamp wins",
			existing: at(0, StatusReady),
			incoming: at(time.Second, StatusReady),
			want:     true,
		},
		{
			name:     "equal priority older timestamp loses",
			existing: at(0, StatusReady),
			incoming: at(-time.Second, StatusReady),
			want:     false,
		},
		{
			name:     "full tie does not override",
			existing: at(0, StatusReady),
			incoming: at(0, StatusReady),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Supersedes(tt.existing, tt.incoming); got != tt.want {
				t.Errorf("Supersedes(%s@%v, %s@%v) = %v, want %v",
					tt.existing.DetailStatus, tt.existing.UpdatedAt,
					tt.incoming.DetailStatus, tt.incoming.UpdatedAt,
					got, tt.want)
			}
		})
	}
}

func TestSortByRecency(t *testing.T) {
	records := []ClusterSummary{
		{ID: "old", UpdatedAt: testNow.Add(-time.Hour)},
		{ID: "new", UpdatedAt: testNow},
		{ID: "mid", UpdatedAt: testNow.Add(-time.Minute)},
	}

	SortByRecency(records)

	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if records[i].ID != id {
			t.Fatalf("records[%d] = %s, want %s", i, records[i].ID, id)
		}
	}
}
