package jobs_test

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"podmill/internal/jobs"
)

func TestNewIDShape(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	id := jobs.NewID(at)

	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "job" {
		t.Fatalf("ID = %q, want job_<random>_<unix>", id)
	}
	if len(parts[1]) != 12 {
		t.Fatalf("random component %q has length %d, want 12", parts[1], len(parts[1]))
	}
	if unix, err := strconv.ParseInt(parts[2], 10, 64); err != nil || unix != at.Unix() {
		t.Fatalf("timestamp component %q, want %d", parts[2], at.Unix())
	}
	if other := jobs.NewID(at); other == id {
		t.Fatal("two IDs from the same instant collided")
	}
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   string
		want jobs.Status
		ok   bool
	}{
		{"queued", jobs.StatusQueued, true},
		{" Processing ", jobs.StatusProcessing, true},
		{"COMPLETED", jobs.StatusCompleted, true},
		{"cancelled", jobs.StatusCancelled, true},
		{"", "", false},
		{"paused", "", false},
	}
	for _, tc := range cases {
		got, ok := jobs.ParseStatus(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestValidTransitions(t *testing.T) {
	allowed := []struct{ from, to jobs.Status }{
		{jobs.StatusQueued, jobs.StatusProcessing},
		{jobs.StatusQueued, jobs.StatusCancelled},
		{jobs.StatusProcessing, jobs.StatusCompleted},
		{jobs.StatusProcessing, jobs.StatusFailed},
		{jobs.StatusProcessing, jobs.StatusCancelled},
	}
	for _, tc := range allowed {
		if !jobs.ValidTransition(tc.from, tc.to) {
			t.Errorf("transition %s -> %s should be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to jobs.Status }{
		{jobs.StatusQueued, jobs.StatusCompleted},
		{jobs.StatusQueued, jobs.StatusFailed},
		{jobs.StatusCompleted, jobs.StatusProcessing},
		{jobs.StatusFailed, jobs.StatusQueued},
		{jobs.StatusCancelled, jobs.StatusProcessing},
		{jobs.StatusProcessing, jobs.StatusQueued},
	}
	for _, tc := range denied {
		if jobs.ValidTransition(tc.from, tc.to) {
			t.Errorf("transition %s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range []jobs.Status{jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled} {
		if !status.Terminal() {
			t.Errorf("%s should be terminal", status)
		}
		if status.Active() {
			t.Errorf("%s should not be active", status)
		}
	}
	for _, status := range []jobs.Status{jobs.StatusQueued, jobs.StatusProcessing} {
		if status.Terminal() {
			t.Errorf("%s should not be terminal", status)
		}
		if !status.Active() {
			t.Errorf("%s should be active", status)
		}
	}
}
