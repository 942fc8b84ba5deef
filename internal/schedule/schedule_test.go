package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/marcelg7/fleetacs/internal/domain"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func TestEligibleNow_Immediate(t *testing.T) {
	w := &domain.Workflow{ScheduleType: domain.ScheduleImmediate}

	ok, err := EligibleNow(w, ts("2025-06-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("immediate workflow should always be eligible")
	}
}

func TestEligibleNow_OnConnect(t *testing.T) {
	w := &domain.Workflow{ScheduleType: domain.ScheduleOnConnect}

	ok, err := EligibleNow(w, ts("2025-06-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("on_connect workflow must never be eligible by polling")
	}
}

func TestEligibleNow_Scheduled(t *testing.T) {
	w := &domain.Workflow{
		ScheduleType: domain.ScheduleScheduled,
		ScheduleConfig: domain.ScheduleConfig{
			StartAt: tsp("2025-06-01T10:00:00Z"),
			EndAt:   tsp("2025-06-01T12:00:00Z"),
		},
	}

	cases := []struct {
		now  string
		want bool
	}{
		{"2025-06-01T09:59:59Z", false},
		{"2025-06-01T10:00:00Z", true},
		{"2025-06-01T11:30:00Z", true},
		{"2025-06-01T12:00:00Z", true},
		{"2025-06-01T12:00:01Z", false},
	}
	for _, tc := range cases {
		ok, err := EligibleNow(w, ts(tc.now))
		if err != nil {
			t.Fatalf("at %s: %v", tc.now, err)
		}
		if ok != tc.want {
			t.Errorf("at %s: got %v, want %v", tc.now, ok, tc.want)
		}
	}
}

func TestEligibleNow_Scheduled_OpenEnd(t *testing.T) {
	w := &domain.Workflow{
		ScheduleType: domain.ScheduleScheduled,
		ScheduleConfig: domain.ScheduleConfig{
			StartAt: tsp("2025-06-01T10:00:00Z"),
		},
	}

	ok, err := EligibleNow(w, ts("2030-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("window without end_at should stay open forever")
	}
}

func TestEligibleNow_Scheduled_MissingStart(t *testing.T) {
	w := &domain.Workflow{ScheduleType: domain.ScheduleScheduled}

	if _, err := EligibleNow(w, ts("2025-06-01T10:00:00Z")); !errors.Is(err, ErrBadConfig) {
		t.Errorf("scheduled without start_at should fail, got %v", err)
	}
}

func TestEligibleNow_Recurring(t *testing.T) {
	w := &domain.Workflow{
		ScheduleType: domain.ScheduleRecurring,
		ScheduleConfig: domain.ScheduleConfig{
			Days:      []string{"monday", "Wednesday"},
			StartTime: "02:00",
			EndTime:   "04:30",
			Timezone:  "UTC",
		},
	}

	cases := []struct {
		now  string
		want bool
	}{
		// 2025-06-02 — понедельник
		{"2025-06-02T01:59:00Z", false},
		{"2025-06-02T02:00:00Z", true},
		{"2025-06-02T04:30:00Z", true}, // верхняя граница включительно
		{"2025-06-02T04:31:00Z", false},
		// 2025-06-03 — вторник, день не в списке
		{"2025-06-03T03:00:00Z", false},
		// 2025-06-04 — среда
		{"2025-06-04T03:00:00Z", true},
	}
	for _, tc := range cases {
		ok, err := EligibleNow(w, ts(tc.now))
		if err != nil {
			t.Fatalf("at %s: %v", tc.now, err)
		}
		if ok != tc.want {
			t.Errorf("at %s: got %v, want %v", tc.now, ok, tc.want)
		}
	}
}

func TestEligibleNow_Recurring_Timezone(t *testing.T) {
	w := &domain.Workflow{
		ScheduleType: domain.ScheduleRecurring,
		ScheduleConfig: domain.ScheduleConfig{
			Days:      []string{"monday"},
			StartTime: "02:00",
			EndTime:   "04:00",
			Timezone:  "America/Chicago",
		},
	}

	// 08:00 UTC понедельника = 03:00 CDT — внутри окна.
	ok, err := EligibleNow(w, ts("2025-06-02T08:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("window must be evaluated in its own timezone")
	}

	// 03:00 UTC понедельника = 22:00 CDT воскресенья — вне окна и вне дня.
	ok, err = EligibleNow(w, ts("2025-06-02T03:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("UTC monday that is still sunday locally must not be eligible")
	}
}

func TestEligibleNow_Recurring_BadTimezoneFallsBackToUTC(t *testing.T) {
	w := &domain.Workflow{
		ScheduleType: domain.ScheduleRecurring,
		ScheduleConfig: domain.ScheduleConfig{
			Days:      []string{"monday"},
			StartTime: "02:00",
			EndTime:   "04:00",
			Timezone:  "Mars/Olympus",
		},
	}

	ok, err := EligibleNow(w, ts("2025-06-02T03:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("unknown timezone should fall back to UTC, not fail the tick")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		w    domain.Workflow
		ok   bool
	}{
		{
			name: "immediate",
			w:    domain.Workflow{ScheduleType: domain.ScheduleImmediate},
			ok:   true,
		},
		{
			name: "on_connect",
			w:    domain.Workflow{ScheduleType: domain.ScheduleOnConnect},
			ok:   true,
		},
		{
			name: "scheduled ok",
			w: domain.Workflow{
				ScheduleType: domain.ScheduleScheduled,
				ScheduleConfig: domain.ScheduleConfig{
					StartAt: tsp("2025-06-01T10:00:00Z"),
					EndAt:   tsp("2025-06-01T12:00:00Z"),
				},
			},
			ok: true,
		},
		{
			name: "scheduled end before start",
			w: domain.Workflow{
				ScheduleType: domain.ScheduleScheduled,
				ScheduleConfig: domain.ScheduleConfig{
					StartAt: tsp("2025-06-01T12:00:00Z"),
					EndAt:   tsp("2025-06-01T10:00:00Z"),
				},
			},
		},
		{
			name: "scheduled without start",
			w:    domain.Workflow{ScheduleType: domain.ScheduleScheduled},
		},
		{
			name: "recurring ok",
			w: domain.Workflow{
				ScheduleType: domain.ScheduleRecurring,
				ScheduleConfig: domain.ScheduleConfig{
					Days:      []string{"saturday", "sunday"},
					StartTime: "01:00",
					EndTime:   "05:00",
					Timezone:  "America/New_York",
				},
			},
			ok: true,
		},
		{
			name: "recurring bad day",
			w: domain.Workflow{
				ScheduleType: domain.ScheduleRecurring,
				ScheduleConfig: domain.ScheduleConfig{
					Days:      []string{"someday"},
					StartTime: "01:00",
					EndTime:   "05:00",
				},
			},
		},
		{
			name: "recurring bad time",
			w: domain.Workflow{
				ScheduleType: domain.ScheduleRecurring,
				ScheduleConfig: domain.ScheduleConfig{
					Days:      []string{"monday"},
					StartTime: "25:00",
					EndTime:   "26:00",
				},
			},
		},
		{
			name: "recurring end before start",
			w: domain.Workflow{
				ScheduleType: domain.ScheduleRecurring,
				ScheduleConfig: domain.ScheduleConfig{
					Days:      []string{"monday"},
					StartTime: "05:00",
					EndTime:   "01:00",
				},
			},
		},
		{
			name: "recurring bad timezone",
			w: domain.Workflow{
				ScheduleType: domain.ScheduleRecurring,
				ScheduleConfig: domain.ScheduleConfig{
					Days:      []string{"monday"},
					StartTime: "01:00",
					EndTime:   "05:00",
					Timezone:  "Mars/Olympus",
				},
			},
		},
		{
			name: "unknown type",
			w:    domain.Workflow{ScheduleType: "hourly"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.w)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrBadConfig) {
				t.Errorf("expected ErrBadConfig, got %v", err)
			}
		})
	}
}

func TestNextWindowStart_Scheduled(t *testing.T) {
	w := &domain.Workflow{
		ScheduleType: domain.ScheduleScheduled,
		ScheduleConfig: domain.ScheduleConfig{
			StartAt: tsp("2025-06-01T10:00:00Z"),
			EndAt:   tsp("2025-06-01T12:00:00Z"),
		},
	}

	next, err := NextWindowStart(w, ts("2025-06-01T08:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(ts("2025-06-01T10:00:00Z")) {
		t.Errorf("before the window, next start should be start_at, got %v", next)
	}

	next, err = NextWindowStart(w, ts("2025-06-01T11:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(ts("2025-06-01T11:00:00Z")) {
		t.Errorf("inside the window, next start is now, got %v", next)
	}

	next, err = NextWindowStart(w, ts("2025-06-01T13:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.IsZero() {
		t.Errorf("past the window there is no next start, got %v", next)
	}
}

func TestNextWindowStart_Recurring(t *testing.T) {
	w := &domain.Workflow{
		ScheduleType: domain.ScheduleRecurring,
		ScheduleConfig: domain.ScheduleConfig{
			Days:      []string{"monday"},
			StartTime: "02:00",
			EndTime:   "04:00",
			Timezone:  "UTC",
		},
	}

	// Воскресенье вечером — следующее окно в понедельник 02:00.
	next, err := NextWindowStart(w, ts("2025-06-01T20:00:00Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(ts("2025-06-02T02:00:00Z")) {
		t.Errorf("expected monday 02:00 UTC, got %v", next)
	}
}
