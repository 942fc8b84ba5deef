package limits

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateWindow_SlidingHour(t *testing.T) {
	w := NewRateWindow()
	id := uuid.New()
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !w.Allow(id, 3, base) {
			t.Fatalf("event %d should be allowed", i)
		}
		w.Record(id, base.Add(time.Duration(i)*time.Minute))
	}

	if w.Allow(id, 3, base.Add(3*time.Minute)) {
		t.Error("limit exhausted, further events must be denied")
	}
	if w.Count(id, base.Add(3*time.Minute)) != 3 {
		t.Errorf("expected 3 recorded events, got %d", w.Count(id, base.Add(3*time.Minute)))
	}

	// Час спустя первое событие выпадает из окна.
	later := base.Add(time.Hour + time.Second)
	if !w.Allow(id, 3, later) {
		t.Error("after the oldest event ages out, a new one should be allowed")
	}
	if w.Count(id, later) != 2 {
		t.Errorf("expected 2 events inside the window, got %d", w.Count(id, later))
	}
}

func TestRateWindow_ZeroLimitUnbounded(t *testing.T) {
	w := NewRateWindow()
	id := uuid.New()
	now := time.Now()

	for i := 0; i < 1000; i++ {
		w.Record(id, now)
	}
	if !w.Allow(id, 0, now) {
		t.Error("limit 0 means no rate limiting")
	}
}

func TestRateWindow_Forget(t *testing.T) {
	w := NewRateWindow()
	id := uuid.New()
	now := time.Now()

	w.Record(id, now)
	w.Record(id, now)
	w.Forget(id)

	if w.Count(id, now) != 0 {
		t.Error("Forget should drop all events for the workflow")
	}
	if !w.Allow(id, 1, now) {
		t.Error("forgotten workflow starts from a clean window")
	}
}

func TestRateWindow_IsolatedPerWorkflow(t *testing.T) {
	w := NewRateWindow()
	a, b := uuid.New(), uuid.New()
	now := time.Now()

	w.Record(a, now)
	if !w.Allow(b, 1, now) {
		t.Error("windows must be tracked per workflow")
	}
}

func TestConcurrencyOK(t *testing.T) {
	cases := []struct {
		inFlight, max int
		want          bool
	}{
		{0, 0, true},
		{100, 0, true}, // 0 — без потолка
		{0, 5, true},
		{4, 5, true},
		{5, 5, false},
		{6, 5, false},
	}
	for _, tc := range cases {
		if got := ConcurrencyOK(tc.inFlight, tc.max); got != tc.want {
			t.Errorf("ConcurrencyOK(%d, %d) = %v, want %v", tc.inFlight, tc.max, got, tc.want)
		}
	}
}

func TestBreakerTripped(t *testing.T) {
	cases := []struct {
		failed, completed, stop int
		want                    bool
	}{
		{0, 0, 50, false},  // нет терминальных — доля неопределима
		{10, 0, 0, false},  // порог выключен
		{6, 4, 50, true},   // 60% >= 50%
		{5, 5, 50, true},   // ровно на пороге
		{4, 6, 50, false},  // 40% < 50%
		{1, 0, 100, true},  // единственная задача упала
		{1, 99, 1, true},   // низкий порог
		{0, 100, 1, false}, // неудач нет
	}
	for _, tc := range cases {
		if got := BreakerTripped(tc.failed, tc.completed, tc.stop); got != tc.want {
			t.Errorf("BreakerTripped(%d, %d, %d) = %v, want %v",
				tc.failed, tc.completed, tc.stop, got, tc.want)
		}
	}
}
