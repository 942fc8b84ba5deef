// Package schedule решает, попадает ли "сейчас" в окно выполнения workflow.
//
// Пакет чистый: текущий момент всегда передаётся снаружи, чтобы тесты
// могли путешествовать во времени.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// weekdays — имена дней недели в конфигурации recurring.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// EligibleNow возвращает true, если now попадает в окно выполнения workflow.
//
//   - immediate: всегда true;
//   - scheduled: now ∈ [start_at, end_at], end_at может отсутствовать;
//   - recurring: день недели и локальное время (в timezone окна) внутри
//     [start_time, end_time], оба конца включительно;
//   - on_connect: всегда false — такие workflow запускаются только
//     событием подключения устройства, не polling-том.
//
// Активность самого workflow здесь не проверяется: это забота оркестратора.
func EligibleNow(w *domain.Workflow, now time.Time) (bool, error) {
	switch w.ScheduleType {
	case domain.ScheduleImmediate:
		return true, nil

	case domain.ScheduleScheduled:
		cfg := w.ScheduleConfig
		if cfg.StartAt == nil {
			return false, fmt.Errorf("%w: scheduled without start_at", ErrBadConfig)
		}
		if now.Before(*cfg.StartAt) {
			return false, nil
		}
		if cfg.EndAt != nil && now.After(*cfg.EndAt) {
			return false, nil
		}
		return true, nil

	case domain.ScheduleRecurring:
		return inRecurringWindow(w.ScheduleConfig, now)

	case domain.ScheduleOnConnect:
		return false, nil

	default:
		return false, fmt.Errorf("%w: schedule_type %q", ErrBadConfig, w.ScheduleType)
	}
}

// inRecurringWindow проверяет попадание в повторяющееся окно.
func inRecurringWindow(cfg domain.ScheduleConfig, now time.Time) (bool, error) {
	if len(cfg.Days) == 0 {
		return false, fmt.Errorf("%w: recurring without days", ErrBadConfig)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		// Невалидный timezone не должен ронять тик — окно считается в UTC.
		loc = time.UTC
	}
	local := now.In(loc)

	dayOK := false
	for _, d := range cfg.Days {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return false, fmt.Errorf("%w: day %q", ErrBadConfig, d)
		}
		if local.Weekday() == wd {
			dayOK = true
			break
		}
	}
	if !dayOK {
		return false, nil
	}

	start, err := minutesOfDay(cfg.StartTime)
	if err != nil {
		return false, err
	}
	end, err := minutesOfDay(cfg.EndTime)
	if err != nil {
		return false, err
	}

	cur := local.Hour()*60 + local.Minute()
	return cur >= start && cur <= end, nil
}

// minutesOfDay разбирает "HH:MM" в минуты от полуночи.
func minutesOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrBadConfig, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time %q out of range", ErrBadConfig, s)
	}
	return h*60 + m, nil
}

// Validate проверяет конфигурацию расписания при создании workflow.
func Validate(w *domain.Workflow) error {
	switch w.ScheduleType {
	case domain.ScheduleImmediate, domain.ScheduleOnConnect:
		return nil

	case domain.ScheduleScheduled:
		cfg := w.ScheduleConfig
		if cfg.StartAt == nil {
			return fmt.Errorf("%w: scheduled requires start_at", ErrBadConfig)
		}
		if cfg.EndAt != nil && cfg.EndAt.Before(*cfg.StartAt) {
			return fmt.Errorf("%w: end_at before start_at", ErrBadConfig)
		}
		return nil

	case domain.ScheduleRecurring:
		cfg := w.ScheduleConfig
		if len(cfg.Days) == 0 {
			return fmt.Errorf("%w: recurring requires days", ErrBadConfig)
		}
		for _, d := range cfg.Days {
			if _, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]; !ok {
				return fmt.Errorf("%w: day %q", ErrBadConfig, d)
			}
		}
		start, err := minutesOfDay(cfg.StartTime)
		if err != nil {
			return err
		}
		end, err := minutesOfDay(cfg.EndTime)
		if err != nil {
			return err
		}
		if end < start {
			return fmt.Errorf("%w: end_time before start_time", ErrBadConfig)
		}
		if cfg.Timezone != "" {
			if _, err := time.LoadLocation(cfg.Timezone); err != nil {
				return fmt.Errorf("%w: timezone %q", ErrBadConfig, cfg.Timezone)
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: schedule_type %q", ErrBadConfig, w.ScheduleType)
	}
}
