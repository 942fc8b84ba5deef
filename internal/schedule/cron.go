package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marcelg7/fleetacs/internal/domain"
)

// cronParser — парсер cron-выражений для вычисления следующего окна.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextWindowStart вычисляет начало следующего окна выполнения workflow
// после from. Используется админ-поверхностью для поля next_eligible_at.
//
// Возвращает нулевое время без ошибки, если следующего окна нет
// (immediate — окно всегда открыто, on_connect — окон нет,
// scheduled в прошлом).
func NextWindowStart(w *domain.Workflow, from time.Time) (time.Time, error) {
	switch w.ScheduleType {
	case domain.ScheduleImmediate, domain.ScheduleOnConnect:
		return time.Time{}, nil

	case domain.ScheduleScheduled:
		cfg := w.ScheduleConfig
		if cfg.StartAt == nil {
			return time.Time{}, fmt.Errorf("%w: scheduled without start_at", ErrBadConfig)
		}
		if from.Before(*cfg.StartAt) {
			return *cfg.StartAt, nil
		}
		if cfg.EndAt == nil || !from.After(*cfg.EndAt) {
			// Уже внутри окна.
			return from, nil
		}
		return time.Time{}, nil

	case domain.ScheduleRecurring:
		return nextRecurringStart(w.ScheduleConfig, from)

	default:
		return time.Time{}, fmt.Errorf("%w: schedule_type %q", ErrBadConfig, w.ScheduleType)
	}
}

// nextRecurringStart строит cron-выражение "M H * * dow" из конфигурации
// окна и спрашивает у парсера следующее срабатывание в timezone окна.
func nextRecurringStart(cfg domain.ScheduleConfig, from time.Time) (time.Time, error) {
	start, err := minutesOfDay(cfg.StartTime)
	if err != nil {
		return time.Time{}, err
	}

	dows := make([]string, 0, len(cfg.Days))
	for _, d := range cfg.Days {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: day %q", ErrBadConfig, d)
		}
		dows = append(dows, fmt.Sprintf("%d", int(wd)))
	}

	expr := fmt.Sprintf("%d %d * * %s", start%60, start/60, strings.Join(dows, ","))
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse window cron %q: %w", expr, err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}
	return sched.Next(from.In(loc)), nil
}
