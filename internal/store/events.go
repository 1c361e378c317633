package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// eventRepo implements EventRepository.
type eventRepo struct {
	db     Querier
	tables siteTables
}

func (r *eventRepo) CountOccurrences(ctx context.Context, recurrenceID int64) (int, error) {
	defer observeDB(ctx, "events.count_occurrences")()

	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE recurrence_id = $1`, r.tables.events)
	var n int
	if err := r.db.QueryRow(ctx, q, recurrenceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count occurrences of %d: %w", recurrenceID, err)
	}
	return n, nil
}

// Rules loads recurrence definitions keyed by event id. Ids without an event row are absent.
func (r *eventRepo) Rules(ctx context.Context, eventIDs []int64) (map[int64]RecurrenceRuleRecord, error) {
	rules := make(map[int64]RecurrenceRuleRecord, len(eventIDs))
	if len(eventIDs) == 0 {
		return rules, nil
	}
	defer observeDB(ctx, "events.rules")()

	if err := r.loadRules(ctx, eventIDs, rules); err != nil {
		return nil, err
	}
	if err := r.loadDays(ctx, eventIDs, rules); err != nil {
		return nil, err
	}
	if err := r.loadExceptions(ctx, eventIDs, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *eventRepo) loadRules(ctx context.Context, ids []int64, rules map[int64]RecurrenceRuleRecord) error {
	q := fmt.Sprintf(`SELECT event_id, recurrence_type, event_start_date, event_end_date,
       to_char(event_start_time, 'HH24:MI'), to_char(event_end_time, 'HH24:MI'),
       recurrence_freq, recurrence_interval
FROM %s WHERE event_id = ANY($1)`, r.tables.events)
	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return fmt.Errorf("load recurrence rules: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RecurrenceRuleRecord, error) {
		var (
			rec                RecurrenceRuleRecord
			kind, freq         *string
			startTime, endTime *string
			interval           *int
		)
		err := row.Scan(&rec.EventID, &kind, &rec.StartDate, &rec.EndDate, &startTime, &endTime, &freq, &interval)
		rec.Kind = deref(kind)
		rec.StartTime = deref(startTime)
		rec.EndTime = deref(endTime)
		rec.Frequency = deref(freq)
		rec.Interval = deref(interval)
		return rec, err
	})
	if err != nil {
		return fmt.Errorf("scan recurrence rules: %w", err)
	}
	for _, rec := range list {
		rules[rec.EventID] = rec
	}
	return nil
}

func (r *eventRepo) loadDays(ctx context.Context, ids []int64, rules map[int64]RecurrenceRuleRecord) error {
	q := fmt.Sprintf(`SELECT event_id, weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
FROM %s WHERE event_id = ANY($1) ORDER BY event_id, weekday`, r.tables.recurrenceDays)
	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return fmt.Errorf("load recurrence days: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			eventID            int64
			slot               WeekdaySlot
			startTime, endTime *string
		)
		if err := rows.Scan(&eventID, &slot.Weekday, &startTime, &endTime); err != nil {
			return fmt.Errorf("scan recurrence day: %w", err)
		}
		slot.StartTime = deref(startTime)
		slot.EndTime = deref(endTime)
		if rec, ok := rules[eventID]; ok {
			rec.Days = append(rec.Days, slot)
			rules[eventID] = rec
		}
	}
	return rows.Err()
}

func (r *eventRepo) loadExceptions(ctx context.Context, ids []int64, rules map[int64]RecurrenceRuleRecord) error {
	q := fmt.Sprintf(`SELECT event_id, exception_date FROM %s WHERE event_id = ANY($1) ORDER BY event_id, exception_date`,
		r.tables.recurrenceExceptions)
	rows, err := r.db.Query(ctx, q, ids)
	if err != nil {
		return fmt.Errorf("load recurrence exceptions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			eventID int64
			day     time.Time
		)
		if err := rows.Scan(&eventID, &day); err != nil {
			return fmt.Errorf("scan recurrence exception: %w", err)
		}
		if rec, ok := rules[eventID]; ok {
			rec.Exceptions = append(rec.Exceptions, day)
			rules[eventID] = rec
		}
	}
	return rows.Err()
}
