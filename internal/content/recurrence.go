package content

import (
	"fmt"
	"iter"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/integreat/contentapi/internal/store"
)

// RuleKind selects how a recurring template produces occurrences.
type RuleKind string

const (
	// RuleSingle is one date with explicit start and end times.
	RuleSingle RuleKind = "single"
	// RuleSpan is one all-day interval.
	RuleSpan RuleKind = "span"
	// RuleWeekly repeats on the weekdays of a time table.
	RuleWeekly RuleKind = "weekly"
)

// TimeSlot is a start and end time of day in minutes after midnight.
type TimeSlot struct {
	Start int
	End   int
}

// Rule is a validated recurrence definition. Dates are calendar days at midnight UTC.
type Rule struct {
	TemplateID   int64
	RecurrenceID int64
	Kind         RuleKind
	StartDate    time.Time
	EndDate      time.Time
	Times        TimeSlot
	Frequency    rrule.Frequency
	Interval     int
	Days         map[time.Weekday]TimeSlot
	Exceptions   []time.Time
	Location     *time.Location
}

// Occurrence is one concrete instance of a recurring template.
type Occurrence struct {
	RecurrenceID int64
	Date         time.Time
	Start        time.Time
	End          time.Time
	AllDay       bool
}

// RuleFromRecord validates a stored recurrence definition. Malformed input yields a DataIntegrityError
// naming the template post.
func RuleFromRecord(postID int64, rec store.RecurrenceRuleRecord, loc *time.Location) (Rule, error) {
	malformed := func(format string, args ...any) error {
		return &DataIntegrityError{ItemID: postID, Kind: KindMalformedRecurrence, Reason: fmt.Sprintf(format, args...)}
	}
	if loc == nil {
		loc = time.UTC
	}
	rule := Rule{TemplateID: postID, RecurrenceID: rec.EventID, Kind: RuleKind(rec.Kind), Location: loc}

	if rec.StartDate == nil {
		return Rule{}, malformed("missing start date")
	}
	rule.StartDate = calendarDay(*rec.StartDate)
	rule.EndDate = rule.StartDate
	if rec.EndDate != nil {
		rule.EndDate = calendarDay(*rec.EndDate)
	}
	if rule.EndDate.Before(rule.StartDate) {
		return Rule{}, malformed("end date %s before start date %s", rule.EndDate.Format(time.DateOnly), rule.StartDate.Format(time.DateOnly))
	}

	switch rule.Kind {
	case RuleSingle:
		slot, err := parseSlot(rec.StartTime, rec.EndTime)
		if err != nil {
			return Rule{}, malformed("%v", err)
		}
		rule.Times = slot
	case RuleSpan:
		rule.Times = TimeSlot{Start: 0, End: 23*60 + 59}
	case RuleWeekly:
		switch rec.Frequency {
		case "", "weekly":
			rule.Frequency = rrule.WEEKLY
		case "daily":
			rule.Frequency = rrule.DAILY
		default:
			return Rule{}, malformed("unknown frequency %q", rec.Frequency)
		}
		rule.Interval = max(rec.Interval, 1)
		if len(rec.Days) == 0 {
			return Rule{}, malformed("weekly rule without weekday time table")
		}
		rule.Days = make(map[time.Weekday]TimeSlot, len(rec.Days))
		for _, d := range rec.Days {
			if d.Weekday < 1 || d.Weekday > 7 {
				return Rule{}, malformed("weekday %d out of range", d.Weekday)
			}
			slot, err := parseSlot(d.StartTime, d.EndTime)
			if err != nil {
				return Rule{}, malformed("weekday %d: %v", d.Weekday, err)
			}
			rule.Days[time.Weekday(d.Weekday%7)] = slot
		}
		for _, ex := range rec.Exceptions {
			rule.Exceptions = append(rule.Exceptions, calendarDay(ex))
		}
	case "":
		return Rule{}, malformed("missing recurrence type")
	default:
		return Rule{}, malformed("unknown recurrence type %q", rec.Kind)
	}
	return rule, nil
}

// Expand returns the occurrences of rule in chronological order. The sequence is finite and may be
// ranged over any number of times with the same result.
func Expand(rule Rule) (iter.Seq[Occurrence], error) {
	switch rule.Kind {
	case RuleSingle, RuleSpan:
		occ := rule.occurrence(rule.StartDate, rule.EndDate, rule.Times, rule.Kind == RuleSpan)
		return func(yield func(Occurrence) bool) {
			yield(occ)
		}, nil
	case RuleWeekly:
		set, err := rule.weeklySet()
		if err != nil {
			return nil, &DataIntegrityError{ItemID: rule.TemplateID, Kind: KindMalformedRecurrence, Reason: err.Error()}
		}
		return func(yield func(Occurrence) bool) {
			next := set.Iterator()
			for day, ok := next(); ok; day, ok = next() {
				slot := rule.Days[day.Weekday()]
				if !yield(rule.occurrence(day, day, slot, false)) {
					return
				}
			}
		}, nil
	default:
		return nil, &DataIntegrityError{ItemID: rule.TemplateID, Kind: KindMalformedRecurrence, Reason: fmt.Sprintf("unknown recurrence type %q", rule.Kind)}
	}
}

var rruleWeekdays = []struct {
	day time.Weekday
	wd  rrule.Weekday
}{
	{time.Monday, rrule.MO},
	{time.Tuesday, rrule.TU},
	{time.Wednesday, rrule.WE},
	{time.Thursday, rrule.TH},
	{time.Friday, rrule.FR},
	{time.Saturday, rrule.SA},
	{time.Sunday, rrule.SU},
}

// weeklySet evaluates the day range with the end date inclusive, dropping exception days.
func (r Rule) weeklySet() (*rrule.Set, error) {
	weekdays := make([]rrule.Weekday, 0, len(r.Days))
	for _, w := range rruleWeekdays {
		if _, ok := r.Days[w.day]; ok {
			weekdays = append(weekdays, w.wd)
		}
	}
	rr, err := rrule.NewRRule(rrule.ROption{
		Freq:      r.Frequency,
		Interval:  r.Interval,
		Dtstart:   r.StartDate,
		// event_end_date is the last covered day; UNTIL at its midnight keeps it in the set.
		Until:     r.EndDate,
		Byweekday: weekdays,
		Wkst:      rrule.MO,
	})
	if err != nil {
		return nil, err
	}
	set := &rrule.Set{}
	set.RRule(rr)
	for _, ex := range r.Exceptions {
		set.ExDate(ex)
	}
	return set, nil
}

func (r Rule) occurrence(startDay, endDay time.Time, slot TimeSlot, allDay bool) Occurrence {
	return Occurrence{
		RecurrenceID: r.RecurrenceID,
		Date:         startDay,
		Start:        atMinute(startDay, slot.Start, r.Location),
		End:          atMinute(endDay, slot.End, r.Location),
		AllDay:       allDay,
	}
}

func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func atMinute(day time.Time, minute int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, loc)
}

func parseSlot(start, end string) (TimeSlot, error) {
	s, err := parseClock(start)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("start time: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return TimeSlot{}, fmt.Errorf("end time: %w", err)
	}
	return TimeSlot{Start: s, End: e}, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
