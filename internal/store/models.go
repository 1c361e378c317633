package store

import "time"

// Post statuses the API distinguishes. Every other status counts as unpublished.
const (
	StatusPublish = "publish"
	StatusTrash   = "trash"
)

// Post types served by the API.
const (
	TypePage           = "page"
	TypeEvent          = "event"
	TypeEventRecurring = "event-recurring"
)

// Site is one instance of the multisite network.
type Site struct {
	ID       int64
	Domain   string
	Path     string
	Name     string
	Public   bool
	Archived bool
	Deleted  bool
	Spam     bool
}

// Disabled reports whether the site must not be served at all.
func (s Site) Disabled() bool {
	return s.Archived || s.Deleted || s.Spam
}

// Hidden reports whether the site is reachable but not listed publicly.
func (s Site) Hidden() bool {
	return !s.Public && !s.Disabled()
}

// ContentRow is one post as read from a site's posts table, joined with its event record if any.
type ContentRow struct {
	ID          int64
	Title       string
	Slug        string
	Type        string
	Status      string
	ModifiedGMT time.Time
	Excerpt     string
	Content     string
	Parent      int64
	MenuOrder   int
	GUID        string
	Event       *EventRecord
}

// EventRecord holds the calendar columns of an event post.
type EventRecord struct {
	EventID      int64
	RecurrenceID *int64
	StartDate    *time.Time
	EndDate      *time.Time
	StartTime    string
	EndTime      string
	AllDay       bool
}

// TreeNode is the minimal projection used to evaluate ancestor chains and slug paths.
// Language is empty for posts without a translation entry.
type TreeNode struct {
	ID       int64
	Parent   int64
	Status   string
	Slug     string
	Type     string
	Language string
}

// LanguageLink places an element into a translation group.
type LanguageLink struct {
	ElementID int64
	TRID      int64
	Language  string
}

// Language is an active language of a site.
type Language struct {
	ID         int64
	Code       string
	NativeName string
	Flag       string
}

// RecurrenceRuleRecord is the raw, unvalidated recurrence definition of a template event.
type RecurrenceRuleRecord struct {
	EventID    int64
	Kind       string
	StartDate  *time.Time
	EndDate    *time.Time
	StartTime  string
	EndTime    string
	Frequency  string
	Interval   int
	Days       []WeekdaySlot
	Exceptions []time.Time
}

// WeekdaySlot is one row of a weekly time table. Weekday uses ISO numbering, 1 = Monday.
type WeekdaySlot struct {
	Weekday   int
	StartTime string
	EndTime   string
}
