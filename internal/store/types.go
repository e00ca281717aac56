package store

import "time"

// Watch is a personal keyword subscription with an optional price cap.
// Unique per (owner, query); created and removed by the chat collaborator.
type Watch struct {
	ID        int64
	OwnerID   string
	Query     string
	MaxPrice  *float64
	CreatedAt time.Time
}

// Schedule defines how often a category feed runs
type Schedule string

// Supported feed schedules.
const (
	ScheduleHourly Schedule = "hourly"
	ScheduleDaily  Schedule = "daily"
	ScheduleWeekly Schedule = "weekly"
)

// Valid reports whether s is a known schedule
func (s Schedule) Valid() bool {
	switch s {
	case ScheduleHourly, ScheduleDaily, ScheduleWeekly:
		return true
	}
	return false
}

// CategoryFeed is a per-server automated channel subscription to a deal
// category. Unique per (server, slug). The scheduler only ever mutates
// last_run_at and the run counters.
type CategoryFeed struct {
	ID             int64
	ServerID       string
	ChannelID      string
	Slug           string
	Schedule       Schedule
	AnchorHour     int
	AnchorWeekday  time.Weekday
	MinTemperature *float64
	MaxPrice       *float64
	Keyword        string
	Paused         bool
	LastRunAt      *time.Time
	CheckedCount   int64
	SentCount      int64
	ErrorCount     int64
	CreatedAt      time.Time
}

// DueAt reports whether the feed should run at or before now.
// A feed is due when it never ran, or when its last run precedes the latest
// anchor occurrence. Missed occurrences collapse into a single late run.
func (f *CategoryFeed) DueAt(now time.Time) bool {
	if f.Paused {
		return false
	}
	if f.Schedule == ScheduleHourly {
		return f.LastRunAt == nil || now.Sub(*f.LastRunAt) >= time.Hour
	}
	if f.LastRunAt == nil {
		return true
	}
	return f.LastRunAt.Before(f.lastOccurrence(now))
}

// lastOccurrence returns the most recent schedule anchor at or before now
func (f *CategoryFeed) lastOccurrence(now time.Time) time.Time {
	anchor := time.Date(now.Year(), now.Month(), now.Day(), f.AnchorHour, 0, 0, 0, now.Location())

	switch f.Schedule {
	case ScheduleWeekly:
		back := (int(now.Weekday()) - int(f.AnchorWeekday) + 7) % 7
		anchor = anchor.AddDate(0, 0, -back)
		if now.Before(anchor) {
			anchor = anchor.AddDate(0, 0, -7)
		}
	default: // daily
		if now.Before(anchor) {
			anchor = anchor.AddDate(0, 0, -1)
		}
	}
	return anchor
}

// DeliveryRecord marks a deal as delivered to a destination.
// The (destination, deal) pair is unique; this is the dedup invariant.
type DeliveryRecord struct {
	DestinationID string
	DealID        string
	DeliveredAt   time.Time
}
