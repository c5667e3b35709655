package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is wrapped by every EventRequest validation failure.
var ErrInvalidRequest = errors.New("invalid event request")

// EventRequest describes one calendar event to be created. It lives for a
// single submission.
type EventRequest struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time

	// Recurrence is an optional RFC 5545 rule, e.g. "FREQ=WEEKLY;COUNT=4".
	Recurrence string
}

// Validate enforces a non-empty title and Start strictly before End.
func (r EventRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	case r.Start.IsZero():
		return fmt.Errorf("%w: start is required", ErrInvalidRequest)
	case r.End.IsZero():
		return fmt.Errorf("%w: end is required", ErrInvalidRequest)
	case !r.Start.Before(r.End):
		return fmt.Errorf("%w: start %s must be before end %s",
			ErrInvalidRequest, r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// Reminder is one reminder override on a created event.
type Reminder struct {
	Method  string
	Minutes int64
}

// DefaultReminders is an email a day ahead and a popup ten minutes ahead.
func DefaultReminders() []Reminder {
	return []Reminder{
		{Method: "email", Minutes: 24 * 60},
		{Method: "popup", Minutes: 10},
	}
}

// Policy is the fixed part of every payload: the time zone the event is
// written in and the reminder overrides.
type Policy struct {
	Location  *time.Location
	Reminders []Reminder
}

// TimeZone returns the IANA name sent in start.timeZone/end.timeZone.
func (p Policy) TimeZone() string {
	if p.Location == nil {
		return time.UTC.String()
	}
	return p.Location.String()
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}
