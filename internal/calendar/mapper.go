package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/xyedo/rrule"
	"google.golang.org/api/calendar/v3"
)

// BuildEvent converts an EventRequest into a Calendar API event in the
// policy's time zone with the policy's reminder overrides.
func BuildEvent(req EventRequest, policy Policy) (*calendar.Event, error) {
	loc := policy.location()
	tz := policy.TimeZone()

	event := &calendar.Event{
		Summary:     req.Title,
		Description: req.Description,
		Location:    req.Location,
		Start: &calendar.EventDateTime{
			DateTime: req.Start.In(loc).Format(time.RFC3339),
			TimeZone: tz,
		},
		End: &calendar.EventDateTime{
			DateTime: req.End.In(loc).Format(time.RFC3339),
			TimeZone: tz,
		},
		Reminders: buildReminders(policy.Reminders),
	}

	if req.Recurrence != "" {
		line, err := recurrenceLine(req.Recurrence)
		if err != nil {
			return nil, err
		}
		event.Recurrence = []string{line}
	}

	return event, nil
}

func buildReminders(reminders []Reminder) *calendar.EventReminders {
	overrides := make([]*calendar.EventReminder, 0, len(reminders))
	for _, r := range reminders {
		overrides = append(overrides, &calendar.EventReminder{
			Method:  r.Method,
			Minutes: r.Minutes,
			// zero minutes ("at start time") must still be sent
			ForceSendFields: []string{"Minutes"},
		})
	}

	return &calendar.EventReminders{
		UseDefault:      false,
		Overrides:       overrides,
		ForceSendFields: []string{"UseDefault"},
	}
}

// recurrenceLine validates rule and renders it as an RRULE property line.
func recurrenceLine(rule string) (string, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(strings.ToUpper(rule), "RRULE:")

	parsed, err := rrule.StrToRRule(rule)
	if err != nil {
		return "", fmt.Errorf("%w: recurrence %q: %v", ErrInvalidRequest, rule, err)
	}
	return "RRULE:" + parsed.OrigOptions.RRuleString(), nil
}
