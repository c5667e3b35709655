// Package input turns user-typed strings into calendar event requests.
package input

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/drewfead/calbot/internal/calendar"
)

// ErrUnrecognized is wrapped by a ParseError when no accepted layout matched.
var ErrUnrecognized = errors.New("unrecognized date/time")

// ParseError reports which field failed to parse. Any ParseError rejects the
// whole request.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// layouts are tried in order; all but RFC3339 are read in the parser's
// location.
var layouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Parser reads date/time strings in a fixed location.
type Parser struct {
	loc     *time.Location
	natural *when.Parser
	now     func() time.Time
}

// NewParser returns a parser for loc. With natural set, strings no layout
// accepts are handed to a natural-language parser ("tomorrow 3pm").
func NewParser(loc *time.Location, natural bool) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	p := &Parser{loc: loc, now: time.Now}
	if natural {
		p.natural = when.New(nil)
		p.natural.Add(en.All...)
		p.natural.Add(common.All...)
	}
	return p
}

// Parse reads value as the named field.
func (p *Parser) Parse(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &ParseError{Field: field, Value: value, Err: errors.New("value is required")}
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, p.loc); err == nil {
			return t, nil
		}
	}

	if p.natural != nil {
		if t, ok := p.parseNatural(value); ok {
			return t, nil
		}
	}

	return time.Time{}, &ParseError{Field: field, Value: value, Err: ErrUnrecognized}
}

// parseNatural accepts a match only when it covers the whole input, so
// "lunch tomorrow" does not silently drop "lunch".
func (p *Parser) parseNatural(value string) (time.Time, bool) {
	result, err := p.natural.Parse(value, p.now().In(p.loc))
	if err != nil || result == nil || result.Index < 0 || result.Index+len(result.Text) > len(value) {
		return time.Time{}, false
	}

	rest := value[:result.Index] + value[result.Index+len(result.Text):]
	if strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) != -1 {
		return time.Time{}, false
	}
	return result.Time.In(p.loc), true
}

// clockPattern is HH:MM with optional :SS. Go's "15" layout also takes a
// one-digit hour, so the shape is checked first.
var clockPattern = regexp.MustCompile(`^\d{2}:\d{2}(:\d{2})?$`)

// ParseDateAndTime joins a YYYY-MM-DD date and an HH:MM[:SS] clock, as typed
// at separate prompts, and parses the result.
func (p *Parser) ParseDateAndTime(field, date, clock string) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, &ParseError{
			Field: field,
			Value: strings.TrimSpace(date + " " + clock),
			Err:   errors.New("both date and time are required"),
		}
	}
	if !clockPattern.MatchString(clock) {
		return time.Time{}, &ParseError{Field: field, Value: date + " " + clock, Err: ErrUnrecognized}
	}
	layout := "2006-01-02T15:04"
	if len(clock) > len("15:04") {
		layout = "2006-01-02T15:04:05"
	}
	t, err := time.ParseInLocation(layout, date+"T"+clock, p.loc)
	if err != nil {
		return time.Time{}, &ParseError{Field: field, Value: date + " " + clock, Err: ErrUnrecognized}
	}
	return t, nil
}

// Fields are the raw strings collected by an input surface.
type Fields struct {
	Title       string
	Description string
	Location    string
	Start       string
	End         string
	Repeat      string
}

// Request parses f into a validated EventRequest. The first bad field
// rejects the whole request.
func (p *Parser) Request(f Fields) (calendar.EventRequest, error) {
	start, err := p.Parse("start", f.Start)
	if err != nil {
		return calendar.EventRequest{}, err
	}
	end, err := p.Parse("end", f.End)
	if err != nil {
		return calendar.EventRequest{}, err
	}

	req := calendar.EventRequest{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Location:    strings.TrimSpace(f.Location),
		Start:       start,
		End:         end,
		Recurrence:  strings.TrimSpace(f.Repeat),
	}
	if err := req.Validate(); err != nil {
		return calendar.EventRequest{}, err
	}
	return req, nil
}
