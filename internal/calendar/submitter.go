package calendar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/drewfead/calbot/internal/metrics"
)

// CredentialSource yields an authenticated HTTP client per submission.
type CredentialSource interface {
	Client(ctx context.Context) (*http.Client, error)
}

// Result is the outcome of one submission. Exactly one of Link/Err is
// meaningful: the event either was fully created or was not created.
type Result struct {
	EventID string
	Link    string
	Err     error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Submitter validates an EventRequest, builds the payload and submits it with
// one insert call. It never retries.
type Submitter struct {
	creds      CredentialSource
	policy     Policy
	calendarID string
	endpoint   string
	surface    string
}

type SubmitterOption func(*Submitter)

// WithCalendarID targets a calendar other than "primary".
func WithCalendarID(id string) SubmitterOption {
	return func(s *Submitter) {
		if id != "" {
			s.calendarID = id
		}
	}
}

// WithEndpoint overrides the Calendar API base URL (used with mock servers).
func WithEndpoint(endpoint string) SubmitterOption {
	return func(s *Submitter) { s.endpoint = endpoint }
}

// WithSurface labels log lines and metrics with the input surface.
func WithSurface(surface string) SubmitterOption {
	return func(s *Submitter) { s.surface = surface }
}

func NewSubmitter(creds CredentialSource, policy Policy, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		creds:      creds,
		policy:     policy,
		calendarID: DefaultCalendarID,
		surface:    "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates the event. Invalid requests fail before credentials are
// requested or any network call is made.
func (s *Submitter) Submit(ctx context.Context, req EventRequest) Result {
	log := slog.With("surface", s.surface, "calendar", s.calendarID, "title", req.Title)

	if err := req.Validate(); err != nil {
		return s.fail(log, metrics.OutcomeInvalid, err)
	}
	event, err := BuildEvent(req, s.policy)
	if err != nil {
		return s.fail(log, metrics.OutcomeInvalid, err)
	}

	start := time.Now()
	defer func() { metrics.SubmitDuration.Observe(time.Since(start).Seconds()) }()

	httpClient, err := s.creds.Client(ctx)
	if err != nil {
		return s.fail(log, metrics.OutcomeNoCreds, err)
	}

	client, err := NewClient(ctx, httpClient, s.endpoint)
	if err != nil {
		return s.fail(log, metrics.OutcomeFailed, err)
	}

	created, err := client.CreateEvent(ctx, s.calendarID, event)
	if err != nil {
		return s.fail(log, metrics.OutcomeFailed, err)
	}

	metrics.EventsSubmitted.WithLabelValues(s.surface, metrics.OutcomeCreated).Inc()
	log.Info("event created", "event_id", created.Id, "link", created.HtmlLink)

	return Result{EventID: created.Id, Link: created.HtmlLink}
}

func (s *Submitter) fail(log *slog.Logger, outcome string, err error) Result {
	metrics.EventsSubmitted.WithLabelValues(s.surface, outcome).Inc()
	if errors.Is(err, ErrInvalidRequest) {
		log.Warn("event rejected", "error", err)
	} else {
		log.Error("event not created", "error", err)
	}
	return Result{Err: err}
}
