package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drewfead/calbot/internal/calendar"
	"github.com/drewfead/calbot/internal/input"
	"github.com/drewfead/calbot/internal/metrics"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []calendar.EventRequest
	result   calendar.Result
	deadline bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, req calendar.EventRequest) calendar.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	_, f.deadline = ctx.Deadline()
	return f.result
}

type fakeResponder struct {
	responses []*discordgo.InteractionResponse
	edits     []string
	editErr   error
}

func (f *fakeResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeResponder) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if edit.Content != nil {
		f.edits = append(f.edits, *edit.Content)
	}
	return &discordgo.Message{}, f.editErr
}

type fakeRegistrar struct {
	appID, guildID string
	commands       []*discordgo.ApplicationCommand
}

func (f *fakeRegistrar) ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.appID, f.guildID, f.commands = appID, guildID, cmds
	return cmds, nil
}

func newParser(t *testing.T) *input.Parser {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return input.NewParser(loc, false)
}

func command(name, userID string, opts map[string]string) *discordgo.InteractionCreate {
	var options []*discordgo.ApplicationCommandInteractionDataOption
	for k, v := range opts {
		options = append(options, &discordgo.ApplicationCommandInteractionDataOption{
			Name:  k,
			Type:  discordgo.ApplicationCommandOptionString,
			Value: v,
		})
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "g1",
		Member:  &discordgo.Member{User: &discordgo.User{ID: userID}},
		Data:    discordgo.ApplicationCommandInteractionData{Name: name, Options: options},
	}}
}

func TestCreateEvent_Reply(t *testing.T) {
	standup := map[string]string{"title": "Standup", "start": "2024-01-10T09:00", "end": "2024-01-10T09:30"}

	tests := []struct {
		name        string
		opts        map[string]string
		result      calendar.Result
		want        string
		wantSubmits int
	}{
		{
			name:        "created",
			opts:        standup,
			result:      calendar.Result{EventID: "e1", Link: "https://calendar.test/e1"},
			want:        "https://calendar.test/e1",
			wantSubmits: 1,
		},
		{
			name: "unparseable end",
			opts: map[string]string{"title": "Standup", "start": "2024-01-10T09:00", "end": "not-a-date"},
			want: `invalid end "not-a-date"`,
		},
		{
			name: "end before start",
			opts: map[string]string{"title": "Standup", "start": "2024-01-10T09:30", "end": "2024-01-10T09:00"},
			want: "must be before end",
		},
		{
			name:        "api failure is generic",
			opts:        standup,
			result:      calendar.Result{Err: errors.New("googleapi: Error 500: backend error")},
			want:        msgGenericFailure,
			wantSubmits: 1,
		},
		{
			name:        "invalid recurrence surfaces",
			opts:        map[string]string{"title": "Standup", "start": "2024-01-10T09:00", "end": "2024-01-10T09:30", "repeat": "FREQ=NEVER"},
			result:      calendar.Result{Err: errors.Join(calendar.ErrInvalidRequest, errors.New(`recurrence "FREQ=NEVER"`))},
			want:        "FREQ=NEVER",
			wantSubmits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubmitter{result: tt.result}
			ce := &createEvent{parser: newParser(t), submitter: sub, timeout: time.Second}

			got := ce.reply(context.Background(), "u1", tt.opts)

			assert.Contains(t, got, tt.want)
			assert.Len(t, sub.requests, tt.wantSubmits)
		})
	}
}

func TestCreateEvent_SubmitsParsedRequest(t *testing.T) {
	sub := &fakeSubmitter{result: calendar.Result{Link: "https://calendar.test/e1"}}
	ce := &createEvent{parser: newParser(t), submitter: sub, timeout: 30 * time.Second}

	ce.reply(context.Background(), "u1", map[string]string{
		"title":       "Standup",
		"start":       "2024-01-10T09:00",
		"end":         "2024-01-10T09:30",
		"description": "daily",
		"location":    "Room 1",
		"repeat":      "FREQ=DAILY;COUNT=5",
	})

	require.Len(t, sub.requests, 1)
	req := sub.requests[0]
	assert.Equal(t, "2024-01-10T09:00:00-03:00", req.Start.Format(time.RFC3339))
	assert.Equal(t, "daily", req.Description)
	assert.Equal(t, "Room 1", req.Location)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", req.Recurrence)
	assert.True(t, sub.deadline, "submission should be bounded by a timeout")
}

func TestCreateEvent_RateLimit(t *testing.T) {
	sub := &fakeSubmitter{result: calendar.Result{Link: "https://calendar.test/e"}}
	ce := &createEvent{parser: newParser(t), submitter: sub, limiter: newRateLimiter(1)}
	opts := map[string]string{"title": "Standup", "start": "2024-01-10T09:00", "end": "2024-01-10T09:30"}
	before := testutil.ToFloat64(metrics.CommandsRateLimited)

	assert.Contains(t, ce.reply(context.Background(), "u1", opts), "created")
	assert.Equal(t, msgRateLimited, ce.reply(context.Background(), "u1", opts))
	// buckets are per user
	assert.Contains(t, ce.reply(context.Background(), "u2", opts), "created")

	assert.Len(t, sub.requests, 2)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CommandsRateLimited))
}

func TestRateLimiter_ConcurrentFirstRequests(t *testing.T) {
	rl := newRateLimiter(1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	start := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if rl.Allow("u1") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, allowed, "one bucket per user, however the first requests interleave")
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := newRateLimiter(0)
	assert.Nil(t, rl)
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Allow("u1"))
	}
}

func TestRegistry_DispatchCreateEvent(t *testing.T) {
	sub := &fakeSubmitter{result: calendar.Result{Link: "https://calendar.test/e1"}}
	reg := newRegistry(newParser(t), sub, Options{RateLimitPerMin: 10}, time.Now())
	r := &fakeResponder{}

	reg.Dispatch(context.Background(), r, command("create-event", "u1", map[string]string{
		"title": "Standup", "start": "2024-01-10T09:00", "end": "2024-01-10T09:30",
	}))

	require.Len(t, r.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, r.responses[0].Type)
	require.Len(t, r.edits, 1)
	assert.Contains(t, r.edits[0], "https://calendar.test/e1")
}

func TestRegistry_DispatchUnknownAndIgnored(t *testing.T) {
	reg := newRegistry(newParser(t), &fakeSubmitter{}, Options{}, time.Now())
	r := &fakeResponder{}

	reg.Dispatch(context.Background(), r, command("nope", "u1", nil))
	require.Len(t, r.responses, 1)
	assert.Equal(t, "Unknown command", r.responses[0].Data.Content)

	component := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Type: discordgo.InteractionMessageComponent}}
	reg.Dispatch(context.Background(), r, component)
	reg.Dispatch(context.Background(), r, nil)
	assert.Len(t, r.responses, 1)
}

func TestRegistry_Ping(t *testing.T) {
	reg := newRegistry(newParser(t), &fakeSubmitter{}, Options{}, time.Now().Add(-time.Minute))
	r := &fakeResponder{}

	reg.Dispatch(context.Background(), r, command("ping", "u1", nil))

	require.Len(t, r.responses, 1)
	data := r.responses[0].Data
	require.Len(t, data.Embeds, 1)
	assert.Equal(t, "Pong!", data.Embeds[0].Title)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, data.Flags)
}

func TestRegistry_Register(t *testing.T) {
	reg := newRegistry(newParser(t), &fakeSubmitter{}, Options{}, time.Now())
	fr := &fakeRegistrar{}

	require.NoError(t, reg.Register(fr, "app", "guild"))
	assert.Equal(t, "app", fr.appID)
	assert.Equal(t, "guild", fr.guildID)

	var names []string
	for _, c := range fr.commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"create-event", "ping"}, names)

	var required []string
	for _, opt := range fr.commands[0].Options {
		if opt.Required {
			required = append(required, opt.Name)
		}
	}
	assert.Equal(t, "title,start,end", strings.Join(required, ","))
}

func TestInteractionUser(t *testing.T) {
	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "dm-user"}}}
	assert.Equal(t, "dm-user", interactionUser(dm))
	assert.Equal(t, "guild-user", interactionUser(command("ping", "guild-user", nil)))
	assert.Equal(t, "unknown", interactionUser(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}))
}

func TestCommandAppID(t *testing.T) {
	state := discordgo.NewState()
	state.User = &discordgo.User{ID: "bot-user"}

	assert.Equal(t, "configured", commandAppID("configured", state))
	assert.Equal(t, "bot-user", commandAppID("", state))
	assert.Empty(t, commandAppID("", nil))
	assert.Empty(t, commandAppID("", discordgo.NewState()))
}
