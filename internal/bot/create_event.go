package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/drewfead/calbot/internal/calendar"
	"github.com/drewfead/calbot/internal/input"
)

const (
	msgGenericFailure = "Something went wrong while creating the event. Please try again later."
	msgRateLimited    = "You are creating events too quickly. Please wait a minute and try again."
)

// Submitter creates one event.
type Submitter interface {
	Submit(ctx context.Context, req calendar.EventRequest) calendar.Result
}

type createEvent struct {
	parser    *input.Parser
	submitter Submitter
	limiter   *rateLimiter
	timeout   time.Duration
}

func (c *createEvent) info() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "create-event",
		Description: "Create a Google Calendar event.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "title",
				Description: "The title of the event",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "start",
				Description: "When the event starts, e.g. 2024-01-10T09:00",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "end",
				Description: "When the event ends, e.g. 2024-01-10T09:30",
				Required:    true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "description",
				Description: "Detailed description of the event",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "location",
				Description: "Location of the event",
			},
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "repeat",
				Description: "Recurrence rule, e.g. FREQ=WEEKLY;COUNT=4",
			},
		},
	}
}

// handle defers the response, since the insert may outlast Discord's
// three second window, and then edits in the reply.
func (c *createEvent) handle(ctx context.Context, r Responder, i *discordgo.InteractionCreate) error {
	if err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return fmt.Errorf("defer response: %w", err)
	}

	msg := c.reply(ctx, interactionUser(i), optionMap(i.ApplicationCommandData().Options))

	if _, err := r.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &msg,
	}); err != nil {
		return fmt.Errorf("edit response: %w", err)
	}
	return nil
}

// reply runs one create-event command and returns the text shown to the
// user: the link, the parse or validation error, or a generic failure.
func (c *createEvent) reply(ctx context.Context, userID string, opts map[string]string) string {
	if err := c.limiter.Allow(userID); err != nil {
		slog.Warn("create-event rate limited", "user", userID)
		return msgRateLimited
	}

	req, err := c.parser.Request(input.Fields{
		Title:       opts["title"],
		Description: opts["description"],
		Location:    opts["location"],
		Start:       opts["start"],
		End:         opts["end"],
		Repeat:      opts["repeat"],
	})
	if err != nil {
		return userError(err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result := c.submitter.Submit(ctx, req)
	if !result.OK() {
		if errors.Is(result.Err, calendar.ErrInvalidRequest) {
			return userError(result.Err)
		}
		return msgGenericFailure
	}
	return fmt.Sprintf("Event **%s** created: %s", req.Title, result.Link)
}

func userError(err error) string {
	return fmt.Sprintf("Can't create the event\n```\n%s\n```", err.Error())
}
