package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/drewfead/calbot/internal/input"
)

// Options configures the command surface.
type Options struct {
	AppID           string
	GuildID         string
	RateLimitPerMin int
	SubmitTimeout   time.Duration
}

// Bot serves slash commands over an injected Discord session.
type Bot struct {
	session  *discordgo.Session
	registry *Registry
	appID    string
	guildID  string
}

func New(session *discordgo.Session, parser *input.Parser, submitter Submitter, opts Options) *Bot {
	return &Bot{
		session:  session,
		registry: newRegistry(parser, submitter, opts, time.Now()),
		appID:    opts.AppID,
		guildID:  opts.GuildID,
	}
}

func newRegistry(parser *input.Parser, submitter Submitter, opts Options, started time.Time) *Registry {
	reg := NewRegistry()

	ce := &createEvent{
		parser:    parser,
		submitter: submitter,
		limiter:   newRateLimiter(opts.RateLimitPerMin),
		timeout:   opts.SubmitTimeout,
	}
	reg.Add(ce.info(), ce.handle)
	reg.Add(pingInfo(), pingHandler(started))

	return reg
}

// Run connects, registers the commands and serves interactions until ctx
// is done.
func (b *Bot) Run(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.registry.Dispatch(ctx, s, i)
	})
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord session ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer b.session.Close()

	appID := commandAppID(b.appID, b.session.State)
	if err := b.registry.Register(b.session, appID, b.guildID); err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	slog.Info("bot running", "app_id", appID, "guild_id", b.guildID)

	<-ctx.Done()
	slog.Info("bot shutting down")
	return nil
}

// commandAppID picks the application commands are registered under: the
// configured ID, else the bot's own user from the READY state.
func commandAppID(configured string, state *discordgo.State) string {
	if configured != "" {
		return configured
	}
	if state != nil && state.User != nil {
		return state.User.ID
	}
	return ""
}
