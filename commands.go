package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/urfave/cli/v3"

	"github.com/drewfead/calbot/internal/auth"
	"github.com/drewfead/calbot/internal/bot"
	"github.com/drewfead/calbot/internal/calendar"
	"github.com/drewfead/calbot/internal/config"
	"github.com/drewfead/calbot/internal/console"
	"github.com/drewfead/calbot/internal/input"
	"github.com/drewfead/calbot/internal/metrics"
)

type app struct {
	cfg *config.Config
	// stdin is shared by the console prompts and the console OAuth flow.
	stdin  *bufio.Reader
	stdout io.Writer
}

func (a *app) runAdd(ctx context.Context, cmd *cli.Command) error {
	provider, closeStore, err := a.provider(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	submitter, policy, err := a.submitter(provider, "console")
	if err != nil {
		return err
	}

	c := console.New(a.stdin, a.stdout, input.NewParser(policy.Location, false), submitter)
	return c.Run(ctx, console.Preset{
		Title:       cmd.String("title"),
		Description: cmd.String("description"),
		Location:    cmd.String("location"),
		Start:       cmd.String("start"),
		End:         cmd.String("end"),
		Repeat:      cmd.String("repeat"),
	})
}

func (a *app) runAuth(ctx context.Context, cmd *cli.Command) error {
	provider, closeStore, err := a.provider(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	switch p := provider.(type) {
	case *auth.ServiceAccountProvider:
		fmt.Fprintf(a.stdout, "Using service account %s; no interactive authorization needed.\n", p.Email())
		return nil
	case *auth.OAuthProvider:
		if cmd.Bool("force") {
			_, err = p.Reauthorize(ctx)
		} else {
			_, err = p.Token(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "Authorized. Token cached for later runs.")
		return nil
	default:
		return fmt.Errorf("unsupported provider %T", provider)
	}
}

func (a *app) runBot(ctx context.Context, _ *cli.Command) error {
	if err := a.cfg.RequireDiscord(); err != nil {
		return err
	}

	provider, closeStore, err := a.provider(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := prepareBotCredentials(ctx, provider); err != nil {
		return err
	}

	submitter, policy, err := a.submitter(provider, "discord")
	if err != nil {
		return err
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	session, err := discordgo.New("Bot " + a.cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := bot.New(session, input.NewParser(policy.Location, a.cfg.Bot.NaturalDates), submitter, bot.Options{
		AppID:           a.cfg.Discord.AppID,
		GuildID:         a.cfg.Discord.GuildID,
		RateLimitPerMin: a.cfg.Bot.RateLimitPerMin,
		SubmitTimeout:   a.cfg.Bot.SubmitTimeout,
	})
	return b.Run(ctx)
}

// prepareBotCredentials runs any interactive authorization up front and then
// turns it off: a slash command has nobody to answer a browser prompt.
func prepareBotCredentials(ctx context.Context, provider auth.Provider) error {
	p, ok := provider.(*auth.OAuthProvider)
	if !ok {
		return nil
	}
	if _, err := p.Token(ctx); err != nil {
		return fmt.Errorf("bot credentials: %w", err)
	}
	p.DisableInteractive()
	return nil
}

// provider builds the configured credential provider and returns a func
// that releases its token store.
func (a *app) provider(ctx context.Context) (auth.Provider, func(), error) {
	noop := func() {}

	var store auth.TokenStore
	if auth.ResolveMode(a.cfg.Auth) != config.AuthModeServiceAccount {
		s, err := auth.OpenTokenStore(ctx, a.cfg.Auth)
		if err != nil {
			return nil, noop, err
		}
		store = s
	}

	closeStore := func() {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("unable to close token store", "error", err)
			}
		}
	}

	p, err := auth.NewProvider(a.cfg.Auth, store, a.stdin, a.stdout)
	if err != nil {
		closeStore()
		if errors.Is(err, auth.ErrMissingCredentials) {
			return nil, noop, fmt.Errorf("%w\n\nSee calbot.example.yaml: set auth.credentials_path to an OAuth client secret, "+
				"CALBOT_AUTH_CLIENT_CONFIG_JSON, or a service account key", err)
		}
		return nil, noop, err
	}
	return p, closeStore, nil
}

func (a *app) submitter(provider auth.Provider, surface string) (*calendar.Submitter, calendar.Policy, error) {
	policy, err := policyFromConfig(a.cfg)
	if err != nil {
		return nil, policy, err
	}
	return calendar.NewSubmitter(provider, policy,
		calendar.WithCalendarID(a.cfg.Calendar.ID),
		calendar.WithEndpoint(a.cfg.Calendar.Endpoint),
		calendar.WithSurface(surface),
	), policy, nil
}

func policyFromConfig(cfg *config.Config) (calendar.Policy, error) {
	loc, err := cfg.Location()
	if err != nil {
		return calendar.Policy{}, err
	}

	reminders := make([]calendar.Reminder, 0, len(cfg.Calendar.Reminders))
	for _, r := range cfg.Calendar.Reminders {
		reminders = append(reminders, calendar.Reminder{Method: r.Method, Minutes: r.Minutes})
	}
	return calendar.Policy{Location: loc, Reminders: reminders}, nil
}
