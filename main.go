package main

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"

	"github.com/drewfead/calbot/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().Run(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	a := &app{stdin: bufio.NewReader(os.Stdin), stdout: os.Stdout}

	return &cli.Command{
		Name:  "calbot",
		Usage: "create Google Calendar events from the terminal or a Discord bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to calbot.yaml (default: ./calbot.yaml or ~/.config/calbot/calbot.yaml)",
				Sources: cli.EnvVars("CALBOT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "calendar",
				Usage: "calendar ID to create events in",
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "create one event, prompting for any field not given as a flag",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "event title"},
					&cli.StringFlag{Name: "description", Usage: "event description"},
					&cli.StringFlag{Name: "location", Usage: "event location"},
					&cli.StringFlag{Name: "start", Usage: "start, e.g. 2024-01-10T09:00"},
					&cli.StringFlag{Name: "end", Usage: "end, e.g. 2024-01-10T09:30"},
					&cli.StringFlag{Name: "repeat", Usage: "recurrence rule, e.g. FREQ=WEEKLY;COUNT=4"},
				},
				Action: a.runAdd,
			},
			{
				Name:  "auth",
				Usage: "obtain and cache Google credentials",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "discard the cached token and authorize again"},
				},
				Action: a.runAuth,
			},
			{
				Name:   "bot",
				Usage:  "serve the /create-event Discord slash command",
				Action: a.runBot,
			},
		},
	}
}

// setup loads .env and configuration and installs the logger. Flags win over
// environment, which wins over .env and the config file.
func (a *app) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ctx, err
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("calendar") {
		cfg.Calendar.ID = cmd.String("calendar")
	}

	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return ctx, err
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}),
	))

	a.cfg = cfg
	return ctx, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, errors.Join(config.ErrInvalidConfig, err)
	}
	return level, nil
}
