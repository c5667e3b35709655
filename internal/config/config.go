package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "CALBOT"

// Auth modes.
const (
	AuthModeUser           = "user"
	AuthModeServiceAccount = "service_account"
	AuthModeConsole        = "console"
)

// Token store backends.
const (
	TokenStoreFile   = "file"
	TokenStoreSQLite = "sqlite"
)

// Config holds all calbot configuration.
type Config struct {
	Log      LogConfig
	Auth     AuthConfig
	Calendar CalendarConfig
	Discord  DiscordConfig
	Bot      BotConfig
	Metrics  MetricsConfig
}

type LogConfig struct {
	Level string
}

// AuthConfig selects and configures the credential provider.
type AuthConfig struct {
	// Mode is one of user, service_account or console. Empty means detect
	// from whichever credential source is set.
	Mode string

	CredentialsPath  string
	ClientConfigJSON string

	ServiceAccountPath string
	ServiceAccountJSON string
	Impersonate        string

	TokenStore   string
	TokenPath    string
	DatabasePath string
	Account      string

	RedirectPort int
	OpenBrowser  bool
}

type CalendarConfig struct {
	ID        string
	TimeZone  string
	Endpoint  string
	Reminders []Reminder
}

// Reminder is one reminder override attached to every created event.
type Reminder struct {
	Method  string
	Minutes int64
}

type DiscordConfig struct {
	Token   string
	AppID   string
	GuildID string
}

type BotConfig struct {
	NaturalDates    bool
	RateLimitPerMin int
	SubmitTimeout   time.Duration
}

type MetricsConfig struct {
	Addr string
}

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads calbot.yaml (from path, or from ./ and ~/.config/calbot when path
// is empty) and overlays CALBOT_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("discord.token", "CALBOT_DISCORD_TOKEN", "DISCORD_TOKEN")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(ExpandHome(path))
	} else {
		v.SetConfigName("calbot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Log.Level = v.GetString("log.level")

	cfg.Auth.Mode = strings.ToLower(v.GetString("auth.mode"))
	cfg.Auth.CredentialsPath = ExpandHome(v.GetString("auth.credentials_path"))
	cfg.Auth.ClientConfigJSON = v.GetString("auth.client_config_json")
	cfg.Auth.ServiceAccountPath = ExpandHome(v.GetString("auth.service_account_path"))
	cfg.Auth.ServiceAccountJSON = v.GetString("auth.service_account_json")
	cfg.Auth.Impersonate = v.GetString("auth.impersonate")
	cfg.Auth.TokenStore = strings.ToLower(v.GetString("auth.token_store"))
	cfg.Auth.TokenPath = ExpandHome(v.GetString("auth.token_path"))
	cfg.Auth.DatabasePath = ExpandHome(v.GetString("auth.database_path"))
	cfg.Auth.Account = v.GetString("auth.account")
	cfg.Auth.RedirectPort = v.GetInt("auth.redirect_port")
	cfg.Auth.OpenBrowser = v.GetBool("auth.open_browser")

	cfg.Calendar.ID = v.GetString("calendar.id")
	cfg.Calendar.TimeZone = v.GetString("calendar.time_zone")
	cfg.Calendar.Endpoint = v.GetString("calendar.endpoint")
	reminders, err := parseReminders(v.Get("calendar.reminders"))
	if err != nil {
		return nil, err
	}
	cfg.Calendar.Reminders = reminders

	cfg.Discord.Token = v.GetString("discord.token")
	cfg.Discord.AppID = v.GetString("discord.app_id")
	cfg.Discord.GuildID = v.GetString("discord.guild_id")

	cfg.Bot.NaturalDates = v.GetBool("bot.natural_dates")
	cfg.Bot.RateLimitPerMin = v.GetInt("bot.rate_limit_per_min")
	cfg.Bot.SubmitTimeout = v.GetDuration("bot.submit_timeout")

	cfg.Metrics.Addr = v.GetString("metrics.addr")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	// Keys without a meaningful default are still registered so that
	// AutomaticEnv can resolve them.
	v.SetDefault("auth.mode", "")
	v.SetDefault("auth.credentials_path", CredentialsPath())
	v.SetDefault("auth.client_config_json", "")
	v.SetDefault("auth.service_account_path", "")
	v.SetDefault("auth.service_account_json", "")
	v.SetDefault("auth.impersonate", "")
	v.SetDefault("auth.token_store", TokenStoreFile)
	v.SetDefault("auth.token_path", TokenPath())
	v.SetDefault("auth.database_path", DatabasePath())
	v.SetDefault("auth.account", "default")
	v.SetDefault("auth.redirect_port", 0)
	v.SetDefault("auth.open_browser", true)

	v.SetDefault("calendar.id", "primary")
	v.SetDefault("calendar.time_zone", "America/Sao_Paulo")
	v.SetDefault("calendar.endpoint", "")
	v.SetDefault("calendar.reminders", "email:1440,popup:10")

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.app_id", "")
	v.SetDefault("discord.guild_id", "")

	v.SetDefault("bot.natural_dates", false)
	v.SetDefault("bot.rate_limit_per_min", 10)
	v.SetDefault("bot.submit_timeout", "30s")

	v.SetDefault("metrics.addr", "")
}

// Validate checks values that would otherwise only fail at submission time.
func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case "", AuthModeUser, AuthModeServiceAccount, AuthModeConsole:
	default:
		return fmt.Errorf("%w: unknown auth.mode %q", ErrInvalidConfig, c.Auth.Mode)
	}

	switch c.Auth.TokenStore {
	case TokenStoreFile, TokenStoreSQLite:
	default:
		return fmt.Errorf("%w: unknown auth.token_store %q", ErrInvalidConfig, c.Auth.TokenStore)
	}

	if c.Calendar.ID == "" {
		return fmt.Errorf("%w: calendar.id is empty", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	for _, r := range c.Calendar.Reminders {
		if r.Method != "email" && r.Method != "popup" {
			return fmt.Errorf("%w: reminder method %q (want email or popup)", ErrInvalidConfig, r.Method)
		}
		// Google Calendar accepts overrides of up to four weeks.
		if r.Minutes < 0 || r.Minutes > 40320 {
			return fmt.Errorf("%w: reminder minutes %d out of range", ErrInvalidConfig, r.Minutes)
		}
	}

	if c.Bot.RateLimitPerMin < 0 {
		return fmt.Errorf("%w: bot.rate_limit_per_min must not be negative", ErrInvalidConfig)
	}
	if c.Bot.SubmitTimeout <= 0 {
		return fmt.Errorf("%w: bot.submit_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Location resolves the configured calendar time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Calendar.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: calendar.time_zone %q: %v", ErrInvalidConfig, c.Calendar.TimeZone, err)
	}
	return loc, nil
}

// RequireDiscord reports missing settings needed to connect the bot. An
// empty discord.app_id is allowed; the bot then registers commands under its
// own user ID.
func (c *Config) RequireDiscord() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("%w: discord.token (CALBOT_DISCORD_TOKEN or DISCORD_TOKEN) is not set", ErrInvalidConfig)
	}
	return nil
}

// parseReminders accepts either a list of {method, minutes} maps from the
// config file or a "method:minutes,..." string from the environment.
func parseReminders(raw interface{}) ([]Reminder, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return parseReminderString(val)
	case []interface{}:
		reminders := make([]Reminder, 0, len(val))
		for i, item := range val {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: calendar.reminders[%d] is not a mapping", ErrInvalidConfig, i)
			}
			method, _ := m["method"].(string)
			minutes, err := toInt64(m["minutes"])
			if err != nil {
				return nil, fmt.Errorf("%w: calendar.reminders[%d].minutes: %v", ErrInvalidConfig, i, err)
			}
			reminders = append(reminders, Reminder{Method: strings.ToLower(method), Minutes: minutes})
		}
		return reminders, nil
	default:
		return nil, fmt.Errorf("%w: calendar.reminders has unsupported type %T", ErrInvalidConfig, raw)
	}
}

func parseReminderString(s string) ([]Reminder, error) {
	var reminders []Reminder
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		method, minutes, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: reminder %q (want method:minutes)", ErrInvalidConfig, part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(minutes), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: reminder %q: %v", ErrInvalidConfig, part, err)
		}
		reminders = append(reminders, Reminder{Method: strings.ToLower(strings.TrimSpace(method)), Minutes: n})
	}
	return reminders, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
