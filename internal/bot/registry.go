// Package bot is the Discord slash-command surface for creating events.
package bot

import (
	"context"
	"log/slog"
	"sort"

	"github.com/bwmarrin/discordgo"
)

// Responder is the part of *discordgo.Session handlers reply through.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// CommandRegistrar publishes slash commands.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

type HandlerFunc func(ctx context.Context, r Responder, i *discordgo.InteractionCreate) error

// Registry maps slash command names to their definitions and handlers.
type Registry struct {
	infos    map[string]*discordgo.ApplicationCommand
	handlers map[string]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		infos:    make(map[string]*discordgo.ApplicationCommand),
		handlers: make(map[string]HandlerFunc),
	}
}

func (reg *Registry) Add(info *discordgo.ApplicationCommand, handler HandlerFunc) {
	reg.infos[info.Name] = info
	reg.handlers[info.Name] = handler
}

// Commands returns the command definitions ordered by name.
func (reg *Registry) Commands() []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(reg.infos))
	for _, info := range reg.infos {
		cmds = append(cmds, info)
	}
	sort.Slice(cmds, func(a, b int) bool { return cmds[a].Name < cmds[b].Name })
	return cmds
}

// Register overwrites the application's commands with the registry's. An
// empty guildID registers them globally.
func (reg *Registry) Register(r CommandRegistrar, appID, guildID string) error {
	_, err := r.ApplicationCommandBulkOverwrite(appID, guildID, reg.Commands())
	return err
}

// Dispatch runs the handler for a slash command interaction. Other
// interaction types are ignored.
func (reg *Registry) Dispatch(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	name := i.ApplicationCommandData().Name
	handler, ok := reg.handlers[name]
	if !ok {
		if err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags:   discordgo.MessageFlagsEphemeral,
				Content: "Unknown command",
			},
		}); err != nil {
			slog.Warn("can't respond", "command", name, "error", err)
		}
		return
	}

	if err := handler(ctx, r, i); err != nil {
		slog.Error("handler error", "command", name, "user", interactionUser(i), "error", err)
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	m := make(map[string]string, len(options))
	for _, opt := range options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			m[opt.Name] = opt.StringValue()
		}
	}
	return m
}

// interactionUser returns the invoking user's ID; Member is set in guilds,
// User in DMs.
func interactionUser(i *discordgo.InteractionCreate) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.ID
	case i.User != nil:
		return i.User.ID
	default:
		return "unknown"
	}
}
