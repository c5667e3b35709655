package bot

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
)

func pingInfo() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "ping",
		Description: "Check that the bot is alive.",
	}
}

func pingHandler(started time.Time) HandlerFunc {
	return func(_ context.Context, r Responder, i *discordgo.InteractionCreate) error {
		return r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Flags: discordgo.MessageFlagsEphemeral,
				Embeds: []*discordgo.MessageEmbed{
					{
						Title: "Pong!",
						Fields: []*discordgo.MessageEmbedField{
							{
								Name:  "Uptime",
								Value: time.Since(started).Round(time.Second).String(),
							},
							{
								Name:   "Go version",
								Value:  runtime.Version(),
								Inline: true,
							},
							{
								Name:   "Goroutines",
								Value:  fmt.Sprintf("%d", runtime.NumGoroutine()),
								Inline: true,
							},
						},
					},
				},
			},
		})
	}
}
