package main

import (
	"tools.zach/dev/ccrpc/internal/activity"
	"tools.zach/dev/ccrpc/internal/discord"
)

// ///////////////////////////////////////////////
// Activity Mapping
// ///////////////////////////////////////////////

// toDiscordActivity converts an [activity.Payload] into the [discord.Activity]
// wire type, omitting empty optional sections.
func toDiscordActivity(p activity.Payload) *discord.Activity {
	da := &discord.Activity{
		Details: p.Details,
		State:   p.State,
	}
	if p.Start != 0 {
		da.Timestamps = &discord.Timestamps{Start: p.Start}
	}
	if p.LargeImage != "" || p.LargeText != "" {
		da.Assets = &discord.Assets{
			LargeImage: p.LargeImage,
			LargeText:  p.LargeText,
		}
	}
	return da
}

// ///////////////////////////////////////////////
// Presence Service
// ///////////////////////////////////////////////

// discordClient is the part of [discord.Client] the daemon drives.
type discordClient interface {
	Connect() error
	SetActivity(*discord.Activity) error
	ClearActivity() error
	Close() error
}

// presence adapts a Discord client to the daemon's Service interface.
type presence struct {
	client discordClient
}

func newPresence(c discordClient) *presence {
	return &presence{client: c}
}

func (p *presence) Connect() error { return p.client.Connect() }

func (p *presence) Publish(a activity.Payload) error {
	return p.client.SetActivity(toDiscordActivity(a))
}

func (p *presence) Clear() error { return p.client.ClearActivity() }

func (p *presence) Close() error { return p.client.Close() }
