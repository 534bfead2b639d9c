package bot

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Intents requested from the gateway. Members and presences feed the
// server/user commands and the welcome embeds; message content is needed for
// prefix commands.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildPresences |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// Session is the subset of the Discord API used by the bot and the feed.
type Session interface {
	// Open creates a websocket connection to Discord
	Open() error

	// Close closes the websocket connection to Discord
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler interface{}) func()

	// UpdateStatusComplex sends the given status update, untouched
	UpdateStatusComplex(data discordgo.UpdateStatusData) error

	// HeartbeatLatency is the round trip of the last gateway heartbeat
	HeartbeatLatency() time.Duration

	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbeds(channelID string, embeds []*discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error

	// ChannelMessages lists up to limit messages before beforeID
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)

	// ChannelMessagesBulkDelete deletes 2 to 100 messages younger than two weeks
	ChannelMessagesBulkDelete(channelID string, messages []string, options ...discordgo.RequestOption) error

	UserChannelPermissions(userID, channelID string, options ...discordgo.RequestOption) (int64, error)

	// Guild returns a guild, preferring the gateway state cache
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)

	// Presence returns a cached presence; Discord has no REST endpoint for it
	Presence(guildID, userID string) (*discordgo.Presence, error)

	// Guilds lists the guilds known to the state cache
	Guilds() []*discordgo.Guild
}

// DiscordSession implements Session, wrapping a discordgo.Session.
type DiscordSession struct {
	*discordgo.Session
	logger *zap.Logger
}

// NewDiscordSession builds a bot session with state tracking and Intents.
func NewDiscordSession(token string, logger *zap.Logger) (*DiscordSession, error) {
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackMembers = true
	s.State.TrackPresences = true
	return &DiscordSession{Session: s, logger: logger.Named("discord_session")}, nil
}

// Guild returns the cached guild when present, otherwise fetches it.
func (d *DiscordSession) Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error) {
	if d.State != nil {
		if g, err := d.State.Guild(guildID); err == nil {
			return g, nil
		}
	}
	g, err := d.Session.Guild(guildID, options...)
	if err != nil {
		d.logger.Warn("guild fetch failed", zap.String("guild_id", guildID), zap.Error(err))
	}
	return g, err
}

// GuildMember returns the cached member when present, otherwise fetches it.
func (d *DiscordSession) GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error) {
	if d.State != nil {
		if m, err := d.State.Member(guildID, userID); err == nil {
			return m, nil
		}
	}
	return d.Session.GuildMember(guildID, userID, options...)
}

func (d *DiscordSession) Presence(guildID, userID string) (*discordgo.Presence, error) {
	if d.State == nil {
		return nil, discordgo.ErrStateNotFound
	}
	return d.State.Presence(guildID, userID)
}

func (d *DiscordSession) Guilds() []*discordgo.Guild {
	if d.State == nil {
		return nil
	}
	d.State.RLock()
	defer d.State.RUnlock()
	out := make([]*discordgo.Guild, len(d.State.Guilds))
	copy(out, d.State.Guilds)
	return out
}

func (d *DiscordSession) ChannelMessageSendEmbed(
	channelID string,
	embed *discordgo.MessageEmbed,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.Session.ChannelMessageSendEmbed(channelID, embed, options...)
	if err != nil {
		d.logger.Error("error sending embed",
			zap.String("channel_id", channelID),
			zap.String("title", embed.Title),
			zap.Error(err),
		)
	}
	return msg, err
}
