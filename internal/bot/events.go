package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) presence() discordgo.UpdateStatusData {
	return discordgo.UpdateStatusData{
		Status: string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{{
			Name: fmt.Sprintf("%shelp | %s v%s", b.opts.Prefix, b.opts.Name, b.opts.Version),
			Type: discordgo.ActivityTypeWatching,
		}},
	}
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	fields := []zap.Field{zap.Int("guilds", len(r.Guilds))}
	if r.User != nil {
		fields = append(fields, zap.String("user", r.User.Username))
	}
	b.logger.Info("logged in to discord", fields...)
	if err := b.session.UpdateStatusComplex(b.presence()); err != nil {
		b.logger.Warn("update presence failed", zap.Error(err))
	}
}

func (b *Bot) systemChannel(guildID string) (*discordgo.Guild, bool) {
	g, err := b.session.Guild(guildID)
	if err != nil || g == nil || g.SystemChannelID == "" {
		return nil, false
	}
	return g, true
}

func (b *Bot) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.User == nil {
		return
	}
	g, ok := b.systemChannel(m.GuildID)
	if !ok {
		return
	}
	e := newEmbed("🎉 Welcome!", fmt.Sprintf("Welcome **<@%s>** to **%s**!", m.User.ID, g.Name), colorGreen, b.now())
	e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: m.User.AvatarURL("")}
	e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Member #%d", g.MemberCount)}
	b.replyEmbed(g.SystemChannelID, e)
}

func (b *Bot) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member == nil || m.User == nil {
		return
	}
	g, ok := b.systemChannel(m.GuildID)
	if !ok {
		return
	}
	e := newEmbed("👋 Member Left", fmt.Sprintf("**%s** has left the server.", m.User.Username), colorRed, b.now())
	e.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Members remaining: %d", g.MemberCount)}
	b.replyEmbed(g.SystemChannelID, e)
}
