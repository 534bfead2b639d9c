package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// bulkDeleteMaxAge is the age limit Discord applies to bulk deletes.
const bulkDeleteMaxAge = 14 * 24 * time.Hour

func (b *Bot) registerCommands() {
	b.add(&command{name: "ping", usage: "ping", help: "Test bot latency", run: b.cmdPing})
	b.add(&command{name: "info", usage: "info", help: "Bot information", run: b.cmdInfo})
	b.add(&command{name: "server", usage: "server", help: "Server information", guildOnly: true, run: b.cmdServer})
	b.add(&command{name: "user", usage: "user [@user]", help: "User information", guildOnly: true, run: b.cmdUser})
	b.add(&command{
		name: "clear", usage: "clear [amount]", help: "Delete messages (requires permission)",
		guildOnly: true, perm: discordgo.PermissionManageMessages, run: b.cmdClear,
	})
	b.add(&command{name: "help", usage: "help", help: "Show this command list", run: b.cmdHelp})
	b.add(&command{name: "say", usage: "say <message>", help: "Repeat a message", run: b.cmdSay})
	b.add(&command{name: "embed", usage: `embed <title|"long title"> <description>`, help: "Post an embed", run: b.cmdEmbed})
	b.registerAttendanceCommands()
}

func (b *Bot) cmdPing(_ context.Context, inv *invocation) error {
	latency := b.session.HeartbeatLatency().Milliseconds()
	e := newEmbed("🏓 Pong!", fmt.Sprintf("Latency: **%dms**", latency), colorGreen, b.now())
	b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	return nil
}

func (b *Bot) cmdInfo(_ context.Context, inv *invocation) error {
	guilds := b.session.Guilds()
	users := 0
	for _, g := range guilds {
		users += g.MemberCount
	}
	e := newEmbed(
		fmt.Sprintf("ℹ️ %s Information", b.opts.Name),
		"A Discord bot with attendance tracking",
		colorBlue, b.now(),
	)
	e.Fields = []*discordgo.MessageEmbedField{
		field("📊 Statistics", fmt.Sprintf("Servers: %d\nUsers: %d", len(guilds), users), true),
		field("⚡ Latency", fmt.Sprintf("%dms", b.session.HeartbeatLatency().Milliseconds()), true),
		field("🔧 Version", b.opts.Version, true),
		field("👨‍💻 Developer", "Built with discordgo", false),
		field("📝 Prefix", "`"+b.opts.Prefix+"`", false),
	}
	b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	return nil
}

func (b *Bot) cmdServer(_ context.Context, inv *invocation) error {
	g, err := b.session.Guild(inv.guildID())
	if err != nil {
		return fmt.Errorf("load guild: %w", err)
	}
	online := 0
	for _, p := range g.Presences {
		if p.Status != discordgo.StatusOffline && p.Status != "" {
			online++
		}
	}
	text, voice := 0, 0
	for _, c := range g.Channels {
		switch c.Type {
		case discordgo.ChannelTypeGuildText:
			text++
		case discordgo.ChannelTypeGuildVoice:
			voice++
		}
	}
	created := "-"
	if ts, err := discordgo.SnowflakeTimestamp(g.ID); err == nil {
		created = ts.Format(dateLayout)
	}

	e := newEmbed("🏠 Server Information: "+g.Name, "", colorGold, b.now())
	e.Fields = []*discordgo.MessageEmbedField{
		field("👥 Members", fmt.Sprintf("Total: %d\nOnline: %d", g.MemberCount, online), true),
		field("📅 Created", created, true),
		field("👑 Owner", "<@"+g.OwnerID+">", true),
		field("📝 Channels", fmt.Sprintf("Text: %d\nVoice: %d", text, voice), true),
		field("🎭 Roles", strconv.Itoa(len(g.Roles)), true),
		field("😀 Emojis", strconv.Itoa(len(g.Emojis)), true),
	}
	if g.Icon != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: g.IconURL("")}
	}
	e.Footer = &discordgo.MessageEmbedFooter{Text: "Server ID: " + g.ID}
	b.replyEmbed(inv.channelID(), e)
	return nil
}

func (b *Bot) cmdUser(_ context.Context, inv *invocation) error {
	targetID := inv.msg.Author.ID
	if first, _ := splitFirst(inv.args); first != "" {
		id, ok := mentionID(first)
		if !ok {
			return usageError{"Mention a user, for example @alice."}
		}
		targetID = id
	}
	member, err := b.session.GuildMember(inv.guildID(), targetID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	user := member.User
	if user == nil {
		user = &discordgo.User{ID: targetID}
	}

	roles := make([]string, 0, len(member.Roles))
	for _, r := range member.Roles {
		roles = append(roles, "<@&"+r+">")
	}
	rolesText := "No roles"
	if len(roles) > 0 {
		rolesText = strings.Join(roles, " ")
	}
	status, activity := "Offline", "None"
	if p, err := b.session.Presence(inv.guildID(), targetID); err == nil && p != nil {
		if p.Status != "" {
			status = capitalize(string(p.Status))
		}
		if len(p.Activities) > 0 && p.Activities[0] != nil {
			activity = p.Activities[0].Name
		}
	}
	created := "-"
	if ts, err := discordgo.SnowflakeTimestamp(targetID); err == nil {
		created = ts.Format(dateLayout)
	}
	joined := "-"
	if !member.JoinedAt.IsZero() {
		joined = member.JoinedAt.Format(dateLayout)
	}

	e := newEmbed("👤 User Information: "+user.Username, "", colorBlue, b.now())
	e.Fields = []*discordgo.MessageEmbedField{
		field("🆔 ID", targetID, true),
		field("📅 Joined", joined, true),
		field("📅 Created", created, true),
		field("🎭 Roles", rolesText, false),
		field("📊 Status", status, true),
		field("🎮 Activity", activity, true),
	}
	if user.Avatar != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: user.AvatarURL("")}
	}
	b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	return nil
}

func (b *Bot) cmdClear(_ context.Context, inv *invocation) error {
	amount := 5
	if first, _ := splitFirst(inv.args); first != "" {
		n, err := strconv.Atoi(first)
		if err != nil || n < 1 {
			return usageError{"Amount must be a number between 1 and 100."}
		}
		amount = n
	}
	if amount > 100 {
		b.reply(inv.channelID(), "❌ Maximum 100 messages can be deleted at once!")
		return nil
	}

	history, err := b.session.ChannelMessages(inv.channelID(), amount, inv.msg.ID, "", "")
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	if err := b.session.ChannelMessageDelete(inv.channelID(), inv.msg.ID); err != nil {
		b.logger.Warn("delete command message failed", zap.Error(err))
	}

	cutoff := b.now().Add(-bulkDeleteMaxAge)
	var recent []string
	deleted := 0
	for _, m := range history {
		if m.Timestamp.After(cutoff) {
			recent = append(recent, m.ID)
			continue
		}
		if err := b.session.ChannelMessageDelete(inv.channelID(), m.ID); err == nil {
			deleted++
		}
	}
	if len(recent) > 0 {
		if err := b.session.ChannelMessagesBulkDelete(inv.channelID(), recent); err != nil {
			return fmt.Errorf("bulk delete: %w", err)
		}
		deleted += len(recent)
	}

	e := newEmbed("🗑️ Messages Deleted", fmt.Sprintf("Successfully deleted **%d** messages!", deleted), colorRed, b.now())
	confirm := b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	if confirm != nil {
		channelID, messageID := inv.channelID(), confirm.ID
		b.after(b.opts.ClearConfirmTTL, func() {
			if err := b.session.ChannelMessageDelete(channelID, messageID); err != nil {
				b.logger.Debug("delete clear confirmation failed", zap.Error(err))
			}
		})
	}
	return nil
}

func (b *Bot) cmdHelp(_ context.Context, inv *invocation) error {
	e := newEmbed(fmt.Sprintf("📚 %s Commands", b.opts.Name), "Here are the available commands:", colorBlue, b.now())
	for _, name := range b.order {
		c := b.commands[name]
		e.Fields = append(e.Fields, field(b.opts.Prefix+c.usage, c.help, false))
	}
	e.Fields = append(e.Fields, field(
		"💡 Tips",
		"Attendance commands other than `"+b.opts.Prefix+"clockin` need the Manage Server permission.",
		false,
	))
	b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	return nil
}

func (b *Bot) cmdSay(_ context.Context, inv *invocation) error {
	if inv.args == "" {
		return usageError{"Tell me what to say."}
	}
	if err := b.session.ChannelMessageDelete(inv.channelID(), inv.msg.ID); err != nil {
		b.logger.Warn("delete say command failed", zap.Error(err))
	}
	b.reply(inv.channelID(), inv.args)
	return nil
}

func (b *Bot) cmdEmbed(_ context.Context, inv *invocation) error {
	title, description, ok := splitTitle(inv.args)
	if !ok {
		return usageError{"An embed needs a title and a description."}
	}
	e := newEmbed(title, description, randomColor(), b.now())
	e.Footer = &discordgo.MessageEmbedFooter{Text: "Created by " + inv.msg.Author.Username}
	b.replyEmbed(inv.channelID(), e)
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
