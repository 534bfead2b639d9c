package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"dbot/internal/attendance"
	"dbot/internal/queue"
)

// defaultReportDays applies when attendance is called without a window.
const defaultReportDays = 7

func (b *Bot) registerAttendanceCommands() {
	manage := int64(discordgo.PermissionManageServer)
	b.add(&command{
		name: "register", usage: "register @user [username]", help: "Register a user for attendance",
		guildOnly: true, perm: manage, run: b.cmdRegister,
	})
	b.add(&command{
		name: "unregister", usage: "unregister @user", help: "Remove a user from this server's attendance",
		guildOnly: true, perm: manage, run: b.cmdUnregister,
	})
	b.add(&command{
		name: "rename", usage: "rename @user <username>", help: "Change a registered user's name",
		guildOnly: true, perm: manage, run: b.cmdRename,
	})
	b.add(&command{
		name: "users", usage: "users", help: "List registered users",
		guildOnly: true, perm: manage, run: b.cmdUsers,
	})
	b.add(&command{
		name: "clockin", usage: "clockin [notes]", help: "Clock in with an image attached",
		guildOnly: true, run: b.cmdClockIn,
	})
	b.add(&command{
		name: "attendance", usage: "attendance [days]", help: "Attendance report (1-30 days)",
		guildOnly: true, perm: manage, run: b.cmdAttendance,
	})
}

// targetUser reads the leading @mention of the arguments.
func targetUser(args string) (id, rest string, err error) {
	first, rest := splitFirst(args)
	id, ok := mentionID(first)
	if !ok {
		return "", "", usageError{"Mention the user, for example @alice."}
	}
	return id, rest, nil
}

func displayName(m *discordgo.Member, u *discordgo.User) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if m != nil && m.User != nil {
		u = m.User
	}
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func mentioned(msg *discordgo.Message, id string) *discordgo.User {
	for _, u := range msg.Mentions {
		if u != nil && u.ID == id {
			return u
		}
	}
	return nil
}

func (b *Bot) cmdRegister(ctx context.Context, inv *invocation) error {
	platformID, username, err := targetUser(inv.args)
	if err != nil {
		return err
	}
	user := mentioned(inv.msg, platformID)
	member, merr := b.session.GuildMember(inv.guildID(), platformID)
	if merr != nil {
		b.logger.Debug("member lookup failed", zap.String("user_id", platformID), zap.Error(merr))
		member = nil
	}
	if username == "" {
		username = displayName(member, user)
	}
	if username == "" {
		return usageError{"Could not resolve a display name, pass one explicitly."}
	}
	avatar := ""
	if member != nil && member.User != nil {
		user = member.User
	}
	if user != nil && user.Avatar != "" {
		avatar = user.AvatarURL("")
	}

	out, err := b.registry.RegisterUser(ctx, attendance.RegisterRequest{
		ActorID:    inv.msg.Author.ID,
		PlatformID: platformID,
		Username:   username,
		AvatarURL:  avatar,
		ServerID:   inv.serverID,
		JoinedAt:   b.now(),
	})
	if err != nil {
		return err
	}
	switch out.Status {
	case attendance.RegisterAlreadyInServer:
		b.reply(inv.channelID(), fmt.Sprintf("ℹ️ **%s** is already registered in this server.", out.User.Username))
	case attendance.RegisterLinkedServer:
		e := newEmbed("✅ User Registered",
			fmt.Sprintf("**%s** (<@%s>) is now registered in this server.", out.User.Username, platformID),
			colorGreen, b.now())
		b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	case attendance.RegisterNewUser:
		e := newEmbed("✅ User Registered",
			fmt.Sprintf("Registered **%s** (<@%s>).", out.User.Username, platformID),
			colorGreen, b.now())
		b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	}
	return nil
}

func (b *Bot) cmdUnregister(ctx context.Context, inv *invocation) error {
	platformID, _, err := targetUser(inv.args)
	if err != nil {
		return err
	}
	out, err := b.registry.UnregisterUser(ctx, platformID, inv.serverID)
	if err != nil {
		return err
	}
	switch out.Status {
	case attendance.UnregisterNotRegistered:
		b.reply(inv.channelID(), fmt.Sprintf("❌ <@%s> is not registered.", platformID))
	case attendance.UnregisterNotInServer:
		b.reply(inv.channelID(), fmt.Sprintf("❌ **%s** is not registered in this server.", out.User.Username))
	case attendance.Unregistered:
		e := newEmbed("🗑️ User Unregistered",
			fmt.Sprintf("**%s** was removed from this server's attendance.", out.User.Username),
			colorOrange, b.now())
		b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	}
	return nil
}

func (b *Bot) cmdRename(ctx context.Context, inv *invocation) error {
	platformID, username, err := targetUser(inv.args)
	if err != nil {
		return err
	}
	if username == "" {
		return usageError{"Give the new username."}
	}
	out, err := b.registry.ChangeUsername(ctx, platformID, username)
	if err != nil {
		return err
	}
	switch out.Status {
	case attendance.RenameUserNotFound:
		b.reply(inv.channelID(), fmt.Sprintf("❌ <@%s> is not registered.", platformID))
	case attendance.Renamed:
		e := newEmbed("✏️ Username Changed",
			fmt.Sprintf("**%s** is now **%s**.", out.OldUsername, out.NewUsername),
			colorBlue, b.now())
		b.replyEmbed(inv.channelID(), requestedBy(e, inv.msg.Author))
	}
	return nil
}

func (b *Bot) cmdUsers(ctx context.Context, inv *invocation) error {
	members, err := b.registry.ListRegisteredUsers(ctx, inv.serverID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		b.reply(inv.channelID(), "📭 No users are registered in this server yet.")
		return nil
	}
	pages, truncated := attendance.Paginate(members, attendance.MembersPerPage, attendance.MaxMemberPages)
	embeds := membersEmbeds(b.guildName(inv.guildID()), pages, truncated, len(members), b.now())
	if _, err := b.session.ChannelMessageSendEmbeds(inv.channelID(), embeds); err != nil {
		return fmt.Errorf("send member list: %w", err)
	}
	return nil
}

func (b *Bot) cmdClockIn(ctx context.Context, inv *invocation) error {
	var att *attendance.Attachment
	if len(inv.msg.Attachments) > 0 && inv.msg.Attachments[0] != nil {
		a := inv.msg.Attachments[0]
		att = &attendance.Attachment{URL: a.URL, ContentType: a.ContentType, Filename: a.Filename}
	}
	out, err := b.registry.ClockIn(ctx, attendance.ClockInRequest{
		PlatformID: inv.msg.Author.ID,
		ServerID:   inv.serverID,
		Now:        b.now(),
		Attachment: att,
		Notes:      inv.args,
	})
	if err != nil {
		return err
	}
	b.metrics.ObserveClockIn(out.Status.String())

	if out.Status != attendance.ClockedIn {
		b.reply(inv.channelID(), clockInReply(out, b.opts.Prefix))
		return nil
	}
	b.replyEmbed(inv.channelID(), clockedInEmbed(out, inv.msg.Author, b.now()))
	b.publishClockIn(ctx, inv, out)
	return nil
}

func (b *Bot) publishClockIn(ctx context.Context, inv *invocation, out attendance.ClockInOutcome) {
	if b.publisher == nil {
		return
	}
	msg, err := queue.NewClockInMessage(queue.ClockInEvent{
		RecordID:     out.Record.ID,
		ServerID:     inv.serverID,
		GuildID:      inv.guildID(),
		ChannelID:    inv.channelID(),
		PlatformID:   inv.msg.Author.ID,
		Username:     out.User.Username,
		ClockIn:      out.Record.ClockIn,
		LocalDay:     out.Record.LocalDay,
		Lateness:     out.Lateness.String(),
		ImageURL:     out.Record.ImageURL,
		Notes:        out.Record.Notes,
		SameDayCount: out.SameDayCount,
	})
	if err == nil {
		err = b.publisher.Publish(ctx, msg)
	}
	if err != nil {
		b.logger.Warn("publish clock-in event failed", zap.String("record_id", out.Record.ID), zap.Error(err))
	}
}

func (b *Bot) cmdAttendance(ctx context.Context, inv *invocation) error {
	days := defaultReportDays
	if first, _ := splitFirst(inv.args); first != "" {
		n, err := strconv.Atoi(first)
		if err != nil {
			return usageError{"Days must be a number between 1 and 30."}
		}
		days = n
	}
	summary, err := b.registry.AttendanceReport(ctx, inv.serverID, days, b.now())
	if err != nil {
		return err
	}
	b.replyEmbed(inv.channelID(), requestedBy(reportEmbed(b.guildName(inv.guildID()), summary, b.now()), inv.msg.Author))
	return nil
}

func (b *Bot) guildName(guildID string) string {
	if g, err := b.session.Guild(guildID); err == nil && g != nil && g.Name != "" {
		return g.Name
	}
	return guildID
}
