package bot

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"dbot/internal/attendance"
)

// Embed colors.
const (
	colorGreen  = 0x2ecc71
	colorBlue   = 0x3498db
	colorGold   = 0xf1c40f
	colorRed    = 0xe74c3c
	colorOrange = 0xe67e22
	colorGrey   = 0x95a5a6
)

const dateLayout = "02/01/2006"

func newEmbed(title, description string, color int, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
}

func requestedBy(e *discordgo.MessageEmbed, author *discordgo.User) *discordgo.MessageEmbed {
	if author != nil {
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Requested by " + author.Username}
	}
	return e
}

func field(name, value string, inline bool) *discordgo.MessageEmbedField {
	if value == "" {
		value = "-"
	}
	return &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline}
}

func randomColor() int {
	return rand.Intn(0xffffff + 1)
}

func errorEmbed(err error, now time.Time) *discordgo.MessageEmbed {
	return newEmbed("❌ An error occurred", err.Error(), colorRed, now)
}

func latenessLabel(l attendance.Lateness) string {
	switch l {
	case attendance.OnTime:
		return "🟢 On time"
	case attendance.AlmostLate:
		return "🟡 Almost late"
	default:
		return "🔴 Late"
	}
}

func latenessColor(l attendance.Lateness) int {
	switch l {
	case attendance.OnTime:
		return colorGreen
	case attendance.AlmostLate:
		return colorGold
	default:
		return colorRed
	}
}

func clockedInEmbed(out attendance.ClockInOutcome, author *discordgo.User, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed("✅ Clocked in", fmt.Sprintf("**%s** clocked in.", out.User.Username), latenessColor(out.Lateness), now)
	e.Fields = []*discordgo.MessageEmbedField{
		field("🕒 Time", out.Record.ClockIn.Format("15:04:05")+" (UTC+7)", true),
		field("📊 Status", latenessLabel(out.Lateness), true),
		field("👥 Today", fmt.Sprintf("#%d in this server", out.SameDayCount), true),
	}
	if out.Record.Notes != "" {
		e.Fields = append(e.Fields, field("📝 Notes", out.Record.Notes, false))
	}
	if out.Record.ImageURL != "" {
		e.Image = &discordgo.MessageEmbedImage{URL: out.Record.ImageURL}
	}
	return requestedBy(e, author)
}

// clockInReply renders every non-success clock-in state as a plain message.
func clockInReply(out attendance.ClockInOutcome, prefix string) string {
	switch out.Status {
	case attendance.ClockInTooEarly:
		return fmt.Sprintf("⏰ Clock-in opens at 07:30 (UTC+7). It is %s now.", out.LocalTime.Format("15:04"))
	case attendance.ClockInNotRegistered:
		return fmt.Sprintf("❌ You are not registered. Ask an admin to run `%sregister` for you.", prefix)
	case attendance.ClockInNotInServer:
		return "❌ You are not registered in this server."
	case attendance.ClockInAlreadyDone:
		return fmt.Sprintf("✅ You already clocked in today at %s.", out.Existing.Format("15:04:05"))
	case attendance.ClockInImageRequired:
		return fmt.Sprintf("📷 Attach an image as proof: `%sclockin [notes]` with a picture.", prefix)
	case attendance.ClockInInvalidAttachment:
		return "❌ The attachment must be an image."
	case attendance.ClockInDuplicate:
		if out.Existing.IsZero() {
			return "⚠️ Your clock-in for today was already recorded."
		}
		return fmt.Sprintf("⚠️ Your clock-in for today was already recorded at %s.", out.Existing.Format("15:04:05"))
	default:
		return ""
	}
}

func membersEmbeds(serverName string, pages [][]attendance.Member, truncated bool, total int, now time.Time) []*discordgo.MessageEmbed {
	embeds := make([]*discordgo.MessageEmbed, 0, len(pages))
	n := 0
	for i, page := range pages {
		var b strings.Builder
		for _, m := range page {
			n++
			fmt.Fprintf(&b, "%d. **%s** <@%s> since %s\n", n, m.Username, m.PlatformID, m.JoinedAt.Format(dateLayout))
		}
		e := newEmbed(
			fmt.Sprintf("📋 Registered users: %s (%d/%d)", serverName, i+1, len(pages)),
			b.String(), colorBlue, now,
		)
		embeds = append(embeds, e)
	}
	if truncated && len(embeds) > 0 {
		last := embeds[len(embeds)-1]
		last.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Showing %d of %d users", n, total),
		}
	}
	return embeds
}

func reportEmbed(serverName string, s attendance.ReportSummary, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed(
		fmt.Sprintf("📈 Attendance: %s", serverName),
		fmt.Sprintf("Last %d day(s)", s.WindowDays),
		colorBlue, now,
	)
	e.Fields = append(e.Fields,
		field("🧾 Clock-ins", fmt.Sprint(s.Total), true),
		field("👥 Users", fmt.Sprint(s.DistinctUsers), true),
		field("📅 Active days", fmt.Sprint(s.ActiveDays), true),
	)
	if s.Total == 0 {
		e.Description += "\nNo clock-ins recorded."
		e.Color = colorGrey
		return e
	}
	for _, d := range s.Days {
		names := strings.Join(d.Usernames, ", ")
		if d.Overflow > 0 {
			names += fmt.Sprintf(" and %d more", d.Overflow)
		}
		e.Fields = append(e.Fields, field(
			fmt.Sprintf("%s (%d)", d.Day, d.Count),
			fmt.Sprintf("%s\n📷 %d with image", names, d.WithImage),
			false,
		))
	}
	var top strings.Builder
	for i, u := range s.TopUsers {
		fmt.Fprintf(&top, "%d. %s: %d\n", i+1, u.Username, u.Count)
	}
	e.Fields = append(e.Fields, field("🏆 Top users", top.String(), false))
	return e
}
