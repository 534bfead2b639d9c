package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dbot/internal/metrics"
	"dbot/internal/queue"
)

// Discord allows about five messages per five seconds in one channel.
const (
	postInterval = time.Second
	postBurst    = 5
)

// Poster sends embeds to a channel.
type Poster interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Announcer posts clock-in events to a feed channel. With no poster or no
// channel it only logs them.
type Announcer struct {
	poster    Poster
	channelID string
	metrics   *metrics.Metrics
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// NewAnnouncer builds an Announcer. poster and m may be nil.
func NewAnnouncer(poster Poster, channelID string, m *metrics.Metrics, logger *zap.Logger) *Announcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Announcer{
		poster:    poster,
		channelID: channelID,
		metrics:   m,
		logger:    logger.Named("feed"),
		limiter:   rate.NewLimiter(rate.Every(postInterval), postBurst),
	}
}

// Run consumes q until ctx is done or the queue closes its channel.
func (a *Announcer) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	a.logger.Info("feed consumer started", zap.String("channel_id", a.channelID))
	for msg := range messages {
		err := a.Handle(ctx, msg)
		if ackErr := msg.Ack(err == nil); ackErr != nil {
			a.logger.Warn("ack failed", zap.Error(ackErr))
		}
	}
	a.logger.Info("feed consumer stopped")
	return ctx.Err()
}

// Handle processes one message. Unknown message types are skipped.
func (a *Announcer) Handle(ctx context.Context, msg queue.Message) error {
	if msg.Type != queue.TypeClockIn {
		a.logger.Debug("skipping message", zap.String("type", msg.Type))
		a.metrics.ObserveFeed(metrics.ResultRejected)
		return nil
	}
	evt, err := queue.DecodeClockIn(msg)
	if err != nil {
		a.metrics.ObserveFeed(metrics.ResultError)
		a.logger.Error("decode clock-in event", zap.Error(err))
		return err
	}
	log := a.logger.With(
		zap.String("record_id", evt.RecordID),
		zap.String("guild_id", evt.GuildID),
		zap.String("username", evt.Username),
		zap.String("lateness", evt.Lateness),
	)
	if a.poster == nil || a.channelID == "" {
		log.Info("clock-in")
		a.metrics.ObserveFeed(metrics.ResultOK)
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for post slot: %w", err)
	}
	if _, err := a.poster.ChannelMessageSendEmbed(a.channelID, Embed(evt)); err != nil {
		a.metrics.ObserveFeed(metrics.ResultError)
		log.Error("post clock-in to feed", zap.Error(err))
		return fmt.Errorf("post feed embed: %w", err)
	}
	a.metrics.ObserveFeed(metrics.ResultOK)
	log.Debug("clock-in posted")
	return nil
}

var latenessColors = map[string]int{
	"on_time":     0x2ecc71,
	"almost_late": 0xf1c40f,
	"late":        0xe74c3c,
}

// Embed renders a clock-in event for the feed channel.
func Embed(evt queue.ClockInEvent) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       "🕒 " + evt.Username + " clocked in",
		Description: fmt.Sprintf("<@%s> at %s (UTC+7), #%d today", evt.PlatformID, evt.ClockIn.Format("15:04:05"), evt.SameDayCount),
		Color:       latenessColors[evt.Lateness],
		Timestamp:   evt.ClockIn.UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: evt.Lateness, Inline: true},
			{Name: "Day", Value: evt.LocalDay, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Server " + evt.GuildID},
	}
	if evt.Notes != "" {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Notes", Value: evt.Notes})
	}
	if evt.ImageURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: evt.ImageURL}
	}
	return e
}
