package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"dbot/internal/attendance"
	"dbot/internal/metrics"
	"dbot/internal/queue"
)

// Publisher receives clock-in events.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Limiter rate limits commands per user.
type Limiter interface {
	Allow(key string) bool
}

// Options configures a Bot.
type Options struct {
	Prefix         string
	Name           string
	Version        string
	CommandTimeout time.Duration

	// ClearConfirmTTL is how long the clear confirmation stays visible.
	ClearConfirmTTL time.Duration
}

// Bot routes prefix commands and member events to their handlers.
type Bot struct {
	session   Session
	registry  *attendance.Registry
	publisher Publisher
	limiter   Limiter
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options

	commands map[string]*command
	order    []string
	removers []func()

	now   func() time.Time
	after func(time.Duration, func())
}

// New creates a bot. publisher, limiter and m may be nil.
func New(
	session Session,
	registry *attendance.Registry,
	publisher Publisher,
	limiter Limiter,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) *Bot {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.Name == "" {
		opts.Name = "DBot"
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	if opts.ClearConfirmTTL <= 0 {
		opts.ClearConfirmTTL = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		session:   session,
		registry:  registry,
		publisher: publisher,
		limiter:   limiter,
		metrics:   m,
		logger:    logger.Named("bot"),
		opts:      opts,
		commands:  map[string]*command{},
		now:       time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	b.registerCommands()
	return b
}

// Start registers the gateway handlers and opens the websocket.
func (b *Bot) Start() error {
	b.removers = append(b.removers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onMessageCreate),
		b.session.AddHandler(b.onMemberAdd),
		b.session.AddHandler(b.onMemberRemove),
	)
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	b.logger.Info("bot started", zap.String("prefix", b.opts.Prefix), zap.String("version", b.opts.Version))
	return nil
}

// Stop removes handlers and closes the websocket.
func (b *Bot) Stop() error {
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	return b.session.Close()
}

type command struct {
	name      string
	usage     string
	help      string
	guildOnly bool
	perm      int64
	run       func(ctx context.Context, inv *invocation) error
}

// invocation is one parsed command message.
type invocation struct {
	msg      *discordgo.Message
	args     string
	serverID string
}

func (inv *invocation) guildID() string   { return inv.msg.GuildID }
func (inv *invocation) channelID() string { return inv.msg.ChannelID }

func (b *Bot) add(c *command) {
	b.commands[c.name] = c
	b.order = append(b.order, c.name)
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(context.Background(), m.Message)
}

// handleMessage is the router entry point for one message.
func (b *Bot) handleMessage(parent context.Context, msg *discordgo.Message) {
	if msg == nil || msg.Author == nil || msg.Author.Bot {
		return
	}
	name, args, ok := parseCommand(msg.Content, b.opts.Prefix)
	if !ok {
		return
	}
	started := b.now()
	log := b.logger.With(
		zap.String("command", name),
		zap.String("user_id", msg.Author.ID),
		zap.String("guild_id", msg.GuildID),
		zap.String("channel_id", msg.ChannelID),
	)

	cmd, found := b.commands[name]
	if !found {
		b.reply(msg.ChannelID, fmt.Sprintf("❌ Command not found! Use `%shelp` to see available commands.", b.opts.Prefix))
		b.metrics.ObserveCommand("unknown", metrics.ResultRejected, b.now().Sub(started))
		return
	}

	result := metrics.ResultOK
	defer func() {
		if r := recover(); r != nil {
			result = metrics.ResultError
			log.Error("command panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			b.replyEmbed(msg.ChannelID, errorEmbed(errors.New("internal error"), b.now()))
		}
		b.metrics.ObserveCommand(name, result, b.now().Sub(started))
	}()

	if b.limiter != nil && !b.limiter.Allow(msg.Author.ID) {
		result = metrics.ResultLimited
		b.reply(msg.ChannelID, "⏳ You are sending commands too fast. Try again in a minute.")
		return
	}
	if cmd.guildOnly && msg.GuildID == "" {
		result = metrics.ResultRejected
		b.reply(msg.ChannelID, "❌ This command can only be used in a server.")
		return
	}

	ctx, cancel := context.WithTimeout(parent, b.opts.CommandTimeout)
	defer cancel()

	if cmd.perm != 0 {
		allowed, err := b.hasPermission(msg, cmd.perm)
		if err != nil {
			result = metrics.ResultError
			log.Error("permission lookup failed", zap.Error(err))
			b.replyEmbed(msg.ChannelID, errorEmbed(err, b.now()))
			return
		}
		if !allowed {
			result = metrics.ResultDenied
			b.reply(msg.ChannelID, "❌ You don't have permission to use this command!")
			return
		}
	}

	inv := &invocation{msg: msg, args: args}
	if msg.GuildID != "" && b.registry != nil {
		serverID, err := b.ensureServer(ctx, msg.GuildID)
		if err != nil {
			result = metrics.ResultError
			log.Error("ensure server failed", zap.Error(err))
			b.replyEmbed(msg.ChannelID, errorEmbed(err, b.now()))
			return
		}
		inv.serverID = serverID
	}

	if err := cmd.run(ctx, inv); err != nil {
		var uerr usageError
		if errors.As(err, &uerr) {
			result = metrics.ResultRejected
			b.reply(msg.ChannelID, fmt.Sprintf("❌ %s\nUsage: `%s%s`", uerr.msg, b.opts.Prefix, cmd.usage))
			return
		}
		result = metrics.ResultError
		log.Error("command failed", zap.Error(err))
		b.replyEmbed(msg.ChannelID, errorEmbed(err, b.now()))
		return
	}
	log.Debug("command handled", zap.Duration("took", b.now().Sub(started)))
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func (b *Bot) ensureServer(ctx context.Context, guildID string) (string, error) {
	meta := attendance.ServerMeta{}
	if g, err := b.session.Guild(guildID); err == nil && g != nil {
		meta.Name = g.Name
		meta.IconURL = g.IconURL("")
		meta.MemberCount = g.MemberCount
		meta.OwnerID = g.OwnerID
		if created, err := discordgo.SnowflakeTimestamp(g.ID); err == nil {
			meta.CreatedAt = created
		}
	} else if err != nil {
		b.logger.Warn("guild metadata unavailable", zap.String("guild_id", guildID), zap.Error(err))
	}
	return b.registry.EnsureServer(ctx, guildID, meta)
}

func (b *Bot) hasPermission(msg *discordgo.Message, perm int64) (bool, error) {
	if msg.GuildID == "" {
		return false, nil
	}
	perms, err := b.session.UserChannelPermissions(msg.Author.ID, msg.ChannelID)
	if err != nil {
		return false, fmt.Errorf("read permissions: %w", err)
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}
	return perms&perm == perm, nil
}

func (b *Bot) reply(channelID, content string) {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.logger.Warn("send message failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

func (b *Bot) replyEmbed(channelID string, e *discordgo.MessageEmbed) *discordgo.Message {
	msg, err := b.session.ChannelMessageSendEmbed(channelID, e)
	if err != nil {
		b.logger.Warn("send embed failed", zap.String("channel_id", channelID), zap.Error(err))
		return nil
	}
	return msg
}
