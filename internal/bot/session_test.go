package bot

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

type sentMessage struct {
	ChannelID string
	Content   string
	Embeds    []*discordgo.MessageEmbed
}

// fakeSession is a recording Session. Lookups are served from the maps.
type fakeSession struct {
	mu sync.Mutex

	guilds    map[string]*discordgo.Guild
	members   map[string]*discordgo.Member
	presences map[string]*discordgo.Presence
	perms     map[string]int64
	history   []*discordgo.Message
	latency   time.Duration

	sent        []sentMessage
	deleted     []string
	bulkDeleted []string
	status      *discordgo.UpdateStatusData
	handlers    int
	opened      bool
	nextID      int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		guilds:    map[string]*discordgo.Guild{},
		members:   map[string]*discordgo.Member{},
		presences: map[string]*discordgo.Presence{},
		perms:     map[string]int64{},
		latency:   42 * time.Millisecond,
	}
}

func (f *fakeSession) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = true
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = false
	return nil
}

func (f *fakeSession) AddHandler(interface{}) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers--
	}
}

func (f *fakeSession) UpdateStatusComplex(data discordgo.UpdateStatusData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = &data
	return nil
}

func (f *fakeSession) HeartbeatLatency() time.Duration { return f.latency }

func (f *fakeSession) record(channelID, content string, embeds []*discordgo.MessageEmbed) *discordgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Content: content, Embeds: embeds})
	return &discordgo.Message{ID: fmt.Sprintf("sent-%d", f.nextID), ChannelID: channelID, Content: content, Embeds: embeds}
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.record(channelID, content, nil), nil
}

func (f *fakeSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return f.record(channelID, "", []*discordgo.MessageEmbed{embed}), nil
}

func (f *fakeSession) ChannelMessageSendEmbeds(channelID string, embeds []*discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if len(embeds) > 10 {
		return nil, fmt.Errorf("too many embeds: %d", len(embeds))
	}
	return f.record(channelID, "", embeds), nil
}

func (f *fakeSession) ChannelMessageDelete(_, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSession) ChannelMessages(_ string, limit int, _, _, _ string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.history) {
		limit = len(f.history)
	}
	return f.history[:limit], nil
}

func (f *fakeSession) ChannelMessagesBulkDelete(_ string, messages []string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(messages) > 100 {
		return fmt.Errorf("bulk delete of %d messages", len(messages))
	}
	f.bulkDeleted = append(f.bulkDeleted, messages...)
	return nil
}

func (f *fakeSession) UserChannelPermissions(userID, _ string, _ ...discordgo.RequestOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[userID], nil
}

func (f *fakeSession) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, discordgo.ErrStateNotFound
	}
	return g, nil
}

func (f *fakeSession) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[guildID+"/"+userID]
	if !ok {
		return nil, discordgo.ErrStateNotFound
	}
	return m, nil
}

func (f *fakeSession) Presence(guildID, userID string) (*discordgo.Presence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.presences[guildID+"/"+userID]
	if !ok {
		return nil, discordgo.ErrStateNotFound
	}
	return p, nil
}

func (f *fakeSession) Guilds() []*discordgo.Guild {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*discordgo.Guild, 0, len(f.guilds))
	for _, g := range f.guilds {
		out = append(out, g)
	}
	return out
}

func (f *fakeSession) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSession) last() sentMessage {
	msgs := f.messages()
	if len(msgs) == 0 {
		return sentMessage{}
	}
	return msgs[len(msgs)-1]
}
