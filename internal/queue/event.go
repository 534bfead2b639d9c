package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// TypeClockIn tags messages carrying a ClockInEvent.
const TypeClockIn = "clockin"

// ClockInEvent is published after a successful clock-in.
type ClockInEvent struct {
	RecordID     string    `json:"record_id"`
	ServerID     string    `json:"server_id"`
	GuildID      string    `json:"guild_id"`
	ChannelID    string    `json:"channel_id"`
	PlatformID   string    `json:"platform_id"`
	Username     string    `json:"username"`
	ClockIn      time.Time `json:"clock_in"`
	LocalDay     string    `json:"local_day"`
	Lateness     string    `json:"lateness"`
	ImageURL     string    `json:"image_url"`
	Notes        string    `json:"notes,omitempty"`
	SameDayCount int       `json:"same_day_count"`
}

// NewClockInMessage encodes an event as a queue message.
func NewClockInMessage(evt ClockInEvent) (Message, error) {
	body, err := json.Marshal(evt)
	if err != nil {
		return Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return Message{Type: TypeClockIn, Body: body}, nil
}

// DecodeClockIn parses a clock-in message body.
func DecodeClockIn(msg Message) (ClockInEvent, error) {
	var evt ClockInEvent
	if msg.Type != TypeClockIn {
		return evt, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return evt, fmt.Errorf("unmarshal event: %w", err)
	}
	return evt, nil
}
