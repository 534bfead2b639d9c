package attendance

import "time"

// Server is a Discord guild the bot has been used in.
type Server struct {
	ID          string    `json:"id"`
	DiscordID   string    `json:"discord_id"`
	Name        string    `json:"name"`
	IconURL     string    `json:"icon_url,omitempty"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	OwnerID     string    `json:"owner_id"`
}

// ServerMeta is the guild metadata stored on first use.
type ServerMeta struct {
	Name        string
	IconURL     string
	MemberCount int
	CreatedAt   time.Time
	OwnerID     string
}

// User is a registered Discord account, shared across servers.
type User struct {
	ID           string    `json:"id"`
	PlatformID   string    `json:"platform_id"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
}

// Membership links a User to a Server.
type Membership struct {
	UserID       string    `json:"user_id"`
	ServerID     string    `json:"server_id"`
	JoinedAt     time.Time `json:"joined_at"`
	RegisteredBy string    `json:"registered_by"`
}

// Member is a registered user as listed for one server.
type Member struct {
	PlatformID   string    `json:"platform_id"`
	Username     string    `json:"username"`
	JoinedAt     time.Time `json:"joined_at"`
	RegisteredBy string    `json:"registered_by"`
}

// Record is a single clock-in.
type Record struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	ServerID string    `json:"server_id"`
	ClockIn  time.Time `json:"clock_in"`
	LocalDay string    `json:"local_day"`
	ImageURL string    `json:"image_url"`
	Notes    string    `json:"notes,omitempty"`
}

// ReportRow is a record joined with the username of its owner.
type ReportRow struct {
	UserID   string
	Username string
	ClockIn  time.Time
	ImageURL string
}

// Attachment describes the proof file attached to a clock-in.
type Attachment struct {
	URL         string
	ContentType string
	Filename    string
}
