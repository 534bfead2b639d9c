package attendance

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned by a Store when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("attendance: duplicate row")

	// ErrServerNotCreated is returned when a server row can be neither inserted nor read back.
	ErrServerNotCreated = errors.New("attendance: server registration returned no row")
)

// Store is the persistence capability the Registry is built on. Finders
// return nil without error when no row matches.
type Store interface {
	FindServer(ctx context.Context, discordID string) (*Server, error)
	CreateServer(ctx context.Context, s Server) (Server, error)

	FindUser(ctx context.Context, platformID string) (*User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateUsername(ctx context.Context, userID, username string) error

	FindMembership(ctx context.Context, userID, serverID string) (*Membership, error)
	CreateMembership(ctx context.Context, m Membership) (Membership, error)
	DeleteMembership(ctx context.Context, userID, serverID string) error
	ListMembers(ctx context.Context, serverID string) ([]Member, error)

	FindRecord(ctx context.Context, userID, serverID string, from, to time.Time) (*Record, error)
	CreateRecord(ctx context.Context, r Record) (Record, error)
	CountRecords(ctx context.Context, serverID string, from, to time.Time) (int, error)
	ListRecordsSince(ctx context.Context, serverID string, since time.Time) ([]ReportRow, error)

	Ping(ctx context.Context) error
}

// ImageHost re-hosts clock-in proof images, returning the durable URL.
type ImageHost interface {
	Rehost(ctx context.Context, url string) (string, error)
}
