package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry owns server registration, multi-server user registration and
// daily clock-in admission.
type Registry struct {
	store  Store
	images ImageHost
	log    *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithImageHost re-hosts proof images before a record is stored.
func WithImageHost(h ImageHost) Option {
	return func(r *Registry) { r.images = h }
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates a registry backed by a store.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{store: store, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureServer returns the internal key of a server, inserting it on first use.
func (r *Registry) EnsureServer(ctx context.Context, discordID string, meta ServerMeta) (string, error) {
	if discordID == "" {
		return "", errors.New("server id required")
	}
	existing, err := r.store.FindServer(ctx, discordID)
	if err != nil {
		return "", fmt.Errorf("find server: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	created, err := r.store.CreateServer(ctx, Server{
		ID:          uuid.NewString(),
		DiscordID:   discordID,
		Name:        meta.Name,
		IconURL:     meta.IconURL,
		MemberCount: meta.MemberCount,
		CreatedAt:   meta.CreatedAt,
		OwnerID:     meta.OwnerID,
	})
	if err == nil {
		r.log.Info("server registered", zap.String("discord_id", discordID), zap.String("name", meta.Name))
		return created.ID, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return "", fmt.Errorf("create server: %w", err)
	}

	// Lost the insert race; the winner's row is authoritative.
	existing, err = r.store.FindServer(ctx, discordID)
	if err != nil {
		return "", fmt.Errorf("find server: %w", err)
	}
	if existing == nil {
		return "", ErrServerNotCreated
	}
	return existing.ID, nil
}

// LookupServer returns a server by its Discord id, or nil.
func (r *Registry) LookupServer(ctx context.Context, discordID string) (*Server, error) {
	s, err := r.store.FindServer(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("find server: %w", err)
	}
	return s, nil
}

// RegisterRequest carries the inputs of RegisterUser.
type RegisterRequest struct {
	ActorID    string
	PlatformID string
	Username   string
	AvatarURL  string
	ServerID   string
	JoinedAt   time.Time
}

// RegisterUser links a platform account to a server, creating the user on first registration.
// Username only applies when the user row is created.
func (r *Registry) RegisterUser(ctx context.Context, req RegisterRequest) (RegisterOutcome, error) {
	if req.PlatformID == "" || req.ServerID == "" {
		return RegisterOutcome{}, errors.New("user and server required")
	}
	status := RegisterLinkedServer

	user, err := r.store.FindUser(ctx, req.PlatformID)
	if err != nil {
		return RegisterOutcome{}, fmt.Errorf("find user: %w", err)
	}
	if user != nil {
		m, err := r.store.FindMembership(ctx, user.ID, req.ServerID)
		if err != nil {
			return RegisterOutcome{}, fmt.Errorf("find membership: %w", err)
		}
		if m != nil {
			return RegisterOutcome{Status: RegisterAlreadyInServer, User: *user, Membership: *m}, nil
		}
	} else {
		user, err = r.createUser(ctx, req)
		if err != nil {
			return RegisterOutcome{}, err
		}
		status = RegisterNewUser
	}

	m, err := r.store.CreateMembership(ctx, Membership{
		UserID:       user.ID,
		ServerID:     req.ServerID,
		JoinedAt:     req.JoinedAt,
		RegisteredBy: req.ActorID,
	})
	if errors.Is(err, ErrDuplicate) {
		existing, ferr := r.store.FindMembership(ctx, user.ID, req.ServerID)
		if ferr != nil {
			return RegisterOutcome{}, fmt.Errorf("find membership: %w", ferr)
		}
		out := RegisterOutcome{Status: RegisterAlreadyInServer, User: *user}
		if existing != nil {
			out.Membership = *existing
		}
		return out, nil
	}
	if err != nil {
		return RegisterOutcome{}, fmt.Errorf("create membership: %w", err)
	}
	r.log.Info("user registered",
		zap.String("platform_id", req.PlatformID),
		zap.String("server_id", req.ServerID),
		zap.String("registered_by", req.ActorID),
		zap.Bool("new_user", status == RegisterNewUser),
	)
	return RegisterOutcome{Status: status, User: *user, Membership: m}, nil
}

func (r *Registry) createUser(ctx context.Context, req RegisterRequest) (*User, error) {
	created, err := r.store.CreateUser(ctx, User{
		ID:           uuid.NewString(),
		PlatformID:   req.PlatformID,
		Username:     req.Username,
		RegisteredAt: req.JoinedAt,
		AvatarURL:    req.AvatarURL,
	})
	if err == nil {
		return &created, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, fmt.Errorf("create user: %w", err)
	}
	user, err := r.store.FindUser(ctx, req.PlatformID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, errors.New("user vanished after duplicate insert")
	}
	return user, nil
}

// UnregisterUser removes the membership of a user in one server. The user row
// and memberships in other servers are untouched.
func (r *Registry) UnregisterUser(ctx context.Context, platformID, serverID string) (UnregisterOutcome, error) {
	user, err := r.store.FindUser(ctx, platformID)
	if err != nil {
		return UnregisterOutcome{}, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return UnregisterOutcome{Status: UnregisterNotRegistered}, nil
	}
	m, err := r.store.FindMembership(ctx, user.ID, serverID)
	if err != nil {
		return UnregisterOutcome{}, fmt.Errorf("find membership: %w", err)
	}
	if m == nil {
		return UnregisterOutcome{Status: UnregisterNotInServer, User: user}, nil
	}
	if err := r.store.DeleteMembership(ctx, user.ID, serverID); err != nil {
		return UnregisterOutcome{}, fmt.Errorf("delete membership: %w", err)
	}
	r.log.Info("user unregistered", zap.String("platform_id", platformID), zap.String("server_id", serverID))
	return UnregisterOutcome{Status: Unregistered, User: user}, nil
}

// ChangeUsername renames a user everywhere they are registered.
func (r *Registry) ChangeUsername(ctx context.Context, platformID, username string) (RenameOutcome, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return RenameOutcome{}, errors.New("username required")
	}
	user, err := r.store.FindUser(ctx, platformID)
	if err != nil {
		return RenameOutcome{}, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return RenameOutcome{Status: RenameUserNotFound}, nil
	}
	if err := r.store.UpdateUsername(ctx, user.ID, username); err != nil {
		return RenameOutcome{}, fmt.Errorf("update username: %w", err)
	}
	return RenameOutcome{Status: Renamed, OldUsername: user.Username, NewUsername: username}, nil
}

// ListRegisteredUsers returns the members of a server ordered by join time.
func (r *Registry) ListRegisteredUsers(ctx context.Context, serverID string) ([]Member, error) {
	members, err := r.store.ListMembers(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// ClockInRequest carries the inputs of ClockIn. A nil Attachment means no file was attached.
type ClockInRequest struct {
	PlatformID string
	ServerID   string
	Now        time.Time
	Attachment *Attachment
	Notes      string
}

// ClockIn runs the admission checks in order and records the clock-in when all pass.
func (r *Registry) ClockIn(ctx context.Context, req ClockInRequest) (ClockInOutcome, error) {
	local := ToReferenceZone(req.Now)
	if TooEarly(local) {
		return ClockInOutcome{Status: ClockInTooEarly, LocalTime: local}, nil
	}

	user, err := r.store.FindUser(ctx, req.PlatformID)
	if err != nil {
		return ClockInOutcome{}, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return ClockInOutcome{Status: ClockInNotRegistered, LocalTime: local}, nil
	}

	m, err := r.store.FindMembership(ctx, user.ID, req.ServerID)
	if err != nil {
		return ClockInOutcome{}, fmt.Errorf("find membership: %w", err)
	}
	if m == nil {
		return ClockInOutcome{Status: ClockInNotInServer, LocalTime: local, User: *user}, nil
	}

	dayStart, dayEnd := DayBounds(req.Now)
	existing, err := r.store.FindRecord(ctx, user.ID, req.ServerID, dayStart, dayEnd)
	if err != nil {
		return ClockInOutcome{}, fmt.Errorf("find record: %w", err)
	}
	if existing != nil {
		return ClockInOutcome{
			Status:    ClockInAlreadyDone,
			LocalTime: local,
			Existing:  ToReferenceZone(existing.ClockIn),
			User:      *user,
		}, nil
	}

	if req.Attachment == nil {
		return ClockInOutcome{Status: ClockInImageRequired, LocalTime: local, User: *user}, nil
	}
	if !strings.HasPrefix(req.Attachment.ContentType, "image/") {
		return ClockInOutcome{Status: ClockInInvalidAttachment, LocalTime: local, User: *user}, nil
	}

	lateness := Classify(local)
	rec, err := r.store.CreateRecord(ctx, Record{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		ServerID: req.ServerID,
		ClockIn:  local,
		LocalDay: LocalDay(local),
		ImageURL: r.imageURL(ctx, req.Attachment.URL),
		Notes:    strings.TrimSpace(req.Notes),
	})
	if errors.Is(err, ErrDuplicate) {
		out := ClockInOutcome{Status: ClockInDuplicate, LocalTime: local, User: *user}
		if winner, ferr := r.store.FindRecord(ctx, user.ID, req.ServerID, dayStart, dayEnd); ferr == nil && winner != nil {
			out.Existing = ToReferenceZone(winner.ClockIn)
		}
		return out, nil
	}
	if err != nil {
		return ClockInOutcome{}, fmt.Errorf("create record: %w", err)
	}

	count, err := r.store.CountRecords(ctx, req.ServerID, dayStart, dayEnd)
	if err != nil {
		return ClockInOutcome{}, fmt.Errorf("count records: %w", err)
	}

	r.log.Info("clocked in",
		zap.String("platform_id", req.PlatformID),
		zap.String("server_id", req.ServerID),
		zap.Stringer("lateness", lateness),
		zap.Time("local_time", local),
	)
	rec.ClockIn = ToReferenceZone(rec.ClockIn)
	return ClockInOutcome{
		Status:       ClockedIn,
		LocalTime:    local,
		Lateness:     lateness,
		Record:       rec,
		User:         *user,
		SameDayCount: count,
	}, nil
}

func (r *Registry) imageURL(ctx context.Context, url string) string {
	if r.images == nil {
		return url
	}
	hosted, err := r.images.Rehost(ctx, url)
	if err != nil {
		r.log.Warn("image rehost failed, keeping attachment url", zap.Error(err))
		return url
	}
	return hosted
}

// AttendanceReport summarises the server's clock-ins over the last windowDays days.
func (r *Registry) AttendanceReport(ctx context.Context, serverID string, windowDays int, now time.Time) (ReportSummary, error) {
	windowDays = ClampWindow(windowDays)
	since := now.Add(-time.Duration(windowDays) * 24 * time.Hour)
	rows, err := r.store.ListRecordsSince(ctx, serverID, since)
	if err != nil {
		return ReportSummary{}, fmt.Errorf("list records: %w", err)
	}
	return BuildReport(rows, windowDays), nil
}
