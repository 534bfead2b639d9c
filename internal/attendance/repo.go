package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Repository persists servers, users, memberships and clock-ins in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FindServer returns a server by Discord id.
func (r *Repository) FindServer(ctx context.Context, discordID string) (*Server, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, discord_id, name, icon_url, member_count, created_at, owner_id
		FROM servers WHERE discord_id = $1
	`, discordID)
	var s Server
	if err := row.Scan(&s.ID, &s.DiscordID, &s.Name, &s.IconURL, &s.MemberCount, &s.CreatedAt, &s.OwnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CreateServer inserts a server, returning ErrDuplicate when the Discord id already exists.
func (r *Repository) CreateServer(ctx context.Context, s Server) (Server, error) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO servers (id, discord_id, name, icon_url, member_count, created_at, owner_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (discord_id) DO NOTHING
		RETURNING id
	`, s.ID, s.DiscordID, s.Name, s.IconURL, s.MemberCount, s.CreatedAt, s.OwnerID)
	if err := row.Scan(&s.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Server{}, ErrDuplicate
		}
		return Server{}, err
	}
	return s, nil
}

// FindUser returns a user by platform id.
func (r *Repository) FindUser(ctx context.Context, platformID string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, platform_id, username, registered_at, avatar_url
		FROM users WHERE platform_id = $1
	`, platformID)
	var u User
	if err := row.Scan(&u.ID, &u.PlatformID, &u.Username, &u.RegisteredAt, &u.AvatarURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// CreateUser writes a new user.
func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, platform_id, username, registered_at, avatar_url)
		VALUES ($1,$2,$3,$4,$5)
	`, u.ID, u.PlatformID, u.Username, u.RegisteredAt, u.AvatarURL)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}
	return u, nil
}

// UpdateUsername changes the display label of a user.
func (r *Repository) UpdateUsername(ctx context.Context, userID, username string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET username = $2 WHERE id = $1`, userID, username)
	return err
}

// FindMembership returns the registration of a user in a server.
func (r *Repository) FindMembership(ctx context.Context, userID, serverID string) (*Membership, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, server_id, joined_at, registered_by
		FROM user_servers WHERE user_id = $1 AND server_id = $2
	`, userID, serverID)
	var m Membership
	if err := row.Scan(&m.UserID, &m.ServerID, &m.JoinedAt, &m.RegisteredBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// CreateMembership links a user to a server.
func (r *Repository) CreateMembership(ctx context.Context, m Membership) (Membership, error) {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_servers (user_id, server_id, joined_at, registered_by)
		VALUES ($1,$2,$3,$4)
	`, m.UserID, m.ServerID, m.JoinedAt, m.RegisteredBy)
	if err != nil {
		if isUniqueViolation(err) {
			return Membership{}, ErrDuplicate
		}
		return Membership{}, err
	}
	return m, nil
}

// DeleteMembership removes a user from a server.
func (r *Repository) DeleteMembership(ctx context.Context, userID, serverID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_servers WHERE user_id = $1 AND server_id = $2`, userID, serverID)
	return err
}

// ListMembers returns the registered users of a server, oldest registration first.
func (r *Repository) ListMembers(ctx context.Context, serverID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.platform_id, u.username, us.joined_at, us.registered_by
		FROM user_servers us
		JOIN users u ON u.id = us.user_id
		WHERE us.server_id = $1
		ORDER BY us.joined_at ASC, u.platform_id ASC
	`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.PlatformID, &m.Username, &m.JoinedAt, &m.RegisteredBy); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// FindRecord returns the earliest clock-in of a user in [from, to).
func (r *Repository) FindRecord(ctx context.Context, userID, serverID string, from, to time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, server_id, clock_in, local_day, image_url, notes
		FROM attendance
		WHERE user_id = $1 AND server_id = $2 AND clock_in >= $3 AND clock_in < $4
		ORDER BY clock_in ASC
		LIMIT 1
	`, userID, serverID, from, to)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.ServerID, &rec.ClockIn, &rec.LocalDay, &rec.ImageURL, &rec.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CreateRecord writes a clock-in; a second record for the same local day yields ErrDuplicate.
func (r *Repository) CreateRecord(ctx context.Context, rec Record) (Record, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, user_id, server_id, clock_in, local_day, image_url, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.UserID, rec.ServerID, rec.ClockIn, rec.LocalDay, rec.ImageURL, rec.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// CountRecords counts a server's clock-ins in [from, to).
func (r *Repository) CountRecords(ctx context.Context, serverID string, from, to time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance
		WHERE server_id = $1 AND clock_in >= $2 AND clock_in < $3
	`, serverID, from, to).Scan(&n)
	return n, err
}

// ListRecordsSince returns a server's clock-ins since the given instant joined with usernames.
func (r *Repository) ListRecordsSince(ctx context.Context, serverID string, since time.Time) ([]ReportRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.user_id, u.username, a.clock_in, a.image_url
		FROM attendance a
		JOIN users u ON u.id = a.user_id
		WHERE a.server_id = $1 AND a.clock_in >= $2
		ORDER BY a.clock_in ASC
	`, serverID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.ClockIn, &row.ImageURL); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}
