package attendance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewRepository(db), mock
}

func TestRepositoryFindUserMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT id, platform_id, username, registered_at, avatar_url\s+FROM users WHERE platform_id = \$1`).
		WithArgs("42").
		WillReturnError(sql.ErrNoRows)

	u, err := repo.FindUser(context.Background(), "42")
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestRepositoryFindUser(t *testing.T) {
	repo, mock := newMockRepo(t)
	registered := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM users WHERE platform_id = \$1`).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "platform_id", "username", "registered_at", "avatar_url"}).
			AddRow("u-1", "42", "alice", registered, ""))

	u, err := repo.FindUser(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, registered, u.RegisteredAt)
}

func TestRepositoryCreateServerConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`INSERT INTO servers .* ON CONFLICT \(discord_id\) DO NOTHING\s+RETURNING id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.CreateServer(context.Background(), Server{ID: "s-1", DiscordID: "g"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestRepositoryCreateServer(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`INSERT INTO servers`).
		WithArgs("s-1", "g", "Guild", "", 3, sqlmock.AnyArg(), "owner").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s-1"))

	s, err := repo.CreateServer(context.Background(), Server{ID: "s-1", DiscordID: "g", Name: "Guild", MemberCount: 3, OwnerID: "owner"})
	require.NoError(t, err)
	require.Equal(t, "s-1", s.ID)
	require.False(t, s.CreatedAt.IsZero())
}

func TestRepositoryCreateRecordUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO attendance`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.CreateRecord(context.Background(), Record{ID: "r", UserID: "u", ServerID: "s", LocalDay: "2026-03-02"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestRepositoryCreateMembershipOtherError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`INSERT INTO user_servers`).
		WillReturnError(sql.ErrConnDone)

	_, err := repo.CreateMembership(context.Background(), Membership{UserID: "u", ServerID: "s"})
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestRepositoryFindRecordInDayRange(t *testing.T) {
	repo, mock := newMockRepo(t)
	from, to := DayBounds(time.Date(2026, 3, 2, 9, 0, 0, 0, ReferenceZone()))
	clock := time.Date(2026, 3, 2, 1, 50, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM attendance\s+WHERE user_id = \$1 AND server_id = \$2 AND clock_in >= \$3 AND clock_in < \$4`).
		WithArgs("u", "s", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "server_id", "clock_in", "local_day", "image_url", "notes"}).
			AddRow("r", "u", "s", clock, "2026-03-02", "https://cdn/x.png", ""))

	rec, err := repo.FindRecord(context.Background(), "u", "s", from, to)
	require.NoError(t, err)
	require.Equal(t, "2026-03-02", rec.LocalDay)
	require.True(t, rec.ClockIn.Equal(clock))
}

func TestRepositoryListMembers(t *testing.T) {
	repo, mock := newMockRepo(t)
	joined := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM user_servers us\s+JOIN users u ON u.id = us.user_id\s+WHERE us.server_id = \$1\s+ORDER BY us.joined_at ASC`).
		WithArgs("s").
		WillReturnRows(sqlmock.NewRows([]string{"platform_id", "username", "joined_at", "registered_by"}).
			AddRow("1", "alice", joined, "9").
			AddRow("2", "bob", joined.Add(time.Hour), "9"))

	members, err := repo.ListMembers(context.Background(), "s")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "bob", members[1].Username)
}

func TestRepositoryCountRecords(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM attendance`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountRecords(context.Background(), "s", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 4, n)
}
