package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	serverS = "guild-s"
	serverT = "guild-t"
	userU   = "1001"
	adminA  = "9001"
)

var image = &Attachment{URL: "https://cdn.example/proof.png", ContentType: "image/png", Filename: "proof.png"}

type registryEnv struct {
	store    *MemoryStore
	registry *Registry
	serverS  string
	serverT  string
}

func newRegistryEnv(t *testing.T, opts ...Option) registryEnv {
	t.Helper()
	store := NewMemoryStore()
	reg := NewRegistry(store, opts...)
	ctx := context.Background()
	s, err := reg.EnsureServer(ctx, serverS, ServerMeta{Name: "S"})
	require.NoError(t, err)
	tk, err := reg.EnsureServer(ctx, serverT, ServerMeta{Name: "T"})
	require.NoError(t, err)
	return registryEnv{store: store, registry: reg, serverS: s, serverT: tk}
}

func (e registryEnv) register(t *testing.T, platformID, username, serverID string) RegisterOutcome {
	t.Helper()
	out, err := e.registry.RegisterUser(context.Background(), RegisterRequest{
		ActorID:    adminA,
		PlatformID: platformID,
		Username:   username,
		ServerID:   serverID,
		JoinedAt:   at(7, 0, 0),
	})
	require.NoError(t, err)
	return out
}

func (e registryEnv) clockIn(t *testing.T, platformID, serverID string, now time.Time, att *Attachment) ClockInOutcome {
	t.Helper()
	out, err := e.registry.ClockIn(context.Background(), ClockInRequest{
		PlatformID: platformID,
		ServerID:   serverID,
		Now:        now,
		Attachment: att,
		Notes:      "  wfh  ",
	})
	require.NoError(t, err)
	return out
}

func TestEnsureServerIdempotent(t *testing.T) {
	env := newRegistryEnv(t)
	key, err := env.registry.EnsureServer(context.Background(), serverS, ServerMeta{Name: "renamed"})
	require.NoError(t, err)
	require.Equal(t, env.serverS, key)

	s, err := env.registry.LookupServer(context.Background(), serverS)
	require.NoError(t, err)
	require.Equal(t, "S", s.Name)

	missing, err := env.registry.LookupServer(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
}

// racingStore loses every server insert and never sees the winner.
type racingStore struct {
	*MemoryStore
	winner *Server
}

func (r *racingStore) FindServer(ctx context.Context, id string) (*Server, error) {
	if r.winner == nil {
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingStore) CreateServer(context.Context, Server) (Server, error) {
	return Server{}, ErrDuplicate
}

func TestEnsureServerConflict(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore()}
	reg := NewRegistry(store)

	_, err := reg.EnsureServer(context.Background(), serverS, ServerMeta{})
	require.ErrorIs(t, err, ErrServerNotCreated)
}

func TestRegisterUserTwice(t *testing.T) {
	env := newRegistryEnv(t)

	first := env.register(t, userU, "alice", env.serverS)
	require.Equal(t, RegisterNewUser, first.Status)
	require.Equal(t, "alice", first.User.Username)
	require.Equal(t, adminA, first.Membership.RegisteredBy)

	second := env.register(t, userU, "alice", env.serverS)
	require.Equal(t, RegisterAlreadyInServer, second.Status)

	members, err := env.registry.ListRegisteredUsers(context.Background(), env.serverS)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Len(t, env.store.users, 1)
}

func TestRegisterUserSecondServerKeepsUsername(t *testing.T) {
	env := newRegistryEnv(t)
	env.register(t, userU, "alice", env.serverS)

	out := env.register(t, userU, "someone-else", env.serverT)
	require.Equal(t, RegisterLinkedServer, out.Status)
	require.Equal(t, "alice", out.User.Username)
}

func TestUnregisterUser(t *testing.T) {
	env := newRegistryEnv(t)
	ctx := context.Background()

	out, err := env.registry.UnregisterUser(ctx, userU, env.serverS)
	require.NoError(t, err)
	require.Equal(t, UnregisterNotRegistered, out.Status)

	env.register(t, userU, "alice", env.serverT)
	out, err = env.registry.UnregisterUser(ctx, userU, env.serverS)
	require.NoError(t, err)
	require.Equal(t, UnregisterNotInServer, out.Status)

	env.register(t, userU, "alice", env.serverS)
	out, err = env.registry.UnregisterUser(ctx, userU, env.serverS)
	require.NoError(t, err)
	require.Equal(t, Unregistered, out.Status)

	// Other servers and the user row survive.
	inT, err := env.registry.ListRegisteredUsers(ctx, env.serverT)
	require.NoError(t, err)
	require.Len(t, inT, 1)
	u, err := env.store.FindUser(ctx, userU)
	require.NoError(t, err)
	require.NotNil(t, u)
}

func TestUnregisterThenRegister(t *testing.T) {
	env := newRegistryEnv(t)
	ctx := context.Background()
	env.register(t, userU, "alice", env.serverS)

	_, err := env.registry.UnregisterUser(ctx, userU, env.serverS)
	require.NoError(t, err)

	out := env.register(t, userU, "alice", env.serverS)
	require.Equal(t, RegisterLinkedServer, out.Status)

	members, err := env.registry.ListRegisteredUsers(ctx, env.serverS)
	require.NoError(t, err)
	require.Len(t, members, 1)
}

func TestChangeUsernameIsGlobal(t *testing.T) {
	env := newRegistryEnv(t)
	ctx := context.Background()

	out, err := env.registry.ChangeUsername(ctx, userU, "bob")
	require.NoError(t, err)
	require.Equal(t, RenameUserNotFound, out.Status)

	env.register(t, userU, "alice", env.serverS)
	env.register(t, userU, "alice", env.serverT)

	out, err = env.registry.ChangeUsername(ctx, userU, " bob ")
	require.NoError(t, err)
	require.Equal(t, Renamed, out.Status)
	require.Equal(t, "alice", out.OldUsername)
	require.Equal(t, "bob", out.NewUsername)

	for _, server := range []string{env.serverS, env.serverT} {
		members, err := env.registry.ListRegisteredUsers(ctx, server)
		require.NoError(t, err)
		require.Len(t, members, 1)
		require.Equal(t, "bob", members[0].Username)
	}

	_, err = env.registry.ChangeUsername(ctx, userU, "   ")
	require.Error(t, err)
}

func TestListRegisteredUsersOrder(t *testing.T) {
	env := newRegistryEnv(t)
	ctx := context.Background()
	for i, id := range []string{"3", "1", "2"} {
		_, err := env.registry.RegisterUser(ctx, RegisterRequest{
			ActorID:    adminA,
			PlatformID: id,
			Username:   "user" + id,
			ServerID:   env.serverS,
			JoinedAt:   at(8, i, 0),
		})
		require.NoError(t, err)
	}
	members, err := env.registry.ListRegisteredUsers(ctx, env.serverS)
	require.NoError(t, err)
	require.Equal(t, []string{"3", "1", "2"}, []string{members[0].PlatformID, members[1].PlatformID, members[2].PlatformID})
}

func TestClockInNotRegisteredNeverInserts(t *testing.T) {
	env := newRegistryEnv(t)
	out := env.clockIn(t, "ghost", env.serverS, at(8, 0, 0), image)
	require.Equal(t, ClockInNotRegistered, out.Status)
	require.Zero(t, env.store.RecordCount())
}

func TestClockInNotInServer(t *testing.T) {
	env := newRegistryEnv(t)
	env.register(t, userU, "alice", env.serverT)
	out := env.clockIn(t, userU, env.serverS, at(8, 0, 0), image)
	require.Equal(t, ClockInNotInServer, out.Status)
	require.Zero(t, env.store.RecordCount())
}

func TestClockInTooEarlyBeforeAnyLookup(t *testing.T) {
	env := newRegistryEnv(t)
	out := env.clockIn(t, "ghost", env.serverS, at(7, 29, 59), image)
	require.Equal(t, ClockInTooEarly, out.Status)
	require.Equal(t, 7, out.LocalTime.Hour())

	env.register(t, userU, "alice", env.serverS)
	out = env.clockIn(t, userU, env.serverS, at(7, 30, 0), image)
	require.Equal(t, ClockedIn, out.Status)
	require.Equal(t, OnTime, out.Lateness)
}

func TestClockInAttachmentChecks(t *testing.T) {
	env := newRegistryEnv(t)
	env.register(t, userU, "alice", env.serverS)

	out := env.clockIn(t, userU, env.serverS, at(8, 0, 0), nil)
	require.Equal(t, ClockInImageRequired, out.Status)

	pdf := &Attachment{URL: "https://cdn.example/doc.pdf", ContentType: "application/pdf"}
	out = env.clockIn(t, userU, env.serverS, at(8, 0, 0), pdf)
	require.Equal(t, ClockInInvalidAttachment, out.Status)

	require.Zero(t, env.store.RecordCount())
}

func TestClockInLatenessBoundaries(t *testing.T) {
	cases := []struct {
		when time.Time
		want Lateness
	}{
		{at(8, 45, 0), AlmostLate},
		{at(9, 0, 0), AlmostLate},
		{at(9, 0, 1), Late},
	}
	for _, tc := range cases {
		env := newRegistryEnv(t)
		env.register(t, userU, "alice", env.serverS)
		out := env.clockIn(t, userU, env.serverS, tc.when, image)
		require.Equal(t, ClockedIn, out.Status)
		require.Equal(t, tc.want, out.Lateness, tc.when.Format(time.TimeOnly))
	}
}

func TestClockInScenario(t *testing.T) {
	env := newRegistryEnv(t)
	env.register(t, userU, "alice", env.serverS)

	out := env.clockIn(t, userU, env.serverS, at(7, 20, 0), image)
	require.Equal(t, ClockInTooEarly, out.Status)

	out = env.clockIn(t, userU, env.serverS, at(8, 50, 0), image)
	require.Equal(t, ClockedIn, out.Status)
	require.Equal(t, AlmostLate, out.Lateness)
	require.Equal(t, 1, out.SameDayCount)
	require.Equal(t, "wfh", out.Record.Notes)
	require.Equal(t, "2026-03-02", out.Record.LocalDay)
	require.Equal(t, ReferenceZone(), out.Record.ClockIn.Location())

	out = env.clockIn(t, userU, env.serverS, at(10, 0, 0), image)
	require.Equal(t, ClockInAlreadyDone, out.Status)
	require.Equal(t, at(8, 50, 0), out.Existing)
	require.Equal(t, 1, env.store.RecordCount())

	// Next local day is admitted again.
	out = env.clockIn(t, userU, env.serverS, at(8, 0, 0).AddDate(0, 0, 1), image)
	require.Equal(t, ClockedIn, out.Status)
	require.Equal(t, 1, out.SameDayCount)
}

func TestClockInSameDayCountAcrossUsers(t *testing.T) {
	env := newRegistryEnv(t)
	env.register(t, userU, "alice", env.serverS)
	env.register(t, "1002", "bob", env.serverS)
	env.register(t, "1003", "carol", env.serverT)

	env.clockIn(t, userU, env.serverS, at(8, 0, 0), image)
	env.clockIn(t, "1003", env.serverT, at(8, 1, 0), image)
	out := env.clockIn(t, "1002", env.serverS, at(8, 2, 0), image)
	require.Equal(t, ClockedIn, out.Status)
	require.Equal(t, 2, out.SameDayCount)
}

// blindStore never sees existing records, so the insert hits the constraint.
type blindStore struct {
	*MemoryStore
}

func (b blindStore) FindRecord(context.Context, string, string, time.Time, time.Time) (*Record, error) {
	return nil, nil
}

func TestClockInDuplicateFromConstraint(t *testing.T) {
	store := blindStore{NewMemoryStore()}
	reg := NewRegistry(store)
	ctx := context.Background()
	key, err := reg.EnsureServer(ctx, serverS, ServerMeta{})
	require.NoError(t, err)
	_, err = reg.RegisterUser(ctx, RegisterRequest{PlatformID: userU, Username: "alice", ServerID: key})
	require.NoError(t, err)

	req := ClockInRequest{PlatformID: userU, ServerID: key, Now: at(8, 0, 0), Attachment: image}
	first, err := reg.ClockIn(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ClockedIn, first.Status)

	req.Now = at(8, 0, 5)
	second, err := reg.ClockIn(ctx, req)
	require.NoError(t, err)
	require.Equal(t, ClockInDuplicate, second.Status)
	require.Equal(t, 1, store.RecordCount())
}

type fakeHost struct {
	url string
	err error
}

func (f fakeHost) Rehost(context.Context, string) (string, error) { return f.url, f.err }

func TestClockInRehostsImage(t *testing.T) {
	env := newRegistryEnv(t, WithImageHost(fakeHost{url: "https://res.example/proof.png"}))
	env.register(t, userU, "alice", env.serverS)
	out := env.clockIn(t, userU, env.serverS, at(8, 0, 0), image)
	require.Equal(t, "https://res.example/proof.png", out.Record.ImageURL)
}

func TestClockInRehostFailureKeepsAttachment(t *testing.T) {
	env := newRegistryEnv(t, WithImageHost(fakeHost{err: errors.New("boom")}))
	env.register(t, userU, "alice", env.serverS)
	out := env.clockIn(t, userU, env.serverS, at(8, 0, 0), image)
	require.Equal(t, ClockedIn, out.Status)
	require.Equal(t, image.URL, out.Record.ImageURL)
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) FindUser(context.Context, string) (*User, error) {
	return nil, errors.New("connection refused")
}

func TestInfrastructureErrorsAreReturned(t *testing.T) {
	reg := NewRegistry(failingStore{NewMemoryStore()})
	_, err := reg.ClockIn(context.Background(), ClockInRequest{PlatformID: userU, ServerID: "x", Now: at(8, 0, 0)})
	require.ErrorContains(t, err, "connection refused")

	_, err = reg.RegisterUser(context.Background(), RegisterRequest{PlatformID: userU, ServerID: "x"})
	require.ErrorContains(t, err, "find user")
}

func TestAttendanceReportFromRegistry(t *testing.T) {
	env := newRegistryEnv(t)
	env.register(t, userU, "alice", env.serverS)
	env.register(t, "1002", "bob", env.serverS)

	day := at(8, 0, 0)
	env.clockIn(t, userU, env.serverS, day.AddDate(0, 0, -10), image)
	env.clockIn(t, userU, env.serverS, day.AddDate(0, 0, -1), image)
	env.clockIn(t, userU, env.serverS, day, image)
	env.clockIn(t, "1002", env.serverS, day.Add(time.Minute), image)

	summary, err := env.registry.AttendanceReport(context.Background(), env.serverS, 7, day.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 7, summary.WindowDays)
	require.Equal(t, 3, summary.Total)
	require.Equal(t, 2, summary.DistinctUsers)
	require.Equal(t, 2, summary.ActiveDays)
	require.Equal(t, "2026-03-02", summary.Days[0].Day)
	require.Equal(t, []string{"alice", "bob"}, summary.Days[0].Usernames)
	require.Equal(t, "alice", summary.TopUsers[0].Username)
	require.Equal(t, 2, summary.TopUsers[0].Count)

	summary, err = env.registry.AttendanceReport(context.Background(), env.serverS, 99, day.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 30, summary.WindowDays)
	require.Equal(t, 4, summary.Total)
}
