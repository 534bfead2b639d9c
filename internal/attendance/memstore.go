package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory for development and tests.
// It enforces the same uniqueness rules as the Postgres schema.
type MemoryStore struct {
	mu          sync.Mutex
	servers     map[string]Server // by discord id
	users       map[string]User   // by platform id
	memberships map[membershipKey]Membership
	records     []Record
}

type membershipKey struct{ userID, serverID string }

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		servers:     map[string]Server{},
		users:       map[string]User{},
		memberships: map[membershipKey]Membership{},
	}
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) FindServer(_ context.Context, discordID string) (*Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[discordID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) CreateServer(_ context.Context, s Server) (Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.servers[s.DiscordID]; ok {
		return Server{}, ErrDuplicate
	}
	m.servers[s.DiscordID] = s
	return s, nil
}

func (m *MemoryStore) FindUser(_ context.Context, platformID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[platformID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *MemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.PlatformID]; ok {
		return User{}, ErrDuplicate
	}
	m.users[u.PlatformID] = u
	return u, nil
}

func (m *MemoryStore) UpdateUsername(_ context.Context, userID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pid, u := range m.users {
		if u.ID == userID {
			u.Username = username
			m.users[pid] = u
		}
	}
	return nil
}

func (m *MemoryStore) FindMembership(_ context.Context, userID, serverID string) (*Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.memberships[membershipKey{userID, serverID}]
	if !ok {
		return nil, nil
	}
	return &ms, nil
}

func (m *MemoryStore) CreateMembership(_ context.Context, ms Membership) (Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := membershipKey{ms.UserID, ms.ServerID}
	if _, ok := m.memberships[key]; ok {
		return Membership{}, ErrDuplicate
	}
	m.memberships[key] = ms
	return ms, nil
}

func (m *MemoryStore) DeleteMembership(_ context.Context, userID, serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.memberships, membershipKey{userID, serverID})
	return nil
}

func (m *MemoryStore) ListMembers(_ context.Context, serverID string) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Member
	for key, ms := range m.memberships {
		if key.serverID != serverID {
			continue
		}
		u, ok := m.userByID(key.userID)
		if !ok {
			continue
		}
		res = append(res, Member{
			PlatformID:   u.PlatformID,
			Username:     u.Username,
			JoinedAt:     ms.JoinedAt,
			RegisteredBy: ms.RegisteredBy,
		})
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].JoinedAt.Equal(res[j].JoinedAt) {
			return res[i].JoinedAt.Before(res[j].JoinedAt)
		}
		return res[i].PlatformID < res[j].PlatformID
	})
	return res, nil
}

func (m *MemoryStore) FindRecord(_ context.Context, userID, serverID string, from, to time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.UserID == userID && r.ServerID == serverID && inRange(r.ClockIn, from, to) {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateRecord(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.UserID == rec.UserID && r.ServerID == rec.ServerID && r.LocalDay == rec.LocalDay {
			return Record{}, ErrDuplicate
		}
	}
	m.records = append(m.records, rec)
	sort.SliceStable(m.records, func(i, j int) bool { return m.records[i].ClockIn.Before(m.records[j].ClockIn) })
	return rec, nil
}

func (m *MemoryStore) CountRecords(_ context.Context, serverID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.ServerID == serverID && inRange(r.ClockIn, from, to) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListRecordsSince(_ context.Context, serverID string, since time.Time) ([]ReportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []ReportRow
	for _, r := range m.records {
		if r.ServerID != serverID || r.ClockIn.Before(since) {
			continue
		}
		row := ReportRow{UserID: r.UserID, ClockIn: r.ClockIn, ImageURL: r.ImageURL}
		if u, ok := m.userByID(r.UserID); ok {
			row.Username = u.Username
		}
		res = append(res, row)
	}
	return res, nil
}

// RecordCount returns the number of stored clock-ins.
func (m *MemoryStore) RecordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *MemoryStore) userByID(id string) (User, bool) {
	for _, u := range m.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
