package mute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin      int64  = 900
	roleRestricted RoleID = "restricted"
	roleElevated   RoleID = "admin"
)

var epoch = time.Unix(1_700_000_000, 0)

type memStore struct {
	mu     sync.Mutex
	nextID int64
	byMem  map[int64]Record
	failOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{byMem: map[int64]Record{}, failOn: map[string]error{}}
}

func (m *memStore) fail(op string) error {
	return m.failOn[op]
}

func (m *memStore) Upsert(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("upsert"); err != nil {
		return Record{}, err
	}
	m.nextID++
	rec.ID = m.nextID
	m.byMem[rec.MemberID] = rec
	return rec, nil
}

func (m *memStore) Get(_ context.Context, memberID int64) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("get"); err != nil {
		return Record{}, false, err
	}
	rec, ok := m.byMem[memberID]
	return rec, ok, nil
}

func (m *memStore) Delete(_ context.Context, memberID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete"); err != nil {
		return err
	}
	delete(m.byMem, memberID)
	return nil
}

func (m *memStore) ListAll(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("list"); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(m.byMem))
	for _, r := range m.byMem {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) put(rec Record) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.byMem[rec.MemberID] = rec
	return rec
}

func (m *memStore) setFail(op string, err error) {
	m.mu.Lock()
	m.failOn[op] = err
	m.mu.Unlock()
}

type roleCall struct {
	Op     string
	Member int64
	Role   RoleID
}

type fakeMembership struct {
	mu     sync.Mutex
	roles  map[int64]map[RoleID]bool
	calls  []roleCall
	failOn map[string]error
	gates  map[int64]chan struct{} // RevokeRole blocks until closed
}

func newFakeMembership() *fakeMembership {
	return &fakeMembership{
		roles:  map[int64]map[RoleID]bool{},
		failOn: map[string]error{},
		gates:  map[int64]chan struct{}{},
	}
}

func (f *fakeMembership) give(member int64, role RoleID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[member] == nil {
		f.roles[member] = map[RoleID]bool{}
	}
	f.roles[member][role] = true
}

func (f *fakeMembership) has(member int64, role RoleID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[member][role]
}

func (f *fakeMembership) gate(member int64) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[member] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeMembership) setFail(op string, role RoleID, err error) {
	f.mu.Lock()
	f.failOn[op+":"+string(role)] = err
	f.mu.Unlock()
}

func (f *fakeMembership) record(op string, member int64, role RoleID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, roleCall{Op: op, Member: member, Role: role})
	return f.failOn[op+":"+string(role)]
}

func (f *fakeMembership) Calls() []roleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]roleCall(nil), f.calls...)
}

func (f *fakeMembership) HasRole(_ context.Context, member int64, role RoleID) (bool, error) {
	if err := f.record("has", member, role); err != nil {
		return false, err
	}
	return f.has(member, role), nil
}

func (f *fakeMembership) GrantRole(_ context.Context, member int64, role RoleID) error {
	if err := f.record("grant", member, role); err != nil {
		return err
	}
	f.give(member, role)
	return nil
}

func (f *fakeMembership) RevokeRole(ctx context.Context, member int64, role RoleID) error {
	f.mu.Lock()
	gate := f.gates[member]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := f.record("revoke", member, role); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.roles[member], role)
	f.mu.Unlock()
	return nil
}

func (f *fakeMembership) ResolveMember(_ context.Context, member int64) (Member, error) {
	if member <= 0 {
		return Member{}, fmt.Errorf("resolve %d: %w", member, ErrMemberNotFound)
	}
	return Member{ID: member, Name: fmt.Sprintf("member%d", member)}, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Announce(_ context.Context, text string) error {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *fakeAuditor) Audit(_ context.Context, ev AuditEvent) error {
	a.mu.Lock()
	a.events = append(a.events, ev)
	a.mu.Unlock()
	return nil
}

func (a *fakeAuditor) Events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEvent(nil), a.events...)
}

var errBoom = errors.New("boom")

type harness struct {
	s       *Scheduler
	store   *memStore
	members *fakeMembership
	clock   *clock.Mock
	notes   *fakeNotifier
	audit   *fakeAuditor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(epoch)
	h := &harness{
		store:   newMemStore(),
		members: newFakeMembership(),
		clock:   mock,
		notes:   &fakeNotifier{},
		audit:   &fakeAuditor{},
	}
	s, err := NewScheduler(Config{
		AdminID:         testAdmin,
		RestrictionRole: roleRestricted,
		ElevatedRole:    roleElevated,
		RoleTimeout:     5 * time.Second,
		Announce:        true,
	}, Deps{
		Store:      h.store,
		Membership: h.members,
		Clock:      mock,
		Notifier:   h.notes,
		Auditor:    h.audit,
	})
	require.NoError(t, err)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	h.s = s
	return h
}

func (h *harness) stored(member int64) (Record, bool) {
	rec, ok, _ := h.store.Get(context.Background(), member)
	return rec, ok
}
