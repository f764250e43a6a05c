package mute

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuteWithoutArgsIsIndefiniteAndSelfLiftable(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.s.Mute(ctx, 1, Args())
	require.NoError(t, err)
	assert.Equal(t, IndefiniteExpiry, rec.ExpiresAt)
	assert.True(t, rec.SelfLiftAllowed)
	assert.NotZero(t, rec.ID)
	assert.True(t, h.members.has(1, roleRestricted))
	assert.Zero(t, h.s.ArmedCount(), "indefinite restriction must not arm a timer")

	got, found, err := h.s.Unmute(ctx, 1, UnmuteOpts{RequesterID: 1})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.ID, got.ID)
	assert.False(t, h.members.has(1, roleRestricted))
	_, ok := h.stored(1)
	assert.False(t, ok)
}

func TestMuteComputesExpiryAndTimerLiftsIt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.s.Mute(ctx, 2, Args("3", "m", "true"))
	require.NoError(t, err)
	assert.Equal(t, epoch.Unix()+180, rec.ExpiresAt)
	assert.True(t, h.s.Armed(rec.ID))

	require.Eventually(t, func() bool {
		h.clock.Add(30 * time.Second)
		_, ok := h.stored(2)
		return !ok
	}, 5*time.Second, 5*time.Millisecond)

	assert.False(t, h.members.has(2, roleRestricted))
	require.Eventually(t, func() bool { return h.s.ArmedCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, h.notes.Texts(), "Unmuted member2")
}

func TestTimerDoesNotFireEarly(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.s.Mute(context.Background(), 3, Args("4", "d", "t"))
	require.NoError(t, err)

	h.clock.Add(90 * time.Second)
	time.Sleep(20 * time.Millisecond)
	_, ok := h.stored(3)
	assert.True(t, ok)
	assert.True(t, h.members.has(3, roleRestricted))
}

func TestSelfUnmuteDisabledRequiresAdminOverride(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.s.Mute(ctx, 4, Args("6", "week", "false"))
	require.NoError(t, err)
	assert.False(t, rec.SelfLiftAllowed)

	_, _, err = h.s.Unmute(ctx, 4, UnmuteOpts{RequesterID: 4})
	require.ErrorIs(t, err, ErrPermissionDenied)
	_, ok := h.stored(4)
	assert.True(t, ok, "denied unmute must leave the record")

	_, _, err = h.s.Unmute(ctx, 4, UnmuteOpts{RequesterID: 4, Override: true})
	require.ErrorIs(t, err, ErrPermissionDenied)

	_, found, err := h.s.Unmute(ctx, 4, UnmuteOpts{RequesterID: testAdmin, Override: true})
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, h.members.has(4, roleRestricted))
}

func TestMuteAlreadyRestrictedLeavesRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.s.Mute(ctx, 5, Args("1", "h", "yes"))
	require.NoError(t, err)
	calls := len(h.members.Calls())

	_, err = h.s.Mute(ctx, 5, Args())
	require.ErrorIs(t, err, ErrAlreadyRestricted)

	rec, ok := h.stored(5)
	require.True(t, ok)
	assert.Equal(t, first, rec)
	assert.Len(t, h.members.Calls(), calls, "rejected mute must not touch roles")
}

func TestUnmuteTwiceIsSilent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.s.Mute(ctx, 6, Args())
	require.NoError(t, err)
	_, found, err := h.s.Unmute(ctx, 6, UnmuteOpts{RequesterID: 6})
	require.NoError(t, err)
	require.True(t, found)
	calls := len(h.members.Calls())

	_, found, err = h.s.Unmute(ctx, 6, UnmuteOpts{RequesterID: 6})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Len(t, h.members.Calls(), calls)
}

func TestElevatedRoleRevokedAndRestored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.members.give(7, roleElevated)

	rec, err := h.s.Mute(ctx, 7, Args())
	require.NoError(t, err)
	assert.True(t, rec.HadElevatedRole)
	assert.False(t, h.members.has(7, roleElevated))
	assert.True(t, h.members.has(7, roleRestricted))

	_, _, err = h.s.Unmute(ctx, 7, UnmuteOpts{RequesterID: 7})
	require.NoError(t, err)
	assert.True(t, h.members.has(7, roleElevated))
	assert.False(t, h.members.has(7, roleRestricted))
}

func TestMemberWithoutElevatedRoleDoesNotGainIt(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	rec, err := h.s.Mute(ctx, 8, Args())
	require.NoError(t, err)
	assert.False(t, rec.HadElevatedRole)

	_, _, err = h.s.Unmute(ctx, 8, UnmuteOpts{RequesterID: 8})
	require.NoError(t, err)
	assert.False(t, h.members.has(8, roleElevated))
}

func TestMuteGrantFailureRollsBack(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.members.give(9, roleElevated)
	h.members.setFail("grant", roleRestricted, errBoom)

	_, err := h.s.Mute(context.Background(), 9, Args("1", "h", "y"))
	require.ErrorIs(t, err, ErrRoleAPIFailure)
	require.ErrorIs(t, err, errBoom)

	_, ok := h.stored(9)
	assert.False(t, ok, "record must not outlive a failed role grant")
	assert.True(t, h.members.has(9, roleElevated), "elevated role restored")
	assert.Zero(t, h.s.ArmedCount())
}

func TestMuteStorageFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.members.give(10, roleElevated)
	h.store.setFail("upsert", errBoom)

	_, err := h.s.Mute(context.Background(), 10, Args())
	require.ErrorIs(t, err, ErrStorageFailure)
	assert.False(t, h.members.has(10, roleRestricted))
	assert.True(t, h.members.has(10, roleElevated))
}

func TestUnmuteRoleFailureKeepsRecord(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.s.Mute(ctx, 11, Args())
	require.NoError(t, err)
	h.members.setFail("revoke", roleRestricted, errBoom)

	_, _, err = h.s.Unmute(ctx, 11, UnmuteOpts{RequesterID: 11})
	require.ErrorIs(t, err, ErrRoleAPIFailure)
	_, ok := h.stored(11)
	assert.True(t, ok)
}

func TestUnmuteDeleteFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.s.Mute(ctx, 12, Args())
	require.NoError(t, err)
	h.store.setFail("delete", errBoom)

	_, _, err = h.s.Unmute(ctx, 12, UnmuteOpts{RequesterID: 12})
	require.ErrorIs(t, err, ErrStorageFailure)
}

func TestStaleTimerKeepsNewerRestriction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	old, err := h.s.Mute(ctx, 13, Args("1", "m", "true"))
	require.NoError(t, err)
	_, _, err = h.s.Unmute(ctx, 13, UnmuteOpts{RequesterID: 13})
	require.NoError(t, err)
	cur, err := h.s.Mute(ctx, 13, Args())
	require.NoError(t, err)
	require.NotEqual(t, old.ID, cur.ID)

	h.clock.Add(time.Minute)
	require.Eventually(t, func() bool { return !h.s.Armed(old.ID) }, 2*time.Second, 5*time.Millisecond)

	rec, ok := h.stored(13)
	require.True(t, ok)
	assert.Equal(t, cur.ID, rec.ID)
	assert.True(t, h.members.has(13, roleRestricted))
}

func TestAuditTrail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.s.Mute(ctx, 14, Args())
	require.NoError(t, err)
	_, err = h.s.Mute(ctx, 14, Args())
	require.Error(t, err)
	_, _, err = h.s.Unmute(ctx, 14, UnmuteOpts{RequesterID: testAdmin, Override: true})
	require.NoError(t, err)

	evs := h.audit.Events()
	require.Len(t, evs, 3)
	assert.True(t, evs[0].OK)
	assert.Equal(t, "mute", evs[0].Action)
	assert.False(t, evs[1].OK)
	assert.Contains(t, evs[1].Err, "already restricted")
	assert.Equal(t, TriggerOverride, evs[2].Trigger)
	assert.Equal(t, testAdmin, evs[2].ActorID)
}

func TestMuteRequiresStart(t *testing.T) {
	t.Parallel()
	s, err := NewScheduler(Config{AdminID: testAdmin, RestrictionRole: roleRestricted}, Deps{
		Store:      newMemStore(),
		Membership: newFakeMembership(),
		Clock:      clock.NewMock(),
	})
	require.NoError(t, err)
	_, err = s.Mute(context.Background(), 1, Args())
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestNewSchedulerValidation(t *testing.T) {
	t.Parallel()
	deps := Deps{Store: newMemStore(), Membership: newFakeMembership()}

	_, err := NewScheduler(Config{RestrictionRole: roleRestricted}, deps)
	require.Error(t, err, "admin id is required")
	_, err = NewScheduler(Config{AdminID: testAdmin}, deps)
	require.Error(t, err, "restriction role is required")
	_, err = NewScheduler(Config{AdminID: testAdmin, RestrictionRole: roleRestricted}, Deps{Membership: newFakeMembership()})
	require.Error(t, err)

	s, err := NewScheduler(Config{AdminID: testAdmin, RestrictionRole: " restricted "}, deps)
	require.NoError(t, err)
	assert.Equal(t, roleRestricted, s.Config().RestrictionRole)
	assert.Equal(t, defaultRoleTimeout, s.Config().RoleTimeout)
}

func TestKind(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "storage", Kind(ErrStorageFailure))
	assert.Equal(t, "role_api", Kind(ErrRoleAPIFailure))
	assert.Equal(t, "other", Kind(errBoom))
	assert.Empty(t, Kind(nil))
}
