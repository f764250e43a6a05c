package mute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileRunsTimersIndependently(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now()

	const memberA, memberB int64 = 101, 102
	h.members.give(memberA, roleRestricted)
	h.members.give(memberB, roleRestricted)
	h.store.put(Record{MemberID: memberA, ExpiresAt: now.Unix() - 10, SelfLiftAllowed: true})
	h.store.put(Record{MemberID: memberB, ExpiresAt: now.Unix() + 5, SelfLiftAllowed: true})
	releaseA := h.members.gate(memberA)

	rep, err := NewRecovery(h.s).Reconcile(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Records: 2, Armed: 2}, rep)

	// A is overdue and now stuck in RevokeRole; B must still lift on time.
	h.clock.Add(5 * time.Second)
	require.Eventually(t, func() bool {
		_, ok := h.stored(memberB)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	_, ok := h.stored(memberA)
	assert.True(t, ok, "A is still blocked")

	close(releaseA)
	require.Eventually(t, func() bool {
		_, ok := h.stored(memberA)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.members.has(memberA, roleRestricted))
	assert.False(t, h.members.has(memberB, roleRestricted))
}

func TestReconcileFutureRecordWaits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := h.clock.Now()
	h.store.put(Record{MemberID: 103, ExpiresAt: now.Unix() + 5})

	_, err := NewRecovery(h.s).Reconcile(context.Background(), now)
	require.NoError(t, err)

	h.clock.Add(4 * time.Second)
	time.Sleep(20 * time.Millisecond)
	_, ok := h.stored(103)
	assert.True(t, ok, "timer fired before expiry")

	h.clock.Add(time.Second)
	require.Eventually(t, func() bool {
		_, ok := h.stored(103)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := h.clock.Now()
	h.store.put(Record{MemberID: 104, ExpiresAt: now.Unix() + 3600})
	h.store.put(Record{MemberID: 105, ExpiresAt: IndefiniteExpiry})

	rec := NewRecovery(h.s)
	first, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Records: 2, Armed: 1, Indefinite: 1}, first)

	second, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Records: 2, AlreadyArmed: 1, Indefinite: 1}, second)
	assert.Equal(t, 1, h.s.ArmedCount())
}

func TestReconcileStorageFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.setFail("list", errBoom)

	_, err := NewRecovery(h.s).Reconcile(context.Background(), h.clock.Now())
	require.ErrorIs(t, err, ErrStorageFailure)
}

func TestReconcileRearmsAfterFailedExpiry(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	now := h.clock.Now()
	h.store.put(Record{MemberID: 106, ExpiresAt: now.Unix() - 1})
	h.members.setFail("revoke", roleRestricted, errBoom)

	rec := NewRecovery(h.s)
	_, err := rec.Reconcile(context.Background(), now)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.s.ArmedCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	_, ok := h.stored(106)
	require.True(t, ok, "failed expiry keeps the record")

	h.members.setFail("revoke", roleRestricted, nil)
	rep, err := rec.Reconcile(context.Background(), h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Armed)
	require.Eventually(t, func() bool {
		_, ok := h.stored(106)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSweeperSchedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	w := NewSweeper(NewRecovery(h.s), h.s.log)

	require.NoError(t, w.ValidateSchedule(""))
	require.NoError(t, w.ValidateSchedule("@every 5m"))
	require.NoError(t, w.ValidateSchedule("0 */10 * * * *"))
	require.Error(t, w.ValidateSchedule("every now and then"))

	ctx := context.Background()
	require.NoError(t, w.Apply(ctx, "@every 1h"))
	require.NoError(t, w.Apply(ctx, ""))
	w.Stop(ctx)
}
