package mute

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"snoozebot/internal/runtime/supervisor"
	logx "snoozebot/pkg/logx"
)

// maxTimerSlice caps a single wait. Remaining time is recomputed from the
// absolute expiry on every wake, so a suspended host catches up within one
// slice.
const maxTimerSlice = time.Minute

const timerGoroutine = "mute.timer"

// arm starts the expiry timer for rec unless one is already running for the
// same record id. The first timer is created before arm returns so a clock
// advanced right afterwards still reaches it.
func (s *Scheduler) arm(sup *supervisor.Supervisor, rec Record, now time.Time) bool {
	d, ok := Remaining(now, rec.ExpiresAt)
	if !ok {
		return false
	}

	s.tmu.Lock()
	if _, dup := s.armed[rec.ID]; dup {
		s.tmu.Unlock()
		return false
	}
	s.armed[rec.ID] = rec.MemberID
	var first *clock.Timer
	if d > 0 {
		first = s.clk.Timer(min(d, maxTimerSlice))
	}
	s.tmu.Unlock()

	s.rec.TimerArmed()
	s.log.Debug("timer armed", logx.Int64("member_id", rec.MemberID), logx.Int64("mute_id", rec.ID), logx.Duration("in", d))
	sup.Go0(timerGoroutine, func(ctx context.Context) {
		defer s.disarm(rec.ID)
		s.runTimer(ctx, rec, first)
	})
	return true
}

func (s *Scheduler) disarm(recordID int64) {
	s.tmu.Lock()
	delete(s.armed, recordID)
	s.tmu.Unlock()
	s.rec.TimerDone()
}

func (s *Scheduler) runTimer(ctx context.Context, rec Record, t *clock.Timer) {
	for {
		if t != nil {
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
		if ctx.Err() != nil {
			return
		}
		d, _ := Remaining(s.clk.Now(), rec.ExpiresAt)
		if d > 0 {
			t = s.clk.Timer(min(d, maxTimerSlice))
			continue
		}
		s.expire(ctx, rec)
		return
	}
}

// expire lifts rec as the administrator. A record that is gone or was
// replaced makes this a no-op. Failures leave the record for the next
// Reconcile.
func (s *Scheduler) expire(ctx context.Context, rec Record) {
	cfg := s.Config()
	_, lifted, err := s.unmute(ctx, rec.MemberID, UnmuteOpts{RequesterID: cfg.AdminID, Override: true}, TriggerExpiry, rec.ID)
	if err != nil {
		s.log.Warn("expiry unmute failed; record kept", logx.Int64("member_id", rec.MemberID), logx.Int64("mute_id", rec.ID), logx.Err(err))
		return
	}
	if !lifted {
		s.log.Debug("timer fired without a matching record", logx.Int64("member_id", rec.MemberID), logx.Int64("mute_id", rec.ID))
		return
	}
	if !cfg.Announce || s.notifier == nil {
		return
	}
	m := s.ResolveMember(ctx, rec.MemberID)
	if err := s.notifier.Announce(ctx, "Unmuted "+m.Display()); err != nil {
		s.log.Warn("expiry announcement failed", logx.Int64("member_id", rec.MemberID), logx.Err(err))
	}
}

// Armed reports whether a timer is running for the record id.
func (s *Scheduler) Armed(recordID int64) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	_, ok := s.armed[recordID]
	return ok
}

// ArmedCount returns the number of running timers.
func (s *Scheduler) ArmedCount() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.armed)
}
