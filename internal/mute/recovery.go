package mute

import (
	"context"
	"fmt"
	"time"

	logx "snoozebot/pkg/logx"
)

// Recovery re-arms timers from the store after a restart.
type Recovery struct {
	s *Scheduler
}

func NewRecovery(s *Scheduler) *Recovery { return &Recovery{s: s} }

// ReconcileReport summarizes one Reconcile pass.
type ReconcileReport struct {
	Records      int // records read from the store
	Armed        int // new timers
	AlreadyArmed int // finite records whose timer was still running
	Indefinite   int // sentinel records, never armed
}

// Reconcile arms one independent timer per stored finite record, due at
// max(0, expiresAt-now). Records that already have a timer in this process
// are skipped, so repeated calls are safe.
func (r *Recovery) Reconcile(ctx context.Context, now time.Time) (ReconcileReport, error) {
	s := r.s
	sup := s.supervisor()
	if sup == nil {
		return ReconcileReport{}, ErrNotStarted
	}
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		s.rec.Failure(Kind(ErrStorageFailure))
		return ReconcileReport{}, fmt.Errorf("%w: failed to list mute records: %w", ErrStorageFailure, err)
	}

	rep := ReconcileReport{Records: len(recs)}
	for _, rec := range recs {
		if rec.Indefinite() {
			rep.Indefinite++
			continue
		}
		if s.arm(sup, rec, now) {
			rep.Armed++
		} else {
			rep.AlreadyArmed++
		}
	}
	s.log.Info("reconcile done",
		logx.Int("records", rep.Records),
		logx.Int("armed", rep.Armed),
		logx.Int("already_armed", rep.AlreadyArmed),
		logx.Int("indefinite", rep.Indefinite),
	)
	return rep, nil
}
