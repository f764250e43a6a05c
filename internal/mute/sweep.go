package mute

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "snoozebot/pkg/logx"
)

// Sweeper re-runs Reconcile on a cron schedule. Because armed timers are
// de-duplicated, a pass only picks up records whose timer is gone (for
// example after a failed expiry unmute).
type Sweeper struct {
	rec    *Recovery
	log    logx.Logger
	parser cron.Parser

	mu   sync.Mutex
	c    *cron.Cron
	spec string
}

func NewSweeper(rec *Recovery, log logx.Logger) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{
		rec: rec,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateSchedule reports whether spec parses. Empty is valid (disabled).
func (w *Sweeper) ValidateSchedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	if _, err := w.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// Apply (re)starts the sweep with spec. Empty stops it.
func (w *Sweeper) Apply(ctx context.Context, spec string) error {
	spec = strings.TrimSpace(spec)
	w.mu.Lock()
	defer w.mu.Unlock()
	if spec == w.spec && (w.c != nil || spec == "") {
		return nil
	}
	if err := w.ValidateSchedule(spec); err != nil {
		return err
	}
	w.stopLocked()
	w.spec = spec
	if spec == "" {
		w.log.Info("sweep disabled")
		return nil
	}

	c := cron.New(cron.WithParser(w.parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { w.run(ctx) }); err != nil {
		return fmt.Errorf("add sweep: %w", err)
	}
	c.Start()
	w.c = c
	w.log.Info("sweep scheduled", logx.String("spec", spec))
	return nil
}

func (w *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := w.rec.Reconcile(ctx, w.rec.s.clk.Now())
	if err != nil {
		w.log.Warn("sweep failed", logx.Err(err))
		return
	}
	if rep.Armed > 0 {
		w.log.Info("sweep re-armed timers", logx.Int("armed", rep.Armed))
	}
}

// Stop halts the schedule and waits for a running pass, bounded by ctx.
func (w *Sweeper) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.c
	w.c = nil
	w.spec = ""
	w.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (w *Sweeper) stopLocked() {
	if w.c == nil {
		return
	}
	stopCtx := w.c.Stop()
	w.c = nil
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
}
