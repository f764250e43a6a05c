package mute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"snoozebot/internal/runtime/supervisor"
	logx "snoozebot/pkg/logx"
)

const defaultRoleTimeout = 15 * time.Second

type Config struct {
	// AdminID is the only requester allowed to override a restriction.
	// Expiry timers act as this identity.
	AdminID int64

	RestrictionRole RoleID
	// ElevatedRole is revoked for the duration of a restriction and restored
	// afterwards. Empty disables elevated-role handling.
	ElevatedRole RoleID

	// RoleTimeout bounds each call to the membership backend.
	RoleTimeout time.Duration

	// Announce posts "Unmuted <member>" when a timer lifts a restriction.
	Announce bool
}

func (c Config) normalize() Config {
	if c.RoleTimeout <= 0 {
		c.RoleTimeout = defaultRoleTimeout
	}
	c.RestrictionRole = RoleID(strings.TrimSpace(string(c.RestrictionRole)))
	c.ElevatedRole = RoleID(strings.TrimSpace(string(c.ElevatedRole)))
	return c
}

func (c Config) validate() error {
	if c.AdminID == 0 {
		return errors.New("mute: admin id required")
	}
	if c.RestrictionRole == "" {
		return errors.New("mute: restriction role required")
	}
	return nil
}

// Deps are the collaborators of a Scheduler. Store and Membership are
// required; the rest fall back to no-op or wall-clock implementations.
type Deps struct {
	Store      Store
	Membership Membership
	Clock      clock.Clock
	Notifier   Notifier
	Auditor    Auditor
	Recorder   Recorder
	Log        logx.Logger
}

// UnmuteOpts identifies who asks for a lift. Override bypasses the
// self-lift flag and is reserved for Config.AdminID.
type UnmuteOpts struct {
	RequesterID int64
	Override    bool
}

// Scheduler applies and lifts restrictions and owns the expiry timers.
type Scheduler struct {
	store    Store
	members  Membership
	clk      clock.Clock
	notifier Notifier
	auditor  Auditor
	rec      Recorder
	log      logx.Logger

	mu  sync.RWMutex
	cfg Config
	sup *supervisor.Supervisor

	locks memberLocks

	tmu   sync.Mutex
	armed map[int64]int64 // record id -> member id
}

func NewScheduler(cfg Config, deps Deps) (*Scheduler, error) {
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.New("mute: store required")
	}
	if deps.Membership == nil {
		return nil, errors.New("mute: membership required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		store:    deps.Store,
		members:  deps.Membership,
		clk:      deps.Clock,
		notifier: deps.Notifier,
		auditor:  deps.Auditor,
		rec:      deps.Recorder,
		log:      log,
		cfg:      cfg,
		armed:    map[int64]int64{},
	}, nil
}

// Start enables timers. Timer goroutines live until Stop or until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.log.Info("scheduler started", logx.Int64("admin_id", s.cfg.AdminID), logx.String("restriction_role", string(s.cfg.RestrictionRole)))
}

// Stop cancels every armed timer and waits for them to exit. Records stay
// in the store and are re-armed by the next Reconcile.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	start := time.Now()
	err := sup.Stop(ctx)
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	return err
}

// SetConfig swaps the runtime config (hot reload). Armed timers read the
// admin id when they fire, so the change applies to them too.
func (s *Scheduler) SetConfig(cfg Config) error {
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Scheduler) supervisor() *supervisor.Supervisor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sup
}

// Clock returns the scheduler's time source.
func (s *Scheduler) Clock() clock.Clock { return s.clk }

// Get returns the member's current record, if any.
func (s *Scheduler) Get(ctx context.Context, memberID int64) (Record, bool, error) {
	rec, ok, err := s.store.Get(ctx, memberID)
	if err != nil {
		s.rec.Failure(Kind(ErrStorageFailure))
		return Record{}, false, fmt.Errorf("%w: failed to get mute record: %w", ErrStorageFailure, err)
	}
	return rec, ok, nil
}

// List returns every stored record.
func (s *Scheduler) List(ctx context.Context) ([]Record, error) {
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		s.rec.Failure(Kind(ErrStorageFailure))
		return nil, fmt.Errorf("%w: failed to list mute records: %w", ErrStorageFailure, err)
	}
	return recs, nil
}

// Mute restricts memberID. The record is persisted before the restriction
// role is granted; a finite restriction gets its own timer.
func (s *Scheduler) Mute(ctx context.Context, memberID int64, args MuteArgs) (rec Record, err error) {
	sup := s.supervisor()
	if sup == nil {
		return Record{}, ErrNotStarted
	}
	unlock := s.locks.lock(memberID)
	defer unlock()

	cfg := s.Config()
	log := s.log.With(logx.Int64("member_id", memberID))
	defer func() {
		ev := AuditEvent{Action: "mute", MemberID: memberID, ActorID: memberID, OK: err == nil}
		if err != nil {
			ev.Err = err.Error()
			s.rec.Failure(Kind(err))
		} else {
			ev.Detail = describeExpiry(rec.ExpiresAt, s.clk.Now())
		}
		s.audit(ctx, ev)
	}()

	if _, found, gerr := s.store.Get(ctx, memberID); gerr != nil {
		return Record{}, fmt.Errorf("%w: failed to get mute record: %w", ErrStorageFailure, gerr)
	} else if found {
		return Record{}, ErrAlreadyRestricted
	}

	spec, err := args.Parse()
	if err != nil {
		return Record{}, err
	}

	hadElevated := false
	if cfg.ElevatedRole != "" {
		hadElevated, err = s.hasRole(ctx, cfg, memberID, cfg.ElevatedRole)
		if err != nil {
			return Record{}, fmt.Errorf("%w: check elevated role: %w", ErrRoleAPIFailure, err)
		}
		if hadElevated {
			if err := s.revokeRole(ctx, cfg, memberID, cfg.ElevatedRole); err != nil {
				return Record{}, fmt.Errorf("%w: revoke elevated role: %w", ErrRoleAPIFailure, err)
			}
		}
	}

	rec = Record{
		MemberID:        memberID,
		ExpiresAt:       ComputeExpiry(s.clk.Now().Unix(), spec.Duration),
		HadElevatedRole: hadElevated,
		SelfLiftAllowed: spec.SelfLift,
	}
	rec, err = s.store.Upsert(ctx, rec)
	if err != nil {
		if hadElevated {
			s.restoreElevated(ctx, cfg, memberID)
		}
		return Record{}, fmt.Errorf("%w: failed to upsert mute record: %w", ErrStorageFailure, err)
	}

	if err := s.grantRole(ctx, cfg, memberID, cfg.RestrictionRole); err != nil {
		s.compensate(ctx, cfg, rec)
		return Record{}, fmt.Errorf("%w: grant restriction role: %w", ErrRoleAPIFailure, err)
	}
	s.rec.Muted()

	armed := false
	if !rec.Indefinite() {
		armed = s.arm(sup, rec, s.clk.Now())
	}
	log.Info("member muted",
		logx.Int64("mute_id", rec.ID),
		logx.String("duration", spec.Duration.String()),
		logx.Bool("self_lift", rec.SelfLiftAllowed),
		logx.Bool("had_elevated", rec.HadElevatedRole),
		logx.Bool("timer", armed),
	)
	return rec, nil
}

// compensate undoes a persisted mute whose restriction role never applied.
// It runs detached from the caller's context.
func (s *Scheduler) compensate(ctx context.Context, cfg Config, rec Record) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.RoleTimeout)
	defer cancel()
	if err := s.store.Delete(cctx, rec.MemberID); err != nil {
		s.log.Error("compensation: delete mute record failed", logx.Int64("member_id", rec.MemberID), logx.Int64("mute_id", rec.ID), logx.Err(err))
	}
	if rec.HadElevatedRole {
		s.restoreElevated(cctx, cfg, rec.MemberID)
	}
}

func (s *Scheduler) restoreElevated(ctx context.Context, cfg Config, memberID int64) {
	if err := s.grantRole(context.WithoutCancel(ctx), cfg, memberID, cfg.ElevatedRole); err != nil {
		s.log.Error("compensation: restore elevated role failed", logx.Int64("member_id", memberID), logx.Err(err))
	}
}

// Unmute lifts memberID's restriction. found is false (and err nil) when the
// member is not restricted; no role calls are made in that case.
func (s *Scheduler) Unmute(ctx context.Context, memberID int64, opts UnmuteOpts) (Record, bool, error) {
	trigger := TriggerSelf
	if opts.Override {
		trigger = TriggerOverride
	}
	return s.unmute(ctx, memberID, opts, trigger, 0)
}

// unmute is the shared lift path. A non-zero expectID restricts the lift to
// that exact record so a timer never lifts a newer restriction.
func (s *Scheduler) unmute(ctx context.Context, memberID int64, opts UnmuteOpts, trigger Trigger, expectID int64) (rec Record, found bool, err error) {
	unlock := s.locks.lock(memberID)
	defer unlock()

	cfg := s.Config()
	rec, found, err = s.store.Get(ctx, memberID)
	if err != nil {
		err = fmt.Errorf("%w: failed to get mute record: %w", ErrStorageFailure, err)
		s.rec.Failure(Kind(err))
		return Record{}, false, err
	}
	if !found || (expectID != 0 && rec.ID != expectID) {
		return Record{}, false, nil
	}

	defer func() {
		ev := AuditEvent{Action: "unmute", MemberID: memberID, ActorID: opts.RequesterID, Trigger: trigger, OK: err == nil}
		if err != nil {
			ev.Err = err.Error()
			s.rec.Failure(Kind(err))
		} else {
			ev.Detail = fmt.Sprintf("mute_id=%d", rec.ID)
		}
		s.audit(ctx, ev)
	}()

	if opts.Override {
		if opts.RequesterID != cfg.AdminID {
			return Record{}, false, fmt.Errorf("%w: override requires the administrator", ErrPermissionDenied)
		}
	} else if !rec.SelfLiftAllowed {
		return Record{}, false, fmt.Errorf("%w: self unmute disabled for this restriction", ErrPermissionDenied)
	}

	if err := s.revokeRole(ctx, cfg, memberID, cfg.RestrictionRole); err != nil {
		return Record{}, false, fmt.Errorf("%w: revoke restriction role: %w", ErrRoleAPIFailure, err)
	}
	if rec.HadElevatedRole && cfg.ElevatedRole != "" {
		if err := s.grantRole(ctx, cfg, memberID, cfg.ElevatedRole); err != nil {
			return Record{}, false, fmt.Errorf("%w: restore elevated role: %w", ErrRoleAPIFailure, err)
		}
	}
	if err := s.store.Delete(ctx, memberID); err != nil {
		return Record{}, false, fmt.Errorf("%w: failed to delete mute record: %w", ErrStorageFailure, err)
	}

	s.rec.Unmuted(trigger)
	s.log.Info("member unmuted",
		logx.Int64("member_id", memberID),
		logx.Int64("mute_id", rec.ID),
		logx.String("trigger", string(trigger)),
		logx.Int64("requester_id", opts.RequesterID),
	)
	return rec, true, nil
}

// ResolveMember returns a display handle, falling back to the bare id.
func (s *Scheduler) ResolveMember(ctx context.Context, memberID int64) Member {
	cfg := s.Config()
	rctx, cancel := context.WithTimeout(ctx, cfg.RoleTimeout)
	defer cancel()
	m, err := s.members.ResolveMember(rctx, memberID)
	if err != nil {
		return Member{ID: memberID}
	}
	return m
}

func (s *Scheduler) hasRole(ctx context.Context, cfg Config, memberID int64, role RoleID) (bool, error) {
	rctx, cancel := context.WithTimeout(ctx, cfg.RoleTimeout)
	defer cancel()
	return s.members.HasRole(rctx, memberID, role)
}

func (s *Scheduler) grantRole(ctx context.Context, cfg Config, memberID int64, role RoleID) error {
	rctx, cancel := context.WithTimeout(ctx, cfg.RoleTimeout)
	defer cancel()
	return s.members.GrantRole(rctx, memberID, role)
}

func (s *Scheduler) revokeRole(ctx context.Context, cfg Config, memberID int64, role RoleID) error {
	rctx, cancel := context.WithTimeout(ctx, cfg.RoleTimeout)
	defer cancel()
	return s.members.RevokeRole(rctx, memberID, role)
}

func (s *Scheduler) audit(ctx context.Context, ev AuditEvent) {
	if s.auditor == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.clk.Now()
	}
	if err := s.auditor.Audit(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn("audit append failed", logx.String("action", ev.Action), logx.Int64("member_id", ev.MemberID), logx.Err(err))
	}
}
