package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"snoozebot/internal/mute"
	"snoozebot/internal/transport/telegram/router"
	logx "snoozebot/pkg/logx"
)

const (
	replyAlreadyMuted    = "You are already muted. Please wait for your unmute to finish or /unmute"
	replyBadArgs         = "Arguments not recognized"
	replySelfLiftOff     = "Self unmute disabled. If you want in regardless message an admin"
	replyNoPermission    = "You don't have the permission to unmute other users"
	replyStorageFailure  = "Could not save the change, nothing was applied. Try again later"
	replyRoleFailure     = "Telegram refused the permission change. Try again later"
	replyMemberNotFound  = "That member is not in the chat"
	replyNotRunning      = "The bot is starting up, try again in a moment"
	replyUnexpectedError = "Something went wrong"
)

// moderation holds the chat commands bound to the scheduler.
type moderation struct {
	sched    *mute.Scheduler
	recovery *mute.Recovery
}

func (m *moderation) commands() []router.Command {
	return []router.Command{
		{
			Name:        "mute",
			Aliases:     []string{"selfmute", "snooze"},
			Description: "mute yourself",
			Usage:       "/mute [time] [m|h|d|w] [selfUnmute]",
			Handle:      m.handleMute,
		},
		{
			Name:        "unmute",
			Aliases:     []string{"selfunmute"},
			Description: "lift a mute",
			Usage:       "/unmute [memberId] [override]",
			Handle:      m.handleUnmute,
		},
		{
			Name:        "mutestatus",
			Aliases:     []string{"status"},
			Description: "show your mute",
			Usage:       "/mutestatus",
			Handle:      m.handleStatus,
		},
		{
			Name:        "reconcile",
			Aliases:     []string{"restartunmute", "sumt"},
			Description: "re-arm unmute timers",
			Usage:       "/reconcile",
			Access:      router.AccessOwnerOnly,
			Timeout:     time.Minute,
			Handle:      m.handleReconcile,
		},
		{
			Name:        "dump",
			Aliases:     []string{"pdb", "printdb"},
			Description: "list all mutes",
			Usage:       "/dump",
			Access:      router.AccessOwnerOnly,
			Handle:      m.handleDump,
		},
	}
}

func (m *moderation) handleMute(ctx context.Context, req *router.Request) error {
	args := req.Args
	// Self-lift defaults to true when only a duration is given.
	if len(args) == 2 {
		args = append(args, "true")
	}
	rec, err := m.sched.Mute(ctx, req.FromID, mute.Args(args...))
	if err != nil {
		return replyErr(ctx, req, err, false)
	}
	who := callerName(req)
	if len(req.Args) == 0 {
		return req.Reply(ctx, fmt.Sprintf("Muted %s (Allow self unmute: %t)", who, rec.SelfLiftAllowed))
	}
	return req.Reply(ctx, fmt.Sprintf("Muted %s for %s%s (Allow self unmute: %t)", who, req.Args[0], req.Args[1], rec.SelfLiftAllowed))
}

func (m *moderation) handleUnmute(ctx context.Context, req *router.Request) error {
	target := req.FromID
	override := false
	if len(req.Args) > 2 {
		return req.Reply(ctx, replyBadArgs)
	}
	if len(req.Args) >= 1 {
		id, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil || id <= 0 {
			return req.Reply(ctx, replyBadArgs)
		}
		target = id
	}
	if len(req.Args) == 2 {
		v, err := mute.ParseBool(req.Args[1])
		if err != nil {
			return req.Reply(ctx, replyBadArgs)
		}
		override = v
	}
	if target != req.FromID && !override && !req.Owner {
		return req.Reply(ctx, replyNoPermission)
	}

	_, found, err := m.sched.Unmute(ctx, target, mute.UnmuteOpts{RequesterID: req.FromID, Override: override})
	if err != nil {
		return replyErr(ctx, req, err, override)
	}
	if !found {
		req.Logger.Debug("unmute: member not muted", logx.Int64("target_id", target))
		return nil
	}
	who := callerName(req)
	if target != req.FromID {
		who = m.sched.ResolveMember(ctx, target).Display()
	}
	return req.Reply(ctx, "Unmuted "+who)
}

func (m *moderation) handleStatus(ctx context.Context, req *router.Request) error {
	rec, found, err := m.sched.Get(ctx, req.FromID)
	if err != nil {
		return replyErr(ctx, req, err, false)
	}
	if !found {
		return req.Reply(ctx, "You are not muted")
	}
	return req.Reply(ctx, mute.FormatRecord(rec, m.sched.Clock().Now()))
}

func (m *moderation) handleReconcile(ctx context.Context, req *router.Request) error {
	rep, err := m.recovery.Reconcile(ctx, m.sched.Clock().Now())
	if err != nil {
		return replyErr(ctx, req, err, false)
	}
	return req.Reply(ctx, fmt.Sprintf("Reconciled %d mutes: %d timers started, %d already running, %d without expiry",
		rep.Records, rep.Armed, rep.AlreadyArmed, rep.Indefinite))
}

func (m *moderation) handleDump(ctx context.Context, req *router.Request) error {
	recs, err := m.sched.List(ctx)
	if err != nil {
		return replyErr(ctx, req, err, false)
	}
	return req.Reply(ctx, mute.FormatRecords(recs, m.sched.Clock().Now()))
}

func callerName(req *router.Request) string {
	return mute.Member{ID: req.FromID, Username: req.FromUsername, Name: req.FromName}.Display()
}

// replyForError maps scheduler errors to a short chat reply.
func replyForError(err error, override bool) string {
	switch {
	case errors.Is(err, mute.ErrAlreadyRestricted):
		return replyAlreadyMuted
	case errors.Is(err, mute.ErrInvalidArgument):
		return replyBadArgs
	case errors.Is(err, mute.ErrPermissionDenied):
		if override {
			return replyNoPermission
		}
		return replySelfLiftOff
	case errors.Is(err, mute.ErrStorageFailure):
		return replyStorageFailure
	case errors.Is(err, mute.ErrMemberNotFound):
		return replyMemberNotFound
	case errors.Is(err, mute.ErrRoleAPIFailure):
		return replyRoleFailure
	case errors.Is(err, mute.ErrNotStarted):
		return replyNotRunning
	default:
		return replyUnexpectedError
	}
}

// replyErr answers the user. Only unexpected failures are returned so the
// request log records them at WARN.
func replyErr(ctx context.Context, req *router.Request, err error, override bool) error {
	_ = req.Reply(ctx, replyForError(err, override))
	switch mute.Kind(err) {
	case "invalid_argument", "already_restricted", "permission_denied":
		return nil
	}
	return err
}
