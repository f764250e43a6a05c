package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"snoozebot/internal/mute"
	logx "snoozebot/pkg/logx"
)

// Store is the persistence API used by the scheduler and the app.
type Store interface {
	mute.Store
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, errors.New("storage driver is required: mute records have no other home")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

func stampAudit(e *AuditEntry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if e.OpID == "" {
		e.OpID = uuid.NewString()
	}
}

// Auditor adapts a Store to mute.Auditor.
type Auditor struct {
	Store Store
}

func (a Auditor) Audit(ctx context.Context, ev mute.AuditEvent) error {
	if a.Store == nil {
		return ErrDisabled
	}
	return a.Store.AppendAudit(ctx, AuditEntry{
		At:       ev.At,
		Action:   ev.Action,
		MemberID: ev.MemberID,
		ActorID:  ev.ActorID,
		Trigger:  string(ev.Trigger),
		OK:       ev.OK,
		Error:    ev.Err,
		Detail:   ev.Detail,
	})
}
