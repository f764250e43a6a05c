package app

import (
	"fmt"
	"strings"
	"time"

	"snoozebot/internal/config"
	"snoozebot/internal/mute"
	"snoozebot/internal/storage"
	logx "snoozebot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./data/snoozebot.db"
		}
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	case "redis":
		if strings.TrimSpace(sc.Addr) == "" {
			return storage.Config{}, fmt.Errorf("storage.addr is required when storage.driver=redis")
		}
		return storage.Config{Driver: "redis", Addr: sc.Addr, Password: sc.Password, DB: sc.DB, KeyPrefix: sc.KeyPrefix}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %q", sc.Driver)
	}
}

func mapModerationConfig(cfg *config.Config) (mute.Config, error) {
	m := cfg.Moderation
	timeout, err := config.ParseDurationField("moderation.role_timeout", m.RoleTimeout)
	if err != nil {
		return mute.Config{}, err
	}
	return mute.Config{
		AdminID:         m.AdminUserID,
		RestrictionRole: mute.RoleID(m.Restriction()),
		ElevatedRole:    mute.RoleID(strings.TrimSpace(m.ElevatedRole)),
		RoleTimeout:     timeout,
		Announce:        m.AnnounceEnabled(),
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// owners is the owner list plus the moderation admin, deduplicated.
func owners(cfg *config.Config) []int64 {
	out := make([]int64, 0, len(cfg.Telegram.OwnerUserIDs)+1)
	seen := map[int64]bool{}
	for _, id := range append(append([]int64(nil), cfg.Telegram.OwnerUserIDs...), cfg.Moderation.AdminUserID) {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
