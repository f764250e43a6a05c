package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks fields the bot cannot start without. Cron syntax of
// moderation.sweep_schedule is checked by the app, which owns the parser.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set "+EnvToken+")"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.Moderation.ChatID == 0 {
		errs = append(errs, errors.New("moderation.chat_id is required (or set "+EnvChatID+")"))
	}
	if cfg.Moderation.AdminUserID == 0 {
		errs = append(errs, errors.New("moderation.admin_user_id is required (or set "+EnvAdminID+")"))
	}
	for _, r := range []struct{ field, v string }{
		{"moderation.restriction_role", cfg.Moderation.RestrictionRole},
		{"moderation.elevated_role", cfg.Moderation.ElevatedRole},
	} {
		switch strings.TrimSpace(r.v) {
		case "", "restricted", "admin":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown role %q (use restricted or admin)", r.field, r.v))
		}
	}
	if strings.TrimSpace(cfg.Moderation.ElevatedRole) != "" && cfg.Moderation.ElevatedRole == cfg.Moderation.Restriction() {
		errs = append(errs, errors.New("moderation.elevated_role must differ from restriction_role"))
	}
	if _, err := ParseDurationField("moderation.role_timeout", cfg.Moderation.RoleTimeout); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "sqlite3", "file":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required"))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Addr) == "" {
			errs = append(errs, errors.New("storage.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (use sqlite, file or redis)", cfg.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
