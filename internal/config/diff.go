package config

import (
	"reflect"
	"sort"
	"strings"

	logx "snoozebot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the changed settings that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)
	var restart []string

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
		if oldCfg.Telegram.Token != newCfg.Telegram.Token {
			restart = append(restart, "telegram.token")
		}
		if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
			restart = append(restart, "telegram.poll_timeout")
		}
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Storage (never log password). Any change needs a restart.
	oS, nS := oldCfg.Storage, newCfg.Storage
	if !reflect.DeepEqual(oS, nS) {
		changed = append(changed, "storage")
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.addr", strings.TrimSpace(nS.Addr)),
		)
	}

	oM, nM := oldCfg.Moderation, newCfg.Moderation
	if !reflect.DeepEqual(oM, nM) {
		changed = append(changed, "moderation")
		attrs = append(attrs,
			logx.Int64("moderation.chat_id", nM.ChatID),
			logx.Int64("moderation.admin_user_id", nM.AdminUserID),
			logx.String("moderation.restriction_role", nM.Restriction()),
			logx.String("moderation.elevated_role", nM.ElevatedRole),
			logx.String("moderation.sweep_schedule", strings.TrimSpace(nM.SweepSchedule)),
			logx.Bool("moderation.announce", nM.AnnounceEnabled()),
		)
		if oM.ChatID != nM.ChatID {
			restart = append(restart, "moderation.chat_id")
		}
		if oM.AnnounceRatePerSec != nM.AnnounceRatePerSec {
			restart = append(restart, "moderation.announce_rate_per_sec")
		}
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", strings.TrimSpace(newCfg.Metrics.Addr)),
		)
	}

	sort.Strings(changed)
	sort.Strings(restart)
	return changed, attrs, restart
}
