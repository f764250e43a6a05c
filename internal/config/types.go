package config

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage"`
	Moderation ModerationConfig `json:"moderation"`
	Metrics    MetricsConfig    `json:"metrics,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects where mute records live.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/snoozebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	// redis driver
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"` // do not log
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// ModerationConfig describes the moderated chat.
//
// Roles map onto chat permissions: "restricted" removes all send rights,
// "admin" is an administrator promotion. An empty elevated_role disables
// elevated-role handling.
type ModerationConfig struct {
	ChatID          int64  `json:"chat_id"`
	AdminUserID     int64  `json:"admin_user_id"`
	RestrictionRole string `json:"restriction_role,omitempty"` // default "restricted"
	ElevatedRole    string `json:"elevated_role,omitempty"`
	// RoleTimeout bounds each membership API call (Go duration string).
	RoleTimeout string `json:"role_timeout,omitempty"`
	// SweepSchedule is a cron spec (or @every) for periodic reconcile; empty disables.
	SweepSchedule string `json:"sweep_schedule,omitempty"`
	// Announce posts "Unmuted <member>" on expiry. Default true.
	Announce         *bool `json:"announce,omitempty"`
	AnnounceThreadID int   `json:"announce_thread_id,omitempty"`
	// AnnounceRatePerSec caps announcement posts. Default 1.
	AnnounceRatePerSec int `json:"announce_rate_per_sec,omitempty"`
}

func (m ModerationConfig) AnnounceEnabled() bool {
	return m.Announce == nil || *m.Announce
}

func (m ModerationConfig) Restriction() string {
	if m.RestrictionRole == "" {
		return "restricted"
	}
	return m.RestrictionRole
}

// MetricsConfig controls the Prometheus endpoint.
//
// Prefer binding to localhost (e.g. "127.0.0.1:9464").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9464"
}
