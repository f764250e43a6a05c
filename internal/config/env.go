package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides, applied after every parse (including hot reloads).
const (
	EnvToken       = "SNOOZEBOT_TOKEN"
	EnvChatID      = "SNOOZEBOT_CHAT_ID"
	EnvAdminID     = "SNOOZEBOT_ADMIN_ID"
	EnvStoragePath = "SNOOZEBOT_STORAGE_PATH"
)

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are ignored; variables already set win over file values.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg and returns the names of
// the variables it used.
func ApplyEnv(cfg *Config) ([]string, error) {
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) ([]string, error) {
	var used []string
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return "", false
		}
		used = append(used, key)
		return v, true
	}
	parseID := func(key, v string) (int64, error) {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid id %q: %w", key, v, err)
		}
		return n, nil
	}

	if v, ok := get(EnvToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvChatID); ok {
		n, err := parseID(EnvChatID, v)
		if err != nil {
			return used, err
		}
		cfg.Moderation.ChatID = n
	}
	if v, ok := get(EnvAdminID); ok {
		n, err := parseID(EnvAdminID, v)
		if err != nil {
			return used, err
		}
		cfg.Moderation.AdminUserID = n
	}
	if v, ok := get(EnvStoragePath); ok {
		cfg.Storage.Path = v
	}
	return used, nil
}
