package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. They win over the file so secrets can stay out of it.
const (
	EnvToken         = "ADMINPANEL_BOT_TOKEN"
	EnvAdminID       = "ADMINPANEL_ADMIN_ID"
	EnvAdminUsername = "ADMINPANEL_ADMIN_USERNAME"
	EnvDBPath        = "ADMINPANEL_DB_PATH"
	EnvLogLevel      = "ADMINPANEL_LOG_LEVEL"
	EnvHTTPAddr      = "ADMINPANEL_HTTP_ADDR"
)

// LoadDotEnv reads KEY=VALUE pairs from files into the process environment
// without overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("dotenv %s: %w", f, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get(EnvToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvAdminID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvAdminID, err)
		}
		cfg.Telegram.AdminID = id
	}
	if v, ok := get(EnvAdminUsername); ok {
		cfg.Telegram.AdminUsername = v
	}
	if v, ok := get(EnvDBPath); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get(EnvHTTPAddr); ok {
		cfg.HTTP.Addr = v
	}
	return nil
}
