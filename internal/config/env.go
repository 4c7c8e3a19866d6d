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

// Recognized environment variables. They win over file values.
const (
	EnvBotToken       = "TELEGRAM_BOT_TOKEN"
	EnvChannelID      = "CHANNEL_ID"
	EnvAdminID        = "ADMIN_ID"
	EnvUpdateInterval = "UPDATE_INTERVAL"
	EnvCurrencies     = "CURRENCIES"
	EnvTimezone       = "FXCAL_TIMEZONE"
	EnvStatePath      = "FXCAL_STATE_PATH"
	EnvLogLevel       = "FXCAL_LOG_LEVEL"
)

// LoadDotEnv loads KEY=VALUE files into the process environment.
// Missing files are ignored; already-set variables are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvBotToken); ok {
		cfg.Telegram.Token = v
	}
	if v, ok := get(EnvChannelID); ok {
		cfg.Telegram.ChannelID = v
	}
	if v, ok := get(EnvAdminID); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fieldMsg(EnvAdminID, fmt.Sprintf("not an integer: %q", v))
		}
		cfg.Telegram.AdminID = id
	}
	if v, ok := get(EnvUpdateInterval); ok {
		if _, err := ParseDurationField(EnvUpdateInterval, v); err != nil {
			return fieldErr(EnvUpdateInterval, err)
		}
		cfg.Feed.PollInterval = v
	}
	if v, ok := get(EnvCurrencies); ok {
		cfg.Feed.Currencies = splitList(v)
	}
	if v, ok := get(EnvTimezone); ok {
		cfg.Feed.Timezone = v
	}
	if v, ok := get(EnvStatePath); ok {
		cfg.Storage.Path = v
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
