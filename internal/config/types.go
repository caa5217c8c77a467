package config

import "os"

// Config is the full on-disk configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Credentials may be left empty in the file; they then fall back to the
// environment variables noted on each field.
type Config struct {
	LLM       LLMConfig        `json:"llm"`
	Twitter   TwitterConfig    `json:"twitter"`
	Telegram  *TelegramConfig  `json:"telegram,omitempty"`
	Logging   LoggingConfig    `json:"logging"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Broadcast *BroadcastConfig `json:"broadcast,omitempty"`
	Storage   StorageConfig    `json:"storage"`
	Pipeline  PipelineConfig   `json:"pipeline"`
	Sectors   []SectorConfig   `json:"sectors"`
}

// LLMConfig points at an OpenAI-compatible chat-completions endpoint
// (the xAI API by default).
type LLMConfig struct {
	APIKey  string `json:"api_key,omitempty"` // env: LLM_API_KEY
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`   // default: grok-4
	Timeout string `json:"timeout,omitempty"` // default: 90s
}

// TwitterConfig holds OAuth 1.0a user-context credentials.
type TwitterConfig struct {
	APIKey            string `json:"api_key,omitempty"`             // env: API_KEY_X
	APIKeySecret      string `json:"api_key_secret,omitempty"`      // env: API_KEY_SECRET_X
	AccessToken       string `json:"access_token,omitempty"`        // env: ACCESS_TOKEN_X
	AccessTokenSecret string `json:"access_token_secret,omitempty"` // env: ACCESS_TOKEN_SECRET_X
}

// TelegramConfig is optional; when present both token and chat_id must
// resolve (file or env), or config validation fails.
type TelegramConfig struct {
	Token  string `json:"token,omitempty"`   // env: TELEGRAM_BOT_TOKEN
	ChatID int64  `json:"chat_id,omitempty"` // env: TELEGRAM_CHAT_ID
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is an IANA TZ name, e.g. "Asia/Kolkata". Empty = local.
	Timezone string `json:"timezone,omitempty"`

	// DefaultSchedule applies to sectors without their own schedule.
	// Accepts a cron spec, a duration, or "HH:MM" (interval). Default: "3h".
	DefaultSchedule string `json:"default_schedule,omitempty"`
}

// BroadcastConfig controls posting behavior.
//
// Defaults (when fields are omitted):
//   - rate_per_sec: 1
//   - retry_max: 3 (rate-limited posts only; an explicit 0 disables retries)
//   - retry_base: "2s", retry_max_delay: "60s"
//   - send_timeout: "15s"
type BroadcastConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      *int   `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// StorageConfig controls the dedup cache persistence.
//
// Driver values:
//   - "file": snapshot + append journal (default)
//   - "sqlite": SQLite database file
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Retention expires cache entries by age. "0s" (default) keeps forever.
	Retention string `json:"retention,omitempty"`
}

type PipelineConfig struct {
	// TickTimeout is the hard ceiling for one sector tick. Default: "5m".
	TickTimeout string `json:"tick_timeout,omitempty"`
}

// SectorConfig names one market sector and the question asked about it.
type SectorConfig struct {
	Name     string `json:"name"`
	Prompt   string `json:"prompt"`
	Schedule string `json:"schedule,omitempty"` // overrides scheduler.default_schedule
}

// Env names match the original deployment so existing credentials keep working.
const (
	EnvLLMAPIKey         = "LLM_API_KEY"
	EnvTwitterKey        = "API_KEY_X"
	EnvTwitterKeySecret  = "API_KEY_SECRET_X"
	EnvTwitterToken      = "ACCESS_TOKEN_X"
	EnvTwitterTokenSecr  = "ACCESS_TOKEN_SECRET_X"
	EnvTelegramBotToken  = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChatIDStr = "TELEGRAM_CHAT_ID"
)

// ValueOrEnv returns v, or the named environment variable when v is empty.
func ValueOrEnv(v, env string) string {
	if v != "" {
		return v
	}
	return os.Getenv(env)
}
