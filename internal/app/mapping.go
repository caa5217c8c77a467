package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketcast/internal/broadcast"
	"marketcast/internal/config"
	"marketcast/internal/content"
	"marketcast/internal/llm"
	"marketcast/internal/pipeline"
	"marketcast/internal/platform/telegram"
	"marketcast/internal/platform/twitter"
	"marketcast/internal/scheduler"
	"marketcast/internal/storage"
	logx "marketcast/pkg/logx"
)

const defaultSchedule = "3h"

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	retention, err := config.ParseDurationField("storage.retention", cfg.Storage.Retention)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./data/marketcast"
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
		Retention:   retention,
	}, nil
}

func mapBroadcastOptions(cfg *config.Config) (broadcast.Options, error) {
	bc := cfg.Broadcast
	if bc == nil {
		bc = &config.BroadcastConfig{}
	}
	base, err := config.DurationOrDefault("broadcast.retry_base", bc.RetryBase, 2*time.Second)
	if err != nil {
		return broadcast.Options{}, err
	}
	maxDelay, err := config.DurationOrDefault("broadcast.retry_max_delay", bc.RetryMaxDelay, 60*time.Second)
	if err != nil {
		return broadcast.Options{}, err
	}
	sendTimeout, err := config.DurationOrDefault("broadcast.send_timeout", bc.SendTimeout, 15*time.Second)
	if err != nil {
		return broadcast.Options{}, err
	}
	// Pointer so an explicit 0 (no retries) survives; only omission defaults.
	retryMax := 3
	if bc.RetryMax != nil {
		retryMax = *bc.RetryMax
	}
	return broadcast.Options{
		RatePerSec:    bc.RatePerSec,
		RetryMax:      retryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
	}, nil
}

func mapLLMConfig(cfg *config.Config) (llm.Config, time.Duration, error) {
	apiKey := config.ValueOrEnv(cfg.LLM.APIKey, config.EnvLLMAPIKey)
	if strings.TrimSpace(apiKey) == "" {
		return llm.Config{}, 0, fmt.Errorf("llm.api_key missing (set it or export %s)", config.EnvLLMAPIKey)
	}
	timeout, err := config.DurationOrDefault("llm.timeout", cfg.LLM.Timeout, 90*time.Second)
	if err != nil {
		return llm.Config{}, 0, err
	}
	return llm.Config{
		APIKey:  apiKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	}, timeout, nil
}

func mapTwitterConfig(cfg *config.Config) (twitter.Config, error) {
	tc := twitter.Config{
		APIKey:            config.ValueOrEnv(cfg.Twitter.APIKey, config.EnvTwitterKey),
		APIKeySecret:      config.ValueOrEnv(cfg.Twitter.APIKeySecret, config.EnvTwitterKeySecret),
		AccessToken:       config.ValueOrEnv(cfg.Twitter.AccessToken, config.EnvTwitterToken),
		AccessTokenSecret: config.ValueOrEnv(cfg.Twitter.AccessTokenSecret, config.EnvTwitterTokenSecr),
	}
	if tc.APIKey == "" || tc.APIKeySecret == "" || tc.AccessToken == "" || tc.AccessTokenSecret == "" {
		return twitter.Config{}, fmt.Errorf("twitter credentials incomplete (config or %s/%s/%s/%s)",
			config.EnvTwitterKey, config.EnvTwitterKeySecret, config.EnvTwitterToken, config.EnvTwitterTokenSecr)
	}
	return tc, nil
}

// mapTelegramConfig returns nil when the optional telegram block is absent.
// When present, both token and chat id must resolve.
func mapTelegramConfig(cfg *config.Config) (*telegram.Config, error) {
	if cfg.Telegram == nil {
		return nil, nil
	}
	token := config.ValueOrEnv(cfg.Telegram.Token, config.EnvTelegramBotToken)
	chatID := cfg.Telegram.ChatID
	if chatID == 0 {
		if raw := strings.TrimSpace(config.ValueOrEnv("", config.EnvTelegramChatIDStr)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: invalid chat id %q: %w", config.EnvTelegramChatIDStr, raw, err)
			}
			chatID = id
		}
	}
	if strings.TrimSpace(token) == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram block present but token/chat_id incomplete (config or %s/%s)",
			config.EnvTelegramBotToken, config.EnvTelegramChatIDStr)
	}
	return &telegram.Config{Token: token, ChatID: chatID}, nil
}

// buildJobs maps sectors to scheduler jobs. Each sector gets its own trigger
// so a slow sector never delays the others.
func buildJobs(cfg *config.Config, runner *pipeline.Runner, log logx.Logger) ([]scheduler.Job, error) {
	jobs := make([]scheduler.Job, 0, len(cfg.Sectors))
	for _, sc := range cfg.Sectors {
		raw := strings.TrimSpace(sc.Schedule)
		if raw == "" {
			raw = strings.TrimSpace(cfg.Scheduler.DefaultSchedule)
		}
		if raw == "" {
			raw = defaultSchedule
		}
		spec, err := scheduler.NormalizeSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("sector %s: %w", sc.Name, err)
		}
		sector := content.Sector{Name: sc.Name, Question: sc.Prompt}
		jobs = append(jobs, scheduler.Job{
			Name: "sector:" + sc.Name,
			Spec: spec,
			Run: func(ctx context.Context) error {
				_, err := runner.Run(ctx, sector)
				return err
			},
		})
	}
	return jobs, nil
}
