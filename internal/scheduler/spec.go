package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// specParser accepts 5-field cron specs plus descriptors (@every, @daily, ...).
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeSpec turns the three accepted schedule shapes into a cron spec:
//
//   - a Go duration ("3h", "90m")   -> "@every 3h0m0s"
//   - "HH:MM"                       -> daily at that time ("30 9 * * *")
//   - anything else                 -> validated as a cron spec and kept as-is
func NormalizeSpec(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty schedule")
	}

	if d, err := time.ParseDuration(raw); err == nil {
		if d < time.Minute {
			return "", fmt.Errorf("schedule interval %q below 1m", raw)
		}
		return "@every " + d.String(), nil
	}

	if h, m, err := parseHHMM(raw); err == nil {
		return fmt.Sprintf("%d %d * * *", m, h), nil
	}

	if _, err := specParser.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", raw, err)
	}
	return raw, nil
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
