// Package retry holds the backoff table used between job attempts.
package retry

import (
	"fmt"
	"strings"
	"time"
)

// Schedule is a fixed, escalating list of retry delays. Step i is the delay
// applied after the i-th failed attempt (1-based); attempts past the end of
// the table reuse the last step.
type Schedule []time.Duration

// DefaultSchedule is the operational contract: 1s, 5s, 30s, 2m, 10m, 30m.
var DefaultSchedule = Schedule{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
}

// Delay returns the wait before the next attempt once attempt attempts have
// failed. It is defined for every int: values below 1 map to the first step.
func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return DefaultSchedule.Delay(attempt)
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(s) {
		return s[len(s)-1]
	}
	return s[attempt-1]
}

// Max is the largest delay the schedule can produce.
func (s Schedule) Max() time.Duration {
	if len(s) == 0 {
		return DefaultSchedule.Max()
	}
	return s[len(s)-1]
}

func (s Schedule) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

// ParseSchedule reads a comma separated list such as "1s,5s,30s,2m".
// Steps must be non-negative and non-decreasing. An empty string yields
// DefaultSchedule.
func ParseSchedule(raw string) (Schedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append(Schedule(nil), DefaultSchedule...), nil
	}

	var out Schedule
	for i, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("retry schedule step %d: %w", i+1, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("retry schedule step %d: negative delay %s", i+1, d)
		}
		if len(out) > 0 && d < out[len(out)-1] {
			return nil, fmt.Errorf("retry schedule step %d: %s is shorter than the previous step", i+1, d)
		}
		out = append(out, d)
	}
	return out, nil
}
