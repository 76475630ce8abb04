// Package cronexpr evaluates the deliberately small recurrence subset used by
// task schedules. Full five-field cron semantics are out of scope: an
// expression whose minute field is the wildcard "*" fires every minute, any
// other well-formed five-field expression falls back to an hourly cadence,
// and "@every <duration>" fires at the given fixed interval.
package cronexpr

import (
	"fmt"
	"strings"
	"time"
)

const everyPrefix = "@every "

// Validate reports whether expr is one of the supported forms.
func Validate(expr string) error {
	_, err := parse(expr)
	return err
}

// Next returns the next fire time strictly after from.
func Next(expr string, from time.Time) (time.Time, error) {
	iv, err := parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return from.Add(iv), nil
}

// Interval returns the cadence expr resolves to.
func Interval(expr string) (time.Duration, error) {
	return parse(expr)
}

func parse(expr string) (time.Duration, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return 0, fmt.Errorf("empty schedule expression")
	}
	if strings.HasPrefix(e, everyPrefix) {
		durStr := strings.TrimSpace(strings.TrimPrefix(e, everyPrefix))
		d, err := time.ParseDuration(durStr)
		if err != nil {
			return 0, fmt.Errorf("invalid @every duration: %w", err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("@every duration must be > 0")
		}
		return d, nil
	}
	if strings.HasPrefix(e, "@") {
		return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> and five-field expressions supported)", e)
	}
	fields := strings.Fields(e)
	if len(fields) != 5 {
		return 0, fmt.Errorf("unsupported schedule: %s (expected five fields)", e)
	}
	// Minute wildcard means every minute; anything else degrades to an hourly
	// cadence. This is the documented subset, not general cron.
	if fields[0] == "*" {
		return time.Minute, nil
	}
	return time.Hour, nil
}
