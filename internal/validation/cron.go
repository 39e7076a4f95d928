package validation

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const cronSuggestion = `Use five fields (minute hour day-of-month month day-of-week), e.g. "0 9 * * 1-5", or a descriptor such as "@daily" or "@every 15m".`

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// validateCronFormat backs the "cron" JSON Schema format. Non-strings pass;
// the type keyword reports those.
func validateCronFormat(v any) error {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	_, err := parseCron(s)
	return err
}

// parseCron parses a schedule, turning parser panics into errors. The parser
// panics on a TZ= or CRON_TZ= prefix with nothing after it.
func parseCron(s string) (sched cron.Schedule, err error) {
	defer func() {
		if r := recover(); r != nil {
			sched, err = nil, fmt.Errorf("invalid cron schedule %q: %v", s, r)
		}
	}()
	return cronParser.Parse(s)
}

// NextRuns returns the next n activation times of a cron schedule after from,
// evaluated in the named timezone (UTC when empty).
func NextRuns(spec, timezone string, from time.Time, n int) ([]time.Time, error) {
	sched, err := parseCron(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
	}

	runs := make([]time.Time, 0, n)
	t := from.In(loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t)
	}
	return runs, nil
}
