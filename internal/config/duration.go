package config

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDuration = regexp.MustCompile(`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
	phrase      = regexp.MustCompile(`^(\d+)\s*([a-z]+)$`)
)

// maxCalendarMonths bounds year and month designators; anything longer
// cannot be represented as a time.Duration anyway.
const maxCalendarMonths = 12 * 292

var phraseUnits = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second, "sec": time.Second, "secs": time.Second,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute, "mins": time.Minute,
	"hour": time.Hour, "hours": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour,
	"week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

var phraseMonths = map[string]int{
	"month": 1, "months": 1,
	"year": 12, "years": 12,
}

// isoUnits are the fixed-length designators after the year and month groups.
var isoUnits = []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}

// ParseTTL parses a token lifetime relative to the current time. Accepted
// forms are ISO-8601 durations (P2D, PT1H30M, P1M), Go durations (48h) and
// phrases (2 days, 3 months). The result must be positive.
func ParseTTL(s string) (time.Duration, error) {
	return ParseTTLAt(s, time.Now())
}

// ParseTTLAt is ParseTTL with an explicit reference time. Years and months
// are calendar units counted from now, so P1M starting on January 31st
// lands on March 2nd or 3rd.
func ParseTTLAt(s string, now time.Time) (time.Duration, error) {
	s = strings.TrimSpace(s)
	d, err := parseTTL(s, now)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid lifetime %q: must be positive", s)
	}
	return d, nil
}

func parseTTL(s string, now time.Time) (time.Duration, error) {
	upper := strings.ToUpper(s)
	if m := isoDuration.FindStringSubmatch(upper); m != nil && upper != "P" && upper != "PT" {
		var months int
		for i, per := range []int{12, 1} {
			if m[i+1] == "" {
				continue
			}
			n, err := strconv.Atoi(m[i+1])
			if err != nil || n > maxCalendarMonths/per {
				return 0, fmt.Errorf("invalid lifetime %q: out of range", s)
			}
			months += n * per
		}
		total, err := calendarMonths(s, months, now)
		if err != nil {
			return 0, err
		}
		for i, u := range isoUnits {
			if m[i+3] == "" {
				continue
			}
			part, err := scale(s, m[i+3], u)
			if err != nil {
				return 0, err
			}
			if total > math.MaxInt64-part {
				return 0, fmt.Errorf("invalid lifetime %q: out of range", s)
			}
			total += part
		}
		return total, nil
	}

	if m := phrase.FindStringSubmatch(strings.ToLower(s)); m != nil {
		if unit, ok := phraseUnits[m[2]]; ok {
			return scale(s, m[1], unit)
		}
		if per, ok := phraseMonths[m[2]]; ok {
			n, err := strconv.Atoi(m[1])
			if err != nil || n > maxCalendarMonths/per {
				return 0, fmt.Errorf("invalid lifetime %q: out of range", s)
			}
			return calendarMonths(s, n*per, now)
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid lifetime %q", s)
	}
	return d, nil
}

// scale multiplies the decimal count digits by unit, rejecting overflow.
func scale(s, digits string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("invalid lifetime %q: out of range", s)
	}
	return time.Duration(n) * unit, nil
}

func calendarMonths(s string, months int, now time.Time) (time.Duration, error) {
	if months == 0 {
		return 0, nil
	}
	d := now.AddDate(0, months, 0).Sub(now)
	if d == math.MaxInt64 {
		return 0, fmt.Errorf("invalid lifetime %q: out of range", s)
	}
	return d, nil
}
