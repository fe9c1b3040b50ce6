package flights

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidLookback     = errors.New("lookback days must not be negative")
	ErrUnknownWindowPolicy = errors.New("unknown window policy")
)

// WindowPolicy selects how the connection lookup window is anchored.
type WindowPolicy int

const (
	// RollingWindow ends now and starts lookback days earlier.
	RollingWindow WindowPolicy = iota
	// CalendarWindow covers whole local days, ending at 23:59:59 today.
	CalendarWindow
)

func (p WindowPolicy) String() string {
	switch p {
	case RollingWindow:
		return "rolling"
	case CalendarWindow:
		return "calendar"
	default:
		return "unknown"
	}
}

// ParseWindowPolicy accepts "rolling" (the default when empty) or "calendar".
func ParseWindowPolicy(s string) (WindowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rolling":
		return RollingWindow, nil
	case "calendar":
		return CalendarWindow, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownWindowPolicy, s)
	}
}

// Window returns the inclusive [begin, end] UNIX second window for a
// lookback of the given number of days, anchored on now.
func Window(policy WindowPolicy, lookbackDays int, now time.Time) (begin, end int64, err error) {
	if lookbackDays < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidLookback, lookbackDays)
	}

	switch policy {
	case RollingWindow:
		return now.Add(-time.Duration(lookbackDays) * 24 * time.Hour).Unix(), now.Unix(), nil
	case CalendarWindow:
		y, m, d := now.Date()
		loc := now.Location()
		back := lookbackDays - 1
		if back < 0 {
			back = 0
		}
		first := time.Date(y, m, d-back, 0, 0, 0, 0, loc)
		last := time.Date(y, m, d, 23, 59, 59, 0, loc)
		return first.Unix(), last.Unix(), nil
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownWindowPolicy, int(policy))
	}
}
