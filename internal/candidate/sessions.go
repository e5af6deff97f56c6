package candidate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a half-open [Start, End) UTC time-of-day interval in minutes.
// Windows may wrap midnight (Start > End).
type Window struct {
	Start int
	End   int
}

// ParseWindow parses "HH:MM-HH:MM" into a Window.
func ParseWindow(s string) (Window, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("session window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseHHMM(parts[0])
	if err != nil {
		return Window{}, err
	}
	end, err := parseHHMM(parts[1])
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q: bad minute", s)
	}
	return h*60 + m, nil
}

// Contains reports whether the UTC minute-of-day lies inside the window.
func (w Window) Contains(minute int) bool {
	if w.Start <= w.End {
		return w.Start <= minute && minute < w.End
	}
	// Wraps midnight.
	return minute >= w.Start || minute < w.End
}

// Named UTC trading sessions.
var namedSessions = map[string]Window{
	"asia":    {Start: 1 * 60, End: 5 * 60},
	"london":  {Start: 7 * 60, End: 10 * 60},
	"newyork": {Start: 13 * 60, End: 18 * 60},
}

// Low-volume windows skipped when exclusion is on: the post-NY lull and the
// pre-London gap.
var lowVolumeWindows = []Window{
	{Start: 0, End: 2 * 60},
	{Start: 5 * 60, End: 7 * 60},
}

// SessionConfig selects the UTC windows in which signals may be emitted.
// With no sessions and no custom windows configured every time passes.
type SessionConfig struct {
	Sessions         []string // named: asia, london, newyork
	Custom           []Window
	ExcludeLowVolume bool
}

// Validate checks the named sessions exist.
func (c SessionConfig) Validate() error {
	for _, name := range c.Sessions {
		if _, ok := namedSessions[strings.ToLower(name)]; !ok {
			return fmt.Errorf("unknown session %q", name)
		}
	}
	return nil
}

// Allows reports whether ts falls inside an allowed window.
func (c SessionConfig) Allows(ts time.Time) bool {
	if len(c.Sessions) == 0 && len(c.Custom) == 0 {
		return true
	}
	utc := ts.UTC()
	minute := utc.Hour()*60 + utc.Minute()

	if c.ExcludeLowVolume {
		for _, w := range lowVolumeWindows {
			if w.Contains(minute) {
				return false
			}
		}
	}
	for _, name := range c.Sessions {
		if w, ok := namedSessions[strings.ToLower(name)]; ok && w.Contains(minute) {
			return true
		}
	}
	for _, w := range c.Custom {
		if w.Contains(minute) {
			return true
		}
	}
	return false
}
