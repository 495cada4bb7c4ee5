// Package window maps a week index onto roster-lock boundaries.
//
// Resolve is pure: given the lock timestamps of a league season it always
// yields the same WeeklyWindow. Degraded inputs produce ModeUnsafe with a
// reason rather than an error.
package window

import (
	"strings"
	"time"
)

// Mode describes how a window's end boundary was derived.
type Mode string

const (
	ModeLockToLock      Mode = "LOCK_TO_LOCK"
	ModeLockToSeasonEnd Mode = "LOCK_TO_SEASON_END"
	ModeLockPlus7DayCap Mode = "LOCK_PLUS_7D_CAP"
	ModeUnsafe          Mode = "UNSAFE"
)

// Reason codes for unsafe windows.
const (
	ReasonInvalidWeek           = "INVALID_WEEK_INDEX"
	ReasonMissingLocks          = "MISSING_LOCKS"
	ReasonInconsistentLockOrder = "INCONSISTENT_LOCK_ORDER"
)

// tailCap bounds the final week when no season end is declared.
const tailCap = 7 * 24 * time.Hour

// WeeklyWindow is the resolved half-open interval [Start, End) for a week.
type WeeklyWindow struct {
	Mode      Mode
	Week      int
	Start     *time.Time
	End       *time.Time
	LocksUsed []time.Time
	Reason    string
}

// Safe reports whether the window can be selected against.
func (w WeeklyWindow) Safe() bool { return w.Mode != ModeUnsafe }

// Bounded reports whether both boundaries are known.
func (w WeeklyWindow) Bounded() bool { return w.Start != nil && w.End != nil }

// Contains reports whether t falls inside [Start, End).
func (w WeeklyWindow) Contains(t time.Time) bool {
	if !w.Safe() || !w.Bounded() {
		return false
	}
	return !t.Before(*w.Start) && t.Before(*w.End)
}

// Unsafe builds an unsafe window for week with reason.
func Unsafe(week int, reason string) WeeklyWindow {
	return WeeklyWindow{Mode: ModeUnsafe, Week: week, Reason: reason}
}

// Resolve computes the window for week from the league's lock timestamps.
// Week indexes are 1-based. Locks are expected in ascending order as read from
// storage; duplicates are dropped, but ordering is checked rather than
// repaired so corrupt data surfaces as an unsafe window.
func Resolve(week int, locks []time.Time, seasonEnd string) WeeklyWindow {
	if week <= 0 {
		return Unsafe(week, ReasonInvalidWeek)
	}
	distinct := Distinct(locks)
	if len(distinct) < week {
		return Unsafe(week, ReasonMissingLocks)
	}

	start := distinct[week-1]
	if week < len(distinct) {
		next := distinct[week]
		if !next.After(start) {
			w := Unsafe(week, ReasonInconsistentLockOrder)
			w.LocksUsed = []time.Time{start, next}
			return w
		}
		return bounded(ModeLockToLock, week, start, next, []time.Time{start, next})
	}

	if end, ok := ParseSeasonEnd(seasonEnd); ok {
		return bounded(ModeLockToSeasonEnd, week, start, end, []time.Time{start})
	}
	return bounded(ModeLockPlus7DayCap, week, start, start.Add(tailCap), []time.Time{start})
}

func bounded(mode Mode, week int, start, end time.Time, locks []time.Time) WeeklyWindow {
	s, e := start, end
	return WeeklyWindow{Mode: mode, Week: week, Start: &s, End: &e, LocksUsed: locks}
}

// Distinct normalizes locks to UTC and removes duplicate instants, keeping
// the first occurrence. Duplicate lock markers must not shift week numbering.
func Distinct(locks []time.Time) []time.Time {
	seen := make(map[int64]struct{}, len(locks))
	out := make([]time.Time, 0, len(locks))
	for _, l := range locks {
		key := l.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l.UTC())
	}
	return out
}

// ParseSeasonEnd accepts RFC3339 timestamps or plain dates (UTC midnight).
func ParseSeasonEnd(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
