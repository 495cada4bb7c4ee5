// Package selection derives the reproducible per-week event selection.
package selection

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/window"
)

// Status discriminates a selection so callers never mistake "nothing to
// show" for "nothing happened".
type Status string

const (
	StatusOK           Status = "OK"
	StatusEmpty        Status = "EMPTY"
	StatusUnsafeWindow Status = "UNSAFE_WINDOW"
	StatusOpenWindow   Status = "OPEN_WINDOW"
)

// Result is the derived selection for one window.
type Result struct {
	Status       Status
	Window       window.WeeklyWindow
	CanonicalIDs []string // ordered by (occurred at, event type, id)
	CountsByType map[string]int
	Fingerprint  string
	Reason       string
}

// Empty reports whether no events were selected.
func (r Result) Empty() bool { return len(r.CanonicalIDs) == 0 }

// Guard returns the empty result for windows that must not be queried, and
// false when the window is safe and bounded.
func Guard(w window.WeeklyWindow) (Result, bool) {
	switch {
	case !w.Safe():
		return empty(w, StatusUnsafeWindow, w.Reason), true
	case !w.Bounded():
		return empty(w, StatusOpenWindow, "MISSING_WINDOW_END"), true
	}
	return Result{}, false
}

// FromEvents builds the selection for w out of candidate canonical events.
// Events outside the window or without a timestamp are ignored.
func FromEvents(w window.WeeklyWindow, events []model.CanonicalEvent) Result {
	if r, stop := Guard(w); stop {
		return r
	}

	inWindow := make([]model.CanonicalEvent, 0, len(events))
	for _, ev := range events {
		if ev.OccurredAt != nil && w.Contains(*ev.OccurredAt) {
			inWindow = append(inWindow, ev)
		}
	}
	Sort(inWindow)

	ids := make([]string, len(inWindow))
	counts := make(map[string]int)
	for i, ev := range inWindow {
		ids[i] = ev.ID
		counts[ev.EventType]++
	}

	status := StatusOK
	if len(ids) == 0 {
		status = StatusEmpty
	}
	return Result{
		Status:       status,
		Window:       w,
		CanonicalIDs: ids,
		CountsByType: counts,
		Fingerprint:  Fingerprint(ids),
	}
}

func empty(w window.WeeklyWindow, status Status, reason string) Result {
	return Result{
		Status:       status,
		Window:       w,
		CanonicalIDs: []string{},
		CountsByType: map[string]int{},
		Fingerprint:  Fingerprint(nil),
		Reason:       reason,
	}
}

// Sort orders events by (occurred at, event type, id). Events without a
// timestamp sort first.
func Sort(events []model.CanonicalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		ta, tb := occurred(a), occurred(b)
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		if a.EventType != b.EventType {
			return a.EventType < b.EventType
		}
		return a.ID < b.ID
	})
}

func occurred(ev model.CanonicalEvent) time.Time {
	if ev.OccurredAt == nil {
		return time.Time{}
	}
	return *ev.OccurredAt
}

// Fingerprint is the sha256 hex digest of the JSON encoded, ascending-sorted id
// list. An empty selection hashes "[]".
func Fingerprint(ids []string) string {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	// Marshalling a []string cannot fail.
	data, _ := json.Marshal(sorted)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EncodeIDs serializes ids for persistence.
func EncodeIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

// EncodeCounts serializes counts with sorted keys for persistence.
func EncodeCounts(counts map[string]int) string {
	if counts == nil {
		counts = map[string]int{}
	}
	// encoding/json writes map keys in sorted order.
	data, _ := json.Marshal(counts)
	return string(data)
}

// DecodeIDs parses a persisted id list.
func DecodeIDs(s string) ([]string, error) {
	ids := []string{}
	if s == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// DecodeCounts parses a persisted counts map.
func DecodeCounts(s string) (map[string]int, error) {
	counts := map[string]int{}
	if s == "" {
		return counts, nil
	}
	if err := json.Unmarshal([]byte(s), &counts); err != nil {
		return nil, err
	}
	return counts, nil
}
