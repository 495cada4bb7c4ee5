// Package intake gates higher-level signals into a selection set.
//
// Every signal ends up either included or excluded with exactly one typed
// reason. Output is canonically ordered so identical input serializes to
// identical bytes.
package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Exclusion reasons, in gate priority order.
const (
	ReasonIntentionalSilence   = "INTENTIONAL_SILENCE"
	ReasonOutOfWindow          = "OUT_OF_WINDOW"
	ReasonLowConfidence        = "LOW_CONFIDENCE"
	ReasonInsufficientContext  = "INSUFFICIENT_CONTEXT"
	ReasonSensitivityGuardrail = "SENSITIVITY_GUARDRAIL"
	ReasonRedundant            = "REDUNDANT"
)

// WithheldNoEligibleSignals marks a set where every signal was excluded.
const WithheldNoEligibleSignals = "NO_ELIGIBLE_SIGNALS"

// DetailKeptSignalID names the signal a REDUNDANT one lost to.
const DetailKeptSignalID = "kept_signal_id"

// Signal is a derived fact competing for a place in a recap.
type Signal struct {
	ID             string
	Type           string
	OccurredAt     *time.Time
	Confidence     string
	SourceEventIDs []string // canonical events the signal was derived from
	Derivation     string   // how it was derived
	Sensitive      bool
	RedundancyKey  string
	Group          string
}

// HasLineage reports whether the signal can be traced back to its evidence.
func (s Signal) HasLineage() bool {
	return len(s.SourceEventIDs) > 0 && strings.TrimSpace(s.Derivation) != ""
}

// Context carries the week being gated and the gate policy.
type Context struct {
	LeagueID    string
	Season      int
	Week        int
	WindowID    string
	WindowStart time.Time
	WindowEnd   time.Time

	AllowedConfidence []string
	NoiseTypes        []string
}

// Detail is one key/value annotation on an exclusion.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ExcludedSignal records why a signal was left out.
type ExcludedSignal struct {
	SignalID string   `json:"signal_id"`
	Reason   string   `json:"reason"`
	Details  []Detail `json:"details"`
}

// SelectionSet is the immutable outcome of gating one week's signals.
type SelectionSet struct {
	ID                string              `json:"selection_set_id"`
	LeagueID          string              `json:"league_id"`
	Season            int                 `json:"season"`
	Week              int                 `json:"week_index"`
	WindowID          string              `json:"window_id"`
	Fingerprint       string              `json:"selection_fingerprint"`
	CreatedAt         time.Time           `json:"created_at"`
	IncludedSignalIDs []string            `json:"included_signal_ids"`
	Excluded          []ExcludedSignal    `json:"excluded_signals"`
	Groupings         map[string][]string `json:"groupings"`
	Notes             []string            `json:"notes"`
	Withheld          bool                `json:"withheld"`
	WithheldReason    string              `json:"withheld_reason"`
}

// BuildSelectionSet runs every signal through the gates in priority order.
// The first failing gate decides the reason. Signals are visited by ascending
// id so the smallest id wins a redundancy key regardless of input order.
func BuildSelectionSet(signals []Signal, c Context, id string, createdAt time.Time, fingerprint string) (SelectionSet, error) {
	ordered := make([]Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for i, s := range ordered {
		if strings.TrimSpace(s.ID) == "" {
			return SelectionSet{}, fmt.Errorf("%w: signal without id", ErrInvalidSelectionSet)
		}
		if i > 0 && ordered[i-1].ID == s.ID {
			return SelectionSet{}, fmt.Errorf("%w: duplicate signal id %q", ErrInvalidSelectionSet, s.ID)
		}
	}

	allowed := toSet(c.AllowedConfidence)
	noise := toSet(c.NoiseTypes)
	kept := make(map[string]string)

	set := SelectionSet{
		ID:          id,
		LeagueID:    c.LeagueID,
		Season:      c.Season,
		Week:        c.Week,
		WindowID:    c.WindowID,
		Fingerprint: fingerprint,
		CreatedAt:   createdAt,
		Groupings:   map[string][]string{},
	}

	for _, s := range ordered {
		reason, details := gate(s, c, allowed, noise, kept)
		if reason != "" {
			set.Excluded = append(set.Excluded, ExcludedSignal{SignalID: s.ID, Reason: reason, Details: details})
			continue
		}
		if s.RedundancyKey != "" {
			kept[s.RedundancyKey] = s.ID
		}
		set.IncludedSignalIDs = append(set.IncludedSignalIDs, s.ID)
		if s.Group != "" {
			set.Groupings[s.Group] = append(set.Groupings[s.Group], s.ID)
		}
	}

	if len(set.IncludedSignalIDs) == 0 {
		set.Withheld = true
		set.WithheldReason = WithheldNoEligibleSignals
	}
	set.normalize()
	if err := set.Validate(); err != nil {
		return SelectionSet{}, err
	}
	return set, nil
}

func gate(s Signal, c Context, allowed, noise map[string]struct{}, kept map[string]string) (string, []Detail) {
	if _, ok := noise[s.Type]; ok {
		return ReasonIntentionalSilence, nil
	}
	if s.OccurredAt == nil || s.OccurredAt.Before(c.WindowStart) || s.OccurredAt.After(c.WindowEnd) {
		return ReasonOutOfWindow, nil
	}
	if _, ok := allowed[s.Confidence]; !ok {
		return ReasonLowConfidence, []Detail{{Key: "confidence", Value: s.Confidence}}
	}
	if !s.HasLineage() {
		return ReasonInsufficientContext, nil
	}
	if s.Sensitive {
		return ReasonSensitivityGuardrail, nil
	}
	if s.RedundancyKey != "" {
		if winner, ok := kept[s.RedundancyKey]; ok {
			return ReasonRedundant, []Detail{
				{Key: DetailKeptSignalID, Value: winner},
				{Key: "redundancy_key", Value: s.RedundancyKey},
			}
		}
	}
	return "", nil
}

// Validate checks the invariants every selection set must hold.
func (s SelectionSet) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSelectionSet)
	}
	if s.Withheld != (s.WithheldReason != "") {
		return fmt.Errorf("%w: withheld flag and reason must be set together", ErrInvalidSelectionSet)
	}
	seen := make(map[string]struct{}, len(s.IncludedSignalIDs)+len(s.Excluded))
	for _, id := range s.IncludedSignalIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: signal %q included twice", ErrInvalidSelectionSet, id)
		}
		seen[id] = struct{}{}
	}
	for _, ex := range s.Excluded {
		if _, dup := seen[ex.SignalID]; dup {
			return fmt.Errorf("%w: signal %q both included and excluded", ErrInvalidSelectionSet, ex.SignalID)
		}
		seen[ex.SignalID] = struct{}{}
		if ex.Reason == "" {
			return fmt.Errorf("%w: signal %q excluded without reason", ErrInvalidSelectionSet, ex.SignalID)
		}
	}
	return nil
}

// normalize puts every collection into canonical order and replaces nils
// with empty values so the serialized form never varies.
func (s *SelectionSet) normalize() {
	s.CreatedAt = s.CreatedAt.UTC()
	if s.IncludedSignalIDs == nil {
		s.IncludedSignalIDs = []string{}
	}
	sort.Strings(s.IncludedSignalIDs)

	if s.Excluded == nil {
		s.Excluded = []ExcludedSignal{}
	}
	for i := range s.Excluded {
		if s.Excluded[i].Details == nil {
			s.Excluded[i].Details = []Detail{}
		}
		d := s.Excluded[i].Details
		sort.SliceStable(d, func(a, b int) bool { return d[a].Key < d[b].Key })
	}
	sort.SliceStable(s.Excluded, func(i, j int) bool { return s.Excluded[i].SignalID < s.Excluded[j].SignalID })

	if s.Groupings == nil {
		s.Groupings = map[string][]string{}
	}
	for k := range s.Groupings {
		sort.Strings(s.Groupings[k])
	}

	notes := make([]string, 0, len(s.Notes))
	seen := make(map[string]struct{}, len(s.Notes))
	for _, n := range s.Notes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		notes = append(notes, n)
	}
	sort.Strings(notes)
	s.Notes = notes
}

// AddNote returns a copy of s carrying note.
func (s SelectionSet) AddNote(note string) SelectionSet {
	out := s
	out.Notes = append(append([]string{}, s.Notes...), note)
	out.normalize()
	return out
}

// CanonicalJSON serializes s with sorted keys and sorted arrays.
func (s SelectionSet) CanonicalJSON() ([]byte, error) {
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal selection set: %w", err)
	}
	// Round-trip through a generic value so object keys come out sorted.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode selection set: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("marshal selection set: %w", err)
	}
	return out, nil
}

// ParseSelectionSet decodes and validates a canonical selection set document.
func ParseSelectionSet(data []byte) (SelectionSet, error) {
	var s SelectionSet
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return SelectionSet{}, fmt.Errorf("%w: %v", ErrInvalidSelectionSet, err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return SelectionSet{}, err
	}
	return s, nil
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}
