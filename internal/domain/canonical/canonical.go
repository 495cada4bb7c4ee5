// Package canonical builds the canonical event projection for one league season.
//
// A rebuild never edits the previous projection in place. Builder computes a
// complete Generation from the ledger and the storage layer swaps it in
// atomically, so the canonical table is always reproducible from raw rows.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/payload"
	"github.com/okian/leaguerecap/internal/domain/scoring"
)

const canonicalIDHexLen = 24

// Fingerprinter classifies raw rows and computes their dedup key; "" means skip.
type Fingerprinter interface {
	Kind(eventType string) payload.Kind
	Fingerprint(e model.RawEvent, p payload.Payload) string
}

// Stats summarizes one rebuild.
type Stats struct {
	Processed int // raw rows read
	Created   int // canonical events created
	Updated   int // times a later row displaced the current best
	Skipped   int // rows with an empty fingerprint
}

// Generation is a complete canonical projection ready to be committed.
type Generation struct {
	Scope   model.Scope
	Events  []model.CanonicalEvent // ordered by ID
	Members []model.Membership     // ordered by canonical id, then raw id
	Stats   Stats
}

// Builder accumulates raw rows into a Generation.
type Builder struct {
	scope  model.Scope
	fp     Fingerprinter
	scorer scoring.Scorer

	events  map[string]*model.CanonicalEvent
	members []model.Membership
	stats   Stats
	lastID  int64
}

// NewBuilder creates a Builder for scope.
func NewBuilder(scope model.Scope, fp Fingerprinter, scorer scoring.Scorer) *Builder {
	return &Builder{
		scope:  scope,
		fp:     fp,
		scorer: scorer,
		events: make(map[string]*model.CanonicalEvent),
	}
}

// Add processes one raw row. Rows must arrive in ascending id order.
func (b *Builder) Add(e model.RawEvent) error {
	if e.Scope() != b.scope {
		return fmt.Errorf("%w: event %d is %s, want %s", ErrScopeMismatch, e.ID, e.Scope(), b.scope)
	}
	if b.stats.Processed > 0 && e.ID <= b.lastID {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, e.ID, b.lastID)
	}
	b.lastID = e.ID
	b.stats.Processed++

	p := payload.ParseAs(b.fp.Kind(e.EventType), e.Payload)
	fingerprint := b.fp.Fingerprint(e, p)
	if fingerprint == "" {
		b.stats.Skipped++
		return nil
	}
	score := b.scorer.Score(scoring.Input{RawEventID: e.ID, Payload: p})
	id := ID(b.scope, e.EventType, fingerprint)

	current, ok := b.events[id]
	switch {
	case !ok:
		b.events[id] = &model.CanonicalEvent{
			ID:                id,
			LeagueID:          b.scope.LeagueID,
			Season:            b.scope.Season,
			EventType:         e.EventType,
			ActionFingerprint: fingerprint,
			BestRawEventID:    e.ID,
			BestScore:         score,
			SelectionVersion:  1,
			UpdatedAt:         e.IngestedAt.UTC(),
			OccurredAt:        e.OccurredAt,
		}
		b.stats.Created++
	case beats(score, e.ID, current.BestScore, current.BestRawEventID):
		current.BestRawEventID = e.ID
		current.BestScore = score
		current.SelectionVersion++
		current.UpdatedAt = e.IngestedAt.UTC()
		current.OccurredAt = e.OccurredAt
		b.stats.Updated++
	}

	// Every candidate is recorded, winner or not.
	b.members = append(b.members, model.Membership{
		CanonicalEventID: id,
		RawEventID:       e.ID,
		Score:            score,
	})
	return nil
}

// Generation returns the accumulated projection in canonical order.
func (b *Builder) Generation() Generation {
	events := make([]model.CanonicalEvent, 0, len(b.events))
	for _, ev := range b.events {
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	members := make([]model.Membership, len(b.members))
	copy(members, b.members)
	sort.Slice(members, func(i, j int) bool {
		if members[i].CanonicalEventID != members[j].CanonicalEventID {
			return members[i].CanonicalEventID < members[j].CanonicalEventID
		}
		return members[i].RawEventID < members[j].RawEventID
	})

	return Generation{Scope: b.scope, Events: events, Members: members, Stats: b.stats}
}

// Build runs a complete rebuild over events. The input is sorted by id first,
// so callers may pass rows in any order.
func Build(scope model.Scope, events []model.RawEvent, fp Fingerprinter, scorer scoring.Scorer) (Generation, error) {
	sorted := make([]model.RawEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	b := NewBuilder(scope, fp, scorer)
	for _, e := range sorted {
		if err := b.Add(e); err != nil {
			return Generation{}, err
		}
	}
	return b.Generation(), nil
}

// beats reports whether the challenger displaces the current best: higher
// score wins, equal scores fall back to the higher row id.
func beats(score float64, rawID int64, bestScore float64, bestID int64) bool {
	if score != bestScore {
		return score > bestScore
	}
	return rawID > bestID
}

// ID derives the canonical event id from its identity, so ids survive rebuilds.
func ID(scope model.Scope, eventType, fingerprint string) string {
	sum := sha256.Sum256([]byte(scope.LeagueID + "\x00" + strconv.Itoa(scope.Season) + "\x00" + eventType + "\x00" + fingerprint))
	return "ce_" + hex.EncodeToString(sum[:])[:canonicalIDHexLen]
}
