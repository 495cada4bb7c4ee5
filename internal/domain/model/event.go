// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Provider event types the canonicalizer has bespoke identity rules for.
const (
	EventTypeWaiverAward = "WAIVER_BID_AWARDED"
	EventTypeBBIDWaiver  = "TRANSACTION_BBID_WAIVER"
	EventTypeFreeAgent   = "TRANSACTION_FREE_AGENT"
	EventTypeLock        = "TRANSACTION_LOCK_ALL_PLAYERS"
)

// Scope identifies one league season; every derived table is partitioned by it.
type Scope struct {
	LeagueID string
	Season   int
}

func (s Scope) String() string { return fmt.Sprintf("%s/%d", s.LeagueID, s.Season) }

// RawEvent is one immutable ledger row as ingested from the provider.
type RawEvent struct {
	ID         int64 // insertion order
	LeagueID   string
	Season     int
	Source     string
	ExternalID string // unique together with Source
	EventType  string
	OccurredAt *time.Time
	IngestedAt time.Time
	Payload    []byte // provider JSON, possibly malformed
}

// Scope returns the league season the event belongs to.
func (e RawEvent) Scope() Scope { return Scope{LeagueID: e.LeagueID, Season: e.Season} }

// CanonicalEvent is the deduplicated representative of one real-world action.
type CanonicalEvent struct {
	ID                string
	LeagueID          string
	Season            int
	EventType         string
	ActionFingerprint string
	BestRawEventID    int64
	BestScore         float64
	SelectionVersion  int
	UpdatedAt         time.Time

	// OccurredAt is read through the best raw row; it is not stored on the canonical row.
	OccurredAt *time.Time
}

// Membership records that a raw row competed for a canonical event.
type Membership struct {
	CanonicalEventID string
	RawEventID       int64
	Score            float64
}
