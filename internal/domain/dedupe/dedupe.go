// Package dedupe computes action fingerprints used as canonical dedup keys.
//
// A fingerprint identifies one real-world action within a league season.
// Rows sharing a fingerprint compete for the same canonical event; an empty
// fingerprint means the row must not be canonicalized at all.
package dedupe

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/payload"
)

const fingerprintVersion = "v1"

// Fingerprinter applies per-event-type identity rules.
type Fingerprinter struct {
	waiverTypes       map[string]struct{}
	freeAgentTypes    map[string]struct{}
	lockTypes         map[string]struct{}
	waiverNestedTypes map[string]struct{}
}

// NewFingerprinter creates a Fingerprinter with the provider defaults.
func NewFingerprinter(opts ...Option) *Fingerprinter {
	f := &Fingerprinter{
		waiverTypes:       toSet([]string{model.EventTypeWaiverAward, model.EventTypeBBIDWaiver}),
		freeAgentTypes:    toSet([]string{model.EventTypeFreeAgent}),
		lockTypes:         toSet([]string{model.EventTypeLock}),
		waiverNestedTypes: toSet([]string{"BBID_WAIVER", "WAIVER", "BBID_AUTO_PROCESS_WAIVERS"}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Kind classifies eventType with this fingerprinter's type sets. Payloads
// parsed with payload.ParseAs(f.Kind(t), raw) dispatch the same way here.
func (f *Fingerprinter) Kind(eventType string) payload.Kind {
	switch {
	case has(f.waiverTypes, eventType):
		return payload.KindWaiverAward
	case has(f.freeAgentTypes, eventType):
		return payload.KindFreeAgent
	case has(f.lockTypes, eventType):
		return payload.KindLock
	}
	return payload.KindGeneric
}

// Fingerprint returns the action fingerprint for e, or "" when the row is a
// degenerate shape that must be skipped. Identity rules follow p.Kind; a
// malformed payload keeps the rules of its event type.
func (f *Fingerprinter) Fingerprint(e model.RawEvent, p payload.Payload) string {
	kind := p.Kind
	if kind == payload.KindParseError {
		kind = f.Kind(e.EventType)
	}

	var identity string
	switch kind {
	case payload.KindWaiverAward:
		identity = f.waiverIdentity(p)
	case payload.KindFreeAgent:
		identity = freeAgentIdentity(p)
	default:
		// Types without bespoke rules never merge with other rows.
		identity = "raw:" + e.Source + ":" + e.ExternalID
	}
	if identity == "" {
		return ""
	}
	return strings.Join([]string{
		fingerprintVersion,
		e.EventType,
		e.LeagueID,
		strconv.Itoa(e.Season),
		occurredKey(e),
		identity,
	}, "|")
}

func has(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}

func (f *Fingerprinter) waiverIdentity(p payload.Payload) string {
	id := p.Identity
	switch {
	case id.PlayerID != "":
		return "wa:f=" + id.FranchiseID + ":p=" + id.PlayerID + ":b=" + id.Bid
	case len(id.AddedIDs) > 0:
		return "wa:f=" + id.FranchiseID + ":add=" + strings.Join(id.AddedIDs, ",") + ":b=" + id.Bid
	case id.Bid == "" && id.NestedType != "":
		if !has(f.waiverNestedTypes, id.NestedType) {
			// An award row wrapping some other transaction subtype.
			return ""
		}
	}
	return "h=" + RawHash(p.Raw)
}

func freeAgentIdentity(p payload.Payload) string {
	id := p.Identity
	added, dropped := id.AddedIDs, id.DroppedIDs
	if len(added) == 0 && len(dropped) == 0 {
		added, dropped = payload.ParseTransaction(id.Transaction)
	}
	switch {
	case len(added) > 0 || len(dropped) > 0:
		return "fa:f=" + id.FranchiseID + ":add=" + strings.Join(added, ",") + ":drop=" + strings.Join(dropped, ",")
	case id.PlayerID != "":
		return "fa:p=" + id.PlayerID + ":b=" + id.Bid
	}
	return "h=" + RawHash(p.Raw)
}

func occurredKey(e model.RawEvent) string {
	if e.OccurredAt == nil {
		return ""
	}
	return strconv.FormatInt(e.OccurredAt.UTC().UnixMilli(), 10)
}

// RawHash is the sha256 hex digest of the whitespace-compacted payload, or of
// the bytes as given when they are not valid JSON.
func RawHash(raw []byte) string {
	var buf bytes.Buffer
	data := raw
	if err := json.Compact(&buf, raw); err == nil {
		data = buf.Bytes()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
