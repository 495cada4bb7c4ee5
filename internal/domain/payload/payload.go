// Package payload decodes provider event payloads into a tagged union.
//
// Provider payloads are schema-flexible JSON. Parse never fails: malformed
// input becomes a KindParseError payload and every identity accessor
// degrades to "absent" instead of erroring.
package payload

import (
	"sort"
	"strconv"
	"strings"

	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/tidwall/gjson"
)

// Kind tags which identity rules apply to a payload.
type Kind string

const (
	KindWaiverAward Kind = "waiver_award"
	KindFreeAgent   Kind = "free_agent"
	KindLock        Kind = "lock"
	KindGeneric     Kind = "generic"
	KindParseError  Kind = "parse_error"
)

// Keys probed for identity fields, in preference order.
var (
	franchiseKeys   = []string{"franchise_id", "franchise"}
	playerKeys      = []string{"player_id", "player"}
	bidKeys         = []string{"bid_amount", "bid"}
	addedKeys       = []string{"players_added_ids", "added_ids"}
	droppedKeys     = []string{"players_dropped_ids", "dropped_ids"}
	transactionKeys = []string{"transaction"}
	nestedRawKeys   = []string{"raw_mfl_json", "raw"}
)

// Identity holds the optional identity fields the canonicalizer keys on.
// Empty strings and nil slices mean absent.
type Identity struct {
	FranchiseID string
	PlayerID    string
	Bid         string // normalized decimal, e.g. "12.5"
	AddedIDs    []string
	DroppedIDs  []string
	Transaction string
	NestedType  string // "type" of a nested raw provider record, if any
}

// Payload is one decoded event payload.
type Payload struct {
	Kind     Kind
	Identity Identity
	// Fields is the generic top-level view for anything without a typed accessor.
	Fields map[string]any
	Raw    []byte
	// ParseErr describes why Raw could not be decoded; set only for KindParseError.
	ParseErr string
}

// Parse decodes raw, tagging it with the default kind for eventType.
func Parse(eventType string, raw []byte) Payload {
	return ParseAs(KindFor(eventType), raw)
}

// ParseAs decodes raw under a kind chosen by the caller. Malformed input is
// still tagged KindParseError.
func ParseAs(kind Kind, raw []byte) Payload {
	p := Payload{Raw: raw}
	if !gjson.ValidBytes(raw) {
		return parseError(raw, "invalid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return parseError(raw, "payload is not an object")
	}

	p.Kind = kind
	p.Fields = map[string]any{}
	root.ForEach(func(key, value gjson.Result) bool {
		p.Fields[key.String()] = value.Value()
		return true
	})
	p.Identity = Identity{
		FranchiseID: firstString(root, franchiseKeys),
		PlayerID:    firstString(root, playerKeys),
		Bid:         firstDecimal(root, bidKeys),
		AddedIDs:    firstIDList(root, addedKeys),
		DroppedIDs:  firstIDList(root, droppedKeys),
		Transaction: firstString(root, transactionKeys),
		NestedType:  nestedType(root),
	}
	return p
}

func parseError(raw []byte, reason string) Payload {
	return Payload{
		Kind:     KindParseError,
		Raw:      raw,
		ParseErr: reason,
		Fields: map[string]any{
			"parse_error": reason,
			"raw_text":    string(raw),
		},
	}
}

// KindFor is the built-in event type classification.
func KindFor(eventType string) Kind {
	switch eventType {
	case model.EventTypeWaiverAward, model.EventTypeBBIDWaiver:
		return KindWaiverAward
	case model.EventTypeFreeAgent:
		return KindFreeAgent
	case model.EventTypeLock:
		return KindLock
	default:
		return KindGeneric
	}
}

// FieldCount is the number of top-level payload keys; parse errors count as zero.
func (p Payload) FieldCount() int {
	if p.Kind == KindParseError {
		return 0
	}
	return len(p.Fields)
}

// IsStub reports whether none of player id, added ids or bid is present.
func (p Payload) IsStub() bool {
	id := p.Identity
	return id.PlayerID == "" && len(id.AddedIDs) == 0 && id.Bid == ""
}

func firstString(root gjson.Result, keys []string) string {
	for _, k := range keys {
		v := root.Get(k)
		switch v.Type {
		case gjson.String, gjson.Number:
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstDecimal(root gjson.Result, keys []string) string {
	for _, k := range keys {
		v := root.Get(k)
		switch v.Type {
		case gjson.Number:
			return strconv.FormatFloat(v.Float(), 'f', -1, 64)
		case gjson.String:
			s := strings.TrimSpace(v.String())
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
			return s
		}
	}
	return ""
}

func firstIDList(root gjson.Result, keys []string) []string {
	for _, k := range keys {
		v := root.Get(k)
		var ids []string
		switch {
		case v.IsArray():
			for _, item := range v.Array() {
				ids = append(ids, item.String())
			}
		case v.Type == gjson.String:
			ids = strings.Split(v.String(), ",")
		case v.Type == gjson.Number:
			ids = []string{v.String()}
		}
		if out := NormalizeIDs(ids); len(out) > 0 {
			return out
		}
	}
	return nil
}

// nestedType reads "type" from a nested raw record that may be embedded as
// an object or as a JSON-encoded string.
func nestedType(root gjson.Result) string {
	for _, k := range nestedRawKeys {
		v := root.Get(k)
		if v.Type == gjson.String && gjson.Valid(v.String()) {
			v = gjson.Parse(v.String())
		}
		if v.IsObject() {
			if t := strings.TrimSpace(v.Get("type").String()); t != "" {
				return strings.ToUpper(t)
			}
		}
	}
	return ""
}

// NormalizeIDs trims, drops empties, dedupes and sorts provider ids.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// ParseTransaction splits a compact "adds|drops" transaction string, where
// each side is a comma separated id list with optional trailing commas.
func ParseTransaction(tx string) (added, dropped []string) {
	tx = strings.TrimSpace(tx)
	if tx == "" {
		return nil, nil
	}
	parts := strings.SplitN(tx, "|", 2)
	added = NormalizeIDs(strings.Split(parts[0], ","))
	if len(parts) == 2 {
		dropped = NormalizeIDs(strings.Split(parts[1], ","))
	}
	return added, dropped
}
