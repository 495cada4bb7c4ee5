package dedupe_test

import (
	"strings"
	"testing"
	"time"

	dedupe "github.com/okian/leaguerecap/internal/domain/dedupe"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/payload"
	. "github.com/smartystreets/goconvey/convey"
)

func rawEvent(id int64, eventType, externalID, body string) (model.RawEvent, payload.Payload) {
	at := time.Date(2025, 9, 10, 8, 0, 0, 0, time.UTC)
	e := model.RawEvent{
		ID:         id,
		LeagueID:   "70985",
		Season:     2025,
		Source:     "mfl",
		ExternalID: externalID,
		EventType:  eventType,
		OccurredAt: &at,
		Payload:    []byte(body),
	}
	return e, payload.Parse(eventType, e.Payload)
}

func TestFingerprintWaiverAwards(t *testing.T) {
	Convey("Given a fingerprinter with default rules", t, func() {
		f := dedupe.NewFingerprinter()

		Convey("When two award rows name the same franchise, player and bid", func() {
			e1, p1 := rawEvent(1, model.EventTypeWaiverAward, "a", `{"franchise_id":"0004","player_id":"13593","bid_amount":12}`)
			e2, p2 := rawEvent(2, model.EventTypeWaiverAward, "b", `{"franchise_id":"0004","player_id":"13593","bid_amount":"12.0","note":"dup"}`)

			Convey("Then they share a fingerprint", func() {
				fp := f.Fingerprint(e1, p1)
				So(fp, ShouldNotBeEmpty)
				So(f.Fingerprint(e2, p2), ShouldEqual, fp)
				So(fp, ShouldStartWith, "v1|WAIVER_BID_AWARDED|70985|2025|")
				So(fp, ShouldEndWith, "wa:f=0004:p=13593:b=12")
			})
		})

		Convey("When the player is absent but added ids are present", func() {
			e, p := rawEvent(1, model.EventTypeWaiverAward, "a", `{"franchise_id":"0004","players_added_ids":"14001,13593,","bid_amount":3}`)

			Convey("Then the normalized added list is used", func() {
				So(f.Fingerprint(e, p), ShouldEndWith, "wa:f=0004:add=13593,14001:b=3")
			})
		})

		Convey("When no identity field is present", func() {
			e, p := rawEvent(1, model.EventTypeWaiverAward, "a", `{"franchise_id":"0004"}`)

			Convey("Then the raw payload hash is used", func() {
				So(f.Fingerprint(e, p), ShouldEndWith, "h="+dedupe.RawHash([]byte(`{"franchise_id":"0004"}`)))
			})
		})

		Convey("When an award row wraps a different transaction subtype", func() {
			e, p := rawEvent(1, model.EventTypeWaiverAward, "a", `{"franchise_id":"0004","raw_mfl_json":{"type":"FREE_AGENT"}}`)

			Convey("Then the fingerprint is empty", func() {
				So(f.Fingerprint(e, p), ShouldEqual, "")
			})
		})

		Convey("When an award row wraps a waiver subtype", func() {
			e, p := rawEvent(1, model.EventTypeBBIDWaiver, "a", `{"franchise_id":"0004","raw_mfl_json":{"type":"BBID_WAIVER"}}`)

			Convey("Then the raw hash is used rather than skipping", func() {
				So(f.Fingerprint(e, p), ShouldContainSubstring, "h=")
			})
		})

		Convey("When the payload is malformed", func() {
			e, p := rawEvent(1, model.EventTypeWaiverAward, "a", `{"player_id":`)

			Convey("Then the row still fingerprints by raw hash", func() {
				fp := f.Fingerprint(e, p)
				So(fp, ShouldContainSubstring, "h="+dedupe.RawHash([]byte(`{"player_id":`)))
			})
		})
	})
}

func TestFingerprintFreeAgentMoves(t *testing.T) {
	Convey("Given a fingerprinter with default rules", t, func() {
		f := dedupe.NewFingerprinter()

		Convey("When structured lists and a transaction string describe the same move", func() {
			e1, p1 := rawEvent(1, model.EventTypeFreeAgent, "a", `{"franchise_id":"0002","players_added_ids":["14001"],"players_dropped_ids":["12000"]}`)
			e2, p2 := rawEvent(2, model.EventTypeFreeAgent, "b", `{"franchise_id":"0002","transaction":"14001,|12000,"}`)

			Convey("Then both produce the same fingerprint", func() {
				So(f.Fingerprint(e1, p1), ShouldEqual, f.Fingerprint(e2, p2))
				So(f.Fingerprint(e1, p1), ShouldEndWith, "fa:f=0002:add=14001:drop=12000")
			})
		})

		Convey("When only player and bid are present", func() {
			e, p := rawEvent(1, model.EventTypeFreeAgent, "a", `{"player_id":"13593","bid_amount":"0"}`)

			Convey("Then the player/bid rule applies", func() {
				So(f.Fingerprint(e, p), ShouldEndWith, "fa:p=13593:b=0")
			})
		})

		Convey("When nothing identifies the move", func() {
			e, p := rawEvent(1, model.EventTypeFreeAgent, "a", `{"comment":"x"}`)

			Convey("Then the raw hash is used", func() {
				So(strings.Contains(f.Fingerprint(e, p), "|h="), ShouldBeTrue)
			})
		})
	})
}

func TestFingerprintFallback(t *testing.T) {
	Convey("Given event types without bespoke rules", t, func() {
		f := dedupe.NewFingerprinter()
		e1, p1 := rawEvent(1, "TRANSACTION_TRADE", "t-1", `{"franchise1":"0001"}`)
		e2, p2 := rawEvent(2, "TRANSACTION_TRADE", "t-2", `{"franchise1":"0001"}`)

		Convey("Then identical payloads never merge", func() {
			So(f.Fingerprint(e1, p1), ShouldEndWith, "raw:mfl:t-1")
			So(f.Fingerprint(e1, p1), ShouldNotEqual, f.Fingerprint(e2, p2))
		})

		Convey("Then a missing occurred-at leaves an empty slot", func() {
			e1.OccurredAt = nil
			So(f.Fingerprint(e1, p1), ShouldEqual, "v1|TRANSACTION_TRADE|70985|2025||raw:mfl:t-1")
		})
	})

	Convey("Given custom type options", t, func() {
		f := dedupe.NewFingerprinter(dedupe.WithWaiverTypes("CUSTOM_AWARD"), dedupe.WithLockTypes("LOCK"))
		body := `{"franchise_id":"0004","player_id":"1","bid_amount":5}`

		Convey("Then classification follows the options", func() {
			So(f.Kind("CUSTOM_AWARD"), ShouldEqual, payload.KindWaiverAward)
			So(f.Kind(model.EventTypeWaiverAward), ShouldEqual, payload.KindGeneric)
			So(f.Kind(model.EventTypeFreeAgent), ShouldEqual, payload.KindFreeAgent)
			So(f.Kind("LOCK"), ShouldEqual, payload.KindLock)
		})

		Convey("Then the replaced type falls back to 1:1", func() {
			e, _ := rawEvent(1, model.EventTypeWaiverAward, "x", body)
			So(f.Fingerprint(e, payload.ParseAs(f.Kind(e.EventType), e.Payload)), ShouldEndWith, "raw:mfl:x")
		})

		Convey("Then the added type uses waiver identity", func() {
			e, _ := rawEvent(1, "CUSTOM_AWARD", "y", body)
			So(f.Fingerprint(e, payload.ParseAs(f.Kind(e.EventType), e.Payload)), ShouldEndWith, "wa:f=0004:p=1:b=5")
		})

		Convey("Then a malformed row of the added type hashes its bytes", func() {
			e, p := rawEvent(1, "CUSTOM_AWARD", "z", `{"player_id":`)
			So(p.Kind, ShouldEqual, payload.KindParseError)
			So(f.Fingerprint(e, p), ShouldContainSubstring, "h=")
		})
	})
}
