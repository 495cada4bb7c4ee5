package repository

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/okian/leaguerecap/internal/domain/canonical"
	"github.com/okian/leaguerecap/internal/domain/dedupe"
	"github.com/okian/leaguerecap/internal/domain/lifecycle"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/scoring"
	"github.com/okian/leaguerecap/pkg/logger"
)

var (
	testScope = model.Scope{LeagueID: "L1", Season: 2025}
	testNow   = time.Date(2025, 9, 20, 12, 0, 0, 0, time.UTC)
	lockA     = time.Date(2025, 9, 4, 17, 0, 0, 0, time.UTC)
	lockB     = time.Date(2025, 9, 11, 17, 0, 0, 0, time.UTC)
)

func openTempStore(t *testing.T) *SQLiteStore {
	t.Helper()
	if err := logger.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "recap.db"),
		WithClock(func() time.Time { return testNow }))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func at(ts time.Time) *time.Time { return &ts }

func appendRaw(t *testing.T, store *SQLiteStore, externalID, eventType string, occurred time.Time, body string) int64 {
	t.Helper()
	id, inserted, err := store.AppendRawEvent(context.Background(), model.RawEvent{
		LeagueID:   testScope.LeagueID,
		Season:     testScope.Season,
		Source:     "mfl",
		ExternalID: externalID,
		EventType:  eventType,
		OccurredAt: at(occurred),
		IngestedAt: occurred.Add(time.Minute),
		Payload:    []byte(body),
	})
	if err != nil {
		t.Fatalf("append %s: %v", externalID, err)
	}
	if !inserted {
		t.Fatalf("append %s: expected insert", externalID)
	}
	return id
}

func buildFunc(scope model.Scope) BuildFunc {
	fp := dedupe.NewFingerprinter()
	scorer := scoring.NewQualityScorer()
	return func(raws []model.RawEvent) (canonical.Generation, error) {
		return canonical.Build(scope, raws, fp, scorer)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestOpenReappliesMigrationsOnce(t *testing.T) {
	if err := logger.Init(); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	path := filepath.Join(t.TempDir(), "recap.db")
	for i := 0; i < 2; i++ {
		store, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("close #%d: %v", i, err)
		}
	}
}

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;\n"
	if got := upSection(content); got != "\nCREATE TABLE a (x);\n" {
		t.Fatalf("up section = %q", got)
	}
	if got := upSection("CREATE TABLE b (y);"); got != "CREATE TABLE b (y);" {
		t.Fatalf("unmarked content = %q", got)
	}
}

func TestAppendRawEventIsIdempotent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	e := model.RawEvent{
		LeagueID:   "L1",
		Season:     2025,
		Source:     "mfl",
		ExternalID: "tx-1",
		EventType:  model.EventTypeFreeAgent,
		Payload:    []byte(`{"player_id":"p1"}`),
	}

	id, inserted, err := store.AppendRawEvent(ctx, e)
	if err != nil || !inserted {
		t.Fatalf("first append: id=%d inserted=%v err=%v", id, inserted, err)
	}
	e.Payload = []byte(`{"player_id":"p2"}`)
	again, inserted, err := store.AppendRawEvent(ctx, e)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if inserted || again != id {
		t.Fatalf("second append: id=%d inserted=%v, want id=%d inserted=false", again, inserted, id)
	}

	raws, err := store.ListRawEvents(ctx, testScope)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("ledger has %d rows, want 1", len(raws))
	}
	if string(raws[0].Payload) != `{"player_id":"p1"}` {
		t.Fatalf("payload was overwritten: %s", raws[0].Payload)
	}
	if raws[0].OccurredAt != nil {
		t.Fatalf("occurred at = %v, want nil", raws[0].OccurredAt)
	}
	if !raws[0].IngestedAt.Equal(testNow) {
		t.Fatalf("ingested at = %v, want clock time", raws[0].IngestedAt)
	}
}

func TestAppendRawEventRejectsMissingIdentity(t *testing.T) {
	store := openTempStore(t)
	_, _, err := store.AppendRawEvent(context.Background(), model.RawEvent{LeagueID: "L1", EventType: "X"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func seedLedger(t *testing.T, store *SQLiteStore) (rich, thin int64) {
	t.Helper()
	award := lockA.Add(24 * time.Hour)
	thin = appendRaw(t, store, "w-1", model.EventTypeWaiverAward, award,
		`{"franchise_id":"0001","player_id":"p9","bid_amount":"12"}`)
	rich = appendRaw(t, store, "w-2", model.EventTypeWaiverAward, award,
		`{"franchise_id":"0001","player_id":"p9","bid_amount":"12.00","round":"1","priority":"3","comment":"x"}`)
	appendRaw(t, store, "lock-1", model.EventTypeLock, lockA, `{}`)
	appendRaw(t, store, "lock-1b", model.EventTypeLock, lockA, `{}`)
	appendRaw(t, store, "lock-2", model.EventTypeLock, lockB, `{}`)
	appendRaw(t, store, "fa-1", model.EventTypeFreeAgent, lockA.Add(2*time.Hour),
		`{"franchise_id":"0002","transaction":"p1,|p2,"}`)
	return rich, thin
}

func TestRebuildCanonicalIsReproducible(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	rich, thin := seedLedger(t, store)

	stats, err := store.RebuildCanonical(ctx, testScope, buildFunc(testScope))
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if stats.Processed != 6 || stats.Created != 5 {
		t.Fatalf("stats = %+v, want processed=6 created=5", stats)
	}
	events1, err := store.ListCanonical(ctx, testScope)
	if err != nil {
		t.Fatalf("list canonical: %v", err)
	}
	members1, err := store.ListMemberships(ctx, testScope)
	if err != nil {
		t.Fatalf("list memberships: %v", err)
	}
	if len(events1) != 5 || len(members1) != 6 {
		t.Fatalf("got %d events / %d members, want 5 / 6", len(events1), len(members1))
	}

	var award model.CanonicalEvent
	for _, ev := range events1 {
		if ev.EventType == model.EventTypeWaiverAward {
			award = ev
		}
	}
	if award.BestRawEventID != rich {
		t.Fatalf("best raw = %d, want richer row %d (thin row %d)", award.BestRawEventID, rich, thin)
	}

	if _, err := store.RebuildCanonical(ctx, testScope, buildFunc(testScope)); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	events2, _ := store.ListCanonical(ctx, testScope)
	members2, _ := store.ListMemberships(ctx, testScope)
	if !reflect.DeepEqual(events1, events2) {
		t.Fatalf("canonical events changed across rebuilds:\n%+v\n%+v", events1, events2)
	}
	if !reflect.DeepEqual(members1, members2) {
		t.Fatalf("memberships changed across rebuilds")
	}
}

func TestRebuildCanonicalRollsBackOnFailure(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedLedger(t, store)
	if _, err := store.RebuildCanonical(ctx, testScope, buildFunc(testScope)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	before, _ := store.ListCanonical(ctx, testScope)

	boom := errors.New("boom")
	_, err := store.RebuildCanonical(ctx, testScope, func([]model.RawEvent) (canonical.Generation, error) {
		return canonical.Generation{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected build error, got %v", err)
	}

	other := model.Scope{LeagueID: "L2", Season: 2025}
	_, err = store.RebuildCanonical(ctx, testScope, func([]model.RawEvent) (canonical.Generation, error) {
		return canonical.Generation{Scope: other}, nil
	})
	if !errors.Is(err, canonical.ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch, got %v", err)
	}

	after, _ := store.ListCanonical(ctx, testScope)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("failed rebuild left partial state")
	}
}

func TestListLockTimesIsDistinct(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedLedger(t, store)
	if _, err := store.RebuildCanonical(ctx, testScope, buildFunc(testScope)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	locks, err := store.ListLockTimes(ctx, testScope, model.EventTypeLock)
	if err != nil {
		t.Fatalf("list locks: %v", err)
	}
	want := []time.Time{lockA, lockB}
	if !reflect.DeepEqual(locks, want) {
		t.Fatalf("locks = %v, want %v", locks, want)
	}
}

func TestListCanonicalInWindow(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedLedger(t, store)
	if _, err := store.RebuildCanonical(ctx, testScope, buildFunc(testScope)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	events, err := store.ListCanonicalInWindow(ctx, testScope, lockA, lockB)
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	var types []string
	for _, ev := range events {
		types = append(types, ev.EventType)
		if ev.OccurredAt == nil || ev.OccurredAt.Before(lockA) || !ev.OccurredAt.Before(lockB) {
			t.Fatalf("event %s outside window: %v", ev.ID, ev.OccurredAt)
		}
	}
	want := []string{model.EventTypeLock, model.EventTypeLock, model.EventTypeFreeAgent, model.EventTypeWaiverAward}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
	if events[0].ID > events[1].ID {
		t.Fatalf("same-instant locks not ordered by id: %s, %s", events[0].ID, events[1].ID)
	}
}

func eligibleRun() RecapRun {
	return RecapRun{
		RunKey:       RunKey{LeagueID: "L1", Season: 2025, Week: 1},
		State:        lifecycle.RunEligible,
		WindowMode:   "LOCK_TO_LOCK",
		WindowStart:  at(lockA),
		WindowEnd:    at(lockB),
		Fingerprint:  "fp-1",
		CanonicalIDs: []string{"ce_b", "ce_a"},
		CountsByType: map[string]int{"B": 1, "A": 1},
	}
}

func TestUpsertRun(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	run := eligibleRun()

	written, err := store.UpsertRun(ctx, run)
	if err != nil || !written {
		t.Fatalf("first upsert: written=%v err=%v", written, err)
	}
	got, err := store.GetRun(ctx, run.RunKey)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !reflect.DeepEqual(got.CanonicalIDs, run.CanonicalIDs) || !reflect.DeepEqual(got.CountsByType, run.CountsByType) {
		t.Fatalf("run round trip mismatch: %+v", got)
	}

	if err := store.TransitionRun(ctx, run.RunKey, lifecycle.RunEligible, lifecycle.RunDrafted); err != nil {
		t.Fatalf("transition: %v", err)
	}

	written, err = store.UpsertRun(ctx, run)
	if err != nil || written {
		t.Fatalf("identical upsert: written=%v err=%v", written, err)
	}
	got, _ = store.GetRun(ctx, run.RunKey)
	if got.State != lifecycle.RunDrafted {
		t.Fatalf("identical upsert reset state to %s", got.State)
	}

	run.Fingerprint = "fp-2"
	written, err = store.UpsertRun(ctx, run)
	if err != nil || !written {
		t.Fatalf("changed upsert: written=%v err=%v", written, err)
	}
	got, _ = store.GetRun(ctx, run.RunKey)
	if got.State != lifecycle.RunEligible || got.Fingerprint != "fp-2" {
		t.Fatalf("changed upsert did not reset: %+v", got)
	}
}

func TestTransitionRunGuards(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	run := eligibleRun()
	if _, err := store.UpsertRun(ctx, run); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	err := store.TransitionRun(ctx, run.RunKey, lifecycle.RunEligible, lifecycle.RunApproved)
	if !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	err = store.TransitionRun(ctx, run.RunKey, lifecycle.RunDrafted, lifecycle.RunApproved)
	if !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
	if _, err := store.GetRun(ctx, RunKey{LeagueID: "L1", Season: 2025, Week: 9}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
