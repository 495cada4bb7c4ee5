package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/leaguerecap/internal/domain/lifecycle"
)

var weekKey = ArtifactKey{LeagueID: "L1", Season: 2025, Week: 2, ArtifactType: "WEEKLY_RECAP"}

func draft(t *testing.T, store *SQLiteStore, req DraftRequest) (int, bool) {
	t.Helper()
	if req.Key == (ArtifactKey{}) {
		req.Key = weekKey
	}
	version, created, err := store.CreateDraftIdempotent(context.Background(), req)
	if err != nil {
		t.Fatalf("create draft %q: %v", req.Fingerprint, err)
	}
	return version, created
}

func requireState(t *testing.T, store *SQLiteStore, version int, want lifecycle.ArtifactState) Artifact {
	t.Helper()
	a, err := store.GetArtifact(context.Background(), weekKey, version)
	if err != nil {
		t.Fatalf("get v%d: %v", version, err)
	}
	if a.State != want {
		t.Fatalf("v%d state = %s, want %s", version, a.State, want)
	}
	return a
}

func TestCreateDraftIdempotent(t *testing.T) {
	store := openTempStore(t)

	v1, created := draft(t, store, DraftRequest{Fingerprint: "fp-a", RenderedText: "first", CreatedBy: "pipeline"})
	if v1 != 1 || !created {
		t.Fatalf("first draft = (%d, %v), want (1, true)", v1, created)
	}
	again, created := draft(t, store, DraftRequest{Fingerprint: "fp-a", RenderedText: "changed text"})
	if again != 1 || created {
		t.Fatalf("repeat draft = (%d, %v), want (1, false)", again, created)
	}
	a := requireState(t, store, 1, lifecycle.ArtifactDraft)
	if a.RenderedText != "first" || a.SupersedesVersion != nil || !a.CreatedAt.Equal(testNow) {
		t.Fatalf("first draft was modified or mis-stamped: %+v", a)
	}

	v2, created := draft(t, store, DraftRequest{Fingerprint: "fp-b"})
	if v2 != 2 || !created {
		t.Fatalf("changed draft = (%d, %v), want (2, true)", v2, created)
	}
	b := requireState(t, store, 2, lifecycle.ArtifactDraft)
	if b.SupersedesVersion == nil || *b.SupersedesVersion != 1 {
		t.Fatalf("supersedes = %v, want 1", b.SupersedesVersion)
	}

	// An older draft with the same fingerprint is returned even though it is
	// not the latest version.
	back, created := draft(t, store, DraftRequest{Fingerprint: "fp-a"})
	if back != 1 || created {
		t.Fatalf("draft-level idempotency = (%d, %v), want (1, false)", back, created)
	}
	forced, created := draft(t, store, DraftRequest{Fingerprint: "fp-a", Force: true})
	if forced != 1 || created {
		t.Fatalf("forced draft over existing draft = (%d, %v), want (1, false)", forced, created)
	}
}

func TestCreateDraftAfterApproval(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	v1, _ := draft(t, store, DraftRequest{Fingerprint: "fp-a"})
	if err := store.Approve(ctx, weekKey, v1, "editor"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	v2, _ := draft(t, store, DraftRequest{Fingerprint: "fp-b"})
	if err := store.Withhold(ctx, weekKey, v2, "  "); err != nil {
		t.Fatalf("withhold: %v", err)
	}

	// Latest is v2 (fp-b) but the latest approved version already carries fp-a.
	got, created := draft(t, store, DraftRequest{Fingerprint: "fp-a"})
	if got != v1 || created {
		t.Fatalf("draft matching approved = (%d, %v), want (%d, false)", got, created, v1)
	}

	forced, created := draft(t, store, DraftRequest{Fingerprint: "fp-a", Force: true})
	if forced != 3 || !created {
		t.Fatalf("forced draft = (%d, %v), want (3, true)", forced, created)
	}
	pinned := 1
	v4, _ := draft(t, store, DraftRequest{Fingerprint: "fp-c", SupersedesVersion: &pinned})
	c := requireState(t, store, v4, lifecycle.ArtifactDraft)
	if c.SupersedesVersion == nil || *c.SupersedesVersion != 1 {
		t.Fatalf("explicit supersedes ignored: %v", c.SupersedesVersion)
	}

	withheld := requireState(t, store, v2, lifecycle.ArtifactWithheld)
	if withheld.WithheldReason != lifecycle.ReasonUnspecified {
		t.Fatalf("withheld reason = %q", withheld.WithheldReason)
	}
	approved := requireState(t, store, v1, lifecycle.ArtifactApproved)
	if approved.ApprovedBy != "editor" || approved.ApprovedAt == nil {
		t.Fatalf("approval not stamped: %+v", approved)
	}
}

func TestVersionsArePerArtifactType(t *testing.T) {
	store := openTempStore(t)
	other := weekKey
	other.ArtifactType = "POWER_RANKINGS"

	draft(t, store, DraftRequest{Fingerprint: "fp-a"})
	draft(t, store, DraftRequest{Fingerprint: "fp-b"})
	v, created := draft(t, store, DraftRequest{Key: other, Fingerprint: "fp-a"})
	if v != 1 || !created {
		t.Fatalf("other type = (%d, %v), want (1, true)", v, created)
	}

	list, err := store.ListArtifacts(context.Background(), weekKey)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Version != 1 || list[1].Version != 2 {
		t.Fatalf("list = %+v", list)
	}
	latest, err := store.LatestArtifact(context.Background(), other)
	if err != nil || latest.Version != 1 {
		t.Fatalf("latest other = %+v, %v", latest, err)
	}
}

func TestIllegalTransitionsLeaveStateUnchanged(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	v1, _ := draft(t, store, DraftRequest{Fingerprint: "fp-a"})

	if err := store.Supersede(ctx, weekKey, v1); !errors.Is(err, lifecycle.ErrIllegalTransition) || !errors.Is(err, ErrStaleState) {
		t.Fatalf("supersede draft: %v", err)
	}
	requireState(t, store, v1, lifecycle.ArtifactDraft)

	if err := store.Approve(ctx, weekKey, v1, "a"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := store.Approve(ctx, weekKey, v1, "b"); !errors.Is(err, ErrStaleState) {
		t.Fatalf("double approve: %v", err)
	}
	if err := store.Withhold(ctx, weekKey, v1, "MANUAL: late"); !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("withhold approved: %v", err)
	}
	a := requireState(t, store, v1, lifecycle.ArtifactApproved)
	if a.ApprovedBy != "a" {
		t.Fatalf("second approval overwrote approver: %q", a.ApprovedBy)
	}

	if err := store.Supersede(ctx, weekKey, v1); err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if err := store.Supersede(ctx, weekKey, v1); !errors.Is(err, lifecycle.ErrIllegalTransition) {
		t.Fatalf("double supersede: %v", err)
	}
	requireState(t, store, v1, lifecycle.ArtifactSuperseded)

	if err := store.Approve(ctx, weekKey, 42, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("approve missing: %v", err)
	}
	if _, err := store.LatestArtifact(ctx, ArtifactKey{LeagueID: "L9", ArtifactType: "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("latest missing: %v", err)
	}
}

func TestCreateDraftValidatesInput(t *testing.T) {
	store := openTempStore(t)
	_, _, err := store.CreateDraftIdempotent(context.Background(), DraftRequest{Key: weekKey})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing fingerprint: %v", err)
	}
	_, _, err = store.CreateDraftIdempotent(context.Background(), DraftRequest{Fingerprint: "x"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing key: %v", err)
	}
}
