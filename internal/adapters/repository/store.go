// Package repository persists the ledger, the canonical projection, weekly runs
// and recap artifacts.
package repository

import (
	"context"
	"time"

	"github.com/okian/leaguerecap/internal/domain/canonical"
	"github.com/okian/leaguerecap/internal/domain/lifecycle"
	"github.com/okian/leaguerecap/internal/domain/model"
)

// BuildFunc computes a canonical generation from the scope's raw rows.
type BuildFunc func(raws []model.RawEvent) (canonical.Generation, error)

// Ledger is the append-only raw event store.
type Ledger interface {
	// AppendRawEvent inserts e unless (source, external id) already exists.
	// A duplicate returns the existing id with inserted=false and no error.
	AppendRawEvent(ctx context.Context, e model.RawEvent) (id int64, inserted bool, err error)
	// ListRawEvents returns the scope's rows in insertion order.
	ListRawEvents(ctx context.Context, scope model.Scope) ([]model.RawEvent, error)
}

// CanonicalStore owns the canonical projection.
type CanonicalStore interface {
	// RebuildCanonical replaces the scope's projection with the output of build
	// in a single transaction. Nothing is visible unless everything succeeds.
	RebuildCanonical(ctx context.Context, scope model.Scope, build BuildFunc) (canonical.Stats, error)
	ListCanonical(ctx context.Context, scope model.Scope) ([]model.CanonicalEvent, error)
	ListMemberships(ctx context.Context, scope model.Scope) ([]model.Membership, error)
	// ListLockTimes returns the distinct timestamps of canonical events of
	// lockType in ascending order.
	ListLockTimes(ctx context.Context, scope model.Scope, lockType string) ([]time.Time, error)
	// ListCanonicalInWindow returns canonical events occurring in [start, end)
	// ordered by (occurred at, event type, id).
	ListCanonicalInWindow(ctx context.Context, scope model.Scope, start, end time.Time) ([]model.CanonicalEvent, error)
}

// RunKey identifies one weekly run.
type RunKey struct {
	LeagueID string
	Season   int
	Week     int
}

// RecapRun snapshots the selection for one week.
type RecapRun struct {
	RunKey
	State        lifecycle.RunState
	WindowMode   string
	WindowStart  *time.Time
	WindowEnd    *time.Time
	Fingerprint  string
	CanonicalIDs []string
	CountsByType map[string]int
	Reason       string
	UpdatedAt    time.Time
}

// RunStore persists weekly runs.
type RunStore interface {
	// UpsertRun stores run. Identical inputs leave the row untouched and
	// return written=false; changed inputs overwrite it including its state.
	UpsertRun(ctx context.Context, run RecapRun) (written bool, err error)
	GetRun(ctx context.Context, key RunKey) (RecapRun, error)
	// TransitionRun moves the run from one state to another with a
	// conditional update.
	TransitionRun(ctx context.Context, key RunKey, from, to lifecycle.RunState) error
}

// ArtifactKey identifies the version lineage of one artifact type for a week.
type ArtifactKey struct {
	LeagueID     string
	Season       int
	Week         int
	ArtifactType string
}

// Artifact is one persisted artifact version.
type Artifact struct {
	ArtifactKey
	Version           int
	State             lifecycle.ArtifactState
	Fingerprint       string
	WindowStart       *time.Time
	WindowEnd         *time.Time
	RenderedText      string
	CreatedBy         string
	CreatedAt         time.Time
	ApprovedBy        string
	ApprovedAt        *time.Time
	WithheldReason    string
	SupersedesVersion *int
}

// DraftRequest describes a draft to create idempotently.
type DraftRequest struct {
	Key          ArtifactKey
	Fingerprint  string
	WindowStart  *time.Time
	WindowEnd    *time.Time
	RenderedText string
	CreatedBy    string
	Force        bool
	// SupersedesVersion defaults to the latest existing version when nil.
	SupersedesVersion *int
}

// ArtifactStore persists versioned artifacts and guards their transitions.
type ArtifactStore interface {
	CreateDraftIdempotent(ctx context.Context, req DraftRequest) (version int, createdNew bool, err error)
	Approve(ctx context.Context, key ArtifactKey, version int, approver string) error
	Withhold(ctx context.Context, key ArtifactKey, version int, reason string) error
	Supersede(ctx context.Context, key ArtifactKey, version int) error
	GetArtifact(ctx context.Context, key ArtifactKey, version int) (Artifact, error)
	LatestArtifact(ctx context.Context, key ArtifactKey) (Artifact, error)
	ListArtifacts(ctx context.Context, key ArtifactKey) ([]Artifact, error)
}

// Store is the full persistence surface used by the pipeline.
type Store interface {
	Ledger
	CanonicalStore
	RunStore
	ArtifactStore
	Close() error
}
