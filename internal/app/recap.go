package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/leaguerecap/internal/adapters/repository"
	"github.com/okian/leaguerecap/internal/domain/lifecycle"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/window"
	"github.com/okian/leaguerecap/pkg/logger"
	"github.com/okian/leaguerecap/pkg/metrics"
)

// DraftRequest asks for a recap draft of a prepared week.
type DraftRequest struct {
	Scope        model.Scope
	Week         int
	RenderedText string
	CreatedBy    string
	Force        bool
}

// ArtifactKey returns the key of the weekly recap artifact for week.
func (s *Service) ArtifactKey(scope model.Scope, week int) repository.ArtifactKey {
	return repository.ArtifactKey{
		LeagueID:     scope.LeagueID,
		Season:       scope.Season,
		Week:         week,
		ArtifactType: s.artifactType,
	}
}

// DraftRecap creates (or finds) the draft for the week's stored selection and
// moves the run to DRAFTED. Runs whose own window or selection is unusable are
// refused; a run withheld by an editor can be drafted again.
func (s *Service) DraftRecap(ctx context.Context, req DraftRequest) (int, bool, error) {
	run, err := s.runFromStore(ctx, req.Scope, req.Week)
	if err != nil {
		return 0, false, err
	}
	if err := draftable(run); err != nil {
		return 0, false, fmt.Errorf("draft week %d: %w", req.Week, err)
	}

	store, err := s.storeOrErr()
	if err != nil {
		return 0, false, err
	}
	version, created, err := store.CreateDraftIdempotent(ctx, repository.DraftRequest{
		Key:          s.ArtifactKey(req.Scope, req.Week),
		Fingerprint:  run.Fingerprint,
		WindowStart:  run.WindowStart,
		WindowEnd:    run.WindowEnd,
		RenderedText: req.RenderedText,
		CreatedBy:    req.CreatedBy,
		Force:        req.Force,
	})
	if err != nil {
		metrics.RecordError("artifacts")
		return 0, false, fmt.Errorf("draft week %d: %w", req.Week, err)
	}
	metrics.RecordArtifactDraft(created)

	// An existing version found for a withheld run leaves the run withheld.
	if run.State == lifecycle.RunEligible || (created && run.State == lifecycle.RunWithheld) {
		if err := store.TransitionRun(ctx, run.RunKey, run.State, lifecycle.RunDrafted); err != nil {
			metrics.RecordError("runs")
			return 0, false, fmt.Errorf("draft week %d: %w", req.Week, err)
		}
	}

	s.logger.Info(ctx, "recap drafted",
		logger.String("scope", req.Scope.String()),
		logger.Int("week", req.Week),
		logger.Int("version", version),
		logger.Bool("created", created),
	)
	return version, created, nil
}

// draftable rejects runs the selection snapshot withheld. Only runFor sets a
// run reason, so a withheld run without one was withheld through its artifact.
func draftable(run repository.RecapRun) error {
	switch {
	case run.Reason == ReasonNoEventsInWindow:
		return fmt.Errorf("%w: %s (%s)", ErrEmptySelection, run.State, run.Reason)
	case run.WindowMode == string(window.ModeUnsafe), run.State == lifecycle.RunWithheld && run.Reason != "":
		return fmt.Errorf("%w: %s %s (%s)", ErrUnsafeWindow, run.State, run.WindowMode, run.Reason)
	}
	return nil
}

// ApproveRecap approves a draft version, supersedes the approved version it
// replaces and advances the week's run when it still describes this draft.
func (s *Service) ApproveRecap(ctx context.Context, scope model.Scope, week, version int, approver string) error {
	store, err := s.storeOrErr()
	if err != nil {
		return err
	}
	key := s.ArtifactKey(scope, week)
	if err := store.Approve(ctx, key, version, approver); err != nil {
		metrics.RecordError("artifacts")
		return fmt.Errorf("approve v%d: %w", version, err)
	}
	metrics.RecordArtifactTransition(string(lifecycle.ArtifactDraft), string(lifecycle.ArtifactApproved))

	approved, err := store.GetArtifact(ctx, key, version)
	if err != nil {
		return err
	}
	if prev := approved.SupersedesVersion; prev != nil {
		if err := s.supersedeIfApproved(ctx, store, key, *prev); err != nil {
			return err
		}
	}
	return s.advanceRun(ctx, store, scope, week, approved.Fingerprint, lifecycle.RunApproved)
}

// WithholdRecap withholds a draft version with a normalized reason.
func (s *Service) WithholdRecap(ctx context.Context, scope model.Scope, week, version int, reason string) error {
	store, err := s.storeOrErr()
	if err != nil {
		return err
	}
	key := s.ArtifactKey(scope, week)
	if err := store.Withhold(ctx, key, version, reason); err != nil {
		metrics.RecordError("artifacts")
		return fmt.Errorf("withhold v%d: %w", version, err)
	}
	metrics.RecordArtifactTransition(string(lifecycle.ArtifactDraft), string(lifecycle.ArtifactWithheld))

	withheld, err := store.GetArtifact(ctx, key, version)
	if err != nil {
		return err
	}
	return s.advanceRun(ctx, store, scope, week, withheld.Fingerprint, lifecycle.RunWithheld)
}

// SupersedeRecap marks an approved version as superseded.
func (s *Service) SupersedeRecap(ctx context.Context, scope model.Scope, week, version int) error {
	store, err := s.storeOrErr()
	if err != nil {
		return err
	}
	if err := store.Supersede(ctx, s.ArtifactKey(scope, week), version); err != nil {
		metrics.RecordError("artifacts")
		return fmt.Errorf("supersede v%d: %w", version, err)
	}
	metrics.RecordArtifactTransition(string(lifecycle.ArtifactApproved), string(lifecycle.ArtifactSuperseded))
	return nil
}

// RequireReview flags a drafted week for human review.
func (s *Service) RequireReview(ctx context.Context, scope model.Scope, week int) error {
	store, err := s.storeOrErr()
	if err != nil {
		return err
	}
	key := repository.RunKey{LeagueID: scope.LeagueID, Season: scope.Season, Week: week}
	if err := store.TransitionRun(ctx, key, lifecycle.RunDrafted, lifecycle.RunReviewRequired); err != nil {
		return fmt.Errorf("require review for week %d: %w", week, err)
	}
	return nil
}

// Artifacts lists every version of the week's recap.
func (s *Service) Artifacts(ctx context.Context, scope model.Scope, week int) ([]repository.Artifact, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return nil, err
	}
	return store.ListArtifacts(ctx, s.ArtifactKey(scope, week))
}

// LatestArtifact returns the highest version of the week's recap.
func (s *Service) LatestArtifact(ctx context.Context, scope model.Scope, week int) (repository.Artifact, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return repository.Artifact{}, err
	}
	return store.LatestArtifact(ctx, s.ArtifactKey(scope, week))
}

func (s *Service) supersedeIfApproved(ctx context.Context, store repository.Store, key repository.ArtifactKey, version int) error {
	prev, err := store.GetArtifact(ctx, key, version)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if prev.State != lifecycle.ArtifactApproved {
		return nil
	}
	if err := store.Supersede(ctx, key, version); err != nil {
		metrics.RecordError("artifacts")
		return fmt.Errorf("supersede v%d: %w", version, err)
	}
	metrics.RecordArtifactTransition(string(lifecycle.ArtifactApproved), string(lifecycle.ArtifactSuperseded))
	return nil
}

// advanceRun moves the week's run to target when the run still snapshots the
// artifact's selection and the run table allows it. Runs describing a newer
// selection are left alone.
func (s *Service) advanceRun(ctx context.Context, store repository.Store, scope model.Scope, week int, fingerprint string, target lifecycle.RunState) error {
	run, err := store.GetRun(ctx, repository.RunKey{LeagueID: scope.LeagueID, Season: scope.Season, Week: week})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if run.Fingerprint != fingerprint || !lifecycle.CanTransitionRun(run.State, target) {
		return nil
	}
	if err := store.TransitionRun(ctx, run.RunKey, run.State, target); err != nil {
		metrics.RecordError("runs")
		return fmt.Errorf("advance run week %d: %w", week, err)
	}
	return nil
}
