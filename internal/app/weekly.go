package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/leaguerecap/internal/adapters/repository"
	"github.com/okian/leaguerecap/internal/domain/lifecycle"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/selection"
	"github.com/okian/leaguerecap/internal/domain/window"
	"github.com/okian/leaguerecap/pkg/logger"
	"github.com/okian/leaguerecap/pkg/metrics"
)

// ReasonNoEventsInWindow withholds a run whose safe window selected nothing.
const ReasonNoEventsInWindow = "NO_EVENTS_IN_WINDOW"

// WindowForWeek resolves the window of week from the scope's canonical lock
// events. Week indexes below 1 are unsafe without a storage read.
func (s *Service) WindowForWeek(ctx context.Context, scope model.Scope, week int, seasonEnd string) (window.WeeklyWindow, error) {
	if week <= 0 {
		w := window.Unsafe(week, window.ReasonInvalidWeek)
		metrics.RecordWindowResolution(string(w.Mode))
		return w, nil
	}
	store, err := s.storeOrErr()
	if err != nil {
		return window.WeeklyWindow{}, err
	}
	locks, err := store.ListLockTimes(ctx, scope, s.lockEventType)
	if err != nil {
		metrics.RecordError("window")
		return window.WeeklyWindow{}, fmt.Errorf("window for week %d: %w", week, err)
	}
	w := window.Resolve(week, locks, seasonEnd)
	metrics.RecordWindowResolution(string(w.Mode))
	if !w.Safe() {
		s.logger.Warn(ctx, "unsafe window",
			logger.String("scope", scope.String()),
			logger.Int("week", week),
			logger.Int("locks", len(locks)),
			logger.String("reason", w.Reason),
		)
	}
	return w, nil
}

// Select returns the canonical events of scope inside w. Unsafe and
// open-ended windows are answered without querying.
func (s *Service) Select(ctx context.Context, scope model.Scope, w window.WeeklyWindow) (selection.Result, error) {
	if r, stop := selection.Guard(w); stop {
		return r, nil
	}
	store, err := s.storeOrErr()
	if err != nil {
		return selection.Result{}, err
	}
	events, err := store.ListCanonicalInWindow(ctx, scope, *w.Start, *w.End)
	if err != nil {
		metrics.RecordError("selection")
		return selection.Result{}, fmt.Errorf("select week %d: %w", w.Week, err)
	}
	r := selection.FromEvents(w, events)
	metrics.UpdateSelectionSize(len(r.CanonicalIDs))
	return r, nil
}

// PrepareWeek resolves, selects and snapshots the run for week. The stored
// run is returned; an unchanged snapshot keeps its current state.
func (s *Service) PrepareWeek(ctx context.Context, scope model.Scope, week int, seasonEnd string) (repository.RecapRun, error) {
	if week <= 0 {
		return repository.RecapRun{}, fmt.Errorf("%w: %d", ErrInvalidWeek, week)
	}
	w, err := s.WindowForWeek(ctx, scope, week, seasonEnd)
	if err != nil {
		return repository.RecapRun{}, err
	}
	sel, err := s.Select(ctx, scope, w)
	if err != nil {
		return repository.RecapRun{}, err
	}

	run := runFor(scope, w, sel)
	store, err := s.storeOrErr()
	if err != nil {
		return repository.RecapRun{}, err
	}
	written, err := store.UpsertRun(ctx, run)
	if err != nil {
		metrics.RecordError("runs")
		return repository.RecapRun{}, fmt.Errorf("prepare week %d: %w", week, err)
	}
	stored, err := store.GetRun(ctx, run.RunKey)
	if err != nil {
		return repository.RecapRun{}, fmt.Errorf("prepare week %d: %w", week, err)
	}

	s.logger.Info(ctx, "week prepared",
		logger.String("scope", scope.String()),
		logger.Int("week", week),
		logger.String("mode", string(w.Mode)),
		logger.String("state", string(stored.State)),
		logger.Int("events", len(stored.CanonicalIDs)),
		logger.String("reason", stored.Reason),
		logger.Bool("written", written),
	)
	return stored, nil
}

// runFor derives the run snapshot; the state follows from the selection alone.
func runFor(scope model.Scope, w window.WeeklyWindow, sel selection.Result) repository.RecapRun {
	run := repository.RecapRun{
		RunKey:       repository.RunKey{LeagueID: scope.LeagueID, Season: scope.Season, Week: w.Week},
		State:        lifecycle.RunEligible,
		WindowMode:   string(w.Mode),
		WindowStart:  w.Start,
		WindowEnd:    w.End,
		Fingerprint:  sel.Fingerprint,
		CanonicalIDs: sel.CanonicalIDs,
		CountsByType: sel.CountsByType,
	}
	switch sel.Status {
	case selection.StatusUnsafeWindow, selection.StatusOpenWindow:
		run.State = lifecycle.RunWithheld
		run.Reason = sel.Reason
	case selection.StatusEmpty:
		run.State = lifecycle.RunWithheld
		run.Reason = ReasonNoEventsInWindow
	}
	return run
}

// runFromStore reads the run for week.
func (s *Service) runFromStore(ctx context.Context, scope model.Scope, week int) (repository.RecapRun, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return repository.RecapRun{}, err
	}
	run, err := store.GetRun(ctx, repository.RunKey{LeagueID: scope.LeagueID, Season: scope.Season, Week: week})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.RecapRun{}, fmt.Errorf("week %d has not been prepared: %w", week, err)
		}
		return repository.RecapRun{}, err
	}
	return run, nil
}
