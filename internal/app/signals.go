package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/okian/leaguerecap/internal/domain/intake"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/selection"
	"github.com/okian/leaguerecap/internal/domain/window"
	"github.com/okian/leaguerecap/pkg/logger"
	"github.com/okian/leaguerecap/pkg/metrics"
)

// selectionSetNamespace scopes name-based selection set ids.
var selectionSetNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("leaguerecap/selection-set"))

// GateRequest is the input of GateSignals.
type GateRequest struct {
	Scope   model.Scope
	Window  window.WeeklyWindow
	Signals []intake.Signal

	// Optional. Fingerprint defaults to the fingerprint of all signal ids,
	// SelectionSetID to a name-based uuid and CreatedAt to the clock.
	Fingerprint    string
	SelectionSetID string
	CreatedAt      time.Time
}

// GateSignals runs signals through the intake gate for a resolved window.
func (s *Service) GateSignals(ctx context.Context, req GateRequest) (intake.SelectionSet, error) {
	w := req.Window
	if !w.Safe() || !w.Bounded() {
		return intake.SelectionSet{}, fmt.Errorf("%w: week %d (%s)", ErrUnsafeWindow, w.Week, w.Reason)
	}

	fingerprint := req.Fingerprint
	if fingerprint == "" {
		ids := make([]string, len(req.Signals))
		for i, sig := range req.Signals {
			ids[i] = sig.ID
		}
		fingerprint = selection.Fingerprint(ids)
	}
	id := req.SelectionSetID
	if id == "" {
		id = SelectionSetID(req.Scope, w.Week, fingerprint)
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	gateCtx := intake.Context{
		LeagueID:          req.Scope.LeagueID,
		Season:            req.Scope.Season,
		Week:              w.Week,
		WindowID:          WindowID(req.Scope, w),
		WindowStart:       *w.Start,
		WindowEnd:         *w.End,
		AllowedConfidence: s.confidenceTiers,
		NoiseTypes:        s.noiseTypes,
	}
	set, err := intake.BuildSelectionSet(req.Signals, gateCtx, id, createdAt, fingerprint)
	if err != nil {
		metrics.RecordError("intake")
		return intake.SelectionSet{}, err
	}

	for _, ex := range set.Excluded {
		metrics.RecordSignalExclusion(ex.Reason)
	}
	metrics.RecordSignalInclusions(len(set.IncludedSignalIDs))
	s.logger.Info(ctx, "signals gated",
		logger.String("selectionSetID", set.ID),
		logger.Int("included", len(set.IncludedSignalIDs)),
		logger.Int("excluded", len(set.Excluded)),
		logger.Bool("withheld", set.Withheld),
	)
	return set, nil
}

// SelectionSetID derives a stable id for a week's selection set.
func SelectionSetID(scope model.Scope, week int, fingerprint string) string {
	name := scope.LeagueID + "|" + strconv.Itoa(scope.Season) + "|" + strconv.Itoa(week) + "|" + fingerprint
	return uuid.NewSHA1(selectionSetNamespace, []byte(name)).String()
}

// WindowID names a resolved window by its scope, week and bounds.
func WindowID(scope model.Scope, w window.WeeklyWindow) string {
	id := fmt.Sprintf("%s/%d/w%d/%s", scope.LeagueID, scope.Season, w.Week, w.Mode)
	if w.Bounded() {
		id += fmt.Sprintf("/%d-%d", w.Start.UnixMilli(), w.End.UnixMilli())
	}
	return id
}
