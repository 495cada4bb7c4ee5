package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/leaguerecap/internal/domain/canonical"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/pkg/logger"
)

// RebuildCanonical swaps the scope's canonical projection for a freshly built
// generation. Reading the ledger, building, deleting and inserting all happen
// in one transaction; any failure rolls the whole swap back.
func (s *SQLiteStore) RebuildCanonical(ctx context.Context, scope model.Scope, build BuildFunc) (canonical.Stats, error) {
	if err := s.ready(ctx); err != nil {
		return canonical.Stats{}, err
	}
	if build == nil {
		return canonical.Stats{}, fmt.Errorf("%w: build func is required", ErrInvalidInput)
	}

	var stats canonical.Stats
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		raws, err := listRawEvents(ctx, tx, scope)
		if err != nil {
			return err
		}
		gen, err := build(raws)
		if err != nil {
			return fmt.Errorf("build generation %s: %w", scope, err)
		}
		if gen.Scope != scope {
			return fmt.Errorf("%w: generation for %s returned for %s", canonical.ErrScopeMismatch, gen.Scope, scope)
		}
		if err := clearCanonical(ctx, tx, scope); err != nil {
			return err
		}
		if err := insertGeneration(ctx, tx, gen); err != nil {
			return err
		}
		stats = gen.Stats
		return nil
	})
	if err != nil {
		return canonical.Stats{}, err
	}

	s.log.Debug(ctx, "canonical generation committed",
		logger.String("scope", scope.String()),
		logger.Int("processed", stats.Processed),
		logger.Int("created", stats.Created),
	)
	return stats, nil
}

func clearCanonical(ctx context.Context, tx *sql.Tx, scope model.Scope) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM canonical_event_members
		  WHERE canonical_event_id IN (
		    SELECT id FROM canonical_events WHERE league_id = ? AND season = ?
		  )`,
		scope.LeagueID, scope.Season,
	); err != nil {
		return fmt.Errorf("delete memberships: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM canonical_events WHERE league_id = ? AND season = ?`,
		scope.LeagueID, scope.Season,
	); err != nil {
		return fmt.Errorf("delete canonical events: %w", err)
	}
	return nil
}

func insertGeneration(ctx context.Context, tx *sql.Tx, gen canonical.Generation) error {
	eventStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO canonical_events (
		   id, league_id, season, event_type, action_fingerprint,
		   best_raw_event_id, best_score, selection_version, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare canonical insert: %w", err)
	}
	defer eventStmt.Close()

	for _, ev := range gen.Events {
		if _, err := eventStmt.ExecContext(ctx,
			ev.ID, ev.LeagueID, ev.Season, ev.EventType, ev.ActionFingerprint,
			ev.BestRawEventID, ev.BestScore, ev.SelectionVersion, toMillis(ev.UpdatedAt),
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert canonical event %s: %w", ev.ID, ErrConflict)
			}
			return fmt.Errorf("insert canonical event %s: %w", ev.ID, err)
		}
	}

	memberStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO canonical_event_members (canonical_event_id, raw_event_id, score) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare membership insert: %w", err)
	}
	defer memberStmt.Close()

	for _, m := range gen.Members {
		if _, err := memberStmt.ExecContext(ctx, m.CanonicalEventID, m.RawEventID, m.Score); err != nil {
			return fmt.Errorf("insert membership %s/%d: %w", m.CanonicalEventID, m.RawEventID, err)
		}
	}
	return nil
}

const canonicalColumns = `c.id, c.league_id, c.season, c.event_type, c.action_fingerprint,
       c.best_raw_event_id, c.best_score, c.selection_version, c.updated_at, r.occurred_at`

// ListCanonical returns the scope's canonical events ordered by id.
func (s *SQLiteStore) ListCanonical(ctx context.Context, scope model.Scope) ([]model.CanonicalEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.queryCanonical(ctx,
		`SELECT `+canonicalColumns+`
		   FROM canonical_events c
		   JOIN raw_events r ON r.id = c.best_raw_event_id
		  WHERE c.league_id = ? AND c.season = ?
		  ORDER BY c.id`,
		scope.LeagueID, scope.Season,
	)
}

// ListCanonicalInWindow returns canonical events whose best row occurred in [start, end).
func (s *SQLiteStore) ListCanonicalInWindow(ctx context.Context, scope model.Scope, start, end time.Time) ([]model.CanonicalEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.queryCanonical(ctx,
		`SELECT `+canonicalColumns+`
		   FROM canonical_events c
		   JOIN raw_events r ON r.id = c.best_raw_event_id
		  WHERE c.league_id = ? AND c.season = ?
		    AND r.occurred_at IS NOT NULL
		    AND r.occurred_at >= ? AND r.occurred_at < ?
		  ORDER BY r.occurred_at, c.event_type, c.id`,
		scope.LeagueID, scope.Season, toMillis(start), toMillis(end),
	)
}

func (s *SQLiteStore) queryCanonical(ctx context.Context, query string, args ...any) ([]model.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list canonical events: %w", err)
	}
	defer rows.Close()

	var out []model.CanonicalEvent
	for rows.Next() {
		var (
			ev       model.CanonicalEvent
			updated  int64
			occurred sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &ev.LeagueID, &ev.Season, &ev.EventType, &ev.ActionFingerprint,
			&ev.BestRawEventID, &ev.BestScore, &ev.SelectionVersion, &updated, &occurred); err != nil {
			return nil, fmt.Errorf("scan canonical event: %w", err)
		}
		ev.UpdatedAt = fromMillis(updated)
		ev.OccurredAt = timePtr(occurred)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canonical events: %w", err)
	}
	return out, nil
}

// ListMemberships returns every candidate row of the scope's canonical events.
func (s *SQLiteStore) ListMemberships(ctx context.Context, scope model.Scope) ([]model.Membership, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.canonical_event_id, m.raw_event_id, m.score
		   FROM canonical_event_members m
		   JOIN canonical_events c ON c.id = m.canonical_event_id
		  WHERE c.league_id = ? AND c.season = ?
		  ORDER BY m.canonical_event_id, m.raw_event_id`,
		scope.LeagueID, scope.Season,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.CanonicalEventID, &m.RawEventID, &m.Score); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

// ListLockTimes returns the distinct, ascending occurred-at timestamps of the
// scope's canonical lock events.
func (s *SQLiteStore) ListLockTimes(ctx context.Context, scope model.Scope, lockType string) ([]time.Time, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT r.occurred_at
		   FROM canonical_events c
		   JOIN raw_events r ON r.id = c.best_raw_event_id
		  WHERE c.league_id = ? AND c.season = ? AND c.event_type = ?
		    AND r.occurred_at IS NOT NULL
		  ORDER BY r.occurred_at`,
		scope.LeagueID, scope.Season, lockType,
	)
	if err != nil {
		return nil, fmt.Errorf("list lock times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("scan lock time: %w", err)
		}
		out = append(out, fromMillis(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lock times: %w", err)
	}
	return out, nil
}
