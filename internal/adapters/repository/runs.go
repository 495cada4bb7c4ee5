package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/leaguerecap/internal/domain/lifecycle"
	"github.com/okian/leaguerecap/internal/domain/selection"
)

type runRow struct {
	state        string
	mode         string
	start, end   sql.NullInt64
	fingerprint  string
	canonicalIDs string
	counts       string
	reason       string
	updatedAt    int64
}

// sameInputs reports whether two rows snapshot the same selection. State and
// timestamps are outputs, not inputs.
func (r runRow) sameInputs(o runRow) bool {
	return r.mode == o.mode &&
		r.start == o.start &&
		r.end == o.end &&
		r.fingerprint == o.fingerprint &&
		r.canonicalIDs == o.canonicalIDs &&
		r.counts == o.counts &&
		r.reason == o.reason
}

func toRunRow(run RecapRun) runRow {
	return runRow{
		state:        string(run.State),
		mode:         run.WindowMode,
		start:        nullMillis(run.WindowStart),
		end:          nullMillis(run.WindowEnd),
		fingerprint:  run.Fingerprint,
		canonicalIDs: selection.EncodeIDs(run.CanonicalIDs),
		counts:       selection.EncodeCounts(run.CountsByType),
		reason:       run.Reason,
	}
}

// UpsertRun stores run unless an identical snapshot already exists.
func (s *SQLiteStore) UpsertRun(ctx context.Context, run RecapRun) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	if run.LeagueID == "" || run.State == "" {
		return false, fmt.Errorf("%w: run league id and state are required", ErrInvalidInput)
	}
	next := toRunRow(run)
	next.updatedAt = toMillis(s.now())

	written := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getRunRow(ctx, tx, run.RunKey)
		switch {
		case err == nil && current.sameInputs(next):
			return nil
		case err != nil && !errors.Is(err, ErrNotFound):
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO recap_runs (
			   league_id, season, week_index, state, window_mode, window_start, window_end,
			   selection_fingerprint, canonical_ids, counts_by_type, reason, updated_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (league_id, season, week_index) DO UPDATE SET
			   state = excluded.state,
			   window_mode = excluded.window_mode,
			   window_start = excluded.window_start,
			   window_end = excluded.window_end,
			   selection_fingerprint = excluded.selection_fingerprint,
			   canonical_ids = excluded.canonical_ids,
			   counts_by_type = excluded.counts_by_type,
			   reason = excluded.reason,
			   updated_at = excluded.updated_at`,
			run.LeagueID, run.Season, run.Week, next.state, next.mode, next.start, next.end,
			next.fingerprint, next.canonicalIDs, next.counts, next.reason, next.updatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}
		written = true
		return nil
	})
	return written, err
}

// GetRun returns the stored run for key.
func (s *SQLiteStore) GetRun(ctx context.Context, key RunKey) (RecapRun, error) {
	if err := s.ready(ctx); err != nil {
		return RecapRun{}, err
	}
	row, err := getRunRow(ctx, s.db, key)
	if err != nil {
		return RecapRun{}, err
	}
	ids, err := selection.DecodeIDs(row.canonicalIDs)
	if err != nil {
		return RecapRun{}, fmt.Errorf("decode run ids: %w", err)
	}
	counts, err := selection.DecodeCounts(row.counts)
	if err != nil {
		return RecapRun{}, fmt.Errorf("decode run counts: %w", err)
	}
	return RecapRun{
		RunKey:       key,
		State:        lifecycle.RunState(row.state),
		WindowMode:   row.mode,
		WindowStart:  timePtr(row.start),
		WindowEnd:    timePtr(row.end),
		Fingerprint:  row.fingerprint,
		CanonicalIDs: ids,
		CountsByType: counts,
		Reason:       row.reason,
		UpdatedAt:    fromMillis(row.updatedAt),
	}, nil
}

func getRunRow(ctx context.Context, q queryer, key RunKey) (runRow, error) {
	var r runRow
	err := q.QueryRowContext(ctx,
		`SELECT state, window_mode, window_start, window_end, selection_fingerprint,
		        canonical_ids, counts_by_type, reason, updated_at
		   FROM recap_runs
		  WHERE league_id = ? AND season = ? AND week_index = ?`,
		key.LeagueID, key.Season, key.Week,
	).Scan(&r.state, &r.mode, &r.start, &r.end, &r.fingerprint,
		&r.canonicalIDs, &r.counts, &r.reason, &r.updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return runRow{}, fmt.Errorf("run %s/%d/%d: %w", key.LeagueID, key.Season, key.Week, ErrNotFound)
	}
	if err != nil {
		return runRow{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// TransitionRun moves a run between states. Pairs outside the run table are
// rejected before the database is touched.
func (s *SQLiteStore) TransitionRun(ctx context.Context, key RunKey, from, to lifecycle.RunState) error {
	if err := lifecycle.CheckRunTransition(from, to); err != nil {
		return err
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE recap_runs SET state = ?, updated_at = ?
		  WHERE league_id = ? AND season = ? AND week_index = ? AND state = ?`,
		string(to), toMillis(s.now()), key.LeagueID, key.Season, key.Week, string(from),
	)
	if err != nil {
		return fmt.Errorf("transition run: %w", err)
	}
	return exactlyOne(res, fmt.Sprintf("transition run %s -> %s", from, to))
}
