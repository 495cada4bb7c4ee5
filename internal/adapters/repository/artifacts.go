package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/leaguerecap/internal/domain/lifecycle"
)

const artifactColumns = `league_id, season, week_index, artifact_type, version, state,
       selection_fingerprint, window_start, window_end, rendered_text,
       created_at, created_by, approved_at, approved_by, supersedes_version, withheld_reason`

func validKey(key ArtifactKey) error {
	if strings.TrimSpace(key.LeagueID) == "" || strings.TrimSpace(key.ArtifactType) == "" {
		return fmt.Errorf("%w: artifact league id and type are required", ErrInvalidInput)
	}
	return nil
}

// CreateDraftIdempotent returns an existing version when nothing changed and
// otherwise inserts the next DRAFT version. All reads and the insert share
// one transaction.
func (s *SQLiteStore) CreateDraftIdempotent(ctx context.Context, req DraftRequest) (int, bool, error) {
	if err := s.ready(ctx); err != nil {
		return 0, false, err
	}
	if err := validKey(req.Key); err != nil {
		return 0, false, err
	}
	if req.Fingerprint == "" {
		return 0, false, fmt.Errorf("%w: selection fingerprint is required", ErrInvalidInput)
	}

	var (
		version int
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		latest, err := latestArtifact(ctx, tx, req.Key, "")
		hasLatest := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		if !req.Force {
			if hasLatest && latest.Fingerprint == req.Fingerprint {
				version = latest.Version
				return nil
			}
			approved, err := latestArtifact(ctx, tx, req.Key, lifecycle.ArtifactApproved)
			if err == nil && approved.Fingerprint == req.Fingerprint {
				version = approved.Version
				return nil
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		draft, err := latestDraftWithFingerprint(ctx, tx, req.Key, req.Fingerprint)
		if err == nil {
			version = draft.Version
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		supersedes := req.SupersedesVersion
		next := 1
		if hasLatest {
			next = latest.Version + 1
			if supersedes == nil {
				v := latest.Version
				supersedes = &v
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO recap_artifacts (
			   league_id, season, week_index, artifact_type, version, state,
			   selection_fingerprint, window_start, window_end, rendered_text,
			   created_at, created_by, supersedes_version
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			req.Key.LeagueID, req.Key.Season, req.Key.Week, req.Key.ArtifactType, next,
			string(lifecycle.ArtifactDraft), req.Fingerprint,
			nullMillis(req.WindowStart), nullMillis(req.WindowEnd), req.RenderedText,
			toMillis(s.now()), req.CreatedBy, nullInt(supersedes),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert draft v%d: %w", next, ErrConflict)
			}
			return fmt.Errorf("insert draft v%d: %w", next, err)
		}
		version, created = next, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return version, created, nil
}

// Approve moves a DRAFT to APPROVED and stamps the approver.
func (s *SQLiteStore) Approve(ctx context.Context, key ArtifactKey, version int, approver string) error {
	now := toMillis(s.now())
	return s.transition(ctx, key, version, lifecycle.ArtifactDraft, lifecycle.ArtifactApproved,
		`approved_at = ?, approved_by = ?`, now, nullString(approver))
}

// Withhold moves a DRAFT to WITHHELD with a normalized reason.
func (s *SQLiteStore) Withhold(ctx context.Context, key ArtifactKey, version int, reason string) error {
	return s.transition(ctx, key, version, lifecycle.ArtifactDraft, lifecycle.ArtifactWithheld,
		`withheld_reason = ?`, lifecycle.NormalizeWithheldReason(reason))
}

// Supersede moves an APPROVED artifact to SUPERSEDED.
func (s *SQLiteStore) Supersede(ctx context.Context, key ArtifactKey, version int) error {
	return s.transition(ctx, key, version, lifecycle.ArtifactApproved, lifecycle.ArtifactSuperseded, "")
}

// transition applies one conditional single-row update. When it does not
// affect exactly one row the current state is inspected so the error says
// whether the row is missing, illegal to move, or was changed underneath us.
func (s *SQLiteStore) transition(ctx context.Context, key ArtifactKey, version int,
	from, to lifecycle.ArtifactState, set string, setArgs ...any,
) error {
	if err := lifecycle.CheckTransition(from, to); err != nil {
		return err
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}

	assign := "state = ?"
	if set != "" {
		assign += ", " + set
	}
	args := append([]any{string(to)}, setArgs...)
	args = append(args, key.LeagueID, key.Season, key.Week, key.ArtifactType, version, string(from))

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE recap_artifacts SET `+assign+`
			  WHERE league_id = ? AND season = ? AND week_index = ? AND artifact_type = ?
			    AND version = ? AND state = ?`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("transition artifact v%d %s -> %s: %w", version, from, to, err)
		}
		staleErr := exactlyOne(res, fmt.Sprintf("transition artifact v%d %s -> %s", version, from, to))
		if staleErr == nil {
			return nil
		}

		current, err := getArtifact(ctx, tx, key, version)
		if err != nil {
			return err
		}
		if illegal := lifecycle.CheckTransition(current.State, to); illegal != nil {
			return fmt.Errorf("%w: %w", staleErr, illegal)
		}
		return staleErr
	})
}

// GetArtifact returns one version.
func (s *SQLiteStore) GetArtifact(ctx context.Context, key ArtifactKey, version int) (Artifact, error) {
	if err := s.ready(ctx); err != nil {
		return Artifact{}, err
	}
	return getArtifact(ctx, s.db, key, version)
}

// LatestArtifact returns the highest version of any state.
func (s *SQLiteStore) LatestArtifact(ctx context.Context, key ArtifactKey) (Artifact, error) {
	if err := s.ready(ctx); err != nil {
		return Artifact{}, err
	}
	return latestArtifact(ctx, s.db, key, "")
}

// ListArtifacts returns every version in ascending order.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, key ArtifactKey) ([]Artifact, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+artifactColumns+`
		   FROM recap_artifacts
		  WHERE league_id = ? AND season = ? AND week_index = ? AND artifact_type = ?
		  ORDER BY version`,
		key.LeagueID, key.Season, key.Week, key.ArtifactType,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

func getArtifact(ctx context.Context, q queryer, key ArtifactKey, version int) (Artifact, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+artifactColumns+`
		   FROM recap_artifacts
		  WHERE league_id = ? AND season = ? AND week_index = ? AND artifact_type = ? AND version = ?`,
		key.LeagueID, key.Season, key.Week, key.ArtifactType, version,
	)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, fmt.Errorf("artifact v%d: %w", version, ErrNotFound)
	}
	return a, err
}

// latestArtifact returns the highest version, restricted to state when given.
func latestArtifact(ctx context.Context, q queryer, key ArtifactKey, state lifecycle.ArtifactState) (Artifact, error) {
	query := `SELECT ` + artifactColumns + `
	            FROM recap_artifacts
	           WHERE league_id = ? AND season = ? AND week_index = ? AND artifact_type = ?`
	args := []any{key.LeagueID, key.Season, key.Week, key.ArtifactType}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY version DESC LIMIT 1`

	a, err := scanArtifact(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, fmt.Errorf("latest artifact: %w", ErrNotFound)
	}
	return a, err
}

func latestDraftWithFingerprint(ctx context.Context, q queryer, key ArtifactKey, fingerprint string) (Artifact, error) {
	a, err := scanArtifact(q.QueryRowContext(ctx,
		`SELECT `+artifactColumns+`
		   FROM recap_artifacts
		  WHERE league_id = ? AND season = ? AND week_index = ? AND artifact_type = ?
		    AND state = ? AND selection_fingerprint = ?
		  ORDER BY version DESC LIMIT 1`,
		key.LeagueID, key.Season, key.Week, key.ArtifactType, string(lifecycle.ArtifactDraft), fingerprint,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, fmt.Errorf("draft with fingerprint: %w", ErrNotFound)
	}
	return a, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(sc scanner) (Artifact, error) {
	var (
		a                      Artifact
		state                  string
		start, end, approvedAt sql.NullInt64
		createdAt              int64
		approvedBy, withheld   sql.NullString
		supersedes             sql.NullInt64
	)
	err := sc.Scan(&a.LeagueID, &a.Season, &a.Week, &a.ArtifactType, &a.Version, &state,
		&a.Fingerprint, &start, &end, &a.RenderedText,
		&createdAt, &a.CreatedBy, &approvedAt, &approvedBy, &supersedes, &withheld)
	if errors.Is(err, sql.ErrNoRows) {
		return Artifact{}, err
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("scan artifact: %w", err)
	}
	a.State = lifecycle.ArtifactState(state)
	a.WindowStart = timePtr(start)
	a.WindowEnd = timePtr(end)
	a.CreatedAt = fromMillis(createdAt)
	a.ApprovedAt = timePtr(approvedAt)
	a.ApprovedBy = approvedBy.String
	a.WithheldReason = withheld.String
	a.SupersedesVersion = intPtr(supersedes)
	return a, nil
}
