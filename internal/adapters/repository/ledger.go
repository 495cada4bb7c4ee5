package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/okian/leaguerecap/internal/domain/model"
)

// AppendRawEvent inserts e, ignoring duplicates of (source, external id).
func (s *SQLiteStore) AppendRawEvent(ctx context.Context, e model.RawEvent) (int64, bool, error) {
	if err := s.ready(ctx); err != nil {
		return 0, false, err
	}
	if strings.TrimSpace(e.Source) == "" || strings.TrimSpace(e.ExternalID) == "" {
		return 0, false, fmt.Errorf("%w: source and external id are required", ErrInvalidInput)
	}
	if strings.TrimSpace(e.LeagueID) == "" || e.EventType == "" {
		return 0, false, fmt.Errorf("%w: league id and event type are required", ErrInvalidInput)
	}
	ingested := e.IngestedAt
	if ingested.IsZero() {
		ingested = s.now()
	}
	body := e.Payload
	if body == nil {
		body = []byte{}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_events (
		   league_id, season, source, external_id, event_type, occurred_at, ingested_at, payload
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, external_id) DO NOTHING`,
		e.LeagueID, e.Season, e.Source, e.ExternalID, e.EventType,
		nullMillis(e.OccurredAt), toMillis(ingested), body,
	)
	if err != nil {
		return 0, false, fmt.Errorf("append raw event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("append raw event rows affected: %w", err)
	}
	if affected == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("append raw event id: %w", err)
		}
		return id, true, nil
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM raw_events WHERE source = ? AND external_id = ?`,
		e.Source, e.ExternalID,
	).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("lookup duplicate raw event: %w", err)
	}
	return id, false, nil
}

// ListRawEvents returns the scope's ledger in insertion order.
func (s *SQLiteStore) ListRawEvents(ctx context.Context, scope model.Scope) ([]model.RawEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return listRawEvents(ctx, s.db, scope)
}

func listRawEvents(ctx context.Context, q queryer, scope model.Scope) ([]model.RawEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, league_id, season, source, external_id, event_type, occurred_at, ingested_at, payload
		   FROM raw_events
		  WHERE league_id = ? AND season = ?
		  ORDER BY id`,
		scope.LeagueID, scope.Season,
	)
	if err != nil {
		return nil, fmt.Errorf("list raw events: %w", err)
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		var (
			e        model.RawEvent
			occurred sql.NullInt64
			ingested int64
		)
		if err := rows.Scan(&e.ID, &e.LeagueID, &e.Season, &e.Source, &e.ExternalID,
			&e.EventType, &occurred, &ingested, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan raw event: %w", err)
		}
		e.OccurredAt = timePtr(occurred)
		e.IngestedAt = fromMillis(ingested)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate raw events: %w", err)
	}
	return out, nil
}
