// Package service orchestrates the recap pipeline: ledger ingestion,
// canonicalization, weekly selection, signal gating and artifact drafting.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/leaguerecap/internal/adapters/repository"
	"github.com/okian/leaguerecap/internal/domain/canonical"
	"github.com/okian/leaguerecap/internal/domain/dedupe"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/scoring"
	"github.com/okian/leaguerecap/pkg/logger"
	"github.com/okian/leaguerecap/pkg/metrics"
)

// Service runs the recap pipeline against one store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store         repository.Store
	fingerprinter canonical.Fingerprinter
	scorer        scoring.Scorer

	// Configuration
	dbPath          string
	lockEventType   string
	artifactType    string
	confidenceTiers []string
	noiseTypes      []string
	now             func() time.Time

	// State
	started   bool
	ownsStore bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		fingerprinter:   dedupe.NewFingerprinter(),
		scorer:          scoring.NewQualityScorer(),
		dbPath:          "recap.db",
		lockEventType:   model.EventTypeLock,
		artifactType:    "WEEKLY_RECAP",
		confidenceTiers: []string{"HIGH", "MEDIUM"},
		noiseTypes:      []string{"HEARTBEAT", "LOCK_MARKER"},
		now:             func() time.Time { return time.Now().UTC() },
		logger:          logger.Get().Named("service"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the store unless one was supplied.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.store == nil {
		store, err := repository.Open(ctx, s.dbPath,
			repository.WithClock(s.now),
			repository.WithLogger(s.logger.Named("repository")),
		)
		if err != nil {
			metrics.RecordError("repository")
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.ownsStore = true
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.dbPath))
	}

	s.started = true
	s.logger.Info(ctx, "recap service started",
		logger.String("lockEventType", s.lockEventType),
		logger.String("artifactType", s.artifactType),
	)
	return nil
}

// Stop closes the store if the service opened it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing store failed", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}

	s.started = false
	s.logger.Info(context.Background(), "recap service stopped")
}

// storeOrErr returns the store once the service is running.
func (s *Service) storeOrErr() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || s.store == nil {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// GetStats returns service state for logging.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"started":       s.started,
		"dbPath":        s.dbPath,
		"lockEventType": s.lockEventType,
		"artifactType":  s.artifactType,
	}
}

// Ingest appends one raw event to the ledger; duplicates are not errors.
func (s *Service) Ingest(ctx context.Context, e model.RawEvent) (int64, bool, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return 0, false, err
	}
	id, inserted, err := store.AppendRawEvent(ctx, e)
	if err != nil {
		metrics.RecordError("ledger")
		return 0, false, err
	}
	metrics.RecordIngest(inserted)
	if !inserted {
		s.logger.Debug(ctx, "duplicate raw event ignored",
			logger.String("source", e.Source),
			logger.String("externalID", e.ExternalID),
		)
	}
	return id, inserted, nil
}

// Canonicalize rebuilds the canonical projection of scope from its ledger.
func (s *Service) Canonicalize(ctx context.Context, scope model.Scope) (canonical.Stats, error) {
	store, err := s.storeOrErr()
	if err != nil {
		return canonical.Stats{}, err
	}

	start := time.Now()
	stats, err := store.RebuildCanonical(ctx, scope, func(raws []model.RawEvent) (canonical.Generation, error) {
		return canonical.Build(scope, raws, s.fingerprinter, s.scorer)
	})
	if err != nil {
		metrics.RecordError("canonical")
		s.logger.Error(ctx, "canonical rebuild failed", logger.String("scope", scope.String()), logger.Error(err))
		return canonical.Stats{}, fmt.Errorf("canonicalize %s: %w", scope, err)
	}
	elapsed := time.Since(start)
	metrics.RecordCanonicalRebuild(elapsed.Seconds(), stats.Created, stats.Updated, stats.Skipped)

	s.logger.Info(ctx, "canonical rebuild committed",
		logger.String("scope", scope.String()),
		logger.Int("processed", stats.Processed),
		logger.Int("created", stats.Created),
		logger.Int("updated", stats.Updated),
		logger.Int("skipped", stats.Skipped),
		logger.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return stats, nil
}
