package service

import (
	"time"

	"github.com/okian/leaguerecap/internal/adapters/repository"
	"github.com/okian/leaguerecap/internal/domain/canonical"
	"github.com/okian/leaguerecap/internal/domain/scoring"
	"github.com/okian/leaguerecap/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore uses an already opened store. The service will not close it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDBPath sets the SQLite path opened by Start when no store is given.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScoringWeights sets the quality score weights.
func WithScoringWeights(w scoring.Weights) Option {
	return func(s *Service) {
		s.scorer = scoring.NewQualityScorer(scoring.WithWeights(w))
	}
}

// WithScorer replaces the quality scorer.
func WithScorer(scorer scoring.Scorer) Option {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

// WithFingerprinter replaces the action fingerprinter.
func WithFingerprinter(fp canonical.Fingerprinter) Option {
	return func(s *Service) {
		if fp != nil {
			s.fingerprinter = fp
		}
	}
}

// WithLockEventType sets the event type that marks roster locks.
func WithLockEventType(eventType string) Option {
	return func(s *Service) {
		if eventType != "" {
			s.lockEventType = eventType
		}
	}
}

// WithArtifactType sets the artifact type drafted for weekly recaps.
func WithArtifactType(artifactType string) Option {
	return func(s *Service) {
		if artifactType != "" {
			s.artifactType = artifactType
		}
	}
}

// WithConfidenceTiers sets the signal confidence tiers the intake gate accepts.
func WithConfidenceTiers(tiers ...string) Option {
	return func(s *Service) {
		if len(tiers) > 0 {
			s.confidenceTiers = tiers
		}
	}
}

// WithNoiseSignalTypes sets the signal types silenced by the intake gate.
func WithNoiseSignalTypes(types ...string) Option {
	return func(s *Service) {
		if len(types) > 0 {
			s.noiseTypes = types
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
