// Package scoring ranks competing raw rows for the same canonical action.
package scoring

import (
	"math"

	"github.com/okian/leaguerecap/internal/domain/payload"
)

// Default weights. Only their relative ordering is a contract:
// identity fields > payload richness > tie-break, and stubs never win.
const (
	defaultPlayerIDWeight   = 50
	defaultBidWeight        = 30
	defaultAddedIDsWeight   = 20
	defaultDroppedIDsWeight = 10
	defaultRichnessCap      = 25
	defaultStubPenalty      = -1000

	tieBreakModulus = 1000
	tieBreakScale   = 1e6
)

// Weights configures the additive quality score.
type Weights struct {
	PlayerID    float64
	Bid         float64
	AddedIDs    float64
	DroppedIDs  float64
	RichnessCap float64
	StubPenalty float64
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		PlayerID:    defaultPlayerIDWeight,
		Bid:         defaultBidWeight,
		AddedIDs:    defaultAddedIDsWeight,
		DroppedIDs:  defaultDroppedIDsWeight,
		RichnessCap: defaultRichnessCap,
		StubPenalty: defaultStubPenalty,
	}
}

// Option applies a configuration option to the QualityScorer.
type Option func(*QualityScorer)

// WithWeights replaces the weights. Non-negative stub penalties are ignored so
// a stub can never outrank a row with identity fields.
func WithWeights(w Weights) Option {
	return func(s *QualityScorer) {
		if w.StubPenalty >= 0 {
			w.StubPenalty = s.weights.StubPenalty
		}
		if w.RichnessCap < 0 {
			w.RichnessCap = 0
		}
		s.weights = w
	}
}

// Input abstracts the row fields needed for scoring.
type Input struct {
	RawEventID int64
	Payload    payload.Payload
}

// Scorer computes a deterministic quality score for a raw row.
type Scorer interface {
	Score(in Input) float64
}

// QualityScorer implements Scorer with additive weights.
type QualityScorer struct {
	weights Weights
}

// NewQualityScorer creates a scorer with configuration options.
func NewQualityScorer(opts ...Option) *QualityScorer {
	s := &QualityScorer{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the active weights.
func (s *QualityScorer) Weights() Weights { return s.weights }

// Score computes the quality score for the given input.
func (s *QualityScorer) Score(in Input) float64 {
	w := s.weights
	score := TieBreak(in.RawEventID)
	if in.Payload.IsStub() {
		return w.StubPenalty + score
	}

	id := in.Payload.Identity
	if id.PlayerID != "" {
		score += w.PlayerID
	}
	if id.Bid != "" {
		score += w.Bid
	}
	if len(id.AddedIDs) > 0 {
		score += w.AddedIDs
	}
	if len(id.DroppedIDs) > 0 {
		score += w.DroppedIDs
	}
	score += math.Min(float64(in.Payload.FieldCount()), w.RichnessCap)
	return score
}

// TieBreak is a small deterministic bonus derived from the row id so equal
// scores still resolve the same way on every run. It stays below one point.
func TieBreak(rawEventID int64) float64 {
	m := rawEventID % tieBreakModulus
	if m < 0 {
		m = -m
	}
	return float64(m) / tieBreakScale
}
