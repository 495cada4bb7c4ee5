package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	service "github.com/okian/leaguerecap/internal/app"
	"github.com/okian/leaguerecap/internal/config"
	"github.com/okian/leaguerecap/internal/domain/model"
	"github.com/okian/leaguerecap/internal/domain/scoring"
	"github.com/okian/leaguerecap/pkg/logger"
	"github.com/okian/leaguerecap/pkg/metrics"
)

var errMissingLeague = errors.New("league_id is required")

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "recap run failed", logger.Error(err))
		os.Exit(1)
	}
}

// run canonicalizes the configured scope, prepares the configured week and
// exports metrics when a textfile is set.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	if cfg.LeagueID == "" {
		return errMissingLeague
	}
	scope := model.Scope{LeagueID: cfg.LeagueID, Season: cfg.Season}

	svc := newService(cfg, log)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if _, err := svc.Canonicalize(ctx, scope); err != nil {
		return err
	}

	if cfg.Week > 0 {
		weekRun, err := svc.PrepareWeek(ctx, scope, cfg.Week, cfg.SeasonEnd)
		if err != nil {
			return err
		}
		log.Info(ctx, "weekly run ready",
			logger.String("scope", scope.String()),
			logger.Int("week", weekRun.Week),
			logger.String("state", string(weekRun.State)),
			logger.String("mode", weekRun.WindowMode),
			logger.String("fingerprint", weekRun.Fingerprint),
			logger.Int("events", len(weekRun.CanonicalIDs)),
			logger.String("reason", weekRun.Reason),
		)
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			return err
		}
		log.Info(ctx, "metrics written", logger.String("path", cfg.MetricsTextfile))
	}
	return nil
}

func newService(cfg *config.Config, log logger.Logger) *service.Service {
	return service.New(
		service.WithLogger(log.Named("service")),
		service.WithDBPath(cfg.DBPath),
		service.WithArtifactType(cfg.ArtifactType),
		service.WithScoringWeights(scoring.Weights{
			PlayerID:    cfg.ScorePlayerID,
			Bid:         cfg.ScoreBid,
			AddedIDs:    cfg.ScoreAddedIDs,
			DroppedIDs:  cfg.ScoreDroppedIDs,
			RichnessCap: cfg.ScoreRichnessCap,
			StubPenalty: cfg.ScoreStubPenalty,
		}),
		service.WithConfidenceTiers(cfg.ConfidenceTiers...),
		service.WithNoiseSignalTypes(cfg.NoiseSignalTypes...),
	)
}
