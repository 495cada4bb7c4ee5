package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/leaguerecap/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.DBPath, convey.ShouldEqual, "recap.db")
				convey.So(cfg.Season, convey.ShouldEqual, 2025)
				convey.So(cfg.ScoreStubPenalty, convey.ShouldEqual, -1000.0)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RECAP_DB_PATH", "/tmp/league.db")
			_ = os.Setenv("RECAP_LEAGUE_ID", "70985")
			_ = os.Setenv("RECAP_SEASON", "2024")
			_ = os.Setenv("RECAP_WEEK", "3")
			_ = os.Setenv("RECAP_SCORE_BID", "35")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/league.db")
				convey.So(cfg.LeagueID, convey.ShouldEqual, "70985")
				convey.So(cfg.Season, convey.ShouldEqual, 2024)
				convey.So(cfg.Week, convey.ShouldEqual, 3)
				convey.So(cfg.ScoreBid, convey.ShouldEqual, 35.0)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
db_path: "/var/lib/recap/league.db"
league_id: "L1"
season: 2023
week: 7
season_end: "2024-01-08"
confidence_tiers:
  - HIGH
noise_signal_types:
  - HEARTBEAT
  - ROSTER_PING
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RECAP_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DBPath, convey.ShouldEqual, "/var/lib/recap/league.db")
				convey.So(cfg.LeagueID, convey.ShouldEqual, "L1")
				convey.So(cfg.Season, convey.ShouldEqual, 2023)
				convey.So(cfg.Week, convey.ShouldEqual, 7)
				convey.So(cfg.SeasonEnd, convey.ShouldEqual, "2024-01-08")
				convey.So(cfg.ConfidenceTiers, convey.ShouldResemble, []string{"HIGH"})
				convey.So(cfg.NoiseSignalTypes, convey.ShouldResemble, []string{"HEARTBEAT", "ROSTER_PING"})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
league_id: "L1"
week: 7
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RECAP_CONFIG", tmpFile)
			_ = os.Setenv("RECAP_WEEK", "8")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LeagueID, convey.ShouldEqual, "L1") // From file
				convey.So(cfg.Week, convey.ShouldEqual, 8)         // Overridden by env
				convey.So(cfg.ArtifactType, convey.ShouldEqual, "WEEKLY_RECAP")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RECAP_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("RECAP_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty db_path", func() {
			_ = os.Setenv("RECAP_DB_PATH", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "db_path must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-negative stub penalty", func() {
			_ = os.Setenv("RECAP_SCORE_STUB_PENALTY", "5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should reject the scoring weights", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("RECAP_SEASON", "not_a_number")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"RECAP_CONFIG",
		"RECAP_DB_PATH",
		"RECAP_LEAGUE_ID",
		"RECAP_SEASON",
		"RECAP_WEEK",
		"RECAP_SCORE_BID",
		"RECAP_SCORE_STUB_PENALTY",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "recap-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
