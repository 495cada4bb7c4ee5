// Package config defines the recap pipeline configuration and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load(ctx) layers defaults, an optional YAML file and RECAP_ env vars.
//   - Validation failures wrap ErrInvalidConfig.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// DBPath is the SQLite database file holding the ledger and derived tables.
	DBPath string `koanf:"db_path"`

	// LeagueID and Season select the scope the batch run operates on.
	LeagueID string `koanf:"league_id"`
	Season   int    `koanf:"season"`

	// Week is the 1-based week index to prepare. Zero skips week preparation.
	Week int `koanf:"week"`

	// SeasonEnd optionally bounds the final week (RFC3339 or YYYY-MM-DD).
	SeasonEnd string `koanf:"season_end"`

	// ArtifactType names the narrative artifact drafted for a week.
	ArtifactType string `koanf:"artifact_type"`

	// MetricsTextfile, when set, receives a Prometheus text exposition after the run.
	MetricsTextfile string `koanf:"metrics_textfile"`

	// Quality score weights used by the canonicalizer. Only their relative
	// ordering is load-bearing: identity fields > richness > tie-break.
	ScorePlayerID    float64 `koanf:"score_player_id"`
	ScoreBid         float64 `koanf:"score_bid"`
	ScoreAddedIDs    float64 `koanf:"score_added_ids"`
	ScoreDroppedIDs  float64 `koanf:"score_dropped_ids"`
	ScoreRichnessCap float64 `koanf:"score_richness_cap"`
	ScoreStubPenalty float64 `koanf:"score_stub_penalty"`

	// ConfidenceTiers lists the signal confidence tiers admitted by the intake gate.
	ConfidenceTiers []string `koanf:"confidence_tiers"`

	// NoiseSignalTypes lists signal types that are intentionally never narrated.
	NoiseSignalTypes []string `koanf:"noise_signal_types"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		DBPath:           "recap.db",
		Season:           2025,
		ArtifactType:     "WEEKLY_RECAP",
		ScorePlayerID:    50,
		ScoreBid:         30,
		ScoreAddedIDs:    20,
		ScoreDroppedIDs:  10,
		ScoreRichnessCap: 25,
		ScoreStubPenalty: -1000,
		ConfidenceTiers:  []string{"HIGH", "MEDIUM"},
		NoiseSignalTypes: []string{"HEARTBEAT", "LOCK_MARKER"},
	}
}
