package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Station  StationConfig  `toml:"station"`
	Runway   RunwayConfig   `toml:"runway"`
	Airspace AirspaceConfig `toml:"airspace"`
	Learning LearningConfig `toml:"learning"`
	Approach ApproachConfig `toml:"approach"`
	Sim      SimConfig      `toml:"sim"`
	Storage  StorageConfig  `toml:"storage"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host               string   `toml:"host"`
	Port               int      `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// StationConfig identifies the airport the controlled airspace is built
// around
type StationConfig struct {
	AirportCode string  `toml:"airport_code"`
	Latitude    float64 `toml:"latitude"`
	Longitude   float64 `toml:"longitude"`
	ElevationFt float64 `toml:"elevation_ft"`
	CTRRadiusNM float64 `toml:"ctr_radius_nm"`
}

// RunwayConfig describes the active landing runway
type RunwayConfig struct {
	ID                       string  `toml:"id"`
	HeadingDeg               float64 `toml:"heading_deg"`
	ThresholdLat             float64 `toml:"threshold_lat"`
	ThresholdLon             float64 `toml:"threshold_lon"`
	GlideslopeInterceptAltFt float64 `toml:"glideslope_intercept_alt_ft"`
}

// AirspaceConfig sets the state-space resolution
type AirspaceConfig struct {
	DistanceStepNM float64 `toml:"distance_step_nm"`
	HeadingStepDeg float64 `toml:"heading_step_deg"`
}

// LearningConfig holds the Q-learning hyperparameters and the terminal
// reward magnitudes
type LearningConfig struct {
	Alpha           float64 `toml:"alpha"`
	Gamma           float64 `toml:"gamma"`
	Epsilon         float64 `toml:"epsilon"`
	RewardIntercept float64 `toml:"reward_intercept"`
	RewardExit      float64 `toml:"reward_exit"`
}

// ApproachConfig bounds the glideslope interception geometry
type ApproachConfig struct {
	MinInterceptNM     float64 `toml:"min_intercept_nm"`
	MaxInterceptNM     float64 `toml:"max_intercept_nm"`
	InterceptConeDeg   float64 `toml:"intercept_cone_deg"`
	MinDivergenceDeg   float64 `toml:"min_divergence_deg"`
	TerminalDistanceNM float64 `toml:"terminal_distance_nm"`
	TerminalAlignDeg   float64 `toml:"terminal_align_deg"`
}

// SimConfig drives the built-in training harness
type SimConfig struct {
	TickMillis       int     `toml:"tick_ms"`
	SpawnIntervalSec int     `toml:"spawn_interval_s"`
	MaxAircraft      int     `toml:"max_aircraft"`
	SpeedKts         float64 `toml:"speed_kts"`
	AltitudeFt       float64 `toml:"altitude_ft"`
	TurnRateDegSec   float64 `toml:"turn_rate_deg_s"`
}

// StorageConfig holds SQLite settings
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
}

// DefaultConfig returns a configuration for Toronto Pearson with the
// standard training parameters
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			CORSAllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Station: StationConfig{
			AirportCode: "CYYZ",
			Latitude:    43.6777,
			Longitude:   -79.6248,
			ElevationFt: 569,
			CTRRadiusNM: 40,
		},
		Runway: RunwayConfig{
			ID:                       "05",
			HeadingDeg:               57,
			ThresholdLat:             43.6662,
			ThresholdLon:             -79.6350,
			GlideslopeInterceptAltFt: 3000,
		},
		Airspace: AirspaceConfig{
			DistanceStepNM: 5,
			HeadingStepDeg: 5,
		},
		Learning: LearningConfig{
			Alpha:           0.5,
			Gamma:           0.95,
			Epsilon:         0.1,
			RewardIntercept: 1000,
			RewardExit:      -1000,
		},
		Approach: ApproachConfig{
			MinInterceptNM:     5,
			MaxInterceptNM:     15,
			InterceptConeDeg:   30,
			MinDivergenceDeg:   20,
			TerminalDistanceNM: 10,
			TerminalAlignDeg:   45,
		},
		Sim: SimConfig{
			TickMillis:       1000,
			SpawnIntervalSec: 30,
			MaxAircraft:      8,
			SpeedKts:         210,
			AltitudeFt:       5000,
			TurnRateDegSec:   3,
		},
		Storage: StorageConfig{
			DatabasePath: "autovector.db",
		},
	}
}

// Load reads a TOML configuration file, applying defaults for anything
// the file does not set
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks cross-field constraints that TOML decoding cannot
func (c *Config) Validate() error {
	if c.Station.CTRRadiusNM <= 0 {
		return fmt.Errorf("station.ctr_radius_nm must be positive")
	}
	if c.Airspace.DistanceStepNM <= 0 || c.Airspace.HeadingStepDeg <= 0 {
		return fmt.Errorf("airspace steps must be positive")
	}
	if c.Approach.MinInterceptNM >= c.Approach.MaxInterceptNM {
		return fmt.Errorf("approach.min_intercept_nm must be below max_intercept_nm")
	}
	if c.Sim.TickMillis <= 0 {
		return fmt.Errorf("sim.tick_ms must be positive")
	}
	return nil
}
