package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[station]
airport_code = "CYOW"
latitude = 45.3225
longitude = -75.6692
ctr_radius_nm = 30

[learning]
epsilon = 0.25
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Station.AirportCode != "CYOW" || cfg.Station.CTRRadiusNM != 30 {
		t.Errorf("station overrides not applied: %+v", cfg.Station)
	}
	if cfg.Learning.Epsilon != 0.25 {
		t.Errorf("epsilon = %v, expected 0.25", cfg.Learning.Epsilon)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, expected default 8080", cfg.Server.Port)
	}
	if cfg.Airspace.DistanceStepNM != 5 {
		t.Errorf("distance step = %v, expected default 5", cfg.Airspace.DistanceStepNM)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadGeometry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approach.MinInterceptNM = 20
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when min intercept exceeds max")
	}

	cfg = DefaultConfig()
	cfg.Station.CTRRadiusNM = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero radius")
	}
}
