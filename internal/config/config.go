// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Estimation defaults. Each of these is overridable through the environment;
// the values below are the documented defaults used when nothing is set.
const (
	// DefaultMinObservations is the minimum number of aligned monthly
	// observations required before any model is fit.
	DefaultMinObservations = 12

	// DefaultMinOldestWeight is the relative weight the oldest retained
	// observation keeps under exponential time decay. The decay rate is
	// derived from it: lambda = ln(1/MinOldestWeight) / (n-1).
	DefaultMinOldestWeight = 0.10

	// DefaultOutlierMADFactor is the robust threshold for outlier flagging:
	// observations beyond median +/- k*MAD are flagged.
	DefaultOutlierMADFactor = 5.0

	// DefaultBootstrapResamples is the number of moving-block bootstrap
	// resamples used for confidence intervals.
	DefaultBootstrapResamples = 500

	// DefaultBootstrapBlockLength is the moving-block length. Blocks longer
	// than one month partially preserve serial correlation in the resamples.
	DefaultBootstrapBlockLength = 3

	// DefaultUsefulnessFloor is the minimum validated R-squared a model must
	// reach to contribute to the ensemble.
	DefaultUsefulnessFloor = 0.30

	// DefaultBootstrapSeed seeds the reproducible bootstrap RNG streams.
	DefaultBootstrapSeed = 42
)

// Config holds application configuration
type Config struct {
	DataDir   string // base directory for the history database and rendered charts
	StaticDir string // directory chart PNGs are written to
	LogLevel  string
	Port      int
	DevMode   bool

	// RefreshSchedule is an optional cron spec that re-runs the analysis
	// and stores a fresh snapshot. Empty disables the scheduler.
	RefreshSchedule string

	// FundSymbol is the fund the scheduled refresh analyzes. Required only
	// when RefreshSchedule is set; ad-hoc API runs name their own fund.
	FundSymbol string

	Estimation EstimationConfig
}

// EstimationConfig carries every tunable of the estimation pipeline. It is
// constructed per run and passed explicitly; the engine keeps no
// package-level mutable state.
type EstimationConfig struct {
	MinObservations    int
	MinOldestWeight    float64
	OutlierMADFactor   float64
	BootstrapResamples int
	BlockLength        int
	UsefulnessFloor    float64
	Seed               int64
}

// DefaultEstimation returns the documented estimation defaults.
func DefaultEstimation() EstimationConfig {
	return EstimationConfig{
		MinObservations:    DefaultMinObservations,
		MinOldestWeight:    DefaultMinOldestWeight,
		OutlierMADFactor:   DefaultOutlierMADFactor,
		BootstrapResamples: DefaultBootstrapResamples,
		BlockLength:        DefaultBootstrapBlockLength,
		UsefulnessFloor:    DefaultUsefulnessFloor,
		Seed:               DefaultBootstrapSeed,
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("FUNDLENS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	staticDir := getEnv("FUNDLENS_STATIC_DIR", filepath.Join(absDataDir, "static"))
	if err := os.MkdirAll(staticDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create static directory: %w", err)
	}

	port, err := getEnvInt("FUNDLENS_PORT", 8090)
	if err != nil {
		return nil, err
	}

	est := DefaultEstimation()
	if est.MinObservations, err = getEnvInt("FUNDLENS_MIN_OBSERVATIONS", est.MinObservations); err != nil {
		return nil, err
	}
	if est.MinOldestWeight, err = getEnvFloat("FUNDLENS_MIN_OLDEST_WEIGHT", est.MinOldestWeight); err != nil {
		return nil, err
	}
	if est.OutlierMADFactor, err = getEnvFloat("FUNDLENS_OUTLIER_MAD_FACTOR", est.OutlierMADFactor); err != nil {
		return nil, err
	}
	if est.BootstrapResamples, err = getEnvInt("FUNDLENS_BOOTSTRAP_RESAMPLES", est.BootstrapResamples); err != nil {
		return nil, err
	}
	if est.BlockLength, err = getEnvInt("FUNDLENS_BOOTSTRAP_BLOCK_LENGTH", est.BlockLength); err != nil {
		return nil, err
	}
	if est.UsefulnessFloor, err = getEnvFloat("FUNDLENS_USEFULNESS_FLOOR", est.UsefulnessFloor); err != nil {
		return nil, err
	}
	seed, err := getEnvInt("FUNDLENS_BOOTSTRAP_SEED", int(est.Seed))
	if err != nil {
		return nil, err
	}
	est.Seed = int64(seed)

	if est.MinOldestWeight <= 0 || est.MinOldestWeight >= 1 {
		return nil, fmt.Errorf("FUNDLENS_MIN_OLDEST_WEIGHT must be in (0, 1), got %v", est.MinOldestWeight)
	}
	if est.BlockLength < 2 {
		return nil, fmt.Errorf("FUNDLENS_BOOTSTRAP_BLOCK_LENGTH must be at least 2, got %d", est.BlockLength)
	}

	schedule := getEnv("FUNDLENS_REFRESH_SCHEDULE", "")
	fund := getEnv("FUNDLENS_FUND_SYMBOL", "")
	if schedule != "" && fund == "" {
		return nil, fmt.Errorf("FUNDLENS_REFRESH_SCHEDULE requires FUNDLENS_FUND_SYMBOL")
	}

	return &Config{
		DataDir:         absDataDir,
		StaticDir:       staticDir,
		LogLevel:        getEnv("FUNDLENS_LOG_LEVEL", "info"),
		Port:            port,
		DevMode:         getEnv("FUNDLENS_DEV_MODE", "") == "true",
		RefreshSchedule: schedule,
		FundSymbol:      fund,
		Estimation:      est,
	}, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return parsed, nil
}
