package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/stitts-dev/lineup-engine/pkg/optimizer"
	"github.com/stitts-dev/lineup-engine/pkg/portfolio"
	"github.com/stitts-dev/lineup-engine/pkg/simulator"
)

// Config carries the engine tunables. Every value has a sane default and can
// be overridden from the environment or a .env file.
type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Solver
	SolveTimeBudget time.Duration `mapstructure:"SOLVE_TIME_BUDGET"`
	SolveMaxNodes   int64         `mapstructure:"SOLVE_MAX_NODES"`

	// Portfolio generation
	MaxLineups       int `mapstructure:"MAX_LINEUPS"`
	LineupRetries    int `mapstructure:"LINEUP_RETRIES"`
	CorrectionPasses int `mapstructure:"CORRECTION_PASSES"`
	GeneratorWorkers int `mapstructure:"GENERATOR_WORKERS"`

	// Simulation
	MaxSimulations     int     `mapstructure:"MAX_SIMULATIONS"`
	SimulationWorkers  int     `mapstructure:"SIMULATION_WORKERS"`
	SimulationBatch    int     `mapstructure:"SIMULATION_BATCH"`
	PrecisionTolerance float64 `mapstructure:"PRECISION_TOLERANCE"`
	TeamCorrelation    float64 `mapstructure:"TEAM_CORRELATION"`

	// Determinism
	BaseSeed int64 `mapstructure:"BASE_SEED"`
}

// LoadConfig reads engine configuration from .env and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "")
	viper.SetDefault("SOLVE_TIME_BUDGET", "5s")
	viper.SetDefault("SOLVE_MAX_NODES", 2_000_000)
	viper.SetDefault("MAX_LINEUPS", 150)
	viper.SetDefault("LINEUP_RETRIES", 5)
	viper.SetDefault("CORRECTION_PASSES", 3)
	viper.SetDefault("GENERATOR_WORKERS", 4)
	viper.SetDefault("MAX_SIMULATIONS", 10000)
	viper.SetDefault("SIMULATION_WORKERS", 4)
	viper.SetDefault("SIMULATION_BATCH", 500)
	viper.SetDefault("PRECISION_TOLERANCE", 0.01)
	viper.SetDefault("TEAM_CORRELATION", 0.35)
	viper.SetDefault("BASE_SEED", 1)

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return &config, nil
}

// SolveConfig maps the environment tunables onto solver bounds.
func (c *Config) SolveConfig() optimizer.SolveConfig {
	return optimizer.SolveConfig{
		TimeBudget: c.SolveTimeBudget,
		MaxNodes:   c.SolveMaxNodes,
		Seed:       c.BaseSeed,
	}
}

// GeneratorConfig maps the environment tunables onto portfolio generation
// bounds.
func (c *Config) GeneratorConfig() portfolio.Config {
	return portfolio.Config{
		Workers:          c.GeneratorWorkers,
		MaxRetries:       c.LineupRetries,
		CorrectionPasses: c.CorrectionPasses,
		Seed:             c.BaseSeed,
		Solve:            c.SolveConfig(),
	}
}

// SimulatorConfig maps the environment tunables onto simulation bounds.
func (c *Config) SimulatorConfig() simulator.Config {
	return simulator.Config{
		Trials:             c.MaxSimulations,
		Workers:            c.SimulationWorkers,
		BatchSize:          c.SimulationBatch,
		PrecisionTolerance: c.PrecisionTolerance,
		TeamCorrelation:    c.TeamCorrelation,
		Seed:               c.BaseSeed,
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
