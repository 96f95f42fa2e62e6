package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Scenario   ScenarioConfig   `toml:"scenario"`
	Scripts    ScriptsConfig    `toml:"scripts"`
	Replay     ReplayConfig     `toml:"replay"`
	Database   DatabaseConfig   `toml:"database"`
	Logging    LoggingConfig    `toml:"logging"`
}

type SimulationConfig struct {
	Seed    uint64 `toml:"seed"`
	Ticks   int    `toml:"ticks"`
	Workers int    `toml:"workers"` // 0 = one per CPU
	Strict  bool   `toml:"strict"`  // panic on scope violations instead of failing the tick
}

type ScenarioConfig struct {
	Path string `toml:"path"`
}

type ScriptsConfig struct {
	Dir string `toml:"dir"` // empty disables scripted plugins
}

type ReplayConfig struct {
	RecordPath string `toml:"record_path"` // write a replay log here, empty disables
	VerifyPath string `toml:"verify_path"` // replay and verify this log instead of running
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables telemetry
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	FlushEvery      int           `toml:"flush_every"` // ticks between telemetry flushes
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:  1,
			Ticks: 600,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			FlushEvery:      60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
