package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tachyon-beep/tidebreak-sub000/internal/config"
	"github.com/tachyon-beep/tidebreak-sub000/internal/core/sim"
	"github.com/tachyon-beep/tidebreak-sub000/internal/persist"
	"github.com/tachyon-beep/tidebreak-sub000/internal/plugins"
	"github.com/tachyon-beep/tidebreak-sub000/internal/replay"
	"github.com/tachyon-beep/tidebreak-sub000/internal/scenario"
	"github.com/tachyon-beep/tidebreak-sub000/internal/scripting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath    = flag.String("config", "config/tidebreak.toml", "config file")
		seed       = flag.Uint64("seed", 0, "override the configured seed")
		ticks      = flag.Int("ticks", 0, "override the configured tick count")
		recordPath = flag.String("record", "", "write a replay log")
		verifyPath = flag.String("replay", "", "verify a recorded replay log and exit")
	)
	flag.Parse()

	cfg := config.Defaults()
	if _, err := os.Stat(*cfgPath); err == nil {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}
	if *ticks != 0 {
		cfg.Simulation.Ticks = *ticks
	}
	if *recordPath != "" {
		cfg.Replay.RecordPath = *recordPath
	}
	if *verifyPath != "" {
		cfg.Replay.VerifyPath = *verifyPath
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if cfg.Replay.VerifyPath != "" {
		return verifyRun(cfg, log)
	}
	return simulate(cfg, log, *seed != 0)
}

// buildSim assembles a simulation from config: stock plugins, scripted
// plugins, and the scenario's entities. A seed named by the scenario beats
// the config default; a fixed seed (the -seed flag, or a replay log's
// recorded seed) beats both.
func buildSim(cfg *config.Config, log *zap.Logger, seed uint64, seedFixed bool) (*sim.Simulation, string, error) {
	var sc *scenario.Scenario
	if cfg.Scenario.Path != "" {
		loaded, err := scenario.Load(cfg.Scenario.Path)
		if err != nil {
			return nil, "", err
		}
		sc = loaded
	}
	if !seedFixed && sc != nil && sc.Seed != 0 {
		seed = sc.Seed
	}

	opts := []sim.Option{
		sim.WithWorkers(cfg.Simulation.Workers),
		sim.WithLogger(log),
	}
	if cfg.Simulation.Strict {
		opts = append(opts, sim.WithStrict())
	}
	s := sim.New(seed, opts...)

	for _, p := range plugins.Defaults() {
		if err := s.Register(p); err != nil {
			return nil, "", fmt.Errorf("register plugin: %w", err)
		}
	}

	if cfg.Scripts.Dir != "" {
		eng, err := scripting.NewEngine(cfg.Scripts.Dir, log)
		if err != nil {
			return nil, "", fmt.Errorf("load scripts: %w", err)
		}
		for _, p := range eng.Plugins() {
			if err := s.Register(p); err != nil {
				return nil, "", fmt.Errorf("register scripted plugin: %w", err)
			}
		}
	}

	scenarioName := ""
	if sc != nil {
		if err := sc.Apply(s); err != nil {
			return nil, "", err
		}
		scenarioName = sc.Name
		log.Info("scenario loaded",
			zap.String("scenario", sc.Name), zap.Int("entities", len(sc.Entities)))
	}
	return s, scenarioName, nil
}

func simulate(cfg *config.Config, log *zap.Logger, seedFixed bool) error {
	s, scenarioName, err := buildSim(cfg, log, cfg.Simulation.Seed, seedFixed)
	if err != nil {
		return err
	}

	var (
		tele *persist.Telemetry
		ctx  = context.Background()
	)
	if cfg.Database.DSN != "" {
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		cancel()
		if err != nil {
			return err
		}
		defer db.Close()
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			return err
		}
		tele = persist.NewTelemetry(db, uuid.New())
		tele.Attach(s)
		if err := tele.StartRun(ctx, s.Seed(), scenarioName); err != nil {
			return err
		}
	}

	var rec *replay.Recorder
	if cfg.Replay.RecordPath != "" {
		rec = replay.NewRecorder(s, scenarioName)
	}

	log.Info("simulation starting",
		zap.Uint64("seed", s.Seed()),
		zap.Int("ticks", cfg.Simulation.Ticks),
		zap.Int("entities", s.Arena().Len()))

	start := time.Now()
	for i := 0; i < cfg.Simulation.Ticks; i++ {
		if rec != nil {
			err = rec.Step()
		} else {
			err = s.Step()
		}
		if err != nil {
			return err
		}
		if tele != nil && cfg.Database.FlushEvery > 0 && (i+1)%cfg.Database.FlushEvery == 0 {
			if err := tele.Flush(ctx); err != nil {
				return err
			}
		}
	}
	elapsed := time.Since(start)

	hash := s.StateHash()
	log.Info("simulation finished",
		zap.Uint64("ticks", s.Tick()),
		zap.Int("entities", s.Arena().Len()),
		zap.String("hash", fmt.Sprintf("%016x", hash)),
		zap.Duration("elapsed", elapsed))

	if tele != nil {
		if err := tele.Flush(ctx); err != nil {
			return err
		}
		if err := tele.FinishRun(ctx, s.Tick(), hash); err != nil {
			return err
		}
	}
	if rec != nil {
		l := rec.Finish()
		if err := l.Save(cfg.Replay.RecordPath); err != nil {
			return err
		}
		log.Info("replay recorded",
			zap.String("path", cfg.Replay.RecordPath),
			zap.String("run_id", l.RunID.String()))
	}
	return nil
}

func verifyRun(cfg *config.Config, log *zap.Logger) error {
	l, err := replay.LoadLog(cfg.Replay.VerifyPath)
	if err != nil {
		return err
	}
	s, _, err := buildSim(cfg, log, l.Seed, true)
	if err != nil {
		return err
	}
	if err := replay.Verify(s, l); err != nil {
		return err
	}
	log.Info("replay verified",
		zap.String("path", cfg.Replay.VerifyPath),
		zap.String("run_id", l.RunID.String()),
		zap.Uint64("ticks", s.Tick()))
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
