package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/OCAP2/battlesim/internal/config"
	"github.com/OCAP2/battlesim/internal/engine"
	"github.com/OCAP2/battlesim/internal/monitor"
	"github.com/OCAP2/battlesim/internal/recorder"
	"github.com/OCAP2/battlesim/internal/replay"
	"github.com/OCAP2/battlesim/internal/scenario"
	"github.com/OCAP2/battlesim/internal/storage/memory"
	"github.com/OCAP2/battlesim/pkg/core"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// headlessLimit bounds the simulate loop against a scenario that never ends.
const headlessLimit = 1_000_000

func loadScenario(cfg config.EngineConfig) (core.BattleScenario, error) {
	if cfg.ScenarioFile != "" {
		return scenario.LoadFile(cfg.ScenarioFile)
	}
	sc, ok := scenario.Builtin(cfg.Scenario)
	if !ok {
		return core.BattleScenario{}, fmt.Errorf("unknown scenario %q (built-in: %s)",
			cfg.Scenario, strings.Join(scenario.Names(), ", "))
	}
	return sc, nil
}

// commentary prints the moments a spectator cares about.
func (a *app) commentary() engine.Callbacks {
	return engine.Callbacks{
		OnPhaseChange: func(from, to core.Phase) {
			fmt.Fprintf(a.out, ">> phase %s -> %s\n", from, to)
		},
		OnCriticalMoment: func(e core.BattleEvent) {
			fmt.Fprintf(a.out, "!! %7s  %s\n", e.Elapsed.Truncate(time.Millisecond), e.Message)
		},
		OnBattleComplete: func(w core.Winner, s core.BattleScore) {
			fmt.Fprintf(a.out, "== winner %s (red %d, blue %d)\n", w, s.Red.Points, s.Blue.Points)
		},
	}
}

// runBattle drives one battle to completion. live selects the wall-clock
// runner; otherwise the battle is stepped headless.
func (a *app) runBattle(args []string, live bool) error {
	name := "simulate"
	if live {
		name = "run"
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.out)
	commonFlags(fs)
	fs.Duration("tick", 0, "tick interval (wall time for run, simulated step for simulate)")
	fs.Float64("speed", 0, "simulated seconds per wall second (run only)")
	fs.Bool("status", false, "write the status file while running (run only)")
	_ = viper.BindPFlag("engine.tickInterval", fs.Lookup("tick"))
	_ = viper.BindPFlag("engine.speed", fs.Lookup("speed"))
	_ = viper.BindPFlag("status.enabled", fs.Lookup("status"))
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.setup(fs); err != nil {
		return err
	}
	defer a.close()

	cfg := config.GetEngineConfig()
	sc, err := loadScenario(cfg)
	if err != nil {
		return err
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", cfg.TickInterval)
	}

	opts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithStrictInvariants(cfg.Strict),
	}
	if live {
		opts = append(opts, engine.WithCallbacks(a.commentary()))
	}
	if cfg.Seed != 0 {
		opts = append(opts, engine.WithSeed(cfg.Seed))
	}
	e, err := engine.New(opts...)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.Start(sc); err != nil {
		return err
	}
	state := e.GetState()
	a.battle = func() string { return state.BattleID }
	fmt.Fprintf(a.out, "battle %s: %s, %d phase(s), %s\n", state.BattleID, sc.Name, len(sc.Phases), sc.Duration)

	rec, backend, err := a.initStorage()
	if err != nil {
		return err
	}
	if backend != nil {
		defer backend.Close()
		if err := rec.Attach(e); err != nil {
			return err
		}
	}

	var final core.BattleState
	if live {
		final, err = a.drive(e, cfg, rec)
	} else {
		final, err = a.step(e, cfg)
	}
	if err != nil && !errors.Is(err, engine.ErrRunnerStopped) {
		return err
	}
	interrupted := err != nil

	if rec != nil {
		if err := rec.Finish(final); err != nil {
			a.logger.Error("recording incomplete", "error", err)
			fmt.Fprintln(a.out, "recording incomplete:", err)
		}
	}

	a.report(final)
	a.reportStorage(backend, final.BattleID)
	if !interrupted {
		if _, err := replay.Verify(final.Events, final.Score); err != nil {
			return fmt.Errorf("event log does not reproduce the score: %w", err)
		}
		fmt.Fprintln(a.out, "event log verified")
	}
	return nil
}

// step ticks headless in fixed simulated steps.
func (a *app) step(e *engine.Engine, cfg config.EngineConfig) (core.BattleState, error) {
	for i := 0; i < headlessLimit; i++ {
		if err := e.Tick(cfg.TickInterval); err != nil {
			return e.GetState(), err
		}
		if st := e.GetState(); st.Status == core.StatusComplete {
			return st, nil
		}
	}
	return e.GetState(), fmt.Errorf("battle did not complete after %d ticks", headlessLimit)
}

// drive runs the battle on the wall clock. SIGINT or SIGTERM pauses the
// battle, captures its state and stops it.
func (a *app) drive(e *engine.Engine, cfg config.EngineConfig, rec *recorder.Recorder) (core.BattleState, error) {
	runner := engine.NewRunner(e, cfg.TickInterval, cfg.Speed)

	statusCfg := config.GetStatusConfig()
	if statusCfg.Enabled {
		deps := monitor.Dependencies{
			Source:   e,
			Logger:   a.logger,
			Path:     statusCfg.Path,
			Interval: statusCfg.Interval,
		}
		if rec != nil {
			deps.Pending = rec
		}
		mon := monitor.NewService(deps)
		if err := mon.Start(); err != nil {
			return core.BattleState{}, err
		}
		defer mon.Stop()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	var (
		mu          sync.Mutex
		interrupted *core.BattleState
	)
	go func() {
		select {
		case <-signals:
			runner.Pause()
			st := e.GetState()
			mu.Lock()
			interrupted = &st
			mu.Unlock()
			runner.Stop()
			fmt.Fprintln(a.out, "battle interrupted")
		case <-runner.Done():
		}
	}()

	err := runner.Run(context.Background())
	if errors.Is(err, engine.ErrRunnerStopped) {
		mu.Lock()
		defer mu.Unlock()
		if interrupted != nil {
			return *interrupted, err
		}
	}
	return e.GetState(), err
}

func (a *app) report(st core.BattleState) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "scenario\t%s\n", st.Scenario)
	fmt.Fprintf(w, "status\t%s\n", st.Status)
	fmt.Fprintf(w, "elapsed\t%s\n", st.Elapsed)
	if st.Winner != core.WinnerNone {
		fmt.Fprintf(w, "winner\t%s\n", st.Winner)
	}
	fmt.Fprintf(w, "advantage\t%s (%d)\n", st.Score.Advantage, st.Score.AdvantagePoints)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "\tred\tblue")
	fmt.Fprintf(w, "points\t%d\t%d\n", st.Score.Red.Points, st.Score.Blue.Points)
	fmt.Fprintf(w, "launched / blocked\t%d\t%d\n", st.Score.Red.AttacksLaunched, st.Score.Blue.AttacksBlocked)
	fmt.Fprintf(w, "successful / honeypots\t%d\t%d\n", st.Score.Red.AttacksSuccessful, st.Score.Blue.HoneypotsTriggered)
	fmt.Fprintf(w, "exfiltrated / bans\t%d\t%d\n", st.Score.Red.DataExfiltrated, st.Score.Blue.Bans)
	fmt.Fprintf(w, "incidents resolved\t\t%d\n", st.Score.Blue.IncidentsResolved)
	fmt.Fprintln(w)
	compromised := make([]string, len(st.Compromised))
	for i, s := range st.Compromised {
		compromised[i] = string(s)
	}
	sort.Strings(compromised)
	if len(compromised) == 0 {
		compromised = []string{"none"}
	}
	fmt.Fprintf(w, "compromised\t%s\n", strings.Join(compromised, ", "))
	fmt.Fprintf(w, "events\t%d\n", len(st.Events))
	w.Flush()
}

func (a *app) validate(args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	fs.SetOutput(a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("validate takes exactly one scenario file")
	}

	sc, err := scenario.LoadFile(fs.Arg(0))
	if err != nil {
		var cfgErr *scenario.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(a.out, "%s: invalid\n", fs.Arg(0))
			for _, p := range cfgErr.Problems {
				fmt.Fprintf(a.out, "  %s\n", p)
			}
		}
		return err
	}

	fmt.Fprintf(a.out, "%s: ok\n", fs.Arg(0))
	a.describe(sc)
	return nil
}

func (a *app) describe(sc core.BattleScenario) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\tseed %d\n", sc.Name, sc.Duration, sc.Seed)
	for _, p := range sc.Phases {
		intensity := p.Intensity
		if intensity == "" {
			intensity = core.IntensityMedium
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d attack(s), %d defense(s), %d reactive\n",
			p.Name, p.Duration, intensity, len(p.EnabledAttacks), len(p.EnabledDefenses), len(p.ReactiveDefenses))
	}
	w.Flush()
}

func (a *app) replay(args []string) error {
	fs := pflag.NewFlagSet("replay", pflag.ContinueOnError)
	fs.SetOutput(a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("replay takes exactly one export file")
	}

	export, err := memory.ReadExport(fs.Arg(0))
	if err != nil {
		return err
	}
	report, err := replay.Verify(export.Events, export.Score)
	fmt.Fprintf(a.out, "battle %s (%s): %d event(s), red %d, blue %d, winner %s\n",
		export.BattleID, export.Scenario, report.Events,
		report.Score.Red.Points, report.Score.Blue.Points, report.Winner)
	if err != nil {
		return fmt.Errorf("replay mismatch: %w", err)
	}
	if !report.Complete {
		fmt.Fprintln(a.out, "battle did not complete; log is consistent so far")
		return nil
	}
	fmt.Fprintln(a.out, "replay verified")
	return nil
}

func (a *app) scenarios() error {
	for _, name := range scenario.Names() {
		sc, _ := scenario.Builtin(name)
		a.describe(sc)
	}
	return nil
}
