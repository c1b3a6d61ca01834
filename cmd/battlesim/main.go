package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/OCAP2/battlesim/internal/config"
	"github.com/OCAP2/battlesim/internal/logging"
	intOtel "github.com/OCAP2/battlesim/internal/otel"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ExtensionName prefixes log files.
const ExtensionName = "battlesim"

var errUsage = errors.New("usage")

// app holds the process-wide logging and telemetry set up for a command.
type app struct {
	out          io.Writer
	sessionStart time.Time

	slogManager *logging.SlogManager
	logger      *slog.Logger
	logFile     *os.File
	logFilePath string
	otel        *intOtel.Provider

	// battle returns the id of the battle being run, for log context
	battle func() string
}

func newApp(out io.Writer) *app {
	return &app{
		out:          out,
		sessionStart: time.Now(),
		slogManager:  logging.NewSlogManager(),
		battle:       func() string { return "" },
	}
}

// commonFlags registers the flags every battle command shares and binds
// them into viper.
func commonFlags(fs *pflag.FlagSet) {
	fs.String("config", ".", "directory containing "+config.FileName)
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("logs-dir", "", "directory for log files")
	fs.StringP("scenario", "s", "", "built-in scenario name")
	fs.StringP("file", "f", "", "scenario YAML file, overrides --scenario")
	fs.Uint64("seed", 0, "random seed override (0 keeps the scenario seed)")
	fs.Bool("strict", false, "panic on invariant violations")
	fs.String("storage", "", "recording backend (memory, sqlite, none)")
	fs.String("output", "", "directory for memory backend exports")

	bind := map[string]string{
		"logLevel":                 "log-level",
		"logsDir":                  "logs-dir",
		"engine.scenario":          "scenario",
		"engine.scenarioFile":      "file",
		"engine.seed":              "seed",
		"engine.strict":            "strict",
		"storage.type":             "storage",
		"storage.memory.outputDir": "output",
	}
	for key, flag := range bind {
		_ = viper.BindPFlag(key, fs.Lookup(flag))
	}
}

// setup loads the config and opens logging. A missing config file is not
// an error: defaults apply.
func (a *app) setup(fs *pflag.FlagSet) error {
	configDir, _ := fs.GetString("config")
	if err := config.Load(configDir); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}

	a.slogManager.SetContext(func() []slog.Attr {
		if id := a.battle(); id != "" {
			return []slog.Attr{slog.String("battle", id)}
		}
		return nil
	})

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}
	a.logFilePath = logging.LogFilePath(logsDir, ExtensionName, a.sessionStart)
	if _, err := os.Stat(a.logFilePath); err == nil {
		os.Rename(a.logFilePath, a.logFilePath+".old")
	}
	f, err := os.OpenFile(a.logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	a.logFile = f

	otelCfg := config.GetOTelConfig()
	a.otel, err = intOtel.New(intOtel.FromConfig(otelCfg, f))
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}

	var otelLogProvider *sdklog.LoggerProvider
	if a.otel.Enabled() {
		otelLogProvider = a.otel.LoggerProvider()
	}
	a.slogManager.Setup(f, viper.GetString("logLevel"), otelLogProvider)
	a.logger = a.slogManager.Logger()
	if otelCfg.Endpoint != "" {
		a.logger.Info("OTel provider initialized", "file", a.logFilePath, "endpoint", otelCfg.Endpoint)
	}
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.otel != nil {
		if err := a.slogManager.Flush(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "flushing logs:", err)
		}
		if err := a.otel.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "shutting down otel:", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %s <command> [flags]

Commands:
  run        run a battle against the wall clock (Ctrl-C stops it)
  simulate   run a battle headless as fast as possible
  validate   check a scenario file and list every problem
  replay     verify an exported battle from its event log
  scenarios  list the built-in scenarios
`, ExtensionName)
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errUsage
	}

	a := newApp(out)
	switch strings.ToLower(args[0]) {
	case "run":
		return a.runBattle(args[1:], true)
	case "simulate":
		return a.runBattle(args[1:], false)
	case "validate":
		return a.validate(args[1:])
	case "replay":
		return a.replay(args[1:])
	case "scenarios":
		return a.scenarios()
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, ExtensionName+":", err)
		}
		os.Exit(1)
	}
}
