package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "battlesim.cfg.json"

// EngineConfig holds the driver settings used by the run and simulate commands.
type EngineConfig struct {
	Scenario     string        `json:"scenario" mapstructure:"scenario"`
	ScenarioFile string        `json:"scenarioFile" mapstructure:"scenarioFile"`
	Seed         uint64        `json:"seed" mapstructure:"seed"`
	TickInterval time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	Speed        float64       `json:"speed" mapstructure:"speed"`
	Strict       bool          `json:"strict" mapstructure:"strict"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings of the in-memory SQLite backend.
type SQLiteConfig struct {
	DumpPath      string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval  time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	BatchSize     int           `json:"batchSize" mapstructure:"batchSize"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Buffer int          `json:"buffer" mapstructure:"buffer"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// StatusConfig controls the status file monitor.
type StatusConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Path     string        `json:"path" mapstructure:"path"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers every default value. Load calls it; commands that
// run without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./battlelogs")

	viper.SetDefault("engine.scenario", "standard")
	viper.SetDefault("engine.scenarioFile", "")
	viper.SetDefault("engine.seed", 0)
	viper.SetDefault("engine.tickInterval", "100ms")
	viper.SetDefault("engine.speed", 1.0)
	viper.SetDefault("engine.strict", false)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.buffer", 256)
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.batchSize", 500)
	viper.SetDefault("storage.sqlite.flushInterval", "1s")

	viper.SetDefault("status.enabled", false)
	viper.SetDefault("status.path", "./battlelogs/status.json")
	viper.SetDefault("status.interval", "1s")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "battlesim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEngineConfig returns the engine section.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		Scenario:     viper.GetString("engine.scenario"),
		ScenarioFile: viper.GetString("engine.scenarioFile"),
		Seed:         viper.GetUint64("engine.seed"),
		TickInterval: viper.GetDuration("engine.tickInterval"),
		Speed:        viper.GetFloat64("engine.speed"),
		Strict:       viper.GetBool("engine.strict"),
	}
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:   viper.GetString("storage.type"),
		Buffer: viper.GetInt("storage.buffer"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpPath:      viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval:  viper.GetDuration("storage.sqlite.dumpInterval"),
			BatchSize:     viper.GetInt("storage.sqlite.batchSize"),
			FlushInterval: viper.GetDuration("storage.sqlite.flushInterval"),
		},
	}
}

// GetStatusConfig returns the status monitor section.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Enabled:  viper.GetBool("status.enabled"),
		Path:     viper.GetString("status.path"),
		Interval: viper.GetDuration("status.interval"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
