package scenario

import (
	"fmt"
	"os"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
	"gopkg.in/yaml.v3"
)

// Scenario files keep every value as written so a single pass can report
// every bad name and duration together with the structural problems.
type fileScenario struct {
	Name        string           `yaml:"name"`
	Seed        uint64           `yaml:"seed"`
	Duration    string           `yaml:"duration"`
	Multipliers core.Multipliers `yaml:"multipliers"`
	AutoAttack  fileAutoAttack   `yaml:"autoAttack"`
	Scoring     fileScoring      `yaml:"scoring"`
	Phases      []filePhase      `yaml:"phases"`
}

type fileAutoAttack struct {
	Enabled  bool     `yaml:"enabled"`
	Interval string   `yaml:"interval"`
	Kinds    []string `yaml:"kinds"`
}

type fileScoring struct {
	ZeroBreachBonus      int64  `yaml:"zeroBreachBonus"`
	FastResponseBonus    int64  `yaml:"fastResponseBonus"`
	FastResponseWindow   string `yaml:"fastResponseWindow"`
	BaselineSuccessBonus int64  `yaml:"baselineSuccessBonus"`
}

type filePhase struct {
	Name             string   `yaml:"name"`
	Duration         string   `yaml:"duration"`
	EnabledAttacks   []string `yaml:"enabledAttacks"`
	EnabledDefenses  []string `yaml:"enabledDefenses"`
	ReactiveDefenses []string `yaml:"reactiveDefenses"`
	Intensity        string   `yaml:"intensity"`
}

// LoadFile reads, validates and normalises a YAML scenario file.
func LoadFile(path string) (core.BattleScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.BattleScenario{}, fmt.Errorf("reading scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario. Syntax errors are returned as-is; every
// semantic problem is collected into one *ConfigError.
func Parse(data []byte) (core.BattleScenario, error) {
	var fs fileScenario
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return core.BattleScenario{}, fmt.Errorf("decoding scenario: %w", err)
	}

	var ps problems
	sc := core.BattleScenario{
		Name:        fs.Name,
		Seed:        fs.Seed,
		Duration:    parseDuration(&ps, "duration", fs.Duration),
		Multipliers: fs.Multipliers,
		AutoAttack: core.AutoAttackPolicy{
			Enabled:  fs.AutoAttack.Enabled,
			Interval: parseDuration(&ps, "autoAttack.interval", fs.AutoAttack.Interval),
			Kinds:    parseAttacks(&ps, "autoAttack.kinds", fs.AutoAttack.Kinds),
		},
		Scoring: core.ScoringRules{
			ZeroBreachBonus:      fs.Scoring.ZeroBreachBonus,
			FastResponseBonus:    fs.Scoring.FastResponseBonus,
			FastResponseWindow:   parseDuration(&ps, "scoring.fastResponseWindow", fs.Scoring.FastResponseWindow),
			BaselineSuccessBonus: fs.Scoring.BaselineSuccessBonus,
		},
	}

	for i, fp := range fs.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		name, err := core.ParsePhase(fp.Name)
		if err != nil {
			ps.add(field+".name", "%v", err)
			// keep position so ordering is not reported a second time
			if i < len(core.PhaseOrder) {
				name = core.PhaseOrder[i]
			}
		}
		sc.Phases = append(sc.Phases, core.PhaseConfig{
			Name:             name,
			Duration:         parseDuration(&ps, field+".duration", fp.Duration),
			EnabledAttacks:   parseAttacks(&ps, field+".enabledAttacks", fp.EnabledAttacks),
			EnabledDefenses:  parseDefenses(&ps, field+".enabledDefenses", fp.EnabledDefenses),
			ReactiveDefenses: parseDefenses(&ps, field+".reactiveDefenses", fp.ReactiveDefenses),
			Intensity:        core.Intensity(fp.Intensity),
		})
	}

	validateInto(&ps, sc)
	if err := ps.err(sc.Name); err != nil {
		return core.BattleScenario{}, err
	}
	return Normalize(sc), nil
}

func parseDuration(ps *problems, field, s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		ps.add(field, "invalid duration %q", s)
		return 0
	}
	return d
}

func parseAttacks(ps *problems, field string, names []string) []core.AttackKind {
	out := make([]core.AttackKind, 0, len(names))
	for i, n := range names {
		k, err := core.ParseAttackKind(n)
		if err != nil {
			ps.add(fmt.Sprintf("%s[%d]", field, i), "%v", err)
			continue
		}
		out = append(out, k)
	}
	return out
}

func parseDefenses(ps *problems, field string, names []string) []core.DefenseKind {
	out := make([]core.DefenseKind, 0, len(names))
	for i, n := range names {
		k, err := core.ParseDefenseKind(n)
		if err != nil {
			ps.add(fmt.Sprintf("%s[%d]", field, i), "%v", err)
			continue
		}
		out = append(out, k)
	}
	return out
}
