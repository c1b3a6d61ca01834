// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OCAP2/battlesim/pkg/core"
)

// FormatVersion is written into every export.
const FormatVersion = 1

// Export is the root JSON structure of a replay file.
type Export struct {
	FormatVersion int                `json:"formatVersion"`
	BattleID      string             `json:"battleId"`
	Scenario      string             `json:"scenario"`
	StartedAt     time.Time          `json:"startedAt"`
	Elapsed       time.Duration      `json:"elapsed"`
	Status        core.EngineStatus  `json:"status"`
	Winner        core.Winner        `json:"winner,omitempty"`
	Score         core.BattleScore   `json:"score"`
	Compromised   []core.Subsystem   `json:"compromised"`
	Attacks       int                `json:"attacks"`
	Events        []core.BattleEvent `json:"events"`
}

// exportJSON writes the battle to a JSON file, gzipped when configured.
func (b *Backend) exportJSON(final core.BattleState) error {
	export := b.buildExport(final)

	name := strings.ReplaceAll(export.Scenario, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" {
		name = "battle"
	}
	timestamp := export.StartedAt.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if b.cfg.OutputDir != "" {
		if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport(final core.BattleState) Export {
	events := b.events
	if events == nil {
		events = []core.BattleEvent{}
	}
	compromised := final.Compromised
	if compromised == nil {
		compromised = []core.Subsystem{}
	}
	return Export{
		FormatVersion: FormatVersion,
		BattleID:      b.battle.BattleID,
		Scenario:      b.battle.Scenario,
		StartedAt:     b.battle.StartedAt,
		Elapsed:       final.Elapsed,
		Status:        final.Status,
		Winner:        final.Winner,
		Score:         final.Score,
		Compromised:   compromised,
		Attacks:       len(final.AttackHistory),
		Events:        events,
	}
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// ReadExport reads a replay file written by the backend. Files ending in
// .gz are decompressed.
func ReadExport(path string) (Export, error) {
	var export Export

	f, err := os.Open(path)
	if err != nil {
		return export, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return export, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return export, fmt.Errorf("failed to decode export: %w", err)
	}
	if export.FormatVersion != FormatVersion {
		return export, fmt.Errorf("unsupported export format version %d", export.FormatVersion)
	}
	return export, nil
}
