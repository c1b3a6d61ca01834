package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/OCAP2/battlesim/internal/config"
	"github.com/OCAP2/battlesim/internal/logging"
	"github.com/OCAP2/battlesim/internal/recorder"
	"github.com/OCAP2/battlesim/internal/storage"
	sqlitestorage "github.com/OCAP2/battlesim/internal/storage/sqlite"
	"github.com/OCAP2/battlesim/pkg/core"
	"github.com/spf13/viper"
)

// initStorage creates and initializes the configured backend and a
// recorder for it. Storage type "none" returns nils.
func (a *app) initStorage() (*recorder.Recorder, storage.Backend, error) {
	storageCfg := config.GetStorageConfig()
	if storageCfg.Type == "none" || storageCfg.Type == "" {
		a.logger.Info("Recording disabled")
		return nil, nil, nil
	}

	// the storage layer logs with zerolog into the same file
	zl := logging.NewZerolog(a.logFile, viper.GetString("logLevel")).
		With().Str("storage", storageCfg.Type).Logger()

	backend, err := storage.NewBackend(storageCfg, zl)
	if err != nil {
		a.logger.Error("Failed to create storage backend", "error", err)
		return nil, nil, err
	}
	if err := backend.Init(); err != nil {
		a.logger.Error("Failed to initialize storage backend", "error", err)
		return nil, nil, err
	}
	a.logger.Info("Storage backend initialized", "type", storageCfg.Type)

	rec := recorder.New(backend, logging.NewZerologAdapter(zl), storageCfg.Buffer)
	return rec, backend, nil
}

// reportStorage prints where the battle went and, for sqlite, the stored
// event counts.
func (a *app) reportStorage(backend storage.Backend, battleID string) {
	if backend == nil {
		return
	}
	if ex, ok := backend.(storage.Exporter); ok && ex.GetExportedFilePath() != "" {
		fmt.Fprintf(a.out, "export\t%s\n", ex.GetExportedFilePath())
	}

	sq, ok := backend.(*sqlitestorage.Backend)
	if !ok {
		return
	}
	counts, err := sq.KindCounts(battleID)
	if err != nil {
		a.logger.Error("Failed to count stored events", "error", err)
		return
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "stored events")
	for _, k := range kinds {
		fmt.Fprintf(w, "  %s\t%d\n", k, counts[core.EventKind(k)])
	}
	w.Flush()
}
