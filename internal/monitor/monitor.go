package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/battlesim/internal/eventlog"
	"github.com/OCAP2/battlesim/pkg/core"
)

// StateSource is polled for snapshots. *engine.Engine satisfies it.
type StateSource interface {
	GetState() core.BattleState
}

// PendingProvider is an optional dependency reporting buffered writes,
// such as a recorder.
type PendingProvider interface {
	Pending() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source   StateSource
	Pending  PendingProvider
	Logger   eventlog.Logger
	Path     string
	Interval time.Duration
	Now      func() time.Time
}

// Status is the document written to the status file.
type Status struct {
	Time               time.Time         `json:"time"`
	BattleID           string            `json:"battleId,omitempty"`
	Scenario           string            `json:"scenario,omitempty"`
	Status             core.EngineStatus `json:"status"`
	Phase              core.Phase        `json:"phase"`
	PhaseTimeRemaining string            `json:"phaseTimeRemaining"`
	Elapsed            string            `json:"elapsed"`
	Red                int64             `json:"red"`
	Blue               int64             `json:"blue"`
	Advantage          core.Side         `json:"advantage"`
	AdvantagePoints    int64             `json:"advantagePoints"`
	ActiveAttacks      int               `json:"activeAttacks"`
	Attacks            int               `json:"attacks"`
	Events             int               `json:"events"`
	Compromised        []core.Subsystem  `json:"compromised"`
	Defenses           map[string]string `json:"defenses"`
	PendingWrites      int               `json:"pendingWrites"`
	Winner             core.Winner       `json:"winner,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus builds the current status from a fresh snapshot.
func (s *Service) GetStatus() Status {
	st := s.deps.Source.GetState()

	status := Status{
		Time:               s.deps.Now(),
		BattleID:           st.BattleID,
		Scenario:           st.Scenario,
		Status:             st.Status,
		Phase:              st.Phase,
		PhaseTimeRemaining: st.PhaseTimeRemaining.String(),
		Elapsed:            st.Elapsed.String(),
		Red:                st.Score.Red.Points,
		Blue:               st.Score.Blue.Points,
		Advantage:          st.Score.Advantage,
		AdvantagePoints:    st.Score.AdvantagePoints,
		ActiveAttacks:      len(st.ActiveAttacks),
		Attacks:            len(st.AttackHistory) + len(st.ActiveAttacks),
		Events:             len(st.Events),
		Compromised:        st.Compromised,
		Defenses:           make(map[string]string, len(st.Defenses)),
		Winner:             st.Winner,
	}
	if status.Compromised == nil {
		status.Compromised = []core.Subsystem{}
	}
	for _, d := range st.Defenses {
		status.Defenses[d.ID] = string(d.Status)
	}
	if s.deps.Pending != nil {
		status.PendingWrites = s.deps.Pending.Pending()
	}
	return status
}

// WriteStatus writes the current status to the status file, replacing it
// atomically.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding status: %w", err)
	}

	dir := filepath.Dir(s.deps.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating status directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".status-*.json")
	if err != nil {
		return fmt.Errorf("error creating status file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("error writing status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error writing status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.deps.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("error replacing status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Source == nil || s.deps.Path == "" {
		s.mu.Unlock()
		return fmt.Errorf("status monitor needs a source and a path")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		s.deps.Logger.Debug("Starting status monitor goroutine", "path", s.deps.Path, "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					s.deps.Logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and writes a last status.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()

	<-done
	if err := s.WriteStatus(); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
	}
}
