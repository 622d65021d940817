package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
	"github.com/hanamal24/site-sync/pkg/utils"
)

const (
	stateFileName  = "watch_state.json"
	maxHistoryRuns = 20
)

// DatasetState contains the last sync information for a dataset
type DatasetState struct {
	LastRunTime    time.Time           `json:"last_run_time"`
	LastRunSuccess bool                `json:"last_run_success"`
	Records        int                 `json:"records"`
	Images         models.DatasetStats `json:"images"`
	ErrorMessage   string              `json:"error_message,omitempty"`
}

// RunSummary is the outcome of one sync run
type RunSummary struct {
	StartedAt    time.Time           `json:"started_at"`
	Duration     time.Duration       `json:"duration"`
	Success      bool                `json:"success"`
	Datasets     int                 `json:"datasets"`
	Totals       models.DatasetStats `json:"totals"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// WatchState contains the persistent state for the watch scheduler
type WatchState struct {
	Datasets  map[string]DatasetState `json:"datasets"`
	LastRun   *RunSummary             `json:"last_run,omitempty"`
	History   []RunSummary            `json:"history,omitempty"` // Newest last
	UpdatedAt time.Time               `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	now       func() time.Time
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state:     WatchState{Datasets: make(map[string]DatasetState)},
		now:       time.Now,
	}
}

// Path returns the state file location
func (m *StateManager) Path() string {
	return m.statePath
}

// Load loads the state from disk
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Datasets: make(map[string]DatasetState)}
			return nil
		}
		return fmt.Errorf("%w: read state file: %w", utils.ErrFilesystem, err)
	}

	var st WatchState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: state file %s: %w", utils.ErrParsing, m.statePath, err)
	}
	if st.Datasets == nil {
		st.Datasets = make(map[string]DatasetState)
	}
	m.state = st
	return nil
}

// Save saves the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	m.state.UpdatedAt = m.now()
	data, err := json.MarshalIndent(m.state, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: marshal state: %w", utils.ErrParsing, err)
	}

	if err := utils.WriteFileAtomic(m.statePath, data, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// RecordRun stores the outcome of a sync run started at start. result may be
// nil when the run failed before producing one.
func (m *StateManager) RecordRun(start time.Time, result *orchestrate.RunResult, runErr error) RunSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := RunSummary{
		StartedAt: start,
		Duration:  m.now().Sub(start),
		Success:   runErr == nil,
	}
	if runErr != nil {
		summary.ErrorMessage = runErr.Error()
	}
	if result != nil {
		summary.Datasets = len(result.Datasets)
		summary.Totals = result.Totals
		summary.Duration = result.Duration
		for _, ds := range result.Datasets {
			m.state.Datasets[ds.Dataset] = DatasetState{
				LastRunTime:    start,
				LastRunSuccess: runErr == nil && ds.FetchError == "",
				Records:        ds.Records,
				Images:         ds.Stats,
				ErrorMessage:   ds.FetchError,
			}
		}
	}

	m.state.LastRun = &summary
	m.state.History = append(m.state.History, summary)
	if len(m.state.History) > maxHistoryRuns {
		m.state.History = m.state.History[len(m.state.History)-maxHistoryRuns:]
	}
	return summary
}

// GetDatasetState returns the state for a specific dataset
func (m *StateManager) GetDatasetState(dataset string) (DatasetState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Datasets[dataset]
	return state, ok
}

// LastRun returns the most recent run, if any
func (m *StateManager) LastRun() (RunSummary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.LastRun == nil {
		return RunSummary{}, false
	}
	return *m.state.LastRun, true
}

// History returns a copy of the recorded runs, oldest first
func (m *StateManager) History() []RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RunSummary(nil), m.state.History...)
}

// ShouldRun reports whether a sync is due. A failed last run is due again
// after the same interval as a successful one.
func (m *StateManager) ShouldRun(interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.LastRun == nil {
		return true
	}
	return m.now().Sub(m.state.LastRun.StartedAt) >= interval
}

// GetNextRunTime returns when the next sync is due
func (m *StateManager) GetNextRunTime(interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.LastRun == nil {
		return m.now()
	}
	return m.state.LastRun.StartedAt.Add(interval)
}

// GetAllDatasetStates returns all dataset states
func (m *StateManager) GetAllDatasetStates() map[string]DatasetState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]DatasetState, len(m.state.Datasets))
	for k, v := range m.state.Datasets {
		result[k] = v
	}
	return result
}
