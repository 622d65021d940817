// Package watch re-runs the sync on an interval and remembers what each run did.
package watch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hanamal24/site-sync/pkg/orchestrate"
)

// Runner performs one sync. *orchestrate.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, names []string) (*orchestrate.RunResult, error)
}

// AfterRunFunc is called after every successful sync, e.g. to rebuild the site
type AfterRunFunc func(ctx context.Context, result *orchestrate.RunResult) error

// Scheduler manages periodic syncing of datasets
type Scheduler struct {
	runner       Runner
	datasets     []string
	interval     time.Duration
	afterRun     AfterRunFunc
	log          *logrus.Entry
	stateManager *StateManager

	tickInterval time.Duration
}

// NewScheduler creates a new watch scheduler. datasets may be empty to sync
// every configured dataset.
func NewScheduler(runner Runner, datasets []string, interval time.Duration, stateDir string, log *logrus.Entry) *Scheduler {
	s := &Scheduler{
		runner:       runner,
		datasets:     datasets,
		interval:     interval,
		log:          log.WithField("component", "watch"),
		stateManager: NewStateManager(stateDir),
	}
	s.tickInterval = s.calculateTickInterval()
	return s
}

// OnAfterRun sets the hook called after each successful sync
func (s *Scheduler) OnAfterRun(fn AfterRunFunc) {
	s.afterRun = fn
}

// State returns the scheduler's state manager
func (s *Scheduler) State() *StateManager {
	return s.stateManager
}

// Run starts the watch loop and blocks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode with interval %s (state: %s)", FormatInterval(s.interval), s.stateManager.Path())
	s.logSchedule()

	s.runIfDue(ctx)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			return nil
		case <-ticker.C:
			s.runIfDue(ctx)
		}
	}
}

// runIfDue runs a sync when the interval has elapsed since the last one
func (s *Scheduler) runIfDue(ctx context.Context) {
	if !s.stateManager.ShouldRun(s.interval) {
		s.logNextRun()
		return
	}
	s.RunOnce(ctx)
	s.logNextRun()
}

// RunOnce performs one sync, records it and saves the state
func (s *Scheduler) RunOnce(ctx context.Context) RunSummary {
	start := time.Now()
	result, err := s.runner.Run(ctx, s.datasets)
	if err == nil && s.afterRun != nil {
		if hookErr := s.afterRun(ctx, result); hookErr != nil {
			err = fmt.Errorf("after sync: %w", hookErr)
		}
	}
	if err != nil {
		s.log.Errorf("Sync run failed: %v", err)
	}

	summary := s.stateManager.RecordRun(start, result, err)
	if saveErr := s.stateManager.Save(); saveErr != nil {
		s.log.Errorf("Failed to save watch state: %v", saveErr)
	}
	return summary
}

// calculateTickInterval returns how often to check whether a run is due
func (s *Scheduler) calculateTickInterval() time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the last known state of every dataset
func (s *Scheduler) logSchedule() {
	last, ok := s.stateManager.LastRun()
	if !ok {
		s.log.Info("Never synced, will run immediately")
		return
	}
	status := "success"
	if !last.Success {
		status = "failed"
	}
	s.log.Infof("Last sync %s (%s): %d downloaded, %d reused, %d failed",
		last.StartedAt.Format(time.RFC3339), status,
		last.Totals.Downloaded, last.Totals.Reused, last.Totals.Failed)

	states := s.stateManager.GetAllDatasetStates()
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := states[name]
		s.log.Infof("  %s: %d records, %d images", name, st.Records, st.Images.Total())
	}
}

// logNextRun logs when the next sync will occur
func (s *Scheduler) logNextRun() {
	next := s.stateManager.GetNextRunTime(s.interval)
	until := time.Until(next)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next sync in %v (at %s)", until.Round(time.Second), next.Format("15:04:05"))
}

// Status is a snapshot of the scheduler for display
type Status struct {
	Interval    time.Duration
	LastRun     *RunSummary
	NextRunTime time.Time
	Datasets    map[string]DatasetState
}

// GetStatus returns the current scheduler status
func (s *Scheduler) GetStatus() Status {
	st := Status{
		Interval:    s.interval,
		NextRunTime: s.stateManager.GetNextRunTime(s.interval),
		Datasets:    s.stateManager.GetAllDatasetStates(),
	}
	if last, ok := s.stateManager.LastRun(); ok {
		st.LastRun = &last
	}
	return st
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("interval must be positive: %s", s)
		}
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 && days > 0 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("invalid interval format: %s", s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("invalid interval format: %s (examples: 30m, 1h, 24h, 7d)", s)
}
