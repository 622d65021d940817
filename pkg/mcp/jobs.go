package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanamal24/site-sync/pkg/models"
	"github.com/hanamal24/site-sync/pkg/orchestrate"
)

// JobStatus represents the current state of a sync job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsActive reports whether the job has not finished yet
func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusRunning
}

// Job represents a background sync job
type Job struct {
	ID           string                      `json:"id"`
	Datasets     []string                    `json:"datasets"` // Empty means all configured datasets
	Status       JobStatus                   `json:"status"`
	StartedAt    time.Time                   `json:"started_at"`
	CompletedAt  time.Time                   `json:"completed_at,omitempty"`
	Totals       models.DatasetStats         `json:"totals"`
	Results      []orchestrate.DatasetResult `json:"results,omitempty"`
	ErrorMessage string                      `json:"error_message,omitempty"`

	ctx    context.Context
	cancel context.CancelFunc
}

// JobManager tracks background sync jobs. Syncs share one image registry,
// so at most one job is active at a time.
type JobManager struct {
	jobs   map[string]*Job
	active string // ID of the pending or running job
	mu     sync.RWMutex
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*Job)}
}

// CreateJob registers a new job. If a job is already active it is returned
// instead and created is false.
func (m *JobManager) CreateJob(datasets []string) (job Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.jobs[m.active]; ok && existing.Status.IsActive() {
		return existing.snapshot(), false
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.NewString(),
		Datasets:  append([]string(nil), datasets...),
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[j.ID] = j
	m.active = j.ID
	return j.snapshot(), true
}

// GetJob retrieves a copy of a job by ID
func (m *JobManager) GetJob(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// ActiveJob returns the pending or running job, if any
func (m *JobManager) ActiveJob() (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[m.active]
	if !ok || !j.Status.IsActive() {
		return Job{}, false
	}
	return j.snapshot(), true
}

// MarkRunning moves a pending job to running
func (m *JobManager) MarkRunning(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok && j.Status == JobStatusPending {
		j.Status = JobStatusRunning
	}
}

// Finish records the outcome of a job. A job that was cancelled keeps its
// cancelled status but still receives whatever result was produced.
func (m *JobManager) Finish(jobID string, result *orchestrate.RunResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if result != nil {
		j.Totals = result.Totals
		j.Results = result.Datasets
	}
	if j.Status == JobStatusCancelled {
		return
	}

	j.CompletedAt = time.Now()
	switch {
	case err == nil:
		j.Status = JobStatusCompleted
	case j.ctx.Err() != nil:
		j.Status = JobStatusCancelled
	default:
		j.Status = JobStatusFailed
		j.ErrorMessage = err.Error()
	}
	j.cancel()
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || !j.Status.IsActive() {
		return false
	}
	j.cancel()
	j.Status = JobStatusCancelled
	j.CompletedAt = time.Now()
	return true
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.Status.IsActive() {
			j.cancel()
			j.Status = JobStatusCancelled
			j.CompletedAt = time.Now()
		}
	}
}

// ListJobs returns copies of all jobs, newest first
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartedAt.After(jobs[k].StartedAt) })
	return jobs
}

// GetContext returns the context a job's sync should run under
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if j, ok := m.jobs[jobID]; ok {
		return j.ctx
	}
	return context.Background()
}

// snapshot copies the exported fields; callers hold m.mu
func (j *Job) snapshot() Job {
	out := *j
	out.Datasets = append([]string(nil), j.Datasets...)
	out.Results = append([]orchestrate.DatasetResult(nil), j.Results...)
	out.ctx, out.cancel = nil, nil
	return out
}
