package jobs

import (
	"errors"
	"fmt"
	"sync"

	"github.com/galeed/Conversor/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
// The engine workspace holds a single input/output slot, so at most
// one conversion may run at a time.
var ErrJobAlreadyRunning = errors.New("conversion already running")

// Manager tracks the single allowed active conversion job and its
// transitions. There is no cancellation: once a job starts it runs to
// done or failed.
type Manager struct {
	mu      sync.RWMutex
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start creates a new job and moves it to staging state.
func (m *Manager) Start(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if isRunning(m.current.Status) {
		return ErrJobAlreadyRunning
	}

	m.current = domain.Job{
		ID:     jobID,
		Status: domain.JobStatusStaging,
	}
	return nil
}

// Transition validates and applies state transitions for the current job.
func (m *Manager) Transition(status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID == "" && status != domain.JobStatusIdle {
		return fmt.Errorf("cannot transition without an active job")
	}
	if status == m.current.Status {
		return nil
	}
	if !isValidTransition(m.current.Status, status) {
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	m.current.Status = status
	return nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns the manager to idle.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether the current state is an active stage.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// isRunning checks if a status represents active conversion work.
func isRunning(status domain.JobStatus) bool {
	switch status {
	case domain.JobStatusStaging, domain.JobStatusConverting, domain.JobStatusExporting:
		return true
	default:
		return false
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusStaging
	case domain.JobStatusStaging:
		return to == domain.JobStatusConverting || to == domain.JobStatusFailed
	case domain.JobStatusConverting:
		return to == domain.JobStatusExporting || to == domain.JobStatusFailed
	case domain.JobStatusExporting:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed
	case domain.JobStatusDone, domain.JobStatusFailed:
		return to == domain.JobStatusStaging || to == domain.JobStatusIdle
	default:
		return false
	}
}
