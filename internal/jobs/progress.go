// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mlvoss/tastevec/internal/logging"
)

// ErrJobNotFound is returned when a job ID is unknown.
var ErrJobNotFound = errors.New("job not found")

// JobType identifies what a background job does.
type JobType string

const (
	JobTypeBatch   JobType = "batch"
	JobTypeRebuild JobType = "rebuild"
)

// JobStatus is the lifecycle state of a background job. Terminal states are
// final.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Progress is one job's progress snapshot. Snapshots are value copies; the
// tracker owns the mutable state.
type Progress struct {
	JobID     string    `json:"job_id"`
	Type      JobType   `json:"type"`
	Status    JobStatus `json:"status"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Label     string    `json:"label,omitempty"`
	Success   int       `json:"success"`
	Failed    int       `json:"failed"`
	Cleared   int       `json:"cleared,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (p Progress) Terminal() bool {
	return p.Status != JobStatusRunning
}

// Tracker is the progress store: an in-memory map for live queries and
// subscriptions, backed by Badger so the last outcome of each job survives a
// restart. Any caller can poll or stream a job's progress by ID.
type Tracker struct {
	mu        sync.RWMutex
	jobs      map[string]*Progress
	subs      map[string][]chan Progress
	cancelled map[string]bool

	store *badger.DB
	log   zerolog.Logger
}

// NewTracker opens the progress store. An empty dir keeps Badger in memory,
// which tests and ephemeral deployments use.
func NewTracker(dir string) (*Tracker, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	store, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open progress store: %w", err)
	}

	return &Tracker{
		jobs:      map[string]*Progress{},
		subs:      map[string][]chan Progress{},
		cancelled: map[string]bool{},
		store:     store,
		log:       logging.Logger().With().Str("component", "jobs").Logger(),
	}, nil
}

// Close flushes and closes the backing store.
func (t *Tracker) Close() error {
	return t.store.Close()
}

// Create registers a new running job and returns its snapshot.
func (t *Tracker) Create(jobType JobType) Progress {
	now := time.Now().UTC()
	p := &Progress{
		JobID:     uuid.NewString(),
		Type:      jobType,
		Status:    JobStatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.jobs[p.JobID] = p
	t.mu.Unlock()

	t.persist(*p)
	return *p
}

// Update records per-unit progress and notifies subscribers.
func (t *Tracker) Update(jobID string, processed, total int, label string) error {
	return t.mutate(jobID, func(p *Progress) {
		p.Processed = processed
		p.Total = total
		p.Label = label
	})
}

// Complete finalizes a job with its aggregate counts. A job whose
// cancellation flag was raised finalizes as cancelled instead of completed.
func (t *Tracker) Complete(jobID string, success, failed, cleared int) error {
	t.mu.RLock()
	wasCancelled := t.cancelled[jobID]
	t.mu.RUnlock()

	status := JobStatusCompleted
	if wasCancelled {
		status = JobStatusCancelled
	}
	return t.mutate(jobID, func(p *Progress) {
		p.Status = status
		p.Success = success
		p.Failed = failed
		p.Cleared = cleared
		p.Label = ""
	})
}

// Fail finalizes a job with an error message.
func (t *Tracker) Fail(jobID string, errMsg string) error {
	return t.mutate(jobID, func(p *Progress) {
		p.Status = JobStatusFailed
		p.Error = errMsg
	})
}

// Cancel raises the cancellation flag. The orchestrator checks the flag
// between units of work; the job finalizes as cancelled once it stops.
func (t *Tracker) Cancel(jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	if p.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, p.Status)
	}
	t.cancelled[jobID] = true
	return nil
}

// IsCancelled reports whether cancellation was requested for a job.
func (t *Tracker) IsCancelled(jobID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled[jobID]
}

// Get returns a job's current snapshot. Jobs from previous processes are
// served from the backing store.
func (t *Tracker) Get(jobID string) (Progress, error) {
	t.mu.RLock()
	p, ok := t.jobs[jobID]
	t.mu.RUnlock()
	if ok {
		return *p, nil
	}

	var stored Progress
	err := t.store.View(func(txn *badger.Txn) error {
		item, err := txn.Get(progressKey(jobID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Progress{}, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return Progress{}, fmt.Errorf("read job %s: %w", jobID, err)
	}
	return stored, nil
}

// Subscribe returns a channel of progress snapshots for a job and an
// unsubscribe function. The channel closes when the job reaches a terminal
// state. Slow consumers miss intermediate snapshots rather than blocking the
// orchestrator.
func (t *Tracker) Subscribe(jobID string) (<-chan Progress, func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.jobs[jobID]
	if !ok {
		return nil, nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	ch := make(chan Progress, 8)
	ch <- *p
	if p.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	t.subs[jobID] = append(t.subs[jobID], ch)
	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		remaining := t.subs[jobID][:0]
		for _, sub := range t.subs[jobID] {
			if sub != ch {
				remaining = append(remaining, sub)
			}
		}
		t.subs[jobID] = remaining
	}
	return ch, unsubscribe, nil
}

// mutate applies fn to a job under the lock, persists the snapshot, and
// notifies subscribers. Terminal snapshots close the subscriber channels.
func (t *Tracker) mutate(jobID string, fn func(*Progress)) error {
	t.mu.Lock()
	p, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	if p.Terminal() {
		t.mu.Unlock()
		return fmt.Errorf("job %s already %s", jobID, p.Status)
	}

	fn(p)
	p.UpdatedAt = time.Now().UTC()
	snapshot := *p

	// Copy under the lock: the send loop below runs unlocked, and an
	// unsubscribe may compact the stored slice concurrently.
	subs := append([]chan Progress(nil), t.subs[jobID]...)
	if snapshot.Terminal() {
		delete(t.subs, jobID)
		delete(t.cancelled, jobID)
	}
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
		if snapshot.Terminal() {
			close(ch)
		}
	}

	t.persist(snapshot)
	return nil
}

// persist writes a snapshot to the backing store. Persistence failures are
// logged, not propagated: live progress reporting must not depend on disk.
func (t *Tracker) persist(p Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		t.log.Error().Err(err).Str("job_id", p.JobID).Msg("encode progress snapshot")
		return
	}

	err = t.store.Update(func(txn *badger.Txn) error {
		return txn.Set(progressKey(p.JobID), data)
	})
	if err != nil {
		t.log.Warn().Err(err).Str("job_id", p.JobID).Msg("persist progress snapshot")
	}
}

func progressKey(jobID string) []byte {
	return []byte("job:" + jobID)
}
