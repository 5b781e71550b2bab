package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Job struct {
	ID             string     `json:"jobId"`
	Status         Status     `json:"status"`
	ExternalTaskID string     `json:"external_task_id,omitempty"`
	ResultText     string     `json:"result_text,omitempty"`
	ImageURL       string     `json:"image_url,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func New() *Job {
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

func (s *Store) Add(j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

// Get returns a snapshot of the record so status readers never observe
// a half-applied update from the job's background goroutine.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	snapshot := *j
	return &snapshot, nil
}

func (s *Store) SetStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = status
		return nil
	}
	return fmt.Errorf("job not found: %s", id)
}

func (s *Store) SetExternalTask(id, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.ExternalTaskID = taskID
		return nil
	}
	return fmt.Errorf("job not found: %s", id)
}

func (s *Store) Complete(id, resultText, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = StatusCompleted
		j.ResultText = resultText
		j.ImageURL = imageURL
		now := time.Now().UTC()
		j.CompletedAt = &now
		return nil
	}
	return fmt.Errorf("job not found: %s", id)
}

func (s *Store) Fail(id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		j.Status = StatusFailed
		j.Error = errMsg
		now := time.Now().UTC()
		j.CompletedAt = &now
		return nil
	}
	return fmt.Errorf("job not found: %s", id)
}

func (s *Store) Stats() (pending, processing, completed, failed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		switch j.Status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return
}
