package stores

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-memory registry matching the service's non-durable
// contract: auto-increment workflow ids, uuid job tokens, no eviction, no
// persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	workflows map[int64]*WorkflowRecord
	jobs      map[string]*Job
}

// NewMemoryStore creates an empty registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[int64]*WorkflowRecord),
		jobs:      make(map[string]*Job),
	}
}

func (s *MemoryStore) CreateWorkflow(_ context.Context, record *WorkflowRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record.ID = s.nextID
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.workflows[record.ID] = record.Clone()
	return record.ID, nil
}

func (s *MemoryStore) GetWorkflow(_ context.Context, id int64) (*WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryStore) UpdateWorkflow(_ context.Context, record *WorkflowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workflows[record.ID]
	if !ok {
		return ErrNotFound
	}
	record.CreatedAt = stored.CreatedAt
	record.UpdatedAt = time.Now()
	s.workflows[record.ID] = record.Clone()
	return nil
}

func (s *MemoryStore) CreateJob(_ context.Context, job *Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.Token = uuid.NewString()
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.Token] = job.Clone()
	return job.Token, nil
}

func (s *MemoryStore) GetJob(_ context.Context, token string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[token]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) SucceedJob(_ context.Context, token string, statusCode int, outputs map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[token]
	if !ok {
		return ErrNotFound
	}
	job.Status = StatusSuccess
	job.StatusCode = statusCode
	job.Outputs = outputs
	job.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) FailJob(_ context.Context, token string, statusCode int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[token]
	if !ok {
		return ErrNotFound
	}
	job.Status = StatusFailed
	job.StatusCode = statusCode
	job.Message = message
	job.UpdatedAt = time.Now()
	return nil
}
