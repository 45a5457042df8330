package core

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCredentialStore keeps records in process memory. It is meant for
// development and tests; records do not survive a restart.
type MemoryCredentialStore struct {
	mu          sync.Mutex
	records     map[string]CredentialRecord
	schemaCalls int
	operations  int
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{records: make(map[string]CredentialRecord)}
}

func (s *MemoryCredentialStore) EnsureSchema(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations++
	s.schemaCalls++
	return nil
}

func (s *MemoryCredentialStore) Get(_ context.Context, username string) (*CredentialRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations++
	rec, ok := s.records[username]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (s *MemoryCredentialStore) Put(_ context.Context, username string, record CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations++
	if _, ok := s.records[username]; ok {
		return ErrAlreadyExists
	}
	record.Username = username
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.records[username] = record
	return nil
}

func (s *MemoryCredentialStore) ScanAll(context.Context) ([]CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations++
	out := make([]CredentialRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// SchemaCalls returns how many times EnsureSchema reached the store.
func (s *MemoryCredentialStore) SchemaCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaCalls
}

// Operations returns the total number of store calls.
func (s *MemoryCredentialStore) Operations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operations
}
