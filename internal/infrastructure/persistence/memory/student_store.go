package memory

import (
	"context"
	"sync"

	"github.com/campus-finance/tuition-hub/internal/domain/student"
)

// StudentStore is an in-memory student.Repository.
type StudentStore struct {
	mu       sync.RWMutex
	students map[string]*student.Student
}

// NewStudentStore creates an empty StudentStore.
func NewStudentStore() *StudentStore {
	return &StudentStore{students: make(map[string]*student.Student)}
}

// Get returns the student by number.
func (s *StudentStore) Get(ctx context.Context, no string) (*student.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.students[no]
	if !ok {
		return nil, student.NotFound(no)
	}
	cp := *st
	return &cp, nil
}

// Exists reports whether the student is known.
func (s *StudentStore) Exists(ctx context.Context, no string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.students[no]
	return ok, nil
}

// Save inserts the student unless one with the same number exists.
func (s *StudentStore) Save(ctx context.Context, st *student.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveLocked(st)
	return nil
}

func (s *StudentStore) saveLocked(st *student.Student) {
	if _, ok := s.students[st.No]; ok {
		return
	}
	cp := *st
	s.students[st.No] = &cp
}

func (s *StudentStore) name(no string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.students[no]; ok {
		return st.Name
	}
	return ""
}
