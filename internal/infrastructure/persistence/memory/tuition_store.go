package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

type entryRecord struct {
	entry *tuition.Entry
	seq   int64
}

// TuitionStore is an in-memory tuition.Repository.
type TuitionStore struct {
	students *StudentStore
	keys     keyLocks

	mu       sync.RWMutex
	entries  map[tuition.Key]*entryRecord
	payments map[tuition.Key][]*tuition.Payment
	seq      int64
}

// NewTuitionStore creates an empty TuitionStore. Students synthesised by
// mutations are written to students.
func NewTuitionStore(students *StudentStore) *TuitionStore {
	return &TuitionStore{
		students: students,
		entries:  make(map[tuition.Key]*entryRecord),
		payments: make(map[tuition.Key][]*tuition.Payment),
	}
}

// Mutate runs fn under the key's mutex and applies the returned change.
func (s *TuitionStore) Mutate(ctx context.Context, key tuition.Key, fn tuition.MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.keys.lock(key.String())
	defer unlock()

	var current *tuition.Entry
	s.mu.RLock()
	if rec, ok := s.entries[key]; ok {
		current = rec.entry.Clone()
	}
	s.mu.RUnlock()

	change, err := fn(current)
	if err != nil || change == nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if change.Student != nil {
		s.students.mu.Lock()
		s.students.saveLocked(change.Student)
		s.students.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.entries[key]; ok {
		rec.entry = change.Entry.Clone()
	} else {
		s.seq++
		s.entries[key] = &entryRecord{entry: change.Entry.Clone(), seq: s.seq}
	}
	if change.Payment != nil {
		p := *change.Payment
		s.payments[key] = append(s.payments[key], &p)
	}
	return nil
}

// Get returns the entry for key.
func (s *TuitionStore) Get(ctx context.Context, key tuition.Key) (*tuition.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.entries[key]
	if !ok {
		return nil, tuition.ErrTuitionNotFound
	}
	return rec.entry.Clone(), nil
}

// ListByStudent returns the student's entries, newest first.
func (s *TuitionStore) ListByStudent(ctx context.Context, studentNo string) ([]*tuition.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var recs []*entryRecord
	for key, rec := range s.entries {
		if key.StudentNo == studentNo {
			recs = append(recs, &entryRecord{entry: rec.entry.Clone(), seq: rec.seq})
		}
	}
	s.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.After(b.entry.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]*tuition.Entry, len(recs))
	for i, rec := range recs {
		out[i] = rec.entry
	}
	return out, nil
}

// ListOutstanding returns UNPAID and PARTIAL entries of term ordered by student number.
func (s *TuitionStore) ListOutstanding(ctx context.Context, term string, page tuition.Page) (*tuition.OutstandingPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var all []*tuition.Entry
	for key, rec := range s.entries {
		if key.Term == term && rec.entry.Status() != tuition.StatusPaid {
			all = append(all, rec.entry.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].StudentNo < all[j].StudentNo })

	result := &tuition.OutstandingPage{Page: page, TotalCount: len(all)}
	start := page.Offset()
	if start < 0 || start >= len(all) {
		return result, nil
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	for _, e := range all[start:end] {
		result.Items = append(result.Items, tuition.OutstandingItem{
			StudentNo: e.StudentNo,
			Name:      s.students.name(e.StudentNo),
			Term:      e.Term,
			Total:     e.Total,
			Balance:   e.Balance(),
			Status:    e.Status(),
		})
	}
	return result, nil
}

// ListPayments returns payments applied to key in order.
func (s *TuitionStore) ListPayments(ctx context.Context, key tuition.Key) ([]*tuition.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.payments[key]
	out := make([]*tuition.Payment, len(src))
	for i, p := range src {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}
