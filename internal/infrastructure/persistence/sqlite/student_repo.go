package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
)

// StudentRepository implements student.Repository.
type StudentRepository struct {
	db *sql.DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get returns a student by number.
func (r *StudentRepository) Get(ctx context.Context, no string) (*student.Student, error) {
	var s student.Student
	var createdAt int64
	err := r.db.QueryRowContext(ctx,
		`SELECT student_no, name, email, created_at FROM students WHERE student_no = ?`, no,
	).Scan(&s.No, &s.Name, &s.Email, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, student.NotFound(no)
		}
		return nil, shared.StoreError("student", "Get", fmt.Errorf("get student: %w", err))
	}
	s.CreatedAt = fromMillis(createdAt)
	return &s, nil
}

// Exists reports whether the student is known.
func (r *StudentRepository) Exists(ctx context.Context, no string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM students WHERE student_no = ?`, no).Scan(&n)
	if err != nil {
		return false, shared.StoreError("student", "Exists", fmt.Errorf("check student: %w", err))
	}
	return n > 0, nil
}

// Save inserts the student unless it already exists.
func (r *StudentRepository) Save(ctx context.Context, s *student.Student) error {
	if err := saveStudent(ctx, r.db, s); err != nil {
		return shared.StoreError("student", "Save", err)
	}
	return nil
}

func saveStudent(ctx context.Context, ex execer, s *student.Student) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO students (student_no, name, email, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (student_no) DO NOTHING`,
		s.No, s.Name, s.Email, toMillis(s.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save student: %w", err)
	}
	return nil
}
