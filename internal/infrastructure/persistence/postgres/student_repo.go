package postgres

import (
	"context"
	"fmt"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

const insertStudentSQL = `
	INSERT INTO students (student_no, name, email, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (student_no) DO NOTHING
`

// Get returns a student by number.
func (r *StudentRepository) Get(ctx context.Context, no string) (*student.Student, error) {
	query := `
		SELECT student_no, name, email, created_at
		FROM students
		WHERE student_no = $1
	`

	var s student.Student
	err := r.conn.QueryRow(ctx, query, no).Scan(&s.No, &s.Name, &s.Email, &s.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, student.NotFound(no)
		}
		return nil, shared.StoreError("student", "Get", fmt.Errorf("failed to get student: %w", err))
	}
	return &s, nil
}

// Exists reports whether the student is known.
func (r *StudentRepository) Exists(ctx context.Context, no string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM students WHERE student_no = $1)`, no).Scan(&exists)
	if err != nil {
		return false, shared.StoreError("student", "Exists", fmt.Errorf("failed to check student: %w", err))
	}
	return exists, nil
}

// Save inserts the student unless it already exists.
func (r *StudentRepository) Save(ctx context.Context, s *student.Student) error {
	if err := saveStudent(ctx, r.conn, s); err != nil {
		return shared.StoreError("student", "Save", err)
	}
	return nil
}

func saveStudent(ctx context.Context, q Querier, s *student.Student) error {
	if _, err := q.Exec(ctx, insertStudentSQL, s.No, s.Name, s.Email, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}
