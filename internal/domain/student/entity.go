package student

import (
	"fmt"
	"strings"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Student - запись справочника студентов.
type Student struct {
	// No - внешний номер студента (уникальный, неизменяемый).
	No string

	// Name - отображаемое имя.
	Name string

	// Email - контактный адрес.
	Email string

	// CreatedAt - время создания записи.
	CreatedAt time.Time
}

// PlaceholderEmailDomain - домен адреса для автоматически созданных студентов.
const PlaceholderEmailDomain = "university.edu"

// New создаёт студента с валидацией полей.
func New(no, name, email string, now time.Time) (*Student, error) {
	no = NormalizeNo(no)
	if no == "" {
		return nil, ErrInvalidStudentNo
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	return &Student{
		No:        no,
		Name:      name,
		Email:     strings.TrimSpace(email),
		CreatedAt: now.UTC(),
	}, nil
}

// NewPlaceholder создаёт студента с именем и адресом, выведенными из номера.
// Используется только для автоматического создания при записи начисления,
// это не подтверждение личности.
func NewPlaceholder(no string, now time.Time) (*Student, error) {
	no = NormalizeNo(no)
	return New(no, "Student "+no, fmt.Sprintf("%s@%s", no, PlaceholderEmailDomain), now)
}

// NormalizeNo приводит номер студента к каноническому виду.
func NormalizeNo(no string) string {
	return strings.TrimSpace(no)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidStudentNo - пустой номер студента.
	ErrInvalidStudentNo = shared.NewDomainError("student", "Validate", shared.ErrValidation,
		"INVALID_STUDENT_NO", "student number is required")

	// ErrInvalidName - пустое имя.
	ErrInvalidName = shared.NewDomainError("student", "Validate", shared.ErrValidation,
		"INVALID_STUDENT_NAME", "student name is required")

	// ErrStudentNotFound - студент не найден.
	ErrStudentNotFound = shared.NewDomainError("student", "Find", shared.ErrNotFound,
		"STUDENT_NOT_FOUND", "student not found")
)

// NotFound возвращает ErrStudentNotFound с номером студента в сообщении.
func NotFound(no string) error {
	return ErrStudentNotFound.
		WithMessage(fmt.Sprintf("Student %s not found", no)).
		WithDetails(map[string]any{"studentNo": no})
}
