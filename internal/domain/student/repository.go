package student

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции справочника студентов.
type Repository interface {
	// Get возвращает студента по номеру.
	// Возвращает ErrStudentNotFound, если студент не найден.
	Get(ctx context.Context, no string) (*Student, error)

	// Exists проверяет наличие студента.
	Exists(ctx context.Context, no string) (bool, error)

	// Save создаёт студента, если его ещё нет. Существующая запись не меняется.
	Save(ctx context.Context, s *Student) error
}
