package tuition

import (
	"context"
	"math"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Change описывает результат изменения записи, который хранилище
// должно сохранить атомарно.
type Change struct {
	// Entry - новое состояние записи.
	Entry *Entry

	// Created - запись создаётся (иначе обновляется).
	Created bool

	// Student - студент, которого нужно создать вместе с записью (опционально).
	// Если студент уже существует, он не меняется.
	Student *student.Student

	// Payment - платёж, который нужно добавить (опционально).
	Payment *Payment
}

// MutateFunc получает текущее состояние записи (nil, если её нет) и
// возвращает изменение. Ошибка или nil-изменение означают, что ничего
// не сохраняется.
type MutateFunc func(current *Entry) (*Change, error)

// Repository определяет операции над леджером.
type Repository interface {
	// Mutate выполняет чтение-изменение-запись одной записи под эксклюзивной
	// блокировкой ключа. Операции над одним ключом линеаризуемы, над разными
	// выполняются параллельно. Изменение сохраняется целиком или не сохраняется.
	// Ошибка из fn возвращается без обёртки.
	Mutate(ctx context.Context, key Key, fn MutateFunc) error

	// Get возвращает запись по ключу.
	// Возвращает ErrTuitionNotFound, если записи нет.
	Get(ctx context.Context, key Key) (*Entry, error)

	// ListByStudent возвращает записи студента, новые первыми.
	ListByStudent(ctx context.Context, studentNo string) ([]*Entry, error)

	// ListOutstanding возвращает неоплаченные и частично оплаченные записи
	// семестра, упорядоченные по номеру студента.
	ListOutstanding(ctx context.Context, term string, page Page) (*OutstandingPage, error)

	// ListPayments возвращает платежи по записи в порядке применения.
	ListPayments(ctx context.Context, key Key) ([]*Payment, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// PAGINATION
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultPageSize - размер страницы по умолчанию.
	DefaultPageSize = 20

	// MaxPageSize - максимальный размер страницы.
	MaxPageSize = 100

	// MaxPageNumber ограничивает номер страницы, чтобы смещение
	// помещалось в int32 (OFFSET в SQL).
	MaxPageNumber = math.MaxInt32 / MaxPageSize
)

// Page - параметры страницы (номера с 1).
type Page struct {
	Number int
	Size   int
}

// NewPage нормализует параметры страницы.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if number > MaxPageNumber {
		number = MaxPageNumber
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset возвращает смещение первой строки страницы.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// OutstandingItem - строка списка должников.
type OutstandingItem struct {
	StudentNo string
	Name      string
	Term      string
	Total     shared.Money
	Balance   shared.Money
	Status    Status
}

// OutstandingPage - страница списка должников.
type OutstandingPage struct {
	Items      []OutstandingItem
	Page       Page
	TotalCount int
}

// TotalPages возвращает количество страниц.
func (p *OutstandingPage) TotalPages() int {
	if p.Page.Size <= 0 {
		return 0
	}
	return (p.TotalCount + p.Page.Size - 1) / p.Page.Size
}
