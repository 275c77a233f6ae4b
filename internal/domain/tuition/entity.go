package tuition

import (
	"fmt"
	"strings"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Key - ключ записи леджера.
type Key struct {
	StudentNo string
	Term      string
}

// NewKey создаёт ключ, обрезая пробелы и проверяя, что обе части заданы.
func NewKey(studentNo, term string) (Key, error) {
	k := Key{StudentNo: strings.TrimSpace(studentNo), Term: strings.TrimSpace(term)}
	if k.StudentNo == "" {
		return Key{}, ErrStudentNoRequired
	}
	if k.Term == "" {
		return Key{}, ErrTermRequired
	}
	return k, nil
}

// String возвращает ключ в виде "studentNo/term".
func (k Key) String() string {
	return k.StudentNo + "/" + k.Term
}

// Status - статус оплаты записи.
type Status string

const (
	// StatusUnpaid - ничего не оплачено.
	StatusUnpaid Status = "UNPAID"

	// StatusPartial - оплачено частично.
	StatusPartial Status = "PARTIAL"

	// StatusPaid - оплачено полностью.
	StatusPaid Status = "PAID"
)

// IsValid проверяет допустимость статуса.
func (s Status) IsValid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid:
		return true
	}
	return false
}

// String возвращает строковое представление.
func (s Status) String() string {
	return string(s)
}

// DeriveStatus вычисляет статус по оплаченной и начисленной суммам.
func DeriveStatus(paid, total shared.Money) Status {
	switch {
	case !paid.IsPositive():
		return StatusUnpaid
	case paid.LessThan(total):
		return StatusPartial
	default:
		return StatusPaid
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Entry - начисление за обучение студента в одном семестре.
type Entry struct {
	// StudentNo - номер студента-владельца.
	StudentNo string

	// Term - метка семестра, например "2024-Fall".
	Term string

	// Total - сумма начисления.
	Total shared.Money

	// Paid - оплаченная сумма. Никогда не уменьшается.
	Paid shared.Money

	// CreatedAt - время создания записи.
	CreatedAt time.Time

	// UpdatedAt - время последнего изменения.
	UpdatedAt time.Time
}

// NewEntry создаёт неоплаченную запись.
func NewEntry(key Key, total shared.Money, now time.Time) (*Entry, error) {
	if !total.IsPositive() {
		return nil, ErrInvalidTotal
	}
	now = now.UTC()
	return &Entry{
		StudentNo: key.StudentNo,
		Term:      key.Term,
		Total:     total,
		Paid:      shared.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Key возвращает ключ записи.
func (e *Entry) Key() Key {
	return Key{StudentNo: e.StudentNo, Term: e.Term}
}

// Balance возвращает остаток к оплате.
func (e *Entry) Balance() shared.Money {
	return e.Total.Sub(e.Paid)
}

// Status возвращает статус оплаты.
func (e *Entry) Status() Status {
	return DeriveStatus(e.Paid, e.Total)
}

// Requote заменяет сумму начисления (это не доплата, а новая цена).
// Новая сумма не может быть меньше уже оплаченной.
func (e *Entry) Requote(total shared.Money, now time.Time) error {
	if !total.IsPositive() {
		return ErrInvalidTotal
	}
	if total.LessThan(e.Paid) {
		return ErrTotalBelowPaid.WithDetails(map[string]any{
			"paidAmount":  e.Paid,
			"totalAmount": total,
		})
	}
	e.Total = total
	e.UpdatedAt = now.UTC()
	return nil
}

// ApplyPayment применяет платёж к записи и возвращает запись о платеже.
// Проверки выполняются по порядку: сумма, статус, остаток.
func (e *Entry) ApplyPayment(amount shared.Money, reference string, now time.Time) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if e.Status() == StatusPaid {
		return nil, ErrAlreadyPaid
	}
	balance := e.Balance()
	if amount.GreaterThan(balance) {
		return nil, ErrExceedsBalance.
			WithMessage(fmt.Sprintf("payment amount exceeds balance. Current balance: %s", balance)).
			WithDetails(map[string]any{"balance": balance})
	}

	now = now.UTC()
	e.Paid = e.Paid.Add(amount)
	e.UpdatedAt = now

	return &Payment{
		Reference: reference,
		StudentNo: e.StudentNo,
		Term:      e.Term,
		Amount:    amount,
		Status:    PaymentStatusSuccessful,
		PaidAt:    now,
	}, nil
}

// Validate проверяет инварианты записи.
func (e *Entry) Validate() error {
	switch {
	case e.Total.IsNegative():
		return fmt.Errorf("tuition %s: negative total %s", e.Key(), e.Total)
	case e.Paid.IsNegative():
		return fmt.Errorf("tuition %s: negative paid amount %s", e.Key(), e.Paid)
	case e.Paid.GreaterThan(e.Total):
		return fmt.Errorf("tuition %s: paid %s exceeds total %s", e.Key(), e.Paid, e.Total)
	}
	return nil
}

// Clone возвращает независимую копию записи.
func (e *Entry) Clone() *Entry {
	cp := *e
	return &cp
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrStudentNoRequired - не задан номер студента.
	ErrStudentNoRequired = shared.NewDomainError("tuition", "Validate", shared.ErrValidation,
		"INVALID_STUDENT_NO", "Student number is required")

	// ErrTermRequired - не задан семестр.
	ErrTermRequired = shared.NewDomainError("tuition", "Validate", shared.ErrValidation,
		"INVALID_TERM", "Term is required")

	// ErrInvalidTotal - сумма начисления не положительна.
	ErrInvalidTotal = shared.NewDomainError("tuition", "Upsert", shared.ErrValidation,
		"INVALID_TOTAL", "Amount must be a positive number")

	// ErrTotalBelowPaid - новая сумма начисления меньше оплаченной.
	ErrTotalBelowPaid = shared.NewDomainError("tuition", "Upsert", shared.ErrConflict,
		"INVALID_TOTAL_AMOUNT", "total amount cannot be less than the amount already paid")

	// ErrTuitionNotFound - запись не найдена.
	ErrTuitionNotFound = shared.NewDomainError("tuition", "Find", shared.ErrNotFound,
		"TUITION_NOT_FOUND", "tuition record not found")

	// ErrInvalidAmount - сумма платежа не положительна.
	ErrInvalidAmount = shared.NewDomainError("tuition", "ApplyPayment", shared.ErrValidation,
		"INVALID_AMOUNT", "payment amount must be greater than zero")

	// ErrAlreadyPaid - запись уже оплачена полностью.
	ErrAlreadyPaid = shared.NewDomainError("tuition", "ApplyPayment", shared.ErrConflict,
		"ALREADY_PAID", "tuition is already fully paid")

	// ErrExceedsBalance - сумма платежа больше остатка.
	ErrExceedsBalance = shared.NewDomainError("tuition", "ApplyPayment", shared.ErrConflict,
		"EXCEEDS_BALANCE", "payment amount exceeds balance")
)
