// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BALANCE QUERY
// Возвращает сумму к оплате и остаток по студенту. Ничего не пишет:
// лимит вызовов проверяется отдельно, до этого запроса.
// ══════════════════════════════════════════════════════════════════════════════

// BalanceMode определяет, как считается баланс студента.
type BalanceMode string

const (
	// BalanceLatest - последняя созданная запись.
	BalanceLatest BalanceMode = "latest"

	// BalanceSum - сумма по всем семестрам.
	BalanceSum BalanceMode = "sum"
)

// GetBalanceQuery содержит параметры запроса.
type GetBalanceQuery struct {
	StudentNo string
}

// BalanceDTO - остаток по студенту.
type BalanceDTO struct {
	StudentNo string         `json:"studentNo"`
	Term      string         `json:"term,omitempty"` // пусто в режиме sum
	Total     shared.Money   `json:"tuitionTotal"`
	Balance   shared.Money   `json:"balance"`
	Status    tuition.Status `json:"status"`
	Terms     int            `json:"terms"`
}

// GetBalanceHandler обрабатывает GetBalanceQuery.
type GetBalanceHandler struct {
	students student.Repository
	ledger   tuition.Repository
	mode     BalanceMode
}

// NewGetBalanceHandler создаёт обработчик. Неизвестный режим трактуется как latest.
func NewGetBalanceHandler(students student.Repository, ledger tuition.Repository, mode BalanceMode) *GetBalanceHandler {
	if mode != BalanceSum {
		mode = BalanceLatest
	}
	return &GetBalanceHandler{students: students, ledger: ledger, mode: mode}
}

// Handle выполняет запрос.
func (h *GetBalanceHandler) Handle(ctx context.Context, q GetBalanceQuery) (*BalanceDTO, error) {
	no := strings.TrimSpace(q.StudentNo)
	if no == "" {
		return nil, tuition.ErrStudentNoRequired
	}

	exists, err := h.students.Exists(ctx, no)
	if err != nil {
		return nil, shared.StoreError("tuition", "GetBalance", err)
	}
	if !exists {
		return nil, student.NotFound(no)
	}

	entries, err := h.ledger.ListByStudent(ctx, no)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, tuition.ErrTuitionNotFound.
			WithMessage(fmt.Sprintf("No tuition records found for student %s", no)).
			WithDetails(map[string]any{"studentNo": no})
	}

	if h.mode == BalanceLatest {
		latest := entries[0]
		return &BalanceDTO{
			StudentNo: no,
			Term:      latest.Term,
			Total:     latest.Total,
			Balance:   latest.Balance(),
			Status:    latest.Status(),
			Terms:     len(entries),
		}, nil
	}

	total, paid := shared.Zero, shared.Zero
	for _, e := range entries {
		total = total.Add(e.Total)
		paid = paid.Add(e.Paid)
	}
	return &BalanceDTO{
		StudentNo: no,
		Total:     total,
		Balance:   total.Sub(paid),
		Status:    tuition.DeriveStatus(paid, total),
		Terms:     len(entries),
	}, nil
}
