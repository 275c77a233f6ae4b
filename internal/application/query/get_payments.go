package query

import (
	"context"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

// GetPaymentsQuery запрашивает историю платежей по записи.
type GetPaymentsQuery struct {
	StudentNo string
	Term      string
}

// PaymentDTO - один платёж.
type PaymentDTO struct {
	Reference string       `json:"reference"`
	Amount    shared.Money `json:"amount"`
	Status    string       `json:"status"`
	PaidAt    time.Time    `json:"paidAt"`
}

// PaymentHistoryDTO - запись и её платежи в порядке применения.
type PaymentHistoryDTO struct {
	StudentNo string         `json:"studentNo"`
	Term      string         `json:"term"`
	Total     shared.Money   `json:"tuitionTotal"`
	Paid      shared.Money   `json:"paidAmount"`
	Balance   shared.Money   `json:"balance"`
	Status    tuition.Status `json:"status"`
	Payments  []PaymentDTO   `json:"payments"`
}

// GetPaymentsHandler обрабатывает GetPaymentsQuery.
type GetPaymentsHandler struct {
	ledger tuition.Repository
}

// NewGetPaymentsHandler создаёт обработчик.
func NewGetPaymentsHandler(ledger tuition.Repository) *GetPaymentsHandler {
	return &GetPaymentsHandler{ledger: ledger}
}

// Handle выполняет запрос. Отсутствующая запись даёт TUITION_NOT_FOUND.
func (h *GetPaymentsHandler) Handle(ctx context.Context, q GetPaymentsQuery) (*PaymentHistoryDTO, error) {
	key, err := tuition.NewKey(q.StudentNo, q.Term)
	if err != nil {
		return nil, err
	}

	entry, err := h.ledger.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	payments, err := h.ledger.ListPayments(ctx, key)
	if err != nil {
		return nil, err
	}

	dto := &PaymentHistoryDTO{
		StudentNo: entry.StudentNo,
		Term:      entry.Term,
		Total:     entry.Total,
		Paid:      entry.Paid,
		Balance:   entry.Balance(),
		Status:    entry.Status(),
		Payments:  make([]PaymentDTO, 0, len(payments)),
	}
	for _, p := range payments {
		dto.Payments = append(dto.Payments, PaymentDTO{
			Reference: p.Reference,
			Amount:    p.Amount,
			Status:    p.Status,
			PaidAt:    p.PaidAt,
		})
	}
	return dto, nil
}
