package query

import (
	"context"
	"strings"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST OUTSTANDING QUERY
// Неоплаченные и частично оплаченные записи семестра, по номеру студента.
// ══════════════════════════════════════════════════════════════════════════════

// ListOutstandingQuery содержит параметры запроса.
type ListOutstandingQuery struct {
	Term     string
	Page     int
	PageSize int
}

// OutstandingDTO - строка списка должников.
type OutstandingDTO struct {
	StudentNo   string         `json:"studentNo"`
	StudentName string         `json:"studentName"`
	Term        string         `json:"term"`
	Total       shared.Money   `json:"tuitionTotal"`
	Balance     shared.Money   `json:"balance"`
	Status      tuition.Status `json:"status"`
}

// PaginationDTO - метаданные страницы.
type PaginationDTO struct {
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
	TotalPages  int `json:"totalPages"`
	TotalCount  int `json:"totalCount"`
}

// OutstandingListDTO - страница списка.
type OutstandingListDTO struct {
	Term       string           `json:"term"`
	Items      []OutstandingDTO `json:"items"`
	Pagination PaginationDTO    `json:"pagination"`
}

// ListOutstandingHandler обрабатывает ListOutstandingQuery.
type ListOutstandingHandler struct {
	ledger tuition.Repository
}

// NewListOutstandingHandler создаёт обработчик.
func NewListOutstandingHandler(ledger tuition.Repository) *ListOutstandingHandler {
	return &ListOutstandingHandler{ledger: ledger}
}

// Handle выполняет запрос. Номер и размер страницы нормализуются.
func (h *ListOutstandingHandler) Handle(ctx context.Context, q ListOutstandingQuery) (*OutstandingListDTO, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return nil, tuition.ErrTermRequired
	}

	page := tuition.NewPage(q.Page, q.PageSize)
	res, err := h.ledger.ListOutstanding(ctx, term, page)
	if err != nil {
		return nil, err
	}

	dto := &OutstandingListDTO{
		Term:  term,
		Items: make([]OutstandingDTO, 0, len(res.Items)),
		Pagination: PaginationDTO{
			CurrentPage: page.Number,
			PageSize:    page.Size,
			TotalPages:  res.TotalPages(),
			TotalCount:  res.TotalCount,
		},
	}
	for _, it := range res.Items {
		dto.Items = append(dto.Items, OutstandingDTO{
			StudentNo:   it.StudentNo,
			StudentName: it.Name,
			Term:        it.Term,
			Total:       it.Total,
			Balance:     it.Balance,
			Status:      it.Status,
		})
	}
	return dto, nil
}
