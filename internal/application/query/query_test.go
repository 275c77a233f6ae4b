package query

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence/memory"
)

var base = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

type ledgerFixture struct {
	students *memory.StudentStore
	ledger   *memory.TuitionStore
}

func newLedgerFixture() *ledgerFixture {
	students := memory.NewStudentStore()
	return &ledgerFixture{students: students, ledger: memory.NewTuitionStore(students)}
}

func (f *ledgerFixture) add(t *testing.T, no, term, total, paid string, at time.Time) {
	t.Helper()
	key := tuition.Key{StudentNo: no, Term: term}
	st, err := student.NewPlaceholder(no, at)
	require.NoError(t, err)

	err = f.ledger.Mutate(context.Background(), key, func(*tuition.Entry) (*tuition.Change, error) {
		e, err := tuition.NewEntry(key, shared.MustParseMoney(total), at)
		if err != nil {
			return nil, err
		}
		change := &tuition.Change{Entry: e, Created: true, Student: st}
		if paid != "" {
			p, err := e.ApplyPayment(shared.MustParseMoney(paid), "REF-"+no+"-"+term, at)
			if err != nil {
				return nil, err
			}
			change.Payment = p
		}
		return change, nil
	})
	require.NoError(t, err)
}

func TestGetBalance_Latest(t *testing.T) {
	f := newLedgerFixture()
	f.add(t, "S1", "2024-Spring", "1000", "1000", base.AddDate(0, -6, 0))
	f.add(t, "S1", "2024-Fall", "1500", "200", base)

	h := NewGetBalanceHandler(f.students, f.ledger, BalanceLatest)
	dto, err := h.Handle(context.Background(), GetBalanceQuery{StudentNo: " S1 "})
	require.NoError(t, err)

	assert.Equal(t, "S1", dto.StudentNo)
	assert.Equal(t, "2024-Fall", dto.Term)
	assert.Equal(t, "1500.00", dto.Total.String())
	assert.Equal(t, "1300.00", dto.Balance.String())
	assert.Equal(t, tuition.StatusPartial, dto.Status)
	assert.Equal(t, 2, dto.Terms)
}

func TestGetBalance_Sum(t *testing.T) {
	f := newLedgerFixture()
	f.add(t, "S1", "2024-Spring", "1000", "1000", base.AddDate(0, -6, 0))
	f.add(t, "S1", "2024-Fall", "1500", "200", base)

	h := NewGetBalanceHandler(f.students, f.ledger, BalanceSum)
	dto, err := h.Handle(context.Background(), GetBalanceQuery{StudentNo: "S1"})
	require.NoError(t, err)

	assert.Empty(t, dto.Term)
	assert.Equal(t, "2500.00", dto.Total.String())
	assert.Equal(t, "1300.00", dto.Balance.String())
	assert.Equal(t, tuition.StatusPartial, dto.Status)
}

func TestGetBalance_Errors(t *testing.T) {
	f := newLedgerFixture()
	ctx := context.Background()
	h := NewGetBalanceHandler(f.students, f.ledger, "unknown")

	_, err := h.Handle(ctx, GetBalanceQuery{StudentNo: ""})
	assert.ErrorIs(t, err, tuition.ErrStudentNoRequired)

	_, err = h.Handle(ctx, GetBalanceQuery{StudentNo: "S404"})
	assert.ErrorIs(t, err, student.ErrStudentNotFound)

	require.NoError(t, f.students.Save(ctx, &student.Student{No: "S2", Name: "No Entries", CreatedAt: base}))
	_, err = h.Handle(ctx, GetBalanceQuery{StudentNo: "S2"})
	require.ErrorIs(t, err, tuition.ErrTuitionNotFound)
	de, _ := shared.AsDomainError(err)
	assert.Equal(t, "No tuition records found for student S2", de.Message)
}

func TestListOutstanding(t *testing.T) {
	f := newLedgerFixture()
	f.add(t, "S2", "2024-Fall", "100", "40", base)
	f.add(t, "S1", "2024-Fall", "100", "", base)
	f.add(t, "S3", "2024-Fall", "100", "100", base)

	h := NewListOutstandingHandler(f.ledger)
	dto, err := h.Handle(context.Background(), ListOutstandingQuery{Term: "2024-Fall"})
	require.NoError(t, err)

	require.Len(t, dto.Items, 2)
	assert.Equal(t, "S1", dto.Items[0].StudentNo)
	assert.Equal(t, tuition.StatusUnpaid, dto.Items[0].Status)
	assert.Equal(t, "S2", dto.Items[1].StudentNo)
	assert.Equal(t, "60.00", dto.Items[1].Balance.String())
	assert.Equal(t, PaginationDTO{CurrentPage: 1, PageSize: tuition.DefaultPageSize, TotalPages: 1, TotalCount: 2}, dto.Pagination)

	_, err = h.Handle(context.Background(), ListOutstandingQuery{Term: " "})
	assert.ErrorIs(t, err, tuition.ErrTermRequired)
}

func TestListOutstanding_EmptyTerm(t *testing.T) {
	h := NewListOutstandingHandler(newLedgerFixture().ledger)
	dto, err := h.Handle(context.Background(), ListOutstandingQuery{Term: "1999-Fall", Page: 2, PageSize: 500})
	require.NoError(t, err)
	assert.NotNil(t, dto.Items)
	assert.Empty(t, dto.Items)
	assert.Equal(t, tuition.MaxPageSize, dto.Pagination.PageSize)
	assert.Equal(t, 0, dto.Pagination.TotalPages)
}

func TestListOutstanding_HugePageNumber(t *testing.T) {
	f := newLedgerFixture()
	f.add(t, "S1", "2024-Fall", "100", "", base)

	h := NewListOutstandingHandler(f.ledger)
	dto, err := h.Handle(context.Background(), ListOutstandingQuery{Term: "2024-Fall", Page: math.MaxInt64 / 10, PageSize: 20})
	require.NoError(t, err)
	assert.Empty(t, dto.Items)
	assert.Equal(t, tuition.MaxPageNumber, dto.Pagination.CurrentPage)
	assert.Equal(t, 1, dto.Pagination.TotalCount)
}

func TestGetPayments(t *testing.T) {
	f := newLedgerFixture()
	f.add(t, "S1", "2024-Fall", "1500", "500", base)

	h := NewGetPaymentsHandler(f.ledger)
	dto, err := h.Handle(context.Background(), GetPaymentsQuery{StudentNo: "S1", Term: "2024-Fall"})
	require.NoError(t, err)
	assert.Equal(t, "500.00", dto.Paid.String())
	assert.Equal(t, "1000.00", dto.Balance.String())
	require.Len(t, dto.Payments, 1)
	assert.Equal(t, "REF-S1-2024-Fall", dto.Payments[0].Reference)

	_, err = h.Handle(context.Background(), GetPaymentsQuery{StudentNo: "S1", Term: "2025-Spring"})
	assert.ErrorIs(t, err, tuition.ErrTuitionNotFound)
}
