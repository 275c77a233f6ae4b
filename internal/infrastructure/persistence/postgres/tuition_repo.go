package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

// ══════════════════════════════════════════════════════════════════════════════
// TUITION REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// TuitionRepository implements tuition.Repository for PostgreSQL.
//
// Mutations take a transaction-scoped advisory lock on the entry key before
// reading, so writers on the same key queue up even while the row does not
// exist yet. Existing rows are additionally locked with FOR UPDATE.
type TuitionRepository struct {
	conn *Connection
}

// NewTuitionRepository creates a new TuitionRepository.
func NewTuitionRepository(conn *Connection) *TuitionRepository {
	return &TuitionRepository{conn: conn}
}

const entryColumns = `student_no, term, total_amount, paid_amount, created_at, updated_at`

// Mutate implements tuition.Repository.
func (r *TuitionRepository) Mutate(ctx context.Context, key tuition.Key, fn tuition.MutateFunc) error {
	var fnErr error
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, key.String()); err != nil {
			return shared.StoreError("tuition", "Mutate", fmt.Errorf("failed to lock key: %w", err))
		}

		var id int64
		current, err := scanEntry(tx.QueryRow(ctx, `
			SELECT id, `+entryColumns+`
			FROM tuition_entries
			WHERE student_no = $1 AND term = $2
			FOR UPDATE
		`, key.StudentNo, key.Term), &id)
		if err != nil && !IsNoRows(err) {
			return shared.StoreError("tuition", "Mutate", fmt.Errorf("failed to read entry: %w", err))
		}

		change, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}
		if change == nil {
			return nil
		}

		if err := r.apply(ctx, tx, id, current == nil, change); err != nil {
			return shared.StoreError("tuition", "Mutate", err)
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		if _, ok := shared.AsDomainError(err); ok {
			return err
		}
		return shared.StoreError("tuition", "Mutate", err)
	}
	return nil
}

func (r *TuitionRepository) apply(ctx context.Context, tx pgx.Tx, id int64, insert bool, change *tuition.Change) error {
	if change.Student != nil {
		if err := saveStudent(ctx, tx, change.Student); err != nil {
			return err
		}
	}

	e := change.Entry
	if insert {
		err := tx.QueryRow(ctx, `
			INSERT INTO tuition_entries (`+entryColumns+`, balance, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`,
			e.StudentNo, e.Term, e.Total.Decimal(), e.Paid.Decimal(), e.CreatedAt, e.UpdatedAt,
			e.Balance().Decimal(), string(e.Status()),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("failed to insert tuition entry: %w", err)
		}
	} else {
		_, err := tx.Exec(ctx, `
			UPDATE tuition_entries SET
				total_amount = $1,
				paid_amount = $2,
				balance = $3,
				status = $4,
				updated_at = $5
			WHERE id = $6
		`,
			e.Total.Decimal(), e.Paid.Decimal(), e.Balance().Decimal(), string(e.Status()), e.UpdatedAt, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update tuition entry: %w", err)
		}
	}

	if p := change.Payment; p != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO payments (tuition_id, reference, amount, status, paid_at)
			VALUES ($1, $2, $3, $4, $5)
		`, id, p.Reference, p.Amount.Decimal(), p.Status, p.PaidAt)
		if err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
	}

	return nil
}

// Get returns the entry for key.
func (r *TuitionRepository) Get(ctx context.Context, key tuition.Key) (*tuition.Entry, error) {
	var id int64
	e, err := scanEntry(r.conn.QueryRow(ctx, `
		SELECT id, `+entryColumns+`
		FROM tuition_entries
		WHERE student_no = $1 AND term = $2
	`, key.StudentNo, key.Term), &id)
	if err != nil {
		if IsNoRows(err) {
			return nil, tuition.ErrTuitionNotFound
		}
		return nil, shared.StoreError("tuition", "Get", fmt.Errorf("failed to get entry: %w", err))
	}
	return e, nil
}

// ListByStudent returns the student's entries, newest first.
func (r *TuitionRepository) ListByStudent(ctx context.Context, studentNo string) ([]*tuition.Entry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, `+entryColumns+`
		FROM tuition_entries
		WHERE student_no = $1
		ORDER BY created_at DESC, id DESC
	`, studentNo)
	if err != nil {
		return nil, shared.StoreError("tuition", "ListByStudent", fmt.Errorf("failed to list entries: %w", err))
	}
	defer rows.Close()

	var entries []*tuition.Entry
	for rows.Next() {
		var id int64
		e, err := scanEntry(rows, &id)
		if err != nil {
			return nil, shared.StoreError("tuition", "ListByStudent", fmt.Errorf("failed to scan entry: %w", err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("tuition", "ListByStudent", err)
	}
	return entries, nil
}

// ListOutstanding returns UNPAID and PARTIAL entries of term ordered by student number.
func (r *TuitionRepository) ListOutstanding(ctx context.Context, term string, page tuition.Page) (*tuition.OutstandingPage, error) {
	result := &tuition.OutstandingPage{Page: page}

	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tuition_entries
		WHERE term = $1 AND status IN ('UNPAID', 'PARTIAL')
	`, term).Scan(&result.TotalCount)
	if err != nil {
		return nil, shared.StoreError("tuition", "ListOutstanding", fmt.Errorf("failed to count entries: %w", err))
	}

	rows, err := r.conn.Query(ctx, `
		SELECT t.student_no, s.name, t.term, t.total_amount, t.balance, t.status
		FROM tuition_entries t
		JOIN students s ON s.student_no = t.student_no
		WHERE t.term = $1 AND t.status IN ('UNPAID', 'PARTIAL')
		ORDER BY t.student_no
		LIMIT $2 OFFSET $3
	`, term, page.Size, page.Offset())
	if err != nil {
		return nil, shared.StoreError("tuition", "ListOutstanding", fmt.Errorf("failed to list entries: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var item tuition.OutstandingItem
		var total, balance decimal.Decimal
		var status string
		if err := rows.Scan(&item.StudentNo, &item.Name, &item.Term, &total, &balance, &status); err != nil {
			return nil, shared.StoreError("tuition", "ListOutstanding", fmt.Errorf("failed to scan entry: %w", err))
		}
		item.Total = shared.NewMoney(total)
		item.Balance = shared.NewMoney(balance)
		item.Status = tuition.Status(status)
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("tuition", "ListOutstanding", err)
	}
	return result, nil
}

// ListPayments returns payments applied to key in order.
func (r *TuitionRepository) ListPayments(ctx context.Context, key tuition.Key) ([]*tuition.Payment, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT p.reference, t.student_no, t.term, p.amount, p.status, p.paid_at
		FROM payments p
		JOIN tuition_entries t ON t.id = p.tuition_id
		WHERE t.student_no = $1 AND t.term = $2
		ORDER BY p.paid_at, p.id
	`, key.StudentNo, key.Term)
	if err != nil {
		return nil, shared.StoreError("tuition", "ListPayments", fmt.Errorf("failed to list payments: %w", err))
	}
	defer rows.Close()

	var payments []*tuition.Payment
	for rows.Next() {
		var p tuition.Payment
		var amount decimal.Decimal
		if err := rows.Scan(&p.Reference, &p.StudentNo, &p.Term, &amount, &p.Status, &p.PaidAt); err != nil {
			return nil, shared.StoreError("tuition", "ListPayments", fmt.Errorf("failed to scan payment: %w", err))
		}
		p.Amount = shared.NewMoney(amount)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("tuition", "ListPayments", err)
	}
	return payments, nil
}

// scanEntry scans a row of (id, entryColumns...). It returns pgx.ErrNoRows unchanged.
func scanEntry(row pgx.Row, id *int64) (*tuition.Entry, error) {
	var e tuition.Entry
	var total, paid decimal.Decimal
	if err := row.Scan(id, &e.StudentNo, &e.Term, &total, &paid, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Total = shared.NewMoney(total)
	e.Paid = shared.NewMoney(paid)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}
