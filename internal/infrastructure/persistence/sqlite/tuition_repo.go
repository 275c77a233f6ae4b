package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

// TuitionRepository implements tuition.Repository.
type TuitionRepository struct {
	db *sql.DB
}

const entryColumns = `id, student_no, term, total_amount, paid_amount, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Mutate implements tuition.Repository.
func (r *TuitionRepository) Mutate(ctx context.Context, key tuition.Key, fn tuition.MutateFunc) error {
	var fnErr error
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		id, current, err := scanEntry(tx.QueryRowContext(ctx,
			`SELECT `+entryColumns+` FROM tuition_entries WHERE student_no = ? AND term = ?`,
			key.StudentNo, key.Term,
		))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read entry: %w", err)
		}

		change, err := fn(current)
		if err != nil {
			fnErr = err
			return err
		}
		if change == nil {
			return nil
		}
		return apply(ctx, tx, id, current == nil, change)
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return shared.StoreError("tuition", "Mutate", err)
	}
	return nil
}

func apply(ctx context.Context, tx *sql.Tx, id int64, insert bool, change *tuition.Change) error {
	if change.Student != nil {
		if err := saveStudent(ctx, tx, change.Student); err != nil {
			return err
		}
	}

	e := change.Entry
	if insert {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tuition_entries (student_no, term, total_amount, paid_amount, balance, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.StudentNo, e.Term, e.Total.String(), e.Paid.String(), e.Balance().String(), string(e.Status()),
			toMillis(e.CreatedAt), toMillis(e.UpdatedAt),
		)
		if err != nil {
			return wrapConstraint("insert tuition entry", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert tuition entry: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx,
			`UPDATE tuition_entries
			 SET total_amount = ?, paid_amount = ?, balance = ?, status = ?, updated_at = ?
			 WHERE id = ?`,
			e.Total.String(), e.Paid.String(), e.Balance().String(), string(e.Status()), toMillis(e.UpdatedAt), id,
		)
		if err != nil {
			return wrapConstraint("update tuition entry", err)
		}
	}

	if p := change.Payment; p != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payments (tuition_id, reference, amount, status, paid_at) VALUES (?, ?, ?, ?, ?)`,
			id, p.Reference, p.Amount.String(), p.Status, toMillis(p.PaidAt),
		)
		if err != nil {
			return wrapConstraint("insert payment", err)
		}
	}
	return nil
}

func wrapConstraint(op string, err error) error {
	if isConstraintError(err) {
		return fmt.Errorf("%s: constraint violated: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Get returns the entry for key.
func (r *TuitionRepository) Get(ctx context.Context, key tuition.Key) (*tuition.Entry, error) {
	_, e, err := scanEntry(r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM tuition_entries WHERE student_no = ? AND term = ?`,
		key.StudentNo, key.Term,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tuition.ErrTuitionNotFound
		}
		return nil, shared.StoreError("tuition", "Get", err)
	}
	return e, nil
}

// ListByStudent returns the student's entries, newest first.
func (r *TuitionRepository) ListByStudent(ctx context.Context, studentNo string) ([]*tuition.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM tuition_entries WHERE student_no = ? ORDER BY created_at DESC, id DESC`,
		studentNo,
	)
	if err != nil {
		return nil, shared.StoreError("tuition", "ListByStudent", err)
	}
	defer rows.Close()

	var entries []*tuition.Entry
	for rows.Next() {
		_, e, err := scanEntry(rows)
		if err != nil {
			return nil, shared.StoreError("tuition", "ListByStudent", err)
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

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tuition_entries WHERE term = ? AND status IN ('UNPAID', 'PARTIAL')`, term,
	).Scan(&result.TotalCount)
	if err != nil {
		return nil, shared.StoreError("tuition", "ListOutstanding", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT t.student_no, s.name, t.term, t.total_amount, t.balance, t.status
		 FROM tuition_entries t
		 JOIN students s ON s.student_no = t.student_no
		 WHERE t.term = ? AND t.status IN ('UNPAID', 'PARTIAL')
		 ORDER BY t.student_no
		 LIMIT ? OFFSET ?`,
		term, page.Size, page.Offset(),
	)
	if err != nil {
		return nil, shared.StoreError("tuition", "ListOutstanding", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item tuition.OutstandingItem
		var total, balance, status string
		if err := rows.Scan(&item.StudentNo, &item.Name, &item.Term, &total, &balance, &status); err != nil {
			return nil, shared.StoreError("tuition", "ListOutstanding", err)
		}
		if item.Total, err = shared.ParseMoney(total); err != nil {
			return nil, shared.StoreError("tuition", "ListOutstanding", err)
		}
		if item.Balance, err = shared.ParseMoney(balance); err != nil {
			return nil, shared.StoreError("tuition", "ListOutstanding", err)
		}
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
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.reference, t.student_no, t.term, p.amount, p.status, p.paid_at
		 FROM payments p
		 JOIN tuition_entries t ON t.id = p.tuition_id
		 WHERE t.student_no = ? AND t.term = ?
		 ORDER BY p.paid_at, p.id`,
		key.StudentNo, key.Term,
	)
	if err != nil {
		return nil, shared.StoreError("tuition", "ListPayments", err)
	}
	defer rows.Close()

	var payments []*tuition.Payment
	for rows.Next() {
		var p tuition.Payment
		var amount string
		var paidAt int64
		if err := rows.Scan(&p.Reference, &p.StudentNo, &p.Term, &amount, &p.Status, &paidAt); err != nil {
			return nil, shared.StoreError("tuition", "ListPayments", err)
		}
		if p.Amount, err = shared.ParseMoney(amount); err != nil {
			return nil, shared.StoreError("tuition", "ListPayments", err)
		}
		p.PaidAt = fromMillis(paidAt)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreError("tuition", "ListPayments", err)
	}
	return payments, nil
}

func scanEntry(row rowScanner) (int64, *tuition.Entry, error) {
	var (
		id                 int64
		e                  tuition.Entry
		total, paid        string
		createdAt, updated int64
	)
	if err := row.Scan(&id, &e.StudentNo, &e.Term, &total, &paid, &createdAt, &updated); err != nil {
		return 0, nil, err
	}
	var err error
	if e.Total, err = shared.ParseMoney(total); err != nil {
		return 0, nil, fmt.Errorf("parse total_amount: %w", err)
	}
	if e.Paid, err = shared.ParseMoney(paid); err != nil {
		return 0, nil, fmt.Errorf("parse paid_amount: %w", err)
	}
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updated)
	return id, &e, nil
}
