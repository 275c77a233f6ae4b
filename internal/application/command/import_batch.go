package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
	"github.com/campus-finance/tuition-hub/pkg/logger"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPORT BATCH COMMAND
// Streams (student, term, amount) rows into the ledger. Every row is its own
// unit of work: a failing row is recorded and the import moves on.
// ══════════════════════════════════════════════════════════════════════════════

// Batch result statuses.
const (
	BatchStatusSuccess        = "Success"
	BatchStatusPartialSuccess = "Partial Success"
	BatchStatusFailure        = "Failure"
)

// Row failure reasons.
const (
	reasonStudentNoRequired = "Student number is required"
	reasonTermRequired      = "Term is required"
	reasonInvalidAmount     = "Amount must be a positive number"
	reasonProcessingError   = "Processing error: %s"
)

// BatchRow is one unparsed data row. Amount is kept as text so that a
// malformed value fails only its own row.
type BatchRow struct {
	StudentNo string
	Term      string
	Amount    string
}

// RowSource yields rows until it returns io.EOF.
type RowSource interface {
	Next() (BatchRow, error)
}

// MalformedRowError is returned by a RowSource for a data row it could not
// decode. The importer records it against the row and continues.
type MalformedRowError struct {
	Err error
}

func (e *MalformedRowError) Error() string { return e.Err.Error() }
func (e *MalformedRowError) Unwrap() error { return e.Err }

type sliceSource struct {
	rows []BatchRow
	pos  int
}

// SliceSource returns a RowSource over rows.
func SliceSource(rows []BatchRow) RowSource {
	return &sliceSource{rows: rows}
}

func (s *sliceSource) Next() (BatchRow, error) {
	if s.pos >= len(s.rows) {
		return BatchRow{}, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// RowError records why a row was not applied. Row is 1-based over data rows.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// BatchResult summarises an import.
type BatchResult struct {
	SuccessCount int
	Errors       []RowError
}

// ErrorCount returns the number of failed rows.
func (r *BatchResult) ErrorCount() int {
	return len(r.Errors)
}

// Status returns Success, Partial Success or Failure.
func (r *BatchResult) Status() string {
	switch {
	case len(r.Errors) == 0:
		return BatchStatusSuccess
	case r.SuccessCount > 0:
		return BatchStatusPartialSuccess
	default:
		return BatchStatusFailure
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ImportBatchHandler applies batches through the upsert logic.
type ImportBatchHandler struct {
	upsert     *UpsertTuitionHandler
	log        *logger.Logger
	clock      timeutil.Clock
	autoCreate bool
}

// NewImportBatchHandler creates a new ImportBatchHandler. autoCreate controls
// whether unknown students are synthesised during import.
func NewImportBatchHandler(upsert *UpsertTuitionHandler, autoCreate bool, log *logger.Logger) *ImportBatchHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ImportBatchHandler{
		upsert:     upsert,
		log:        log.With(logger.Component("import_batch")),
		clock:      upsert.clock,
		autoCreate: autoCreate,
	}
}

// Handle consumes src until io.EOF. On context cancellation or a source
// failure it returns the result so far together with the error.
func (h *ImportBatchHandler) Handle(ctx context.Context, src RowSource) (*BatchResult, error) {
	start := h.clock()
	result := &BatchResult{}

	for rowNumber := 1; ; rowNumber++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var malformed *MalformedRowError
			if errors.As(err, &malformed) {
				result.fail(rowNumber, fmt.Sprintf(reasonProcessingError, malformed.Err))
				continue
			}
			return result, fmt.Errorf("read row %d: %w", rowNumber, err)
		}

		if reason, ok := h.applyRow(ctx, row); !ok {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.fail(rowNumber, reason)
			continue
		}
		result.SuccessCount++
	}

	h.log.Info("batch import completed",
		logger.Int("success_count", result.SuccessCount),
		logger.Int("error_count", result.ErrorCount()),
		logger.String("status", result.Status()),
		logger.Latency(h.clock().Sub(start)),
	)
	return result, nil
}

func (h *ImportBatchHandler) applyRow(ctx context.Context, row BatchRow) (string, bool) {
	studentNo := strings.TrimSpace(row.StudentNo)
	term := strings.TrimSpace(row.Term)
	if studentNo == "" {
		return reasonStudentNoRequired, false
	}
	if term == "" {
		return reasonTermRequired, false
	}
	amount, err := shared.ParseMoney(row.Amount)
	if err != nil || !amount.IsPositive() {
		return reasonInvalidAmount, false
	}

	_, err = h.upsert.upsert(ctx, UpsertTuitionCommand{
		StudentNo: studentNo,
		Term:      term,
		Total:     amount,
	}, h.autoCreate)
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, student.ErrStudentNotFound):
		return fmt.Sprintf("Student %s not found", studentNo), false
	case shared.IsStore(err):
		h.log.Error("batch row failed",
			logger.StudentNo(studentNo),
			logger.Term(term),
			logger.Err(err),
		)
		return fmt.Sprintf(reasonProcessingError, "store operation failed"), false
	default:
		if de, ok := shared.AsDomainError(err); ok {
			return fmt.Sprintf(reasonProcessingError, de.Message), false
		}
		return fmt.Sprintf(reasonProcessingError, err), false
	}
}

func (r *BatchResult) fail(row int, reason string) {
	r.Errors = append(r.Errors, RowError{Row: row, Reason: reason})
}
