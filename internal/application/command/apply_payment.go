package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
	"github.com/campus-finance/tuition-hub/pkg/logger"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY PAYMENT COMMAND
// Applies one payment to one ledger entry. There is no pending state and no
// internal retry: a payment is either fully applied or rejected.
// ══════════════════════════════════════════════════════════════════════════════

const (
	msgFullyPaid      = "Payment completed. Tuition fully paid."
	msgPartialPayment = "Partial payment processed. Remaining balance: %s"
)

// ApplyPaymentCommand contains the payment to apply.
type ApplyPaymentCommand struct {
	StudentNo string
	Term      string
	Amount    shared.Money
}

// ApplyPaymentResult describes the applied payment.
type ApplyPaymentResult struct {
	// Status of the payment itself, always "Successful".
	Status string

	EntryStatus      tuition.Status
	RemainingBalance shared.Money
	Reference        string
	Message          string
	Payment          *tuition.Payment
}

// ReferenceFunc generates payment references.
type ReferenceFunc func() string

// NewReference returns 16 upper-case hex characters from a random UUID.
func NewReference() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ApplyPaymentHandler handles the ApplyPaymentCommand.
type ApplyPaymentHandler struct {
	ledger    tuition.Repository
	log       *logger.Logger
	clock     timeutil.Clock
	reference ReferenceFunc
}

// ApplyPaymentOption configures the handler.
type ApplyPaymentOption func(*ApplyPaymentHandler)

// WithPaymentClock overrides the time source.
func WithPaymentClock(c timeutil.Clock) ApplyPaymentOption {
	return func(h *ApplyPaymentHandler) { h.clock = c }
}

// WithReferenceFunc overrides reference generation.
func WithReferenceFunc(fn ReferenceFunc) ApplyPaymentOption {
	return func(h *ApplyPaymentHandler) { h.reference = fn }
}

// NewApplyPaymentHandler creates a new ApplyPaymentHandler.
func NewApplyPaymentHandler(ledger tuition.Repository, log *logger.Logger, opts ...ApplyPaymentOption) *ApplyPaymentHandler {
	if log == nil {
		log = logger.Nop()
	}
	h := &ApplyPaymentHandler{
		ledger:    ledger,
		log:       log.With(logger.Component("apply_payment")),
		clock:     timeutil.SystemClock,
		reference: NewReference,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle applies the payment. A blank studentNo or term is rejected first
// with INVALID_STUDENT_NO or INVALID_TERM, before any lookup. For a
// well-formed key the checks run in order and the first failure wins:
// entry exists, amount positive, entry not paid, amount within balance.
func (h *ApplyPaymentHandler) Handle(ctx context.Context, cmd ApplyPaymentCommand) (*ApplyPaymentResult, error) {
	key, err := tuition.NewKey(cmd.StudentNo, cmd.Term)
	if err != nil {
		return nil, err
	}

	var result *ApplyPaymentResult
	err = h.ledger.Mutate(ctx, key, func(current *tuition.Entry) (*tuition.Change, error) {
		if current == nil {
			return nil, tuition.ErrTuitionNotFound.WithDetails(map[string]any{
				"studentNo": key.StudentNo,
				"term":      key.Term,
			})
		}
		payment, err := current.ApplyPayment(cmd.Amount, h.reference(), h.clock())
		if err != nil {
			return nil, err
		}

		result = &ApplyPaymentResult{
			Status:           payment.Status,
			EntryStatus:      current.Status(),
			RemainingBalance: current.Balance(),
			Reference:        payment.Reference,
			Payment:          payment,
		}
		return &tuition.Change{Entry: current, Payment: payment}, nil
	})
	if err != nil {
		if shared.IsConflict(err) || shared.IsValidation(err) {
			h.log.Warn("payment rejected",
				logger.StudentNo(key.StudentNo),
				logger.Term(key.Term),
				logger.Amount(cmd.Amount),
				logger.String("code", shared.CodeOf(err)),
			)
		}
		return nil, asStoreError("ApplyPayment", err)
	}

	if result.EntryStatus == tuition.StatusPaid {
		result.Message = msgFullyPaid
	} else {
		result.Message = fmt.Sprintf(msgPartialPayment, result.RemainingBalance)
	}

	h.log.Info("payment applied",
		logger.StudentNo(key.StudentNo),
		logger.Term(key.Term),
		logger.Amount(cmd.Amount),
		logger.Reference(result.Reference),
		logger.String("entry_status", result.EntryStatus.String()),
	)
	return result, nil
}
