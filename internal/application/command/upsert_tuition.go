// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
	"github.com/campus-finance/tuition-hub/pkg/logger"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPSERT TUITION COMMAND
// Creates a ledger entry for (student, term) or re-quotes the existing one.
// Used by the admin single-add path and, row by row, by the batch importer.
// ══════════════════════════════════════════════════════════════════════════════

// UpsertTuitionCommand contains the data to create or re-quote an entry.
type UpsertTuitionCommand struct {
	StudentNo string
	Term      string
	Total     shared.Money
}

// Validate validates the command.
func (c UpsertTuitionCommand) Validate() error {
	if _, err := tuition.NewKey(c.StudentNo, c.Term); err != nil {
		return err
	}
	if !c.Total.IsPositive() {
		return tuition.ErrInvalidTotal
	}
	return nil
}

// UpsertTuitionResult contains the entry after the write.
type UpsertTuitionResult struct {
	Entry *tuition.Entry

	// Created is false when an existing entry was re-quoted.
	Created bool

	// StudentCreated is true when a placeholder student was synthesised.
	StudentCreated bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpsertTuitionHandler handles the UpsertTuitionCommand.
type UpsertTuitionHandler struct {
	students student.Repository
	ledger   tuition.Repository
	log      *logger.Logger
	clock    timeutil.Clock

	autoCreate bool
}

// UpsertTuitionHandlerConfig contains configuration for the handler.
type UpsertTuitionHandlerConfig struct {
	// AutoCreateStudents synthesises a placeholder student for unknown numbers.
	AutoCreateStudents bool
	Clock              timeutil.Clock
}

// NewUpsertTuitionHandler creates a new UpsertTuitionHandler.
func NewUpsertTuitionHandler(
	students student.Repository,
	ledger tuition.Repository,
	log *logger.Logger,
	config UpsertTuitionHandlerConfig,
) *UpsertTuitionHandler {
	if log == nil {
		log = logger.Nop()
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	return &UpsertTuitionHandler{
		students:   students,
		ledger:     ledger,
		log:        log.With(logger.Component("upsert_tuition")),
		clock:      config.Clock,
		autoCreate: config.AutoCreateStudents,
	}
}

// Handle executes the upsert with the handler's student policy.
func (h *UpsertTuitionHandler) Handle(ctx context.Context, cmd UpsertTuitionCommand) (*UpsertTuitionResult, error) {
	return h.upsert(ctx, cmd, h.autoCreate)
}

func (h *UpsertTuitionHandler) upsert(ctx context.Context, cmd UpsertTuitionCommand, autoCreate bool) (*UpsertTuitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	key, _ := tuition.NewKey(cmd.StudentNo, cmd.Term)

	exists, err := h.students.Exists(ctx, key.StudentNo)
	if err != nil {
		return nil, asStoreError("Upsert", err)
	}

	now := h.clock()
	var placeholder *student.Student
	if !exists {
		if !autoCreate {
			return nil, student.NotFound(key.StudentNo)
		}
		placeholder, err = student.NewPlaceholder(key.StudentNo, now)
		if err != nil {
			return nil, err
		}
	}

	result := &UpsertTuitionResult{}
	err = h.ledger.Mutate(ctx, key, func(current *tuition.Entry) (*tuition.Change, error) {
		change := &tuition.Change{Student: placeholder}
		if current == nil {
			entry, err := tuition.NewEntry(key, cmd.Total, now)
			if err != nil {
				return nil, err
			}
			change.Entry = entry
			change.Created = true
		} else {
			if err := current.Requote(cmd.Total, now); err != nil {
				return nil, err
			}
			change.Entry = current
		}
		result.Entry = change.Entry.Clone()
		result.Created = change.Created
		return change, nil
	})
	if err != nil {
		return nil, asStoreError("Upsert", err)
	}
	result.StudentCreated = placeholder != nil

	h.log.Info("tuition upserted",
		logger.StudentNo(key.StudentNo),
		logger.Term(key.Term),
		logger.Amount(cmd.Total),
		logger.Bool("created", result.Created),
		logger.Bool("student_created", result.StudentCreated),
	)
	return result, nil
}

// asStoreError wraps errors that are neither domain errors nor context
// errors as store failures.
func asStoreError(op string, err error) error {
	if _, ok := shared.AsDomainError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.StoreError("tuition", op, err)
}
