package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/campus-finance/tuition-hub/internal/application/command"
	"github.com/campus-finance/tuition-hub/internal/application/query"
	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
	"github.com/campus-finance/tuition-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SINGLE ADD
// ══════════════════════════════════════════════════════════════════════════════

type addTuitionRequest struct {
	StudentNo string       `json:"studentNo"`
	Term      string       `json:"term"`
	Amount    shared.Money `json:"amount"`
}

type tuitionResponse struct {
	StudentNo string         `json:"studentNo"`
	Term      string         `json:"term"`
	Total     shared.Money   `json:"tuitionTotal"`
	Paid      shared.Money   `json:"paidAmount"`
	Balance   shared.Money   `json:"balance"`
	Status    tuition.Status `json:"status"`
	Created   bool           `json:"created"`
}

// handleAddTuition handles POST /api/v1/admin/tuition: 201 on create,
// 200 on re-quote.
func (s *Server) handleAddTuition(w http.ResponseWriter, r *http.Request) {
	var req addTuitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.UpsertTuition.Handle(r.Context(), command.UpsertTuitionCommand{
		StudentNo: req.StudentNo,
		Term:      req.Term,
		Total:     req.Amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	e := res.Entry
	writeJSON(w, r, status, tuitionResponse{
		StudentNo: e.StudentNo,
		Term:      e.Term,
		Total:     e.Total,
		Paid:      e.Paid,
		Balance:   e.Balance(),
		Status:    e.Status(),
		Created:   res.Created,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH UPLOAD
// ══════════════════════════════════════════════════════════════════════════════

type batchResponse struct {
	Status       string             `json:"status"`
	SuccessCount int                `json:"successCount"`
	ErrorCount   int                `json:"errorCount"`
	Errors       []command.RowError `json:"errors"`
}

// handleBatchUpload handles POST /api/v1/admin/tuition/batch. It accepts a
// multipart form with a "file" part or a raw text/csv body.
func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.config.MaxUploadBytes
	if r.ContentLength > limit {
		writeAPIError(w, r, http.StatusRequestEntityTooLarge, codeFileTooLarge, "File size exceeds upload limit", nil)
		return
	}
	// Multipart framing adds a little on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, limit+64<<10)

	body, closeBody, err := s.openUpload(r, limit)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, errFileTooLarge) {
			writeAPIError(w, r, http.StatusRequestEntityTooLarge, codeFileTooLarge, "File size exceeds upload limit", nil)
			return
		}
		writeAPIError(w, r, http.StatusBadRequest, codeInvalidFile, err.Error(), nil)
		return
	}
	defer closeBody()

	src, err := newCSVRowSource(body)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, codeInvalidFile, err.Error(), nil)
		return
	}

	res, err := s.deps.ImportBatch.Handle(r.Context(), src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, r, http.StatusRequestEntityTooLarge, codeFileTooLarge, "File size exceeds upload limit", nil)
			return
		}
		logger.FromContext(r.Context()).Warn("batch import interrupted",
			logger.Int("success_count", res.SuccessCount),
			logger.Err(err),
		)
		writeError(w, r, err)
		return
	}

	errs := res.Errors
	if errs == nil {
		errs = []command.RowError{}
	}
	writeJSON(w, r, http.StatusOK, batchResponse{
		Status:       res.Status(),
		SuccessCount: res.SuccessCount,
		ErrorCount:   res.ErrorCount(),
		Errors:       errs,
	})
}

var (
	errFileTooLarge = errors.New("file size exceeds upload limit")
	errNotCSV       = errors.New("file must be a CSV file")
	errNoFile       = errors.New("no file uploaded")
)

// openUpload returns the CSV payload of the request.
func (s *Server) openUpload(r *http.Request, limit int64) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, nil, err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, nil, errNoFile
		}
		cleanup := func() {
			file.Close()
			_ = r.MultipartForm.RemoveAll()
		}
		if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
			cleanup()
			return nil, nil, errNotCSV
		}
		if header.Size > limit {
			cleanup()
			return nil, nil, errFileTooLarge
		}
		return file, cleanup, nil

	case "text/csv", "application/csv":
		return r.Body, func() {}, nil

	default:
		return nil, nil, errNotCSV
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// UNPAID LIST
// ══════════════════════════════════════════════════════════════════════════════

// handleUnpaid handles GET /api/v1/admin/unpaid/{term}?page=&pageSize=.
func (s *Server) handleUnpaid(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.ListOutstanding.Handle(r.Context(), query.ListOutstandingQuery{
		Term:     r.PathValue("term"),
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "pageSize", tuition.DefaultPageSize),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}
