package http

import (
	"net/http"

	"github.com/campus-finance/tuition-hub/internal/application/command"
	"github.com/campus-finance/tuition-hub/internal/application/query"
	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		})
		return
	}
	status := s.deps.Health.Report(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		status := s.deps.Health.Report(r.Context())
		if !status.Ready {
			writeAPIError(w, r, http.StatusServiceUnavailable, "NOT_READY", status.Message, nil)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC QUERY
// ══════════════════════════════════════════════════════════════════════════════

// handleQueryTuition handles GET /api/v1/tuition/query/{studentNo}. The call
// is counted against the student's daily quota before the ledger is read.
func (s *Server) handleQueryTuition(w http.ResponseWriter, r *http.Request) {
	studentNo := r.PathValue("studentNo")

	if s.deps.Limiter != nil {
		d, err := s.deps.Limiter.Allow(r.Context(), studentNo, s.config.RateLimitEndpoint)
		if err != nil {
			writeError(w, r, err)
			return
		}
		setRateLimitHeaders(w, d)
	}

	s.writeBalance(w, r, studentNo)
}

// ══════════════════════════════════════════════════════════════════════════════
// BANKING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleBankingTuition(w http.ResponseWriter, r *http.Request) {
	s.writeBalance(w, r, r.PathValue("studentNo"))
}

func (s *Server) writeBalance(w http.ResponseWriter, r *http.Request, studentNo string) {
	dto, err := s.deps.GetBalance.Handle(r.Context(), query.GetBalanceQuery{StudentNo: studentNo})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type paymentRequest struct {
	StudentNo string       `json:"studentNo"`
	Term      string       `json:"term"`
	Amount    shared.Money `json:"amount"`
}

type paymentResponse struct {
	Status               string         `json:"status"`
	TuitionStatus        tuition.Status `json:"tuitionStatus"`
	RemainingBalance     shared.Money   `json:"remainingBalance"`
	TransactionReference string         `json:"transactionReference"`
	Message              string         `json:"message"`
}

// handlePay handles POST /api/v1/banking/pay.
func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.deps.ApplyPayment.Handle(r.Context(), command.ApplyPaymentCommand{
		StudentNo: req.StudentNo,
		Term:      req.Term,
		Amount:    req.Amount,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, paymentResponse{
		Status:               res.Status,
		TuitionStatus:        res.EntryStatus,
		RemainingBalance:     res.RemainingBalance,
		TransactionReference: res.Reference,
		Message:              res.Message,
	})
}

// handlePayments handles GET /api/v1/banking/payments/{studentNo}/{term}.
func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetPayments.Handle(r.Context(), query.GetPaymentsQuery{
		StudentNo: r.PathValue("studentNo"),
		Term:      r.PathValue("term"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}
