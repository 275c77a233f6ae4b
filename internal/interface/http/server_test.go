package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-finance/tuition-hub/internal/application/command"
	"github.com/campus-finance/tuition-hub/internal/application/query"
	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence/memory"
	"github.com/campus-finance/tuition-hub/pkg/logger"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

var testNow = time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"requestId"`
}

func newTestServer(t *testing.T, config Config) http.Handler {
	t.Helper()
	clock := timeutil.Fixed(testNow)
	students := memory.NewStudentStore()
	ledger := memory.NewTuitionStore(students)

	upsert := command.NewUpsertTuitionHandler(students, ledger, nil, command.UpsertTuitionHandlerConfig{
		AutoCreateStudents: true,
		Clock:              clock,
	})
	deps := Dependencies{
		UpsertTuition:   upsert,
		ApplyPayment:    command.NewApplyPaymentHandler(ledger, nil, command.WithPaymentClock(clock)),
		ImportBatch:     command.NewImportBatchHandler(upsert, true, nil),
		GetBalance:      query.NewGetBalanceHandler(students, ledger, query.BalanceLatest),
		ListOutstanding: query.NewListOutstandingHandler(ledger),
		GetPayments:     query.NewGetPaymentsHandler(ledger),
		Limiter:         ratelimit.NewLimiter(memory.NewRateLimitStore(), 3, ratelimit.WithClock(clock)),
		Logger:          logger.Nop(),
	}
	return NewServer(config, deps).Handler()
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func postJSON(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return do(t, h, http.MethodPost, path, "application/json", []byte(body))
}

func addTuition(t *testing.T, h http.Handler, no, term, amount string) {
	t.Helper()
	rec, _ := postJSON(t, h, "/api/v1/admin/tuition",
		`{"studentNo":"`+no+`","term":"`+term+`","amount":`+amount+`}`)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rec.Code)
}

func multipartCSV(t *testing.T, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

// ─── Public query ───

func TestQueryTuition_DailyLimit(t *testing.T) {
	h := newTestServer(t, DefaultConfig())
	addTuition(t, h, "S1", "2024-Fall", "1500")

	for i := 1; i <= 3; i++ {
		rec, env := do(t, h, http.MethodGet, "/api/v1/tuition/query/S1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, "call %d", i)
		assert.True(t, env.Success)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec, env := do(t, h, http.MethodGet, "/api/v1/tuition/query/S1", "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
	assert.Equal(t, "Daily query limit exceeded. Please try again tomorrow.", env.Error.Message)
	assert.Equal(t, "S1", env.Error.Details["studentNo"])
	assert.EqualValues(t, 3, env.Error.Details["callsToday"])
	assert.EqualValues(t, 3, env.Error.Details["maxAllowed"])

	reset := timeutil.FormatReset(time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, reset, env.Error.Details["resetTime"])
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, reset, rec.Header().Get("X-RateLimit-Reset"))

	// Other students and the banking lookup are not affected.
	addTuition(t, h, "S2", "2024-Fall", "800")
	rec, _ = do(t, h, http.MethodGet, "/api/v1/tuition/query/S2", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/v1/banking/tuition/S1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryTuition_UnknownStudent(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	rec, env := do(t, h, http.MethodGet, "/api/v1/tuition/query/NOPE", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "STUDENT_NOT_FOUND", env.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), env.RequestID)
}

func TestBankingTuition_Balance(t *testing.T) {
	h := newTestServer(t, DefaultConfig())
	addTuition(t, h, "S1", "2024-Spring", "1000")
	addTuition(t, h, "S1", "2024-Fall", "1500")

	rec, env := do(t, h, http.MethodGet, "/api/v1/banking/tuition/S1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var dto query.BalanceDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "S1", dto.StudentNo)
	assert.Equal(t, 2, dto.Terms)
	assert.Equal(t, "UNPAID", string(dto.Status))
}

// ─── Payments ───

func TestPay_SuccessThenOverpay(t *testing.T) {
	h := newTestServer(t, DefaultConfig())
	addTuition(t, h, "S1", "2024-Fall", "1500")

	rec, env := postJSON(t, h, "/api/v1/banking/pay", `{"studentNo":"S1","term":"2024-Fall","amount":500}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Status               string  `json:"status"`
		TuitionStatus        string  `json:"tuitionStatus"`
		RemainingBalance     float64 `json:"remainingBalance"`
		TransactionReference string  `json:"transactionReference"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "Successful", res.Status)
	assert.Equal(t, "PARTIAL", res.TuitionStatus)
	assert.InDelta(t, 1000, res.RemainingBalance, 0.001)
	assert.NotEmpty(t, res.TransactionReference)

	rec, env = postJSON(t, h, "/api/v1/banking/pay", `{"studentNo":"S1","term":"2024-Fall","amount":1500.01}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EXCEEDS_BALANCE", env.Error.Code)
	assert.NotNil(t, env.Error.Details["balance"])

	rec, env = do(t, h, http.MethodGet, "/api/v1/banking/payments/S1/2024-Fall", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist query.PaymentHistoryDTO
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	require.Len(t, hist.Payments, 1)
	assert.Equal(t, res.TransactionReference, hist.Payments[0].Reference)
}

func TestPay_Errors(t *testing.T) {
	h := newTestServer(t, DefaultConfig())
	addTuition(t, h, "S1", "2024-Fall", "100")

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed json", `{"studentNo":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"non-numeric amount", `{"studentNo":"S1","term":"2024-Fall","amount":"abc"}`, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"zero amount", `{"studentNo":"S1","term":"2024-Fall","amount":0}`, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"huge exponent", `{"studentNo":"S1","term":"2024-Fall","amount":1e999999999}`, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"unknown term", `{"studentNo":"S1","term":"2030-Fall","amount":10}`, http.StatusNotFound, "TUITION_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := postJSON(t, h, "/api/v1/banking/pay", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}

	_, _ = postJSON(t, h, "/api/v1/banking/pay", `{"studentNo":"S1","term":"2024-Fall","amount":100}`)
	rec, env := postJSON(t, h, "/api/v1/banking/pay", `{"studentNo":"S1","term":"2024-Fall","amount":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_PAID", env.Error.Code)
}

func TestPay_BodyTooLarge(t *testing.T) {
	config := DefaultConfig()
	config.MaxRequestBytes = 32
	h := newTestServer(t, config)

	body := `{"studentNo":"` + strings.Repeat("x", 64) + `","term":"T","amount":1}`
	rec, env := postJSON(t, h, "/api/v1/banking/pay", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", env.Error.Code)
}

// ─── Admin ───

func TestAddTuition_CreateThenUpdate(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	rec, env := postJSON(t, h, "/api/v1/admin/tuition", `{"studentNo":"S1","term":"2024-Fall","amount":1500}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Created bool   `json:"created"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.True(t, created.Created)
	assert.Equal(t, "UNPAID", created.Status)

	rec, env = postJSON(t, h, "/api/v1/admin/tuition", `{"studentNo":"S1","term":"2024-Fall","amount":2000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated struct {
		Created bool    `json:"created"`
		Total   float64 `json:"tuitionTotal"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.False(t, updated.Created)
	assert.InDelta(t, 2000, updated.Total, 0.001)

	rec, env = postJSON(t, h, "/api/v1/admin/tuition", `{"studentNo":"","term":"2024-Fall","amount":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STUDENT_NO", env.Error.Code)
}

func TestBatchUpload_Multipart(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	csv := "studentNo,term,amount\nS1,2024-Fall,1500\nS2,2024-Fall,abc\n\nS3,2024-Fall,900\n"
	body, contentType := multipartCSV(t, "fees.csv", csv)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/tuition/batch", contentType, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Status       string             `json:"status"`
		SuccessCount int                `json:"successCount"`
		ErrorCount   int                `json:"errorCount"`
		Errors       []command.RowError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, command.BatchStatusPartialSuccess, res.Status)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.ErrorCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/banking/tuition/S3", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchUpload_RawBody(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/tuition/batch", "text/csv",
		[]byte("Amount,StudentNo,Term\n100,S1,2024-Fall\n"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res batchResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, command.BatchStatusSuccess, res.Status)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Empty(t, res.Errors)
}

func TestBatchUpload_Rejected(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	body, contentType := multipartCSV(t, "fees.xlsx", "studentNo,term,amount\n")
	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/tuition/batch", contentType, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FILE", env.Error.Code)
	assert.Equal(t, "file must be a CSV file", env.Error.Message)

	rec, env = do(t, h, http.MethodPost, "/api/v1/admin/tuition/batch", "text/csv", []byte("studentNo,term\nS1,T\n"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FILE", env.Error.Code)
	assert.Contains(t, env.Error.Message, "amount")

	rec, env = do(t, h, http.MethodPost, "/api/v1/admin/tuition/batch", "application/json", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_FILE", env.Error.Code)
}

func TestBatchUpload_TooLarge(t *testing.T) {
	config := DefaultConfig()
	config.MaxUploadBytes = 16
	h := newTestServer(t, config)

	rec, env := do(t, h, http.MethodPost, "/api/v1/admin/tuition/batch", "text/csv",
		[]byte("studentNo,term,amount\nS1,2024-Fall,100\n"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE_TOO_LARGE", env.Error.Code)
}

func TestUnpaid_Pagination(t *testing.T) {
	h := newTestServer(t, DefaultConfig())
	for _, no := range []string{"S1", "S2", "S3"} {
		addTuition(t, h, no, "2024-Fall", "100")
	}
	_, _ = postJSON(t, h, "/api/v1/banking/pay", `{"studentNo":"S2","term":"2024-Fall","amount":100}`)

	rec, env := do(t, h, http.MethodGet, "/api/v1/admin/unpaid/2024-Fall?page=1&pageSize=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list query.OutstandingListDTO
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list.Items, 1)
	assert.Equal(t, 2, list.Pagination.TotalCount)
	assert.Equal(t, 2, list.Pagination.TotalPages)

	rec, env = do(t, h, http.MethodGet, "/api/v1/admin/unpaid/2030-Fall", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list.Items)
	assert.Equal(t, 0, list.Pagination.TotalCount)
}

func TestHealth_WithoutChecker(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	rec, env := do(t, h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
