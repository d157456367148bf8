package main

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/parcela/pkg/clock"
	"github.com/mcclellann/parcela/pkg/format"
	"github.com/mcclellann/parcela/pkg/ledger"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/mcclellann/parcela/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrClientNotFound), errors.Is(err, store.ErrLoanNotFound), errors.Is(err, store.ErrInstallmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidClient), errors.Is(err, ledger.ErrInvalidTerms), errors.Is(err, ledger.ErrInsufficientPayment):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicateCPF), errors.Is(err, ledger.ErrLoanNotActive), errors.Is(err, ledger.ErrAlreadyPaid), errors.Is(err, ledger.ErrInvalidStatus):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func loanIDFrom(r *http.Request) (uuid.UUID, bool) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	return loanID, err == nil
}

func clientIDFrom(r *http.Request) (uuid.UUID, bool) {
	clientID, err := uuid.Parse(mux.Vars(r)["clientId"])
	return clientID, err == nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(v string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, v, time.Local); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

type createLoanRequest struct {
	ClientID          uuid.UUID               `json:"client_id"`
	PrincipalAmount   decimal.Decimal         `json:"principal_amount"`
	InterestRate      decimal.Decimal         `json:"interest_rate"`
	LateInterestRate  *decimal.Decimal        `json:"late_interest_rate"`
	PaymentFrequency  models.PaymentFrequency `json:"payment_frequency"`
	TotalInstallments int                     `json:"total_installments"`
	StartDate         string                  `json:"start_date"`
	Notes             string                  `json:"notes"`
}

// terms converts the request, defaulting the start date to today and the
// late interest rate to the configured one.
func (s *Server) terms(req createLoanRequest) (models.LoanTerms, error) {
	start := clock.StartOfDay(s.ledger.Now())
	if req.StartDate != "" {
		t, err := parseDate(req.StartDate)
		if err != nil {
			return models.LoanTerms{}, err
		}
		start = t
	}

	lateRate := s.defaultLateRate
	if req.LateInterestRate != nil {
		lateRate = *req.LateInterestRate
	}

	return models.LoanTerms{
		ClientID:          req.ClientID,
		PrincipalAmount:   req.PrincipalAmount,
		InterestRate:      req.InterestRate,
		LateInterestRate:  lateRate,
		PaymentFrequency:  req.PaymentFrequency,
		TotalInstallments: req.TotalInstallments,
		StartDate:         start,
		Notes:             req.Notes,
	}, nil
}

func (s *Server) decodeTerms(w http.ResponseWriter, r *http.Request) (models.LoanTerms, bool) {
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return models.LoanTerms{}, false
	}
	terms, err := s.terms(req)
	if err != nil {
		badRequest(w, "Invalid start date")
		return models.LoanTerms{}, false
	}
	return terms, true
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	terms, ok := s.decodeTerms(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.CreateLoan(terms)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	terms, ok := s.decodeTerms(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.Quote(terms)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		badRequest(w, "Invalid loan ID")
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	var (
		loans []*models.Loan
		err   error
	)
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		clientID, perr := uuid.Parse(raw)
		if perr != nil {
			badRequest(w, "Invalid client ID")
			return
		}
		loans, err = s.ledger.GetLoansByClient(clientID)
	} else {
		loans, err = s.ledger.GetAllLoans()
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) clientLoansHandler(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDFrom(r)
	if !ok {
		badRequest(w, "Invalid client ID")
		return
	}

	loans, err := s.ledger.GetLoansByClient(clientID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		badRequest(w, "Invalid loan ID")
		return
	}

	var req ledger.LoanUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Status == nil && req.Notes == nil {
		badRequest(w, "Nothing to update")
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		badRequest(w, "Unknown loan status")
		return
	}

	loan, err := s.ledger.UpdateLoan(loanID, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		badRequest(w, "Invalid loan ID")
		return
	}

	if err := s.ledger.DeleteLoan(loanID); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		badRequest(w, "Invalid loan ID")
		return
	}

	summary, err := s.ledger.Summary(r.Context(), loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		badRequest(w, "Invalid loan ID")
		return
	}

	txs, err := s.ledger.GetTransactions(loanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := loanIDFrom(r)
	if !ok {
		badRequest(w, "Invalid loan ID")
		return
	}
	number, err := strconv.Atoi(mux.Vars(r)["number"])
	if err != nil {
		badRequest(w, "Invalid installment number")
		return
	}

	// An empty body pays the amount currently due.
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}

	if req.Amount.IsNegative() {
		badRequest(w, "Amount must not be negative")
		return
	}

	receipt, err := s.ledger.RecordPayment(loanID, number, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := s.ledger.RefreshInstallments()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Dashboard()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type cpfResponse struct {
	CPF       string `json:"cpf"`
	Valid     bool   `json:"valid"`
	Formatted string `json:"formatted"`
}

func (s *Server) cpfHandler(w http.ResponseWriter, r *http.Request) {
	cpf := mux.Vars(r)["cpf"]
	writeJSON(w, http.StatusOK, cpfResponse{
		CPF:       cpf,
		Valid:     format.ValidateCPF(cpf),
		Formatted: format.FormatCPF(cpf),
	})
}

type clockResponse struct {
	Now       time.Time `json:"now"`
	Simulated bool      `json:"simulated"`
}

func (s *Server) clockState() clockResponse {
	return clockResponse{Now: s.clock.Now(), Simulated: s.clock.IsSimulated()}
}

func (s *Server) getClockHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clockState())
}

func (s *Server) setClockHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	t, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, "Invalid date")
		return
	}

	s.clock.Set(t)
	s.logger.WithField("now", t).Warn("Simulated clock set")
	writeJSON(w, http.StatusOK, s.clockState())
}

func (s *Server) advanceClockHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Days int `json:"days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	now := s.clock.AddDays(req.Days)
	s.logger.WithFields(logrus.Fields{"days": req.Days, "now": now}).Warn("Simulated clock advanced")
	writeJSON(w, http.StatusOK, s.clockState())
}

func (s *Server) resetClockHandler(w http.ResponseWriter, r *http.Request) {
	s.clock.Reset()
	s.logger.Warn("Simulated clock reset")
	writeJSON(w, http.StatusOK, s.clockState())
}
