package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/accrual"
	"github.com/mcclellann/parcela/pkg/cache"
	"github.com/mcclellann/parcela/pkg/clock"
	"github.com/mcclellann/parcela/pkg/format"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/mcclellann/parcela/pkg/report"
	"github.com/mcclellann/parcela/pkg/schedule"
	"github.com/mcclellann/parcela/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	MinInstallments = 1
	MaxInstallments = 360
)

var (
	MinLoanAmount = decimal.NewFromInt(100)
	MaxLoanAmount = decimal.NewFromInt(1000000)
)

var (
	ErrInvalidClient       = errors.New("invalid client")
	ErrInvalidTerms        = errors.New("invalid loan terms")
	ErrLoanNotActive       = errors.New("loan is not active")
	ErrAlreadyPaid         = errors.New("installment already paid")
	ErrInsufficientPayment = errors.New("payment is less than the amount due")
	ErrInvalidStatus       = errors.New("invalid loan status transition")
)

// Ledger handles the business logic for loans, their installments and
// transactions. It is the caller of the pure schedule/accrual/report code:
// it reads the clock once per operation and serializes payment recording
// with accrual refresh so the two never interleave on an installment.
type Ledger struct {
	storage  store.Storage
	clock    clock.Clock
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *logrus.Logger

	mu sync.Mutex
}

type Option func(*Ledger)

func WithClock(c clock.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithCache enables summary caching.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(l *Ledger) {
		l.cache = c
		l.cacheTTL = ttl
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, opts ...Option) *Ledger {
	l := &Ledger{
		storage: s,
		clock:   clock.Real{},
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now exposes the ledger's notion of the current instant.
func (l *Ledger) Now() time.Time {
	return l.clock.Now()
}

// ValidateTerms enforces the preconditions the schedule generator relies on.
func ValidateTerms(terms models.LoanTerms) error {
	switch {
	case terms.PrincipalAmount.LessThan(MinLoanAmount) || terms.PrincipalAmount.GreaterThan(MaxLoanAmount):
		return fmt.Errorf("%w: principal must be between %s and %s", ErrInvalidTerms, MinLoanAmount, MaxLoanAmount)
	case terms.InterestRate.IsNegative():
		return fmt.Errorf("%w: interest rate must not be negative", ErrInvalidTerms)
	case terms.LateInterestRate.IsNegative():
		return fmt.Errorf("%w: late interest rate must not be negative", ErrInvalidTerms)
	case terms.TotalInstallments < MinInstallments || terms.TotalInstallments > MaxInstallments:
		return fmt.Errorf("%w: installments must be between %d and %d", ErrInvalidTerms, MinInstallments, MaxInstallments)
	case !terms.PaymentFrequency.Valid():
		return fmt.Errorf("%w: unknown payment frequency %q", ErrInvalidTerms, terms.PaymentFrequency)
	case terms.StartDate.IsZero():
		return fmt.Errorf("%w: start date is required", ErrInvalidTerms)
	}
	return nil
}

// Quote derives the loan and schedule for terms without storing anything.
func (l *Ledger) Quote(terms models.LoanTerms) (*models.Loan, error) {
	if err := ValidateTerms(terms); err != nil {
		return nil, err
	}
	terms.StartDate = clock.StartOfDay(terms.StartDate)
	return schedule.NewLoan(terms, l.clock.Now()), nil
}

// CreateLoan validates terms, generates the schedule, and stores the loan
// with a disbursement transaction. The borrower must be a registered client.
func (l *Ledger) CreateLoan(terms models.LoanTerms) (*models.Loan, error) {
	loan, err := l.Quote(terms)
	if err != nil {
		return nil, err
	}

	if _, err := l.storage.GetClient(terms.ClientID); err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			return nil, fmt.Errorf("%w: unknown client %s", ErrInvalidTerms, terms.ClientID)
		}
		return nil, err
	}

	// Record disbursement
	transaction := models.Transaction{
		ID:        uuid.New(),
		LoanID:    loan.ID,
		Amount:    loan.PrincipalAmount,
		Type:      models.TransactionTypeDisbursement,
		Timestamp: loan.CreatedAt,
	}
	if err := l.storage.CreateLoan(loan, &transaction); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"loan_id":      loan.ID,
		"client_id":    loan.ClientID,
		"principal":    format.FormatCurrency(loan.PrincipalAmount),
		"total":        format.FormatCurrency(loan.TotalAmount),
		"installments": loan.TotalInstallments,
		"frequency":    loan.PaymentFrequency,
	}).Info("Loan created")

	return loan, nil
}

// accrues reports whether installments of a loan in this status keep
// accruing late interest.
func accrues(status models.LoanStatus) bool {
	return status == models.LoanActive
}

// applyAccrual refreshes every installment of loan in memory as of now.
func applyAccrual(loan *models.Loan, now time.Time) {
	if !accrues(loan.Status) {
		return
	}
	for i := range loan.Installments {
		loan.Installments[i] = accrual.UpdateInstallmentWithLateInterest(loan.Installments[i], loan.LateInterestRate, now)
	}
}

// GetLoan retrieves a loan by its ID with installments accrued as of now.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	applyAccrual(loan, l.clock.Now())
	return loan, nil
}

// GetAllLoans retrieves all loans, accrued as of now.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	loans, err := l.storage.GetAllLoans()
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	for _, loan := range loans {
		applyAccrual(loan, now)
	}
	return loans, nil
}

// GetLoansByClient retrieves one client's loans, accrued as of now.
func (l *Ledger) GetLoansByClient(clientID uuid.UUID) ([]*models.Loan, error) {
	if _, err := l.storage.GetClient(clientID); err != nil {
		return nil, err
	}
	loans, err := l.storage.GetLoansByClient(clientID)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	for _, loan := range loans {
		applyAccrual(loan, now)
	}
	return loans, nil
}

// GetTransactions lists the money movements of a loan.
func (l *Ledger) GetTransactions(loanID uuid.UUID) ([]*models.Transaction, error) {
	if _, err := l.storage.GetLoan(loanID); err != nil {
		return nil, err
	}
	return l.storage.GetTransactionsForLoan(loanID)
}

// RefreshInstallments iterates through all active loans and persists the
// status and late interest of every unpaid installment whose values changed.
// It returns how many installments were written.
func (l *Ledger) RefreshInstallments() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loans, err := l.storage.GetAllActiveLoans()
	if err != nil {
		return 0, fmt.Errorf("failed to get active loans: %w", err)
	}

	now := l.clock.Now()
	updated := 0
	for _, loan := range loans {
		for _, inst := range loan.Installments {
			if inst.Status == models.InstallmentPaid {
				continue
			}
			next := accrual.UpdateInstallmentWithLateInterest(inst, loan.LateInterestRate, now)
			if next.Status == inst.Status && next.TotalAmount.Equal(inst.TotalAmount) {
				continue
			}
			if err := l.storage.UpdateInstallment(&next); err != nil {
				l.logger.WithError(err).WithFields(logrus.Fields{
					"loan_id":     loan.ID,
					"installment": inst.InstallmentNumber,
				}).Error("Failed to update installment during refresh")
				continue
			}
			updated++

			if next.Status != inst.Status {
				l.logger.WithFields(logrus.Fields{
					"loan_id":     loan.ID,
					"installment": next.InstallmentNumber,
					"from":        inst.Status,
					"to":          next.Status,
				}).Info("Installment status changed")
			}
			l.logger.WithFields(logrus.Fields{
				"loan_id":     loan.ID,
				"installment": next.InstallmentNumber,
				"interest":    next.InterestAmount.StringFixed(2),
				"total":       next.TotalAmount.StringFixed(2),
			}).Debug("Accrued late interest")
		}
	}
	return updated, nil
}

// Receipt is the outcome of a recorded payment.
type Receipt struct {
	Installment models.Installment `json:"installment"`
	Transaction models.Transaction `json:"transaction"`
	LoanStatus  models.LoanStatus  `json:"loan_status"`
}

// RecordPayment pays installment number of a loan in full. A zero amount
// pays exactly what is due now; anything less than that is rejected. When
// the last open installment is paid the loan is completed.
func (l *Ledger) RecordPayment(loanID uuid.UUID, number int, amount decimal.Decimal) (*Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}

	if loan.Status != models.LoanActive {
		return nil, ErrLoanNotActive
	}

	idx := -1
	for i := range loan.Installments {
		if loan.Installments[i].InstallmentNumber == number {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("installment %d of loan %s: %w", number, loanID, store.ErrInstallmentNotFound)
	}

	inst := loan.Installments[idx]
	if inst.Status == models.InstallmentPaid {
		return nil, ErrAlreadyPaid
	}

	now := l.clock.Now()
	current := accrual.UpdateInstallmentWithLateInterest(inst, loan.LateInterestRate, now)
	if amount.IsZero() {
		amount = current.TotalAmount
	}
	if amount.LessThan(current.TotalAmount) {
		return nil, fmt.Errorf("%w: due %s, offered %s", ErrInsufficientPayment, current.TotalAmount.StringFixed(2), amount.StringFixed(2))
	}

	paid := accrual.MarkPaid(current, amount, now)
	loan.Installments[idx] = paid

	transaction := models.Transaction{
		ID:            uuid.New(),
		LoanID:        loan.ID,
		InstallmentID: &paid.ID,
		Amount:        amount,
		Type:          models.TransactionTypePayment,
		Timestamp:     now,
	}

	// If every installment is paid, complete the loan
	if countUnpaid(loan.Installments) == 0 {
		loan.Status = models.LoanCompleted
	}
	loan.UpdatedAt = now
	if err := l.storage.SavePayment(&paid, &transaction, loan); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"installment": paid.InstallmentNumber,
		"amount":      format.FormatCurrency(amount),
		"interest":    paid.InterestAmount.StringFixed(2),
		"loan_status": loan.Status,
	}).Info("Payment recorded")

	return &Receipt{Installment: paid, Transaction: transaction, LoanStatus: loan.Status}, nil
}

func countUnpaid(installments []models.Installment) int {
	n := 0
	for _, inst := range installments {
		if inst.Status != models.InstallmentPaid {
			n++
		}
	}
	return n
}

var allowedTransitions = map[models.LoanStatus][]models.LoanStatus{
	models.LoanActive:    {models.LoanDefaulted, models.LoanCancelled},
	models.LoanDefaulted: {models.LoanActive, models.LoanCancelled},
}

// LoanUpdate lists the loan fields a caller may change. Nil fields are left
// alone.
type LoanUpdate struct {
	Status *models.LoanStatus `json:"status,omitempty"`
	Notes  *string            `json:"notes,omitempty"`
}

// UpdateLoan applies u to a loan as one write. A status change moves the loan
// between ACTIVE, DEFAULTED and CANCELLED; COMPLETED is reached only through
// payments, and COMPLETED and CANCELLED are final. An invalid transition
// rejects the whole update.
func (l *Ledger) UpdateLoan(id uuid.UUID, u LoanUpdate) (*models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}

	from := loan.Status
	if u.Status != nil && *u.Status != from {
		if !transitionAllowed(from, *u.Status) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatus, from, *u.Status)
		}
		loan.Status = *u.Status
	}
	if u.Notes != nil {
		loan.Notes = *u.Notes
	}

	now := l.clock.Now()
	if loan.Status == from && u.Notes == nil {
		applyAccrual(loan, now)
		return loan, nil
	}

	loan.UpdatedAt = now
	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, err
	}

	if loan.Status != from {
		l.logger.WithFields(logrus.Fields{"loan_id": id, "from": from, "to": loan.Status}).Info("Loan status changed")
	}
	applyAccrual(loan, now)
	return loan, nil
}

func transitionAllowed(from, to models.LoanStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SetLoanStatus changes only the status of a loan.
func (l *Ledger) SetLoanStatus(id uuid.UUID, status models.LoanStatus) (*models.Loan, error) {
	return l.UpdateLoan(id, LoanUpdate{Status: &status})
}

// UpdateNotes replaces the free-text notes of a loan.
func (l *Ledger) UpdateNotes(id uuid.UUID, notes string) (*models.Loan, error) {
	return l.UpdateLoan(id, LoanUpdate{Notes: &notes})
}

// DeleteLoan deletes a loan with its schedule and transactions.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.storage.DeleteLoan(id); err != nil {
		return err
	}
	l.logger.WithField("loan_id", id).Info("Loan deleted")
	return nil
}

// Summary reports on a loan as of now. When a cache is configured, results
// are cached per loan version and accrual state, so a cached summary is
// reused only while every installment's status and late days are unchanged.
func (l *Ledger) Summary(ctx context.Context, id uuid.UUID) (*report.Summary, error) {
	loan, err := l.storage.GetLoan(id)
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	applyAccrual(loan, now)

	overdue, daysLate := accrualState(loan, now)
	key := fmt.Sprintf("summary:%s:%d:%d:%d", loan.ID, loan.UpdatedAt.UnixNano(), overdue, daysLate)
	if l.cache != nil {
		if cached, ok, err := l.cache.Get(ctx, key); err != nil {
			l.logger.WithError(err).Warn("Summary cache read failed")
		} else if ok {
			var s report.Summary
			if err := json.Unmarshal([]byte(cached), &s); err == nil {
				s.AsOf = now
				return &s, nil
			}
		}
	}

	s := report.Summarize(loan, now)

	if l.cache != nil {
		if raw, err := json.Marshal(s); err == nil {
			if err := l.cache.Set(ctx, key, string(raw), l.cacheTTL); err != nil {
				l.logger.WithError(err).Warn("Summary cache write failed")
			}
		}
	}
	return &s, nil
}

// accrualState condenses an accrued loan into the count of overdue
// installments and their summed days late. For a fixed loan version both only
// move when some installment's status or interest does.
func accrualState(loan *models.Loan, now time.Time) (overdue, daysLate int) {
	for _, inst := range loan.Installments {
		if inst.Status != models.InstallmentOverdue {
			continue
		}
		overdue++
		if accrues(loan.Status) {
			daysLate += accrual.DaysLate(inst.DueDate, now)
		}
	}
	return overdue, daysLate
}

// Dashboard aggregates every loan as of now.
func (l *Ledger) Dashboard() (*report.DashboardStats, error) {
	loans, err := l.storage.GetAllLoans()
	if err != nil {
		return nil, err
	}
	clients, err := l.storage.GetAllClients()
	if err != nil {
		return nil, err
	}
	now := l.clock.Now()
	for _, loan := range loans {
		applyAccrual(loan, now)
	}
	stats := report.Dashboard(loans, len(clients), now)
	return &stats, nil
}
