package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/models"
)

var (
	ErrClientNotFound      = errors.New("client not found")
	ErrDuplicateCPF        = errors.New("a client with this CPF already exists")
	ErrLoanNotFound        = errors.New("loan not found")
	ErrInstallmentNotFound = errors.New("installment not found")
)

// Storage defines the interface for database operations related to clients,
// their loans, installments and transactions.
type Storage interface {
	CreateClient(client *models.Client) error
	GetClient(id uuid.UUID) (*models.Client, error)
	// GetAllClients returns every client ordered by name.
	GetAllClients() ([]*models.Client, error)
	UpdateClient(client *models.Client) error
	// DeleteClient removes the client together with its loans.
	DeleteClient(id uuid.UUID) error

	// CreateLoan stores the loan, loan.Installments and, when non-nil, the
	// disbursement transaction as one unit.
	CreateLoan(loan *models.Loan, disbursement *models.Transaction) error
	// GetLoan returns the loan with its installments ordered by number.
	GetLoan(id uuid.UUID) (*models.Loan, error)
	// UpdateLoan writes the loan row only; installments are untouched.
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)
	GetAllActiveLoans() ([]*models.Loan, error)
	GetLoansByClient(clientID uuid.UUID) ([]*models.Loan, error)

	UpdateInstallment(installment *models.Installment) error
	// SavePayment writes the paid installment, the payment transaction and
	// the loan row together. Either all three are stored or none is.
	SavePayment(installment *models.Installment, payment *models.Transaction, loan *models.Loan) error

	GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error)

	Close() error
}
