package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentFrequency string

const (
	FrequencyDaily   PaymentFrequency = "DAILY"
	FrequencyWeekly  PaymentFrequency = "WEEKLY"
	FrequencyMonthly PaymentFrequency = "MONTHLY"
)

// Valid reports whether f is one of the supported frequencies.
func (f PaymentFrequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
	InstallmentPaid    InstallmentStatus = "PAID"
)

type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanCompleted LoanStatus = "COMPLETED"
	LoanDefaulted LoanStatus = "DEFAULTED"
	LoanCancelled LoanStatus = "CANCELLED"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanCompleted, LoanDefaulted, LoanCancelled:
		return true
	}
	return false
}

type ClientScore string

const (
	ScoreGood      ClientScore = "GOOD"
	ScoreRegular   ClientScore = "REGULAR"
	ScoreDefaulter ClientScore = "DEFAULTER"
)

func (s ClientScore) Valid() bool {
	switch s {
	case ScoreGood, ScoreRegular, ScoreDefaulter:
		return true
	}
	return false
}

type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code"`
}

// Client is a borrower. CPF is stored formatted (000.000.000-00) and is
// unique across clients.
type Client struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	CPF       string      `json:"cpf"`
	Phone     string      `json:"phone"`
	WhatsApp  string      `json:"whatsapp"`
	Address   Address     `json:"address"`
	PhotoURI  string      `json:"photo_uri,omitempty"`
	Score     ClientScore `json:"score"`
	Notes     string      `json:"notes,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// LoanTerms are the caller-supplied inputs a schedule is derived from.
// Rates are percentages: InterestRate is applied once over the whole term,
// LateInterestRate is charged per day late.
type LoanTerms struct {
	ClientID          uuid.UUID        `json:"client_id"`
	PrincipalAmount   decimal.Decimal  `json:"principal_amount"`
	InterestRate      decimal.Decimal  `json:"interest_rate"`
	LateInterestRate  decimal.Decimal  `json:"late_interest_rate"`
	PaymentFrequency  PaymentFrequency `json:"payment_frequency"`
	TotalInstallments int              `json:"total_installments"`
	StartDate         time.Time        `json:"start_date"`
	Notes             string           `json:"notes,omitempty"`
}

type Loan struct {
	ID uuid.UUID `json:"id"`
	LoanTerms
	TotalAmount       decimal.Decimal `json:"total_amount"`       // principal with interest
	InstallmentAmount decimal.Decimal `json:"installment_amount"` // TotalAmount / TotalInstallments
	EndDate           time.Time       `json:"end_date"`           // due date of the last installment
	Status            LoanStatus      `json:"status"`
	Installments      []Installment   `json:"installments"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Installment is one scheduled payment of a loan. TotalAmount always equals
// OriginalAmount + InterestAmount; PaidAmount and PaidAt are set together,
// exactly once, when the installment is paid.
type Installment struct {
	ID                uuid.UUID         `json:"id"`
	LoanID            uuid.UUID         `json:"loan_id"`
	InstallmentNumber int               `json:"installment_number"`
	DueDate           time.Time         `json:"due_date"`
	OriginalAmount    decimal.Decimal   `json:"original_amount"`
	PaidAmount        *decimal.Decimal  `json:"paid_amount,omitempty"`
	InterestAmount    decimal.Decimal   `json:"interest_amount"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	Status            InstallmentStatus `json:"status"`
	PaidAt            *time.Time        `json:"paid_at,omitempty"`
	Notes             string            `json:"notes,omitempty"`
}

// IsPaid reports whether the terminal payment has been recorded.
func (i Installment) IsPaid() bool {
	return i.Status == InstallmentPaid && i.PaidAt != nil && i.PaidAmount != nil
}

type TransactionType string

const (
	TransactionTypeDisbursement TransactionType = "disbursement"
	TransactionTypePayment      TransactionType = "payment"
)

type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	LoanID        uuid.UUID       `json:"loan_id"`
	InstallmentID *uuid.UUID      `json:"installment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
}
