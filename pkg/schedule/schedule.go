// Package schedule turns loan terms into a fixed list of installments.
//
// Interest is simple and applied once over the whole term, independent of
// frequency and installment count. Nothing here validates its inputs: callers
// must guarantee a positive principal, non-negative rates and at least one
// installment.
package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/accrual"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateTotalAmount returns principal * (1 + interestRatePercent/100).
func CalculateTotalAmount(principal, interestRatePercent decimal.Decimal) decimal.Decimal {
	return principal.Mul(decimal.NewFromInt(1).Add(interestRatePercent.Div(hundred)))
}

// CalculateInstallmentAmount splits the total evenly. The remainder of a
// non-terminating division is not redistributed.
func CalculateInstallmentAmount(totalAmount decimal.Decimal, totalInstallments int) decimal.Decimal {
	return totalAmount.Div(decimal.NewFromInt(int64(totalInstallments)))
}

// CalculateNextDueDate advances startDate by index periods of frequency.
// Monthly steps clamp to the last day of the target month, so Jan 31 + 1
// month is the end of February.
func CalculateNextDueDate(startDate time.Time, index int, frequency models.PaymentFrequency) time.Time {
	switch frequency {
	case models.FrequencyDaily:
		return startDate.AddDate(0, 0, index)
	case models.FrequencyWeekly:
		return startDate.AddDate(0, 0, 7*index)
	case models.FrequencyMonthly:
		return addMonths(startDate, index)
	default:
		return startDate
	}
}

// CalculateEndDate is the due date of the final installment.
func CalculateEndDate(startDate time.Time, totalInstallments int, frequency models.PaymentFrequency) time.Time {
	return CalculateNextDueDate(startDate, totalInstallments-1, frequency)
}

// GenerateInstallments builds the ordered schedule. Status is evaluated
// against now, so a backdated loan can start with OVERDUE installments.
func GenerateInstallments(loanID uuid.UUID, startDate time.Time, installmentAmount decimal.Decimal, totalInstallments int, frequency models.PaymentFrequency, now time.Time) []models.Installment {
	installments := make([]models.Installment, 0, totalInstallments)
	for i := 0; i < totalInstallments; i++ {
		dueDate := CalculateNextDueDate(startDate, i, frequency)
		installments = append(installments, models.Installment{
			ID:                uuid.New(),
			LoanID:            loanID,
			InstallmentNumber: i + 1,
			DueDate:           dueDate,
			OriginalAmount:    installmentAmount,
			InterestAmount:    decimal.Zero,
			TotalAmount:       installmentAmount,
			Status:            accrual.CalculateInstallmentStatus(dueDate, false, now),
		})
	}
	return installments
}

// NewLoan derives totals, end date and schedule from terms. The returned loan
// is ACTIVE and has a fresh ID.
func NewLoan(terms models.LoanTerms, now time.Time) *models.Loan {
	totalAmount := CalculateTotalAmount(terms.PrincipalAmount, terms.InterestRate)
	installmentAmount := CalculateInstallmentAmount(totalAmount, terms.TotalInstallments)

	loan := &models.Loan{
		ID:                uuid.New(),
		LoanTerms:         terms,
		TotalAmount:       totalAmount,
		InstallmentAmount: installmentAmount,
		EndDate:           CalculateEndDate(terms.StartDate, terms.TotalInstallments, terms.PaymentFrequency),
		Status:            models.LoanActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	loan.Installments = GenerateInstallments(loan.ID, terms.StartDate, installmentAmount, terms.TotalInstallments, terms.PaymentFrequency, now)
	return loan
}

func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
