// Package report reduces installment lists to financial totals.
//
// None of these functions accrue interest: pass installments that already
// went through accrual.UpdateInstallmentWithLateInterest if current totals
// matter.
package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CalculateTotalPaid sums PaidAmount over PAID installments.
func CalculateTotalPaid(installments []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		if inst.Status == models.InstallmentPaid && inst.PaidAmount != nil {
			total = total.Add(*inst.PaidAmount)
		}
	}
	return total
}

// CalculateTotalPending sums TotalAmount over every installment not yet paid,
// overdue ones included.
func CalculateTotalPending(installments []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		if inst.Status != models.InstallmentPaid {
			total = total.Add(inst.TotalAmount)
		}
	}
	return total
}

// CalculateTotalOverdue sums TotalAmount over OVERDUE installments only.
func CalculateTotalOverdue(installments []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		if inst.Status == models.InstallmentOverdue {
			total = total.Add(inst.TotalAmount)
		}
	}
	return total
}

// CalculatePaymentProgress is the share of paid installments in [0, 100].
// An empty schedule has zero progress.
func CalculatePaymentProgress(installments []models.Installment) decimal.Decimal {
	if len(installments) == 0 {
		return decimal.Zero
	}
	paid := countStatus(installments, models.InstallmentPaid)
	return decimal.NewFromInt(int64(paid)).Mul(hundred).Div(decimal.NewFromInt(int64(len(installments))))
}

func countStatus(installments []models.Installment, status models.InstallmentStatus) int {
	n := 0
	for _, inst := range installments {
		if inst.Status == status {
			n++
		}
	}
	return n
}

// Summary is the per-loan financial view.
type Summary struct {
	LoanID          uuid.UUID           `json:"loan_id"`
	Status          models.LoanStatus   `json:"status"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	TotalPaid       decimal.Decimal     `json:"total_paid"`
	TotalPending    decimal.Decimal     `json:"total_pending"`
	TotalOverdue    decimal.Decimal     `json:"total_overdue"`
	Progress        decimal.Decimal     `json:"progress"`
	PaidCount       int                 `json:"paid_count"`
	OverdueCount    int                 `json:"overdue_count"`
	PendingCount    int                 `json:"pending_count"`
	NextInstallment *models.Installment `json:"next_installment,omitempty"`
	AsOf            time.Time           `json:"as_of"`
}

// Summarize reports on loan.Installments as they are.
func Summarize(loan *models.Loan, asOf time.Time) Summary {
	s := Summary{
		LoanID:       loan.ID,
		Status:       loan.Status,
		TotalAmount:  loan.TotalAmount,
		TotalPaid:    CalculateTotalPaid(loan.Installments),
		TotalPending: CalculateTotalPending(loan.Installments),
		TotalOverdue: CalculateTotalOverdue(loan.Installments),
		Progress:     CalculatePaymentProgress(loan.Installments),
		PaidCount:    countStatus(loan.Installments, models.InstallmentPaid),
		OverdueCount: countStatus(loan.Installments, models.InstallmentOverdue),
		PendingCount: countStatus(loan.Installments, models.InstallmentPending),
		AsOf:         asOf,
	}
	for i := range loan.Installments {
		inst := loan.Installments[i]
		if inst.Status == models.InstallmentPaid {
			continue
		}
		if s.NextInstallment == nil || inst.InstallmentNumber < s.NextInstallment.InstallmentNumber {
			s.NextInstallment = &inst
		}
	}
	return s
}

// DashboardStats aggregates across a portfolio of loans.
type DashboardStats struct {
	TotalLoans     int             `json:"total_loans"`
	ActiveLoans    int             `json:"active_loans"`
	TotalClients   int             `json:"total_clients"`
	TotalLent      decimal.Decimal `json:"total_lent"`     // principal of non-cancelled loans
	TotalReceived  decimal.Decimal `json:"total_received"` // paid amounts
	TotalPending   decimal.Decimal `json:"total_pending"`
	TotalOverdue   decimal.Decimal `json:"total_overdue"`
	MonthlyRevenue decimal.Decimal `json:"monthly_revenue"` // paid in the calendar month of asOf
	MonthlyProfit  decimal.Decimal `json:"monthly_profit"`  // monthly revenue above principal share
	AsOf           time.Time       `json:"as_of"`
}

// Dashboard folds every loan into one DashboardStats. Cancelled loans are
// counted but contribute no money. totalClients is the size of the client
// registry, borrowers or not.
func Dashboard(loans []*models.Loan, totalClients int, asOf time.Time) DashboardStats {
	stats := DashboardStats{
		TotalLoans:     len(loans),
		TotalClients:   totalClients,
		TotalLent:      decimal.Zero,
		TotalReceived:  decimal.Zero,
		TotalPending:   decimal.Zero,
		TotalOverdue:   decimal.Zero,
		MonthlyRevenue: decimal.Zero,
		MonthlyProfit:  decimal.Zero,
		AsOf:           asOf,
	}
	year, month, _ := asOf.Date()

	for _, loan := range loans {
		if loan.Status == models.LoanActive {
			stats.ActiveLoans++
		}
		if loan.Status == models.LoanCancelled {
			continue
		}

		stats.TotalLent = stats.TotalLent.Add(loan.PrincipalAmount)
		stats.TotalReceived = stats.TotalReceived.Add(CalculateTotalPaid(loan.Installments))
		stats.TotalPending = stats.TotalPending.Add(CalculateTotalPending(loan.Installments))
		stats.TotalOverdue = stats.TotalOverdue.Add(CalculateTotalOverdue(loan.Installments))

		principalShare := decimal.Zero
		if loan.TotalInstallments > 0 {
			principalShare = loan.PrincipalAmount.Div(decimal.NewFromInt(int64(loan.TotalInstallments)))
		}
		for _, inst := range loan.Installments {
			if inst.Status != models.InstallmentPaid || inst.PaidAt == nil || inst.PaidAmount == nil {
				continue
			}
			y, m, _ := inst.PaidAt.In(asOf.Location()).Date()
			if y != year || m != month {
				continue
			}
			stats.MonthlyRevenue = stats.MonthlyRevenue.Add(*inst.PaidAmount)
			stats.MonthlyProfit = stats.MonthlyProfit.Add(inst.PaidAmount.Sub(principalShare))
		}
	}
	return stats
}
