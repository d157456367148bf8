// Package accrual re-derives an installment's status and payable amount as of
// a given instant.
//
// Status is a view over (due date, paid flag, now); only the PAID transition
// is state. Late interest accrues per whole day late at a flat daily
// percentage, whatever the loan's payment frequency.
package accrual

import (
	"time"

	"github.com/mcclellann/parcela/pkg/clock"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/shopspring/decimal"
)

// DefaultLateInterestRate is the late penalty in percent per day (about 1% a month).
var DefaultLateInterestRate = decimal.RequireFromString("0.033")

var hundred = decimal.NewFromInt(100)

// CalculateInstallmentStatus compares calendar dates in the due date's zone.
// An installment due today is still PENDING; it becomes OVERDUE the day after.
func CalculateInstallmentStatus(dueDate time.Time, isPaid bool, now time.Time) models.InstallmentStatus {
	if isPaid {
		return models.InstallmentPaid
	}
	if clock.StartOfDay(dueDate).Before(clock.StartOfDay(now.In(dueDate.Location()))) {
		return models.InstallmentOverdue
	}
	return models.InstallmentPending
}

// CalculateLateInterest returns originalAmount * rate/100 * daysLate, where
// daysLate is DaysLate(dueDate, payment date). A nil
// paymentDate means "paid now".
func CalculateLateInterest(originalAmount decimal.Decimal, dueDate time.Time, lateInterestRatePercent decimal.Decimal, paymentDate *time.Time, now time.Time) decimal.Decimal {
	effective := now
	if paymentDate != nil {
		effective = *paymentDate
	}
	if !effective.After(dueDate) {
		return decimal.Zero
	}

	daysLate := DaysLate(dueDate, effective)
	return originalAmount.Mul(lateInterestRatePercent.Div(hundred)).Mul(decimal.NewFromInt(int64(daysLate)))
}

// DaysLate is the number of whole calendar days from dueDate to at, read in
// dueDate's location, or zero when at is not after dueDate. A day only counts
// once at reaches dueDate's time of day, so a 23 or 25 hour day across a DST
// change still counts as one.
func DaysLate(dueDate, at time.Time) int {
	if !at.After(dueDate) {
		return 0
	}
	at = at.In(dueDate.Location())

	dy, dm, dd := dueDate.Date()
	ay, am, ad := at.Date()
	days := int(time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC).Sub(time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC)) / (24 * time.Hour))
	if timeOfDay(at) < timeOfDay(dueDate) {
		days--
	}
	return days
}

func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// UpdateInstallmentWithLateInterest returns a copy of inst with interest,
// total and status recomputed as of now. Paid installments are returned
// unchanged. Calling it twice with the same now yields the same result.
func UpdateInstallmentWithLateInterest(inst models.Installment, lateInterestRatePercent decimal.Decimal, now time.Time) models.Installment {
	if inst.Status == models.InstallmentPaid {
		return inst
	}

	interest := CalculateLateInterest(inst.OriginalAmount, inst.DueDate, lateInterestRatePercent, nil, now)

	updated := inst
	updated.InterestAmount = interest
	updated.TotalAmount = inst.OriginalAmount.Add(interest)
	updated.Status = CalculateInstallmentStatus(inst.DueDate, false, now)
	return updated
}

// MarkPaid performs the terminal PAID transition on a copy of inst. The
// caller is expected to have refreshed accrual as of at beforehand so the
// recorded totals match what was charged.
func MarkPaid(inst models.Installment, amount decimal.Decimal, at time.Time) models.Installment {
	paid := inst
	paidAmount := amount
	paidAt := at
	paid.PaidAmount = &paidAmount
	paid.PaidAt = &paidAt
	paid.Status = models.InstallmentPaid
	return paid
}
