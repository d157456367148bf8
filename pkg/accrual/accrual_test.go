package accrual

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestCalculateInstallmentStatus(t *testing.T) {
	due := date(2024, time.March, 10)

	assert.Equal(t, models.InstallmentPending, CalculateInstallmentStatus(due, false, date(2024, time.March, 9)))
	assert.Equal(t, models.InstallmentPending, CalculateInstallmentStatus(due, false, time.Date(2024, time.March, 10, 23, 59, 0, 0, time.UTC)), "due today is not overdue")
	assert.Equal(t, models.InstallmentOverdue, CalculateInstallmentStatus(due, false, date(2024, time.March, 11)), "due yesterday is overdue")
	assert.Equal(t, models.InstallmentPaid, CalculateInstallmentStatus(due, true, date(2025, time.January, 1)))
}

func TestCalculateLateInterest_OnOrBeforeDueIsZero(t *testing.T) {
	due := date(2024, time.March, 10)
	now := date(2024, time.June, 1)
	rate := decimal.NewFromInt(5)

	for _, amount := range []int64{1, 100, 99999} {
		a := decimal.NewFromInt(amount)
		assert.True(t, CalculateLateInterest(a, due, rate, ptr(due), now).IsZero())
		assert.True(t, CalculateLateInterest(a, due, rate, ptr(due.AddDate(0, 0, -3)), now).IsZero())
	}
}

func TestCalculateLateInterest_TenDays(t *testing.T) {
	due := date(2024, time.March, 10)
	got := CalculateLateInterest(decimal.NewFromInt(1000), due, DefaultLateInterestRate, ptr(due.AddDate(0, 0, 10)), date(2000, time.January, 1))
	assert.True(t, got.Equal(decimal.RequireFromString("3.3")), "got %s", got)
}

func TestCalculateLateInterest_UsesNowWithoutPaymentDate(t *testing.T) {
	due := date(2024, time.March, 10)
	now := date(2024, time.March, 15)

	got := CalculateLateInterest(decimal.NewFromInt(200), due, decimal.NewFromInt(1), nil, now)
	assert.True(t, got.Equal(decimal.NewFromInt(10)), "got %s", got)

	assert.True(t, CalculateLateInterest(decimal.NewFromInt(200), due, decimal.NewFromInt(1), nil, due).IsZero())
}

func TestCalculateLateInterest_PartialDayTruncates(t *testing.T) {
	due := date(2024, time.March, 10)
	at := time.Date(2024, time.March, 12, 20, 0, 0, 0, time.UTC)

	got := CalculateLateInterest(decimal.NewFromInt(100), due, decimal.NewFromInt(1), ptr(at), at)
	assert.True(t, got.Equal(decimal.NewFromInt(2)), "got %s", got)
	assert.Equal(t, 2, DaysLate(due, at))
	assert.Equal(t, 0, DaysLate(due, due))
}

func TestDaysLate_CountsCalendarDaysAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}

	// 2024-03-10 is 23 hours long in New York.
	due := time.Date(2024, time.March, 5, 0, 0, 0, 0, ny)
	paid := due.AddDate(0, 0, 10)
	assert.Equal(t, 10, DaysLate(due, paid))
	assert.True(t, decimal.RequireFromString("3.3").Equal(
		CalculateLateInterest(decimal.NewFromInt(1000), due, decimal.RequireFromString("0.033"), &paid, paid)))

	due = time.Date(2024, time.March, 10, 0, 0, 0, 0, ny)
	now := time.Date(2024, time.March, 11, 0, 30, 0, 0, ny)
	assert.Equal(t, 1, DaysLate(due, now))
	assert.Equal(t, models.InstallmentOverdue, CalculateInstallmentStatus(due, false, now))
	assert.True(t, CalculateLateInterest(decimal.NewFromInt(100), due, decimal.RequireFromString("0.033"), nil, now).IsPositive())

	// Autumn: 2024-11-03 is 25 hours long.
	due = time.Date(2024, time.November, 2, 0, 0, 0, 0, ny)
	assert.Equal(t, 2, DaysLate(due, time.Date(2024, time.November, 4, 0, 0, 0, 0, ny)))
	assert.Equal(t, 1, DaysLate(due, time.Date(2024, time.November, 3, 23, 59, 0, 0, ny)))
}

func TestCalculateInstallmentStatus_ReadsNowInDueDateZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}
	due := time.Date(2024, time.March, 10, 0, 0, 0, 0, ny)

	// 02:00 UTC on the 11th is still the evening of the 10th in New York.
	now := time.Date(2024, time.March, 11, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, models.InstallmentPending, CalculateInstallmentStatus(due, false, now))
	assert.Equal(t, 0, DaysLate(due, now))

	now = time.Date(2024, time.March, 11, 5, 0, 0, 0, time.UTC)
	assert.Equal(t, models.InstallmentOverdue, CalculateInstallmentStatus(due, false, now))
	assert.Equal(t, 1, DaysLate(due, now))
}

func TestCalculateLateInterest_DailyRateRegardlessOfFrequency(t *testing.T) {
	// A monthly installment 30 days late accrues 30 daily penalties.
	due := date(2024, time.January, 1)
	got := CalculateLateInterest(decimal.NewFromInt(100), due, decimal.NewFromInt(1), nil, date(2024, time.January, 31))
	assert.True(t, got.Equal(decimal.NewFromInt(30)), "got %s", got)
}

func newInstallment(due time.Time, amount int64) models.Installment {
	return models.Installment{
		ID:                uuid.New(),
		LoanID:            uuid.New(),
		InstallmentNumber: 1,
		DueDate:           due,
		OriginalAmount:    decimal.NewFromInt(amount),
		InterestAmount:    decimal.Zero,
		TotalAmount:       decimal.NewFromInt(amount),
		Status:            models.InstallmentPending,
	}
}

func TestUpdateInstallmentWithLateInterest(t *testing.T) {
	due := date(2024, time.March, 10)
	inst := newInstallment(due, 1000)
	now := date(2024, time.March, 20)

	updated := UpdateInstallmentWithLateInterest(inst, DefaultLateInterestRate, now)

	assert.Equal(t, models.InstallmentOverdue, updated.Status)
	assert.True(t, updated.InterestAmount.Equal(decimal.RequireFromString("3.3")))
	assert.True(t, updated.TotalAmount.Equal(updated.OriginalAmount.Add(updated.InterestAmount)))

	// Input untouched.
	assert.Equal(t, models.InstallmentPending, inst.Status)
	assert.True(t, inst.InterestAmount.IsZero())
	assert.True(t, inst.TotalAmount.Equal(decimal.NewFromInt(1000)))
}

func TestUpdateInstallmentWithLateInterest_Idempotent(t *testing.T) {
	inst := newInstallment(date(2024, time.March, 10), 750)
	now := date(2024, time.April, 2)

	first := UpdateInstallmentWithLateInterest(inst, DefaultLateInterestRate, now)
	second := UpdateInstallmentWithLateInterest(first, DefaultLateInterestRate, now)

	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.InterestAmount.Equal(second.InterestAmount))
	assert.True(t, first.TotalAmount.Equal(second.TotalAmount))
}

func TestUpdateInstallmentWithLateInterest_NotYetDue(t *testing.T) {
	inst := newInstallment(date(2024, time.March, 10), 300)
	updated := UpdateInstallmentWithLateInterest(inst, DefaultLateInterestRate, date(2024, time.March, 10))

	assert.Equal(t, models.InstallmentPending, updated.Status)
	assert.True(t, updated.InterestAmount.IsZero())
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(300)))
}

func TestUpdateInstallmentWithLateInterest_PaidIsFrozen(t *testing.T) {
	due := date(2024, time.March, 10)
	paid := MarkPaid(newInstallment(due, 100), decimal.NewFromInt(100), due)

	updated := UpdateInstallmentWithLateInterest(paid, DefaultLateInterestRate, date(2025, time.March, 10))

	assert.Equal(t, models.InstallmentPaid, updated.Status)
	assert.True(t, updated.InterestAmount.IsZero())
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(100)))
}

func TestMarkPaid(t *testing.T) {
	inst := newInstallment(date(2024, time.March, 10), 100)
	at := time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC)

	paid := MarkPaid(inst, decimal.NewFromInt(100), at)

	assert.True(t, paid.IsPaid())
	assert.Equal(t, at, *paid.PaidAt)
	assert.True(t, paid.PaidAmount.Equal(decimal.NewFromInt(100)))
	assert.False(t, inst.IsPaid(), "original must not be mutated")
}
