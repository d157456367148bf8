package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/mcclellann/parcela/pkg/schedule"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test_store.db"), logger)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var cpfSeq int

func newTestClient(t *testing.T, s *SQLiteStore, name string) *models.Client {
	t.Helper()
	cpfSeq++
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := &models.Client{
		ID:        uuid.New(),
		Name:      name,
		CPF:       fmt.Sprintf("000.000.%03d-00", cpfSeq),
		Phone:     "(11) 98765-4321",
		WhatsApp:  "(11) 98765-4321",
		Address:   models.Address{Street: "Rua A", Number: "10", Neighborhood: "Centro", City: "Campinas", State: "SP", ZipCode: "13010-000"},
		Score:     models.ScoreGood,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.CreateClient(c); err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

func newTestLoan(clientID uuid.UUID, n int) *models.Loan {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return schedule.NewLoan(models.LoanTerms{
		ClientID:          clientID,
		PrincipalAmount:   decimal.NewFromInt(1200),
		InterestRate:      decimal.NewFromInt(10),
		LateInterestRate:  decimal.RequireFromString("0.033"),
		PaymentFrequency:  models.FrequencyMonthly,
		TotalInstallments: n,
		StartDate:         start,
		Notes:             "test loan",
	}, start)
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	s := newTestStore(t)
	loan := newTestLoan(newTestClient(t, s, "Test").ID, 12)

	if err := s.CreateLoan(loan, nil); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}

	if fetched.ClientID != loan.ClientID {
		t.Errorf("Expected ClientID %s, got %s", loan.ClientID, fetched.ClientID)
	}
	if !fetched.PrincipalAmount.Equal(loan.PrincipalAmount) {
		t.Errorf("Expected Principal %s, got %s", loan.PrincipalAmount, fetched.PrincipalAmount)
	}
	if !fetched.TotalAmount.Equal(decimal.NewFromInt(1320)) {
		t.Errorf("Expected TotalAmount 1320, got %s", fetched.TotalAmount)
	}
	if fetched.PaymentFrequency != models.FrequencyMonthly {
		t.Errorf("Expected frequency MONTHLY, got %s", fetched.PaymentFrequency)
	}
	if !fetched.EndDate.Equal(loan.EndDate) {
		t.Errorf("Expected EndDate %s, got %s", loan.EndDate, fetched.EndDate)
	}
	if len(fetched.Installments) != 12 {
		t.Fatalf("Expected 12 installments, got %d", len(fetched.Installments))
	}
	for i, inst := range fetched.Installments {
		if inst.InstallmentNumber != i+1 {
			t.Errorf("Expected installment number %d, got %d", i+1, inst.InstallmentNumber)
		}
		if !inst.DueDate.Equal(loan.Installments[i].DueDate) {
			t.Errorf("Installment %d: expected due %s, got %s", i+1, loan.Installments[i].DueDate, inst.DueDate)
		}
		if inst.PaidAmount != nil || inst.PaidAt != nil {
			t.Errorf("Installment %d should not be paid", i+1)
		}
	}
}

func TestSQLiteStore_GetLoanNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetLoan(uuid.New())
	if !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("Expected ErrLoanNotFound, got %v", err)
	}
}

func TestSQLiteStore_UpdateInstallmentPaid(t *testing.T) {
	s := newTestStore(t)
	loan := newTestLoan(newTestClient(t, s, "Payer").ID, 3)
	if err := s.CreateLoan(loan, nil); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	inst := loan.Installments[0]
	paidAt := time.Date(2024, time.January, 5, 10, 0, 0, 0, time.UTC)
	amount := decimal.RequireFromString("441.452")
	inst.InterestAmount = decimal.RequireFromString("1.452")
	inst.TotalAmount = decimal.RequireFromString("441.452")
	inst.PaidAmount = &amount
	inst.PaidAt = &paidAt
	inst.Status = models.InstallmentPaid

	if err := s.UpdateInstallment(&inst); err != nil {
		t.Fatalf("Failed to update installment: %v", err)
	}

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	got := fetched.Installments[0]
	if got.Status != models.InstallmentPaid {
		t.Errorf("Expected PAID, got %s", got.Status)
	}
	if got.PaidAmount == nil || !got.PaidAmount.Equal(amount) {
		t.Errorf("Expected paid amount %s, got %v", amount, got.PaidAmount)
	}
	if got.PaidAt == nil || !got.PaidAt.Equal(paidAt) {
		t.Errorf("Expected paid at %s, got %v", paidAt, got.PaidAt)
	}
	if !got.InterestAmount.Equal(inst.InterestAmount) {
		t.Errorf("Expected interest %s, got %s", inst.InterestAmount, got.InterestAmount)
	}
}

func TestSQLiteStore_UpdateInstallmentNotFound(t *testing.T) {
	s := newTestStore(t)
	inst := models.Installment{ID: uuid.New(), Status: models.InstallmentPending}
	if err := s.UpdateInstallment(&inst); !errors.Is(err, ErrInstallmentNotFound) {
		t.Fatalf("Expected ErrInstallmentNotFound, got %v", err)
	}
}

func TestSQLiteStore_ListingAndStatus(t *testing.T) {
	s := newTestStore(t)

	alice := newTestClient(t, s, "Alice")
	bob := newTestClient(t, s, "Bob")
	a := newTestLoan(alice.ID, 2)
	b := newTestLoan(alice.ID, 4)
	c := newTestLoan(bob.ID, 1)
	for _, l := range []*models.Loan{a, b, c} {
		if err := s.CreateLoan(l, nil); err != nil {
			t.Fatalf("Failed to create loan: %v", err)
		}
	}

	c.Status = models.LoanCancelled
	c.UpdatedAt = time.Now()
	if err := s.UpdateLoan(c); err != nil {
		t.Fatalf("Failed to update loan: %v", err)
	}

	all, err := s.GetAllLoans()
	if err != nil {
		t.Fatalf("Failed to list loans: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 loans, got %d", len(all))
	}

	active, err := s.GetAllActiveLoans()
	if err != nil {
		t.Fatalf("Failed to list active loans: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("Expected 2 active loans, got %d", len(active))
	}

	aliceLoans, err := s.GetLoansByClient(alice.ID)
	if err != nil {
		t.Fatalf("Failed to list client loans: %v", err)
	}
	if len(aliceLoans) != 2 {
		t.Fatalf("Expected 2 loans for alice, got %d", len(aliceLoans))
	}
	counts := map[uuid.UUID]int{a.ID: 2, b.ID: 4}
	for _, l := range aliceLoans {
		if len(l.Installments) != counts[l.ID] {
			t.Errorf("Loan %s: expected %d installments, got %d", l.ID, counts[l.ID], len(l.Installments))
		}
	}
}

func TestSQLiteStore_Transactions(t *testing.T) {
	s := newTestStore(t)
	loan := newTestLoan(newTestClient(t, s, "Tx").ID, 2)
	disbursement := &models.Transaction{ID: uuid.New(), LoanID: loan.ID, Amount: decimal.NewFromInt(1200), Type: models.TransactionTypeDisbursement, Timestamp: time.Now().Add(-time.Hour)}
	if err := s.CreateLoan(loan, disbursement); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	inst := loan.Installments[0]
	amount := decimal.NewFromInt(660)
	paidAt := time.Now()
	inst.PaidAmount = &amount
	inst.PaidAt = &paidAt
	inst.Status = models.InstallmentPaid
	payment := &models.Transaction{ID: uuid.New(), LoanID: loan.ID, InstallmentID: &inst.ID, Amount: amount, Type: models.TransactionTypePayment, Timestamp: paidAt}
	loan.UpdatedAt = paidAt
	if err := s.SavePayment(&inst, payment, loan); err != nil {
		t.Fatalf("Failed to save payment: %v", err)
	}

	fetched, err := s.GetTransactionsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(fetched) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(fetched))
	}
	if fetched[0].Type != models.TransactionTypeDisbursement || fetched[0].InstallmentID != nil {
		t.Errorf("Unexpected first transaction: %+v", fetched[0])
	}
	if fetched[1].InstallmentID == nil || *fetched[1].InstallmentID != inst.ID {
		t.Errorf("Expected payment linked to installment %s", inst.ID)
	}

	stored, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if stored.Installments[0].Status != models.InstallmentPaid {
		t.Errorf("Expected installment 1 PAID, got %s", stored.Installments[0].Status)
	}
}

func TestSQLiteStore_SavePaymentRollsBack(t *testing.T) {
	s := newTestStore(t)
	loan := newTestLoan(newTestClient(t, s, "Rollback").ID, 2)
	if err := s.CreateLoan(loan, nil); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	inst := loan.Installments[0]
	amount := inst.TotalAmount
	paidAt := time.Now()
	inst.PaidAmount = &amount
	inst.PaidAt = &paidAt
	inst.Status = models.InstallmentPaid
	payment := &models.Transaction{ID: uuid.New(), LoanID: loan.ID, InstallmentID: &inst.ID, Amount: amount, Type: models.TransactionTypePayment, Timestamp: paidAt}

	// The loan row write fails last, after the installment and transaction writes.
	ghost := *loan
	ghost.ID = uuid.New()
	if err := s.SavePayment(&inst, payment, &ghost); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("Expected ErrLoanNotFound, got %v", err)
	}

	stored, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if stored.Installments[0].Status != models.InstallmentPending || stored.Installments[0].PaidAmount != nil {
		t.Errorf("Installment write was not rolled back: %+v", stored.Installments[0])
	}
	txs, err := s.GetTransactionsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("Expected no transactions after rollback, got %d", len(txs))
	}
}

func TestSQLiteStore_EmptyListingsEncodeAsArrays(t *testing.T) {
	s := newTestStore(t)

	loans, err := s.GetAllLoans()
	if err != nil {
		t.Fatalf("Failed to list loans: %v", err)
	}
	byClient, err := s.GetLoansByClient(uuid.New())
	if err != nil {
		t.Fatalf("Failed to list client loans: %v", err)
	}
	txs, err := s.GetTransactionsForLoan(uuid.New())
	if err != nil {
		t.Fatalf("Failed to list transactions: %v", err)
	}
	clients, err := s.GetAllClients()
	if err != nil {
		t.Fatalf("Failed to list clients: %v", err)
	}

	for name, v := range map[string]any{"loans": loans, "client loans": byClient, "transactions": txs, "clients": clients} {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Failed to marshal %s: %v", name, err)
		}
		if string(raw) != "[]" {
			t.Errorf("Expected %s to encode as [], got %s", name, raw)
		}
	}
}

func TestSQLiteStore_DeleteLoan(t *testing.T) {
	s := newTestStore(t)
	loan := newTestLoan(newTestClient(t, s, "Gone").ID, 3)
	disbursement := &models.Transaction{ID: uuid.New(), LoanID: loan.ID, Amount: decimal.NewFromInt(1), Type: models.TransactionTypeDisbursement, Timestamp: time.Now()}
	if err := s.CreateLoan(loan, disbursement); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	if err := s.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}
	if _, err := s.GetLoan(loan.ID); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound after delete, got %v", err)
	}
	if err := s.DeleteLoan(loan.ID); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound on second delete, got %v", err)
	}
}

func TestSQLiteStore_InMemory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("Failed to create in-memory store: %v", err)
	}
	defer s.Close()

	loan := newTestLoan(newTestClient(t, s, "Mem").ID, 2)
	if err := s.CreateLoan(loan, nil); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if len(fetched.Installments) != 2 {
		t.Errorf("Expected 2 installments, got %d", len(fetched.Installments))
	}
}

func TestSQLiteStore_CreateLoanUnknownClient(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateLoan(newTestLoan(uuid.New(), 2), nil); err == nil {
		t.Fatal("Expected foreign key error for unknown client")
	}
}

func TestSQLiteStore_Clients(t *testing.T) {
	s := newTestStore(t)
	zed := newTestClient(t, s, "Zed")
	ana := newTestClient(t, s, "Ana")

	fetched, err := s.GetClient(zed.ID)
	if err != nil {
		t.Fatalf("Failed to get client: %v", err)
	}
	if fetched.CPF != zed.CPF || fetched.Address != zed.Address || fetched.Score != models.ScoreGood {
		t.Errorf("Unexpected client: %+v", fetched)
	}

	all, err := s.GetAllClients()
	if err != nil {
		t.Fatalf("Failed to list clients: %v", err)
	}
	if len(all) != 2 || all[0].ID != ana.ID || all[1].ID != zed.ID {
		t.Errorf("Expected clients ordered by name, got %+v", all)
	}

	dup := *ana
	dup.ID = uuid.New()
	if err := s.CreateClient(&dup); !errors.Is(err, ErrDuplicateCPF) {
		t.Errorf("Expected ErrDuplicateCPF, got %v", err)
	}

	zed.Score = models.ScoreDefaulter
	zed.CPF = "999.999.999-99"
	if err := s.UpdateClient(zed); err != nil {
		t.Fatalf("Failed to update client: %v", err)
	}
	fetched, _ = s.GetClient(zed.ID)
	if fetched.Score != models.ScoreDefaulter {
		t.Errorf("Expected DEFAULTER, got %s", fetched.Score)
	}
	if fetched.CPF == "999.999.999-99" {
		t.Error("CPF must not change on update")
	}

	if _, err := s.GetClient(uuid.New()); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound, got %v", err)
	}
	ghost := models.Client{ID: uuid.New()}
	if err := s.UpdateClient(&ghost); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound on update, got %v", err)
	}
}

func TestSQLiteStore_DeleteClientCascades(t *testing.T) {
	s := newTestStore(t)
	c := newTestClient(t, s, "Cascade")
	loan := newTestLoan(c.ID, 2)
	disbursement := &models.Transaction{ID: uuid.New(), LoanID: loan.ID, Amount: decimal.NewFromInt(1200), Type: models.TransactionTypeDisbursement, Timestamp: time.Now()}
	if err := s.CreateLoan(loan, disbursement); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	if err := s.DeleteClient(c.ID); err != nil {
		t.Fatalf("Failed to delete client: %v", err)
	}
	if _, err := s.GetLoan(loan.ID); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected loan removed with client, got %v", err)
	}
	txs, err := s.GetTransactionsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("Expected transactions removed with client, got %d", len(txs))
	}
	if err := s.DeleteClient(c.ID); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("Expected ErrClientNotFound on second delete, got %v", err)
	}
}
