package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
// ":memory:" is supported; the pool is limited to one connection so every
// statement sees the same database.
func NewSQLiteStore(dataSourceName string, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err = db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	logger.WithField("dsn", dataSourceName).Info("Database connection established and schema initialized")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cpf TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL,
		whatsapp TEXT NOT NULL,
		street TEXT NOT NULL DEFAULT '',
		number TEXT NOT NULL DEFAULT '',
		complement TEXT NOT NULL DEFAULT '',
		neighborhood TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zip_code TEXT NOT NULL DEFAULT '',
		photo_uri TEXT NOT NULL DEFAULT '',
		score TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clients_name ON clients(name);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		principal_amount TEXT NOT NULL,
		interest_rate TEXT NOT NULL,
		late_interest_rate TEXT NOT NULL,
		payment_frequency TEXT NOT NULL,
		total_installments INTEGER NOT NULL,
		installment_amount TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY(client_id) REFERENCES clients(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_loans_client ON loans(client_id);
	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		installment_number INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		original_amount TEXT NOT NULL,
		paid_amount TEXT,
		interest_amount TEXT NOT NULL DEFAULT '0',
		total_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at DATETIME,
		notes TEXT NOT NULL DEFAULT '',
		UNIQUE(loan_id, installment_number),
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		installment_id TEXT,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const loanColumns = `id, client_id, principal_amount, interest_rate, late_interest_rate, payment_frequency, total_installments, installment_amount, total_amount, start_date, end_date, status, notes, created_at, updated_at`

const installmentColumns = `id, loan_id, installment_number, due_date, original_amount, paid_amount, interest_amount, total_amount, status, paid_at, notes`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateLoan inserts a loan, its schedule and the optional disbursement in
// one transaction.
func (s *SQLiteStore) CreateLoan(loan *models.Loan, disbursement *models.Transaction) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.ClientID.String(), loan.PrincipalAmount, loan.InterestRate, loan.LateInterestRate, loan.PaymentFrequency,
		loan.TotalInstallments, loan.InstallmentAmount, loan.TotalAmount, loan.StartDate, loan.EndDate, loan.Status, loan.Notes,
		loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO installments (` + installmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare installment insert: %w", err)
	}
	defer stmt.Close()

	for i := range loan.Installments {
		inst := &loan.Installments[i]
		_, err := stmt.Exec(
			inst.ID.String(), loan.ID.String(), inst.InstallmentNumber, inst.DueDate, inst.OriginalAmount, inst.PaidAmount,
			inst.InterestAmount, inst.TotalAmount, inst.Status, inst.PaidAt, inst.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to create installment %d: %w", inst.InstallmentNumber, err)
		}
	}

	if disbursement != nil {
		if err := insertTransaction(tx, disbursement); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT `+loanColumns+` FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	if err := s.attachInstallments([]*models.Loan{loan}); err != nil {
		return nil, err
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	return updateLoan(s.db, loan)
}

func updateLoan(db execer, loan *models.Loan) error {
	result, err := db.Exec(
		`UPDATE loans SET client_id = ?, principal_amount = ?, interest_rate = ?, late_interest_rate = ?, payment_frequency = ?, total_installments = ?, installment_amount = ?, total_amount = ?, start_date = ?, end_date = ?, status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		loan.ClientID.String(), loan.PrincipalAmount, loan.InterestRate, loan.LateInterestRate, loan.PaymentFrequency, loan.TotalInstallments,
		loan.InstallmentAmount, loan.TotalAmount, loan.StartDate, loan.EndDate, loan.Status, loan.Notes, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}
	return nil
}

// DeleteLoan removes a loan, its installments and its transactions within a transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM transactions WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated transactions: %w", err)
	}
	if _, err = tx.Exec(`DELETE FROM installments WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete associated installments: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLoanNotFound
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans ORDER BY created_at ASC`)
}

// GetAllActiveLoans retrieves all active loans.
func (s *SQLiteStore) GetAllActiveLoans() ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE status = ? ORDER BY created_at ASC`, models.LoanActive)
}

// GetLoansByClient retrieves every loan of one client.
func (s *SQLiteStore) GetLoansByClient(clientID uuid.UUID) ([]*models.Loan, error) {
	return s.queryLoans(`SELECT `+loanColumns+` FROM loans WHERE client_id = ? ORDER BY created_at ASC`, clientID.String())
}

func (s *SQLiteStore) queryLoans(query string, args ...any) ([]*models.Loan, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}

	loans := []*models.Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	// Release the connection before loading installments.
	rows.Close()

	if err := s.attachInstallments(loans); err != nil {
		return nil, err
	}
	return loans, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (*models.Loan, error) {
	var loan models.Loan
	var loanIDStr, clientIDStr string
	if err := row.Scan(
		&loanIDStr, &clientIDStr, &loan.PrincipalAmount, &loan.InterestRate, &loan.LateInterestRate, &loan.PaymentFrequency,
		&loan.TotalInstallments, &loan.InstallmentAmount, &loan.TotalAmount, &loan.StartDate, &loan.EndDate, &loan.Status,
		&loan.Notes, &loan.CreatedAt, &loan.UpdatedAt,
	); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(loanIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", loanIDStr, err)
	}
	loan.ID = id
	if loan.ClientID, err = uuid.Parse(clientIDStr); err != nil {
		return nil, fmt.Errorf("invalid client id %q: %w", clientIDStr, err)
	}
	loan.Installments = []models.Installment{}
	return &loan, nil
}

// attachInstallments loads the schedules of loans with a single query.
func (s *SQLiteStore) attachInstallments(loans []*models.Loan) error {
	if len(loans) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*models.Loan, len(loans))
	placeholders := make([]string, 0, len(loans))
	args := make([]any, 0, len(loans))
	for _, loan := range loans {
		byID[loan.ID] = loan
		placeholders = append(placeholders, "?")
		args = append(args, loan.ID.String())
	}

	rows, err := s.db.Query(
		`SELECT `+installmentColumns+` FROM installments WHERE loan_id IN (`+strings.Join(placeholders, ", ")+`) ORDER BY loan_id, installment_number ASC`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to get installments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return fmt.Errorf("failed to scan installment row: %w", err)
		}
		if loan, ok := byID[inst.LoanID]; ok {
			loan.Installments = append(loan.Installments, *inst)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error during rows iteration for installments: %w", err)
	}
	return nil
}

func scanInstallment(row scanner) (*models.Installment, error) {
	var inst models.Installment
	var idStr, loanIDStr string
	var paidAmount decimal.NullDecimal
	var paidAt sql.NullTime
	if err := row.Scan(
		&idStr, &loanIDStr, &inst.InstallmentNumber, &inst.DueDate, &inst.OriginalAmount, &paidAmount,
		&inst.InterestAmount, &inst.TotalAmount, &inst.Status, &paidAt, &inst.Notes,
	); err != nil {
		return nil, err
	}
	inst.ID = uuid.MustParse(idStr)
	inst.LoanID = uuid.MustParse(loanIDStr)
	if paidAmount.Valid {
		inst.PaidAmount = &paidAmount.Decimal
	}
	if paidAt.Valid {
		t := paidAt.Time
		inst.PaidAt = &t
	}
	return &inst, nil
}

// UpdateInstallment writes the mutable accrual and payment fields.
func (s *SQLiteStore) UpdateInstallment(inst *models.Installment) error {
	return updateInstallment(s.db, inst)
}

func updateInstallment(db execer, inst *models.Installment) error {
	result, err := db.Exec(
		`UPDATE installments SET paid_amount = ?, interest_amount = ?, total_amount = ?, status = ?, paid_at = ?, notes = ? WHERE id = ?`,
		inst.PaidAmount, inst.InterestAmount, inst.TotalAmount, inst.Status, inst.PaidAt, inst.Notes, inst.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInstallmentNotFound
	}
	return nil
}

// SavePayment stores a paid installment, its payment transaction and the
// loan row in a single database transaction.
func (s *SQLiteStore) SavePayment(inst *models.Installment, payment *models.Transaction, loan *models.Loan) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateInstallment(tx, inst); err != nil {
		return err
	}
	if err := insertTransaction(tx, payment); err != nil {
		return err
	}
	if err := updateLoan(tx, loan); err != nil {
		return err
	}

	return tx.Commit()
}

func insertTransaction(db execer, transaction *models.Transaction) error {
	var installmentID *string
	if transaction.InstallmentID != nil {
		id := transaction.InstallmentID.String()
		installmentID = &id
	}
	_, err := db.Exec(
		`INSERT INTO transactions (id, loan_id, installment_id, amount, type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		transaction.ID.String(), transaction.LoanID.String(), installmentID, transaction.Amount, transaction.Type, transaction.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransactionsForLoan retrieves all transactions for a given loan ID.
func (s *SQLiteStore) GetTransactionsForLoan(loanID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, installment_id, amount, type, timestamp FROM transactions WHERE loan_id = ? ORDER BY timestamp ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		var transaction models.Transaction
		var txIDStr, loanIDStr string
		var installmentID sql.NullString
		var timestamp time.Time
		if err := rows.Scan(&txIDStr, &loanIDStr, &installmentID, &transaction.Amount, &transaction.Type, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transaction.ID = uuid.MustParse(txIDStr)
		transaction.LoanID = uuid.MustParse(loanIDStr)
		if installmentID.Valid {
			id := uuid.MustParse(installmentID.String)
			transaction.InstallmentID = &id
		}
		transaction.Timestamp = timestamp
		transactions = append(transactions, &transaction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan transactions: %w", err)
	}
	return transactions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
