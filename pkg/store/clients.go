package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/models"
)

const clientColumns = `id, name, cpf, phone, whatsapp, street, number, complement, neighborhood, city, state, zip_code, photo_uri, score, notes, created_at, updated_at`

// CreateClient inserts a new client. A CPF already on file yields ErrDuplicateCPF.
func (s *SQLiteStore) CreateClient(c *models.Client) error {
	_, err := s.db.Exec(
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.CPF, c.Phone, c.WhatsApp,
		c.Address.Street, c.Address.Number, c.Address.Complement, c.Address.Neighborhood, c.Address.City, c.Address.State, c.Address.ZipCode,
		c.PhotoURI, c.Score, c.Notes, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCPF
		}
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by its ID.
func (s *SQLiteStore) GetClient(id uuid.UUID) (*models.Client, error) {
	c, err := scanClient(s.db.QueryRow(`SELECT `+clientColumns+` FROM clients WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

// GetAllClients retrieves all clients ordered by name.
func (s *SQLiteStore) GetAllClients() ([]*models.Client, error) {
	rows, err := s.db.Query(`SELECT ` + clientColumns + ` FROM clients ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	clients := []*models.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client row: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for clients: %w", err)
	}
	return clients, nil
}

// UpdateClient rewrites every mutable column except cpf.
func (s *SQLiteStore) UpdateClient(c *models.Client) error {
	result, err := s.db.Exec(
		`UPDATE clients SET name = ?, phone = ?, whatsapp = ?, street = ?, number = ?, complement = ?, neighborhood = ?, city = ?, state = ?, zip_code = ?, photo_uri = ?, score = ?, notes = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Phone, c.WhatsApp,
		c.Address.Street, c.Address.Number, c.Address.Complement, c.Address.Neighborhood, c.Address.City, c.Address.State, c.Address.ZipCode,
		c.PhotoURI, c.Score, c.Notes, c.UpdatedAt, c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// DeleteClient removes a client. Loans, installments and transactions go
// with it through ON DELETE CASCADE.
func (s *SQLiteStore) DeleteClient(id uuid.UUID) error {
	result, err := s.db.Exec(`DELETE FROM clients WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

func scanClient(row scanner) (*models.Client, error) {
	var c models.Client
	var idStr string
	if err := row.Scan(
		&idStr, &c.Name, &c.CPF, &c.Phone, &c.WhatsApp,
		&c.Address.Street, &c.Address.Number, &c.Address.Complement, &c.Address.Neighborhood, &c.Address.City, &c.Address.State, &c.Address.ZipCode,
		&c.PhotoURI, &c.Score, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid client id %q: %w", idStr, err)
	}
	c.ID = id
	return &c, nil
}
