package ledger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcclellann/parcela/pkg/format"
	"github.com/mcclellann/parcela/pkg/models"
	"github.com/sirupsen/logrus"
)

const minClientNameLength = 3

// ClientPatch lists the client fields a caller may change. Nil fields are
// left alone. The CPF is fixed once a client is registered.
type ClientPatch struct {
	Name     *string             `json:"name,omitempty"`
	Phone    *string             `json:"phone,omitempty"`
	WhatsApp *string             `json:"whatsapp,omitempty"`
	Address  *models.Address     `json:"address,omitempty"`
	PhotoURI *string             `json:"photo_uri,omitempty"`
	Score    *models.ClientScore `json:"score,omitempty"`
	Notes    *string             `json:"notes,omitempty"`
}

// normalizeClient trims free text and stores documents in their display form.
func normalizeClient(c *models.Client) {
	c.Name = strings.TrimSpace(c.Name)
	c.CPF = format.FormatCPF(c.CPF)
	c.Phone = format.FormatPhone(c.Phone)
	c.WhatsApp = format.FormatPhone(c.WhatsApp)
	c.Address.State = strings.ToUpper(strings.TrimSpace(c.Address.State))
}

func validateClient(c *models.Client) error {
	switch {
	case utf8.RuneCountInString(c.Name) < minClientNameLength:
		return fmt.Errorf("%w: name must have at least %d characters", ErrInvalidClient, minClientNameLength)
	case !format.ValidateCPF(c.CPF):
		return fmt.Errorf("%w: invalid CPF", ErrInvalidClient)
	case !format.ValidatePhone(c.Phone):
		return fmt.Errorf("%w: invalid phone", ErrInvalidClient)
	case !format.ValidatePhone(c.WhatsApp):
		return fmt.Errorf("%w: invalid WhatsApp number", ErrInvalidClient)
	case c.Address.State != "" && len(c.Address.State) != 2:
		return fmt.Errorf("%w: state must be a two-letter code", ErrInvalidClient)
	case c.Address.ZipCode != "" && !format.ValidateZipCode(c.Address.ZipCode):
		return fmt.Errorf("%w: invalid zip code", ErrInvalidClient)
	case !c.Score.Valid():
		return fmt.Errorf("%w: unknown score %q", ErrInvalidClient, c.Score)
	}
	return nil
}

// CreateClient registers a borrower. The score defaults to GOOD.
func (l *Ledger) CreateClient(c models.Client) (*models.Client, error) {
	if c.Score == "" {
		c.Score = models.ScoreGood
	}
	normalizeClient(&c)
	if err := validateClient(&c); err != nil {
		return nil, err
	}

	now := l.clock.Now()
	c.ID = uuid.New()
	c.CreatedAt = now
	c.UpdatedAt = now
	if err := l.storage.CreateClient(&c); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{"client_id": c.ID, "name": c.Name}).Info("Client created")
	return &c, nil
}

func (l *Ledger) GetClient(id uuid.UUID) (*models.Client, error) {
	return l.storage.GetClient(id)
}

// GetAllClients lists clients ordered by name.
func (l *Ledger) GetAllClients() ([]*models.Client, error) {
	return l.storage.GetAllClients()
}

// UpdateClient applies p to a registered client.
func (l *Ledger) UpdateClient(id uuid.UUID, p ClientPatch) (*models.Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.storage.GetClient(id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.WhatsApp != nil {
		c.WhatsApp = *p.WhatsApp
	}
	if p.Address != nil {
		c.Address = *p.Address
	}
	if p.PhotoURI != nil {
		c.PhotoURI = *p.PhotoURI
	}
	if p.Score != nil {
		c.Score = *p.Score
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}

	normalizeClient(c)
	if err := validateClient(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = l.clock.Now()
	if err := l.storage.UpdateClient(c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteClient removes a client together with all of its loans.
func (l *Ledger) DeleteClient(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.storage.DeleteClient(id); err != nil {
		return err
	}
	l.logger.WithField("client_id", id).Info("Client deleted")
	return nil
}
