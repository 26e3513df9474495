package store

import (
	"vpnctl/internal/models"

	"gorm.io/gorm"
)

// Tx wraps a single transaction against the authoritative store for the
// Reconciler's (C5) database-facing work — spec.md §4.5 step 1: "Open one
// transaction against C1."
type Tx struct {
	tx *gorm.DB
}

// Begin opens a new transaction. Callers MUST call Commit or Rollback.
func (s *Store) Begin() (*Tx, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &Tx{tx: tx}, nil
}

// Commit finalizes the transaction.
func (t *Tx) Commit() error { return t.tx.Commit().Error }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback().Error }

// GetAll reads the current user set C within the transaction.
func (t *Tx) GetAll() ([]models.User, error) {
	var users []models.User
	if err := t.tx.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteLogins removes all rows for the given logins in one statement,
// grounded on sincronizar.rs's batched "DELETE FROM users WHERE login IN (...)".
func (t *Tx) DeleteLogins(logins []string) error {
	if len(logins) == 0 {
		return nil
	}
	return t.tx.Where("login IN ?", logins).Delete(&models.User{}).Error
}

// Upsert inserts or replaces the row keyed by login, grounded on
// sincronizar.rs's "INSERT OR REPLACE INTO users ... VALUES (...)".
func (t *Tx) Upsert(u *models.User) error {
	var existing models.User
	err := t.tx.Where("login = ?", u.Login).First(&existing).Error
	switch {
	case err == nil:
		u.ID = existing.ID
		return t.tx.Save(u).Error
	case err == gorm.ErrRecordNotFound:
		return t.tx.Create(u).Error
	default:
		return err
	}
}
