// Package store implements the Authoritative Store (C1): the sole source of
// truth for user membership and authorization, grounded on
// internal/repository/user_repo.go's GORM repository shape.
package store

import (
	"errors"
	"fmt"

	"vpnctl/internal/models"

	"gorm.io/gorm"
)

// Sentinel errors, mirroring the teacher's internal/repository idiom.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Store is the C1 Authoritative Store.
type Store struct {
	db *gorm.DB
}

// New wraps an already-connected *gorm.DB. Migrate must be called once at
// startup before use.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates/updates the schema for the User and Domain models.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&models.User{}, &models.Domain{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// DB exposes the underlying *gorm.DB. The Reconciler opens its transaction
// through Begin (tx.go), not through this accessor.
func (s *Store) DB() *gorm.DB { return s.db }

// Create inserts a new user. Returns ErrUserExists on a unique-constraint hit.
func (s *Store) Create(u *models.User) error {
	if err := s.db.Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

// GetByLogin retrieves a user by login.
func (s *Store) GetByLogin(login string) (*models.User, error) {
	var u models.User
	if err := s.db.Where("login = ?", login).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByUUID retrieves a user by UUID.
func (s *Store) GetByUUID(uuid string) (*models.User, error) {
	var u models.User
	if err := s.db.Where("uuid = ?", uuid).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetAll returns every user row (used by the observer each tick and by
// DeleteGlobal's post-delete client-list rewrite; the reconciler reads the
// current set C through Tx.GetAll instead).
func (s *Store) GetAll() ([]models.User, error) {
	var users []models.User
	if err := s.db.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Update persists changes to an existing row keyed by its primary key.
func (s *Store) Update(u *models.User) error {
	if err := s.db.Save(u).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return err
	}
	return nil
}

// DeleteByLogin removes the row for login. Self-healing: never errors if
// the row is already absent (C6 Delete's "always delete the user row").
func (s *Store) DeleteByLogin(login string) error {
	return s.db.Where("login = ?", login).Delete(&models.User{}).Error
}

// GetDomain reads the single-row domain table, or ("", nil) if unset.
func (s *Store) GetDomain() (string, error) {
	var d models.Domain
	if err := s.db.First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return d.Hostname, nil
}

// SetDomain replaces the single domain row with hostname, delete-then-insert
// within one transaction per spec.md §3's invariant.
func (s *Store) SetDomain(hostname string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.Domain{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Domain{Hostname: hostname}).Error
	})
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx wraps unique_violation as SQLSTATE 23505; compare the message
	// substring the way the teacher's handlers already tolerate driver
	// variance instead of importing pgconn for a *pgconn.PgError type switch.
	return containsUniqueViolationHint(err.Error())
}

func containsUniqueViolationHint(msg string) bool {
	const hint = "duplicate key value violates unique constraint"
	return len(msg) >= len(hint) && (indexOf(msg, hint) >= 0)
}

func indexOf(haystack, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if haystack[i:i+n] == needle {
			return i
		}
	}
	return -1
}
