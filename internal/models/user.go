// Package models contains the GORM-backed records of the authoritative store.
package models

import "time"

// Kind is the upstream/account family a user belongs to.
type Kind string

const (
	KindSSH     Kind = "ssh"
	KindV2Ray   Kind = "v2ray"
	KindXray    Kind = "xray"
	KindOpenVPN Kind = "openvpn"
)

// Valid reports whether k is one of the four recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindSSH, KindV2Ray, KindXray, KindOpenVPN:
		return true
	default:
		return false
	}
}

// RequiresUUID reports whether this kind requires a non-empty UUID (v2ray/xray).
func (k Kind) RequiresUUID() bool {
	return k == KindV2Ray || k == KindXray
}

// User is the authoritative record for one tunnel account (C1).
type User struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Login     string    `gorm:"type:varchar(255);unique;not null;index" json:"login"`
	Password  string    `gorm:"type:varchar(255);not null" json:"password"`
	Days      int       `gorm:"not null;default:0" json:"days"`
	Limit     int       `gorm:"not null;default:0" json:"limit"`
	UUID      string    `gorm:"type:varchar(36);unique" json:"uuid,omitempty"`
	Kind      Kind      `gorm:"type:varchar(16);not null;index" json:"kind"`
	Suspended bool      `gorm:"not null;default:false" json:"suspended"`
	Owner     string    `gorm:"type:varchar(255)" json:"owner"`
	OwnerID   int       `gorm:"column:owner_id" json:"owner_id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName pins the GORM table name regardless of struct renames.
func (User) TableName() string { return "users" }
