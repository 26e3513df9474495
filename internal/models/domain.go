package models

// Domain is the single-row table holding the current external tunnel
// hostname. Updates are delete-then-insert within a transaction (C1 §3).
type Domain struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	Hostname string `gorm:"type:varchar(255);not null" json:"hostname"`
}

func (Domain) TableName() string { return "domain" }
