package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table.
type Account struct {
	AccountID        string    `gorm:"primaryKey"`
	Email            string    `gorm:"not null"`
	Role             string    `gorm:"not null"`
	Balance          int64     `gorm:"not null"`
	DailyAllowance   int64     `gorm:"not null"`
	LastDailyRefresh time.Time `gorm:"not null"`
	Status           string    `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	LastLogin        *time.Time
}

func (Account) TableName() string { return "accounts" }

// LedgerEntry mirrors the ledger_entries table. Rows are append-only.
type LedgerEntry struct {
	EntryID        string         `gorm:"type:uuid;primaryKey"`
	AccountID      string         `gorm:"not null;index:idx_ledger_account_created,priority:1;index:uniq_entry_idem,unique,priority:1"`
	Kind           string         `gorm:"not null"`
	Amount         int64          `gorm:"not null"`
	ActionType     *string        `gorm:""`
	PackageID      *string        `gorm:""`
	TransactionID  *string        `gorm:""`
	AdminID        *string        `gorm:""`
	IdempotencyKey string         `gorm:"not null;index:uniq_entry_idem,unique,priority:2"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_ledger_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}
