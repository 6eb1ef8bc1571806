package credit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Credits is a non-negative integer credit amount (balances, costs, allowances).
type Credits int64

// PositiveCredits is a strictly positive credit amount used for grants and purchases.
type PositiveCredits int64

// AccountID identifies a credit account.
type AccountID struct {
	value string
}

// AdminID identifies the administrator acting on an account.
type AdminID struct {
	value string
}

// IdempotencyKey scopes duplicate detection for mutating operations.
type IdempotencyKey struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// Role is the closed set of account tiers.
type Role string

const (
	RoleFree       Role = "free"
	RolePro        Role = "pro"
	RoleEnterprise Role = "enterprise"
)

// ActionType enumerates the credit-consuming features.
type ActionType string

const (
	ActionDirectGeneration    ActionType = "direct_generation"
	ActionDiscoveryGeneration ActionType = "discovery_generation"
	ActionIdeaModification    ActionType = "idea_modification"
)

// AccountStatus defines account lifecycle. Accounts are never hard-deleted.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	EntryPurchase   EntryKind = "purchase"
	EntryDeduction  EntryKind = "deduction"
	EntryRefund     EntryKind = "refund"
	EntryAdminGrant EntryKind = "admin_grant"
)

// Account is the stored per-user credit record. Balance is a cache derived
// from the ledger; the two must agree at all times.
type Account struct {
	AccountID               string
	Email                   string
	Role                    Role
	Balance                 Credits
	DailyAllowance          Credits
	LastDailyRefreshUnixUTC int64
	Status                  AccountStatus
	CreatedUnixUTC          int64
	LastLoginUnixUTC        int64
}

// Entry is a single immutable line in the ledger. Amount is signed:
// negative for deductions, positive for grants and purchases.
type Entry struct {
	EntryID        string
	AccountID      string
	Kind           EntryKind
	Amount         int64
	ActionType     string
	PackageID      string
	TransactionID  string
	AdminID        string
	IdempotencyKey string
	MetadataJSON   string
	CreatedUnixUTC int64
}

// Provenance records where credited funds came from. A set PackageID marks
// the entry as a purchase; otherwise it is an admin grant.
type Provenance struct {
	PackageID     string
	TransactionID string
	AdminID       string
	Metadata      MetadataJSON
}

// PurchaseReceipt summarizes a completed package purchase.
type PurchaseReceipt struct {
	TransactionID string
	PackageID     string
	PackageName   string
	CreditsAdded  Credits
	PriceCents    int64
	NewBalance    Credits
}

// UsageTotals aggregates ledger activity for the admin analytics view.
type UsageTotals struct {
	CreditsUsed      int64
	RevenueCents     int64
	ActionBreakdown  map[string]int64
	RoleDistribution map[string]int64
}

// NewAccountID validates and normalizes an account id.
func NewAccountID(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty value", ErrInvalidAccountID)
	}
	return AccountID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AccountID) String() string {
	return id.value
}

// NewAdminID validates and normalizes an admin id.
func NewAdminID(raw string) (AdminID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AdminID{}, fmt.Errorf("%w: empty value", ErrInvalidAdminID)
	}
	return AdminID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id AdminID) String() string {
	return id.value
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// NewCredits validates a non-negative credit amount.
func NewCredits(raw int64) (Credits, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Credits(raw), nil
}

// Int64 returns the raw amount.
func (amount Credits) Int64() int64 {
	return int64(amount)
}

// NewPositiveCredits validates a strictly positive credit amount.
func NewPositiveCredits(raw int64) (PositiveCredits, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveCredits(raw), nil
}

// ToCredits widens the amount to a balance value.
func (amount PositiveCredits) ToCredits() Credits {
	return Credits(amount)
}

// Int64 returns the raw amount.
func (amount PositiveCredits) Int64() int64 {
	return int64(amount)
}

// ParseRole validates a role name against the closed tier set.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(raw)) {
	case RoleFree:
		return RoleFree, nil
	case RolePro:
		return RolePro, nil
	case RoleEnterprise:
		return RoleEnterprise, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// String returns the role name.
func (role Role) String() string {
	return string(role)
}

// ParseActionType validates an action name against the closed action set.
func ParseActionType(raw string) (ActionType, error) {
	switch ActionType(strings.TrimSpace(raw)) {
	case ActionDirectGeneration:
		return ActionDirectGeneration, nil
	case ActionDiscoveryGeneration:
		return ActionDiscoveryGeneration, nil
	case ActionIdeaModification:
		return ActionIdeaModification, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidActionType, raw)
}

// String returns the action name.
func (action ActionType) String() string {
	return string(action)
}

// ParseAccountStatus validates an account status value.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	switch AccountStatus(strings.TrimSpace(raw)) {
	case AccountStatusActive:
		return AccountStatusActive, nil
	case AccountStatusInactive:
		return AccountStatusInactive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAccountStatus, raw)
}

// String returns the status value.
func (status AccountStatus) String() string {
	return string(status)
}

// ParseEntryKind validates a ledger entry kind.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(strings.TrimSpace(raw)) {
	case EntryPurchase:
		return EntryPurchase, nil
	case EntryDeduction:
		return EntryDeduction, nil
	case EntryRefund:
		return EntryRefund, nil
	case EntryAdminGrant:
		return EntryAdminGrant, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
}

// String returns the kind name.
func (kind EntryKind) String() string {
	return string(kind)
}

// Store is the persistence contract used by Engine. Every mutating Engine
// operation runs inside WithTx; GetAccountForUpdate must lock the account row
// for the duration of the transaction, and the Apply* updates must be
// conditional on the state observed under that lock.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetAccount(ctx context.Context, accountID string) (Account, error)
	GetAccountForUpdate(ctx context.Context, accountID string) (Account, error)
	CreateAccount(ctx context.Context, account Account) error
	ApplyBalanceDelta(ctx context.Context, accountID string, expectedBalance Credits, delta int64) error
	ApplyDailyRefresh(ctx context.Context, accountID string, expectedRefreshUnixUTC int64, allowance Credits, refreshedUnixUTC int64) error
	UpdateRole(ctx context.Context, accountID string, role Role, allowance Credits, refreshedUnixUTC int64) error
	UpdateStatus(ctx context.Context, accountID string, status AccountStatus) error
	TouchLastLogin(ctx context.Context, accountID string, loginUnixUTC int64) error
	InsertEntry(ctx context.Context, entry Entry) error
	ListEntries(ctx context.Context, accountID string, limit int) ([]Entry, error)
	ListEntriesSince(ctx context.Context, sinceUnixUTC int64) ([]Entry, error)
	SumEntries(ctx context.Context, accountID string) (int64, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}
