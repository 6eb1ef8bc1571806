package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pideas/creditd/pkg/credit"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectEntry     = "entry"
	errorSubjectBalance   = "balance"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeSum          = "sum"
	errorCodeUpdate       = "update"
)

// Store implements credit.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema. Intended for sqlite; Postgres deployments own
// their migrations.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{}, &LedgerEntry{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credit.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetAccount(ctx context.Context, accountID string) (credit.Account, error) {
	return store.getAccount(ctx, accountID, false)
}

// GetAccountForUpdate locks the account row for the enclosing transaction.
func (store *Store) GetAccountForUpdate(ctx context.Context, accountID string) (credit.Account, error) {
	return store.getAccount(ctx, accountID, true)
}

func (store *Store) getAccount(ctx context.Context, accountID string, forUpdate bool) (credit.Account, error) {
	query := store.db.WithContext(ctx)
	// SQLite has no FOR UPDATE; its writers are serialized at the database
	// level already.
	if forUpdate && store.db.Dialector.Name() != "sqlite" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model Account
	err := query.Where("account_id = ?", accountID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return credit.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, credit.ErrAccountNotFound)
		}
		return credit.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := mapAccount(model)
	if err != nil {
		return credit.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) CreateAccount(ctx context.Context, account credit.Account) error {
	var lastLogin *time.Time
	if account.LastLoginUnixUTC != 0 {
		value := time.Unix(account.LastLoginUnixUTC, 0).UTC()
		lastLogin = &value
	}
	model := Account{
		AccountID:        account.AccountID,
		Email:            account.Email,
		Role:             account.Role.String(),
		Balance:          account.Balance.Int64(),
		DailyAllowance:   account.DailyAllowance.Int64(),
		LastDailyRefresh: time.Unix(account.LastDailyRefreshUnixUTC, 0).UTC(),
		Status:           account.Status.String(),
		CreatedAt:        time.Unix(account.CreatedUnixUTC, 0).UTC(),
		LastLogin:        lastLogin,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeDuplicate, credit.ErrAccountExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

// ApplyBalanceDelta adjusts the balance only if it still matches the value
// observed under the row lock.
func (store *Store) ApplyBalanceDelta(ctx context.Context, accountID string, expectedBalance credit.Credits, delta int64) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ? AND balance = ?", accountID, expectedBalance.Int64()).
		Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, credit.ErrBalanceConflict)
	}
	return nil
}

// ApplyDailyRefresh grants the allowance only if the refresh timestamp is
// still the one the caller observed.
func (store *Store) ApplyDailyRefresh(ctx context.Context, accountID string, expectedRefreshUnixUTC int64, allowance credit.Credits, refreshedUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ? AND last_daily_refresh = ?", accountID, time.Unix(expectedRefreshUnixUTC, 0).UTC()).
		Updates(map[string]interface{}{
			"balance":            gorm.Expr("balance + ?", allowance.Int64()),
			"daily_allowance":    allowance.Int64(),
			"last_daily_refresh": time.Unix(refreshedUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectBalance, errorCodeUpdate, credit.ErrBalanceConflict)
	}
	return nil
}

func (store *Store) UpdateRole(ctx context.Context, accountID string, role credit.Role, allowance credit.Credits, refreshedUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"role":               role.String(),
			"daily_allowance":    allowance.Int64(),
			"last_daily_refresh": time.Unix(refreshedUnixUTC, 0).UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, credit.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) UpdateStatus(ctx context.Context, accountID string, status credit.AccountStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", accountID).
		Update("status", status.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, credit.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) TouchLastLogin(ctx context.Context, accountID string, loginUnixUTC int64) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", accountID).
		Update("last_login", time.Unix(loginUnixUTC, 0).UTC())
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, credit.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) InsertEntry(ctx context.Context, entry credit.Entry) error {
	model := LedgerEntry{
		EntryID:        entry.EntryID,
		AccountID:      entry.AccountID,
		Kind:           entry.Kind.String(),
		Amount:         entry.Amount,
		ActionType:     optionalString(entry.ActionType),
		PackageID:      optionalString(entry.PackageID),
		TransactionID:  optionalString(entry.TransactionID),
		AdminID:        optionalString(entry.AdminID),
		IdempotencyKey: entry.IdempotencyKey,
		Metadata:       datatypesJSON(entry.MetadataJSON),
		CreatedAt:      time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, credit.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListEntries(ctx context.Context, accountID string, limit int) ([]credit.Entry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func (store *Store) ListEntriesSince(ctx context.Context, sinceUnixUTC int64) ([]credit.Entry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("created_at >= ?", time.Unix(sinceUnixUTC, 0).UTC()).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func (store *Store) SumEntries(ctx context.Context, accountID string) (int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount),0) as total").
		Where("account_id = ?", accountID).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectEntry, errorCodeSum, err)
	}
	return sum.Total, nil
}

func (store *Store) ListAccounts(ctx context.Context) ([]credit.Account, error) {
	var rows []Account
	err := store.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]credit.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return credit.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapAccount(model Account) (credit.Account, error) {
	role, err := credit.ParseRole(model.Role)
	if err != nil {
		return credit.Account{}, err
	}
	status, err := credit.ParseAccountStatus(model.Status)
	if err != nil {
		return credit.Account{}, err
	}
	balance, err := credit.NewCredits(model.Balance)
	if err != nil {
		return credit.Account{}, err
	}
	allowance, err := credit.NewCredits(model.DailyAllowance)
	if err != nil {
		return credit.Account{}, err
	}
	return credit.Account{
		AccountID:               model.AccountID,
		Email:                   model.Email,
		Role:                    role,
		Balance:                 balance,
		DailyAllowance:          allowance,
		LastDailyRefreshUnixUTC: model.LastDailyRefresh.Unix(),
		Status:                  status,
		CreatedUnixUTC:          model.CreatedAt.Unix(),
		LastLoginUnixUTC:        timeOrZero(model.LastLogin),
	}, nil
}

func mapLedgerEntries(rows []LedgerEntry) ([]credit.Entry, error) {
	entries := make([]credit.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapLedgerEntry(row LedgerEntry) (credit.Entry, error) {
	kind, err := credit.ParseEntryKind(row.Kind)
	if err != nil {
		return credit.Entry{}, err
	}
	return credit.Entry{
		EntryID:        row.EntryID,
		AccountID:      row.AccountID,
		Kind:           kind,
		Amount:         row.Amount,
		ActionType:     stringOrEmpty(row.ActionType),
		PackageID:      stringOrEmpty(row.PackageID),
		TransactionID:  stringOrEmpty(row.TransactionID),
		AdminID:        stringOrEmpty(row.AdminID),
		IdempotencyKey: row.IdempotencyKey,
		MetadataJSON:   string(row.Metadata),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func timeOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
