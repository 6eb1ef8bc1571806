package credit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const defaultHistoryLimit = 50

// Initialize creates the account with its role-appropriate signup grant.
// Safe to call on every login: an existing account only gets its last-login
// timestamp touched. The read runs before the insert so the repeat-login
// path never trips a unique violation, which on Postgres would abort the
// whole transaction; only a create race between two first logins retries.
func (engine *Engine) Initialize(ctx context.Context, accountID AccountID, email string, role Role) (Account, error) {
	account, operationError := engine.initializeAccount(ctx, accountID, email, role)
	if errors.Is(operationError, ErrAccountExists) {
		account, operationError = engine.initializeAccount(ctx, accountID, email, role)
	}
	engine.logOperation(ctx, OperationLog{
		Operation: operationInitialize,
		AccountID: accountID.String(),
		Role:      role.String(),
		Amount:    SignupGrantFor(role).Int64(),
		Error:     operationError,
	})
	if operationError != nil {
		return Account{}, operationError
	}
	return account, nil
}

func (engine *Engine) initializeAccount(ctx context.Context, accountID AccountID, email string, role Role) (Account, error) {
	var account Account
	err := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		nowUnixUTC := engine.nowFn()
		existing, err := transactionStore.GetAccountForUpdate(ctx, accountID.String())
		if err == nil {
			if touchErr := transactionStore.TouchLastLogin(ctx, accountID.String(), nowUnixUTC); touchErr != nil {
				return touchErr
			}
			existing.LastLoginUnixUTC = nowUnixUTC
			account = existing
			return nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return err
		}
		grant := SignupGrantFor(role)
		account = Account{
			AccountID:               accountID.String(),
			Email:                   email,
			Role:                    role,
			Balance:                 grant,
			DailyAllowance:          DailyAllowanceFor(role),
			LastDailyRefreshUnixUTC: nowUnixUTC,
			Status:                  AccountStatusActive,
			CreatedUnixUTC:          nowUnixUTC,
			LastLoginUnixUTC:        nowUnixUTC,
		}
		if err := transactionStore.CreateAccount(ctx, account); err != nil {
			return err
		}
		if grant == 0 {
			return nil
		}
		return transactionStore.InsertEntry(ctx, Entry{
			AccountID:      accountID.String(),
			Kind:           EntryAdminGrant,
			Amount:         grant.Int64(),
			IdempotencyKey: deriveSignupKey(accountID.String()),
			MetadataJSON:   reasonMetadata(reasonInitialSignup, role),
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	return account, err
}

// ChangeRole moves the account to a new tier, resets the daily allowance to
// the new tier's amount, and appends a zero-amount admin_grant entry
// recording the transition.
func (engine *Engine) ChangeRole(ctx context.Context, accountID AccountID, newRole Role, actingAdminID AdminID, idempotencyKey IdempotencyKey) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccountForUpdate(ctx, accountID.String())
		if err != nil {
			return err
		}
		nowUnixUTC := engine.nowFn()
		if err := transactionStore.UpdateRole(ctx, account.AccountID, newRole, DailyAllowanceFor(newRole), nowUnixUTC); err != nil {
			return err
		}
		return transactionStore.InsertEntry(ctx, Entry{
			AccountID:      account.AccountID,
			Kind:           EntryAdminGrant,
			Amount:         0,
			AdminID:        actingAdminID.String(),
			IdempotencyKey: idempotencyKey.String(),
			MetadataJSON:   roleChangeMetadata(account.Role, newRole),
			CreatedUnixUTC: nowUnixUTC,
		})
	})
	engine.logOperation(ctx, OperationLog{
		Operation:      operationChangeRole,
		AccountID:      accountID.String(),
		Role:           newRole.String(),
		IdempotencyKey: idempotencyKey.String(),
		Error:          operationError,
	})
	return operationError
}

// SetStatus flips the account between active and inactive. Accounts are
// never hard-deleted.
func (engine *Engine) SetStatus(ctx context.Context, accountID AccountID, status AccountStatus, actingAdminID AdminID) error {
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetAccountForUpdate(ctx, accountID.String()); err != nil {
			return err
		}
		return transactionStore.UpdateStatus(ctx, accountID.String(), status)
	})
	engine.logOperation(ctx, OperationLog{
		Operation: operationSetStatus,
		AccountID: accountID.String(),
		Action:    status.String(),
		Error:     operationError,
	})
	return operationError
}

// PurchasePackage validates package eligibility for the account's role,
// credits the bundle, and returns a receipt. Payment capture is mocked: a
// transaction id is minted and recorded on the purchase entry.
func (engine *Engine) PurchasePackage(ctx context.Context, accountID AccountID, packageID string, paymentMethodID string, idempotencyKey IdempotencyKey) (PurchaseReceipt, error) {
	bundle, ok := LookupPackage(packageID)
	if !ok {
		return PurchaseReceipt{}, fmt.Errorf("%w: %q", ErrUnknownPackage, packageID)
	}
	var receipt PurchaseReceipt
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccountForUpdate(ctx, accountID.String())
		if err != nil {
			return err
		}
		if account.Status == AccountStatusInactive {
			return ErrAccountInactive
		}
		if !ValidatePurchase(packageID, account.Role) {
			return ErrPackageNotEligible
		}
		transactionID := transactionIDPrefix + uuid.NewString()
		if err := transactionStore.ApplyBalanceDelta(ctx, account.AccountID, account.Balance, bundle.Credits.Int64()); err != nil {
			return err
		}
		entry := Entry{
			AccountID:      account.AccountID,
			Kind:           EntryPurchase,
			Amount:         bundle.Credits.Int64(),
			PackageID:      bundle.PackageID,
			TransactionID:  transactionID,
			IdempotencyKey: idempotencyKey.String(),
			MetadataJSON:   purchaseMetadata(bundle, paymentMethodID),
			CreatedUnixUTC: engine.nowFn(),
		}
		if err := transactionStore.InsertEntry(ctx, entry); err != nil {
			return err
		}
		receipt = PurchaseReceipt{
			TransactionID: transactionID,
			PackageID:     bundle.PackageID,
			PackageName:   bundle.Name,
			CreditsAdded:  bundle.Credits,
			PriceCents:    bundle.PriceCents,
			NewBalance:    account.Balance + bundle.Credits,
		}
		return nil
	})
	engine.logOperation(ctx, OperationLog{
		Operation:      operationPurchase,
		AccountID:      accountID.String(),
		Action:         packageID,
		Amount:         bundle.Credits.Int64(),
		IdempotencyKey: idempotencyKey.String(),
		Error:          operationError,
	})
	if operationError != nil {
		return PurchaseReceipt{}, operationError
	}
	return receipt, nil
}

// HistoryFor lists ledger entries for an account, newest first. Each call
// re-queries the store.
func (engine *Engine) HistoryFor(ctx context.Context, accountID AccountID, limit int) ([]Entry, error) {
	if _, err := engine.store.GetAccount(ctx, accountID.String()); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return engine.store.ListEntries(ctx, accountID.String(), limit)
}

// ListAccounts returns every account for the admin console.
func (engine *Engine) ListAccounts(ctx context.Context) ([]Account, error) {
	return engine.store.ListAccounts(ctx)
}

// UsageSummary aggregates ledger activity over the trailing number of days:
// credits consumed, per-action and per-role breakdowns, and purchase revenue
// priced from the catalog.
func (engine *Engine) UsageSummary(ctx context.Context, days int) (UsageTotals, error) {
	if days <= 0 {
		days = 30
	}
	sinceUnixUTC := engine.nowFn() - int64(days)*secondsPerDay
	entries, err := engine.store.ListEntriesSince(ctx, sinceUnixUTC)
	if err != nil {
		return UsageTotals{}, err
	}
	totals := UsageTotals{
		ActionBreakdown:  map[string]int64{},
		RoleDistribution: map[string]int64{},
	}
	for _, entry := range entries {
		switch entry.Kind {
		case EntryDeduction:
			used := -entry.Amount
			totals.CreditsUsed += used
			if entry.ActionType != "" {
				totals.ActionBreakdown[entry.ActionType] += used
			}
		case EntryPurchase:
			if bundle, ok := LookupPackage(entry.PackageID); ok {
				totals.RevenueCents += bundle.PriceCents
			}
		}
	}
	accounts, err := engine.store.ListAccounts(ctx)
	if err != nil {
		return UsageTotals{}, err
	}
	for _, account := range accounts {
		totals.RoleDistribution[account.Role.String()]++
	}
	return totals, nil
}

// VerifyLedger checks the balance-equals-ledger-sum invariant for an account.
func (engine *Engine) VerifyLedger(ctx context.Context, accountID AccountID) error {
	account, err := engine.store.GetAccount(ctx, accountID.String())
	if err != nil {
		return err
	}
	sum, err := engine.store.SumEntries(ctx, accountID.String())
	if err != nil {
		return err
	}
	if account.Balance.Int64() != sum {
		return fmt.Errorf("%w: balance=%d ledger=%d", ErrLedgerMismatch, account.Balance, sum)
	}
	return nil
}

func deriveSignupKey(accountID string) string {
	return idempotencyPrefixSignup + idempotencyKeyDelimiter + accountID
}

func purchaseMetadata(bundle Package, paymentMethodID string) string {
	raw, err := json.Marshal(map[string]any{
		"package_name":      bundle.Name,
		"price_cents":       bundle.PriceCents,
		"payment_method_id": paymentMethodID,
	})
	if err != nil {
		return "{}"
	}
	return string(raw)
}
