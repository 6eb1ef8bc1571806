package credit

import (
	"context"
	"fmt"
)

// Engine is the only component permitted to mutate balances. Every mutation
// runs inside a store transaction that locks the account row, applies the
// balance change conditionally on the locked value, and appends the matching
// ledger entry, so the two writes commit or roll back together.
type Engine struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewEngine wires an Engine.
func NewEngine(store Store, now func() int64, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidEngineConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidEngineConfig)
	}
	engine := &Engine{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	return engine, nil
}

// GetBalance returns the account snapshot, applying the daily allowance
// refresh first when it is due.
func (engine *Engine) GetBalance(ctx context.Context, accountID AccountID) (Account, error) {
	account, err := engine.store.GetAccount(ctx, accountID.String())
	if err != nil {
		return Account{}, err
	}
	if !engine.refreshDue(account) {
		return account, nil
	}
	var refreshed bool
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		locked, err := transactionStore.GetAccountForUpdate(ctx, accountID.String())
		if err != nil {
			return err
		}
		updated, err := engine.applyDailyRefresh(ctx, transactionStore, locked)
		if err != nil {
			return err
		}
		// A concurrent caller may have refreshed between the snapshot read
		// and the locked read; log and count the grant only when this
		// transaction applied it.
		refreshed = updated.LastDailyRefreshUnixUTC != locked.LastDailyRefreshUnixUTC
		account = updated
		return nil
	})
	if refreshed || operationError != nil {
		engine.logOperation(ctx, OperationLog{
			Operation: operationRefresh,
			AccountID: accountID.String(),
			Role:      account.Role.String(),
			Amount:    DailyAllowanceFor(account.Role).Int64(),
			Error:     operationError,
		})
	}
	if operationError != nil {
		return Account{}, operationError
	}
	return account, nil
}

// HasSufficientBalance reports whether the account can afford an action.
// Read-only: the daily refresh is left to GetBalance and Deduct.
func (engine *Engine) HasSufficientBalance(ctx context.Context, accountID AccountID, action ActionType) (bool, error) {
	account, err := engine.store.GetAccount(ctx, accountID.String())
	if err != nil {
		return false, err
	}
	if account.Role == RoleEnterprise {
		return true, nil
	}
	return account.Balance >= CostOf(action, account.Role), nil
}

// Deduct charges the account for an action and appends a deduction entry.
// Enterprise accounts short-circuit to success with zero mutation. Returns
// ErrInsufficientCredits without mutating anything when the balance is too
// low.
func (engine *Engine) Deduct(ctx context.Context, accountID AccountID, action ActionType, idempotencyKey IdempotencyKey) (Credits, error) {
	var newBalance Credits
	var cost Credits
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccountForUpdate(ctx, accountID.String())
		if err != nil {
			return err
		}
		if account.Status == AccountStatusInactive {
			return ErrAccountInactive
		}
		account, err = engine.applyDailyRefresh(ctx, transactionStore, account)
		if err != nil {
			return err
		}
		if account.Role == RoleEnterprise {
			newBalance = account.Balance
			return nil
		}
		cost = CostOf(action, account.Role)
		if cost == 0 {
			newBalance = account.Balance
			return nil
		}
		if account.Balance < cost {
			return ErrInsufficientCredits
		}
		if err := transactionStore.ApplyBalanceDelta(ctx, account.AccountID, account.Balance, -cost.Int64()); err != nil {
			return err
		}
		newBalance = account.Balance - cost
		return transactionStore.InsertEntry(ctx, Entry{
			AccountID:      account.AccountID,
			Kind:           EntryDeduction,
			Amount:         -cost.Int64(),
			ActionType:     action.String(),
			IdempotencyKey: idempotencyKey.String(),
			CreatedUnixUTC: engine.nowFn(),
		})
	})
	engine.logOperation(ctx, OperationLog{
		Operation:      operationDeduct,
		AccountID:      accountID.String(),
		Action:         action.String(),
		Amount:         -cost.Int64(),
		IdempotencyKey: idempotencyKey.String(),
		Error:          operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return newBalance, nil
}

// Credit adds funds to the account and appends a purchase entry when the
// provenance names a package, an admin_grant entry otherwise.
func (engine *Engine) Credit(ctx context.Context, accountID AccountID, amount PositiveCredits, provenance Provenance, idempotencyKey IdempotencyKey) (Credits, error) {
	kind := EntryAdminGrant
	if provenance.PackageID != "" {
		kind = EntryPurchase
	}
	var newBalance Credits
	operationError := engine.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccountForUpdate(ctx, accountID.String())
		if err != nil {
			return err
		}
		if account.Status == AccountStatusInactive {
			return ErrAccountInactive
		}
		if err := transactionStore.ApplyBalanceDelta(ctx, account.AccountID, account.Balance, amount.Int64()); err != nil {
			return err
		}
		newBalance = account.Balance + amount.ToCredits()
		return transactionStore.InsertEntry(ctx, Entry{
			AccountID:      account.AccountID,
			Kind:           kind,
			Amount:         amount.Int64(),
			PackageID:      provenance.PackageID,
			TransactionID:  provenance.TransactionID,
			AdminID:        provenance.AdminID,
			IdempotencyKey: idempotencyKey.String(),
			MetadataJSON:   provenance.Metadata.String(),
			CreatedUnixUTC: engine.nowFn(),
		})
	})
	engine.logOperation(ctx, OperationLog{
		Operation:      operationCredit,
		AccountID:      accountID.String(),
		Amount:         amount.Int64(),
		IdempotencyKey: idempotencyKey.String(),
		Error:          operationError,
	})
	if operationError != nil {
		return 0, operationError
	}
	return newBalance, nil
}

func (engine *Engine) logOperation(ctx context.Context, entry OperationLog) {
	if engine.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	engine.logger.LogOperation(ctx, entry)
}
