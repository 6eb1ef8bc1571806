package credit

import (
	"context"
	"encoding/json"
	"fmt"
)

// refreshDue reports whether the account is owed a daily allowance top-up:
// the role must have a nonzero configured amount and the last refresh must be
// at least a rolling 24h window in the past.
func (engine *Engine) refreshDue(account Account) bool {
	if DailyAllowanceFor(account.Role) == 0 {
		return false
	}
	return engine.nowFn()-account.LastDailyRefreshUnixUTC >= secondsPerDay
}

// applyDailyRefresh grants the allowance inside the caller's transaction.
// The account must have been read under a row lock; the conditional update
// keyed on the observed refresh timestamp plus the derived idempotency key
// guarantee at most one refresh per window even under concurrent triggers.
func (engine *Engine) applyDailyRefresh(ctx context.Context, transactionStore Store, account Account) (Account, error) {
	if !engine.refreshDue(account) {
		return account, nil
	}
	allowance := DailyAllowanceFor(account.Role)
	nowUnixUTC := engine.nowFn()
	if err := transactionStore.ApplyDailyRefresh(ctx, account.AccountID, account.LastDailyRefreshUnixUTC, allowance, nowUnixUTC); err != nil {
		return Account{}, err
	}
	entry := Entry{
		AccountID:      account.AccountID,
		Kind:           EntryAdminGrant,
		Amount:         allowance.Int64(),
		IdempotencyKey: deriveRefreshKey(account.AccountID, account.LastDailyRefreshUnixUTC),
		MetadataJSON:   reasonMetadata(reasonDailyRefresh, account.Role),
		CreatedUnixUTC: nowUnixUTC,
	}
	if err := transactionStore.InsertEntry(ctx, entry); err != nil {
		return Account{}, err
	}
	account.Balance += allowance
	account.DailyAllowance = allowance
	account.LastDailyRefreshUnixUTC = nowUnixUTC
	return account, nil
}

// deriveRefreshKey scopes the refresh entry to the window being replaced, so
// two racing refreshes collide on the ledger's unique idempotency index.
func deriveRefreshKey(accountID string, previousRefreshUnixUTC int64) string {
	return fmt.Sprintf("%s%s%s%s%d", idempotencyPrefixRefresh, idempotencyKeyDelimiter, accountID, idempotencyKeyDelimiter, previousRefreshUnixUTC)
}

func reasonMetadata(reason string, role Role) string {
	raw, err := json.Marshal(map[string]string{"reason": reason, "role": role.String()})
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func roleChangeMetadata(previousRole Role, newRole Role) string {
	raw, err := json.Marshal(map[string]string{
		"reason":        reasonRoleChange,
		"previous_role": previousRole.String(),
		"new_role":      newRole.String(),
	})
	if err != nil {
		return "{}"
	}
	return string(raw)
}
