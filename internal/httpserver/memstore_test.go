package httpserver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pideas/creditd/pkg/credit"
)

// memStore is a minimal credit.Store for handler tests. WithTx serializes on
// a mutex the way the real store serializes on the row lock.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts map[string]credit.Account
	entries  []credit.Entry
	keys     map[string]struct{}
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]credit.Account{},
		keys:     map[string]struct{}{},
	}
}

func (store *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore credit.Store) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()
	return fn(ctx, store)
}

func (store *memStore) GetAccount(_ context.Context, accountID string) (credit.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return credit.Account{}, credit.ErrAccountNotFound
	}
	return account, nil
}

func (store *memStore) GetAccountForUpdate(ctx context.Context, accountID string) (credit.Account, error) {
	return store.GetAccount(ctx, accountID)
}

func (store *memStore) CreateAccount(_ context.Context, account credit.Account) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.accounts[account.AccountID]; ok {
		return credit.ErrAccountExists
	}
	store.accounts[account.AccountID] = account
	return nil
}

func (store *memStore) ApplyBalanceDelta(_ context.Context, accountID string, expectedBalance credit.Credits, delta int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return credit.ErrAccountNotFound
	}
	if account.Balance != expectedBalance {
		return credit.ErrBalanceConflict
	}
	account.Balance = credit.Credits(account.Balance.Int64() + delta)
	store.accounts[accountID] = account
	return nil
}

func (store *memStore) ApplyDailyRefresh(_ context.Context, accountID string, expectedRefreshUnixUTC int64, allowance credit.Credits, refreshedUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return credit.ErrAccountNotFound
	}
	if account.LastDailyRefreshUnixUTC != expectedRefreshUnixUTC {
		return credit.ErrBalanceConflict
	}
	account.Balance += allowance
	account.DailyAllowance = allowance
	account.LastDailyRefreshUnixUTC = refreshedUnixUTC
	store.accounts[accountID] = account
	return nil
}

func (store *memStore) UpdateRole(_ context.Context, accountID string, role credit.Role, allowance credit.Credits, refreshedUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return credit.ErrAccountNotFound
	}
	account.Role = role
	account.DailyAllowance = allowance
	account.LastDailyRefreshUnixUTC = refreshedUnixUTC
	store.accounts[accountID] = account
	return nil
}

func (store *memStore) UpdateStatus(_ context.Context, accountID string, status credit.AccountStatus) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return credit.ErrAccountNotFound
	}
	account.Status = status
	store.accounts[accountID] = account
	return nil
}

func (store *memStore) TouchLastLogin(_ context.Context, accountID string, loginUnixUTC int64) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return credit.ErrAccountNotFound
	}
	account.LastLoginUnixUTC = loginUnixUTC
	store.accounts[accountID] = account
	return nil
}

func (store *memStore) InsertEntry(_ context.Context, entry credit.Entry) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if entry.IdempotencyKey != "" {
		key := entry.AccountID + "\x00" + entry.IdempotencyKey
		if _, ok := store.keys[key]; ok {
			return credit.ErrDuplicateIdempotencyKey
		}
		store.keys[key] = struct{}{}
	}
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("entry-%d", len(store.entries)+1)
	}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *memStore) ListEntries(_ context.Context, accountID string, limit int) ([]credit.Entry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var matched []credit.Entry
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			matched = append(matched, entry)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedUnixUTC > matched[j].CreatedUnixUTC
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (store *memStore) ListEntriesSince(_ context.Context, sinceUnixUTC int64) ([]credit.Entry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var matched []credit.Entry
	for _, entry := range store.entries {
		if entry.CreatedUnixUTC >= sinceUnixUTC {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (store *memStore) SumEntries(_ context.Context, accountID string) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var sum int64
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			sum += entry.Amount
		}
	}
	return sum, nil
}

func (store *memStore) ListAccounts(_ context.Context) ([]credit.Account, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	accounts := make([]credit.Account, 0, len(store.accounts))
	for _, account := range store.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, nil
}
