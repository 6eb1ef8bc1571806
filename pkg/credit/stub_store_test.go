package credit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

// stubStore is an in-memory Store. WithTx serializes callers on a single
// mutex, standing in for the row lock a real store takes, so the conditional
// Apply* checks see the same interleavings they would under SELECT FOR UPDATE.
type stubStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts map[string]Account
	entries  []Entry
	keys     map[string]struct{}

	getAccountError    error
	createAccountError error
	applyDeltaError    error
	applyRefreshError  error
	insertEntryError   error
	listEntriesError   error
	listSinceError     error
	sumEntriesError    error
	listAccountsError  error
	updateRoleError    error
	updateStatusError  error
	touchLoginError    error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts: map[string]Account{},
		keys:     map[string]struct{}{},
	}
}

func (store *stubStore) seedAccount(account Account) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.accounts[account.AccountID] = account
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()
	return fn(ctx, store)
}

func (store *stubStore) GetAccount(_ context.Context, accountID string) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (store *stubStore) GetAccountForUpdate(ctx context.Context, accountID string) (Account, error) {
	return store.GetAccount(ctx, accountID)
}

func (store *stubStore) CreateAccount(_ context.Context, account Account) error {
	if store.createAccountError != nil {
		return store.createAccountError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.accounts[account.AccountID]; ok {
		return ErrAccountExists
	}
	store.accounts[account.AccountID] = account
	return nil
}

func (store *stubStore) ApplyBalanceDelta(_ context.Context, accountID string, expectedBalance Credits, delta int64) error {
	if store.applyDeltaError != nil {
		return store.applyDeltaError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if account.Balance != expectedBalance {
		return ErrBalanceConflict
	}
	account.Balance = Credits(account.Balance.Int64() + delta)
	store.accounts[accountID] = account
	return nil
}

func (store *stubStore) ApplyDailyRefresh(_ context.Context, accountID string, expectedRefreshUnixUTC int64, allowance Credits, refreshedUnixUTC int64) error {
	if store.applyRefreshError != nil {
		return store.applyRefreshError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if account.LastDailyRefreshUnixUTC != expectedRefreshUnixUTC {
		return ErrBalanceConflict
	}
	account.Balance += allowance
	account.DailyAllowance = allowance
	account.LastDailyRefreshUnixUTC = refreshedUnixUTC
	store.accounts[accountID] = account
	return nil
}

func (store *stubStore) UpdateRole(_ context.Context, accountID string, role Role, allowance Credits, refreshedUnixUTC int64) error {
	if store.updateRoleError != nil {
		return store.updateRoleError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Role = role
	account.DailyAllowance = allowance
	account.LastDailyRefreshUnixUTC = refreshedUnixUTC
	store.accounts[accountID] = account
	return nil
}

func (store *stubStore) UpdateStatus(_ context.Context, accountID string, status AccountStatus) error {
	if store.updateStatusError != nil {
		return store.updateStatusError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.Status = status
	store.accounts[accountID] = account
	return nil
}

func (store *stubStore) TouchLastLogin(_ context.Context, accountID string, loginUnixUTC int64) error {
	if store.touchLoginError != nil {
		return store.touchLoginError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.LastLoginUnixUTC = loginUnixUTC
	store.accounts[accountID] = account
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry Entry) error {
	if store.insertEntryError != nil {
		return store.insertEntryError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	key := entry.AccountID + "\x00" + entry.IdempotencyKey
	if entry.IdempotencyKey != "" {
		if _, ok := store.keys[key]; ok {
			return ErrDuplicateIdempotencyKey
		}
		store.keys[key] = struct{}{}
	}
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("entry-%d", len(store.entries)+1)
	}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListEntries(_ context.Context, accountID string, limit int) ([]Entry, error) {
	if store.listEntriesError != nil {
		return nil, store.listEntriesError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var matched []Entry
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

func (store *stubStore) ListEntriesSince(_ context.Context, sinceUnixUTC int64) ([]Entry, error) {
	if store.listSinceError != nil {
		return nil, store.listSinceError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var matched []Entry
	for _, entry := range store.entries {
		if entry.CreatedUnixUTC >= sinceUnixUTC {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

func (store *stubStore) SumEntries(_ context.Context, accountID string) (int64, error) {
	if store.sumEntriesError != nil {
		return 0, store.sumEntriesError
	}
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

func (store *stubStore) ListAccounts(_ context.Context) ([]Account, error) {
	if store.listAccountsError != nil {
		return nil, store.listAccountsError
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	accounts := make([]Account, 0, len(store.accounts))
	for _, account := range store.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountID < accounts[j].AccountID
	})
	return accounts, nil
}

func (store *stubStore) entriesFor(accountID string) []Entry {
	store.mu.Lock()
	defer store.mu.Unlock()
	var matched []Entry
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			matched = append(matched, entry)
		}
	}
	return matched
}

func (store *stubStore) mustAccount(test *testing.T, accountID string) Account {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	account, ok := store.accounts[accountID]
	if !ok {
		test.Fatalf("account %q missing", accountID)
	}
	return account
}

func accountFixture(accountID string, role Role, balance Credits, lastRefreshUnixUTC int64) Account {
	return Account{
		AccountID:               accountID,
		Email:                   accountID + "@example.test",
		Role:                    role,
		Balance:                 balance,
		DailyAllowance:          DailyAllowanceFor(role),
		LastDailyRefreshUnixUTC: lastRefreshUnixUTC,
		Status:                  AccountStatusActive,
		CreatedUnixUTC:          lastRefreshUnixUTC,
		LastLoginUnixUTC:        lastRefreshUnixUTC,
	}
}

func mustNewEngine(test *testing.T, store Store, now func() int64, options ...EngineOption) *Engine {
	test.Helper()
	engine, err := NewEngine(store, now, options...)
	if err != nil {
		test.Fatalf("engine init: %v", err)
	}
	return engine
}

func mustAccountIDValue(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return accountID
}

func mustAdminIDValue(test *testing.T, raw string) AdminID {
	test.Helper()
	adminID, err := NewAdminID(raw)
	if err != nil {
		test.Fatalf("admin id: %v", err)
	}
	return adminID
}

func mustIdempotencyKeyValue(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return key
}

func mustPositiveCreditsValue(test *testing.T, raw int64) PositiveCredits {
	test.Helper()
	amount, err := NewPositiveCredits(raw)
	if err != nil {
		test.Fatalf("positive credits: %v", err)
	}
	return amount
}

func mustMetadataValue(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata: %v", err)
	}
	return metadata
}
