package openfinance

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/ledger"
	"ledgersync/internal/domain/snapshot"
	ofclient "ledgersync/internal/infrastructure/openfinance"
)

type memEntry struct {
	connectionID string
	accountID    string
	entry        ledger.Entry
}

type memState struct {
	conns    map[string]connection.Connection
	accounts map[string]map[string]string
	balances map[string]decimal.Decimal
	entries  map[string]memEntry
	notified []int64
}

func (s memState) clone() memState {
	out := memState{
		conns:    maps.Clone(s.conns),
		accounts: make(map[string]map[string]string, len(s.accounts)),
		balances: maps.Clone(s.balances),
		entries:  maps.Clone(s.entries),
		notified: append([]int64(nil), s.notified...),
	}
	for k, v := range s.accounts {
		out.accounts[k] = maps.Clone(v)
	}
	return out
}

// memLedger is an in-memory LedgerStore and ConnectionStore with real rollback.
type memLedger struct {
	mu         sync.Mutex
	state      memState
	failUpsert string
	marked     map[string]string
}

func newMemLedger() *memLedger {
	return &memLedger{
		state: memState{
			conns:    map[string]connection.Connection{},
			accounts: map[string]map[string]string{},
			balances: map[string]decimal.Decimal{},
			entries:  map[string]memEntry{},
		},
		marked: map[string]string{},
	}
}

func (l *memLedger) addConnection(c connection.Connection, externalAccounts ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c.Status == "" {
		c.Status = connection.StatusActive
	}
	l.state.conns[c.ID] = c
	accts := map[string]string{}
	for _, ext := range externalAccounts {
		accts[ext] = "acc-" + ext
	}
	l.state.accounts[c.ID] = accts
}

func (l *memLedger) entryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.state.entries)
}

func (l *memLedger) entry(externalID string) (memEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.state.entries[externalID]
	return e, ok
}

// balance reports the stored current balance of an external account.
func (l *memLedger) balance(externalID string) (decimal.Decimal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state.balances[externalID]
	return b, ok
}

func (l *memLedger) cursor(connectionID string) *string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.conns[connectionID].Cursor
}

func (l *memLedger) InTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	saved := l.state.clone()
	if err := fn(&memTx{l: l}); err != nil {
		l.state = saved
		return err
	}
	return nil
}

func (l *memLedger) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.state.conns[id]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}
	return &c, nil
}

func (l *memLedger) GetCursor(ctx context.Context, id string) (*string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.state.conns[id]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}
	return c.Cursor, nil
}

func (l *memLedger) ListByOwnerID(ctx context.Context, ownerID int64) ([]*connection.Connection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*connection.Connection
	for _, c := range l.state.conns {
		if c.OwnerID == ownerID {
			out = append(out, &c)
		}
	}
	return out, nil
}

func (l *memLedger) MarkError(ctx context.Context, id string, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.state.conns[id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	c.Status = connection.StatusError
	c.LastError = &message
	l.state.conns[id] = c
	l.marked[id] = message
	return nil
}

// memTx runs with memLedger.mu held by InTx.
type memTx struct {
	l *memLedger
}

func (t *memTx) LockConnection(ctx context.Context, connectionID string) (*connection.Connection, error) {
	c, ok := t.l.state.conns[connectionID]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}
	return &c, nil
}

func (t *memTx) UpsertAccounts(ctx context.Context, connectionID string, params []account.UpsertParams) error {
	accts := t.l.state.accounts[connectionID]
	if accts == nil {
		accts = map[string]string{}
		t.l.state.accounts[connectionID] = accts
	}
	for _, p := range params {
		if t.claimedElsewhere(connectionID, p.ExternalID) {
			continue
		}
		accts[p.ExternalID] = "acc-" + p.ExternalID
		t.l.state.balances[p.ExternalID] = p.CurrentBalance
	}
	return nil
}

func (t *memTx) claimedElsewhere(connectionID, externalID string) bool {
	for id, accts := range t.l.state.accounts {
		if _, ok := accts[externalID]; ok && id != connectionID {
			return true
		}
	}
	return false
}

func (t *memTx) ResolveAccounts(ctx context.Context, connectionID string, externalIDs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, ext := range externalIDs {
		if id, ok := t.l.state.accounts[connectionID][ext]; ok {
			out[ext] = id
		}
	}
	return out, nil
}

func (t *memTx) UpsertEntry(ctx context.Context, connectionID, accountID string, e ledger.Entry) (bool, error) {
	if e.ExternalID == t.l.failUpsert {
		return false, errors.New("disk full")
	}
	if cur, ok := t.l.state.entries[e.ExternalID]; ok && cur.connectionID != connectionID {
		return false, nil
	}
	t.l.state.entries[e.ExternalID] = memEntry{connectionID: connectionID, accountID: accountID, entry: e}
	return true, nil
}

func (t *memTx) DeleteEntry(ctx context.Context, connectionID, externalID string) (bool, error) {
	cur, ok := t.l.state.entries[externalID]
	if !ok || cur.connectionID != connectionID {
		return false, nil
	}
	delete(t.l.state.entries, externalID)
	return true, nil
}

func (t *memTx) AdvanceCursor(ctx context.Context, connectionID, cursor string, at time.Time) error {
	c := t.l.state.conns[connectionID]
	c.Cursor = &cursor
	c.LastSyncedAt = &at
	c.LastError = nil
	c.Status = connection.StatusActive
	t.l.state.conns[connectionID] = c
	return nil
}

func (t *memTx) NotifyApplied(ctx context.Context, ownerID int64) error {
	t.l.state.notified = append(t.l.state.notified, ownerID)
	return nil
}

// MockPageFetcher is a mock implementation of PageFetcher
type MockPageFetcher struct {
	mu           sync.Mutex
	cursors      []string
	SyncPageFunc func(ctx context.Context, accessToken, cursor string) (*ofclient.SyncPageResponse, error)
}

func (m *MockPageFetcher) SyncPage(ctx context.Context, accessToken, cursor string) (*ofclient.SyncPageResponse, error) {
	m.mu.Lock()
	m.cursors = append(m.cursors, cursor)
	m.mu.Unlock()
	return m.SyncPageFunc(ctx, accessToken, cursor)
}

func (m *MockPageFetcher) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cursors...)
}

// pagesFrom serves a fixed cursor -> page table.
func pagesFrom(pages map[string]*ofclient.SyncPageResponse) func(context.Context, string, string) (*ofclient.SyncPageResponse, error) {
	return func(_ context.Context, _ string, cursor string) (*ofclient.SyncPageResponse, error) {
		page, ok := pages[cursor]
		if !ok {
			return nil, ofclient.NewAPIError(400, ofclient.ErrorResponse{ErrorCode: "INVALID_CURSOR"})
		}
		return page, nil
	}
}

func wireTx(id, accountID, amount string) ofclient.Transaction {
	return ofclient.Transaction{
		TransactionID: id,
		AccountID:     accountID,
		Amount:        json.Number(amount),
		Date:          "2024-03-15",
		Name:          "Coffee " + id,
	}
}

func removed(ids ...string) []ofclient.Removed {
	out := make([]ofclient.Removed, len(ids))
	for i, id := range ids {
		out[i] = ofclient.Removed{TransactionID: id}
	}
	return out
}

type prefixVault struct{}

func (prefixVault) Decrypt(blob string) (string, error) {
	token, ok := strings.CutPrefix(blob, "enc:")
	if !ok {
		return "", errors.New("crypto error: authentication failed")
	}
	return token, nil
}

// MockAccountFetcher is a mock implementation of AccountFetcher
type MockAccountFetcher struct {
	FetchAccountsFunc func(ctx context.Context, accessToken string) ([]account.UpsertParams, error)
}

func (m *MockAccountFetcher) FetchAccounts(ctx context.Context, accessToken string) ([]account.UpsertParams, error) {
	if m.FetchAccountsFunc != nil {
		return m.FetchAccountsFunc(ctx, accessToken)
	}
	return nil, nil
}

type countingRecomputer struct {
	mu    sync.Mutex
	calls []int64
}

func (r *countingRecomputer) Recompute(ctx context.Context, ownerID int64) (*snapshot.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ownerID)
	return &snapshot.Snapshot{OwnerID: ownerID}, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	attention []string
	updated   map[string]int
}

func (n *recordingNotifier) ConnectionNeedsAttention(ctx context.Context, ownerID int64, connectionID, institution string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attention = append(n.attention, connectionID)
}

func (n *recordingNotifier) LedgerUpdated(ctx context.Context, ownerID int64, connectionID string, changed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updated == nil {
		n.updated = map[string]int{}
	}
	n.updated[connectionID] = changed
}
