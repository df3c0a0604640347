package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fairyhunter13/rcn-reward-engine/internal/model"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
)

// mockTx is a mock implementation of pgx.Tx for testing transactions.
type mockTx struct {
	commitFn   func(ctx context.Context) error
	rollbackFn func(ctx context.Context) error
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("nested transactions not supported")
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitFn != nil {
		return m.commitFn(ctx)
	}
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if m.rollbackFn != nil {
		return m.rollbackFn(ctx)
	}
	return nil
}

func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (m *mockTx) LargeObjects() pgx.LargeObjects {
	return pgx.LargeObjects{}
}

func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}

func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (m *mockTx) Conn() *pgx.Conn {
	return nil
}

// mockTxBeginner is a mock implementation of TxBeginner.
type mockTxBeginner struct {
	beginFn func(ctx context.Context) (pgx.Tx, error)
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return &mockTx{}, nil
}

// fakeStore is an in-memory ledger. Begin serialises transactions the way
// row locks do for a single customer, and a rollback without commit restores
// the state seen at Begin.
type fakeStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	customers map[string]model.Customer
	shops     map[string]model.Shop
	periods   map[string]int64
	balances  map[string]map[string]model.ShopBalance
	sessions  map[string]model.RedemptionSession
	txs       []model.LedgerTransaction

	// errs injects a failure into the named operation, e.g. "ledger.InsertTransaction".
	errs      map[string]error
	commitErr error
	commits   int
	rollbacks int
}

type fakeSnapshot struct {
	customers map[string]model.Customer
	shops     map[string]model.Shop
	periods   map[string]int64
	balances  map[string]map[string]model.ShopBalance
	sessions  map[string]model.RedemptionSession
	txs       []model.LedgerTransaction
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		customers: map[string]model.Customer{},
		shops:     map[string]model.Shop{},
		periods:   map[string]int64{},
		balances:  map[string]map[string]model.ShopBalance{},
		sessions:  map[string]model.RedemptionSession{},
		errs:      map[string]error{},
	}
}

func (f *fakeStore) addCustomer(address string, lifetime int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[address] = model.Customer{Address: address, Tier: model.TierBronze, LifetimeEarnings: lifetime}
}

func (f *fakeStore) addShop(shop model.Shop) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shops[shop.ShopID] = shop
}

// seedBalance attributes earned tokens to shopID and raises lifetime earnings to match.
func (f *fakeStore) seedBalance(address, shopID string, earned int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[address] == nil {
		f.balances[address] = map[string]model.ShopBalance{}
	}
	b := f.balances[address][shopID]
	b.ShopID = shopID
	b.Earned += earned
	f.balances[address][shopID] = b
	c := f.customers[address]
	c.LifetimeEarnings += earned
	f.customers[address] = c
}

func (f *fakeStore) customer(address string) model.Customer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customers[address]
}

func (f *fakeStore) shop(shopID string) model.Shop {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shops[shopID]
}

func (f *fakeStore) session(id string) model.RedemptionSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeStore) shopBalance(address, shopID string) model.ShopBalance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address][shopID]
}

func (f *fakeStore) transactions() []model.LedgerTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LedgerTransaction(nil), f.txs...)
}

func (f *fakeStore) fail(op string) error {
	return f.errs[op]
}

func (f *fakeStore) snapshot() fakeSnapshot {
	s := fakeSnapshot{
		customers: map[string]model.Customer{},
		shops:     map[string]model.Shop{},
		periods:   map[string]int64{},
		balances:  map[string]map[string]model.ShopBalance{},
		sessions:  map[string]model.RedemptionSession{},
		txs:       append([]model.LedgerTransaction(nil), f.txs...),
	}
	for k, v := range f.customers {
		s.customers[k] = v
	}
	for k, v := range f.shops {
		s.shops[k] = v
	}
	for k, v := range f.periods {
		s.periods[k] = v
	}
	for addr, m := range f.balances {
		s.balances[addr] = map[string]model.ShopBalance{}
		for k, v := range m {
			s.balances[addr][k] = v
		}
	}
	for k, v := range f.sessions {
		s.sessions[k] = v
	}
	return s
}

func (f *fakeStore) restore(s fakeSnapshot) {
	f.customers = s.customers
	f.shops = s.shops
	f.periods = s.periods
	f.balances = s.balances
	f.sessions = s.sessions
	f.txs = s.txs
}

// Begin implements TxBeginner.
func (f *fakeStore) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := f.fail("begin"); err != nil {
		return nil, err
	}
	f.txMu.Lock()
	f.mu.Lock()
	snap := f.snapshot()
	f.mu.Unlock()

	var once sync.Once
	done := false
	finish := func(commit bool) {
		once.Do(func() {
			f.mu.Lock()
			if commit {
				f.commits++
			} else {
				f.rollbacks++
				f.restore(snap)
			}
			f.mu.Unlock()
			done = true
			f.txMu.Unlock()
		})
	}
	return &mockTx{
		commitFn: func(ctx context.Context) error {
			if f.commitErr != nil {
				finish(false)
				return f.commitErr
			}
			finish(true)
			return nil
		},
		rollbackFn: func(ctx context.Context) error {
			if done {
				return pgx.ErrTxClosed
			}
			finish(false)
			return nil
		},
	}, nil
}

type fakeCustomers struct{ *fakeStore }

func (f fakeCustomers) GetByAddress(ctx context.Context, address string) (*model.Customer, error) {
	if err := f.fail("customers.GetByAddress"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[address]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f fakeCustomers) GetForUpdate(ctx context.Context, tx database.TxQuerier, address string) (*model.Customer, error) {
	if err := f.fail("customers.GetForUpdate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[address]
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

func (f fakeCustomers) ApplyCredit(ctx context.Context, tx database.TxQuerier, address string, amount int64, tier model.Tier, at time.Time) error {
	if err := f.fail("customers.ApplyCredit"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[address]
	if !ok {
		return ErrCustomerNotFound
	}
	c.LifetimeEarnings += amount
	c.Tier = tier
	c.LastEarnedAt = &at
	f.customers[address] = c
	return nil
}

func (f fakeCustomers) ApplyDebit(ctx context.Context, tx database.TxQuerier, address string, amount int64) error {
	if err := f.fail("customers.ApplyDebit"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.customers[address]
	if c.Balance() < amount {
		return ErrInsufficientBalance
	}
	c.TotalRedemptions += amount
	f.customers[address] = c
	return nil
}

type fakeShops struct{ *fakeStore }

func (f fakeShops) GetByID(ctx context.Context, shopID string) (*model.Shop, error) {
	if err := f.fail("shops.GetByID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shops[shopID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f fakeShops) GetForUpdate(ctx context.Context, tx database.TxQuerier, shopID string) (*model.Shop, error) {
	if err := f.fail("shops.GetForUpdate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shops[shopID]
	if !ok {
		return nil, ErrShopNotFound
	}
	return &s, nil
}

func (f fakeShops) RecordIssuance(ctx context.Context, tx database.TxQuerier, shopID string, issued, bonusFunded int64) error {
	if err := f.fail("shops.RecordIssuance"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.shops[shopID]
	if s.PurchasedRcnBalance < bonusFunded {
		return ErrInsufficientShopBalance
	}
	s.PurchasedRcnBalance -= bonusFunded
	s.TotalTokensIssued += issued
	f.shops[shopID] = s
	return nil
}

func (f fakeShops) RecordRedemption(ctx context.Context, tx database.TxQuerier, shopID string, amount int64) error {
	if err := f.fail("shops.RecordRedemption"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.shops[shopID]
	s.TotalRedemptions += amount
	f.shops[shopID] = s
	return nil
}

type fakeSessions struct{ *fakeStore }

func (f fakeSessions) Insert(ctx context.Context, s *model.RedemptionSession) error {
	if err := f.fail("sessions.Insert"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.SessionID] = *s
	return nil
}

func (f fakeSessions) GetByID(ctx context.Context, sessionID string) (*model.RedemptionSession, error) {
	if err := f.fail("sessions.GetByID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f fakeSessions) GetForUpdate(ctx context.Context, tx database.TxQuerier, sessionID string) (*model.RedemptionSession, error) {
	if err := f.fail("sessions.GetForUpdate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (f fakeSessions) Transition(ctx context.Context, tx database.TxQuerier, sessionID string, from, to model.SessionStatus, at time.Time) error {
	if err := f.fail("sessions.Transition"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.Status != from {
		return ErrInvalidSessionState
	}
	s.Status = to
	s.ResolvedAt = &at
	f.sessions[sessionID] = s
	return nil
}

func (f fakeSessions) ListPendingByCustomer(ctx context.Context, address string, now time.Time) ([]model.RedemptionSession, error) {
	if err := f.fail("sessions.ListPendingByCustomer"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.RedemptionSession{}
	for _, s := range f.sessions {
		if s.CustomerAddress == address && s.Status == model.SessionPending && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f fakeSessions) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	if err := f.fail("sessions.ExpireStale"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, s := range f.sessions {
		if s.Status == model.SessionPending && !s.ExpiresAt.After(now) {
			s.Status = model.SessionExpired
			at := now
			s.ResolvedAt = &at
			f.sessions[id] = s
			n++
		}
	}
	return n, nil
}

type fakeLedger struct{ *fakeStore }

func (f fakeLedger) GetPeriodTotals(ctx context.Context, address, dayKey, monthKey string) (int64, int64, error) {
	return f.GetPeriodTotalsTx(ctx, nil, address, dayKey, monthKey)
}

func (f fakeLedger) GetPeriodTotalsTx(ctx context.Context, tx database.TxQuerier, address, dayKey, monthKey string) (int64, int64, error) {
	if err := f.fail("ledger.GetPeriodTotals"); err != nil {
		return 0, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.periods[address+"|"+dayKey], f.periods[address+"|"+monthKey], nil
}

func (f fakeLedger) AddToPeriods(ctx context.Context, tx database.TxQuerier, address, dayKey, monthKey string, base int64) error {
	if err := f.fail("ledger.AddToPeriods"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods[address+"|"+dayKey] += base
	f.periods[address+"|"+monthKey] += base
	return nil
}

func (f fakeLedger) GetShopBalances(ctx context.Context, address string) ([]model.ShopBalance, error) {
	return f.GetShopBalancesTx(ctx, nil, address)
}

func (f fakeLedger) GetShopBalancesTx(ctx context.Context, tx database.TxQuerier, address string) ([]model.ShopBalance, error) {
	if err := f.fail("ledger.GetShopBalances"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.ShopBalance{}
	for _, b := range f.balances[address] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShopID < out[j].ShopID })
	return out, nil
}

func (f fakeLedger) CreditShopBalance(ctx context.Context, tx database.TxQuerier, address, shopID string, amount int64) error {
	if err := f.fail("ledger.CreditShopBalance"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[address] == nil {
		f.balances[address] = map[string]model.ShopBalance{}
	}
	b := f.balances[address][shopID]
	b.ShopID = shopID
	b.Earned += amount
	f.balances[address][shopID] = b
	return nil
}

func (f fakeLedger) DebitShopBalance(ctx context.Context, tx database.TxQuerier, address, shopID string, amount int64, crossShop bool) error {
	if err := f.fail("ledger.DebitShopBalance"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.balances[address][shopID]
	if b.Available() < amount {
		return ErrInsufficientBalance
	}
	b.Redeemed += amount
	if crossShop {
		b.CrossRedeemed += amount
	}
	f.balances[address][shopID] = b
	return nil
}

func (f fakeLedger) InsertTransaction(ctx context.Context, tx database.TxQuerier, t *model.LedgerTransaction) error {
	if err := f.fail("ledger.InsertTransaction"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.SessionID != nil {
		for _, existing := range f.txs {
			if existing.SessionID != nil && *existing.SessionID == *t.SessionID {
				return ErrInvalidSessionState
			}
		}
	}
	f.txs = append(f.txs, *t)
	return nil
}

// recordingEmitter captures emitted events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []model.DomainEvent
}

func (r *recordingEmitter) Emit(ctx context.Context, event model.DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) all() []model.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.DomainEvent(nil), r.events...)
}

// recordingMetrics counts recorded outcomes.
type recordingMetrics struct {
	mu             sync.Mutex
	baseIssued     int64
	bonusIssued    int64
	bonusSkipped   int
	limitRejected  map[string]int
	resolved       map[model.SessionStatus]int
	signatureFails int
	swept          int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{limitRejected: map[string]int{}, resolved: map[model.SessionStatus]int{}}
}

func (r *recordingMetrics) RewardIssued(base, bonus int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseIssued += base
	r.bonusIssued += bonus
}

func (r *recordingMetrics) BonusSkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bonusSkipped++
}

func (r *recordingMetrics) LimitRejected(limit string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limitRejected[limit]++
}

func (r *recordingMetrics) RedemptionResolved(outcome model.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved[outcome]++
}

func (r *recordingMetrics) SignatureRejected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signatureFails++
}

func (r *recordingMetrics) SessionsSwept(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.swept += n
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
