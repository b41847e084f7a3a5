package account

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"exchange-core/internal/db"
	"exchange-core/internal/orderbook"
)

// userLedger is one user's balances and open-order index, guarded by its
// own mutex so unrelated users never contend on the same lock.
type userLedger struct {
	mu         sync.Mutex
	balances   map[string]*Balance
	openOrders map[uint64]struct{}
}

func newUserLedger() *userLedger {
	return &userLedger{
		balances:   make(map[string]*Balance),
		openOrders: make(map[uint64]struct{}),
	}
}

func (u *userLedger) balance(asset string) *Balance {
	b, ok := u.balances[asset]
	if !ok {
		b = &Balance{Free: decimal.Zero, Locked: decimal.Zero}
		u.balances[asset] = b
	}
	return b
}

// Manager is the account and balance ledger. Every exported mutating
// method is atomic for the single user it touches; settling both sides of
// a fill is two independent per-user calls, never a single cross-user
// lock, matching the per-user atomicity the core requires.
type Manager struct {
	mu       sync.RWMutex
	users    map[string]*userLedger
	fees     FeeSchedule
	store    *db.Database
	apiKeyMu sync.Mutex
}

// NewManager creates an account manager. store may be nil, in which case
// only the in-memory balance ledger works: registration, login and API-key
// creation return an error and Authenticate resolves no key. fees may be
// nil, defaulting to ZeroFees.
func NewManager(store *db.Database, fees FeeSchedule) *Manager {
	if fees == nil {
		fees = ZeroFees
	}
	return &Manager{
		users: make(map[string]*userLedger),
		fees:  fees,
		store: store,
	}
}

func (m *Manager) ledger(userID string) *userLedger {
	m.mu.RLock()
	u, ok := m.users[userID]
	m.mu.RUnlock()
	if ok {
		return u
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return u
	}
	u = newUserLedger()
	m.users[userID] = u
	return u
}

// Deposit credits Δ (>0) to a user's free balance.
func (m *Manager) Deposit(userID, asset string, delta decimal.Decimal) error {
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	b := u.balance(asset)
	b.Free = b.Free.Add(delta)
	return nil
}

// Withdraw debits Δ (>0) from free balance, failing if insufficient.
func (m *Manager) Withdraw(userID, asset string, delta decimal.Decimal) error {
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	b := u.balance(asset)
	if b.Free.LessThan(delta) {
		return ErrInsufficientFunds
	}
	b.Free = b.Free.Sub(delta)
	return nil
}

// Lock moves Δ from free to locked, failing if free balance is short.
func (m *Manager) Lock(userID, asset string, delta decimal.Decimal) error {
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	b := u.balance(asset)
	if b.Free.LessThan(delta) {
		return ErrInsufficientFunds
	}
	b.Free = b.Free.Sub(delta)
	b.Locked = b.Locked.Add(delta)
	return nil
}

// Unlock moves Δ from locked back to free, failing if locked is short.
func (m *Manager) Unlock(userID, asset string, delta decimal.Decimal) error {
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	b := u.balance(asset)
	if b.Locked.LessThan(delta) {
		return ErrInsufficientLocked
	}
	b.Locked = b.Locked.Sub(delta)
	b.Free = b.Free.Add(delta)
	return nil
}

// Settle removes Δ from locked balance: funds leaving the account as the
// paying side of a fill.
func (m *Manager) Settle(userID, asset string, delta decimal.Decimal) error {
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	b := u.balance(asset)
	if b.Locked.LessThan(delta) {
		return ErrInsufficientLocked
	}
	b.Locked = b.Locked.Sub(delta)
	return nil
}

// Credit adds Δ to free balance: the counterparty side of a fill.
func (m *Manager) Credit(userID, asset string, delta decimal.Decimal) error {
	if !delta.IsPositive() {
		return ErrInvalidAmount
	}
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	b := u.balance(asset)
	b.Free = b.Free.Add(delta)
	return nil
}

// Balance returns a snapshot of one asset's free/locked split.
func (m *Manager) Balance(userID, asset string) Balance {
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return *u.balance(asset)
}

// Balances returns a snapshot of every asset a user has a ledger entry
// for, including entries whose free and locked amounts are both zero.
func (m *Manager) Balances(userID string) map[string]Balance {
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]Balance, len(u.balances))
	for asset, b := range u.balances {
		out[asset] = *b
	}
	return out
}

// LockForOrder computes and locks the asset/amount an order must reserve
// before admission: BUY locks quote-asset notional (with fee headroom),
// SELL locks the base-asset quantity, and a MARKET BUY sized in quote
// terms locks that quote amount directly. Returns the asset and exact
// amount locked so CancelOrder can release it verbatim.
func (m *Manager) LockForOrder(userID string, side orderbook.Side, baseAsset, quoteAsset string, price, qty, quoteOrderQty, feeRate decimal.Decimal) (asset string, amount decimal.Decimal, err error) {
	switch {
	case side == orderbook.Buy && quoteOrderQty.IsPositive():
		asset = quoteAsset
		amount = quoteOrderQty
	case side == orderbook.Buy:
		asset = quoteAsset
		notional := qty.Mul(price)
		amount = notional.Mul(decimal.NewFromInt(1).Add(feeRate))
	default:
		asset = baseAsset
		amount = qty
	}

	if err := m.Lock(userID, asset, amount); err != nil {
		return "", decimal.Zero, err
	}
	return asset, amount, nil
}

// FeeRate returns the configured fee schedule's rate for (side, role).
func (m *Manager) FeeRate(side orderbook.Side, role orderbook.Role) decimal.Decimal {
	return m.fees(side, role)
}

// AddOpenOrder records orderID against userID's open-order index (used for
// "list open orders" and "cancel all").
func (m *Manager) AddOpenOrder(userID string, orderID uint64) {
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.openOrders[orderID] = struct{}{}
}

// RemoveOpenOrder clears orderID from userID's open-order index.
func (m *Manager) RemoveOpenOrder(userID string, orderID uint64) {
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.openOrders, orderID)
}

// OpenOrderIDs returns every order id currently tracked as open for
// userID.
func (m *Manager) OpenOrderIDs(userID string) []uint64 {
	u := m.ledger(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := make([]uint64, 0, len(u.openOrders))
	for id := range u.openOrders {
		ids = append(ids, id)
	}
	return ids
}

// RegisterUser hashes password with bcrypt and persists the user row. Only
// available when the manager was constructed with a store.
func (m *Manager) RegisterUser(userID, email, password string) error {
	if m.store == nil {
		return fmt.Errorf("account: no persistent store configured")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("account: hash password: %w", err)
	}
	return m.store.CreateUser(db.User{ID: userID, Email: email, PasswordHash: string(hash)})
}

// Login verifies email/password and returns the matching user id.
func (m *Manager) Login(email, password string) (string, error) {
	if m.store == nil {
		return "", fmt.Errorf("account: no persistent store configured")
	}
	u, err := m.store.UserByEmail(email)
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("account: invalid credentials")
	}
	return u.ID, nil
}

// CreateAPIKey mints a random API key for userID, persists only its hash,
// and returns the plaintext key once. There is no expiry or scope in the
// core contract.
func (m *Manager) CreateAPIKey(userID, label string) (string, error) {
	if m.store == nil {
		return "", fmt.Errorf("account: no persistent store configured")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("account: generate api key: %w", err)
	}
	key := hex.EncodeToString(raw)

	m.apiKeyMu.Lock()
	defer m.apiKeyMu.Unlock()
	if err := m.store.InsertAPIKey(hashAPIKey(key), userID, label); err != nil {
		return "", err
	}
	return key, nil
}

// Authenticate resolves an API key to its owning user id, or "" if the
// key is unknown.
func (m *Manager) Authenticate(apiKey string) string {
	if m.store == nil {
		return ""
	}
	userID, err := m.store.UserIDForAPIKeyHash(hashAPIKey(apiKey))
	if err != nil {
		return ""
	}
	return userID
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
