// Package bank provides the value-movement collaborator used by the
// settlement engine: an in-memory multi-asset ledger with standing spender
// allowances and all-or-nothing transactions.
package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

var (
	ErrInsufficientBalance   = errors.New("bank: insufficient balance")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInvalidAmount         = errors.New("bank: amount must be non-negative")
	ErrUnknownAsset          = errors.New("bank: unknown asset")
)

// ValueMover moves amount of asset between two accounts.
type ValueMover interface {
	MoveValue(asset string, from, to [20]byte, amount *big.Int) error
}

type balanceKey struct {
	asset   string
	account [20]byte
}

type allowanceKey struct {
	asset   string
	owner   [20]byte
	spender [20]byte
}

// Ledger holds balances and allowances for a fixed set of assets. Every move
// made through Atomically is journaled and reverted when the callback fails.
type Ledger struct {
	mu         sync.Mutex
	spender    [20]byte
	assets     map[string]struct{}
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

// NewLedger returns a ledger for the supplied assets. Moves are executed on
// behalf of spender: debits from any other account consume the allowance the
// owner granted to spender.
func NewLedger(spender [20]byte, assets ...string) *Ledger {
	l := &Ledger{
		spender:    spender,
		assets:     make(map[string]struct{}, len(assets)),
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
	for _, asset := range assets {
		if normalized := normalizeAsset(asset); normalized != "" {
			l.assets[normalized] = struct{}{}
		}
	}
	return l
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

func (l *Ledger) asset(asset string) (string, error) {
	normalized := normalizeAsset(asset)
	if _, ok := l.assets[normalized]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
	return normalized, nil
}

// Mint credits amount of asset to account.
func (l *Ledger) Mint(asset string, account [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	normalized, err := l.asset(asset)
	if err != nil {
		return err
	}
	key := balanceKey{asset: normalized, account: account}
	l.balances[key] = new(big.Int).Add(l.balanceLocked(key), amount)
	return nil
}

// Balance returns a copy of the account balance.
func (l *Ledger) Balance(asset string, account [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(balanceKey{asset: normalizeAsset(asset), account: account}))
}

// Approve replaces the allowance owner grants to spender for asset.
func (l *Ledger) Approve(asset string, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	normalized, err := l.asset(asset)
	if err != nil {
		return err
	}
	l.allowances[allowanceKey{asset: normalized, owner: owner, spender: spender}] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns a copy of the allowance owner granted to spender.
func (l *Ledger) Allowance(asset string, owner, spender [20]byte) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowanceLocked(allowanceKey{asset: normalizeAsset(asset), owner: owner, spender: spender}))
}

// MoveValue performs a single move outside any transaction.
func (l *Ledger) MoveValue(asset string, from, to [20]byte, amount *big.Int) error {
	return l.Atomically(func(tx ValueMover) error {
		return tx.MoveValue(asset, from, to, amount)
	})
}

// Atomically runs fn against a journaled view of the ledger. When fn returns
// an error every move it made is rolled back and the error is returned
// unchanged.
func (l *Ledger) Atomically(fn func(ValueMover) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := &ledgerTx{ledger: l}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (l *Ledger) balanceLocked(key balanceKey) *big.Int {
	if bal, ok := l.balances[key]; ok && bal != nil {
		return bal
	}
	return new(big.Int)
}

func (l *Ledger) allowanceLocked(key allowanceKey) *big.Int {
	if allowance, ok := l.allowances[key]; ok && allowance != nil {
		return allowance
	}
	return new(big.Int)
}

type undo func()

type ledgerTx struct {
	ledger  *Ledger
	journal []undo
}

func (tx *ledgerTx) MoveValue(asset string, from, to [20]byte, amount *big.Int) error {
	l := tx.ledger
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	normalized, err := l.asset(asset)
	if err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromKey := balanceKey{asset: normalized, account: from}
	toKey := balanceKey{asset: normalized, account: to}
	fromBal := l.balanceLocked(fromKey)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, hexAccount(from), fromBal, normalized, amount)
	}
	if from != l.spender {
		allowKey := allowanceKey{asset: normalized, owner: from, spender: l.spender}
		allowance := l.allowanceLocked(allowKey)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s approved %s %s, needs %s", ErrInsufficientAllowance, hexAccount(from), allowance, normalized, amount)
		}
		prevAllowance := new(big.Int).Set(allowance)
		l.allowances[allowKey] = new(big.Int).Sub(allowance, amount)
		tx.journal = append(tx.journal, func() { l.allowances[allowKey] = prevAllowance })
	}
	prevFrom := new(big.Int).Set(fromBal)
	prevTo := new(big.Int).Set(l.balanceLocked(toKey))
	l.balances[fromKey] = new(big.Int).Sub(prevFrom, amount)
	l.balances[toKey] = new(big.Int).Add(l.balanceLocked(toKey), amount)
	tx.journal = append(tx.journal, func() {
		l.balances[fromKey] = prevFrom
		l.balances[toKey] = prevTo
	})
	return nil
}

func (tx *ledgerTx) rollback() {
	for i := len(tx.journal) - 1; i >= 0; i-- {
		tx.journal[i]()
	}
	tx.journal = nil
}

func hexAccount(addr [20]byte) string {
	return fmt.Sprintf("0x%x", addr[:])
}
