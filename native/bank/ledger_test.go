package bank

import (
	"errors"
	"math/big"
	"testing"
)

var (
	pool  = [20]byte{0xF0}
	alice = [20]byte{0xA1}
	bob   = [20]byte{0xB0}
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger(pool, "base", "usd")
	if err := l.Mint("BASE", pool, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint("USD", alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return l
}

func TestMoveFromSpenderNeedsNoAllowance(t *testing.T) {
	l := newTestLedger(t)
	if err := l.MoveValue("BASE", pool, alice, big.NewInt(300)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := l.Balance("BASE", alice); got.Int64() != 300 {
		t.Fatalf("expected alice base 300, got %s", got)
	}
	if got := l.Balance("BASE", pool); got.Int64() != 700 {
		t.Fatalf("expected pool base 700, got %s", got)
	}
}

func TestMoveConsumesAllowance(t *testing.T) {
	l := newTestLedger(t)
	if err := l.MoveValue("USD", alice, pool, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := l.Approve("USD", alice, pool, big.NewInt(100)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.MoveValue("USD", alice, pool, big.NewInt(60)); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := l.Allowance("USD", alice, pool); got.Int64() != 40 {
		t.Fatalf("expected remaining allowance 40, got %s", got)
	}
}

func TestAtomicallyRollsBackEveryLeg(t *testing.T) {
	l := newTestLedger(t)
	_ = l.Approve("USD", alice, pool, big.NewInt(1_000))
	err := l.Atomically(func(tx ValueMover) error {
		if err := tx.MoveValue("BASE", pool, alice, big.NewInt(200)); err != nil {
			return err
		}
		return tx.MoveValue("USD", alice, pool, big.NewInt(900))
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := l.Balance("BASE", alice); got.Sign() != 0 {
		t.Fatalf("base leg not rolled back: %s", got)
	}
	if got := l.Balance("BASE", pool); got.Int64() != 1_000 {
		t.Fatalf("pool balance not restored: %s", got)
	}
	if got := l.Allowance("USD", alice, pool); got.Int64() != 1_000 {
		t.Fatalf("allowance changed by failed transaction: %s", got)
	}
}

func TestMoveValidation(t *testing.T) {
	l := newTestLedger(t)
	if err := l.MoveValue("EUR", pool, bob, big.NewInt(1)); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected unknown asset, got %v", err)
	}
	if err := l.MoveValue("BASE", pool, bob, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := l.MoveValue("BASE", bob, pool, big.NewInt(0)); err != nil {
		t.Fatalf("zero move should succeed: %v", err)
	}
	if err := l.Mint("BASE", bob, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected nil mint to fail, got %v", err)
	}
}
