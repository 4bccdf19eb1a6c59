package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"rfqdesk/crypto"
	"rfqdesk/native/bank"
	"rfqdesk/native/roles"
	"rfqdesk/native/settlement"
	"rfqdesk/services/rfqd/config"
)

// seedLedger builds the in-memory ledger with the treasury as the only
// spender and mints the configured opening balances.
func seedLedger(params settlement.Parameters, balances []config.Balance) (*bank.Ledger, error) {
	ledger := bank.NewLedger(params.Treasury, params.BaseAsset, params.CounterAsset)
	for i, entry := range balances {
		account, err := crypto.ParseAccount(entry.Account)
		if err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		if !ok {
			return nil, fmt.Errorf("balances[%d]: invalid amount %q", i, entry.Amount)
		}
		if err := ledger.Mint(entry.Asset, account, amount); err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
		if entry.Approve && account != params.Treasury {
			if err := ledger.Approve(entry.Asset, account, params.Treasury, amount); err != nil {
				return nil, fmt.Errorf("balances[%d]: %w", i, err)
			}
		}
	}
	return ledger, nil
}

func seedRoles(cfg config.RolesConfig) (*roles.Store, error) {
	store := roles.NewStore()
	assign := func(role string, members []string) error {
		for _, member := range members {
			account, err := crypto.ParseAccount(member)
			if err != nil {
				return fmt.Errorf("%s: %w", role, err)
			}
			if err := store.SetRole(role, account[:]); err != nil {
				return err
			}
		}
		return nil
	}
	if err := assign(roles.RoleAcceptor, cfg.Acceptors); err != nil {
		return nil, err
	}
	if err := assign(roles.RoleLimitAdmin, cfg.LimitAdmins); err != nil {
		return nil, err
	}
	if err := assign(roles.RoleWhitelisted, cfg.Whitelist); err != nil {
		return nil, err
	}
	return store, nil
}

// runSweeper removes expired requests every interval until ctx is done.
func runSweeper(ctx context.Context, engine *settlement.Engine, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := engine.ExpireAll(); len(removed) > 0 {
				logger.Info("rfqd: swept expired requests", slog.Int("count", len(removed)))
			}
		}
	}
}
