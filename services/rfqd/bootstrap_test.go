package main

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rfqdesk/crypto"
	"rfqdesk/native/roles"
	"rfqdesk/native/settlement"
	"rfqdesk/services/rfqd/config"
)

func encode(addr [20]byte) string {
	return crypto.FormatAccount(addr)
}

func TestSeedLedger(t *testing.T) {
	treasury := [20]byte{0xF0}
	maker := [20]byte{0xA1}
	params, err := settlement.Config{Treasury: encode(treasury)}.Parameters()
	require.NoError(t, err)

	ledger, err := seedLedger(params, []config.Balance{
		{Account: encode(treasury), Asset: "base", Amount: "1000"},
		{Account: encode(maker), Asset: "QUOTE", Amount: "250", Approve: true},
	})
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), ledger.Balance("BASE", treasury))
	require.Equal(t, big.NewInt(250), ledger.Allowance("QUOTE", maker, treasury))

	_, err = seedLedger(params, []config.Balance{{Account: encode(maker), Asset: "BASE", Amount: "lots"}})
	require.Error(t, err)
	_, err = seedLedger(params, []config.Balance{{Account: encode(maker), Asset: "OTHER", Amount: "1"}})
	require.Error(t, err)
}

func TestSeedRoles(t *testing.T) {
	desk := [20]byte{0xC0}
	store, err := seedRoles(config.RolesConfig{Acceptors: []string{encode(desk)}, Whitelist: []string{encode(desk)}})
	require.NoError(t, err)
	require.True(t, store.HasRole(roles.RoleAcceptor, desk[:]))
	require.False(t, store.HasRole(roles.RoleLimitAdmin, desk[:]))
	require.True(t, roles.Whitelist{Store: store}.IsWhitelisted(desk))

	_, err = seedRoles(config.RolesConfig{LimitAdmins: []string{"nope"}})
	require.Error(t, err)
}
