package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"strings"

	"rfqdesk/cmd/internal/passphrase"
	"rfqdesk/crypto"
	"rfqdesk/native/permit"
)

type permitOutput struct {
	Owner     string `json:"owner"`
	Asset     string `json:"asset"`
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	Nonce     uint64 `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "keystore output path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return printError(stderr, "-out is required")
	}
	pass, err := passphrase.NewSource(passphraseEnv, passphrase.WithConfirm()).Get()
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, "generate key: %v", err)
	}
	if err := crypto.WriteKeystore(*out, key, pass); err != nil {
		return printError(stderr, "write keystore: %v", err)
	}
	fmt.Fprintln(stdout, key.Address().String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	path := fs.String("keystore", "", "keystore path")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, code := openKeystore(*path, stderr)
	if key == nil {
		return code
	}
	fmt.Fprintln(stdout, key.Address().String())
	return 0
}

func runPermit(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("permit", stderr)
	var (
		path     = fs.String("keystore", "", "owner keystore path")
		chainID  = fs.Uint64("chain-id", 1, "chain identifier mixed into the digest")
		asset    = fs.String("asset", "", "asset symbol the allowance covers")
		spender  = fs.String("spender", "", "spender (treasury) bech32 address")
		amount   = fs.String("amount", "", "allowance amount in base units")
		nonce    = fs.Uint64("nonce", 0, "unused permit nonce")
		deadline = fs.String("deadline", "+1h", "deadline as +duration or unix seconds")
	)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	spenderAddr, err := crypto.ParseAccount(*spender)
	if err != nil {
		return printError(stderr, "spender: %v", err)
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(*amount), 10)
	if !ok {
		return printError(stderr, "invalid amount %q", *amount)
	}
	expiry, err := parseDeadline(*deadline)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, code := openKeystore(*path, stderr)
	if key == nil {
		return code
	}
	grant := &permit.Permit{
		ChainID:  *chainID,
		Asset:    strings.ToUpper(strings.TrimSpace(*asset)),
		Owner:    key.Account(),
		Spender:  spenderAddr,
		Amount:   value,
		Nonce:    *nonce,
		Deadline: expiry,
	}
	if err := grant.Sign(key.PrivateKey); err != nil {
		return printError(stderr, "sign permit: %v", err)
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(permitOutput{
		Owner:     key.Address().String(),
		Asset:     grant.Asset,
		Spender:   *spender,
		Amount:    value.String(),
		Nonce:     grant.Nonce,
		Deadline:  grant.Deadline,
		Signature: "0x" + hex.EncodeToString(grant.Signature),
	}); err != nil {
		return printError(stderr, "encode permit: %v", err)
	}
	return 0
}

func openKeystore(path string, stderr io.Writer) (*crypto.PrivateKey, int) {
	if strings.TrimSpace(path) == "" {
		return nil, printError(stderr, "-keystore is required")
	}
	pass, err := passphrase.NewSource(passphraseEnv).Get()
	if err != nil {
		return nil, printError(stderr, "%v", err)
	}
	key, err := crypto.ReadKeystore(path, pass)
	if err != nil {
		return nil, printError(stderr, "%v", err)
	}
	return key, 0
}
