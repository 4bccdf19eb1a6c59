package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rfqdesk/crypto"
	"rfqdesk/native/permit"
	"rfqdesk/services/rfqd/server"
)

const treasuryBech32 = "rfq17qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzrjshx"

func TestUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage: rfqctl") {
		t.Fatalf("missing usage: %q", stderr.String())
	}
	stderr.Reset()
	if code := run([]string{"bogus"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for unknown command")
	}
}

func TestKeygenAndPermit(t *testing.T) {
	t.Setenv(passphraseEnv, "test-pass")
	original := rfqctlNow
	rfqctlNow = func() time.Time { return time.Unix(1_700_000_000, 0) }
	defer func() { rfqctlNow = original }()

	path := filepath.Join(t.TempDir(), "owner.json")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"keygen", "-out", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen failed: %s", stderr.String())
	}
	address := strings.TrimSpace(stdout.String())
	owner, err := crypto.ParseAccount(address)
	if err != nil {
		t.Fatalf("keygen printed invalid address %q: %v", address, err)
	}

	stdout.Reset()
	if code := run([]string{"address", "-keystore", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("address failed: %s", stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != address {
		t.Fatalf("address mismatch: %q vs %q", stdout.String(), address)
	}

	stdout.Reset()
	args := []string{"permit", "-keystore", path, "-asset", "quote", "-spender", treasuryBech32, "-amount", "5000", "-nonce", "7", "-deadline", "+10m"}
	if code := run(args, &stdout, &stderr); code != 0 {
		t.Fatalf("permit failed: %s", stderr.String())
	}
	var out permitOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("decode permit output: %v", err)
	}
	if out.Deadline != 1_700_000_600 || out.Asset != "QUOTE" || out.Nonce != 7 {
		t.Fatalf("unexpected permit output %+v", out)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(out.Signature, "0x"))
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	spender, _ := crypto.ParseAccount(treasuryBech32)
	grant := &permit.Permit{ChainID: 1, Asset: "QUOTE", Owner: owner, Spender: spender, Amount: big.NewInt(5000), Nonce: 7, Deadline: out.Deadline, Signature: sig}
	signer, err := grant.Signer()
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if signer != owner {
		t.Fatalf("signer mismatch")
	}
}

func TestPermitRequiresSpender(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"permit", "-keystore", "x", "-spender", "nope", "-amount", "1"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(stderr.String(), "spender") {
		t.Fatalf("unexpected error output %q", stderr.String())
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv("RFQCTL_TEST_SECRET", "s3cret")
	var stdout, stderr bytes.Buffer
	args := []string{"token", "-secret-env", "RFQCTL_TEST_SECRET", "-subject", treasuryBech32, "-ttl", "5m"}
	if code := run(args, &stdout, &stderr); code != 0 {
		t.Fatalf("token failed: %s", stderr.String())
	}
	auth, err := server.NewAuthenticator(server.AuthConfig{HMACSecret: "s3cret", Issuer: "rfqd"}, nil)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	caller, err := auth.Authenticate(strings.TrimSpace(stdout.String()))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	expected, _ := crypto.ParseAccount(treasuryBech32)
	if caller != expected {
		t.Fatalf("unexpected caller")
	}
}

func TestParseDeadline(t *testing.T) {
	original := rfqctlNow
	rfqctlNow = func() time.Time { return time.Unix(100, 0) }
	defer func() { rfqctlNow = original }()
	if got, err := parseDeadline("+1m"); err != nil || got != 160 {
		t.Fatalf("relative deadline: %d %v", got, err)
	}
	if got, err := parseDeadline("1700000000"); err != nil || got != 1_700_000_000 {
		t.Fatalf("absolute deadline: %d %v", got, err)
	}
	if _, err := parseDeadline("soon"); err == nil {
		t.Fatalf("expected error")
	}
}
