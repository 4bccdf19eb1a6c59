package crypto

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

func useLightScrypt(t *testing.T) {
	t.Helper()
	n, p := scryptN, scryptP
	scryptN, scryptP = keystore.LightScryptN, keystore.LightScryptP
	t.Cleanup(func() { scryptN, scryptP = n, p })
}

func TestAddressEncoding(t *testing.T) {
	raw := [20]byte{0xF0}
	addr := NewAddress(RFQPrefix, raw[:])
	const want = "rfq17qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqzrjshx"
	if addr.String() != want {
		t.Fatalf("unexpected encoding %q", addr.String())
	}
	parsed, err := ParseAccount(want)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != raw {
		t.Fatalf("round trip mismatch: %x", parsed)
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	raw := [20]byte{0x01}
	other := NewAddress(AddressPrefix("nhb"), raw[:]).String()
	if _, err := ParseAccount(other); err == nil {
		t.Fatalf("expected prefix error")
	}
	if _, err := ParseAccount("not-an-address"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	useLightScrypt(t)
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "owner.json")
	if err := WriteKeystore(path, key, "pass"); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := ReadKeystore(path, "pass")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatalf("loaded key differs")
	}
	if loaded.Address().String() != key.Address().String() {
		t.Fatalf("address mismatch")
	}
	if _, err := ReadKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestWriteKeystoreUsesStandardScrypt(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "owner.json")
	if err := WriteKeystore(path, key, "pass"); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var file struct {
		Crypto struct {
			KDFParams struct {
				N int `json:"n"`
				P int `json:"p"`
			} `json:"kdfparams"`
		} `json:"crypto"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if file.Crypto.KDFParams.N != keystore.StandardScryptN || file.Crypto.KDFParams.P != keystore.StandardScryptP {
		t.Fatalf("unexpected scrypt cost n=%d p=%d", file.Crypto.KDFParams.N, file.Crypto.KDFParams.P)
	}
}

func TestPrivateKeyAccountMatchesAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	account := key.Account()
	if FormatAccount(account) != key.Address().String() {
		t.Fatalf("account and address disagree")
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Account() != account {
		t.Fatalf("restored key controls a different account")
	}
}
