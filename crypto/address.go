package crypto

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

// RFQPrefix is the only prefix accepted for desk accounts.
const RFQPrefix AddressPrefix = "rfq"

// Address is a 20 byte account tagged with its bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress panics unless b is exactly 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// FormatAccount renders a raw account with the rfq prefix.
func FormatAccount(account [20]byte) string {
	return NewAddress(RFQPrefix, account[:]).String()
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte { return a.bytes }

func (a Address) Prefix() AddressPrefix { return a.prefix }

// Array returns the fixed-size form used by the engine.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// DecodeAddress parses any bech32 address carrying a 20 byte payload.
func DecodeAddress(raw string) (Address, error) {
	prefix, decoded, err := bech32.Decode(raw)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("convert bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address must be 20 bytes (got %d)", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// ParseAccount decodes a bech32 address and enforces the rfq prefix.
func ParseAccount(raw string) ([20]byte, error) {
	addr, err := DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != RFQPrefix {
		return [20]byte{}, fmt.Errorf("address prefix %q not supported", addr.Prefix())
	}
	return addr.Array(), nil
}
