package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey is a secp256k1 signing key. Permits are signed with the embedded
// ecdsa key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32 byte scalar.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// Account derives the raw account controlled by the key.
func (k *PrivateKey) Account() [20]byte {
	return [20]byte(ethcrypto.PubkeyToAddress(k.PrivateKey.PublicKey))
}

// Address derives the bech32 address controlled by the key.
func (k *PrivateKey) Address() Address {
	account := k.Account()
	return NewAddress(RFQPrefix, account[:])
}
