// Package permit implements signature-based delegated authorization. An owner
// signs a permit off-line granting a spender an allowance; anyone may submit
// the permit, and a successful verification installs the allowance on the
// ledger before the spender draws on it.
package permit

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// DomainV1 is the domain separator mixed into every permit digest.
const DomainV1 = "RFQ_PERMIT_V1"

var (
	ErrPermitExpired          = errors.New("permit: deadline elapsed")
	ErrPermitSignatureInvalid = errors.New("permit: signature invalid")
	ErrPermitSignerMismatch   = errors.New("permit: signer does not match owner")
	ErrPermitNonceUsed        = errors.New("permit: nonce already used")
	ErrPermitAmountInvalid    = errors.New("permit: amount must be non-negative")
)

// Approver installs allowances. The bank ledger satisfies it.
type Approver interface {
	Approve(asset string, owner, spender [20]byte, amount *big.Int) error
}

// NonceStore records consumed permit nonces per owner.
type NonceStore interface {
	// Consume marks nonce as used for owner and reports false when it had
	// already been consumed.
	Consume(owner [20]byte, nonce uint64) (bool, error)
}

// Permit is the signed grant. Signature is a 65 byte [R || S || V]
// secp256k1 signature over Digest.
type Permit struct {
	ChainID   uint64
	Asset     string
	Owner     [20]byte
	Spender   [20]byte
	Amount    *big.Int
	Nonce     uint64
	Deadline  int64
	Signature []byte
}

// CanonicalMessage renders the text that is hashed and signed.
func (p *Permit) CanonicalMessage() (string, error) {
	if p == nil {
		return "", fmt.Errorf("permit not initialised")
	}
	asset := strings.ToUpper(strings.TrimSpace(p.Asset))
	if asset == "" {
		return "", fmt.Errorf("permit: asset required")
	}
	if p.Amount == nil || p.Amount.Sign() < 0 {
		return "", ErrPermitAmountInvalid
	}
	builder := strings.Builder{}
	builder.WriteString(DomainV1)
	builder.WriteString("|chain=")
	builder.WriteString(strconv.FormatUint(p.ChainID, 10))
	builder.WriteString("|asset=")
	builder.WriteString(asset)
	builder.WriteString("|owner=")
	builder.WriteString(ethcommon.BytesToAddress(p.Owner[:]).Hex())
	builder.WriteString("|spender=")
	builder.WriteString(ethcommon.BytesToAddress(p.Spender[:]).Hex())
	builder.WriteString("|amount=")
	builder.WriteString(p.Amount.String())
	builder.WriteString("|nonce=")
	builder.WriteString(strconv.FormatUint(p.Nonce, 10))
	builder.WriteString("|deadline=")
	builder.WriteString(strconv.FormatInt(p.Deadline, 10))
	return builder.String(), nil
}

// Digest computes the keccak256 hash of the canonical message.
func (p *Permit) Digest() ([]byte, error) {
	message, err := p.CanonicalMessage()
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256([]byte(message)), nil
}

// Sign fills in the signature using key.
func (p *Permit) Sign(key *ecdsa.PrivateKey) error {
	if key == nil {
		return fmt.Errorf("permit: signing key required")
	}
	digest, err := p.Digest()
	if err != nil {
		return err
	}
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return fmt.Errorf("permit: sign: %w", err)
	}
	p.Signature = sig
	return nil
}

// Signer recovers the address that produced the signature.
func (p *Permit) Signer() ([20]byte, error) {
	var out [20]byte
	digest, err := p.Digest()
	if err != nil {
		return out, err
	}
	if len(p.Signature) != 65 {
		return out, ErrPermitSignatureInvalid
	}
	sig := append([]byte(nil), p.Signature...)
	// Accept Ethereum-style V values in addition to the raw recovery id.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return out, ErrPermitSignatureInvalid
	}
	copy(out[:], ethcrypto.PubkeyToAddress(*pub).Bytes())
	return out, nil
}

// Authorizer verifies permits and installs the resulting allowances.
type Authorizer struct {
	chainID  uint64
	approver Approver
	nonces   NonceStore
	nowFn    func() time.Time
}

// NewAuthorizer constructs an authorizer bound to chainID. A nil nonce store
// defaults to an in-memory one.
func NewAuthorizer(chainID uint64, approver Approver, nonces NonceStore) *Authorizer {
	if nonces == nil {
		nonces = NewMemoryNonceStore()
	}
	return &Authorizer{chainID: chainID, approver: approver, nonces: nonces, nowFn: time.Now}
}

// SetNowFunc overrides the time source, primarily used in tests.
func (a *Authorizer) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	a.nowFn = now
}

// Verify checks the permit without consuming its nonce.
func (a *Authorizer) Verify(p *Permit) error {
	if a == nil {
		return fmt.Errorf("permit authorizer not configured")
	}
	if p == nil {
		return fmt.Errorf("permit: nil permit")
	}
	if p.ChainID != a.chainID {
		return fmt.Errorf("%w: chain %d", ErrPermitSignatureInvalid, p.ChainID)
	}
	if p.Deadline < a.nowFn().Unix() {
		return ErrPermitExpired
	}
	signer, err := p.Signer()
	if err != nil {
		return err
	}
	if signer != p.Owner {
		return ErrPermitSignerMismatch
	}
	return nil
}

// PreAuthorize verifies the signed grant, consumes the nonce and installs the
// allowance owner -> spender for asset.
func (a *Authorizer) PreAuthorize(asset string, owner, spender [20]byte, amount *big.Int, nonce uint64, deadline int64, signature []byte) error {
	p := &Permit{
		ChainID:   a.chainID,
		Asset:     asset,
		Owner:     owner,
		Spender:   spender,
		Amount:    amount,
		Nonce:     nonce,
		Deadline:  deadline,
		Signature: signature,
	}
	if err := a.Verify(p); err != nil {
		return err
	}
	fresh, err := a.nonces.Consume(owner, nonce)
	if err != nil {
		return fmt.Errorf("permit: consume nonce: %w", err)
	}
	if !fresh {
		return ErrPermitNonceUsed
	}
	if a.approver == nil {
		return fmt.Errorf("permit: approver not configured")
	}
	return a.approver.Approve(asset, owner, spender, amount)
}

// MemoryNonceStore is the in-process NonceStore.
type MemoryNonceStore struct {
	mu   sync.Mutex
	used map[[20]byte]map[uint64]struct{}
}

// NewMemoryNonceStore returns an empty store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{used: make(map[[20]byte]map[uint64]struct{})}
}

// Consume implements NonceStore.
func (s *MemoryNonceStore) Consume(owner [20]byte, nonce uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen, ok := s.used[owner]
	if !ok {
		seen = make(map[uint64]struct{})
		s.used[owner] = seen
	}
	if _, dup := seen[nonce]; dup {
		return false, nil
	}
	seen[nonce] = struct{}{}
	return true, nil
}
