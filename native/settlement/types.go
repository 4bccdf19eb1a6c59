package settlement

import "math/big"

// Side is the direction of a request from the requester's point of view.
type Side string

const (
	// SideBuy requests receive the base asset (positive amount).
	SideBuy Side = "buy"
	// SideSell requests pay the base asset (negative amount).
	SideSell Side = "sell"
)

// Request is one pending exchange intent. Requests are immutable once stored;
// they leave the registry when cancelled, expired or accepted.
type Request struct {
	ID        uint64
	Account   [20]byte
	Price     *big.Int
	Amount    *big.Int
	Deadline  int64
	CreatedAt int64
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Price != nil {
		clone.Price = new(big.Int).Set(r.Price)
	}
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	}
	return &clone
}

// Side reports the request direction.
func (r *Request) Side() Side {
	if r != nil && r.Amount != nil && r.Amount.Sign() < 0 {
		return SideSell
	}
	return SideBuy
}

// Expired reports whether the deadline is in the past at now.
func (r *Request) Expired(now int64) bool {
	return r != nil && r.Deadline < now
}

// Authorization carries a signed permit supplied instead of a standing
// allowance.
type Authorization struct {
	Amount    *big.Int
	Nonce     uint64
	Deadline  int64
	Signature []byte
}

// Settlement describes an accepted request and the amounts that moved.
// BaseAmount and CounterAmount are signed from the requester's perspective.
type Settlement struct {
	Request       *Request
	Price         *big.Int
	BaseAmount    *big.Int
	CounterAmount *big.Int
	SettledAt     int64
}
