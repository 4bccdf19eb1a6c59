package events

import (
	"math/big"
	"strconv"

	"github.com/holiman/uint256"

	"rfqdesk/core/types"
)

const (
	TypeRequestCreated   = "rfq.request.created"
	TypeRequestCancelled = "rfq.request.cancelled"
	TypeRequestAccepted  = "rfq.request.accepted"
	TypeLimitChanged     = "rfq.limiter.cap_changed"
	TypeLimitAdjusted    = "rfq.limiter.adjusted"
)

// Cancellation reasons attached to RequestCancelled.
const (
	CancelReasonOwner   = "owner"
	CancelReasonExpired = "expired"
)

// Adjustment directions attached to LimitAdjusted.
const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
)

// RequestCreated is emitted once a trade request has been stored.
type RequestCreated struct {
	Account  [20]byte
	ID       uint64
	Price    *big.Int
	Amount   *big.Int
	Deadline int64
}

func (RequestCreated) EventType() string { return TypeRequestCreated }

func (e RequestCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeRequestCreated,
		Attributes: map[string]string{
			"account":  formatAccount(e.Account),
			"id":       strconv.FormatUint(e.ID, 10),
			"price":    formatAmount(e.Price),
			"amount":   formatAmount(e.Amount),
			"deadline": intToString(e.Deadline),
		},
	}
}

// RequestCancelled is emitted when the owner cancels a request or an expiry
// sweep removes it.
type RequestCancelled struct {
	Account [20]byte
	ID      uint64
	Reason  string
}

func (RequestCancelled) EventType() string { return TypeRequestCancelled }

func (e RequestCancelled) Event() *types.Event {
	attrs := map[string]string{
		"account": formatAccount(e.Account),
		"id":      strconv.FormatUint(e.ID, 10),
	}
	if e.Reason != "" {
		attrs["reason"] = e.Reason
	}
	return &types.Event{Type: TypeRequestCancelled, Attributes: attrs}
}

// RequestAccepted is emitted after both legs of an accepted request settled.
type RequestAccepted struct {
	Account [20]byte
	ID      uint64
	Price   *big.Int
}

func (RequestAccepted) EventType() string { return TypeRequestAccepted }

func (e RequestAccepted) Event() *types.Event {
	return &types.Event{
		Type: TypeRequestAccepted,
		Attributes: map[string]string{
			"account": formatAccount(e.Account),
			"id":      strconv.FormatUint(e.ID, 10),
			"price":   formatAmount(e.Price),
		},
	}
}

// LimitChanged is emitted when the limiter cap is replaced.
type LimitChanged struct {
	Value *uint256.Int
}

func (LimitChanged) EventType() string { return TypeLimitChanged }

func (e LimitChanged) Event() *types.Event {
	value := "0"
	if e.Value != nil {
		value = e.Value.Dec()
	}
	return &types.Event{
		Type:       TypeLimitChanged,
		Attributes: map[string]string{"value": value},
	}
}

// LimitAdjusted is emitted for temporary increases and decreases of the cap.
type LimitAdjusted struct {
	Delta     *uint256.Int
	Direction string
}

func (LimitAdjusted) EventType() string { return TypeLimitAdjusted }

func (e LimitAdjusted) Event() *types.Event {
	delta := "0"
	if e.Delta != nil {
		delta = e.Delta.Dec()
	}
	return &types.Event{
		Type: TypeLimitAdjusted,
		Attributes: map[string]string{
			"delta":     delta,
			"direction": e.Direction,
		},
	}
}
