package settlement

import (
	"math/big"
	"sync"
	"time"
)

// PriceReading is a reference price observation.
type PriceReading struct {
	Price     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// PriceFeed supplies the reference price used by the creation band check.
type PriceFeed interface {
	LatestPrice() (PriceReading, error)
}

// StaticFeed is a PriceFeed holding a price set by the operator.
type StaticFeed struct {
	mu      sync.RWMutex
	reading PriceReading
	set     bool
}

// Set replaces the stored reading.
func (f *StaticFeed) Set(price *big.Int, decimals uint8, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reading = PriceReading{Price: new(big.Int).Set(price), Decimals: decimals, UpdatedAt: updatedAt}
	f.set = true
}

// LatestPrice implements PriceFeed.
func (f *StaticFeed) LatestPrice() (PriceReading, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return PriceReading{}, ErrOracleUnavailable
	}
	reading := f.reading
	reading.Price = new(big.Int).Set(f.reading.Price)
	return reading, nil
}
