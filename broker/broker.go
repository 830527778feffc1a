// Package broker defines the order gateway the live executor trades through.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/touchsung/trading-bot/market"
)

// ErrOrderRejected is returned when the venue refuses an order. Callers may
// retry it.
var ErrOrderRejected = errors.New("broker: order rejected")

// Gateway places orders synchronously. A successful call returns the fill.
type Gateway interface {
	PlaceOrder(ctx context.Context, o PlaceOrder) (market.Trade, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, o PlaceOrder) (market.Trade, error)

func (f GatewayFunc) PlaceOrder(ctx context.Context, o PlaceOrder) (market.Trade, error) {
	return f(ctx, o)
}

type PlaceOrder struct {
	Account      string
	Symbol       string
	Side         market.Side
	PriceType    market.PriceType
	Validity     market.Validity
	Price        float64
	Volume       int64
	PositionType market.PositionType
}

// NewOrder builds a day limit order.
func NewOrder(account, symbol string, side market.Side, price float64, volume int64) PlaceOrder {
	return PlaceOrder{
		Account:   account,
		Symbol:    symbol,
		Side:      side,
		PriceType: market.Limit,
		Validity:  market.ValidDay,
		Price:     price,
		Volume:    volume,
	}
}

func (o PlaceOrder) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("broker: symbol is required")
	}
	if o.Side != market.Buy && o.Side != market.Sell {
		return fmt.Errorf("broker: invalid side %q", o.Side)
	}
	if o.Price <= 0 {
		return fmt.Errorf("broker: price must be > 0 (got %v)", o.Price)
	}
	if o.Volume <= 0 {
		return fmt.Errorf("broker: volume must be > 0 (got %d)", o.Volume)
	}
	return nil
}
