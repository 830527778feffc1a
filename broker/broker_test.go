package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchsung/trading-bot/market"
)

func TestNewOrder_Defaults(t *testing.T) {
	t.Parallel()

	o := NewOrder("ACC1", "PTT", market.Buy, 33.5, 100)
	assert.Equal(t, market.Limit, o.PriceType)
	assert.Equal(t, market.ValidDay, o.Validity)
	assert.NoError(t, o.Validate())
}

func TestPlaceOrder_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		o    PlaceOrder
	}{
		{"no symbol", NewOrder("A", "", market.Buy, 1, 1)},
		{"bad side", NewOrder("A", "X", "hold", 1, 1)},
		{"zero price", NewOrder("A", "X", market.Sell, 0, 1)},
		{"zero volume", NewOrder("A", "X", market.Sell, 1, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.o.Validate())
		})
	}
}

func TestGatewayFunc(t *testing.T) {
	t.Parallel()

	var g Gateway = GatewayFunc(func(_ context.Context, o PlaceOrder) (market.Trade, error) {
		return market.Trade{Symbol: o.Symbol, Volume: o.Volume}, nil
	})
	tr, err := g.PlaceOrder(context.Background(), NewOrder("A", "X", market.Buy, 1, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), tr.Volume)
}
