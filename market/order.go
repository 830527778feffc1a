package market

import (
	"fmt"
	"strings"
	"time"
)

// Side of an order or fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// PositionType labels why an order was placed.
type PositionType string

const (
	StrongBuy    PositionType = "strong_buy"
	ModerateBuy  PositionType = "moderate_buy"
	NoBuy        PositionType = "no_buy"
	StrongSell   PositionType = "strong_sell"
	ModerateSell PositionType = "moderate_sell"
	NoSell       PositionType = "no_sell"
	StopLoss     PositionType = "stop_loss"
)

// OrderStatus is the lifecycle state of a signal or an exchange order.
type OrderStatus string

const (
	Pending             OrderStatus = "Pending"
	Open                OrderStatus = "Open"
	Matched             OrderStatus = "Matched"
	Rejected            OrderStatus = "Rejected"
	Cancelled           OrderStatus = "Cancelled"
	CancelledByExchange OrderStatus = "Cancelled by Exchange"
	CancelledByBroker   OrderStatus = "Cancelled by Broker"
	PendingOpen         OrderStatus = "Pending Open"
	PendingCancel       OrderStatus = "Pending Cancel"
	NeedApproval        OrderStatus = "Need Approval"
)

// Terminal reports whether no further transition is expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case Matched, Rejected, Cancelled, CancelledByExchange, CancelledByBroker:
		return true
	}
	return false
}

// PriceType of an order sent to the exchange.
type PriceType string

const (
	Limit PriceType = "Limit"
	ATO   PriceType = "ATO"
	MPMTL PriceType = "MP-MTL"
	MPMKT PriceType = "MP-MKT"
)

// Validity of an order sent to the exchange.
type Validity string

const (
	ValidDay    Validity = "Day"
	ValidFOK    Validity = "FOK"
	ValidIOC    Validity = "IOC"
	ValidDate   Validity = "Date"
	ValidCancel Validity = "Cancel"
)

// Trade is an executed fill. Ledger entries are append-only.
type Trade struct {
	OrderNo      string
	Account      string
	Symbol       string
	Side         Side
	Price        float64
	Volume       int64
	Commission   float64
	VAT          float64
	WHT          float64
	Date         time.Time
	PositionType PositionType
}

// Fees is the sum of commission, VAT and withholding tax.
func (t Trade) Fees() float64 { return t.Commission + t.VAT + t.WHT }

// Notional is price times volume, before fees.
func (t Trade) Notional() float64 { return t.Price * float64(t.Volume) }

func (t Trade) String() string {
	return fmt.Sprintf("%s %s %d@%.2f (%s) on %s", strings.ToUpper(string(t.Side)), t.Symbol, t.Volume, t.Price, t.PositionType, t.Date.Format(DateLayout))
}
