package portfolio

import "github.com/shopspring/decimal"

// FeeSchedule prices a trade. Commission is a fraction of notional; VAT and
// withholding tax are fractions of the commission. Each component is
// rounded to two decimals.
type FeeSchedule struct {
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate" validate:"gte=0,lt=1"`
	VATRate        float64 `json:"vat_rate" yaml:"vat_rate" validate:"gte=0,lt=1"`
	WHTRate        float64 `json:"wht_rate" yaml:"wht_rate" validate:"gte=0,lt=1"`
}

type Fees struct {
	Commission float64
	VAT        float64
	WHT        float64
}

func (f Fees) Total() float64 {
	return decimal.NewFromFloat(f.Commission).
		Add(decimal.NewFromFloat(f.VAT)).
		Add(decimal.NewFromFloat(f.WHT)).
		InexactFloat64()
}

func (s FeeSchedule) For(price float64, volume int64) Fees {
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(volume))
	commission := notional.Mul(decimal.NewFromFloat(s.CommissionRate)).Round(2)
	return Fees{
		Commission: commission.InexactFloat64(),
		VAT:        commission.Mul(decimal.NewFromFloat(s.VATRate)).Round(2).InexactFloat64(),
		WHT:        commission.Mul(decimal.NewFromFloat(s.WHTRate)).Round(2).InexactFloat64(),
	}
}

// Cost is notional plus fees for a buy of volume at price, computed the
// same way ApplyBuy charges the budget.
func (s FeeSchedule) Cost(price float64, volume int64) float64 {
	return price*float64(volume) + s.For(price, volume).Total()
}
