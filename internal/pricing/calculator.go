package pricing

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/keydrop/keydrop-backend/pkg/config"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
)

// Quote is the gateway-facing price breakdown for one checkout. The buyer owes
// TotalCents; the gateway is asked for NominalCents so that the processor rate
// and flat fee are recovered and the random surcharge makes the amount unique.
type Quote struct {
	TotalCents     int64
	SurchargeCents int64
	FeeCents       int64
	NominalCents   int64
}

// Params overrides the configured fee defaults for a single quote. Zero values
// fall back to the calculator defaults.
type Params struct {
	FlatFeeCents int64
	RatePercent  string
}

// Calculator derives deposit amounts with gross-up fee math:
//
//	base    = ceil((total + flatFee) / (1 - rate))
//	nominal = base + surcharge
//
// so the processor's percentage cut never eats into the listed price and the
// random surcharge keeps concurrent deposits of equal totals distinguishable.
type Calculator struct {
	flatFeeCents int64
	rate         decimal.Decimal
	maxSurcharge int64
	surcharge    func() (int64, error)
}

// Option customizes the calculator.
type Option func(*Calculator)

// WithSurchargeSource replaces the random surcharge generator. Tests use this
// to make quotes deterministic.
func WithSurchargeSource(fn func() (int64, error)) Option {
	return func(c *Calculator) {
		c.surcharge = fn
	}
}

// NewCalculator builds a calculator from the configured defaults.
func NewCalculator(cfg config.PricingConfig, opts ...Option) (*Calculator, error) {
	rate, err := parseRatePercent(cfg.RatePercent)
	if err != nil {
		return nil, err
	}
	if cfg.FlatFeeCents < 0 {
		return nil, fmt.Errorf("flat fee must not be negative")
	}
	maxSurcharge := cfg.SurchargeCents
	if maxSurcharge <= 0 {
		maxSurcharge = 150
	}

	c := &Calculator{
		flatFeeCents: cfg.FlatFeeCents,
		rate:         rate,
		maxSurcharge: maxSurcharge,
	}
	c.surcharge = func() (int64, error) { return randomSurcharge(c.maxSurcharge) }

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Quote prices a checkout total. Overrides from the payment-config store come
// in through params.
func (c *Calculator) Quote(totalCents int64, params Params) (*Quote, error) {
	if totalCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must be positive")
	}

	flatFee := c.flatFeeCents
	if params.FlatFeeCents > 0 {
		flatFee = params.FlatFeeCents
	}
	rate := c.rate
	if params.RatePercent != "" {
		parsed, err := parseRatePercent(params.RatePercent)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rate override")
		}
		rate = parsed
	}

	surcharge, err := c.surcharge()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "surcharge generation failed")
	}

	base, err := grossUp(totalCents, flatFee, rate)
	if err != nil {
		return nil, err
	}

	// the surcharge rides on top of the grossed-up base so the fee stays
	// independent of the random disambiguation amount
	return &Quote{
		TotalCents:     totalCents,
		SurchargeCents: surcharge,
		FeeCents:       base - totalCents,
		NominalCents:   base + surcharge,
	}, nil
}

// grossUp solves nominal = ceil((base + flatFee) / (1 - rate)) in exact
// decimal arithmetic.
func grossUp(baseCents, flatFeeCents int64, rate decimal.Decimal) (int64, error) {
	one := decimal.NewFromInt(1)
	if rate.GreaterThanOrEqual(one) || rate.IsNegative() {
		return 0, fmt.Errorf("rate %s out of range [0, 1)", rate)
	}

	numerator := decimal.NewFromInt(baseCents + flatFeeCents)
	nominal := numerator.Div(one.Sub(rate)).Ceil()
	if !nominal.IsInteger() {
		return 0, fmt.Errorf("gross-up produced non-integer %s", nominal)
	}
	return nominal.IntPart(), nil
}

// parseRatePercent converts "0.7" (percent) into the 0.007 fraction.
func parseRatePercent(value string) (decimal.Decimal, error) {
	percent, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate percent %q: %w", value, err)
	}
	if percent.IsNegative() {
		return decimal.Zero, fmt.Errorf("rate percent %q must not be negative", value)
	}
	return percent.Div(decimal.NewFromInt(100)), nil
}

// randomSurcharge draws uniformly from [1, max].
func randomSurcharge(max int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64() + 1, nil
}
