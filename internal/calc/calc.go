// Package calc holds the campaign ratio formulas shared by ingestion and
// reporting. Every ratio is zero when its denominator is zero and is rounded
// half-up to two decimal places in decimal arithmetic.
package calc

import (
	"github.com/cockroachdb/apd/v3"
)

const precision = 34

func newContext() *apd.Context {
	c := apd.BaseContext.WithPrecision(precision)
	c.Rounding = apd.RoundHalfUp
	return c
}

func dec(f float64) *apd.Decimal {
	d, err := new(apd.Decimal).SetFloat64(f)
	if err != nil {
		// NaN and Inf never reach here; callers pass finite values.
		return apd.New(0, 0)
	}
	return d
}

func toFloat(d *apd.Decimal) float64 {
	f, err := d.Float64()
	if err != nil {
		return 0
	}
	return f
}

// Round2 rounds f half-up (away from zero on a tie) to two decimal places.
func Round2(f float64) float64 { return toFloat(quantize(newContext(), dec(f))) }

func quantize(c *apd.Context, d *apd.Decimal) *apd.Decimal {
	out := new(apd.Decimal)
	if _, err := c.Quantize(out, d, -2); err != nil {
		return apd.New(0, 0)
	}
	return out
}

// ratio returns round2(num/den*scale), or 0 when den is zero.
func ratio(num, den *apd.Decimal, scale int64) float64 {
	if den.IsZero() {
		return 0
	}
	c := newContext()
	q := new(apd.Decimal)
	if _, err := c.Quo(q, num, den); err != nil {
		return 0
	}
	if scale != 1 {
		if _, err := c.Mul(q, q, apd.New(scale, 0)); err != nil {
			return 0
		}
	}
	return toFloat(quantize(c, q))
}

// CTR is clicks/impressions*100.
func CTR(clicks, impressions int64) float64 {
	if impressions <= 0 {
		return 0
	}
	return ratio(apd.New(clicks, 0), apd.New(impressions, 0), 100)
}

// CPC is spend/clicks.
func CPC(spend float64, clicks int64) float64 {
	if clicks <= 0 {
		return 0
	}
	return ratio(dec(spend), apd.New(clicks, 0), 1)
}

// ROI is (revenue-spend)/spend*100.
func ROI(revenue, spend float64) float64 {
	if spend <= 0 {
		return 0
	}
	diff := new(apd.Decimal)
	if _, err := newContext().Sub(diff, dec(revenue), dec(spend)); err != nil {
		return 0
	}
	return ratio(diff, dec(spend), 100)
}

// Mean returns the rounded arithmetic mean of vs, or 0 for no values.
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	c := newContext()
	sum := apd.New(0, 0)
	for _, v := range vs {
		if _, err := c.Add(sum, sum, dec(v)); err != nil {
			return 0
		}
	}
	return ratio(sum, apd.New(int64(len(vs)), 0), 1)
}

// Sum adds vs in decimal and rounds the total to cents.
func Sum(vs ...float64) float64 {
	c := newContext()
	sum := apd.New(0, 0)
	for _, v := range vs {
		if _, err := c.Add(sum, sum, dec(v)); err != nil {
			return 0
		}
	}
	return toFloat(quantize(c, sum))
}
