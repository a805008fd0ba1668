package calculator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/liamcoop/recalc/computations"
	"github.com/liamcoop/recalc/fields"
)

var (
	growthRate    = decimal.RequireFromString("0.035")
	growthYears   = int64(10)
	hundred       = decimal.NewFromInt(100)
	growthPercent = growthRate.Mul(hundred)
)

type builtinFunc func(in []decimal.Decimal) ([]any, error)

type builtin struct {
	inputs  int
	outputs int
	fn      builtinFunc
}

// builtins are computations whose outputs are tables or need exact
// decimal arithmetic. Inputs are positional: required then optional.
var builtins = map[string]builtin{
	// asking price -> growth table
	"capital_growth": {inputs: 1, outputs: 1, fn: capitalGrowth},
	// asking price, first charge lending, capital left in -> gain, gain table
	"capital_gain": {inputs: 3, outputs: 2, fn: capitalGain},
	// asking price, first charge lending, capital left in, net cash flow ->
	// lifetime cash flow, total return, annualised ROI, lifetime ROI, table
	"returns": {inputs: 4, outputs: 5, fn: returns},
}

// GrowthRow is one year of the capital growth table
type GrowthRow struct {
	Year       int      `json:"year"`
	Value      float64  `json:"value"`
	GrowthRate float64  `json:"growthRate"`
	Increase   *float64 `json:"increase,omitempty"`
}

// AmountRow is a labelled line of the capital gain and returns tables
type AmountRow struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Percentage  float64 `json:"percentage,omitempty"`
}

func capitalGrowth(in []decimal.Decimal) ([]any, error) {
	value := in[0]
	if !value.IsPositive() {
		return nil, fmt.Errorf("asking price must be positive")
	}

	rows := make([]GrowthRow, 0, growthYears+1)
	for year := int64(0); year <= growthYears; year++ {
		increase := value.Mul(growthRate)
		row := GrowthRow{
			Year:  int(year),
			Value: value.Round(0).InexactFloat64(),
		}
		if year < growthYears {
			inc := increase.Round(0).InexactFloat64()
			row.GrowthRate = growthPercent.InexactFloat64()
			row.Increase = &inc
		}
		rows = append(rows, row)
		value = value.Add(increase)
	}
	return []any{rows}, nil
}

// valueAtYear10 compounds the asking price over the projection period
func valueAtYear10(asking decimal.Decimal) decimal.Decimal {
	return asking.Mul(decimal.NewFromInt(1).Add(growthRate).Pow(decimal.NewFromInt(growthYears)))
}

func capitalGain(in []decimal.Decimal) ([]any, error) {
	asking, lending, leftIn := in[0], in[1], in[2]

	value10 := valueAtYear10(asking)
	gain := value10.Sub(lending).Sub(leftIn)

	table := []AmountRow{
		{Description: "Capital Value @ Year 10", Amount: value10.Round(0).InexactFloat64()},
		{Description: "Mortgage Lending", Amount: lending.Round(0).InexactFloat64()},
		{Description: "Equity Investment Capital", Amount: leftIn.Round(0).InexactFloat64()},
		{Description: "Capital Gain @ Year 10", Amount: gain.Round(0).InexactFloat64()},
	}
	return []any{gain.Round(2).InexactFloat64(), table}, nil
}

func returns(in []decimal.Decimal) ([]any, error) {
	asking, lending, retained, cashflow := in[0], in[1], in[2], in[3]

	gain := valueAtYear10(asking).Sub(lending).Sub(retained)
	lifetime := cashflow.Mul(decimal.NewFromInt(growthYears))
	total := lifetime.Add(gain)

	annualised, lifetimeROI := decimal.Zero, decimal.Zero
	if !retained.IsZero() {
		annualised = cashflow.Div(retained).Mul(hundred).Round(2)
		lifetimeROI = total.Div(retained).Mul(hundred).Round(2)
	}

	table := []AmountRow{
		{Description: "Retained Capital", Amount: retained.Round(0).InexactFloat64()},
		{Description: "Net Cash Flow PA", Amount: cashflow.Round(0).InexactFloat64()},
		{Description: "Total Net Lifetime Cash Flow", Amount: lifetime.Round(0).InexactFloat64()},
		{Description: "Capital Gain @ Year 10", Amount: gain.Round(0).InexactFloat64()},
		{Description: "Total Lifetime Return on Capital", Amount: total.Round(0).InexactFloat64()},
		{Description: "Annualised ROI", Percentage: annualised.InexactFloat64()},
		{Description: "Lifetime Return", Percentage: lifetimeROI.InexactFloat64()},
	}

	return []any{
		lifetime.Round(2).InexactFloat64(),
		total.Round(2).InexactFloat64(),
		annualised.InexactFloat64(),
		lifetimeROI.InexactFloat64(),
		table,
	}, nil
}

// builtinEvaluator binds a builtin to the field names of one computation
func builtinEvaluator(b builtin, inputs, outputs []string) computations.Evaluator {
	return computations.EvaluatorFunc(func(ctx context.Context, computation string, values map[string]any) (map[string]any, error) {
		args := make([]decimal.Decimal, len(inputs))
		for i, name := range inputs {
			d, err := toDecimal(values[name])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			args[i] = d
		}

		res, err := b.fn(args)
		if err != nil {
			return nil, err
		}

		out := make(map[string]any, len(outputs))
		for i, name := range outputs {
			out[name] = res[i]
		}
		return out, nil
	})
}

// toDecimal reads a stored value; unset counts as zero
func toDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case decimal.Decimal:
		return val, nil
	case string:
		f, err := fields.ParseNumber(val)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(f), nil
	}
	return decimal.Zero, fmt.Errorf("%v is not a number: %w", v, fields.ErrInvalidValue)
}
