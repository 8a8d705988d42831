package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
)

// RateSource quotes conversions from a fixed rate table keyed by
// "SOURCE/TARGET" currency pairs. Inverse pairs are derived automatically.
type RateSource struct {
	rates map[string]float64
}

func NewRateSource(rates map[string]float64) *RateSource {
	table := make(map[string]float64, len(rates))
	for pair, rate := range rates {
		table[strings.ToUpper(strings.TrimSpace(pair))] = rate
	}
	return &RateSource{rates: table}
}

// DefaultRateSource covers the common sandbox corridors.
func DefaultRateSource() *RateSource {
	return NewRateSource(map[string]float64{
		"USD/EUR": 0.92,
		"USD/GBP": 0.79,
		"EUR/GBP": 0.86,
		"USD/JPY": 149.50,
	})
}

func (s *RateSource) Quote(_ context.Context, sourceCurrency, targetCurrency string, amountMinor int64) (core.ConversionQuote, error) {
	source := strings.ToUpper(strings.TrimSpace(sourceCurrency))
	target := strings.ToUpper(strings.TrimSpace(targetCurrency))
	if source == target {
		return core.ConversionQuote{Rate: 1.0, TargetAmountMinor: amountMinor}, nil
	}

	rate, ok := s.rates[source+"/"+target]
	if !ok {
		if inverse, found := s.rates[target+"/"+source]; found && inverse != 0 {
			rate, ok = 1/inverse, true
		}
	}
	if !ok {
		return core.ConversionQuote{}, fmt.Errorf("sandbox: no rate for %s/%s", source, target)
	}

	return core.ConversionQuote{
		Rate:              rate,
		TargetAmountMinor: core.RoundHalfUp(float64(amountMinor) * rate),
	}, nil
}

var _ core.RateSource = (*RateSource)(nil)
