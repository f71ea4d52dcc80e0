// Package provider supplies OHLCV price history to the pipeline.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/pkg/types"
)

var (
	// ErrRateLimited signals the upstream source is throttling requests.
	ErrRateLimited = errors.New("provider: rate limited")
	// ErrUnavailable signals the upstream source cannot be reached.
	ErrUnavailable = errors.New("provider: unavailable")
	// ErrUnknownSymbol signals a symbol outside the provider's universe.
	ErrUnknownSymbol = errors.New("provider: unknown symbol")
)

// Provider fetches price history and live quotes for the symbol universe.
// FetchSeries returns at most bars candles, newest last.
type Provider interface {
	FetchSeries(ctx context.Context, symbol string, tf types.Timeframe, bars int) (*types.PriceSeries, error)
	LatestQuote(ctx context.Context, symbol string) (decimal.Decimal, error)
}
