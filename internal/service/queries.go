package service

import (
	"context"
	"fmt"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/rpc"
)

// Query methods served over rpc.
const (
	MethodSpotKlines         = "getSpotKlines"
	MethodLinearKlines       = "getLinearKlines"
	MethodCMCKlines          = "getCmcKlines"
	MethodSpotTickers        = "getSpotTickers"
	MethodLinearTickers      = "getLinearTickers"
	MethodSpotTrades         = "getSpotTrades"
	MethodLinearTrades       = "getLinearTrades"
	MethodSpotOrderBooks     = "getSpotOrderBooks"
	MethodLinearOrderBooks   = "getLinearOrderBooks"
	MethodLinearLiquidations = "getLinearLiquidations"
	MethodFearGreedIndex     = "getFearGreedIndex"
	MethodAnalystIndicators  = "getAnalystIndicators"
	MethodStreamOffset       = "getStreamOffset"
)

func registerQueries(d *rpc.Dispatcher, r *repositories) {
	d.Handle(MethodSpotKlines, byInterval(r.spot.klines.Query))
	d.Handle(MethodLinearKlines, byInterval(r.linear.klines.Query))
	d.Handle(MethodCMCKlines, byInterval(r.cmcKlines.Query))
	d.Handle(MethodSpotTickers, bySymbol(r.spot.tickers.Query))
	d.Handle(MethodLinearTickers, bySymbol(r.linear.tickers.Query))
	d.Handle(MethodSpotTrades, bySymbol(r.spot.trades.Query))
	d.Handle(MethodLinearTrades, bySymbol(r.linear.trades.Query))
	d.Handle(MethodSpotOrderBooks, bySymbol(r.spot.orderBooks.Query))
	d.Handle(MethodLinearOrderBooks, bySymbol(r.linear.orderBooks.Query))
	d.Handle(MethodLinearLiquidations, bySymbol(r.linear.liquidations.Query))
	d.Handle(MethodFearGreedIndex, byRange(r.fearGreed.Query))
	d.Handle(MethodAnalystIndicators, byInterval(r.indicators.Query))
	d.Handle(MethodStreamOffset, streamOffset(r.offsets))
}

// timeRange reads [from, to] at args[i] and args[i+1].
func timeRange(args []any, i int) (time.Time, time.Time, error) {
	from, err := rpc.ArgTime(args, i)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := rpc.ArgTime(args, i+1)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: to is before from", rpc.ErrBadArgs)
	}
	return from, to, nil
}

// byRange serves (from, to).
func byRange[T any](q func(ctx context.Context, from, to time.Time) ([]T, error)) rpc.HandlerFunc {
	return func(ctx context.Context, args []any) ([]any, error) {
		from, to, err := timeRange(args, 0)
		if err != nil {
			return nil, err
		}
		rows, err := q(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return rpc.Rows(rows), nil
	}
}

// bySymbol serves (symbol, from, to).
func bySymbol[T any](q func(ctx context.Context, symbol string, from, to time.Time) ([]T, error)) rpc.HandlerFunc {
	return func(ctx context.Context, args []any) ([]any, error) {
		symbol, err := rpc.ArgString(args, 0)
		if err != nil {
			return nil, err
		}
		from, to, err := timeRange(args, 1)
		if err != nil {
			return nil, err
		}
		rows, err := q(ctx, symbol, from, to)
		if err != nil {
			return nil, err
		}
		return rpc.Rows(rows), nil
	}
}

// byInterval serves (symbol, interval, from, to).
func byInterval[T any](q func(ctx context.Context, symbol, interval string, from, to time.Time) ([]T, error)) rpc.HandlerFunc {
	return func(ctx context.Context, args []any) ([]any, error) {
		symbol, err := rpc.ArgString(args, 0)
		if err != nil {
			return nil, err
		}
		interval, err := rpc.ArgString(args, 1)
		if err != nil {
			return nil, err
		}
		from, to, err := timeRange(args, 2)
		if err != nil {
			return nil, err
		}
		rows, err := q(ctx, symbol, interval, from, to)
		if err != nil {
			return nil, err
		}
		return rpc.Rows(rows), nil
	}
}

// streamOffset serves (stream). The result is empty when nothing is committed.
func streamOffset(offsets model.OffsetStore) rpc.HandlerFunc {
	return func(ctx context.Context, args []any) ([]any, error) {
		stream, err := rpc.ArgString(args, 0)
		if err != nil {
			return nil, err
		}
		offset, ok, err := offsets.ReadOffset(ctx, stream)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []any{}, nil
		}
		return []any{offset}, nil
	}
}
