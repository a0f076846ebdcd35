// Package analyst turns confirmed candles of one symbol and interval into
// indicator rows.
//
// Payloads are buffered by an input collector. Its single route feeds every
// candle through the calculator and hands each result row to an output
// collector at the offset of the payload the candle came from, so an output
// flush never commits past the rows it wrote. Offsets of payloads that carry
// nothing for the calculator are forwarded to the output collector, so stream
// progress is committed in one place.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/breaker"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/bybit"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/cmc"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/collector"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/indicator"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

const routeCalculator = "calculator"

// Config configures the pipeline.
type Config struct {
	Symbol   string
	Interval string // kline interval, e.g. "15" or "1d"
	Stream   string // stream whose offset the pipeline commits

	InputBatchSize      int
	InputFlushInterval  time.Duration
	OutputBatchSize     int
	OutputFlushInterval time.Duration

	// WarmupLimit bounds the rows read at start; 0 means the calculator capacity.
	WarmupLimit int
}

// Options carries optional wiring.
type Options struct {
	Breaker     *breaker.Breaker
	InputHooks  collector.Hooks
	OutputHooks collector.Hooks

	// OnBar reports every candle offered to the calculator.
	OnBar func(accepted bool)
}

// Pipeline is the analyst sink.
type Pipeline struct {
	cfg        Config
	calc       *indicator.Calculator
	klines     model.KlineReader
	indicators model.IndicatorRepository
	onBar      func(bool)
	log        *logger.Entry

	input  *collector.Collector[model.OffsetPayload]
	output *collector.Collector[model.IndicatorResult]
}

// candle is a decoded kline with the offset of its payload.
type candle struct {
	kline  model.Kline
	offset int64
}

// New wires the input and output collectors around calc.
func New(cfg Config, calc *indicator.Calculator, klines model.KlineReader, indicators model.IndicatorRepository,
	offsets collector.OffsetWriter, opts Options) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		calc:       calc,
		klines:     klines,
		indicators: indicators,
		onBar:      opts.OnBar,
		log: logger.WithComponent("analyst").WithFields(logger.Fields{
			"symbol":   cfg.Symbol,
			"interval": cfg.Interval,
		}),
	}

	outRoutes := []collector.Route[model.IndicatorResult]{
		collector.Table[model.IndicatorResult, model.IndicatorResult]{
			Dest:   "analyst_indicators",
			Match:  func(model.IndicatorResult) bool { return true },
			Decode: func(r model.IndicatorResult) ([]model.IndicatorResult, error) { return []model.IndicatorResult{r}, nil },
			Save:   indicators.SaveBatch,
		},
	}
	outOpts := []collector.Option[model.IndicatorResult]{collector.WithHooks[model.IndicatorResult](opts.OutputHooks)}
	if opts.Breaker != nil {
		outOpts = append(outOpts, collector.WithBreaker[model.IndicatorResult](opts.Breaker))
	}
	p.output = collector.New(collector.Config{
		Name:          "analyst-output",
		Stream:        cfg.Stream,
		BatchSize:     cfg.OutputBatchSize,
		FlushInterval: cfg.OutputFlushInterval,
	}, offsets, outRoutes, outOpts...)

	matchSource := collector.MatchSources(model.KlineSource(cfg.Interval))
	accept := collector.AcceptProviders(model.ProviderBybit, model.ProviderCMC)
	inRoutes := []collector.Route[model.OffsetPayload]{
		collector.Table[model.OffsetPayload, candle]{
			Dest:   routeCalculator,
			Match:  func(op model.OffsetPayload) bool { return matchSource(op.Payload) },
			Decode: p.decode,
			Save:   p.compute,
		},
	}
	// The output collector stands in as the input's offset writer.
	p.input = collector.New(collector.Config{
		Name:          "analyst-input",
		Stream:        cfg.Stream,
		BatchSize:     cfg.InputBatchSize,
		FlushInterval: cfg.InputFlushInterval,
	}, p.output, inRoutes,
		collector.WithAccept(func(op model.OffsetPayload) bool { return accept(op.Payload) }),
		collector.WithHooks[model.OffsetPayload](opts.InputHooks),
	)
	return p
}

// Start warms the calculator from storage, then starts both collectors.
func (p *Pipeline) Start(ctx context.Context) error {
	p.warmUp(ctx)
	if err := p.output.Start(ctx); err != nil {
		return fmt.Errorf("analyst: start output: %w", err)
	}
	if err := p.input.Start(ctx); err != nil {
		return fmt.Errorf("analyst: start input: %w", err)
	}
	return nil
}

// Save hands a payload to the input collector.
func (p *Pipeline) Save(ctx context.Context, pl model.Payload, offset int64) error {
	return p.input.Save(ctx, model.OffsetPayload{Payload: pl, Offset: offset}, offset)
}

// Advance records an offset with nothing for the calculator.
func (p *Pipeline) Advance(ctx context.Context, offset int64) {
	p.input.Advance(ctx, offset)
}

// Stop stops the input first so its final flush reaches the output, then
// stops the output.
func (p *Pipeline) Stop(ctx context.Context) error {
	inErr := p.input.Stop(ctx)
	outErr := p.output.Stop(ctx)
	return errors.Join(inErr, outErr)
}

// Calculator exposes the calculator for health reporting.
func (p *Pipeline) Calculator() *indicator.Calculator { return p.calc }

func (p *Pipeline) warmUp(ctx context.Context) {
	limit := p.cfg.WarmupLimit
	if limit <= 0 {
		limit = p.calc.Capacity()
	}

	rows, err := p.indicators.Latest(ctx, p.cfg.Symbol, p.cfg.Interval, limit)
	if err != nil {
		p.log.WithError(err).Warn("warm-up: read indicator rows failed")
	}
	fromRows := p.calc.Initialize(rows)

	fromKlines := 0
	if p.calc.DataCount() < p.calc.Capacity() && p.klines != nil {
		klines, err := p.klines.Latest(ctx, p.cfg.Symbol, p.cfg.Interval, limit)
		if err != nil {
			p.log.WithError(err).Warn("warm-up: read klines failed")
		}
		bars := make([]model.Bar, 0, len(klines))
		for _, k := range klines {
			b, err := k.Bar()
			if err != nil {
				continue
			}
			bars = append(bars, b)
		}
		fromKlines = p.calc.InitializeWithBars(bars)
	}

	p.log.WithFields(logger.Fields{
		"from_indicators": fromRows,
		"from_klines":     fromKlines,
		"held":            p.calc.DataCount(),
	}).Info("calculator warmed up")
}

// decode keeps the confirmed candles of the configured symbol.
func (p *Pipeline) decode(op model.OffsetPayload) ([]candle, error) {
	var (
		rows []model.Kline
		err  error
	)
	switch op.Payload.Provider {
	case model.ProviderBybit:
		rows, err = bybit.Klines(op.Payload)
	case model.ProviderCMC:
		rows, err = cmc.Klines(op.Payload)
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedProvider, op.Payload.Provider)
	}
	if err != nil {
		return nil, err
	}
	var out []candle
	for _, k := range rows {
		if k.Confirmed && strings.EqualFold(k.Symbol, p.cfg.Symbol) {
			out = append(out, candle{kline: k, offset: op.Offset})
		}
	}
	return out, nil
}

// compute runs each candle through the calculator and queues its result on
// the output collector at the candle's own offset. Candles the calculator
// rejects are skipped. When the flush's max offset lies past the last queued
// row it is forwarded as an offset-only entry.
func (p *Pipeline) compute(ctx context.Context, _ string, rows []candle, maxOffset int64) (int, error) {
	produced := 0
	queued := int64(-1)
	for _, c := range rows {
		bar, err := c.kline.Bar()
		if err == nil {
			var res model.IndicatorResult
			res, err = p.calc.AddOHLCV(bar)
			if err == nil {
				res.Symbol, res.Interval = p.cfg.Symbol, p.cfg.Interval
				if err := p.output.Save(ctx, res, c.offset); err != nil {
					return produced, err
				}
				produced++
				queued = c.offset
			}
		}
		if p.onBar != nil {
			p.onBar(err == nil)
		}
		if err != nil {
			p.log.WithError(err).WithField("start", c.kline.Start).Debug("skipping candle")
		}
	}
	if produced == 0 || queued < maxOffset {
		p.output.Advance(ctx, maxOffset)
	}
	return produced, nil
}
