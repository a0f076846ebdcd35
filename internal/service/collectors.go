package service

import (
	"fmt"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/breaker"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/bybit"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/cmc"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/collector"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/store/sqlite"
)

var bybitKlineSources = []model.Source{
	model.SourceKline15, model.SourceKline60, model.SourceKline240, model.SourceKlineD,
}

// market holds the repositories of one Bybit market.
type market struct {
	klines       *sqlite.KlineRepository
	tickers      *sqlite.TickerRepository
	trades       *sqlite.TradeRepository
	orderBooks   *sqlite.OrderBookRepository
	liquidations *sqlite.LiquidationRepository // linear only
}

// repositories is every sink repository the service writes or queries.
type repositories struct {
	offsets    *sqlite.OffsetStore
	spot       market
	linear     market
	cmcKlines  *sqlite.KlineRepository
	fearGreed  *sqlite.FearGreedRepository
	indicators *sqlite.IndicatorRepository
}

type marketTables struct {
	klines, tickers, trades, orderBooks, liquidations string
}

var (
	spotTables = marketTables{
		klines:     sqlite.TableSpotKlines,
		tickers:    sqlite.TableSpotTickers,
		trades:     sqlite.TableSpotTrades,
		orderBooks: sqlite.TableSpotOrderBooks,
	}
	linearTables = marketTables{
		klines:       sqlite.TableLinearKlines,
		tickers:      sqlite.TableLinearTickers,
		trades:       sqlite.TableLinearTrades,
		orderBooks:   sqlite.TableLinearOrderBooks,
		liquidations: sqlite.TableLinearLiquidation,
	}
)

func openMarket(db *sqlite.DB, t marketTables) (market, error) {
	var (
		m   market
		err error
	)
	if m.klines, err = sqlite.NewKlineRepository(db, t.klines); err != nil {
		return m, err
	}
	if m.tickers, err = sqlite.NewTickerRepository(db, t.tickers); err != nil {
		return m, err
	}
	if m.trades, err = sqlite.NewTradeRepository(db, t.trades); err != nil {
		return m, err
	}
	if m.orderBooks, err = sqlite.NewOrderBookRepository(db, t.orderBooks); err != nil {
		return m, err
	}
	if t.liquidations != "" {
		if m.liquidations, err = sqlite.NewLiquidationRepository(db, t.liquidations); err != nil {
			return m, err
		}
	}
	return m, nil
}

func openRepositories(db *sqlite.DB) (*repositories, error) {
	r := &repositories{
		offsets:    sqlite.NewOffsetStore(db),
		fearGreed:  sqlite.NewFearGreedRepository(db),
		indicators: sqlite.NewIndicatorRepository(db),
	}
	var err error
	if r.spot, err = openMarket(db, spotTables); err != nil {
		return nil, fmt.Errorf("service: spot repositories: %w", err)
	}
	if r.linear, err = openMarket(db, linearTables); err != nil {
		return nil, fmt.Errorf("service: linear repositories: %w", err)
	}
	if r.cmcKlines, err = sqlite.NewKlineRepository(db, sqlite.TableCMCKlines); err != nil {
		return nil, fmt.Errorf("service: cmc repositories: %w", err)
	}
	return r, nil
}

// analystKlines picks the table the analyst warms up from.
func (r *repositories) analystKlines(marketName string) model.KlineReader {
	switch marketName {
	case "linear":
		return r.linear.klines
	case "cmc":
		return r.cmcKlines
	default:
		return r.spot.klines
	}
}

// bybitRoutes maps the Bybit channels of one market onto its tables.
func bybitRoutes(m market) []collector.Route[model.Payload] {
	routes := []collector.Route[model.Payload]{
		collector.Table[model.Payload, model.Kline]{
			Dest:   m.klines.Table(),
			Match:  collector.MatchSources(bybitKlineSources...),
			Decode: bybit.Klines,
			Save:   m.klines.SaveBatch,
		},
		collector.Table[model.Payload, model.Ticker]{
			Dest:   m.tickers.Table(),
			Match:  collector.MatchSources(model.SourceTickers),
			Decode: bybit.Tickers,
			Save:   m.tickers.SaveBatch,
		},
		collector.Table[model.Payload, model.Trade]{
			Dest:   m.trades.Table(),
			Match:  collector.MatchSources(model.SourceTrades),
			Decode: bybit.Trades,
			Save:   m.trades.SaveBatch,
		},
		collector.Table[model.Payload, model.OrderBook]{
			Dest:   m.orderBooks.Table(),
			Match:  collector.MatchSources(model.SourceOrderBook),
			Decode: bybit.OrderBook,
			Save:   m.orderBooks.SaveBatch,
		},
	}
	if m.liquidations != nil {
		routes = append(routes, collector.Table[model.Payload, model.Liquidation]{
			Dest:   m.liquidations.Table(),
			Match:  collector.MatchSources(model.SourceLiquidation),
			Decode: bybit.Liquidations,
			Save:   m.liquidations.SaveBatch,
		})
	}
	return routes
}

func cryptoScoutRoutes(r *repositories) []collector.Route[model.Payload] {
	return []collector.Route[model.Payload]{
		collector.Table[model.Payload, model.FearGreed]{
			Dest:   r.fearGreed.Table(),
			Match:  collector.MatchSources(model.SourceFearGreed),
			Decode: cmc.FearGreed,
			Save:   r.fearGreed.SaveBatch,
		},
		collector.Table[model.Payload, model.Kline]{
			Dest:   r.cmcKlines.Table(),
			Match:  collector.MatchSources(model.SourceKline1d, model.SourceKline1w),
			Decode: cmc.Klines,
			Save:   r.cmcKlines.SaveBatch,
		},
	}
}

// newPayloadCollector builds a payload collector that only accepts provider.
func newPayloadCollector(cfg collector.Config, offsets collector.OffsetWriter, routes []collector.Route[model.Payload],
	provider model.Provider, b *breaker.Breaker, hooks collector.Hooks) *collector.Collector[model.Payload] {
	return collector.New(cfg, offsets, routes,
		collector.WithAccept(collector.AcceptProviders(provider)),
		collector.WithBreaker[model.Payload](b),
		collector.WithHooks[model.Payload](hooks),
	)
}
