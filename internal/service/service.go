// Package service wires the collector process: storage, collectors, the
// analyst, stream subscriptions, the query surface and the metrics server.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/akarazhev/crypto-scout-collector-sub000/config"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/analyst"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/breaker"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/collector"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/indicator"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/metrics"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/notification"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/rpc"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/store/sqlite"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/stream"
)

const shutdownTimeout = 15 * time.Second

// sink is a stream consumer with a lifecycle.
type sink interface {
	stream.Sink
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type binding struct {
	name   string
	stream string
	sink   sink
}

// Service is the top-level orchestrator.
type Service struct {
	cfg *config.Config
	log *logger.Entry

	db       *sqlite.DB
	repos    *repositories
	broker   stream.Broker
	breaker  *breaker.Breaker
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus
	server   *metrics.Server
	notifier notification.Notifier

	dispatcher *rpc.Dispatcher
	transport  *rpc.RedisTransport

	bindings    []binding
	subscribers []*stream.Subscriber
}

// New opens storage and wires every component. Broker connections are made
// by Run.
func New(cfg *config.Config) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		log:      logger.WithComponent("service"),
		registry: prometheus.NewRegistry(),
		health:   metrics.NewHealthStatus(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.NewMetrics(s.registry)
	s.notifier = newNotifier(cfg)

	var err error
	s.db, err = sqlite.Open(sqlite.Config{Path: cfg.SQLite.Path})
	if err != nil {
		return nil, err
	}
	if s.repos, err = openRepositories(s.db); err != nil {
		s.db.Close()
		return nil, err
	}
	if s.broker, err = newBroker(cfg, s.metrics); err != nil {
		s.db.Close()
		return nil, err
	}

	s.breaker = breaker.New("sqlite", cfg.Breaker.MaxFailures,
		time.Duration(cfg.Breaker.ResetTimeoutMs)*time.Millisecond)
	s.metrics.WatchBreaker(s.breaker)
	s.alertOnBreaker()

	s.bindings = s.buildSinks()
	retry := stream.Retry{
		MaxAttempts: cfg.Broker.Retry.MaxAttempts,
		Delay:       time.Duration(cfg.Broker.Retry.DelayMs) * time.Millisecond,
	}
	hooks := s.subscriberHooks()
	for _, b := range s.bindings {
		s.subscribers = append(s.subscribers, stream.NewSubscriber(
			s.broker, s.repos.offsets, b.stream, b.sink, retry, hooks))
	}

	s.server = metrics.NewServer(cfg.Metrics.Addr, s.health, s.registry)
	if cfg.RPC.Enabled {
		s.dispatcher = rpc.NewDispatcher(rpc.Limit{RPS: cfg.RPC.RPS, Burst: cfg.RPC.Burst},
			time.Duration(cfg.RPC.TimeoutMs)*time.Millisecond)
		s.dispatcher.OnRequest = s.metrics.OnRequest
		registerQueries(s.dispatcher, s.repos)
		s.server.Handle("/rpc", rpc.NewWSHandler(s.dispatcher))
		if rb, ok := s.broker.(*stream.RedisBroker); ok {
			s.transport = rpc.NewRedisTransport(rb.Client(), cfg.RPC.Channel, s.dispatcher)
		}
	}
	return s, nil
}

func newNotifier(cfg *config.Config) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier()}
	if cfg.Alerts.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.Alerts.WebhookURL, cfg.Service))
	}
	return n
}

// alert delivers a in the background; hooks must not block on the network.
func (s *Service) alert(a notification.Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.notifier.Send(ctx, a); err != nil {
			s.log.WithError(err).WithField("title", a.Title).Warn("alert delivery failed")
		}
	}()
}

// subscriberHooks extends the metric hooks with an alert on subscription loss.
func (s *Service) subscriberHooks() stream.Hooks {
	hooks := s.metrics.SubscriberHooks(s.health)
	onDown := hooks.OnDown
	hooks.OnDown = func(streamName string, err error) {
		onDown(streamName, err)
		s.alert(notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "subscription lost",
			Message: err.Error(),
			Fields:  map[string]any{"stream": streamName, "broker": s.broker.Name()},
		})
	}
	return hooks
}

// alertOnBreaker extends the breaker metrics with an alert when storage
// writes are cut off and when they resume.
func (s *Service) alertOnBreaker() {
	onChange := s.breaker.OnStateChange
	s.breaker.OnStateChange = func(name string, from, to breaker.State) {
		if onChange != nil {
			onChange(name, from, to)
		}
		switch to {
		case breaker.StateOpen:
			s.alert(notification.Alert{
				Level:   notification.AlertCritical,
				Title:   "storage breaker open",
				Message: "writes are rejected until the breaker half-opens",
				Fields:  map[string]any{"breaker": name},
			})
		case breaker.StateClosed:
			s.alert(notification.Alert{
				Level:   notification.AlertInfo,
				Title:   "storage breaker closed",
				Message: "writes resumed",
				Fields:  map[string]any{"breaker": name},
			})
		}
	}
}

func newBroker(cfg *config.Config, m *metrics.Metrics) (stream.Broker, error) {
	switch cfg.Broker.Kind {
	case config.BrokerKafka:
		b, err := stream.NewKafkaBroker(stream.KafkaConfig{
			Brokers:   cfg.Broker.Kafka.Brokers,
			Partition: cfg.Broker.Kafka.Partition,
			MaxWait:   time.Duration(cfg.Broker.Kafka.MaxWaitMs) * time.Millisecond,
			OnInvalid: m.OnInvalid,
		})
		if err != nil {
			return nil, fmt.Errorf("service: kafka broker: %w", err)
		}
		return b, nil
	case config.BrokerRedis:
		return stream.NewRedisBroker(stream.RedisConfig{
			Addr:      cfg.Broker.Redis.Addr,
			Password:  cfg.Broker.Redis.Password,
			DB:        cfg.Broker.Redis.DB,
			Count:     cfg.Broker.Redis.Count,
			Block:     time.Duration(cfg.Broker.Redis.BlockMs) * time.Millisecond,
			OnInvalid: m.OnInvalid,
		}), nil
	default:
		return nil, fmt.Errorf("service: unknown broker kind %q", cfg.Broker.Kind)
	}
}

func (s *Service) buildSinks() []binding {
	cfg := s.cfg
	hooks := s.metrics.CollectorHooks(s.health)
	settings := func(name, streamName string, sc config.SinkConfig) collector.Config {
		return collector.Config{
			Name:          name,
			Stream:        streamName,
			BatchSize:     sc.BatchSize,
			FlushInterval: sc.FlushInterval(),
		}
	}

	out := []binding{
		{
			name:   "bybit-spot",
			stream: cfg.Streams.BybitSpot,
			sink: newPayloadCollector(settings("bybit-spot", cfg.Streams.BybitSpot, cfg.Sinks.BybitSpot),
				s.repos.offsets, bybitRoutes(s.repos.spot), model.ProviderBybit, s.breaker, hooks),
		},
		{
			name:   "bybit-linear",
			stream: cfg.Streams.BybitLinear,
			sink: newPayloadCollector(settings("bybit-linear", cfg.Streams.BybitLinear, cfg.Sinks.BybitLinear),
				s.repos.offsets, bybitRoutes(s.repos.linear), model.ProviderBybit, s.breaker, hooks),
		},
		{
			name:   "crypto-scout",
			stream: cfg.Streams.CryptoScout,
			sink: newPayloadCollector(settings("crypto-scout", cfg.Streams.CryptoScout, cfg.Sinks.CryptoScout),
				s.repos.offsets, cryptoScoutRoutes(s.repos), model.ProviderCMC, s.breaker, hooks),
		},
	}

	if cfg.Analyst.Enabled {
		a := cfg.Analyst
		pipeline := analyst.New(analyst.Config{
			Symbol:              a.Symbol,
			Interval:            a.Interval,
			Stream:              cfg.Streams.Analyst,
			InputBatchSize:      a.Input.BatchSize,
			InputFlushInterval:  a.Input.FlushInterval(),
			OutputBatchSize:     a.Output.BatchSize,
			OutputFlushInterval: a.Output.FlushInterval(),
			WarmupLimit:         a.WarmupLimit,
		}, indicator.NewCalculator(a.Indicators), s.repos.analystKlines(a.Market), s.repos.indicators, s.repos.offsets,
			analyst.Options{
				Breaker:     s.breaker,
				InputHooks:  hooks,
				OutputHooks: hooks,
				OnBar:       s.metrics.OnBar,
			})
		out = append(out, binding{name: "analyst", stream: cfg.Streams.Analyst, sink: pipeline})
	}
	return out
}

// Dispatcher returns the query dispatcher, or nil when rpc is disabled.
func (s *Service) Dispatcher() *rpc.Dispatcher { return s.dispatcher }

// Run starts every component and blocks until ctx is cancelled. A
// subscription lost for good does not stop the process; it shows up in
// /healthz and as an alert. Components are stopped before Run returns.
func (s *Service) Run(ctx context.Context) error {
	s.log.WithFields(logger.Fields{
		"broker":  s.broker.Name(),
		"sqlite":  s.cfg.SQLite.Path,
		"sinks":   len(s.bindings),
		"metrics": s.cfg.Metrics.Addr,
	}).Info("starting collector service")

	for _, b := range s.bindings {
		if err := b.sink.Start(ctx); err != nil {
			s.shutdown()
			return fmt.Errorf("service: start %s: %w", b.name, err)
		}
	}

	s.server.Start()
	s.health.StartLivenessChecker(ctx, s.broker, s.db,
		time.Duration(s.cfg.Metrics.CheckIntervalMs)*time.Millisecond)

	if s.transport != nil {
		if err := s.transport.Start(ctx); err != nil {
			s.shutdown()
			return fmt.Errorf("service: %w", err)
		}
	}

	for _, sub := range s.subscribers {
		if err := sub.Start(ctx); err != nil {
			s.shutdown()
			return fmt.Errorf("service: %w", err)
		}
	}

	s.log.Info("all systems running")
	<-ctx.Done()
	s.log.Info("shutdown signal received")
	return s.shutdown()
}

// shutdown stops consumers before the sinks they feed, so the final flushes
// see every delivered message, then closes the transports and storage.
func (s *Service) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, sub := range s.subscribers {
		if err := sub.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, b := range s.bindings {
		if err := b.sink.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.transport != nil {
		if err := s.transport.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics server: %w", err))
	}
	if err := s.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("broker close: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sqlite close: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		s.log.WithError(err).Warn("shutdown finished with errors")
	} else {
		s.log.Info("shutdown complete")
	}
	return err
}
