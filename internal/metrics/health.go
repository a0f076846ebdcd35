package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Pinger is a dependency the liveness checker can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	BrokerConnected bool
	SQLiteOK        bool
	Subscriptions   map[string]bool
	LastFlushAt     time.Time

	// Liveness probe results
	BrokerLatencyMs float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		Subscriptions: make(map[string]bool),
		StartedAt:     time.Now(),
	}
}

func (h *HealthStatus) SetBrokerConnected(v bool) {
	h.mu.Lock()
	h.BrokerConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSubscription(stream string, up bool) {
	h.mu.Lock()
	h.Subscriptions[stream] = up
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastFlush(t time.Time) {
	h.mu.Lock()
	h.LastFlushAt = t
	h.mu.Unlock()
}

// CheckBroker pings the broker and records latency + connectivity.
func (h *HealthStatus) CheckBroker(ctx context.Context, broker Pinger) {
	start := time.Now()
	err := broker.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.BrokerConnected = err == nil
	h.BrokerLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db Pinger) {
	start := time.Now()
	err := db.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs the dependency checks once, then every interval
// until ctx is done.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, broker, db Pinger, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if broker != nil {
			h.CheckBroker(probeCtx, broker)
		}
		if db != nil {
			h.CheckSQLite(probeCtx, db)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// HealthReport is the /healthz body.
type HealthReport struct {
	Status          string          `json:"status"`
	Uptime          string          `json:"uptime"`
	BrokerConnected bool            `json:"broker_connected"`
	BrokerLatencyMs float64         `json:"broker_latency_ms"`
	SQLiteOK        bool            `json:"sqlite_ok"`
	SQLiteLatencyMs float64         `json:"sqlite_latency_ms"`
	Subscriptions   map[string]bool `json:"subscriptions"`
	DownStreams     []string        `json:"down_streams,omitempty"`
	LastFlushAt     string          `json:"last_flush_at,omitempty"`
	LastCheckAt     string          `json:"last_check_at"`
}

// Report evaluates the current status. Any dependency or subscription down
// makes the service degraded; losing both broker and SQLite makes it unhealthy.
func (h *HealthStatus) Report() HealthReport {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := make(map[string]bool, len(h.Subscriptions))
	var down []string
	for s, up := range h.Subscriptions {
		subs[s] = up
		if !up {
			down = append(down, s)
		}
	}
	sort.Strings(down)

	status := "healthy"
	if !h.BrokerConnected || !h.SQLiteOK || len(down) > 0 {
		status = "degraded"
	}
	if !h.BrokerConnected && !h.SQLiteOK {
		status = "unhealthy"
	}

	r := HealthReport{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		BrokerConnected: h.BrokerConnected,
		BrokerLatencyMs: h.BrokerLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Subscriptions:   subs,
		DownStreams:     down,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastFlushAt.IsZero() {
		r.LastFlushAt = h.LastFlushAt.Format(time.RFC3339)
	}
	return r
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if report.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}
