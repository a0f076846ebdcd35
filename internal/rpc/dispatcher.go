package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/logger"
)

// Request outcomes reported to OnRequest.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusRateLimited = "rate_limited"
	StatusUnknown     = "unknown_method"
)

// ErrRateLimited is reported when the request rate exceeds the limit.
var ErrRateLimited = errors.New("rpc: rate limit exceeded")

// HandlerFunc answers one method. The returned values become Command.Result.
type HandlerFunc func(ctx context.Context, args []any) ([]any, error)

// Limit bounds the request rate. A zero RPS disables limiting.
type Limit struct {
	RPS   float64
	Burst int
}

// Dispatcher maps method names to handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	limiter  *rate.Limiter
	timeout  time.Duration
	log      *logger.Entry

	// OnRequest is called once per dispatched command.
	OnRequest func(method, status string, took time.Duration)
}

// NewDispatcher creates a dispatcher. timeout bounds each handler call;
// zero means no bound.
func NewDispatcher(limit Limit, timeout time.Duration) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		timeout:  timeout,
		log:      logger.WithComponent("rpc"),
	}
	if limit.RPS > 0 {
		burst := limit.Burst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(limit.RPS), burst)
	}
	return d
}

// Handle registers h for method, replacing any previous handler.
func (d *Dispatcher) Handle(method string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = h
}

// Methods returns the registered method names.
func (d *Dispatcher) Methods() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for m := range d.handlers {
		out = append(out, m)
	}
	return out
}

// Dispatch answers req. It never fails: every problem is reported in the
// response's Error field.
func (d *Dispatcher) Dispatch(ctx context.Context, req Command) Command {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	resp := Command{ID: req.ID, Type: TypeResponse, Source: req.Source, Method: req.Method}

	status := StatusOK
	defer func() {
		if d.OnRequest != nil {
			d.OnRequest(req.Method, status, time.Since(start))
		}
	}()

	if req.Type != TypeRequest {
		status = StatusError
		resp.Error = fmt.Sprintf("unexpected command type %q", req.Type)
		return resp
	}
	if d.limiter != nil && !d.limiter.Allow() {
		status = StatusRateLimited
		resp.Error = ErrRateLimited.Error()
		return resp
	}

	d.mu.RLock()
	h, ok := d.handlers[req.Method]
	d.mu.RUnlock()
	if !ok {
		status = StatusUnknown
		resp.Error = fmt.Sprintf("unknown method %q", req.Method)
		return resp
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	result, err := h(ctx, req.Args)
	if err != nil {
		status = StatusError
		resp.Error = err.Error()
		d.log.WithError(err).WithFields(logger.Fields{
			"id":     req.ID,
			"method": req.Method,
		}).Warn("query failed")
		return resp
	}
	if result == nil {
		result = []any{}
	}
	resp.Result = result
	return resp
}

// DispatchJSON decodes raw, dispatches it and encodes the response. A body
// that is not a command yields an error response without an ID.
func (d *Dispatcher) DispatchJSON(ctx context.Context, raw []byte) (Command, []byte) {
	req, err := Decode(raw)
	var resp Command
	if err != nil {
		resp = Command{Type: TypeResponse, Error: err.Error()}
	} else {
		resp = d.Dispatch(ctx, req)
	}
	b, err := Encode(resp)
	if err != nil {
		d.log.WithError(err).WithField("method", resp.Method).Error("encode response failed")
		b, _ = Encode(Command{ID: resp.ID, Type: TypeResponse, Method: resp.Method, Error: err.Error()})
	}
	return resp, b
}
