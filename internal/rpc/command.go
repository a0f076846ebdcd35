// Package rpc serves read-only queries over stored market data.
//
// A query is a Command of type REQUEST naming a method and its positional
// arguments. The dispatcher answers with a RESPONSE that carries the same ID
// and method and is addressed to the request's Source. Commands travel as
// JSON over Redis pub/sub or a WebSocket connection.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/model"
)

// Command types.
const (
	TypeRequest  = "REQUEST"
	TypeResponse = "RESPONSE"
)

// Command is the query envelope.
type Command struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Source string `json:"source,omitempty"`
	Method string `json:"method"`
	Args   []any  `json:"args,omitempty"`
	Result []any  `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Request builds a REQUEST command.
func Request(source, method string, args ...any) Command {
	return Command{Type: TypeRequest, Source: source, Method: method, Args: args}
}

// Decode parses a command from JSON. Numbers stay json.Number so that
// epoch milliseconds survive intact.
func Decode(b []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var c Command
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("rpc: decode command: %w", err)
	}
	return c, nil
}

// Encode renders c as JSON.
func Encode(c Command) ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode command: %w", err)
	}
	return b, nil
}

// ErrBadArgs is returned by the argument helpers.
var ErrBadArgs = errors.New("rpc: bad arguments")

// ArgString returns args[i] as a non-empty string.
func ArgString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrBadArgs, i)
	}
	s, ok := args[i].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: argument %d must be a non-empty string", ErrBadArgs, i)
	}
	return s, nil
}

// ArgTime returns args[i] as a time. Numbers are epoch milliseconds; strings
// are RFC 3339.
func ArgTime(args []any, i int) (time.Time, error) {
	if i >= len(args) {
		return time.Time{}, fmt.Errorf("%w: missing argument %d", ErrBadArgs, i)
	}
	if s, ok := args[i].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: argument %d: %v", ErrBadArgs, i, err)
		}
		return t.UTC(), nil
	}
	t, err := model.Millis(args[i])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: argument %d: %v", ErrBadArgs, i, err)
	}
	return t, nil
}

// Rows spreads a typed slice into a result list.
func Rows[T any](rows []T) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
