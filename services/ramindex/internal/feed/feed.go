// Package feed follows a websocket stream of applied transaction traces.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/greymass/ramindex/libraries/chain"
	"github.com/greymass/ramindex/libraries/encoding"
	"github.com/greymass/ramindex/libraries/logger"
	"github.com/greymass/ramindex/services/ramindex/internal/apierr"
	"github.com/greymass/ramindex/services/ramindex/internal/metrics"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Handler receives each trace exactly once per feed position, in order.
// Returning an error of kind unavailable makes the client reconnect and
// redeliver from the last position the caller reports; any other error stops Run.
type Handler func(ctx context.Context, seq uint64, trace *chain.TransactionTrace) error

type SubscribeMessage struct {
	Type             string `json:"type"`
	StartSeq         uint64 `json:"start_seq,omitempty"`
	IrreversibleOnly bool   `json:"irreversible_only"`
}

type AckMessage struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq"`
}

// ServerMessage is the union of trace, heartbeat, catchup_complete and error messages.
type ServerMessage struct {
	Type    string                  `json:"type"`
	Seq     uint64                  `json:"seq,omitempty"`
	HeadSeq uint64                  `json:"head_seq,omitempty"`
	LibSeq  uint64                  `json:"lib_seq,omitempty"`
	Trace   *chain.TransactionTrace `json:"trace,omitempty"`
	Code    uint16                  `json:"code,omitempty"`
	Message string                  `json:"message,omitempty"`
}

type Config struct {
	URL              string
	IrreversibleOnly bool
	ReconnectMin     time.Duration
	ReconnectMax     time.Duration
	ReadLimit        int64
	AckEvery         uint64
}

type Status struct {
	Connected bool   `json:"connected"`
	LastSeq   uint64 `json:"last_seq"`
	HeadSeq   uint64 `json:"head_seq"`
}

type Client struct {
	cfg Config

	mu       sync.Mutex
	handler  Handler
	position func() uint64

	connected atomic.Bool
	lastSeq   atomic.Uint64
	headSeq   atomic.Uint64
}

var ErrAlreadySubscribed = errors.New("feed already has a handler")

func New(cfg Config) *Client {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 32 << 20
	}
	if cfg.AckEvery == 0 {
		cfg.AckEvery = 100
	}
	return &Client{cfg: cfg}
}

// Subscribe registers the single handler. position reports the last feed
// position the handler has durably applied; it is consulted on every (re)connect.
func (c *Client) Subscribe(h Handler, position func() uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return ErrAlreadySubscribed
	}
	c.handler = h
	c.position = position
	return nil
}

func (c *Client) Unsubscribe() {
	c.mu.Lock()
	c.handler = nil
	c.position = nil
	c.mu.Unlock()
}

func (c *Client) subscription() (Handler, func() uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler, c.position
}

func (c *Client) Status() Status {
	return Status{
		Connected: c.connected.Load(),
		LastSeq:   c.lastSeq.Load(),
		HeadSeq:   c.headSeq.Load(),
	}
}

// handlerError marks a failure that came from the handler rather than the connection.
type handlerError struct{ err error }

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Run follows the feed until ctx is done or the handler fails permanently.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin
	for {
		delivered, err := c.session(ctx)
		c.connected.Store(false)

		if ctx.Err() != nil {
			return nil
		}
		var he *handlerError
		if errors.As(err, &he) && apierr.KindOf(he.err) != apierr.KindUnavailable {
			return he.err
		}
		if h, _ := c.subscription(); h == nil {
			return nil
		}

		if delivered > 0 {
			backoff = c.cfg.ReconnectMin
		}
		logger.Warning("Trace feed disconnected (%v), reconnecting in %v", err, backoff)
		metrics.FeedReconnects.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

func (c *Client) session(ctx context.Context) (delivered int, err error) {
	handler, position := c.subscription()
	if handler == nil {
		return 0, errors.New("no handler subscribed")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	ws, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer ws.CloseNow()
	ws.SetReadLimit(c.cfg.ReadLimit)

	last := position()
	c.lastSeq.Store(last)
	sub := SubscribeMessage{Type: "subscribe", StartSeq: last + 1, IrreversibleOnly: c.cfg.IrreversibleOnly}
	if err := wsjson.Write(ctx, ws, sub); err != nil {
		return 0, fmt.Errorf("subscribe: %w", err)
	}
	c.connected.Store(true)
	logger.Printf("feed", "Subscribed to %s from position %d (irreversible only: %v)", c.cfg.URL, sub.StartSeq, sub.IrreversibleOnly)

	var unacked uint64
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return delivered, err
		}
		var msg ServerMessage
		if err := encoding.JSONiter.Unmarshal(data, &msg); err != nil {
			return delivered, fmt.Errorf("decode feed message: %w", err)
		}

		switch msg.Type {
		case "trace":
			if msg.Trace == nil {
				return delivered, fmt.Errorf("trace message %d without trace", msg.Seq)
			}
			if msg.Seq != 0 && msg.Seq <= last {
				logger.Printf("debug-feed", "Skipping already applied position %d", msg.Seq)
				continue
			}
			if err := handler(ctx, msg.Seq, msg.Trace); err != nil {
				ws.Close(websocket.StatusNormalClosure, "handler failed")
				return delivered, &handlerError{err: err}
			}
			if msg.Seq != 0 {
				last = msg.Seq
			}
			c.lastSeq.Store(last)
			delivered++
			// Positions need not be contiguous, so acks count deliveries.
			if unacked++; unacked >= c.cfg.AckEvery {
				if err := wsjson.Write(ctx, ws, AckMessage{Type: "ack", Seq: last}); err != nil {
					return delivered, fmt.Errorf("ack: %w", err)
				}
				unacked = 0
			}
		case "heartbeat":
			c.headSeq.Store(msg.HeadSeq)
			logger.Printf("debug-feed", "Heartbeat head=%d lib=%d applied=%d", msg.HeadSeq, msg.LibSeq, last)
		case "catchup_complete":
			c.headSeq.Store(msg.HeadSeq)
			logger.Printf("feed", "Caught up with feed at position %d", last)
		case "error":
			return delivered, fmt.Errorf("feed error %d: %s", msg.Code, msg.Message)
		default:
			logger.Printf("debug-feed", "Ignoring feed message type %q", msg.Type)
		}
	}
}
