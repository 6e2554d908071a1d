// Package exchange talks to the market venue: REST quotes, the market stream and slot discovery.
package exchange

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"slotbot-go/internal/metrics"
)

const (
	defaultStreamURL      = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	defaultReconnectDelay = 3 * time.Second
	defaultPingInterval   = 10 * time.Second
	defaultWriteBuffer    = 64
	writeTimeout          = 5 * time.Second
)

// Stream maintains the market websocket and feeds decoded events to a handler.
type Stream struct {
	log            zerolog.Logger
	url            string
	subs           *SubscriptionManager
	dialer         *websocket.Dialer
	reconnectDelay time.Duration
	pingInterval   time.Duration
	writeBuffer    int
}

// StreamOption configures Stream construction parameters.
type StreamOption func(*Stream)

// WithReconnectDelay overrides the fixed wait between connection attempts.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithPingInterval overrides the heartbeat cadence.
func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

// WithWriteBuffer sizes the outbound message queue.
func WithWriteBuffer(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.writeBuffer = n
		}
	}
}

// NewStream constructs a stream bound to a subscription manager.
func NewStream(log zerolog.Logger, url string, subs *SubscriptionManager, opts ...StreamOption) *Stream {
	if url == "" {
		url = defaultStreamURL
	}
	s := &Stream{
		log:            log,
		url:            url,
		subs:           subs,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		reconnectDelay: defaultReconnectDelay,
		pingInterval:   defaultPingInterval,
		writeBuffer:    defaultWriteBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects and reconnects until ctx is done. handle is called sequentially
// from the reader for every frame that decodes to at least one event.
func (s *Stream) Run(ctx context.Context, handle func([]Event)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.StreamReconnects.Inc()
		s.log.Warn().Err(err).Dur("delay", s.reconnectDelay).Msg("market stream disconnected, retrying")
		select {
		case <-time.After(s.reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Stream) session(ctx context.Context, handle func([]Event)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(1 << 22)
	s.log.Info().Str("url", s.url).Msg("connected market stream")

	sessCtx, cancel := context.WithCancel(ctx)
	out := make(chan []byte, s.writeBuffer)
	var wg conc.WaitGroup
	defer func() {
		s.subs.detach(out)
		cancel()
		conn.Close()
		wg.Wait()
	}()

	// Sole writer on the socket.
	wg.Go(func() {
		for {
			select {
			case <-sessCtx.Done():
				return
			case msg := <-out:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					s.log.Warn().Err(err).Msg("market stream write failed")
					cancel()
					conn.Close()
					return
				}
			}
		}
	})
	wg.Go(func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessCtx.Done():
				return
			case <-ticker.C:
				s.subs.ping()
			}
		}
	})
	// Unblocks ReadMessage on shutdown.
	wg.Go(func() {
		<-sessCtx.Done()
		conn.Close()
	})

	s.subs.attach(out, cancel)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if events := Decode(message); len(events) > 0 {
			handle(events)
		}
	}
}
