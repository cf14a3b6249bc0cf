package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultRetryDelay is the fixed wait between a failed session and the next dial.
const DefaultRetryDelay = 3 * time.Second

// Config holds connector tuning.
type Config struct {
	// RetryDelay is the flat delay before every redial. There is no backoff
	// and no retry limit.
	RetryDelay time.Duration
	// PingInterval enables keepalive pings when positive and the connection
	// implements Pinger.
	PingInterval time.Duration
	// Observer receives state transitions and relay activity. May be nil.
	Observer Observer
}

// DefaultConfig returns the default connector configuration.
func DefaultConfig() Config {
	return Config{
		RetryDelay:   DefaultRetryDelay,
		PingInterval: 30 * time.Second,
	}
}

// Connector owns the upstream connection. It dials, runs one Inbound and one
// Outbound relay against each session and redials after any failure until
// its context ends.
type Connector struct {
	endpoint string
	dialer   Dialer
	inbound  *Inbound
	outbound *Outbound
	cfg      Config
	observer Observer
	logger   *zap.Logger

	// sleep waits d or until ctx ends. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status Status
}

// NewConnector creates a connector that relays between endpoint and the
// given source and sink.
func NewConnector(endpoint string, dialer Dialer, source Source, sink Sink, cfg Config, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Connector{
		endpoint: endpoint,
		dialer:   dialer,
		inbound:  NewInbound(sink, observer, logger.Named("inbound")),
		outbound: NewOutbound(source, observer, logger.Named("outbound")),
		cfg:      cfg,
		observer: observer,
		logger:   logger,
		sleep:    sleepContext,
		status: Status{
			State:    StateDisconnected,
			Endpoint: endpoint,
		},
	}
}

// Run maintains the upstream connection until ctx is cancelled, then
// returns ctx.Err(). Transport failures never end Run.
func (c *Connector) Run(ctx context.Context) error {
	attempt := 0
	for {
		attempt++
		c.transition(StateEvent{State: StateConnecting, Endpoint: c.endpoint, Attempt: attempt})
		c.logger.Info("connecting to upstream",
			zap.String("endpoint", c.endpoint),
			zap.Int("attempt", attempt))

		sess, err := c.open(ctx)
		if err == nil {
			c.transition(StateEvent{
				State:     StateConnected,
				Endpoint:  c.endpoint,
				Attempt:   attempt,
				SessionID: sess.ID,
			})
			c.logger.Info("connected to upstream",
				zap.String("endpoint", c.endpoint),
				zap.String("session", sess.ID),
				zap.String("remote", sess.RemoteAddr()))

			err = c.serve(ctx, sess)
		}

		if ctx.Err() != nil {
			c.transition(StateEvent{State: StateDisconnected, Endpoint: c.endpoint, Attempt: attempt})
			c.logger.Info("connector stopped", zap.String("endpoint", c.endpoint))
			return ctx.Err()
		}

		c.transition(StateEvent{
			State:    StateDisconnected,
			Endpoint: c.endpoint,
			Attempt:  attempt,
			Err:      err,
			RetryIn:  c.cfg.RetryDelay,
		})
		c.logger.Warn("upstream connection lost, retrying",
			zap.String("endpoint", c.endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", c.cfg.RetryDelay),
			zap.Error(err))

		if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
			c.transition(StateEvent{State: StateDisconnected, Endpoint: c.endpoint, Attempt: attempt})
			return err
		}
	}
}

// Status returns a snapshot of the connector state.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connector) open(ctx context.Context) (*Session, error) {
	conn, err := c.dialer.Dial(ctx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.endpoint, err)
	}
	return newSession(c.endpoint, conn, time.Now()), nil
}

// serve runs the relays against sess until either of them fails. The
// session is closed before serve returns.
func (c *Connector) serve(ctx context.Context, sess *Session) error {
	defer sess.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Closing the session unblocks a relay stuck in Read or Write.
	stop := context.AfterFunc(gctx, func() { _ = sess.Close() })
	defer stop()

	g.Go(func() error { return c.inbound.Run(gctx, sess) })
	g.Go(func() error { return c.outbound.Run(gctx, sess) })

	if pinger, ok := sess.conn.(Pinger); ok && c.cfg.PingInterval > 0 {
		g.Go(func() error { return c.keepalive(gctx, sess, pinger) })
	}

	err := g.Wait()
	if errors.Is(err, ErrSessionClosed) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Connector) keepalive(ctx context.Context, sess *Session, pinger Pinger) error {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := pinger.Ping(ctx); err != nil {
				return fmt.Errorf("keepalive ping: %w", err)
			}
			c.logger.Debug("sent keepalive ping", zap.String("session", sess.ID))
		}
	}
}

func (c *Connector) transition(ev StateEvent) {
	c.mu.Lock()
	c.status.State = ev.State
	c.status.Attempts = ev.Attempt
	switch ev.State {
	case StateConnected:
		c.status.SessionID = ev.SessionID
		c.status.ConnectedSince = time.Now()
	case StateDisconnected:
		c.status.SessionID = ""
		c.status.ConnectedSince = time.Time{}
	}
	c.mu.Unlock()

	c.observer.StateChanged(ev)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
