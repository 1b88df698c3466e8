// Package client assembles the REST scheduler, the gateway session, and the
// event dispatcher into one connectable client.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"concord/internal/dispatch"
	"concord/internal/gateway"
	"concord/internal/models"
	"concord/internal/rest"
	"concord/internal/version"
)

// ErrAlreadyConnected is returned by Connect when a session was already
// started on this client.
var ErrAlreadyConnected = errors.New("client: already connected")

// Client is the top-level handle: one REST client and one gateway session
// sharing a token, with events flowing to subscribers through the
// dispatcher.
type Client struct {
	cfg *models.Config
	log *slog.Logger

	rest       *rest.Client
	dispatcher *dispatch.Dispatcher

	restOpts []rest.Option
	gwOpts   []gateway.Option

	mu      sync.Mutex
	session *gateway.Session

	closeOnce sync.Once
}

// Option customizes the assembled client.
type Option func(*Client)

// WithRESTOptions forwards options to the REST client, such as a metrics
// recorder or a custom transport.
func WithRESTOptions(opts ...rest.Option) Option {
	return func(c *Client) { c.restOpts = append(c.restOpts, opts...) }
}

// WithGatewayOptions forwards options to the gateway session.
func WithGatewayOptions(opts ...gateway.Option) Option {
	return func(c *Client) { c.gwOpts = append(c.gwOpts, opts...) }
}

// New builds a client from a validated configuration. The REST client is
// usable immediately; the gateway session starts with Connect.
func New(cfg *models.Config, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		log:        log,
		dispatcher: dispatch.New(log),
	}
	for _, opt := range opts {
		opt(c)
	}

	restOpts := append([]rest.Option{
		rest.WithUserAgent(version.GetInfo().UserAgent()),
	}, c.restOpts...)
	c.rest = rest.New(cfg.API, cfg.Client.Token, log, restOpts...)
	return c
}

// Connect resolves the gateway URL, opens the session, and blocks until the
// first READY. The session then keeps itself connected until Close; fatal
// session errors are reported by Wait. Calling Connect on a client whose
// session was already started returns ErrAlreadyConnected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	gwCfg := c.cfg.Gateway
	if gwCfg.URL == "" {
		info, err := c.rest.GetGateway(ctx)
		if err != nil {
			return fmt.Errorf("resolve gateway url: %w", err)
		}
		gwCfg.URL = info.URL
	}

	identity := gateway.Identity{
		Token:      c.cfg.Client.Token,
		Intents:    c.cfg.Client.Intents,
		ShardID:    c.cfg.Client.ShardID,
		ShardCount: c.cfg.Client.ShardCount,
	}
	session := gateway.New(gwCfg, identity, c.dispatcher.Dispatch, c.log, c.gwOpts...)

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.session = session
	c.mu.Unlock()

	return session.Connect(ctx)
}

// On subscribes a handler to a gateway event by name. The empty name
// subscribes to every event.
func (c *Client) On(event string, fn dispatch.Handler) dispatch.HandlerID {
	return c.dispatcher.Subscribe(event, fn)
}

// Off removes a subscription.
func (c *Client) Off(id dispatch.HandlerID) {
	c.dispatcher.Unsubscribe(id)
}

// REST returns the rate-limited REST client.
func (c *Client) REST() *rest.Client {
	return c.rest
}

// Gateway returns the live session for outbound commands, or nil before
// Connect.
func (c *Client) Gateway() *gateway.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Wait blocks until the gateway session ends and returns the fatal error
// that ended it, if any.
func (c *Client) Wait() error {
	session := c.Gateway()
	if session == nil {
		return nil
	}
	return session.Wait()
}

// Close shuts down the session and the REST client. Pending REST waiters are
// released with an error; the session never reconnects afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if session := c.Gateway(); session != nil {
			session.Close()
		}
		c.rest.Close()
	})
}
