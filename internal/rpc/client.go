// Package rpc carries calls between the player, room and gateway processes.
// Every call names a service, an operation and the partition it targets;
// the partition is resolved to an endpoint per attempt, so a call follows
// its partition when ownership moves.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mcoot/partyroom/internal/api/apierr"
	"github.com/mcoot/partyroom/internal/model"
	"github.com/mcoot/partyroom/internal/partition"
)

// Config holds RPC timeouts and the retry budget
type Config struct {
	Timeout      time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	RetryBudget  time.Duration
}

// DefaultConfig returns the standard RPC settings
func DefaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		RetryInitial: 50 * time.Millisecond,
		RetryMax:     time.Second,
		RetryBudget:  10 * time.Second,
	}
}

// Client makes partition-addressed calls
type Client struct {
	resolver partition.Resolver
	routers  map[partition.Service]partition.Router
	http     *http.Client
	cfg      Config
	logger   *slog.Logger
}

// NewClient creates a new RPC client. routers gives the partition count of
// each service and must match the servers' configuration.
func NewClient(resolver partition.Resolver, routers map[partition.Service]partition.Router, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		resolver: resolver,
		routers:  routers,
		http:     &http.Client{Timeout: cfg.Timeout},
		cfg:      cfg,
		logger:   logger,
	}
}

// Router returns the partition router of a service
func (c *Client) Router(service partition.Service) partition.Router {
	return c.routers[service]
}

// Call invokes op on the partition of service that owns key
func (c *Client) Call(ctx context.Context, service partition.Service, op string, key string, args, out any) error {
	router, ok := c.routers[service]
	if !ok {
		return fmt.Errorf("no partition router for service %q", service)
	}
	return c.CallPartition(ctx, service, op, router.Of(key), args, out)
}

// CallPartition invokes op on one partition of service. NotOwner, Transient,
// NotReady and transport failures are retried with exponential backoff until
// the retry budget is spent; every other error is returned at once.
func (c *Client) CallPartition(ctx context.Context, service partition.Service, op string, p int, args, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encoding %s/%s request: %w", service, op, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitial
	b.MaxInterval = c.cfg.RetryMax
	b.MaxElapsedTime = c.cfg.RetryBudget
	b.Reset()

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := c.do(ctx, service, op, p, body, out)
		if err == nil {
			return nil
		}
		if !model.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if errors.Is(err, model.ErrNotOwner) || errors.Is(err, errUnreachable) {
			c.resolver.Invalidate(service, p)
		}
		c.logger.Debug("rpc attempt failed",
			"service", service,
			"op", op,
			"partition", p,
			"attempt", attempt,
			"error", err,
		)
		return err
	}, backoff.WithContext(b, ctx))
}

// errUnreachable marks transport failures, after which the endpoint is
// resolved afresh
var errUnreachable = errors.New("endpoint unreachable")

func (c *Client) do(ctx context.Context, service partition.Service, op string, p int, body []byte, out any) error {
	endpoint, err := c.resolver.Resolve(ctx, service, p)
	if err != nil {
		return err
	}

	url := rpcURL(endpoint, service, op, p)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %w", model.ErrTransient, errUnreachable, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", url, err)
	}
	return nil
}

// decodeError turns an error envelope back into the sentinel it came from
func decodeError(resp *http.Response) error {
	var env apierr.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error.Code == "" {
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: http %d", model.ErrTransient, resp.StatusCode)
		}
		return fmt.Errorf("%w: http %d", apierr.ErrInternal, resp.StatusCode)
	}
	return apierr.FromCode(env.Error.Code, env.Error.Message)
}

func rpcURL(endpoint string, service partition.Service, op string, p int) string {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/rpc/v1/" + string(service) + "/" + op + "?partition=" + strconv.Itoa(p)
}
