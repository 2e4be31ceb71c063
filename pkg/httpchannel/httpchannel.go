// Package httpchannel is the concrete channel.Channel implementation: it
// fires an injection string as an HTTP parameter value against a target URL
// and returns the response body, with retry/backoff for transient transport
// failures and an optional client-side rate limiter for courteous probing.
// Grounded on the teacher SDK's pkg/internal/http (Client/Config) and
// pkg/internal/retry (exponential backoff with jitter).
package httpchannel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sstimap/sstimap-go/pkg/channel"
	internalhttp "github.com/sstimap/sstimap-go/pkg/internal/http"
	"github.com/sstimap/sstimap-go/pkg/internal/retry"
	"github.com/sstimap/sstimap-go/pkg/ssmlog"
)

// Config configures a Channel: the target URL, which query parameter
// carries the injection string, and the HTTP method to use. The injection
// always travels in the query string, whatever the method; no request body
// is sent.
type Config struct {
	URL       string
	Param     string // query parameter name carrying the injection
	Method    string // default GET
	Headers   map[string]string
	Client    *http.Client
	RateLimit rate.Limit // requests/sec ceiling; 0 disables the limiter
	Args      channel.Args
	Log       *ssmlog.Logger
}

// Channel is the net/http-backed channel.Channel implementation.
type Channel struct {
	cfg     Config
	client  *internalhttp.Client
	limiter *rate.Limiter
	id      string
	data    *channel.Data
	log     *ssmlog.Logger
}

// New builds a Channel from cfg. Every instance gets a UUID correlation id
// used purely for log/telemetry attribution.
func New(cfg Config) *Channel {
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.Param == "" {
		cfg.Param = "q"
	}
	log := cfg.Log
	if log == nil {
		log = ssmlog.Nop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(cfg.RateLimit, 1)
	}

	id := uuid.NewString()
	return &Channel{
		cfg: cfg,
		client: internalhttp.NewClient(internalhttp.Config{
			BaseURL:    cfg.URL,
			Headers:    cfg.Headers,
			HTTPClient: cfg.Client,
		}),
		limiter: limiter,
		id:      id,
		data:    channel.NewData(),
		log:     log.With("channel_id", id),
	}
}

// ID returns the channel's correlation UUID.
func (c *Channel) ID() string { return c.id }

// Req submits injection as the configured parameter's value and returns the
// raw response body. Transient transport failures (connection refused/reset,
// timeouts) retry with exponential backoff; a failed detection guess is not
// a transport error and is never retried here.
func (c *Channel) Req(ctx context.Context, injection string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	req := internalhttp.Request{
		Method: c.cfg.Method,
		Query:  map[string]string{c.cfg.Param: injection},
	}

	var body string
	err := retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return err
		}
		body = string(resp.Body)
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}

// URL returns the configured target URL.
func (c *Channel) URL() string { return c.cfg.URL }

// Args returns the configured run arguments.
func (c *Channel) Args() channel.Args { return c.cfg.Args }

// Data returns the channel's session fact store.
func (c *Channel) Data() *channel.Data { return c.data }

// Detected logs a detection event; a driver wiring pkg/telemetry can wrap
// Channel to additionally emit a span event here.
func (c *Channel) Detected(kind string, detail map[string]any) {
	c.log.Confirmed(fmt.Sprintf("detected %s: %v", kind, detail))
}
