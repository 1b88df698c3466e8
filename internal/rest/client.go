package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"sync"
	"time"

	"concord/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request describes one REST operation to schedule: the route, optional
// query string, a JSON-marshalable body, binary attachments, and an optional
// audit-log reason.
type Request struct {
	Route  Route
	Query  url.Values
	Body   any
	Files  []File
	Reason string
}

// Response is the raw result of a granted request.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Client schedules REST requests against the server's per-route and global
// rate limits. All endpoint wrappers funnel through Do; construct one Client
// per token at startup and Close it on shutdown to release pending waiters.
type Client struct {
	cfg       models.APIConfig
	token     string
	userAgent string
	baseURL   string

	http   *http.Client
	log    *slog.Logger
	rec    Recorder
	tracer trace.Tracer

	ledger *ledger
	global *bucket

	closeOnce sync.Once
	closed    chan struct{}
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, used by tests and by
// callers that need custom transports.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.rec = r }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a rate-limited REST client for the given token.
func New(cfg models.APIConfig, token string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg,
		token:     token,
		userAgent: "DiscordBot (https://concord.invalid, 0.0.0)",
		baseURL:   fmt.Sprintf("%s/v%d", cfg.BaseURL, cfg.Version),
		http:      &http.Client{},
		log:       log,
		rec:       nopRecorder{},
		tracer:    otel.Tracer("concord/rest"),
		ledger:    newLedger(),
		global:    newWindowBucket("global", cfg.GlobalLimit, cfg.GlobalWindow),
		closed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close shuts the client down. Requests blocked on a quota are released with
// ErrClientClosed; requests already in flight complete normally.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Do schedules and executes one request. It acquires the global quota, then
// the route's bucket reservation, then performs the HTTP round trip; the
// response's rate-limit headers feed back into the ledger before the status
// is interpreted.
//
// 429 responses are authoritative corrections and are always retried locally
// after the server's Retry-After, without re-queuing behind new callers.
// Transient transport failures and 500/502/504 are retried with growing
// delays. Everything else surfaces as an *APIError. The total wait and retry
// time is bounded by the configured request timeout and by ctx.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	select {
	case <-c.closed:
		return nil, ErrClientClosed
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if c.cfg.RequestTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer tcancel()
	}
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	routeKey := req.Route.Key()
	endpoint := req.Route.Endpoint()

	ctx, span := c.tracer.Start(ctx, req.Route.Method+" "+req.Route.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Route.Method),
			attribute.String("concord.route", routeKey),
		),
	)
	defer span.End()

	bkt := c.ledger.bucket(routeKey)
	start := time.Now()

	var lastErr error
	redeemed := false // a 429 redeem already claimed this attempt's slot
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if !redeemed {
			waitStart := time.Now()
			if err := c.global.reserve(ctx); err != nil {
				return nil, c.waitError(span, err)
			}
			if err := bkt.reserve(ctx); err != nil {
				return nil, c.waitError(span, err)
			}
			c.rec.QuotaWait(routeKey, time.Since(waitStart))
		}
		redeemed = false

		resp, err := c.send(ctx, req, endpoint)
		if err != nil {
			if !retryableTransport(err) {
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			lastErr = err
			c.log.Warn("transport failure, retrying",
				"route", routeKey, "attempt", attempt+1, "error", err)
			if err := sleepContext(ctx, transportBackoff(attempt)); err != nil {
				return nil, c.waitError(span, err)
			}
			continue
		}

		// The server may reassign the route to a different bucket at any
		// response; later attempts and callers use the new one.
		if nb := c.ledger.record(routeKey, resp.Header, resp.Status); nb != nil {
			bkt = nb
		}

		switch {
		case resp.Status == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header)
			global := resp.Header.Get(headerScope) == "global"
			c.rec.RateLimited(routeKey, global, retryAfter)
			c.log.Info("rate limited",
				"route", routeKey, "global", global, "retry_after", retryAfter)

			target := bkt
			if global {
				target = c.global
			}
			if err := target.redeem(ctx, retryAfter); err != nil {
				return nil, c.waitError(span, err)
			}
			redeemed = true
			lastErr = ErrRateLimited
			continue

		case resp.Status == http.StatusInternalServerError ||
			resp.Status == http.StatusBadGateway ||
			resp.Status == http.StatusGatewayTimeout:
			lastErr = newAPIError(req.Route.Method, endpoint, resp.Status, resp.Body)
			c.log.Warn("server error, retrying",
				"route", routeKey, "status", resp.Status, "attempt", attempt+1)
			if err := sleepContext(ctx, time.Duration(1+attempt*2)*time.Second); err != nil {
				return nil, c.waitError(span, err)
			}
			continue

		case resp.Status >= 400:
			apiErr := newAPIError(req.Route.Method, endpoint, resp.Status, resp.Body)
			c.rec.RequestDone(req.Route.Method, routeKey, resp.Status, time.Since(start))
			span.SetStatus(codes.Error, apiErr.Error())
			span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
			return nil, apiErr

		default:
			c.rec.RequestDone(req.Route.Method, routeKey, resp.Status, time.Since(start))
			span.SetStatus(codes.Ok, "")
			span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
			return resp, nil
		}
	}

	span.SetStatus(codes.Error, "retries exhausted")
	switch {
	case lastErr == ErrRateLimited:
		return nil, fmt.Errorf("%s %s: %w", req.Route.Method, endpoint, ErrRateLimited)
	case lastErr != nil:
		if _, ok := lastErr.(*APIError); ok {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%s %s: %w: %w", req.Route.Method, endpoint, ErrTransportExhausted, lastErr)
	default:
		return nil, fmt.Errorf("%s %s: %w", req.Route.Method, endpoint, ErrTransportExhausted)
	}
}

// send performs one HTTP round trip without interpreting rate-limit
// semantics. It serializes the body as JSON, or as multipart content when
// files are attached, and attaches auth and identification headers.
func (c *Client) send(ctx context.Context, req Request, endpoint string) (*Response, error) {
	reqURL := c.baseURL + endpoint
	if len(req.Query) > 0 {
		reqURL += "?" + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(req.Files) > 0:
		buf, ct, err := encodeMultipart(req.Body, req.Files)
		if err != nil {
			return nil, fmt.Errorf("encode multipart body: %w", err)
		}
		body, contentType = buf, ct
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Route.Method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bot "+c.token)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Reason != "" {
		httpReq.Header.Set("X-Audit-Log-Reason", url.QueryEscape(req.Reason))
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// encodeMultipart builds the multipart form the server expects for requests
// with attachments: a payload_json part followed by files[N] parts.
func encodeMultipart(jsonBody any, files []File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if jsonBody != nil {
		data, err := json.Marshal(jsonBody)
		if err != nil {
			return nil, "", err
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="payload_json"`)
		header.Set("Content-Type", "application/json")
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}

	for i, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files[%d]"; filename=%q`, i, f.Name))
		if f.ContentType != "" {
			header.Set("Content-Type", f.ContentType)
		}
		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

// waitError maps quota-wait interruptions to the client's error taxonomy.
func (c *Client) waitError(span trace.Span, err error) error {
	select {
	case <-c.closed:
		err = ErrClientClosed
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrRateLimitTimeout, err)
		}
	}
	span.SetStatus(codes.Error, err.Error())
	return err
}

// parseRetryAfter reads the mandatory Retry-After of a 429, which is
// authoritative over any local estimate. Zero means retry immediately.
func parseRetryAfter(header http.Header) time.Duration {
	secs, err := strconv.ParseFloat(header.Get(headerRetryAfter), 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// transportBackoff is the delay before retrying a connection-level failure:
// 500ms doubling per attempt, capped at 8s.
func transportBackoff(attempt int) time.Duration {
	d := 500 * time.Millisecond << uint(attempt)
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
