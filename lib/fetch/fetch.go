// Package fetch performs single network fetches through a chosen proxy with
// an adaptive, cancellable deadline.
package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"pricescout-backend/lib/proxyhealth"
	"pricescout-backend/lib/telemetry"
)

var tracer = otel.Tracer("pricescout/fetch")

// Profile selects the header/identity profile a request goes out with.
type Profile int

const (
	// ProfileDefault mimics a desktop browser.
	ProfileDefault Profile = iota
	// ProfileRender mimics a mobile browser with cache-busting headers and a
	// longer deadline, for targets that serve client-rendered pages a
	// fallback document.
	ProfileRender
)

// renderDeadlineFactor stretches the deadline for ProfileRender requests.
const renderDeadlineFactor = 2

type Options struct {
	// BaseTimeout is the starting deadline before adaptive scaling.
	BaseTimeout time.Duration
	// MinTimeout and MaxTimeout clamp the adaptive deadline.
	MinTimeout time.Duration
	MaxTimeout time.Duration
	// RetryGrowth multiplies the deadline per retry, defaults to 1.5.
	RetryGrowth float64
}

func (o Options) withDefaults() Options {
	if o.BaseTimeout == 0 {
		o.BaseTimeout = time.Second * 15
	}
	if o.MinTimeout == 0 {
		o.MinTimeout = time.Second * 5
	}
	if o.MaxTimeout == 0 {
		o.MaxTimeout = time.Second * 60
	}
	if o.RetryGrowth == 0 {
		o.RetryGrowth = 1.5
	}
	return o
}

type Request struct {
	URL     string
	Proxy   proxyhealth.Proxy
	Profile Profile
	Headers map[string]string
	// Retry is the zero-based retry index, used to stretch the deadline.
	Retry int
}

type Response struct {
	Body       []byte
	StatusCode int
	Elapsed    time.Duration
	FinalURL   string
}

type clientKey struct {
	endpoint string
	profile  Profile
}

// Client caches one resty client per (proxy, profile) pair. Safe for
// concurrent use.
type Client struct {
	registry *proxyhealth.Registry
	opts     Options

	mu      sync.Mutex
	clients map[clientKey]*resty.Client
}

func New(registry *proxyhealth.Registry, opts Options) *Client {
	return &Client{
		registry: registry,
		opts:     opts.withDefaults(),
		clients:  map[clientKey]*resty.Client{},
	}
}

func (c *Client) clientFor(key clientKey) (*resty.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.clients[key]; ok {
		return cached, nil
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	switch key.profile {
	case ProfileRender:
		client.SetHeader("user-agent", browser.Mobile())
		client.SetHeader("accept", "text/html,application/xhtml+xml,*/*;q=0.8")
		client.SetHeader("cache-control", "no-cache")
		client.SetHeader("pragma", "no-cache")
	default:
		client.SetHeader("user-agent", browser.Chrome())
		client.SetHeader("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		client.SetHeader("accept-language", "en-US,en;q=0.9")
	}

	if key.endpoint != "" {
		client.SetProxy(key.endpoint)
	}

	telemetry.InstrumentResty(client, "pricescout/fetch/http")

	c.clients[key] = client
	return client, nil
}

// Deadline computes the effective deadline for a request: the base timeout
// stretched to the proxy's historical avg + 2 stddev when known, clamped to
// the configured band, then grown multiplicatively per retry so historically
// slow but reliable proxies are not punished with premature aborts.
func (c *Client) Deadline(p proxyhealth.Proxy, profile Profile, retry int) time.Duration {
	deadline := c.opts.BaseTimeout
	if avg, stddev, ok := c.registry.Latency(p); ok {
		adaptive := avg + 2*stddev
		if adaptive > deadline {
			deadline = adaptive
		}
	}
	if deadline < c.opts.MinTimeout {
		deadline = c.opts.MinTimeout
	}
	if deadline > c.opts.MaxTimeout {
		deadline = c.opts.MaxTimeout
	}
	if profile == ProfileRender {
		deadline *= renderDeadlineFactor
	}
	for i := 0; i < retry; i++ {
		deadline = time.Duration(float64(deadline) * c.opts.RetryGrowth)
	}
	return deadline
}

// Do issues one fetch. The returned error is always a *Error; a non-2xx
// status is reported as KindStatus with the response still populated.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "fetch:Do")
	defer span.End()

	client, err := c.clientFor(clientKey{endpoint: req.Proxy.Endpoint, profile: req.Profile})
	if err != nil {
		return nil, &Error{Kind: KindNetwork, URL: req.URL, cause: err}
	}

	deadline := c.Deadline(req.Proxy, req.Profile, req.Retry)
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	attemptID := uuid.NewString()
	slog.DebugContext(ctx, "fetch",
		"attempt", attemptID,
		"url", req.URL,
		"proxy", req.Proxy.Endpoint,
		"deadline", deadline,
		"retry", req.Retry,
	)

	r := client.R().SetContext(ctx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}

	res, err := r.Get(req.URL)
	if err != nil {
		ferr := classifyTransportError(req.URL, err)
		span.RecordError(ferr)
		span.SetStatus(codes.Error, ferr.Kind.String())
		return nil, ferr
	}

	out := &Response{
		Body:       res.Body(),
		StatusCode: res.StatusCode(),
		Elapsed:    res.Time(),
		FinalURL:   res.Request.URL,
	}

	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		ferr := &Error{Kind: KindStatus, StatusCode: res.StatusCode(), URL: req.URL}
		span.SetStatus(codes.Error, ferr.Error())
		return out, ferr
	}

	return out, nil
}

func classifyTransportError(reqURL string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, URL: reqURL, cause: err}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &Error{Kind: KindTimeout, URL: reqURL, cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCanceled, URL: reqURL, cause: err}
	}
	return &Error{Kind: KindNetwork, URL: reqURL, cause: err}
}
