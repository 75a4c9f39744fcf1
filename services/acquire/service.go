// Package acquire is the adaptive acquisition orchestrator: it decides which
// acquisition method to try for a query, in what order, through which proxy,
// with what deadline, and how to fall back when a method fails.
package acquire

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"

	"pricescout-backend/lib/chrono"
	"pricescout-backend/lib/configutil"
	"pricescout-backend/lib/extract"
	"pricescout-backend/lib/fetch"
	"pricescout-backend/lib/prodcache"
	"pricescout-backend/lib/proxyhealth"
	"pricescout-backend/lib/telemetry"
)

var tracer = otel.Tracer("pricescout/services/acquire")

type PlatformConfig struct {
	Name string `json:"name"`
	// SearchURL is a template with a %s placeholder for the escaped term.
	SearchURL string `json:"search_url"`
	// Hosts are hostname fragments that identify product urls belonging to
	// this platform.
	Hosts []string `json:"hosts"`
}

type HostedAPIConfig struct {
	Endpoint string `json:"endpoint"`
	Key      string `json:"key"`
}

type DelegateConfig struct {
	Endpoint string `json:"endpoint"`
	Token    string `json:"token"`
}

type Config struct {
	Proxies   []string         `json:"proxies"`
	Platforms []PlatformConfig `json:"platforms"`

	HostedAPI HostedAPIConfig `json:"hosted_api"`
	Delegate  DelegateConfig  `json:"delegate"`

	// MethodOrder overrides the default method ranking:
	// hosted-api, direct, render, delegate.
	MethodOrder []string `json:"method_order"`

	// MaxRetries is the number of attempts each method gets, default 2.
	MaxRetries  int                `json:"max_retries"`
	BackoffBase configutil.Duration `json:"backoff_base"`
	BackoffCap  configutil.Duration `json:"backoff_cap"`

	BaseTimeout configutil.Duration `json:"base_timeout"`
	MinTimeout  configutil.Duration `json:"min_timeout"`
	MaxTimeout  configutil.Duration `json:"max_timeout"`

	// OverallTimeout is the ceiling for a whole comparison fan-out.
	OverallTimeout configutil.Duration `json:"overall_timeout"`

	ProductTTL      configutil.Duration `json:"product_ttl"`
	ComparisonTTL   configutil.Duration `json:"comparison_ttl"`
	CacheMaxEntries int                 `json:"cache_max_entries"`
	// CacheDB, when set, backs the cache with an embedded database instead
	// of the in-process map.
	CacheDB string `json:"cache_db"`

	MinValidLength   int    `json:"min_valid_length"`
	FallbackCurrency string `json:"fallback_currency"`
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.BackoffBase.IsZero() {
		c.BackoffBase = configutil.DurationFrom(time.Millisecond * 500)
	}
	if c.BackoffCap.IsZero() {
		c.BackoffCap = configutil.DurationFrom(time.Second * 8)
	}
	if c.OverallTimeout.IsZero() {
		c.OverallTimeout = configutil.DurationFrom(time.Second * 45)
	}
	if c.ProductTTL.IsZero() {
		c.ProductTTL = configutil.DurationFrom(time.Minute * 20)
	}
	if c.ComparisonTTL.IsZero() {
		c.ComparisonTTL = configutil.DurationFrom(time.Hour)
	}
	if c.CacheMaxEntries <= 0 {
		c.CacheMaxEntries = 512
	}
	if c.FallbackCurrency == "" {
		c.FallbackCurrency = "USD"
	}
	return c
}

// Deps are the service's injectable collaborators; zero values get sensible
// defaults so production construction stays one call.
type Deps struct {
	Clock       chrono.TimeAPI
	Registry    *proxyhealth.Registry
	Fetcher     *fetch.Client
	Strategies  *extract.Registry
	Products    prodcache.Store[extract.Record]
	Comparisons prodcache.Store[[]extract.Record]
}

type Service struct {
	cfg        Config
	clock      chrono.TimeAPI
	registry   *proxyhealth.Registry
	fetcher    *fetch.Client
	strategies *extract.Registry

	products    prodcache.Store[extract.Record]
	comparisons prodcache.Store[[]extract.Record]

	// shared client for the hosted API and the delegate endpoint
	api *resty.Client

	proxies []proxyhealth.Proxy
}

func NewService(cfg Config, deps Deps) *Service {
	cfg = cfg.withDefaults()

	if deps.Clock == nil {
		deps.Clock = chrono.NewStandardTime()
	}
	if deps.Registry == nil {
		deps.Registry = proxyhealth.NewRegistry(deps.Clock)
	}
	if deps.Fetcher == nil {
		deps.Fetcher = fetch.New(deps.Registry, fetch.Options{
			BaseTimeout: cfg.BaseTimeout.Duration,
			MinTimeout:  cfg.MinTimeout.Duration,
			MaxTimeout:  cfg.MaxTimeout.Duration,
		})
	}
	if deps.Strategies == nil {
		deps.Strategies = extract.NewRegistry(cfg.FallbackCurrency)
	}
	if deps.Products == nil {
		deps.Products = prodcache.NewMemory[extract.Record](deps.Clock, cfg.CacheMaxEntries)
	}
	if deps.Comparisons == nil {
		deps.Comparisons = prodcache.NewMemory[[]extract.Record](deps.Clock, cfg.CacheMaxEntries)
	}

	api := resty.New()
	api.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(api, "pricescout/services/acquire/api")

	proxies := make([]proxyhealth.Proxy, 0, len(cfg.Proxies))
	for _, endpoint := range cfg.Proxies {
		proxies = append(proxies, proxyhealth.Proxy{Endpoint: endpoint})
	}
	if len(proxies) == 0 {
		// no relays configured: track the direct connection like a proxy
		proxies = []proxyhealth.Proxy{{}}
	}

	return &Service{
		cfg:         cfg,
		clock:       deps.Clock,
		registry:    deps.Registry,
		fetcher:     deps.Fetcher,
		strategies:  deps.Strategies,
		products:    deps.Products,
		comparisons: deps.Comparisons,
		api:         api,
		proxies:     proxies,
	}
}

// Registry exposes the health registry for operator surfaces (CLI snapshot).
func (s *Service) Registry() *proxyhealth.Registry {
	return s.registry
}

// ProbeProxies fetches target once through every configured proxy and feeds
// the outcomes into the health registry. The one-shot CLI uses it to seed
// health data before rendering a snapshot.
func (s *Service) ProbeProxies(ctx context.Context, target string) {
	ctx, span := tracer.Start(ctx, "ProbeProxies")
	defer span.End()

	for _, p := range s.proxies {
		res, err := s.fetcher.Do(ctx, fetch.Request{URL: target, Proxy: p})
		if err != nil {
			status := 0
			var ferr *fetch.Error
			if errors.As(err, &ferr) {
				status = ferr.StatusCode
			}
			s.registry.RecordFailure(p, "", err.Error(), status)
			slog.InfoContext(ctx, "proxy probe failed",
				"proxy", p.Endpoint, "err", err)
			continue
		}
		s.registry.RecordSuccess(p, res.Elapsed, "")
	}
}

// AcquireProduct acquires a normalized record for a product url. The caller
// always gets a record: on total exhaustion it is the placeholder marked
// unavailable, never an error, so the rendering layer has no failure branch.
func (s *Service) AcquireProduct(ctx context.Context, productURL string) extract.Record {
	ctx, span := tracer.Start(ctx, "AcquireProduct")
	defer span.End()

	if cached, hit, err := s.products.Get(ctx, productURL); err == nil && hit {
		return cached
	} else if err != nil {
		slog.WarnContext(ctx, "product cache read failed", "err", err)
	}

	q := query{
		platform:   s.platformForURL(productURL),
		productURL: productURL,
	}
	rec := s.runPipeline(ctx, q, s.rankedMethods())

	if !rec.Unavailable {
		if err := s.products.Put(ctx, productURL, rec, s.cfg.ProductTTL.Duration); err != nil {
			slog.WarnContext(ctx, "product cache write failed", "err", err)
		}
	}
	return rec
}

func (s *Service) platformForURL(productURL string) PlatformConfig {
	parsed, err := url.Parse(productURL)
	if err != nil {
		return PlatformConfig{Name: "generic"}
	}
	host := strings.ToLower(parsed.Hostname())
	for _, p := range s.cfg.Platforms {
		for _, h := range p.Hosts {
			if strings.Contains(host, strings.ToLower(h)) {
				return p
			}
		}
		if strings.Contains(host, strings.ToLower(p.Name)) {
			return p
		}
	}
	return PlatformConfig{Name: "generic"}
}
