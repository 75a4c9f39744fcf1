package acquire

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	"pricescout-backend/lib/blockcheck"
	"pricescout-backend/lib/extract"
	"pricescout-backend/lib/fetch"
)

// hostedAPIMethod queries the paid structured-data API. Most reliable, no
// proxy needed, skipped entirely when credentials are missing.
type hostedAPIMethod struct {
	svc *Service
}

func (m hostedAPIMethod) name() string { return "hosted-api" }

func (m hostedAPIMethod) run(ctx context.Context, q query, retry int) (extract.Record, error) {
	cfg := m.svc.cfg.HostedAPI
	if cfg.Endpoint == "" || cfg.Key == "" {
		return extract.Record{}, errSkipMethod
	}

	req := m.svc.api.R().
		SetContext(ctx).
		SetHeader("x-api-key", cfg.Key).
		SetQueryParam("platform", q.platform.Name)
	if q.productURL != "" {
		req.SetQueryParam("url", q.productURL)
	} else {
		req.SetQueryParam("q", q.searchTerm)
	}

	var rec extract.Record
	res, err := req.SetResult(&rec).Get(cfg.Endpoint)
	if err != nil {
		return extract.Record{}, fetch.NewError(fetch.KindNetwork, 0, cfg.Endpoint, err)
	}
	if res.IsError() {
		return extract.Record{}, fetch.NewError(fetch.KindStatus, res.StatusCode(), cfg.Endpoint, nil)
	}
	if !rec.Usable() {
		return extract.Record{}, extract.ErrNoContainer
	}
	return rec, nil
}

// directMethod fetches the target page through the best available proxy and
// extracts with the platform's strategy. It backs both the "direct" and the
// "render" ranks; the latter uses the render header profile and its longer
// deadline for client-rendered targets.
type directMethod struct {
	svc     *Service
	label   string
	profile fetch.Profile
}

func (m directMethod) name() string { return m.label }

func (m directMethod) run(ctx context.Context, q query, retry int) (extract.Record, error) {
	ctx, span := tracer.Start(ctx, "method:"+m.label)
	defer span.End()

	targetURL, err := q.targetURL()
	if err != nil {
		return extract.Record{}, fmt.Errorf("%w: %w", errSkipMethod, err)
	}

	// a fresh selection per attempt: a proxy suspended by the previous
	// attempt is naturally avoided here
	proxy, ok := m.svc.registry.Select(m.svc.proxies, q.platform.Name)
	if !ok {
		return extract.Record{}, errSkipMethod
	}

	res, err := m.svc.fetcher.Do(ctx, fetch.Request{
		URL:     targetURL,
		Proxy:   proxy,
		Profile: m.profile,
		Retry:   retry,
	})
	if err != nil {
		status := 0
		var ferr *fetch.Error
		if errors.As(err, &ferr) {
			status = ferr.StatusCode
		}
		m.svc.registry.RecordFailure(proxy, q.platform.Name, err.Error(), status)
		span.SetStatus(codes.Error, err.Error())
		return extract.Record{}, err
	}

	verdict := blockcheck.Classify(res.Body, m.svc.cfg.MinValidLength)
	switch verdict.Verdict {
	case blockcheck.VerdictTooShort:
		m.svc.registry.RecordFailure(proxy, q.platform.Name, "response too short", res.StatusCode)
		return extract.Record{}, errThinPayload

	case blockcheck.VerdictChallenge:
		// the proxy got burned either way; suspend it before deciding what
		// to do with the payload
		m.svc.registry.RecordFailure(
			proxy, q.platform.Name,
			"challenge: "+verdict.MatchedPattern, res.StatusCode,
		)
		// sites sometimes ship partial content alongside the challenge
		// banner, so extraction still gets a shot
		rec, extractErr := m.extract(ctx, q, res.Body, res.FinalURL)
		if extractErr == nil && rec.Usable() {
			rec.Partial = true
			return rec, nil
		}
		return extract.Record{}, errChallengeOnly

	default:
		m.svc.registry.RecordSuccess(proxy, res.Elapsed, q.platform.Name)
		return m.extract(ctx, q, res.Body, res.FinalURL)
	}
}

func (m directMethod) extract(ctx context.Context, q query, payload []byte, pageURL string) (extract.Record, error) {
	strategy := m.svc.strategies.StrategyFor(q.platform.Name)
	rec, err := strategy.Extract(ctx, payload, pageURL)
	if err != nil {
		return extract.Record{}, err
	}
	rec.SourcePlatform = q.platform.Name
	return rec, nil
}

// delegateMethod hands the query to a trusted second process that performs
// the fetch server-side and returns the normalized shape directly.
type delegateMethod struct {
	svc *Service
}

func (m delegateMethod) name() string { return "delegate" }

type delegateRequest struct {
	URL        string `json:"url,omitempty"`
	SearchTerm string `json:"search_term,omitempty"`
	Platform   string `json:"platform"`
}

func (m delegateMethod) run(ctx context.Context, q query, retry int) (extract.Record, error) {
	cfg := m.svc.cfg.Delegate
	if cfg.Endpoint == "" {
		return extract.Record{}, errSkipMethod
	}

	var rec extract.Record
	res, err := m.svc.api.R().
		SetContext(ctx).
		SetAuthToken(cfg.Token).
		SetBody(delegateRequest{
			URL:        q.productURL,
			SearchTerm: q.searchTerm,
			Platform:   q.platform.Name,
		}).
		SetResult(&rec).
		Post(cfg.Endpoint)
	if err != nil {
		return extract.Record{}, fetch.NewError(fetch.KindNetwork, 0, cfg.Endpoint, err)
	}
	if res.IsError() {
		return extract.Record{}, fetch.NewError(fetch.KindStatus, res.StatusCode(), cfg.Endpoint, nil)
	}
	if !rec.Usable() {
		return extract.Record{}, extract.ErrNoContainer
	}
	return rec, nil
}
