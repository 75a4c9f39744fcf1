package acquire

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pricescout-backend/lib/chrono"
	"pricescout-backend/lib/configutil"
	"pricescout-backend/lib/extract"
	"pricescout-backend/lib/fetch"
)

// scriptedMethod plays back one error per attempt, then succeeds with rec.
type scriptedMethod struct {
	label string
	log   *[]string
	errs  []error
	rec   extract.Record
	n     int
}

func (m *scriptedMethod) name() string { return m.label }

func (m *scriptedMethod) run(_ context.Context, _ query, retry int) (extract.Record, error) {
	*m.log = append(*m.log, fmt.Sprintf("%s#%d", m.label, retry))
	i := m.n
	m.n++
	if i < len(m.errs) && m.errs[i] != nil {
		return extract.Record{}, m.errs[i]
	}
	return m.rec, nil
}

func pipelineService(t *testing.T) (*Service, *chrono.FakeTime) {
	t.Helper()
	clock := chrono.NewFakeTime(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Config{
		MaxRetries:  2,
		BackoffBase: configutil.DurationFrom(time.Millisecond),
		BackoffCap:  configutil.DurationFrom(time.Millisecond * 2),
	}, Deps{Clock: clock})
	return svc, clock
}

func testQuery() query {
	return query{
		platform:   PlatformConfig{Name: "shopA"},
		productURL: "https://shopa.example.com/p/1",
	}
}

func TestPipelineStrictOrderWithFullRetryBudgets(t *testing.T) {
	svc, clock := pipelineService(t)

	var log []string
	methods := []method{
		&scriptedMethod{label: "a", log: &log, errs: []error{errThinPayload, errThinPayload}},
		&scriptedMethod{label: "b", log: &log, errs: []error{errChallengeOnly, errChallengeOnly}},
		&scriptedMethod{label: "c", log: &log, rec: extract.Record{Title: "found"}},
	}

	rec := svc.runPipeline(context.Background(), testQuery(), methods)

	require.Equal(t, []string{"a#0", "a#1", "b#0", "b#1", "c#0"}, log)
	require.Equal(t, "found", rec.Title)
	require.Equal(t, clock.Now(), rec.ObservedAt)
	// the pipeline stamps the queried platform when the method left it empty
	require.Equal(t, "shopA", rec.SourcePlatform)
}

func TestPipelineAdvancesWithoutRetryOnNoContainer(t *testing.T) {
	svc, _ := pipelineService(t)

	var log []string
	methods := []method{
		&scriptedMethod{label: "a", log: &log, errs: []error{extract.ErrNoContainer, extract.ErrNoContainer}},
		&scriptedMethod{label: "b", log: &log, rec: extract.Record{Title: "found"}},
	}

	rec := svc.runPipeline(context.Background(), testQuery(), methods)
	require.Equal(t, []string{"a#0", "b#0"}, log)
	require.Equal(t, "found", rec.Title)
}

func TestPipelineSkipsUnconfiguredMethod(t *testing.T) {
	svc, _ := pipelineService(t)

	var log []string
	methods := []method{
		&scriptedMethod{label: "a", log: &log, errs: []error{errSkipMethod}},
		&scriptedMethod{label: "b", log: &log, rec: extract.Record{Title: "found"}},
	}

	svc.runPipeline(context.Background(), testQuery(), methods)
	require.Equal(t, []string{"a#0", "b#0"}, log)
}

func TestPipelineRetriesRetryableStatusOnly(t *testing.T) {
	svc, _ := pipelineService(t)

	var log []string
	notFound := fetch.NewError(fetch.KindStatus, 404, "u", nil)
	unavailable := fetch.NewError(fetch.KindStatus, 503, "u", nil)
	methods := []method{
		&scriptedMethod{label: "a", log: &log, errs: []error{notFound, notFound}},
		&scriptedMethod{label: "b", log: &log, errs: []error{unavailable, unavailable}},
		&scriptedMethod{label: "c", log: &log, rec: extract.Record{Title: "found"}},
	}

	svc.runPipeline(context.Background(), testQuery(), methods)
	// 404 burns one attempt and advances, 503 gets the full budget
	require.Equal(t, []string{"a#0", "b#0", "b#1", "c#0"}, log)
}

func TestPipelineExhaustionReturnsPlaceholder(t *testing.T) {
	svc, clock := pipelineService(t)

	var log []string
	methods := []method{
		&scriptedMethod{label: "a", log: &log, errs: []error{errThinPayload, errThinPayload}},
	}

	rec := svc.runPipeline(context.Background(), testQuery(), methods)
	require.True(t, rec.Unavailable)
	require.True(t, rec.Incomplete)
	require.False(t, rec.Usable())
	require.Equal(t, "shopA", rec.SourcePlatform)
	require.Equal(t, "https://shopa.example.com/p/1", rec.CanonicalURL)
	require.Equal(t, clock.Now(), rec.ObservedAt)
}

func TestPipelineStopsOnCancelledContext(t *testing.T) {
	svc, _ := pipelineService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var log []string
	methods := []method{
		&scriptedMethod{label: "a", log: &log, rec: extract.Record{Title: "never"}},
	}

	rec := svc.runPipeline(ctx, testQuery(), methods)
	require.True(t, rec.Unavailable)
	require.Empty(t, log)
}

func TestClassifyAttempt(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want attemptOutcome
	}{
		{"skip sentinel", errSkipMethod, attemptSkipMethod},
		{"wrapped skip", fmt.Errorf("%w: no search url", errSkipMethod), attemptSkipMethod},
		{"no container", extract.ErrNoContainer, attemptAdvance},
		{"thin payload", errThinPayload, attemptRetry},
		{"challenge only", errChallengeOnly, attemptRetry},
		{"network", fetch.NewError(fetch.KindNetwork, 0, "u", nil), attemptRetry},
		{"timeout", fetch.NewError(fetch.KindTimeout, 0, "u", nil), attemptRetry},
		{"server error", fetch.NewError(fetch.KindStatus, 500, "u", nil), attemptRetry},
		{"blocked", fetch.NewError(fetch.KindStatus, 429, "u", nil), attemptRetry},
		{"client error", fetch.NewError(fetch.KindStatus, 404, "u", nil), attemptAdvance},
		{"canceled", fetch.NewError(fetch.KindCanceled, 0, "u", nil), attemptAdvance},
		{"unrecognized", errors.New("surprise"), attemptAdvance},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, classifyAttempt(c.err))
		})
	}
}

func TestBackoffHonorsCancellation(t *testing.T) {
	svc := NewService(Config{
		BackoffBase: configutil.DurationFrom(time.Second * 10),
		BackoffCap:  configutil.DurationFrom(time.Second * 10),
	}, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	require.False(t, svc.backoff(ctx, 0))
	require.Less(t, time.Since(start), time.Second)
}

func TestTargetURL(t *testing.T) {
	q := query{
		platform:   PlatformConfig{Name: "shopA", SearchURL: "https://shopa.example.com/search?q=%s"},
		searchTerm: "usb c hub",
	}
	u, err := q.targetURL()
	require.NoError(t, err)
	require.Equal(t, "https://shopa.example.com/search?q=usb+c+hub", u)

	q.productURL = "https://shopa.example.com/p/1"
	u, err = q.targetURL()
	require.NoError(t, err)
	require.Equal(t, "https://shopa.example.com/p/1", u)

	_, err = query{platform: PlatformConfig{Name: "bare"}, searchTerm: "x"}.targetURL()
	require.Error(t, err)

	_, err = query{
		platform:   PlatformConfig{Name: "bad", SearchURL: "https://example.com/search"},
		searchTerm: "x",
	}.targetURL()
	require.Error(t, err)
}

func TestRankedMethodsDefaultOrder(t *testing.T) {
	svc := NewService(Config{}, Deps{})
	var names []string
	for _, m := range svc.rankedMethods() {
		names = append(names, m.name())
	}
	require.Equal(t, []string{"hosted-api", "direct", "render", "delegate"}, names)
}

func TestRankedMethodsCustomOrderSkipsUnknown(t *testing.T) {
	svc := NewService(Config{MethodOrder: []string{"render", "carrier-pigeon", "direct"}}, Deps{})
	var names []string
	for _, m := range svc.rankedMethods() {
		names = append(names, m.name())
	}
	require.Equal(t, []string{"render", "direct"}, names)
}
