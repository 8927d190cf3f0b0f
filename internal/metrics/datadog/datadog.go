// Package datadog submits pbietl metrics to Datadog.
//
// A `pbietl run` lasts seconds and `pbietl orchestrate` can last many
// minutes, so events are aggregated in memory per series (metric name plus
// tag set) and submitted on a ticker and once more on Close. Histograms are
// sent as p50/p90/p95/p99/max/samples gauges of the window.
//
// Every series carries pipeline:pbietl, the env tag and, when set, the
// command of the invocation. Job, segment, table and status
// labels of an event become tags of its series.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"pbietl/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options configures a Backend.
type Options struct {
	// Command is the CLI command measured ("run", "orchestrate").
	Command string
	// Tags are extra Datadog tags such as "env:prod" or "team:finanzas".
	Tags []string
	// FlushEvery defaults to one minute.
	FlushEvery time.Duration

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter submitter
}

// submitter is the part of *datadogV2.MetricsApi the backend calls.
type submitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// family maps an internal metric to its Datadog name and the labels promoted
// to tags, in tag order.
type family struct {
	name   string
	labels []string
}

var families = map[string]family{
	metrics.JobTotal:                   {"pbietl.job.runs", []string{"job", "segment", "status"}},
	metrics.JobDurationSeconds:         {"pbietl.job.duration_seconds", []string{"job", "segment", "status"}},
	metrics.SegmentTotal:               {"pbietl.segment.runs", []string{"segment", "status"}},
	metrics.SegmentDurationSeconds:     {"pbietl.segment.duration_seconds", []string{"segment", "status"}},
	metrics.SegmentFailedSteps:         {"pbietl.segment.failed_steps", []string{"segment"}},
	metrics.RowsTotal:                  {"pbietl.rows", []string{"kind", "table"}},
	metrics.HTTPRequestsTotal:          {"pbietl.source.http.requests", []string{"status"}},
	metrics.HTTPErrorsTotal:            {"pbietl.source.http.errors", []string{"status"}},
	metrics.HTTPRequestDurationSeconds: {"pbietl.source.http.duration_seconds", []string{"status"}},
	metrics.HTTPDownloadBytes:          {"pbietl.source.http.download_bytes", []string{"status"}},
}

// seriesKey identifies one aggregated series.
type seriesKey struct {
	metric string
	tags   string // comma-joined event tags
}

func (k seriesKey) tagList() []string {
	if k.tags == "" {
		return nil
	}
	return strings.Split(k.tags, ",")
}

// window holds the events of one flush interval.
type window struct {
	counts  map[seriesKey]float64
	samples map[seriesKey][]float64
}

func newWindow() window {
	return window{counts: map[seriesKey]float64{}, samples: map[seriesKey][]float64{}}
}

func (w window) empty() bool { return len(w.counts) == 0 && len(w.samples) == 0 }

// Backend implements metrics.Backend. It is safe for concurrent use.
type Backend struct {
	api  submitter
	ctx  context.Context
	base []string
	now  func() time.Time

	every     time.Duration
	newTicker func(d time.Duration) *time.Ticker
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	win window
}

var _ metrics.Backend = (*Backend)(nil)

// envTag picks the first non-blank of ENV and DD_ENV.
func envTag() string {
	for _, k := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

// NewBackend starts a backend whose flush loop runs until Close. Site and API
// key come from DD_SITE and DD_API_KEY; submission errors surface from Flush.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil context"))
	}
	base := []string{envTag(), "pipeline:pbietl"}
	if opts.Command != "" {
		base = append(base, "command:"+tagValue(opts.Command))
	}
	base = append(base, opts.Tags...)

	b := &Backend{
		api:       opts.submitter,
		ctx:       dd.NewDefaultContext(parent),
		base:      base,
		now:       opts.now,
		every:     opts.FlushEvery,
		newTicker: opts.newTicker,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		win:       newWindow(),
	}
	if b.api == nil {
		b.api = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.every <= 0 {
		b.every = time.Minute
	}
	if b.newTicker == nil {
		b.newTicker = time.NewTicker
	}
	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.done)
	tick := b.newTicker(b.every)
	defer tick.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-tick.C:
			_ = b.Flush()
		}
	}
}

// Close stops the flush loop and flushes what is left. It may be called
// more than once.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		<-b.done
	})
	return b.Flush()
}

// key resolves the series of an event; ok is false for metrics this backend
// does not export.
func key(name string, labels metrics.Labels) (seriesKey, bool) {
	f, ok := families[name]
	if !ok {
		return seriesKey{}, false
	}
	tags := make([]string, len(f.labels))
	for i, l := range f.labels {
		tags[i] = l + ":" + tagValue(labels[l])
	}
	return seriesKey{metric: f.name, tags: strings.Join(tags, ",")}, true
}

// tagValue lowercases v and replaces characters Datadog does not keep in tag
// values. Blank values become "unknown".
func tagValue(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', ',', '|':
			return '_'
		}
		return r
	}, v)
}

// IncCounter implements metrics.Backend. Non-positive deltas and unknown
// metrics are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k, ok := key(name, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.win.counts[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend. Negative samples and unknown
// metrics are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k, ok := key(name, labels)
	if !ok {
		return
	}
	b.mu.Lock()
	b.win.samples[k] = append(b.win.samples[k], value)
	b.mu.Unlock()
}

func (b *Backend) swap() window {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.win
	b.win = newWindow()
	return w
}

// Flush submits the current window. The window is dropped even when the
// submission fails; an empty window submits nothing.
func (b *Backend) Flush() error {
	w := b.swap()
	if w.empty() {
		return nil
	}
	body := datadogV2.MetricPayload{Series: b.series(w, b.now().Unix())}
	if _, _, err := b.api.SubmitMetrics(b.ctx, body, *datadogV2.NewSubmitMetricsOptionalParameters()); err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// series renders a window in a stable order: counters, then summaries.
func (b *Backend) series(w window, ts int64) []datadogV2.MetricSeries {
	out := make([]datadogV2.MetricSeries, 0, len(w.counts)+6*len(w.samples))
	for _, k := range sortedKeys(w.counts) {
		out = append(out, point(k.metric, datadogV2.METRICINTAKETYPE_COUNT, w.counts[k], b.tags(k), ts))
	}
	for _, k := range sortedKeys(w.samples) {
		tags := b.tags(k)
		for _, s := range summarize(w.samples[k]) {
			out = append(out, point(k.metric+"."+s.suffix, datadogV2.METRICINTAKETYPE_GAUGE, s.value, tags, ts))
		}
	}
	return out
}

func (b *Backend) tags(k seriesKey) []string {
	return append(append(make([]string, 0, len(b.base)+4), b.base...), k.tagList()...)
}

func point(metric string, typ datadogV2.MetricIntakeType, v float64, tags []string, ts int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(v)}},
		Tags:   tags,
	}
}

type stat struct {
	suffix string
	value  float64
}

// summarize reduces samples to nearest-rank percentiles, max and count. The
// input is not modified.
func summarize(samples []float64) []stat {
	if len(samples) == 0 {
		return nil
	}
	s := append([]float64(nil), samples...)
	sort.Float64s(s)
	return []stat{
		{"p50", nearestRank(s, 0.50)},
		{"p90", nearestRank(s, 0.90)},
		{"p95", nearestRank(s, 0.95)},
		{"p99", nearestRank(s, 0.99)},
		{"max", s[len(s)-1]},
		{"samples", float64(len(s))},
	}
}

// nearestRank reads percentile p of sorted s.
func nearestRank(s []float64, p float64) float64 {
	switch n := len(s); {
	case n == 0:
		return 0
	case p <= 0:
		return s[0]
	case p >= 1:
		return s[n-1]
	default:
		return s[min(int(p*float64(n-1)+0.5), n-1)]
	}
}

func sortedKeys[V any](m map[seriesKey]V) []seriesKey {
	keys := make([]seriesKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

// ParseTagsCSV splits "env:prod, team:finanzas" into tags, skipping blanks.
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}
