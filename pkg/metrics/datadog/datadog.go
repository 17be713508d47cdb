// Package datadog submits lineqa metrics to Datadog.
//
// Counters and histogram samples are buffered in memory and submitted on a
// ticker, plus once more on Close. Flush swaps the buffers under the lock
// and submits outside it, so recording never waits on the network.
//
// Histograms are published as p50/p90/p99/max/samples gauges per flush window.
// If the process is killed before Close, the last window is lost.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"gonum.org/v1/gonum/stat"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
)

const defaultFlushEvery = 60 * time.Second

// Options controls the backend.
type Options struct {
	// JobName becomes tag "job:<name>". Defaults to "lineqa".
	JobName string
	// Tags are extra tags added to every series.
	Tags []string
	// FlushEvery is the submission interval. Defaults to 60s.
	FlushEvery time.Duration

	// test seams
	now       func() time.Time
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

type counter struct {
	name   string
	labels metrics.Labels
	value  float64
}

type histogram struct {
	name    string
	labels  metrics.Labels
	samples []float64
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api      metricsSubmitter
	ctx      context.Context
	baseTags []string
	now      func() time.Time

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	closeOnce  sync.Once

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend starts a backend with a background flush loop. Credentials and
// site come from the standard DD_API_KEY / DD_SITE environment variables.
func NewBackend(parent context.Context, opts Options) *Backend {
	job := opts.JobName
	if job == "" {
		job = "lineqa"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = defaultFlushEvery
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}
	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		baseTags:   baseTags,
		now:        now,
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
	}
	go b.loop()
	return b
}

func (b *Backend) loop() {
	defer close(b.doneCh)
	t := time.NewTicker(b.flushEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// IncCounter implements metrics.Backend. Non-positive deltas are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := metrics.Key(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.counters[k]
	if !ok {
		c = &counter{name: name, labels: labels}
		b.counters[k] = c
	}
	c.value += delta
}

// ObserveHistogram implements metrics.Backend. Negative samples are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	k := metrics.Key(name, labels)

	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.histograms[k]
	if !ok {
		h = &histogram{name: name, labels: labels}
		b.histograms[k] = h
	}
	h.samples = append(h.samples, value)
}

func (b *Backend) snapshotAndReset() (map[string]*counter, map[string]*histogram) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, h := b.counters, b.histograms
	b.counters = make(map[string]*counter)
	b.histograms = make(map[string]*histogram)
	return c, h
}

// Flush submits the buffered window. Buffers are reset even when the
// submission fails.
func (b *Backend) Flush() error {
	counters, histograms := b.snapshotAndReset()
	if len(counters) == 0 && len(histograms) == 0 {
		return nil
	}
	series := b.buildSeries(counters, histograms, b.now().Unix())
	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series}, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// Close stops the flush loop and submits the final window. Safe to call more than once.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
		err = b.Flush()
	})
	return err
}

func (b *Backend) buildSeries(counters map[string]*counter, histograms map[string]*histogram, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(counters)+5*len(histograms))

	for _, k := range sortedKeys(counters) {
		c := counters[k]
		series = append(series, point(c.name, datadogV2.METRICINTAKETYPE_COUNT, c.value, b.tags(c.labels), nowUnix))
	}

	for _, k := range sortedKeys(histograms) {
		h := histograms[k]
		if len(h.samples) == 0 {
			continue
		}
		s := append([]float64(nil), h.samples...)
		sort.Float64s(s)
		tags := b.tags(h.labels)
		for _, p := range []struct {
			suffix string
			q      float64
		}{{".p50", 0.50}, {".p90", 0.90}, {".p99", 0.99}} {
			series = append(series, point(h.name+p.suffix, datadogV2.METRICINTAKETYPE_GAUGE,
				stat.Quantile(p.q, stat.Empirical, s, nil), tags, nowUnix))
		}
		series = append(series,
			point(h.name+".max", datadogV2.METRICINTAKETYPE_GAUGE, s[len(s)-1], tags, nowUnix),
			point(h.name+".samples", datadogV2.METRICINTAKETYPE_GAUGE, float64(len(s)), tags, nowUnix),
		)
	}
	return series
}

func (b *Backend) tags(labels metrics.Labels) []string {
	out := make([]string, 0, len(b.baseTags)+len(labels))
	out = append(out, b.baseTags...)
	return append(out, labels.Tags()...)
}

func point(metric string, kind datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   kind.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseTagsCSV parses "env:prod,service:lineqa" into tags.
func ParseTagsCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ metrics.Backend = (*Backend)(nil)
