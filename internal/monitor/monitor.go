// Package monitor aggregates in-process request, pipeline, and vendor-call
// metrics. The collector keeps lifetime totals alongside a trailing-hour
// window of per-minute buckets, and its snapshot feeds both the metrics API
// and threshold alerting.
package monitor

import (
	"fmt"
	"sync"
	"time"
)

const (
	// windowMinutes bounds the trailing window used for rates.
	windowMinutes = 60
	// sampleCap bounds the retained job-duration samples used for the
	// average processing time.
	sampleCap = 100
	// healthyErrorRate is the error-rate ceiling below which the system
	// reports healthy.
	healthyErrorRate = 0.05
)

// Collector accumulates metrics from the HTTP layer, the pipeline, and the
// vendor clients. All methods are safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	now       func() time.Time
	startedAt time.Time

	minutes [windowMinutes]minuteBucket

	samples     [sampleCap]float64
	sampleCount int64

	requestTotal  int64
	requestErrors int64
	statusClasses map[string]int64
	tiers         map[string]int64
	endpoints     map[string]*endpointStats

	jobsCompleted int64
	jobsFailed    int64

	stages  map[string]*stageStats
	vendors map[string]*vendorStats
}

type minuteBucket struct {
	epoch     int64
	requests  int64
	errors    int64
	completed int64
}

type endpointStats struct {
	requests     int64
	errors       int64
	totalSeconds float64
}

type stageStats struct {
	count        int64
	failures     int64
	totalSeconds float64
}

type vendorStats struct {
	calls        int64
	failures     int64
	totalSeconds float64
	lastError    string
	lastErrorAt  time.Time
}

// Option adjusts collector construction.
type Option func(*Collector)

// WithClock overrides the collector's time source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCollector returns an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		now:           time.Now,
		statusClasses: make(map[string]int64),
		tiers:         make(map[string]int64),
		endpoints:     make(map[string]*endpointStats),
		stages:        make(map[string]*stageStats),
		vendors:       make(map[string]*vendorStats),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.startedAt = c.now()
	return c
}

// RecordRequest counts one handled HTTP request. Statuses of 500 and above
// count toward the error rate; route should be the route template rather
// than the raw path so cardinality stays bounded.
func (c *Collector) RecordRequest(method, route string, status int, elapsed time.Duration, tier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestTotal++
	c.statusClasses[statusClass(status)]++
	if tier != "" {
		c.tiers[tier]++
	}

	key := method + " " + route
	ep := c.endpoints[key]
	if ep == nil {
		ep = &endpointStats{}
		c.endpoints[key] = ep
	}
	ep.requests++
	ep.totalSeconds += elapsed.Seconds()

	bucket := c.bucket(c.now())
	bucket.requests++
	if status >= 500 {
		c.requestErrors++
		ep.errors++
		bucket.errors++
	}
}

// RecordStage counts one pipeline stage execution.
func (c *Collector) RecordStage(stage string, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stages[stage]
	if st == nil {
		st = &stageStats{}
		c.stages[stage] = st
	}
	st.count++
	st.totalSeconds += elapsed.Seconds()
	if err != nil {
		st.failures++
	}
}

// RecordJob counts one completed pipeline run and retains its duration for
// the average processing time.
func (c *Collector) RecordJob(elapsed time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if success {
		c.jobsCompleted++
		c.bucket(c.now()).completed++
	} else {
		c.jobsFailed++
	}
	c.samples[c.sampleCount%sampleCap] = elapsed.Seconds()
	c.sampleCount++
}

// RecordVendorCall counts one external service call.
func (c *Collector) RecordVendorCall(service string, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.vendors[service]
	if v == nil {
		v = &vendorStats{}
		c.vendors[service] = v
	}
	v.calls++
	v.totalSeconds += elapsed.Seconds()
	if err != nil {
		v.failures++
		v.lastError = err.Error()
		v.lastErrorAt = c.now()
	}
}

// bucket returns the minute bucket for ts, resetting a stale slot when the
// ring has wrapped. Callers must hold the mutex.
func (c *Collector) bucket(ts time.Time) *minuteBucket {
	epoch := ts.Unix() / 60
	b := &c.minutes[epoch%windowMinutes]
	if b.epoch != epoch {
		*b = minuteBucket{epoch: epoch}
	}
	return b
}

// Snapshot returns the aggregated metrics view. Rates cover the trailing
// hour; totals cover the process lifetime.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	nowEpoch := now.Unix() / 60

	var windowRequests, windowErrors, minuteRequests, minuteCompleted int64
	for i := range c.minutes {
		b := c.minutes[i]
		if b.epoch == 0 || b.epoch <= nowEpoch-windowMinutes || b.epoch > nowEpoch {
			continue
		}
		windowRequests += b.requests
		windowErrors += b.errors
		if b.epoch == nowEpoch {
			minuteRequests = b.requests
			minuteCompleted = b.completed
		}
	}

	errorRate := 0.0
	if windowRequests > 0 {
		errorRate = float64(windowErrors) / float64(windowRequests)
	}

	status := "healthy"
	if errorRate >= healthyErrorRate {
		status = "degraded"
	}

	snap := Snapshot{
		Timestamp:     now.UTC(),
		UptimeSeconds: int64(now.Sub(c.startedAt).Seconds()),
		Health: Health{
			OverallStatus:        status,
			ErrorRate:            errorRate,
			AvgProcessingSeconds: c.averageProcessingLocked(),
		},
		Requests: RequestSummary{
			Total:         c.requestTotal,
			Errors:        c.requestErrors,
			PerMinute:     minuteRequests,
			ByStatusClass: copyCounts(c.statusClasses),
			ByTier:        copyCounts(c.tiers),
			Endpoints:     make(map[string]EndpointSummary, len(c.endpoints)),
		},
		Jobs: JobSummary{
			Completed:          c.jobsCompleted,
			Failed:             c.jobsFailed,
			CompletedPerMinute: minuteCompleted,
		},
		Stages:  make(map[string]StageSummary, len(c.stages)),
		Vendors: make(map[string]VendorSummary, len(c.vendors)),
	}

	for key, ep := range c.endpoints {
		snap.Requests.Endpoints[key] = EndpointSummary{
			Requests:   ep.requests,
			Errors:     ep.errors,
			AvgSeconds: safeAverage(ep.totalSeconds, ep.requests),
		}
	}
	for name, st := range c.stages {
		snap.Stages[name] = StageSummary{
			Count:      st.count,
			Failures:   st.failures,
			AvgSeconds: safeAverage(st.totalSeconds, st.count),
		}
	}
	for name, v := range c.vendors {
		summary := VendorSummary{
			Calls:      v.calls,
			Failures:   v.failures,
			AvgSeconds: safeAverage(v.totalSeconds, v.calls),
			LastError:  v.lastError,
		}
		if !v.lastErrorAt.IsZero() {
			at := v.lastErrorAt.UTC()
			summary.LastErrorAt = &at
		}
		snap.Vendors[name] = summary
	}
	return snap
}

// averageProcessingLocked averages the retained job durations. Callers must
// hold the mutex.
func (c *Collector) averageProcessingLocked() float64 {
	retained := c.sampleCount
	if retained > sampleCap {
		retained = sampleCap
	}
	if retained == 0 {
		return 0
	}
	var sum float64
	for i := int64(0); i < retained; i++ {
		sum += c.samples[i]
	}
	return sum / float64(retained)
}

func statusClass(status int) string {
	if status < 100 || status >= 600 {
		return "other"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func safeAverage(total float64, count int64) float64 {
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Snapshot is the aggregated metrics view served by the metrics API.
type Snapshot struct {
	Timestamp     time.Time                  `json:"timestamp"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Health        Health                     `json:"system_health"`
	Requests      RequestSummary             `json:"requests"`
	Jobs          JobSummary                 `json:"jobs"`
	Stages        map[string]StageSummary    `json:"stages,omitempty"`
	Vendors       map[string]VendorSummary   `json:"vendor_calls,omitempty"`
}

// Health summarizes overall system condition from the trailing-hour error
// rate and recent processing durations.
type Health struct {
	OverallStatus        string  `json:"overall_status"`
	ErrorRate            float64 `json:"error_rate"`
	AvgProcessingSeconds float64 `json:"avg_processing_time"`
}

// RequestSummary aggregates handled HTTP requests.
type RequestSummary struct {
	Total         int64                      `json:"total"`
	Errors        int64                      `json:"errors"`
	PerMinute     int64                      `json:"per_minute"`
	ByStatusClass map[string]int64           `json:"by_status_class,omitempty"`
	ByTier        map[string]int64           `json:"by_tier,omitempty"`
	Endpoints     map[string]EndpointSummary `json:"endpoints,omitempty"`
}

// JobSummary aggregates pipeline outcomes.
type JobSummary struct {
	Completed          int64 `json:"completed"`
	Failed             int64 `json:"failed"`
	CompletedPerMinute int64 `json:"completed_per_minute"`
}

// EndpointSummary aggregates requests for one method and route.
type EndpointSummary struct {
	Requests   int64   `json:"requests"`
	Errors     int64   `json:"errors"`
	AvgSeconds float64 `json:"avg_seconds"`
}

// StageSummary aggregates executions of one pipeline stage.
type StageSummary struct {
	Count      int64   `json:"count"`
	Failures   int64   `json:"failures"`
	AvgSeconds float64 `json:"avg_seconds"`
}

// VendorSummary aggregates calls to one external service.
type VendorSummary struct {
	Calls       int64      `json:"calls"`
	Failures    int64      `json:"failures"`
	AvgSeconds  float64    `json:"avg_seconds"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}
