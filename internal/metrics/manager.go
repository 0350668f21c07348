// Package metrics keeps in-process counters, outcomes and timings for the
// bot's degraded paths (search failures, parse fallbacks, image outcomes).
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MetricsManager is the global metrics manager
type MetricsManager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	outcomes    map[string]*OutcomeMetric
}

var (
	instance *MetricsManager
	once     sync.Once
)

// GetInstance returns the singleton metrics manager
func GetInstance() *MetricsManager {
	once.Do(func() {
		instance = newManager()
	})
	return instance
}

// newManager returns an empty manager. Tests use it to avoid sharing the singleton.
func newManager() *MetricsManager {
	return &MetricsManager{
		timings:     make(map[string]*TimingMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
		outcomes:    make(map[string]*OutcomeMetric),
	}
}

// buildPath creates a normalized path from topic and function
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, function)
}

// RecordDuration records a duration directly
func (m *MetricsManager) RecordDuration(topic, function string, duration time.Duration) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{Min: duration}
		m.timings[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Count++
	metric.Total += duration
	metric.Last = duration
	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}
}

// AddCounter adds to a counter
func (m *MetricsManager) AddCounter(topic, function string, delta int64) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Value += delta
	metric.Last = time.Now()
}

// IncrementCounter increments a counter
func (m *MetricsManager) IncrementCounter(topic, function string) {
	m.AddCounter(topic, function, 1)
}

func (m *MetricsManager) successFailFor(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{FailureReasons: make(map[string]int64)}
		m.successFail[path] = metric
	}
	return metric
}

// RecordSuccess records a successful operation
func (m *MetricsManager) RecordSuccess(topic, function string) {
	metric := m.successFailFor(buildPath(topic, function))
	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Success++
}

// RecordFailure records a failed operation
func (m *MetricsManager) RecordFailure(topic, function, reason string) {
	metric := m.successFailFor(buildPath(topic, function))
	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Failures++
	if reason != "" {
		metric.FailureReasons[reason]++
	}
}

// RecordOutcome records a specific outcome
func (m *MetricsManager) RecordOutcome(topic, function, outcome string) {
	path := buildPath(topic, function)

	m.mu.Lock()
	metric, exists := m.outcomes[path]
	if !exists {
		metric = &OutcomeMetric{Outcomes: make(map[string]int64)}
		m.outcomes[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Outcomes[outcome]++
	metric.Total++
	metric.LastOutcome = outcome
}

// Counter returns the current value of a counter (0 if never recorded).
func (m *MetricsManager) Counter(topic, function string) int64 {
	m.mu.RLock()
	metric, exists := m.counters[buildPath(topic, function)]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	metric.mu.Lock()
	defer metric.mu.Unlock()
	return metric.Value
}

// Outcome returns how many times outcome was recorded under topic/function.
func (m *MetricsManager) Outcome(topic, function, outcome string) int64 {
	m.mu.RLock()
	metric, exists := m.outcomes[buildPath(topic, function)]
	m.mu.RUnlock()
	if !exists {
		return 0
	}
	metric.mu.Lock()
	defer metric.mu.Unlock()
	return metric.Outcomes[outcome]
}

// GetSnapshot returns all metrics sorted by path.
func (m *MetricsManager) GetSnapshot() []MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []MetricSnapshot
	for path, t := range m.timings {
		t.mu.Lock()
		snap := TimingSnapshot{
			Count:  t.Count,
			MinMs:  ms(t.Min),
			MaxMs:  ms(t.Max),
			LastMs: ms(t.Last),
		}
		if t.Count > 0 {
			snap.AvgMs = ms(t.Total) / float64(t.Count)
		}
		t.mu.Unlock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeTiming, Data: snap})
	}
	for path, c := range m.counters {
		c.mu.Lock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeCounter, Data: CounterSnapshot{Value: c.Value}})
		c.mu.Unlock()
	}
	for path, sf := range m.successFail {
		sf.mu.Lock()
		snap := SuccessFailSnapshot{Success: sf.Success, Failures: sf.Failures}
		if total := sf.Success + sf.Failures; total > 0 {
			snap.SuccessRate = float64(sf.Success) / float64(total)
		}
		if len(sf.FailureReasons) > 0 {
			snap.FailureReasons = make(map[string]int64, len(sf.FailureReasons))
			for k, v := range sf.FailureReasons {
				snap.FailureReasons[k] = v
			}
		}
		sf.mu.Unlock()
		out = append(out, MetricSnapshot{Path: path, Type: TypeSuccessFail, Data: snap})
	}
	for path, o := range m.outcomes {
		o.mu.Lock()
		counts := make(map[string]int64, len(o.Outcomes))
		for k, v := range o.Outcomes {
			counts[k] = v
		}
		out = append(out, MetricSnapshot{
			Path: path,
			Type: TypeOutcome,
			Data: OutcomeSnapshot{Outcomes: counts, Total: o.Total, LastOutcome: o.LastOutcome},
		})
		o.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
