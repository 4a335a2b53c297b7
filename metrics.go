package verdict

import (
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector accumulates per-rule and per-domain statistics from
// evaluation reports. It is consumed by, but never influences, the
// engine's control flow: Record cannot fail the pass, and Snapshot is
// safe to call concurrently with ongoing Record calls. The only lock is
// internal to the collector.
//
// Collector also implements prometheus.Collector, so a dashboard's
// scrape endpoint can register it directly.
type Collector struct {
	mu      sync.Mutex
	rules   map[string]*RuleStats
	domains map[string]*DomainStats
}

// RuleStats are the aggregate counters for one rule, keyed by
// "domain/id".
type RuleStats struct {
	Evaluations   uint64        `json:"evaluations"`
	Matches       uint64        `json:"matches"`
	Errors        uint64        `json:"errors"`
	TotalDuration time.Duration `json:"total_duration"`
}

// AvgDuration is the mean condition-evaluation time.
func (s RuleStats) AvgDuration() time.Duration {
	if s.Evaluations == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Evaluations)
}

// DomainStats are the aggregate counters for one domain.
type DomainStats struct {
	Passes        uint64        `json:"passes"`
	TotalDuration time.Duration `json:"total_duration"`
}

// AvgDuration is the mean pass time.
func (s DomainStats) AvgDuration() time.Duration {
	if s.Passes == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Passes)
}

// Snapshot is a point-in-time copy of the collector's counters.
type Snapshot struct {
	Rules   map[string]RuleStats   `json:"rules"`
	Domains map[string]DomainStats `json:"domains"`
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		rules:   map[string]*RuleStats{},
		domains: map[string]*DomainStats{},
	}
}

// Record folds one pass report into the counters. Skipped rules count
// neither as evaluations nor as errors.
func (c *Collector) Record(report *Report) {
	if report == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.domains[report.Domain]
	if !ok {
		d = &DomainStats{}
		c.domains[report.Domain] = d
	}
	d.Passes++
	d.TotalDuration += report.Duration

	for _, res := range report.Results {
		if res.Skipped {
			continue
		}
		key := ruleKey(report.Domain, res.RuleID)
		r, ok := c.rules[key]
		if !ok {
			r = &RuleStats{}
			c.rules[key] = r
		}
		r.Evaluations++
		r.TotalDuration += res.Duration
		if res.Matched {
			r.Matches++
		}
		if res.Err != nil {
			r.Errors++
		}
	}
}

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Rules:   make(map[string]RuleStats, len(c.rules)),
		Domains: make(map[string]DomainStats, len(c.domains)),
	}
	for k, v := range c.rules {
		snap.Rules[k] = *v
	}
	for k, v := range c.domains {
		snap.Domains[k] = *v
	}
	return snap
}

// Reset clears all counters.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	maps.DeleteFunc(c.rules, func(string, *RuleStats) bool { return true })
	maps.DeleteFunc(c.domains, func(string, *DomainStats) bool { return true })
}

var (
	descRuleEvaluations = prometheus.NewDesc(
		"verdict_rule_evaluations_total",
		"Number of times the rule's condition was evaluated.",
		[]string{"domain", "rule"}, nil)
	descRuleMatches = prometheus.NewDesc(
		"verdict_rule_matches_total",
		"Number of times the rule's condition was true.",
		[]string{"domain", "rule"}, nil)
	descRuleErrors = prometheus.NewDesc(
		"verdict_rule_errors_total",
		"Number of condition evaluation failures for the rule.",
		[]string{"domain", "rule"}, nil)
	descRuleDuration = prometheus.NewDesc(
		"verdict_rule_duration_seconds_total",
		"Cumulative condition evaluation time for the rule.",
		[]string{"domain", "rule"}, nil)
	descDomainPasses = prometheus.NewDesc(
		"verdict_domain_passes_total",
		"Number of evaluation passes over the domain.",
		[]string{"domain"}, nil)
	descDomainDuration = prometheus.NewDesc(
		"verdict_domain_pass_duration_seconds_total",
		"Cumulative pass time for the domain.",
		[]string{"domain"}, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRuleEvaluations
	ch <- descRuleMatches
	ch <- descRuleErrors
	ch <- descRuleDuration
	ch <- descDomainPasses
	ch <- descDomainDuration
}

// Collect implements prometheus.Collector, exporting the counters as
// constant metrics from the current snapshot.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.Snapshot()

	for key, stats := range snap.Rules {
		domain, rule, ok := splitRuleKey(key)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(descRuleEvaluations, prometheus.CounterValue, float64(stats.Evaluations), domain, rule)
		ch <- prometheus.MustNewConstMetric(descRuleMatches, prometheus.CounterValue, float64(stats.Matches), domain, rule)
		ch <- prometheus.MustNewConstMetric(descRuleErrors, prometheus.CounterValue, float64(stats.Errors), domain, rule)
		ch <- prometheus.MustNewConstMetric(descRuleDuration, prometheus.CounterValue, stats.TotalDuration.Seconds(), domain, rule)
	}
	for domain, stats := range snap.Domains {
		ch <- prometheus.MustNewConstMetric(descDomainPasses, prometheus.CounterValue, float64(stats.Passes), domain)
		ch <- prometheus.MustNewConstMetric(descDomainDuration, prometheus.CounterValue, stats.TotalDuration.Seconds(), domain)
	}
}

// splitRuleKey reverses ruleKey. Rule IDs may not contain '/', so the
// first separator is the domain boundary.
func splitRuleKey(key string) (domain, rule string, ok bool) {
	return strings.Cut(key, "/")
}
