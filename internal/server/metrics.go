package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/server/data"
	"github.com/keyfobhq/keyfob/metrics"
)

type metricValue struct {
	Value       float64
	LabelValues []string
}

// collector implements the prometheus.Collector interface
type collector struct {
	desc        *prometheus.Desc
	valueType   prometheus.ValueType
	collectFunc func() []metricValue
}

func newCollector(opts prometheus.Opts, valueType prometheus.ValueType, variableLabels []string, collectFunc func() []metricValue) *collector {
	fqname := prometheus.BuildFQName(opts.Namespace, opts.Subsystem, opts.Name)
	return &collector{
		desc:        prometheus.NewDesc(fqname, opts.Help, variableLabels, opts.ConstLabels),
		valueType:   valueType,
		collectFunc: collectFunc,
	}
}

// NewGaugeCollector creates a collector with type Gauge
func NewGaugeCollector(opts prometheus.Opts, variableLabels []string, collectFunc func() []metricValue) *collector {
	return newCollector(opts, prometheus.GaugeValue, variableLabels, collectFunc)
}

// Describe is implemented by DescribeByCollect
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements Collector. It creates a set of constant metrics with the
// values and labels as described by collectFunc
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, metricValue := range c.collectFunc() {
		ch <- prometheus.MustNewConstMetric(c.desc, c.valueType, metricValue.Value, metricValue.LabelValues...)
	}
}

func setupMetrics(db *data.DB) *prometheus.Registry {
	registry := metrics.NewRegistry()

	if rawDB, err := db.GormDB().DB(); err == nil {
		registry.MustRegister(collectors.NewDBStatsCollector(rawDB, db.DriverName()))
	}

	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A metric with a constant '1' value labeled by branch, version, commit, and date from which keyfob was built",
		ConstLabels: prometheus.Labels{
			"branch":  internal.Branch,
			"version": internal.FullVersion(),
			"commit":  internal.Commit,
			"date":    internal.Date,
		},
	}, func() float64 { return 1 }))

	registry.MustRegister(NewGaugeCollector(prometheus.Opts{
		Namespace: "keyfob",
		Name:      "active_sessions",
		Help:      "The number of sessions that are neither revoked nor expired",
	}, []string{}, func() []metricValue {
		return countGauge(db, "active_sessions",
			`SELECT COUNT(*) FROM sessions
			 WHERE revoked_at IS NULL
			 AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`)
	}))

	registry.MustRegister(NewGaugeCollector(prometheus.Opts{
		Namespace: "keyfob",
		Name:      "active_access_keys",
		Help:      "The number of access keys that are neither revoked nor expired",
	}, []string{}, func() []metricValue {
		return countGauge(db, "active_access_keys",
			`SELECT COUNT(*) FROM access_keys
			 WHERE revoked_at IS NULL
			 AND (expires_at IS NULL OR expires_at > CURRENT_TIMESTAMP)`)
	}))

	return registry
}

func countGauge(db *data.DB, name string, query string) []metricValue {
	var count float64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logging.Warnf("%s metric: %v", name, err)
		return []metricValue{}
	}
	return []metricValue{{Value: count}}
}
