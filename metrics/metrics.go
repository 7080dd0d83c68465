// Package metrics exposes prometheus collectors for the credential
// lifecycle, and the handler that serves them.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var VerifyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keyfob",
	Name:      "verify_total",
	Help:      "A count of credential verification attempts by kind and result.",
}, []string{"kind", "result"})

var SweepDeletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keyfob",
	Name:      "sweep_deleted_total",
	Help:      "A count of credential rows deleted by the expiry sweeper.",
}, []string{"kind"})

var SessionsTrimmedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "keyfob",
	Name:      "sessions_trimmed_total",
	Help:      "A count of sessions revoked to enforce the per-owner cap.",
})

// NewRegistry creates a prometheus registry with the credential lifecycle
// collectors registered, plus the standard process and go collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(VerifyTotal)
	registry.MustRegister(SweepDeletedTotal)
	registry.MustRegister(SessionsTrimmedTotal)
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// NewHandler creates a new gin.Engine, and adds a 'GET /metrics' handler to
// it. The handler serves prometheus metrics from promRegistry.
func NewHandler(promRegistry *prometheus.Registry) *gin.Engine {
	engine := gin.New()
	engine.GET("/metrics", func(c *gin.Context) {
		handler := promhttp.InstrumentMetricHandler(
			promRegistry,
			promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		handler.ServeHTTP(c.Writer, c.Request)
	})
	return engine
}
