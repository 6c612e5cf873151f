package collector

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// ActivityCollector counts application events. All methods are safe on a
// nil receiver so services can run without metrics.
type ActivityCollector struct {
	HTTPRequestsTotal     *prometheus.CounterVec
	AuditEntriesTotal     *prometheus.CounterVec
	BlacklistRejectsTotal *prometheus.CounterVec
	BlacklistBansTotal    prometheus.Counter
	MailJobsTotal         *prometheus.CounterVec
}

func NewActivityCollector(r *prometheus.Registry) *ActivityCollector {
	m := &ActivityCollector{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvarchive",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		}, []string{"method", "code"}),
		AuditEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvarchive",
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total number of change log entries written",
		}, []string{"model", "operation"}),
		BlacklistRejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvarchive",
			Subsystem: "blacklist",
			Name:      "rejected_requests_total",
			Help:      "Total number of requests rejected by the IP blacklist",
		}, []string{"source"}),
		BlacklistBansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tvarchive",
			Subsystem: "blacklist",
			Name:      "login_bans_total",
			Help:      "Total number of addresses banned for failed logins",
		}),
		MailJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvarchive",
			Subsystem: "mail",
			Name:      "jobs_total",
			Help:      "Total number of mail jobs by kind and result",
		}, []string{"kind", "result"}),
	}

	r.MustRegister(m.HTTPRequestsTotal)
	r.MustRegister(m.AuditEntriesTotal)
	r.MustRegister(m.BlacklistRejectsTotal)
	r.MustRegister(m.BlacklistBansTotal)
	r.MustRegister(m.MailJobsTotal)
	return m
}

func (m *ActivityCollector) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.With(prometheus.Labels{
		"method": method,
		"code":   strconv.Itoa(status),
	}).Inc()
}

func (m *ActivityCollector) ObserveAuditEntry(model, operation string) {
	if m == nil {
		return
	}
	m.AuditEntriesTotal.With(prometheus.Labels{
		"model":     model,
		"operation": operation,
	}).Inc()
}

func (m *ActivityCollector) ObserveBlacklistReject(source string) {
	if m == nil {
		return
	}
	m.BlacklistRejectsTotal.With(prometheus.Labels{"source": source}).Inc()
}

func (m *ActivityCollector) ObserveLoginBan() {
	if m == nil {
		return
	}
	m.BlacklistBansTotal.Inc()
}

func (m *ActivityCollector) ObserveMailJob(kind, result string) {
	if m == nil {
		return
	}
	m.MailJobsTotal.With(prometheus.Labels{
		"kind":   kind,
		"result": result,
	}).Inc()
}
