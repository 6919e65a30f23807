package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sqlassist_report_runs_total",
	Help: "Scheduled report runs by outcome.",
}, []string{"outcome"})
