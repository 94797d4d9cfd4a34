// utils/metrics.go
package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every collector exposed on /metrics.
var Registry = prometheus.NewRegistry()

var (
	ReqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_wars_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habit_wars_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerTransactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_wars_ledger_transactions_total",
			Help: "Ledger transactions written, by kind",
		},
		[]string{"kind"},
	)

	WarsDeclared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "habit_wars_wars_declared_total",
		Help: "Wars declared",
	})

	WarsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_wars_wars_settled_total",
			Help: "Wars leaving the pending/accepted states, by final status/result",
		},
		[]string{"outcome"},
	)

	SabotagePenalties = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "habit_wars_sabotage_penalties_total",
		Help: "Sabotage penalty events fired",
	})

	MilestonesAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_wars_milestones_awarded_total",
			Help: "Streak milestones awarded, by length",
		},
		[]string{"length"},
	)

	StreaksBroken = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "habit_wars_streaks_broken_total",
		Help: "User streaks reset by the daily check",
	})

	MiniWarsEnded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "habit_wars_mini_wars_ended_total",
		Help: "Mini wars completed",
	})

	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_wars_job_runs_total",
			Help: "Settlement job runs, by job and status",
		},
		[]string{"job", "status"},
	)

	NotificationsRelayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habit_wars_notifications_relayed_total",
			Help: "Outbox notifications handed to the sink, by status",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ReqCount, ReqDuration,
		LedgerTransactions, WarsDeclared, WarsSettled, SabotagePenalties,
		MilestonesAwarded, StreaksBroken, MiniWarsEnded, JobRuns, NotificationsRelayed,
	)
}
