package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	guardActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custodia",
			Name:      "guard_actions_total",
			Help:      "Records changed or notified by guard jobs.",
		},
		[]string{"job", "action"},
	)
	guardRecordErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custodia",
			Name:      "guard_record_errors_total",
			Help:      "Records a guard job skipped because of an error.",
		},
		[]string{"job"},
	)
	dispatchMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custodia",
			Name:      "dispatch_messages_total",
			Help:      "Message jobs finished by the mailer dispatch, by outcome.",
		},
		[]string{"template", "status"},
	)
	dispatchRequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "custodia",
			Name:      "dispatch_requeued_total",
			Help:      "Message jobs put back in the queue after being stuck in processing.",
		},
	)
	dispatchSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "custodia",
			Name:      "dispatch_send_duration_seconds",
			Help:      "Time spent in the email provider per message.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"template"},
	)
)
