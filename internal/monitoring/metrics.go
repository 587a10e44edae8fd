package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RewardsPaid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_rewards_paid_total",
			Help: "Referral reward ledger entries written, by level",
		},
		[]string{"level"},
	)

	RewardAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_reward_amount_total",
			Help: "Sum of referral reward amounts written, in the smallest currency unit",
		},
	)

	RewardFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_reward_failures_total",
			Help: "Referral reward writes that failed, by level",
		},
		[]string{"level"},
	)

	CampaignTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_transitions_total",
			Help: "Campaign budget transitions, by transition and result",
		},
		[]string{"transition", "result"},
	)

	CommissionSettingsFallback = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "commission_settings_fallback_total",
			Help: "Reward distributions that fell back to the default commission settings",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
