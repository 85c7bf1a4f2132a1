// Package metrics defines and registers all custom Prometheus metrics for the
// clinic backend. It is the single source of truth for metric names, labels,
// and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinic"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// SignInsTotal counts sign-in attempts.
// Label:
//   - result: "success", "invalid_credentials", "email_not_confirmed", "inactive" or "error"
var SignInsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sign_ins_total",
		Help:      "Total number of sign-in attempts, by result.",
	},
	[]string{"result"},
)

// SessionStreamsActive tracks open /auth/events websocket streams.
var SessionStreamsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "session_streams_active",
		Help:      "Current number of clients streaming auth change notifications.",
	},
)

// ── Profile metrics ───────────────────────────────────────────────────────────

// ProfilesProvisionedTotal counts profiles written with default values.
// Label:
//   - source: "self" for the signed-in user's own record, "recovery" for admin recovery
var ProfilesProvisionedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "profiles_provisioned_total",
		Help:      "Total number of profiles provisioned with defaults.",
	},
	[]string{"source"},
)

// AdminActionsTotal counts user-management operations.
// Labels:
//   - action: "change_role", "set_active", "reset_password", "recover"
//   - result: "ok" or the failure reason (e.g. "last_active_admin")
var AdminActionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admin_actions_total",
		Help:      "Total number of administrative user operations, by action and result.",
	},
	[]string{"action", "result"},
)

// ── Reminder metrics ──────────────────────────────────────────────────────────

// RemindersDispatchedTotal counts delivered and failed reminders.
// Labels:
//   - channel: "sms" or "telegram"
//   - status: "sent" or "failed"
var RemindersDispatchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_dispatched_total",
		Help:      "Total number of reminders handled, by channel and outcome.",
	},
	[]string{"channel", "status"},
)

// RemindersQueueDepth tracks the number of reminders waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var RemindersQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reminders_queue_depth",
		Help:      "Current number of reminders pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ReminderRunDuration measures one dispatch run from query to last delivery.
// Label:
//   - trigger: "schedule" or "manual"
var ReminderRunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reminder_run_duration_seconds",
		Help:      "Duration of a reminder dispatch run.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"trigger"},
)
