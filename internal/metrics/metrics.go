// Package metrics holds the prometheus collectors exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LoginAttemptsTotal counts password logins by result ("success", "failure").
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aidledger_login_attempts_total",
		Help: "Total password login attempts",
	},
	[]string{"result"},
)

// AuthRefreshFailuresTotal counts session refreshes that cleared the session.
var AuthRefreshFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "aidledger_auth_refresh_failures_total",
		Help: "Total session refreshes that failed and cleared auth state",
	},
)

// GuardRedirectsTotal counts redirects issued by route guards.
var GuardRedirectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aidledger_guard_redirects_total",
		Help: "Total redirects issued by route guards",
	},
	[]string{"reason"},
)

// MigrationsAppliedTotal counts schema migration steps by direction.
var MigrationsAppliedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aidledger_migrations_applied_total",
		Help: "Total schema migration steps applied",
	},
	[]string{"direction"},
)

// MigrationFailuresTotal counts aborted migration runs by direction.
var MigrationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aidledger_migration_failures_total",
		Help: "Total aborted schema migration runs",
	},
	[]string{"direction"},
)

// RecordWritesTotal counts record writes by collection and action.
var RecordWritesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aidledger_record_writes_total",
		Help: "Total record writes",
	},
	[]string{"collection", "action"},
)

// VersionChecksTotal counts version checks by outcome ("ok", "degraded", "error").
var VersionChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aidledger_version_checks_total",
		Help: "Total version checks",
	},
	[]string{"outcome"},
)
