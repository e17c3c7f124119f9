// Package metrics holds Prometheus instruments that are used across Beacon.
// All collectors are registered with the global registry, so importing this
// package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FormGateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_form_gate_total",
			Help: "Form gate decisions by form and outcome.",
		}, []string{"form_id", "outcome"})

	SettingsReloadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_settings_reload_total",
			Help: "Cumulative number of admin settings reloads from the store.",
		})

	SettingsReloadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_settings_reload_errors_total",
			Help: "Cumulative number of failed admin settings reloads.",
		})

	UserSettingsCached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "beacon_user_settings_cached",
			Help: "Number of per-user setting snapshots currently held in memory.",
		})

	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"})

	EmailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_email_total",
			Help: "Outgoing email by template and result.",
		}, []string{"email_id", "result"})
)

func init() {
	prometheus.MustRegister(
		FormGateTotal,
		SettingsReloadTotal,
		SettingsReloadErrorsTotal,
		UserSettingsCached,
		LoginAttemptsTotal,
		EmailTotal,
	)
}
