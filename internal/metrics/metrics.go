/*
Copyright 2025 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics declares the daemon's Prometheus instrumentation,
// exposed by cmd/pppd-ng on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter, gauge and histogram the daemon
// records across RADIUS, IPCP and the address pool.
type Metrics struct {
	RadiusRequestsTotal   *prometheus.CounterVec
	RadiusRetriesTotal    *prometheus.CounterVec
	RadiusRequestDuration *prometheus.HistogramVec

	IPCPTransitionsTotal *prometheus.CounterVec
	SessionsOpenedTotal  prometheus.Counter
	SessionsClosedTotal  prometheus.Counter

	IPDBLeasedTotal      prometheus.Counter
	IPDBExhaustionsTotal prometheus.Counter
	IPDBFreeAddresses    prometheus.Gauge
}

// New constructs and registers every metric with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RadiusRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pppd_radius_requests_total",
			Help: "Total RADIUS requests sent, by code and outcome.",
		}, []string{"code", "outcome"}),
		RadiusRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pppd_radius_retries_total",
			Help: "Total RADIUS request retransmissions, by code.",
		}, []string{"code"}),
		RadiusRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pppd_radius_request_duration_seconds",
			Help:    "RADIUS transaction latency from first send to accepted reply or timeout.",
			Buckets: prometheus.DefBuckets,
		}, []string{"code"}),
		IPCPTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pppd_ipcp_transitions_total",
			Help: "Total IPCP FSM phase transitions, by destination phase.",
		}, []string{"phase"}),
		SessionsOpenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pppd_sessions_opened_total",
			Help: "Total sessions that reached the Opened phase.",
		}),
		SessionsClosedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pppd_sessions_closed_total",
			Help: "Total sessions torn down.",
		}),
		IPDBLeasedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pppd_ipdb_leased_total",
			Help: "Total address pairs successfully leased from the IPDB.",
		}),
		IPDBExhaustionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pppd_ipdb_exhaustions_total",
			Help: "Total address requests that found the pool empty.",
		}),
		IPDBFreeAddresses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pppd_ipdb_free_addresses",
			Help: "Current number of unleased addresses in the pool.",
		}),
	}

	reg.MustRegister(
		m.RadiusRequestsTotal,
		m.RadiusRetriesTotal,
		m.RadiusRequestDuration,
		m.IPCPTransitionsTotal,
		m.SessionsOpenedTotal,
		m.SessionsClosedTotal,
		m.IPDBLeasedTotal,
		m.IPDBExhaustionsTotal,
		m.IPDBFreeAddresses,
	)
	return m
}
