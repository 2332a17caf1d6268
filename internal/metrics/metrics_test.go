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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RadiusRequestsTotal.WithLabelValues("AccessRequest", "accept").Inc()
	m.SessionsOpenedTotal.Inc()
	m.IPDBFreeAddresses.Set(12)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	if _, ok := byName["pppd_radius_requests_total"]; !ok {
		t.Errorf("pppd_radius_requests_total not registered")
	}
	if _, ok := byName["pppd_sessions_opened_total"]; !ok {
		t.Errorf("pppd_sessions_opened_total not registered")
	}
	if _, ok := byName["pppd_ipdb_free_addresses"]; !ok {
		t.Errorf("pppd_ipdb_free_addresses not registered")
	}

	got := byName["pppd_sessions_opened_total"].GetMetric()[0].GetCounter().GetValue()
	if got != 1 {
		t.Errorf("pppd_sessions_opened_total = %v, want 1", got)
	}
}
