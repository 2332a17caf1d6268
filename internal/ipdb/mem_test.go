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

package ipdb

import (
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemStoreLeaseAndReturn(t *testing.T) {
	m, err := NewMemStore("192.168.50.0/30")
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}

	// /30 gives base..base+3; peer reserved at offset 1, one leasable
	// address at offset 2.
	local, peer, ok := m.Get("sess-a")
	if !ok {
		t.Fatalf("Get: pool reported exhausted immediately")
	}
	if !peer.Equal(net.ParseIP("192.168.50.1")) {
		t.Fatalf("peer = %s, want 192.168.50.1", peer)
	}
	if !local.Equal(net.ParseIP("192.168.50.2")) {
		t.Fatalf("local = %s, want 192.168.50.2", local)
	}

	if _, _, ok := m.Get("sess-b"); ok {
		t.Fatalf("Get: expected pool exhaustion for a second session")
	}

	m.Put("sess-a", local, peer)

	local2, peer2, ok := m.Get("sess-b")
	if !ok {
		t.Fatalf("Get after Put: expected a free address")
	}
	if !local2.Equal(local) || !peer2.Equal(peer) {
		t.Fatalf("reused pair = %s/%s, want %s/%s", local2, peer2, local, peer)
	}
}

func TestMemStoreGetIsIdempotentPerSession(t *testing.T) {
	m, err := NewMemStore("10.1.1.0/29")
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}

	local1, peer1, ok := m.Get("sess-x")
	if !ok {
		t.Fatalf("Get: pool exhausted")
	}
	local2, peer2, ok := m.Get("sess-x")
	if !ok {
		t.Fatalf("repeat Get: pool exhausted")
	}
	if !local1.Equal(local2) || !peer1.Equal(peer2) {
		t.Fatalf("repeat Get for same session returned a different pair: %s/%s vs %s/%s", local1, peer1, local2, peer2)
	}
}

func TestMemStoreRejectsSmallOrInvalidCIDR(t *testing.T) {
	if _, err := NewMemStore("10.0.0.0/31"); err == nil {
		t.Fatalf("expected error for /31 pool")
	}
	if _, err := NewMemStore("not-a-cidr"); err == nil {
		t.Fatalf("expected error for malformed CIDR")
	}
	if _, err := NewMemStore("::1/64"); err == nil {
		t.Fatalf("expected error for non-IPv4 CIDR")
	}
}

func TestMemStoreLeaseOrderMatchesPoolOrder(t *testing.T) {
	m, err := NewMemStore("172.16.0.0/29")
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}

	var got []string
	for _, sess := range []string{"sess-1", "sess-2", "sess-3"} {
		local, _, ok := m.Get(sess)
		if !ok {
			t.Fatalf("Get(%s): pool reported exhausted", sess)
		}
		got = append(got, local.String())
	}

	want := []string{"172.16.0.2", "172.16.0.3", "172.16.0.4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("lease order mismatch (-want +got):\n%s", diff)
	}
}

func TestMemStorePutUnknownSessionIgnored(t *testing.T) {
	m, err := NewMemStore("10.2.2.0/29")
	if err != nil {
		t.Fatalf("NewMemStore: %v", err)
	}
	before := len(m.free)
	m.Put("never-leased", net.ParseIP("10.2.2.3"), net.ParseIP("10.2.2.1"))
	if len(m.free) != before {
		t.Fatalf("free list changed after Put for unknown session: %d -> %d", before, len(m.free))
	}
}
