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

package ipcp

import (
	"net"
	"testing"
)

// recordingTransport captures every frame sent to the peer so tests can
// both assert on it and loop it into the peer-side FSM under test.
type recordingTransport struct {
	reqs [][2]interface{} // id, payload
	acks [][2]interface{}
	naks [][2]interface{}
	rejs [][2]interface{}
}

func (t *recordingTransport) SendConfReq(id byte, payload []byte) error {
	t.reqs = append(t.reqs, [2]interface{}{id, append([]byte(nil), payload...)})
	return nil
}
func (t *recordingTransport) SendConfAck(id byte, payload []byte) error {
	t.acks = append(t.acks, [2]interface{}{id, append([]byte(nil), payload...)})
	return nil
}
func (t *recordingTransport) SendConfNak(id byte, payload []byte) error {
	t.naks = append(t.naks, [2]interface{}{id, append([]byte(nil), payload...)})
	return nil
}
func (t *recordingTransport) SendConfRej(id byte, payload []byte) error {
	t.rejs = append(t.rejs, [2]interface{}{id, append([]byte(nil), payload...)})
	return nil
}

type fakeIPDB struct {
	local, peer net.IP
	ok          bool
	puts        []struct{ local, peer net.IP }
}

func (d *fakeIPDB) Get(sessionID string) (net.IP, net.IP, bool) {
	return d.local, d.peer, d.ok
}
func (d *fakeIPDB) Put(sessionID string, local, peer net.IP) {
	d.puts = append(d.puts, struct{ local, peer net.IP }{local, peer})
}

type fakeProgrammer struct {
	calls []struct {
		unit        int
		local, peer net.IP
	}
}

func (p *fakeProgrammer) Program(unit int, local, peer net.IP) error {
	p.calls = append(p.calls, struct {
		unit        int
		local, peer net.IP
	}{unit, local, peer})
	return nil
}

func newTestSession(t *testing.T, ipdb IPDB, prog Programmer) (*Session, *recordingTransport) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(&AddrHandler{IPDB: ipdb, Programmer: prog})
	tr := &recordingTransport{}
	s := NewSession(reg, tr, 10, 5, Identity{SessionID: "sess-1", Unit: 0})
	return s, tr
}

func addrTLV(ip net.IP) []byte {
	v4 := ip.To4()
	return []byte{CIAddr, 6, v4[0], v4[1], v4[2], v4[3]}
}

// E4: IPDB returns (10.0.0.1, 10.0.0.2); we send our CR with 10.0.0.1;
// peer CRs with 10.0.0.2; we Ack; peer Acks; FSM -> Opened; interface
// programmed with local=10.0.0.1, peer=10.0.0.2.
func TestHappyPathConverges(t *testing.T) {
	ipdb := &fakeIPDB{local: net.ParseIP("10.0.0.1"), peer: net.ParseIP("10.0.0.2"), ok: true}
	prog := &fakeProgrammer{}
	s, tr := newTestSession(t, ipdb, prog)

	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.Phase != ReqSent {
		t.Fatalf("phase after Open = %v, want ReqSent", s.Phase)
	}
	if len(tr.reqs) != 1 {
		t.Fatalf("expected 1 outbound Configure-Request, got %d", len(tr.reqs))
	}
	wantReq := addrTLV(net.ParseIP("10.0.0.1"))
	if got := tr.reqs[0][1].([]byte); string(got) != string(wantReq) {
		t.Fatalf("our Configure-Request = % x, want % x", got, wantReq)
	}

	// Peer sends its own Configure-Request proposing 10.0.0.2.
	if err := s.RecvConfReq(7, addrTLV(net.ParseIP("10.0.0.2"))); err != nil {
		t.Fatalf("RecvConfReq: %v", err)
	}
	if s.Phase != AckSent {
		t.Fatalf("phase after peer req = %v, want AckSent", s.Phase)
	}
	if len(tr.acks) != 1 {
		t.Fatalf("expected 1 Configure-Ack sent, got %d", len(tr.acks))
	}
	if len(prog.calls) != 0 {
		t.Fatalf("interface programmed before Opened: %d calls", len(prog.calls))
	}

	// Peer acks our Configure-Request.
	ourID := tr.reqs[0][0].(byte)
	s.RecvConfAck(ourID)

	if s.Phase != Opened {
		t.Fatalf("phase = %v, want Opened", s.Phase)
	}
	if len(prog.calls) != 1 {
		t.Fatalf("expected exactly 1 interface programming call, got %d", len(prog.calls))
	}
	call := prog.calls[0]
	if !call.local.Equal(net.ParseIP("10.0.0.1")) || !call.peer.Equal(net.ParseIP("10.0.0.2")) {
		t.Fatalf("programmed local=%s peer=%s, want 10.0.0.1/10.0.0.2", call.local, call.peer)
	}
}

// Property 5 + 6 / E5: peer proposes a mismatched address while our
// peer is already set; the Nak must carry our stored peer address, and
// once the peer re-proposes that value we converge with naks bounded by
// max-failure.
func TestNakLoopConvergesWithDesiredPeer(t *testing.T) {
	ipdb := &fakeIPDB{local: net.ParseIP("10.0.0.1"), peer: net.ParseIP("10.0.0.2"), ok: true}
	prog := &fakeProgrammer{}
	s, tr := newTestSession(t, ipdb, prog)

	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Peer proposes the wrong address first.
	if err := s.RecvConfReq(1, addrTLV(net.ParseIP("10.0.0.9"))); err != nil {
		t.Fatalf("RecvConfReq: %v", err)
	}
	if len(tr.naks) != 1 {
		t.Fatalf("expected 1 Configure-Nak, got %d", len(tr.naks))
	}
	wantNak := addrTLV(net.ParseIP("10.0.0.2"))
	if got := tr.naks[0][1].([]byte); string(got) != string(wantNak) {
		t.Fatalf("nak payload = % x, want our peer address % x", got, wantNak)
	}

	// Peer re-proposes our desired address; now we converge.
	if err := s.RecvConfReq(2, addrTLV(net.ParseIP("10.0.0.2"))); err != nil {
		t.Fatalf("RecvConfReq: %v", err)
	}
	if len(tr.acks) != 1 {
		t.Fatalf("expected 1 Configure-Ack after re-proposal, got %d", len(tr.acks))
	}

	ourID := tr.reqs[0][0].(byte)
	s.RecvConfAck(ourID)
	if s.Phase != Opened {
		t.Fatalf("phase = %v, want Opened", s.Phase)
	}
	if len(tr.naks) > 5 {
		t.Fatalf("nak count %d exceeds max-failure bound", len(tr.naks))
	}
}

// Property 6: if peer is unset, we adopt the peer's proposal and Ack.
// This models a local address assigned statically (so our own
// Configure-Request never needed to consult the IPDB) while the peer
// address is learned purely from the peer's own proposal.
func TestAdoptsPeerAddressWhenUnset(t *testing.T) {
	ipdb := &fakeIPDB{ok: false}
	prog := &fakeProgrammer{}
	s, tr := newTestSession(t, ipdb, prog)

	as := s.entries[0].state.(*addrState)
	as.local = net.ParseIP("192.168.1.1")
	as.peer = nil

	if err := s.RecvConfReq(5, addrTLV(net.ParseIP("192.168.1.50"))); err != nil {
		t.Fatalf("RecvConfReq: %v", err)
	}
	if len(tr.acks) != 1 {
		t.Fatalf("expected Ack adopting unset peer, got acks=%d naks=%d rejs=%d", len(tr.acks), len(tr.naks), len(tr.rejs))
	}
	if as.peer == nil || !as.peer.Equal(net.ParseIP("192.168.1.50")) {
		t.Fatalf("peer = %v, want adopted 192.168.1.50", as.peer)
	}
}

// E6: IPDB returns none; the FSM declines the layer; no interface
// programming occurs; no ipdb.Put on teardown.
func TestIPDBExhaustionDeclinesLayer(t *testing.T) {
	ipdb := &fakeIPDB{ok: false}
	prog := &fakeProgrammer{}
	s, _ := newTestSession(t, ipdb, prog)

	if err := s.Open(); err == nil {
		t.Fatalf("Open: expected error on IPDB exhaustion")
	}
	if s.Phase != Closing {
		t.Fatalf("phase = %v, want Closing", s.Phase)
	}
	if len(prog.calls) != 0 {
		t.Fatalf("interface programmed despite exhaustion")
	}

	s.Close()
	if len(ipdb.puts) != 0 {
		t.Fatalf("ipdb.Put called despite no successful Get")
	}
}

// Unknown options are rejected, never crash or abort the session.
func TestUnknownOptionRejected(t *testing.T) {
	ipdb := &fakeIPDB{local: net.ParseIP("10.0.0.1"), peer: net.ParseIP("10.0.0.2"), ok: true}
	prog := &fakeProgrammer{}
	s, tr := newTestSession(t, ipdb, prog)

	unknown := []byte{99, 4, 0xaa, 0xbb}
	if err := s.RecvConfReq(1, unknown); err != nil {
		t.Fatalf("RecvConfReq: %v", err)
	}
	if len(tr.rejs) != 1 {
		t.Fatalf("expected Configure-Reject for unknown option, got %d", len(tr.rejs))
	}
	if got := tr.rejs[0][1].([]byte); string(got) != string(unknown) {
		t.Fatalf("reject payload = % x, want verbatim % x", got, unknown)
	}
}

// IPDB balance: Free returns the pair iff both were assigned from the
// session's own Get.
func TestIPDBBalanceOnTeardown(t *testing.T) {
	ipdb := &fakeIPDB{local: net.ParseIP("10.0.0.1"), peer: net.ParseIP("10.0.0.2"), ok: true}
	prog := &fakeProgrammer{}
	s, _ := newTestSession(t, ipdb, prog)

	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	if len(ipdb.puts) != 1 {
		t.Fatalf("expected exactly 1 ipdb.Put, got %d", len(ipdb.puts))
	}
	put := ipdb.puts[0]
	if !put.local.Equal(net.ParseIP("10.0.0.1")) || !put.peer.Equal(net.ParseIP("10.0.0.2")) {
		t.Fatalf("put pair = %s/%s, want 10.0.0.1/10.0.0.2", put.local, put.peer)
	}
}

// Stale identifiers (mismatched id) on Ack/Nak/Rej are silently dropped.
func TestStaleAckIsDropped(t *testing.T) {
	ipdb := &fakeIPDB{local: net.ParseIP("10.0.0.1"), peer: net.ParseIP("10.0.0.2"), ok: true}
	prog := &fakeProgrammer{}
	s, _ := newTestSession(t, ipdb, prog)

	if err := s.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.RecvConfAck(255) // does not match the id we actually sent
	if s.Phase != ReqSent {
		t.Fatalf("phase = %v after stale ack, want unchanged ReqSent", s.Phase)
	}
}
