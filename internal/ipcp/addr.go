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
	"encoding/binary"
	"fmt"
	"net"

	"k8s.io/klog/v2"
)

// IPDB is the minimal pool the address option consults: a get/put pair
// over (local, peer) address assignments for one session. The backing
// store is out of scope here (see internal/ipdb).
type IPDB interface {
	Get(sessionID string) (local, peer net.IP, ok bool)
	Put(sessionID string, local, peer net.IP)
}

// Programmer performs the ordered, fatal-logged-but-not-fatal-to-the-FSM
// kernel interface programming that follows convergence. The backing
// implementation is out of scope here (see internal/kif).
type Programmer interface {
	Program(unit int, local, peer net.IP) error
}

// addrState is the address option's handler-local state: both addresses
// start unset; local is filled in from the IPDB on our first send-req,
// peer is filled in either from IPDB too or adopted from the peer's own
// Configure-Request.
type addrState struct {
	sessionID string
	unit      int
	local     net.IP
	peer      net.IP
	assigned  bool // true once both local and peer came from this session's IPDB draw
}

// AddrHandler is the IPCP address-option (CI_ADDR) handler.
type AddrHandler struct {
	IPDB       IPDB
	Programmer Programmer
}

var _ Handler = (*AddrHandler)(nil)

// Identity is the per-session context (used as the IPDB key and the
// kernel unit index) threaded through NewSession so the address handler
// can pick it up in Init; the Handler interface itself carries no
// session-identity parameter beyond *Session.
type Identity struct {
	SessionID string
	Unit      int
}

func (h *AddrHandler) ID() byte { return CIAddr }

func (h *AddrHandler) Init(s *Session) State {
	id, _ := s.Identity().(Identity)
	return &addrState{sessionID: id.SessionID, unit: id.Unit}
}

// Free returns the (local, peer) pair to the IPDB iff both were
// assigned from it during this session.
func (h *AddrHandler) Free(s *Session, st State) {
	as := st.(*addrState)
	if as.assigned && as.local != nil && as.peer != nil {
		h.IPDB.Put(as.sessionID, as.local, as.peer)
	}
}

// SendConfReq draws a (local, peer) pair from the IPDB the first time
// it is called for this session, then serializes CI_ADDR|6|local.
func (h *AddrHandler) SendConfReq(s *Session, st State, buf []byte) (int, error) {
	as := st.(*addrState)
	if as.local == nil {
		local, peer, ok := h.IPDB.Get(as.sessionID)
		if !ok {
			klog.Warningf("ipcp: no free IP address for session %s", as.sessionID)
			return 0, fmt.Errorf("ipcp: address pool exhausted")
		}
		as.local = local
		as.peer = peer
		as.assigned = true
	}
	return encodeAddrOption(buf, as.local), nil
}

// SendConfNak serializes our desired peer address. This must never be
// reachable before peer has been populated; the FSM only calls
// SendConfNak in response to a RecvConfReq verdict of Nak, which itself
// requires peer != nil, so the invariant holds structurally.
func (h *AddrHandler) SendConfNak(s *Session, st State, buf []byte) (int, error) {
	as := st.(*addrState)
	if as.peer == nil {
		return 0, fmt.Errorf("ipcp: send-conf-nak called before peer address is known")
	}
	return encodeAddrOption(buf, as.peer), nil
}

// RecvConfReq implements the Receive-Request policy: equal to our
// stored peer -> Ack; peer unset -> adopt and Ack; else Nak.
func (h *AddrHandler) RecvConfReq(s *Session, st State, value []byte) Verdict {
	as := st.(*addrState)
	if len(value) != 4 {
		return Reject
	}
	proposed := net.IP(append([]byte(nil), value...))

	switch {
	case as.peer != nil && proposed.Equal(as.peer):
		// already agreed
	case as.peer == nil:
		as.peer = proposed
	default:
		return Nak
	}
	return Ack
}

// Up programs the kernel interface once negotiation converges. This
// fires exactly once per session regardless of which side's Ack
// completes convergence, so programming cannot be tied to a particular
// RecvConfReq call.
func (h *AddrHandler) Up(s *Session, st State) {
	as := st.(*addrState)
	if err := h.program(as); err != nil {
		klog.Errorf("ipcp: interface programming for session %s failed: %v", as.sessionID, err)
	}
}

func (h *AddrHandler) program(as *addrState) error {
	if as.local == nil || as.peer == nil {
		return fmt.Errorf("ipcp: cannot program interface before both addresses are known")
	}
	return h.Programmer.Program(as.unit, as.local, as.peer)
}

func (h *AddrHandler) Print(st State) string {
	as := st.(*addrState)
	return fmt.Sprintf("<addr local=%s peer=%s>", ipString(as.local), ipString(as.peer))
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "unset"
	}
	return ip.String()
}

func encodeAddrOption(buf []byte, ip net.IP) int {
	buf[0] = CIAddr
	buf[1] = 6
	v4 := ip.To4()
	binary.BigEndian.PutUint32(buf[2:6], binary.BigEndian.Uint32(v4))
	return 6
}
