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

// Package session ties one PPP session's IPCP negotiation, RADIUS
// authentication and address pool interaction together, the way the
// teacher's driver.NetworkDriver binds a node's device inventory,
// Kubernetes client and NRI plugin into a single owning struct with
// Start/Stop methods.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/accel-ppp/pppd-ng/internal/ipcp"
	"github.com/accel-ppp/pppd-ng/internal/radius"
	"k8s.io/klog/v2"
)

// IPDB is the subset of ipdb.Store a session needs; kept narrow here so
// this package does not import internal/ipdb just for a type name.
type IPDB interface {
	Get(sessionID string) (local, peer net.IP, ok bool)
	Put(sessionID string, local, peer net.IP)
}

// Programmer is the subset of kif.Kernel a session needs.
type Programmer interface {
	Program(unit int, local, peer net.IP) error
}

// RadiusReply is the subset of an Access-Accept a session acts on.
type RadiusReply struct {
	FramedIPAddress net.IP
	SessionTimeout  time.Duration
	FilterID        string
}

// Config configures one Session.
type Config struct {
	SessionID     string
	Unit          int
	Username      string
	NASIdentifier string
	NASIPAddress  string

	Transport    ipcp.Transport
	IPDB         IPDB
	Programmer   Programmer
	RadiusClient *radius.Client

	MaxConfigure int
	MaxFailure   int
}

// Session owns one PPP session's FSM, a RADIUS-learned address override
// and the accounting lifecycle.
type Session struct {
	cfg Config

	mu       sync.Mutex
	override *net.IP // Framed-IP-Address from RADIUS, if any

	ipcp *ipcp.Session
}

// New constructs a Session. The IPCP FSM is wired against an overriding
// IPDB view of cfg.IPDB, so a RADIUS-learned Framed-IP-Address (applied
// via applyRadiusReply before Start calls ipcp.Session.Open) takes
// precedence over whatever the pool would otherwise hand out.
func New(cfg Config) *Session {
	s := &Session{cfg: cfg}

	reg := ipcp.NewRegistry()
	reg.Register(&ipcp.AddrHandler{IPDB: s, Programmer: cfg.Programmer})
	identity := ipcp.Identity{SessionID: cfg.SessionID, Unit: cfg.Unit}
	s.ipcp = ipcp.NewSession(reg, cfg.Transport, cfg.MaxConfigure, cfg.MaxFailure, identity)
	return s
}

// Get implements ipcp.IPDB: an override set by applyRadiusReply is
// returned paired with whatever peer address the backing pool assigns;
// otherwise the call is passed straight through.
func (s *Session) Get(sessionID string) (net.IP, net.IP, bool) {
	local, peer, ok := s.cfg.IPDB.Get(sessionID)
	if !ok {
		return nil, nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.override != nil {
		return *s.override, peer, true
	}
	return local, peer, true
}

// Put implements ipcp.IPDB, delegating directly.
func (s *Session) Put(sessionID string, local, peer net.IP) {
	s.cfg.IPDB.Put(sessionID, local, peer)
}

// Start authenticates against RADIUS, applies any learned attributes,
// then opens IPCP negotiation. An Access-Reject or transport failure
// aborts before IPCP ever starts: negotiation does not begin until the
// peer is authenticated.
func (s *Session) Start(ctx context.Context) error {
	reply, err := s.authenticate(ctx)
	if err != nil {
		return fmt.Errorf("session %s: authentication failed: %w", s.cfg.SessionID, err)
	}
	s.applyRadiusReply(reply)

	if err := s.accounting(ctx, acctStatusStart); err != nil {
		klog.Warningf("session %s: accounting-start failed: %v", s.cfg.SessionID, err)
	}

	if err := s.ipcp.Open(); err != nil {
		return fmt.Errorf("session %s: ipcp open: %w", s.cfg.SessionID, err)
	}
	klog.V(2).Infof("session %s: IPCP negotiation started for %s", s.cfg.SessionID, s.cfg.Username)
	return nil
}

// Stop tears down the IPCP FSM (returning any assigned address pair to
// the IPDB) and sends a best-effort Accounting-Stop.
func (s *Session) Stop(ctx context.Context) {
	s.ipcp.Close()
	if err := s.accounting(ctx, acctStatusStop); err != nil {
		klog.Warningf("session %s: accounting-stop failed: %v", s.cfg.SessionID, err)
	}
}

// IPCP exposes the underlying FSM so the transport layer can deliver
// incoming Configure-* frames to it.
func (s *Session) IPCP() *ipcp.Session { return s.ipcp }

func (s *Session) applyRadiusReply(reply *RadiusReply) {
	if reply == nil || reply.FramedIPAddress == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ip := reply.FramedIPAddress
	s.override = &ip
	klog.V(2).Infof("session %s: RADIUS assigned Framed-IP-Address %s", s.cfg.SessionID, ip)
}

const (
	acctStatusStart = 1
	acctStatusStop  = 2
)

// authenticate sends an Access-Request and, on Access-Accept, extracts
// Framed-IP-Address, Filter-Id and Session-Timeout into a RadiusReply.
// Only Framed-IP-Address is acted on (it overrides the local address
// the IPDB pool would otherwise hand out); the other two are decoded
// but not used.
func (s *Session) authenticate(ctx context.Context) (*RadiusReply, error) {
	if s.cfg.RadiusClient == nil {
		return nil, nil
	}
	pkt := radius.NewPacket(s.cfg.RadiusClient.Dict, radius.CodeAccessRequest, nextID())
	if err := pkt.AddString("User-Name", s.cfg.Username); err != nil {
		return nil, err
	}
	if s.cfg.NASIdentifier != "" {
		_ = pkt.AddString("NAS-Identifier", s.cfg.NASIdentifier)
	}

	tx, err := s.cfg.RadiusClient.NewTransaction(pkt)
	if err != nil {
		return nil, err
	}
	defer tx.Close()

	reply, err := tx.Run(ctx)
	if err != nil {
		return nil, err
	}
	if reply.Code == radius.CodeAccessReject {
		return nil, fmt.Errorf("radius: access rejected for %s", s.cfg.Username)
	}

	out := &RadiusReply{}
	for _, a := range reply.Attrs {
		if a.Attr == nil {
			continue
		}
		switch a.Attr.Name {
		case "Framed-IP-Address":
			if len(a.Value) == 4 {
				out.FramedIPAddress = net.IP(append([]byte(nil), a.Value...))
			}
		case "Filter-Id":
			out.FilterID = string(a.Value)
		case "Session-Timeout":
			if len(a.Value) == 4 {
				secs := uint32(a.Value[0])<<24 | uint32(a.Value[1])<<16 | uint32(a.Value[2])<<8 | uint32(a.Value[3])
				out.SessionTimeout = time.Duration(secs) * time.Second
			}
		}
	}
	return out, nil
}

// accounting sends a best-effort Accounting-Request; RADIUS accounting
// replay tolerance beyond the client's own retransmission is out of scope.
func (s *Session) accounting(ctx context.Context, status uint32) error {
	if s.cfg.RadiusClient == nil {
		return nil
	}
	pkt := radius.NewPacket(s.cfg.RadiusClient.Dict, radius.CodeAccountingReq, nextID())
	if err := pkt.AddString("User-Name", s.cfg.Username); err != nil {
		return nil // dictionary without accounting attributes is a valid deployment
	}
	_ = pkt.AddInt("Acct-Status-Type", status)

	tx, err := s.cfg.RadiusClient.NewTransaction(pkt)
	if err != nil {
		return err
	}
	defer tx.Close()
	_, err = tx.Run(ctx)
	return err
}

var (
	idMu   sync.Mutex
	nextSeq byte
)

// nextID hands out RADIUS packet identifiers. A single counter shared
// across every session is adequate: RFC 2865 only requires uniqueness
// among a client's outstanding requests to a given server at once, and
// MaxTry-bounded transactions complete quickly relative to the 256-value
// wraparound.
func nextID() byte {
	idMu.Lock()
	defer idMu.Unlock()
	id := nextSeq
	nextSeq++
	return id
}
