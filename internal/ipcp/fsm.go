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
	"fmt"

	"k8s.io/klog/v2"
)

// Phase is one of the six states a session's IPCP FSM can be in.
type Phase int

const (
	Initial Phase = iota
	ReqSent
	AckRcvd
	AckSent
	Opened
	Closing
)

func (p Phase) String() string {
	switch p {
	case Initial:
		return "Initial"
	case ReqSent:
		return "ReqSent"
	case AckRcvd:
		return "AckRcvd"
	case AckSent:
		return "AckSent"
	case Opened:
		return "Opened"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Transport sends already-framed Configure-* messages to the peer. LCP
// framing, CRC and the tunnel transport itself are outside this
// package's scope; a session is handed a Transport bound to its own
// link.
type Transport interface {
	SendConfReq(id byte, payload []byte) error
	SendConfAck(id byte, payload []byte) error
	SendConfNak(id byte, payload []byte) error
	SendConfRej(id byte, payload []byte) error
}

const maxOptionBuf = 256

// Session is one PPP session's IPCP option-negotiation engine: the
// phase, counters, identifier discipline and registered option
// descriptors.
type Session struct {
	registry *Registry
	tr       Transport

	maxConfigure int
	maxFailure   int

	Phase Phase

	configureCount int
	failureCount   int

	nextID    byte
	pendingID byte
	haveReq   bool // an outstanding Configure-Request of ours is unanswered

	identity any
	entries  []*entry
}

// NewSession allocates handler-local state for every registered option
// and returns a fresh session in Initial. maxConfigure bounds
// consecutive Configure-Requests (typical default 10); maxFailure
// bounds consecutive Naks before a reply downgrades to Reject (typical
// default 5). identity is opaque session-identifying context (e.g. an
// Identity value) handlers may retrieve in Init via Session.Identity.
func NewSession(reg *Registry, tr Transport, maxConfigure, maxFailure int, identity any) *Session {
	s := &Session{registry: reg, tr: tr, maxConfigure: maxConfigure, maxFailure: maxFailure, Phase: Initial, identity: identity}
	for _, h := range reg.handlers {
		st := h.Init(s)
		s.entries = append(s.entries, &entry{handler: h, state: st})
	}
	return s
}

// Open starts negotiation: assembles and sends our Configure-Request,
// entering ReqSent. Called once LCP is up.
func (s *Session) Open() error {
	if s.Phase != Initial {
		return nil
	}
	return s.sendConfReq()
}

// Close tears the session down: runs every handler's Free in reverse
// registration order (mirroring the order teardown happens in the
// source) and enters the terminal Closing state.
func (s *Session) Close() {
	if s.Phase == Closing && s.entries == nil {
		return
	}
	s.Phase = Closing
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		e.handler.Free(s, e.state)
	}
	// Free runs once per session, even when the FSM had already declined
	// the layer into Closing before Close was called.
	s.entries = nil
}

// Identity returns the opaque identity value passed to NewSession.
func (s *Session) Identity() any { return s.identity }

// entryFor returns the registry entry backing option id, if registered
// for this session.
func (s *Session) entryFor(id byte) (*entry, bool) {
	for _, e := range s.entries {
		if e.handler.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// sendConfReq serializes every registered option's desired TLV in
// registration order and sends it under a freshly assigned identifier.
// A handler's SendConfReq returning an error (e.g. IPDB exhaustion)
// aborts the whole request and declines the layer.
func (s *Session) sendConfReq() error {
	if s.configureCount >= s.maxConfigure {
		s.Phase = Closing
		return fmt.Errorf("ipcp: max-configure (%d) exceeded, declining layer", s.maxConfigure)
	}

	var payload []byte
	for _, e := range s.entries {
		buf := make([]byte, maxOptionBuf)
		n, err := e.handler.SendConfReq(s, e.state, buf)
		if err != nil {
			klog.Warningf("ipcp: option %d: send-conf-req failed: %v", e.handler.ID(), err)
			s.Phase = Closing
			return fmt.Errorf("ipcp: declining layer: %w", err)
		}
		payload = append(payload, buf[:n]...)
	}

	id := s.nextID
	s.nextID++
	s.pendingID = id
	s.haveReq = true

	if err := s.tr.SendConfReq(id, payload); err != nil {
		return fmt.Errorf("ipcp: send Configure-Request: %w", err)
	}
	s.configureCount++

	switch s.Phase {
	case Initial, ReqSent:
		s.Phase = ReqSent
	case AckRcvd:
		// the fresh request is unacknowledged again, so re-enter ReqSent
		// per the Nak/Rej row ("adjust options, resend Req").
		s.Phase = ReqSent
	case Opened:
		s.Phase = ReqSent
	}
	klog.V(2).Infof("ipcp: sent Configure-Request id=%d, phase=%s", id, s.Phase)
	return nil
}

// walkOptions splits a Configure-Request payload into its TLVs,
// matching each to a registered handler. It returns the options that
// were rejected (unknown or handler-rejected, verbatim bytes), naked
// (handler-produced Nak bytes) and acked.
func (s *Session) walkOptions(payload []byte) (rejected, naked, acked []byte, err error) {
	i := 0
	for i < len(payload) {
		if i+2 > len(payload) {
			return nil, nil, nil, fmt.Errorf("ipcp: truncated option header")
		}
		optID := payload[i]
		optLen := int(payload[i+1])
		if optLen < 2 || i+optLen > len(payload) {
			return nil, nil, nil, fmt.Errorf("ipcp: option %d has invalid length %d", optID, optLen)
		}
		raw := payload[i : i+optLen]
		value := raw[2:]

		e, ok := s.entryFor(optID)
		if !ok {
			rejected = append(rejected, raw...)
			i += optLen
			continue
		}

		switch e.handler.RecvConfReq(s, e.state, value) {
		case Ack:
			acked = append(acked, raw...)
		case Nak:
			buf := make([]byte, maxOptionBuf)
			n, err := e.handler.SendConfNak(s, e.state, buf)
			if err != nil {
				rejected = append(rejected, raw...)
			} else {
				naked = append(naked, buf[:n]...)
			}
		case Reject:
			rejected = append(rejected, raw...)
		}
		i += optLen
	}
	return rejected, naked, acked, nil
}

// RecvConfReq handles a peer Configure-Request. The aggregate reply is
// Reject if any option was rejected (reply carries only the rejected
// TLVs verbatim), else Nak if any option was naked (reply carries
// handler-produced naks), else Ack (reply echoes the received options).
func (s *Session) RecvConfReq(id byte, payload []byte) error {
	if s.Phase == Closing {
		return nil
	}
	if s.Phase == Initial {
		if err := s.sendConfReq(); err != nil {
			return err
		}
	}

	rejected, naked, acked, err := s.walkOptions(payload)
	if err != nil {
		return err
	}

	switch {
	case len(rejected) > 0:
		if err := s.tr.SendConfRej(id, rejected); err != nil {
			return fmt.Errorf("ipcp: send Configure-Reject: %w", err)
		}
		return nil
	case len(naked) > 0:
		s.failureCount++
		if s.failureCount > s.maxFailure {
			// force convergence: downgrade to reject instead of nak'ing forever.
			if err := s.tr.SendConfRej(id, naked); err != nil {
				return fmt.Errorf("ipcp: send Configure-Reject: %w", err)
			}
			return nil
		}
		if err := s.tr.SendConfNak(id, naked); err != nil {
			return fmt.Errorf("ipcp: send Configure-Nak: %w", err)
		}
		if s.Phase == Opened {
			s.Phase = ReqSent
		}
		return nil
	default:
		s.failureCount = 0
		if err := s.tr.SendConfAck(id, acked); err != nil {
			return fmt.Errorf("ipcp: send Configure-Ack: %w", err)
		}
		switch s.Phase {
		case ReqSent:
			s.Phase = AckSent
		case AckRcvd:
			s.enterOpened()
		case AckSent:
			// resend reply; phase unchanged.
		case Opened:
			s.Phase = AckSent // renegotiation
		}
		return nil
	}
}

// enterOpened transitions into Opened and fires every handler's Up side
// effect exactly once, regardless of which path completed convergence:
// our Ack of the peer's request (AckRcvd -> Opened) or the peer's Ack
// of our own outstanding request (AckSent -> Opened).
func (s *Session) enterOpened() {
	s.Phase = Opened
	for _, e := range s.entries {
		e.handler.Up(s, e.state)
	}
	klog.V(2).Infof("ipcp: session opened")
}

// RecvConfAck handles a Configure-Ack of our outstanding request. A
// mismatched id is a stale reply and is silently dropped.
func (s *Session) RecvConfAck(id byte) {
	if s.Phase == Closing || !s.haveReq || id != s.pendingID {
		klog.V(3).Infof("ipcp: dropping stale Configure-Ack id=%d (pending=%d)", id, s.pendingID)
		return
	}
	s.haveReq = false
	s.configureCount = 0

	switch s.Phase {
	case ReqSent:
		s.Phase = AckRcvd
	case AckSent:
		s.enterOpened()
	case AckRcvd, Opened:
		// ignore repeats
	}
}

// RecvConfNak and RecvConfRej both require us to adjust our options and
// resend a Configure-Request; a mismatched id is dropped as stale.
func (s *Session) RecvConfNak(id byte, payload []byte) error { return s.recvNakOrRej(id, payload) }
func (s *Session) RecvConfRej(id byte, payload []byte) error { return s.recvNakOrRej(id, payload) }

func (s *Session) recvNakOrRej(id byte, payload []byte) error {
	if s.Phase == Closing || !s.haveReq || id != s.pendingID {
		klog.V(3).Infof("ipcp: dropping stale Configure-Nak/Rej id=%d (pending=%d)", id, s.pendingID)
		return nil
	}
	s.haveReq = false
	if s.Phase == Opened {
		s.Phase = ReqSent
	}
	return s.sendConfReq()
}
