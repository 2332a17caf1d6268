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

// Package ipcp implements the IP Control Protocol option-negotiation
// engine: a generic Configure-Request/Ack/Nak/Reject finite state
// machine driving a small, closed set of option handlers, of which the
// IPv4 address option is the canonical one.
package ipcp

// Verdict is an option handler's answer to a single proposed TLV.
type Verdict int

const (
	Ack Verdict = iota
	Nak
	Reject
)

// CIAddr is the IPCP option id for the IPv4 address option (RFC 1332).
const CIAddr = 3

// Handler is the narrow capability set every registered IPCP option
// must implement. It replaces the source's function-pointer table
// (struct ipcp_option_handler_t) with a Go interface; handler-local
// state is returned by Init and owned by the registry entry for the
// life of the session.
type Handler interface {
	// ID returns the option's numeric id (used to route peer TLVs and
	// to order our own Configure-Request).
	ID() byte

	// Init allocates handler-local state for a fresh session.
	Init(s *Session) State

	// Free releases handler-local state, running any "give back" side
	// effects (e.g. returning an address pair to the IPDB).
	Free(s *Session, st State)

	// SendConfReq serializes our desired option TLV into buf, returning
	// the number of bytes written. An error here (e.g. address pool
	// exhaustion) is surfaced to the FSM as a layer-up failure.
	SendConfReq(s *Session, st State, buf []byte) (int, error)

	// SendConfNak serializes what we want the peer to use instead of
	// its last proposal.
	SendConfNak(s *Session, st State, buf []byte) (int, error)

	// RecvConfReq evaluates the peer's proposed TLV value (already
	// stripped of its 2-byte header) and returns ACK, NAK or REJECT.
	RecvConfReq(s *Session, st State, value []byte) Verdict

	// Up fires once convergence completes and the FSM transitions into
	// Opened, regardless of which path got there (our Ack of the peer's
	// request, or the peer's Ack of ours). This is where a handler runs
	// side effects that must happen exactly once per session, such as
	// kernel interface programming.
	Up(s *Session, st State)

	// Print renders the option for diagnostics.
	Print(st State) string
}

// State is handler-local, opaque to the FSM.
type State interface{}

// entry binds one registered Handler to its per-session State.
type entry struct {
	handler Handler
	state   State
}

// Registry holds the process-wide, startup-populated set of option
// handlers. Registration order determines on-wire TLV order.
type Registry struct {
	handlers []Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds h to the registry. Call during startup only; the
// registry is read-only once sessions are created against it.
func (r *Registry) Register(h Handler) {
	r.handlers = append(r.handlers, h)
}

func (r *Registry) byID(id byte) (Handler, bool) {
	for _, h := range r.handlers {
		if h.ID() == id {
			return h, true
		}
	}
	return nil, false
}
