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

package radius

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/accel-ppp/pppd-ng/internal/raddict"
	"k8s.io/klog/v2"
)

// ErrTimeout is returned when a transaction exhausts its retry budget
// without an accepted reply.
var ErrTimeout = errors.New("radius: no reply received, retries exhausted")

// Client sends Access-Request/Accounting-Request transactions against
// one configured server.
type Client struct {
	Dict    *raddict.Dictionary
	Server  string // host:port
	Secret  string
	MaxTry  int
	Timeout time.Duration
}

// Transaction owns the socket and retransmit loop for one in-flight
// request. It is allocated per request, torn down on completion or
// cancellation: a cancelled transaction closes its socket immediately so
// any late datagram on the wire is simply dropped by the kernel.
type Transaction struct {
	client *Client
	conn   *net.UDPConn
	raddr  *net.UDPAddr
	pkt    *Packet
	raw    []byte
}

// NewTransaction builds pkt's wire buffer and binds an ephemeral UDP
// socket toward the client's configured server. The returned
// Transaction owns that socket until Close is called.
func (c *Client) NewTransaction(pkt *Packet) (*Transaction, error) {
	raw, err := pkt.Build(c.Secret)
	if err != nil {
		return nil, fmt.Errorf("radius: build request: %w", err)
	}

	raddr, err := net.ResolveUDPAddr("udp", c.Server)
	if err != nil {
		return nil, fmt.Errorf("radius: resolve server %s: %w", c.Server, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("radius: open socket: %w", err)
	}

	return &Transaction{client: c, conn: conn, raddr: raddr, pkt: pkt, raw: raw}, nil
}

// Close releases the transaction's socket. Any reply arriving after
// Close is simply undeliverable; there is nothing left to dispatch it to.
func (t *Transaction) Close() error {
	return t.conn.Close()
}

// Run sends the request up to MaxTry times in total, each time the
// identical datagram (same id, same Authenticator), spaced by Timeout, and returns
// the first accepted reply. A reply is accepted iff its source matches
// the server, its id matches the request, its length is in [20,
// len(datagram)], and its Response Authenticator verifies against the
// shared secret. Stale or forged datagrams are dropped silently and the
// wait continues against the same deadline budget.
func (t *Transaction) Run(ctx context.Context) (*Packet, error) {
	maxTry := t.client.MaxTry
	if maxTry <= 0 {
		maxTry = 1
	}

	buf := make([]byte, MaxPacketLen)
	for attempt := 0; attempt < maxTry; attempt++ {
		if _, err := t.conn.WriteToUDP(t.raw, t.raddr); err != nil {
			return nil, fmt.Errorf("radius: send attempt %d: %w", attempt+1, err)
		}
		klog.V(3).Infof("radius: sent %s request id=%d to %s (attempt %d/%d)", codeName(t.pkt.Code), t.pkt.ID, t.raddr, attempt+1, maxTry)

		deadline := time.Now().Add(t.client.Timeout)
		for {
			if err := t.conn.SetReadDeadline(deadline); err != nil {
				return nil, fmt.Errorf("radius: set read deadline: %w", err)
			}
			n, from, err := t.conn.ReadFromUDP(buf)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					break // fall through to next attempt
				}
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("radius: receive: %w", err)
			}

			reply, ok := t.accept(buf[:n], from)
			if !ok {
				continue // stale/forged datagram, keep waiting on the same deadline
			}
			return reply, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, ErrTimeout
}

// accept validates a candidate reply datagram and decodes it on success.
func (t *Transaction) accept(raw []byte, from *net.UDPAddr) (*Packet, bool) {
	if !from.IP.Equal(t.raddr.IP) {
		return nil, false
	}
	if len(raw) < headerLen || len(raw) > MaxPacketLen {
		return nil, false
	}
	if raw[1] != t.pkt.ID {
		return nil, false
	}
	length := int(raw[2])<<8 | int(raw[3])
	if length < headerLen || length > len(raw) {
		return nil, false
	}

	var replyAuth [16]byte
	copy(replyAuth[:], raw[4:20])
	want := ComputeReplyAuthenticator(raw[:length], t.pkt.Authenticator, t.client.Secret)
	if replyAuth != want {
		klog.V(2).Infof("radius: dropping reply id=%d: authenticator mismatch", raw[1])
		return nil, false
	}

	pkt, err := Decode(t.client.Dict, raw[:length])
	if err != nil {
		klog.V(2).Infof("radius: dropping malformed reply id=%d: %v", raw[1], err)
		return nil, false
	}
	return pkt, true
}

func codeName(c Code) string {
	switch c {
	case CodeAccessRequest:
		return "Access-Request"
	case CodeAccessAccept:
		return "Access-Accept"
	case CodeAccessReject:
		return "Access-Reject"
	case CodeAccessChallenge:
		return "Access-Challenge"
	case CodeAccountingReq:
		return "Accounting-Request"
	case CodeAccountingResp:
		return "Accounting-Response"
	default:
		return fmt.Sprintf("Code-%d", c)
	}
}
