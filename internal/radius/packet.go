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

// Package radius builds, encodes, sends and decodes RADIUS packets
// against a dictionary-typed attribute set.
package radius

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/accel-ppp/pppd-ng/internal/raddict"
)

// Code is a RADIUS packet code.
type Code byte

const (
	CodeAccessRequest   Code = 1
	CodeAccessAccept    Code = 2
	CodeAccessReject    Code = 3
	CodeAccountingReq   Code = 4
	CodeAccountingResp  Code = 5
	CodeAccessChallenge Code = 11
)

// MaxPacketLen is the maximum RADIUS wire length (RFC 2865 §3).
const MaxPacketLen = 4096

const headerLen = 20 // code(1) + id(1) + length(2) + authenticator(16)

// AttrInstance is one encoded attribute on the wire, bound to the
// dictionary descriptor that typed it.
type AttrInstance struct {
	Attr      *raddict.Attr
	Value     []byte
	Printable bool
}

// Packet is an in-memory RADIUS packet being built or having been
// decoded from the wire.
type Packet struct {
	Code          Code
	ID            byte
	Authenticator [16]byte
	Attrs         []AttrInstance

	dict *raddict.Dictionary
}

// NewPacket starts a packet of the given code against dict, which types
// every attribute added via AddInt/AddString/AddOpaque.
func NewPacket(dict *raddict.Dictionary, code Code, id byte) *Packet {
	return &Packet{Code: code, ID: id, dict: dict}
}

// AddInt adds an attribute whose dictionary type must be integer.
func (p *Packet) AddInt(name string, v uint32) error {
	attr, ok := p.dict.FindAttrByName(name)
	if !ok {
		return fmt.Errorf("radius: unknown attribute %q", name)
	}
	if attr.Type != raddict.TypeInteger {
		return fmt.Errorf("radius: attribute %q is not of type integer", name)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	p.Attrs = append(p.Attrs, AttrInstance{Attr: attr, Value: buf[:], Printable: false})
	return nil
}

// AddString adds a printable text attribute, copied verbatim without a
// trailing NUL.
func (p *Packet) AddString(name string, v string) error {
	attr, ok := p.dict.FindAttrByName(name)
	if !ok {
		return fmt.Errorf("radius: unknown attribute %q", name)
	}
	value := []byte(v)
	if len(value) > 253 {
		return fmt.Errorf("radius: attribute %q value too long (%d bytes)", name, len(value))
	}
	p.Attrs = append(p.Attrs, AttrInstance{Attr: attr, Value: value, Printable: true})
	return nil
}

// AddOpaque adds a binary-blob attribute (hashed password, CHAP
// response, ...), tracked by explicit length rather than printable text.
func (p *Packet) AddOpaque(name string, v []byte) error {
	attr, ok := p.dict.FindAttrByName(name)
	if !ok {
		return fmt.Errorf("radius: unknown attribute %q", name)
	}
	if len(v) > 253 {
		return fmt.Errorf("radius: attribute %q value too long (%d bytes)", name, len(v))
	}
	p.Attrs = append(p.Attrs, AttrInstance{Attr: attr, Value: v, Printable: false})
	return nil
}

// GetInt returns the decoded uint32 value of the first instance of name.
func (p *Packet) GetInt(name string) (uint32, bool) {
	for _, a := range p.Attrs {
		if a.Attr != nil && a.Attr.Name == name && len(a.Value) == 4 {
			return binary.BigEndian.Uint32(a.Value), true
		}
	}
	return 0, false
}

// GetString returns the decoded string value of the first instance of name.
func (p *Packet) GetString(name string) (string, bool) {
	for _, a := range p.Attrs {
		if a.Attr != nil && a.Attr.Name == name {
			return string(a.Value), true
		}
	}
	return "", false
}

// attrBytes serializes the TLV attribute section in insertion order.
func (p *Packet) attrBytes() ([]byte, error) {
	var buf []byte
	for _, a := range p.Attrs {
		if len(a.Value)+2 > 255 {
			return nil, fmt.Errorf("radius: attribute %q too long to encode", a.Attr.Name)
		}
		buf = append(buf, byte(a.Attr.ID), byte(len(a.Value)+2))
		buf = append(buf, a.Value...)
	}
	return buf, nil
}

// Build serializes the packet. For an Access-Request, Build fills
// Authenticator with 16 fresh random Request Authenticator bytes; for
// every other code, Build computes the Authenticator as
// MD5(code|id|length|zero16|attrs|secret) per RFC 2865 §3.
func (p *Packet) Build(secret string) ([]byte, error) {
	attrBuf, err := p.attrBytes()
	if err != nil {
		return nil, err
	}
	total := headerLen + len(attrBuf)
	if total > MaxPacketLen {
		return nil, fmt.Errorf("radius: packet too large: %d bytes", total)
	}

	buf := make([]byte, headerLen, total)
	buf[0] = byte(p.Code)
	buf[1] = p.ID
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))

	if p.Code == CodeAccessRequest {
		if _, err := rand.Read(p.Authenticator[:]); err != nil {
			return nil, fmt.Errorf("radius: generating request authenticator: %w", err)
		}
		copy(buf[4:20], p.Authenticator[:])
		buf = append(buf, attrBuf...)
		return buf, nil
	}

	// Non-Access-Request: Authenticator = MD5(code|id|length|zero16|attrs|secret).
	copy(buf[4:20], make([]byte, 16))
	buf = append(buf, attrBuf...)
	buf = append(buf, []byte(secret)...)
	sum := md5.Sum(buf)
	copy(p.Authenticator[:], sum[:])
	copy(buf[4:20], sum[:])
	return buf[:total], nil
}

// ComputeReplyAuthenticator recomputes MD5(code|id|length|RequestAuthenticator|attrs|secret)
// over raw, with the 16-byte field at offset 4 replaced by requestAuth.
func ComputeReplyAuthenticator(raw []byte, requestAuth [16]byte, secret string) [16]byte {
	buf := make([]byte, 0, len(raw)+len(secret))
	buf = append(buf, raw[:4]...)
	buf = append(buf, requestAuth[:]...)
	buf = append(buf, raw[20:]...)
	buf = append(buf, []byte(secret)...)
	return md5.Sum(buf)
}

// Decode parses raw wire bytes into a Packet bound to dict. Unknown
// attribute ids are preserved with a synthetic, non-printable "Attr-<id>"
// descriptor so callers can still see the raw id/value. An attribute with len<2 or extending past the
// packet's declared length fails the decode.
func Decode(dict *raddict.Dictionary, raw []byte) (*Packet, error) {
	if len(raw) < headerLen {
		return nil, fmt.Errorf("radius: reply too short: %d bytes", len(raw))
	}
	length := int(binary.BigEndian.Uint16(raw[2:4]))
	if length < headerLen || length > len(raw) {
		return nil, fmt.Errorf("radius: reply declares invalid length %d for %d-byte datagram", length, len(raw))
	}

	p := &Packet{
		Code: Code(raw[0]),
		ID:   raw[1],
		dict: dict,
	}
	copy(p.Authenticator[:], raw[4:20])

	rest := raw[headerLen:length]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return nil, fmt.Errorf("radius: truncated attribute header")
		}
		id := rest[0]
		l := int(rest[1])
		if l < 2 {
			return nil, fmt.Errorf("radius: attribute %d has invalid length %d", id, l)
		}
		if l > len(rest) {
			return nil, fmt.Errorf("radius: attribute %d extends past packet length", id)
		}
		value := rest[2:l]
		attr, _ := dict.FindAttrByID(int(id))
		instance := AttrInstance{Value: append([]byte(nil), value...)}
		if attr != nil {
			instance.Attr = attr
			instance.Printable = attr.Type == raddict.TypeString
		} else {
			instance.Attr = &raddict.Attr{ID: int(id), Name: fmt.Sprintf("Attr-%d", id), Type: raddict.TypeString}
		}
		p.Attrs = append(p.Attrs, instance)
		rest = rest[l:]
	}
	return p, nil
}
