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
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"k8s.io/klog/v2"
)

// MemStore is a free-list over a configured CIDR pool, guarded by a
// single mutex: a struct embedding a mutex and plain Go maps, mutated
// only under lock. The peer address is fixed for every lease (a
// point-to-point link's far end is conventionally the pool's first
// address).
type MemStore struct {
	mu     sync.Mutex
	peer   net.IP
	free   []net.IP
	leased map[string][2]net.IP // sessionID -> (local, peer)
}

// NewMemStore builds a pool of addresses from cidr, reserving the
// network's first usable address as the shared peer (far end) address
// and leasing out the rest.
func NewMemStore(cidr string) (*MemStore, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("ipdb: invalid pool CIDR %q: %w", cidr, err)
	}
	ip = ip.To4()
	if ip == nil {
		return nil, fmt.Errorf("ipdb: pool CIDR %q is not IPv4", cidr)
	}

	base := binary.BigEndian.Uint32(ip) & binary.BigEndian.Uint32(ipnet.Mask)
	ones, bits := ipnet.Mask.Size()
	count := uint32(1) << uint(bits-ones)
	if count < 3 {
		return nil, fmt.Errorf("ipdb: pool CIDR %q too small", cidr)
	}

	peerAddr := addrAt(base, 1)
	m := &MemStore{peer: peerAddr, leased: map[string][2]net.IP{}}
	for i := uint32(2); i < count-1; i++ {
		m.free = append(m.free, addrAt(base, i))
	}
	klog.V(2).Infof("ipdb: in-memory pool %s ready with %d leasable addresses", cidr, len(m.free))
	return m, nil
}

func addrAt(base uint32, offset uint32) net.IP {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], base+offset)
	return net.IP(buf[:])
}

// Get draws the next free address for sessionID, or returns ok=false if
// the pool is exhausted.
func (m *MemStore) Get(sessionID string) (local, peer net.IP, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, already := m.leased[sessionID]; already {
		return existing[0], existing[1], true
	}
	if len(m.free) == 0 {
		return nil, nil, false
	}
	local = m.free[0]
	m.free = m.free[1:]
	m.leased[sessionID] = [2]net.IP{local, m.peer}
	return local, m.peer, true
}

// removeFree drops addr from the free list, if present, without taking
// the lock itself. Its only caller is BoltStore's replay, which runs
// inside OpenBoltStore before the store is handed to anyone else.
func (m *MemStore) removeFree(addr net.IP) {
	for i, ip := range m.free {
		if ip.Equal(addr) {
			m.free = append(m.free[:i], m.free[i+1:]...)
			return
		}
	}
}

// Put returns a previously leased pair to the free list.
func (m *MemStore) Put(sessionID string, local, peer net.IP) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leased[sessionID]; !ok {
		klog.Warningf("ipdb: put for unknown session %s ignored", sessionID)
		return
	}
	delete(m.leased, sessionID)
	m.free = append(m.free, local)
}
