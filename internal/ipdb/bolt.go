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
	"bytes"
	"encoding/gob"
	"fmt"
	"net"
	"time"

	"go.etcd.io/bbolt"
	"k8s.io/klog/v2"
)

var leaseBucket = []byte("leases")

// lease is the gob-encoded record stored per session id.
type lease struct {
	Local net.IP
	Peer  net.IP
}

// BoltStore is a persistent IPDB backed by a single bbolt database file,
// so address assignments survive a daemon restart (the in-memory
// MemStore alone would hand out the same address to two different
// sessions across a restart). It wraps a MemStore for the actual pool
// bookkeeping and mirrors every successful Get/Put into the database.
type BoltStore struct {
	db  *bbolt.DB
	mem *MemStore
}

// OpenBoltStore opens (creating if absent) a bbolt database at path,
// seeds a MemStore covering cidr, and replays any leases already on disk
// so they are not handed out again.
func OpenBoltStore(path string, cidr string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ipdb: opening bbolt database %q: %w", path, err)
	}

	mem, err := NewMemStore(cidr)
	if err != nil {
		db.Close()
		return nil, err
	}

	b := &BoltStore{db: db, mem: mem}
	if err := b.replay(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *BoltStore) replay() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(leaseBucket)
		if err != nil {
			return fmt.Errorf("ipdb: creating lease bucket: %w", err)
		}
		count := 0
		err = bkt.ForEach(func(k, v []byte) error {
			var l lease
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&l); err != nil {
				klog.Warningf("ipdb: skipping corrupt lease record for %q: %v", k, err)
				return nil
			}
			sessionID := string(k)
			b.mem.leased[sessionID] = [2]net.IP{l.Local, l.Peer}
			b.mem.removeFree(l.Local)
			count++
			return nil
		})
		if err == nil {
			klog.V(2).Infof("ipdb: replayed %d persisted lease(s) from %s", count, b.db.Path())
		}
		return err
	})
}

// Close releases the underlying database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// Get draws an address pair via the in-memory pool and persists the
// assignment before returning it.
func (b *BoltStore) Get(sessionID string) (local, peer net.IP, ok bool) {
	local, peer, ok = b.mem.Get(sessionID)
	if !ok {
		return nil, nil, false
	}
	if err := b.persist(sessionID, local, peer); err != nil {
		klog.Errorf("ipdb: persisting lease for %s: %v", sessionID, err)
	}
	return local, peer, true
}

// Put returns the pair to the in-memory pool and removes its persisted
// record.
func (b *BoltStore) Put(sessionID string, local, peer net.IP) {
	b.mem.Put(sessionID, local, peer)
	err := b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(leaseBucket).Delete([]byte(sessionID))
	})
	if err != nil {
		klog.Errorf("ipdb: deleting persisted lease for %s: %v", sessionID, err)
	}
}

func (b *BoltStore) persist(sessionID string, local, peer net.IP) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(lease{Local: local, Peer: peer}); err != nil {
		return fmt.Errorf("encoding lease: %w", err)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(leaseBucket).Put([]byte(sessionID), buf.Bytes())
	})
}
