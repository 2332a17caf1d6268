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

// Package names allocates and formats the ppp%d unit names sessions are
// known by on the host, the lowest free index being handed out first so
// a long-running daemon does not march ifName through unbounded values.
package names

import (
	"fmt"
	"sync"
)

// UnitAllocator hands out the lowest currently-unused ppp unit index.
type UnitAllocator struct {
	mu   sync.Mutex
	next int
	free []int
	used map[int]bool
}

// NewUnitAllocator returns an allocator with no units in use.
func NewUnitAllocator() *UnitAllocator {
	return &UnitAllocator{used: map[int]bool{}}
}

// Acquire returns the lowest unit index not currently in use.
func (a *UnitAllocator) Acquire() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) > 0 {
		lowest := 0
		for i, u := range a.free {
			if u < a.free[lowest] {
				lowest = i
			}
		}
		unit := a.free[lowest]
		a.free = append(a.free[:lowest], a.free[lowest+1:]...)
		a.used[unit] = true
		return unit
	}
	unit := a.next
	a.next++
	a.used[unit] = true
	return unit
}

// Release returns unit to the free list. Releasing an index that was
// never acquired, or was already released, is a no-op.
func (a *UnitAllocator) Release(unit int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.used[unit] {
		return
	}
	delete(a.used, unit)
	a.free = append(a.free, unit)
}

// IfName formats the host network interface name for a ppp unit.
func IfName(unit int) string {
	return fmt.Sprintf("ppp%d", unit)
}
