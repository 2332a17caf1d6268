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

// Package ipdb is the pluggable IP address pool consulted by the IPCP
// address-option handler: a two-operation interface with an in-memory
// pool and a bbolt-backed persistent store.
package ipdb

import "net"

// Store is the leaf IPDB interface the address-option handler consumes.
// Get draws a fresh (local, peer) pair for sessionID; Put returns a pair
// previously drawn for sessionID. The backing implementation decides
// what "fresh" means (a CIDR pool, a RADIUS-learned override, ...).
type Store interface {
	Get(sessionID string) (local, peer net.IP, ok bool)
	Put(sessionID string, local, peer net.IP)
}
