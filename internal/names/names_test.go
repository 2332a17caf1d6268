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

package names

import "testing"

func TestAcquireAssignsLowestFreeIndex(t *testing.T) {
	a := NewUnitAllocator()
	if u := a.Acquire(); u != 0 {
		t.Fatalf("first Acquire = %d, want 0", u)
	}
	if u := a.Acquire(); u != 1 {
		t.Fatalf("second Acquire = %d, want 1", u)
	}

	a.Release(0)
	if u := a.Acquire(); u != 0 {
		t.Fatalf("Acquire after releasing 0 = %d, want 0 reused", u)
	}
}

func TestReleaseUnknownUnitIsNoop(t *testing.T) {
	a := NewUnitAllocator()
	a.Release(5) // never acquired
	if u := a.Acquire(); u != 0 {
		t.Fatalf("Acquire after releasing unused unit = %d, want 0", u)
	}
}

func TestIfName(t *testing.T) {
	if got := IfName(7); got != "ppp7" {
		t.Fatalf("IfName(7) = %q, want ppp7", got)
	}
}
