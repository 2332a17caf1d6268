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

// Package kif programs the kernel ppp%d network interface once IPCP
// converges: local/peer addresses, link flags and the NP mode that
// switches IPv4 passthrough on, mirroring the ordered ioctl sequence of
// the reference ipaddr option handler (address, dest address, flags,
// PPPIOCSNPMODE) but expressed through netlink plus a single raw ioctl
// for the ppp-specific step netlink has no notion of.
package kif

import (
	"fmt"
	"net"
	"sync"
	"unsafe"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// PPPIOCSNPMODE is linux/ppp-ioctl.h's _IOW('t', 81, struct npioctl):
// sets which network protocol is allowed to pass over a ppp unit.
const pppIOCSNPMode = 0x40087451

// npProtocolIP is PPP_IP from linux/ppp_defs.h, the protocol field value
// identifying the IPv4 network protocol.
const npProtocolIP = 0x0021

// npModePass is NPMODE_PASS: packets for the protocol are passed as
// normal (the other modes drop, error or queue them).
const npModePass = 0

type npIOCtl struct {
	protocol int32
	mode     int32
}

// Kernel programs ppp%d interfaces via netlink and tracks the open
// /dev/ppp channel file descriptor each unit needs for PPPIOCSNPMODE,
// since that ioctl operates on the channel, not on a socket bound to the
// network interface the way the address and flag ioctls conceptually
// do. Strict makes every step's failure abort programming instead of
// only being logged.
type Kernel struct {
	Strict bool

	mu  sync.Mutex
	fds map[int]int
}

// NewKernel returns a Kernel ready to register units.
func NewKernel(strict bool) *Kernel {
	return &Kernel{Strict: strict, fds: map[int]int{}}
}

// RegisterUnit associates a ppp unit index with the file descriptor of
// its open /dev/ppp channel, required before Program can set its NP
// mode. Session orchestration calls this right after creating the unit.
func (k *Kernel) RegisterUnit(unit int, fd int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.fds[unit] = fd
}

// UnregisterUnit drops the bookkeeping for a unit being torn down.
func (k *Kernel) UnregisterUnit(unit int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.fds, unit)
}

func ifName(unit int) string { return fmt.Sprintf("ppp%d", unit) }

// Program implements ipcp.Programmer: local address, peer (point to
// point destination) address, UP flag, then IPv4 passthrough NP mode,
// in that order, matching the reference implementation's sequence.
// Non-strict mode logs each failing step and keeps going, since a
// session already converged at the protocol level should not be torn
// down purely because, say, the link was already up.
func (k *Kernel) Program(unit int, local, peer net.IP) error {
	name := ifName(unit)
	link, err := netlink.LinkByName(name)
	if err != nil {
		return k.fail("look up interface %s: %w", name, err)
	}

	addr := &netlink.Addr{
		IPNet: &net.IPNet{IP: local, Mask: net.CIDRMask(32, 32)},
		Peer:  &net.IPNet{IP: peer, Mask: net.CIDRMask(32, 32)},
	}
	if err := netlink.AddrReplace(link, addr); err != nil {
		if ferr := k.fail("set address %s peer %s on %s: %w", local, peer, name, err); ferr != nil {
			return ferr
		}
	}

	if err := netlink.LinkSetUp(link); err != nil {
		if ferr := k.fail("bring up %s: %w", name, err); ferr != nil {
			return ferr
		}
	}

	if err := k.setNPMode(unit); err != nil {
		if ferr := k.fail("set NP mode on unit %d: %w", unit, err); ferr != nil {
			return ferr
		}
	}

	klog.V(2).Infof("kif: programmed %s local=%s peer=%s", name, local, peer)
	return nil
}

func (k *Kernel) setNPMode(unit int) error {
	k.mu.Lock()
	fd, ok := k.fds[unit]
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("no registered channel fd for unit %d", unit)
	}

	np := npIOCtl{protocol: npProtocolIP, mode: npModePass}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(pppIOCSNPMode), uintptr(unsafe.Pointer(&np)))
	if errno != 0 {
		return errno
	}
	return nil
}

// fail logs a formatted error and, in strict mode, returns it wrapped;
// in non-strict mode it returns nil so the caller continues.
func (k *Kernel) fail(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	if k.Strict {
		return err
	}
	klog.Errorf("kif: %v", err)
	return nil
}
