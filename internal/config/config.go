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

// Package config holds the daemon's runtime configuration and the flag
// wiring that populates it.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"time"
)

// Config is the full set of daemon knobs: RADIUS client behavior, IPCP
// negotiation bounds, the dictionary and address pool locations, and the
// strictness of kernel interface programming.
type Config struct {
	BindAddress string

	DictionaryPath string

	IPPoolCIDR string
	IPDBPath   string // empty selects the in-memory store

	AuthServer string
	AcctServer string
	Secret     string

	NASIdentifier string
	NASIPAddress  string

	MaxTry  int
	Timeout time.Duration

	MaxConfigure int
	MaxFailure   int

	// StrictInterfaceProgramming stops kernel interface programming at
	// the first failing step (address, flags, NP mode) and reports that
	// error, instead of logging each failing step and continuing. The
	// reported error is logged; the IPCP session stays Opened either way.
	StrictInterfaceProgramming bool
}

// Default returns a Config with the same defaults the reference
// implementation ships (10 configure retries, 5 failure retries before
// forcing reject, three RADIUS transmissions at a three second timeout).
func Default() *Config {
	return &Config{
		BindAddress:    ":9178",
		DictionaryPath: "/etc/pppd-ng/dictionary",
		IPPoolCIDR:     "10.99.0.0/16",
		MaxTry:         3,
		Timeout:        3 * time.Second,
		MaxConfigure:   10,
		MaxFailure:     5,
	}
}

// BindFlags registers c's fields onto fs, following the plain flag
// package idiom the daemon's other entrypoints use rather than a
// struct-tag based flag library.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.BindAddress, "bind-address", c.BindAddress, "address for the metrics and healthz server to listen on")
	fs.StringVar(&c.DictionaryPath, "dictionary", c.DictionaryPath, "path to the RADIUS attribute dictionary")
	fs.StringVar(&c.IPPoolCIDR, "ip-pool", c.IPPoolCIDR, "CIDR range the address pool leases from")
	fs.StringVar(&c.IPDBPath, "ipdb-path", c.IPDBPath, "bbolt database file for persisted address leases (empty uses an in-memory pool)")
	fs.StringVar(&c.AuthServer, "auth-server", c.AuthServer, "RADIUS authentication server address (host:port)")
	fs.StringVar(&c.AcctServer, "acct-server", c.AcctServer, "RADIUS accounting server address (host:port)")
	fs.StringVar(&c.Secret, "radius-secret", c.Secret, "shared secret for the RADIUS servers")
	fs.StringVar(&c.NASIdentifier, "nas-identifier", c.NASIdentifier, "NAS-Identifier attribute value sent with every request")
	fs.StringVar(&c.NASIPAddress, "nas-ip-address", c.NASIPAddress, "NAS-IP-Address attribute value sent with every request")
	fs.IntVar(&c.MaxTry, "radius-max-try", c.MaxTry, "maximum RADIUS request transmissions, the first send included, before giving up")
	fs.DurationVar(&c.Timeout, "radius-timeout", c.Timeout, "RADIUS request retransmission interval")
	fs.IntVar(&c.MaxConfigure, "ipcp-max-configure", c.MaxConfigure, "maximum consecutive IPCP Configure-Requests before declining the layer")
	fs.IntVar(&c.MaxFailure, "ipcp-max-failure", c.MaxFailure, "maximum consecutive IPCP Configure-Naks before forcing a reject")
	fs.BoolVar(&c.StrictInterfaceProgramming, "strict-interface-programming", c.StrictInterfaceProgramming, "stop kernel interface programming at the first failing step instead of logging each failure and continuing (the session stays up either way)")
}

// Validate aggregates every configuration error instead of stopping at
// the first one, mirroring the validation style used elsewhere in the
// codebase.
func (c *Config) Validate() error {
	var errs []error

	if c.DictionaryPath == "" {
		errs = append(errs, fmt.Errorf("dictionary path must not be empty"))
	}
	if _, _, err := net.ParseCIDR(c.IPPoolCIDR); err != nil {
		errs = append(errs, fmt.Errorf("invalid ip-pool %q: %w", c.IPPoolCIDR, err))
	}
	if c.AuthServer == "" {
		errs = append(errs, fmt.Errorf("auth-server must not be empty"))
	}
	if c.Secret == "" {
		errs = append(errs, fmt.Errorf("radius-secret must not be empty"))
	}
	if c.NASIPAddress != "" && net.ParseIP(c.NASIPAddress) == nil {
		errs = append(errs, fmt.Errorf("invalid nas-ip-address %q", c.NASIPAddress))
	}
	if c.MaxTry <= 0 {
		errs = append(errs, fmt.Errorf("radius-max-try must be positive, got %d", c.MaxTry))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("radius-timeout must be positive, got %s", c.Timeout))
	}
	if c.MaxConfigure <= 0 {
		errs = append(errs, fmt.Errorf("ipcp-max-configure must be positive, got %d", c.MaxConfigure))
	}
	if c.MaxFailure <= 0 {
		errs = append(errs, fmt.Errorf("ipcp-max-failure must be positive, got %d", c.MaxFailure))
	}

	return errors.Join(errs...)
}
