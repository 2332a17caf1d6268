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

package config

import (
	"flag"
	"strings"
	"testing"
)

func TestDefaultPassesValidationOnceRequiredFieldsAreSet(t *testing.T) {
	c := Default()
	c.AuthServer = "radius.example.com:1812"
	c.Secret = "s3cr3t"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateAggregatesAllErrors(t *testing.T) {
	c := &Config{
		DictionaryPath: "",
		IPPoolCIDR:     "not-a-cidr",
		AuthServer:     "",
		Secret:         "",
		NASIPAddress:   "bogus",
		MaxTry:         0,
		Timeout:        0,
		MaxConfigure:   0,
		MaxFailure:     0,
	}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"dictionary path", "invalid ip-pool", "auth-server", "radius-secret",
		"invalid nas-ip-address", "radius-max-try", "radius-timeout",
		"ipcp-max-configure", "ipcp-max-failure",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing expected substring %q", msg, want)
		}
	}
}

func TestBindFlagsRoundTrip(t *testing.T) {
	c := Default()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.BindFlags(fs)

	if err := fs.Parse([]string{
		"-auth-server=10.0.0.1:1812",
		"-radius-secret=topsecret",
		"-radius-max-try=5",
		"-strict-interface-programming=true",
	}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if c.AuthServer != "10.0.0.1:1812" {
		t.Errorf("AuthServer = %q", c.AuthServer)
	}
	if c.Secret != "topsecret" {
		t.Errorf("Secret = %q", c.Secret)
	}
	if c.MaxTry != 5 {
		t.Errorf("MaxTry = %d, want 5", c.MaxTry)
	}
	if !c.StrictInterfaceProgramming {
		t.Errorf("StrictInterfaceProgramming = false, want true")
	}
}
