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

package main

import (
	"fmt"

	"github.com/accel-ppp/pppd-ng/internal/ipdb"
	"github.com/spf13/cobra"
)

func newIPDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipdb",
		Short: "Inspect a persisted address pool",
	}
	cmd.AddCommand(newIPDBLeaseCmd())
	return cmd
}

func newIPDBLeaseCmd() *cobra.Command {
	var cidr string
	cmd := &cobra.Command{
		Use:   "lease <bbolt-path> <session-id>",
		Short: "Draw (or show an existing) lease for a session id from a persisted pool, without starting the daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ipdb.OpenBoltStore(args[0], cidr)
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer store.Close()

			local, peer, ok := store.Get(args[1])
			if !ok {
				return fmt.Errorf("pool exhausted: no address available for %q", args[1])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: local=%s peer=%s\n", args[1], local, peer)
			return nil
		},
	}
	cmd.Flags().StringVar(&cidr, "cidr", "10.99.0.0/16", "pool CIDR, must match the range the daemon was started with")
	return cmd
}
