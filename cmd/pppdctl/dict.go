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

	"github.com/accel-ppp/pppd-ng/internal/raddict"
	"github.com/spf13/cobra"
)

func newDictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dict",
		Short: "Inspect and validate RADIUS attribute dictionaries",
	}
	cmd.AddCommand(newDictValidateCmd())
	return cmd
}

func newDictValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Load a dictionary file and report its attribute count, or the first error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := raddict.New()
			if err := d.Load(args[0]); err != nil {
				return fmt.Errorf("dictionary invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK, %d attributes loaded\n", args[0], d.Len())
			return nil
		},
	}
}
