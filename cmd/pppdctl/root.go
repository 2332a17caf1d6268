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

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pppdctl",
		Short: "A tool to inspect and validate a pppd-ng deployment",
		Long:  `This tool validates RADIUS dictionaries and inspects a persisted pppd-ng address pool file directly, without the daemon.`,
	}
	cmd.AddCommand(newDictCmd())
	cmd.AddCommand(newIPDBCmd())
	return cmd
}
