/*
Copyright 2023 The Statemill Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	fsstore "github.com/statemill/statemill/pkg/store/fs"
)

func NewInspectCommand() *cobra.Command {
	var (
		dumpEntries bool
	)

	command := &cobra.Command{
		Use:   "inspect [segment files]",
		Short: "Decode checkpoint segment files and verify their checksums",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				seg, err := fsstore.ReadSegment(path)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: window=%d bucket=%d entries=%d\n",
					path, seg.WindowID, seg.Bucket, len(seg.Entries))
				if dumpEntries {
					for _, e := range seg.Entries {
						fmt.Fprintf(cmd.OutOrStdout(), "  %x = %x\n", e.Key, e.Value)
					}
				}
			}
			return nil
		},
	}
	command.Flags().BoolVar(&dumpEntries, "dump", false, "Print every entry as hex key = value")
	return command
}
