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
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/statemill/statemill/pkg/serde"
	"github.com/statemill/statemill/pkg/shared/logging"
	"github.com/statemill/statemill/pkg/spillable"
	"github.com/statemill/statemill/pkg/store"
	fsstore "github.com/statemill/statemill/pkg/store/fs"
	memstore "github.com/statemill/statemill/pkg/store/memory"
)

func NewBenchCommand() *cobra.Command {
	var (
		path            string
		inMemory        bool
		windows         int
		entries         int
		checkpointEvery int
	)

	command := &cobra.Command{
		Use:   "bench",
		Short: "Drive windows of spillable map/sequence mutations against a store",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.NewLogger().Named("bench")
			ctx := logging.WithLogger(context.Background(), logger)

			var st store.Store
			var err error
			if inMemory {
				st = memstore.NewStore(ctx)
			} else {
				opts := []fsstore.Option{}
				if path != "" {
					opts = append(opts, fsstore.WithPath(path))
				}
				st, err = fsstore.NewStore(ctx, opts...)
				if err != nil {
					return err
				}
			}
			defer func() { _ = st.Close() }()

			scc := spillable.NewComplexComponent(st)
			seq, err := spillable.NewSequence[string](scc, 0, []byte("bench-seq"), serde.String{})
			if err != nil {
				return err
			}
			kv, err := spillable.NewMap[string, int64](scc, 0, []byte("bench-map"), serde.String{}, serde.Int64{})
			if err != nil {
				return err
			}
			if err := scc.Setup(ctx); err != nil {
				return err
			}

			start := time.Now()
			for w := 0; w < windows; w++ {
				windowID := int64(w)
				if err := scc.BeginWindow(windowID); err != nil {
					return err
				}
				for i := 0; i < entries; i++ {
					if err := seq.Add(fmt.Sprintf("entry-%d-%d", w, i)); err != nil {
						return err
					}
					if err := kv.Put(fmt.Sprintf("key-%d", i), windowID); err != nil {
						return err
					}
				}
				if err := scc.EndWindow(); err != nil {
					return err
				}
				if checkpointEvery > 0 && (w+1)%checkpointEvery == 0 {
					if err := scc.Checkpoint(windowID); err != nil {
						return err
					}
					if err := scc.Committed(windowID); err != nil {
						return err
					}
				}
			}
			elapsed := time.Since(start)

			logger.Infow("Bench complete",
				"windows", windows,
				"entriesPerWindow", entries,
				"sequenceSize", seq.Size(),
				"mapSize", kv.Size(),
				"elapsed", elapsed,
				"windowsPerSec", float64(windows)/elapsed.Seconds())
			return scc.Teardown()
		},
	}
	command.Flags().StringVar(&path, "path", "", "Store directory, defaults to $STATEMILL_DATA_DIR")
	command.Flags().BoolVar(&inMemory, "in-memory", false, "Use the in-memory store instead of the fs store")
	command.Flags().IntVar(&windows, "windows", 100, "Number of windows to run")
	command.Flags().IntVar(&entries, "entries", 1000, "Mutations per structure per window")
	command.Flags().IntVar(&checkpointEvery, "checkpoint-every", 10, "Checkpoint cadence in windows, 0 disables")
	return command
}
