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

package fs

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// DiscoverCheckpoints returns the window ids of all complete checkpoints in
// dir, in ascending order. A checkpoint is complete only once its marker file
// exists, segments without a marker belong to a checkpoint that crashed
// mid-write and are ignored.
func DiscoverCheckpoints(dir string) ([]int64, error) {
	files, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []int64{}, nil
	} else if err != nil {
		return nil, err
	}

	windows := make([]int64, 0)
	for _, f := range files {
		if f.IsDir() || !strings.HasPrefix(f.Name(), MarkerPrefix+"_") {
			continue
		}
		w, err := strconv.ParseInt(strings.TrimPrefix(f.Name(), MarkerPrefix+"_"), 10, 64)
		if err != nil {
			continue
		}
		windows = append(windows, w)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })
	return windows, nil
}

// LatestCheckpoint returns the newest complete checkpoint in dir, or false
// if there is none.
func LatestCheckpoint(dir string) (int64, bool, error) {
	windows, err := DiscoverCheckpoints(dir)
	if err != nil || len(windows) == 0 {
		return 0, false, err
	}
	return windows[len(windows)-1], true, nil
}
