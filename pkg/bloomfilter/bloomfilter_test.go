// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package bloomfilter_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/palace/pkg/bloomfilter"
)

func TestZeroFalseNegatives(t *testing.T) {
	f := bloomfilter.New(1000, 0.001)
	ids := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("art:%d", i)
		ids = append(ids, id)
		f.Add(id)
	}
	for _, id := range ids {
		assert.True(t, f.Contains(id), "must never false-negative on %s", id)
	}
}

func TestContainsFalseForUnadded(t *testing.T) {
	f := bloomfilter.New(1000, 0.0001)
	f.Add("art:present")
	assert.False(t, f.Contains("art:definitely-not-here-xyz"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	f := bloomfilter.New(1000, 0.001)
	f.Add("art:a")
	f.Add("art:b")

	path := filepath.Join(t.TempDir(), "bloom_filter.bin")
	require.NoError(t, f.Save(path))

	loaded, err := bloomfilter.Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Contains("art:a"))
	assert.True(t, loaded.Contains("art:b"))
}
