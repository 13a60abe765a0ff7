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

package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kraklabs/palace/pkg/vectorstore"
)

func TestLinearScanIndexRanksByCosine(t *testing.T) {
	idx := vectorstore.NewLinearScanIndex()
	idx.Upsert("a", []float32{1, 0, 0})
	idx.Upsert("b", []float32{0, 1, 0})
	idx.Upsert("c", []float32{0.9, 0.1, 0})

	results := idx.Search([]float32{1, 0, 0}, 2)
	assert.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
}

func TestLinearScanIndexDelete(t *testing.T) {
	idx := vectorstore.NewLinearScanIndex()
	idx.Upsert("a", []float32{1, 0})
	idx.Delete("a")
	assert.Empty(t, idx.Search([]float32{1, 0}, 5))
}

func TestNoopEncoder(t *testing.T) {
	enc := vectorstore.NoopEncoder{}
	vecs, err := enc.Encode([]string{"hello"})
	assert.NoError(t, err)
	assert.Nil(t, vecs)
}
