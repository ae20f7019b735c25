// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vocabulary

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", 1)
	c.put("b", 2)
	c.put("c", 3) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "oldest entry should be evicted")

	v, ok := c.get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = c.get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestLRUCacheTouchUpdatesRecency(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", 1)
	c.put("b", 2)

	_, _ = c.get("a") // touch a, making b the oldest
	c.put("c", 3)     // should evict b, not a

	_, ok := c.get("b")
	assert.False(t, ok)

	_, ok = c.get("a")
	assert.True(t, ok)
}

func TestLRUCacheConcurrentAccess(t *testing.T) {
	c := newLRUCache(16)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.put(string(rune('a'+i%26)), i)
			c.get(string(rune('a' + i%26)))
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.len(), 16)
}
