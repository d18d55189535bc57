// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	var (
		k       keyedMutex
		wg      sync.WaitGroup
		counter = map[string]int{}
		mu      sync.Mutex
	)

	for i := range 50 {
		key := []string{"a", "b"}[i%2]

		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := k.Lock(key)
			defer unlock()

			// read-modify-write without the map lock held across it
			mu.Lock()
			v := counter[key]
			mu.Unlock()

			mu.Lock()
			counter[key] = v + 1
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, map[string]int{"a": 25, "b": 25}, counter)
	assert.Empty(t, k.locks)
}
