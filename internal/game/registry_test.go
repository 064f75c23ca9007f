// internal/game/registry_test.go
package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	s1, created1 := r.ResolveOrCreate("111111")
	s2, created2 := r.ResolveOrCreate("111111")

	assert.True(t, created1)
	assert.False(t, created2)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, r.Len())
}

func TestResolveOrCreateUnderContention(t *testing.T) {
	r := NewRegistry(nil)

	const goroutines = 32
	sessions := make([]*Session, goroutines)
	createdCount := 0

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			s, created := r.ResolveOrCreate("222222")
			mu.Lock()
			sessions[idx] = s
			if created {
				createdCount++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount, "exactly one caller creates the session")
	for i := 1; i < goroutines; i++ {
		assert.Same(t, sessions[0], sessions[i])
	}
}

func TestSessionCloseRemovesFromRegistry(t *testing.T) {
	r := NewRegistry(nil)
	s, _ := r.ResolveOrCreate("333333")
	require.NotNil(t, r.Find("333333"))

	s.Mu.Lock()
	s.close()
	s.Mu.Unlock()

	assert.Nil(t, r.Find("333333"))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryCloseShutsEverySessionDown(t *testing.T) {
	r := NewRegistry(nil)
	s1, _ := r.ResolveOrCreate("444444")
	s2, _ := r.ResolveOrCreate("555555")

	r.Close()

	assert.True(t, s1.Closed())
	assert.True(t, s2.Closed())
	assert.Equal(t, 0, r.Len())
}
