package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("sess-%012d", n)
	}
}

func TestRegistryReturnsRunningSession(t *testing.T) {
	registry, err := NewSessionRegistry(4, WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	assert.Nil(t, registry.Active())

	first, created := registry.GetOrCreate("p1", "/w")
	require.True(t, created)
	again, created := registry.GetOrCreate("p2", "/other")
	assert.False(t, created)
	assert.Same(t, first, again)
	assert.Equal(t, "p1", again.Prompt())

	first.Finish(SessionCompleted, nil)
	second, created := registry.GetOrCreate("p2", "/other")
	assert.True(t, created)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Same(t, second, registry.Active())
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	registry, err := NewSessionRegistry(4)
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make(chan string, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, _ := registry.GetOrCreate("p", "/w")
			ids <- session.ID()
		}()
	}
	wg.Wait()
	close(ids)

	unique := map[string]bool{}
	for sid := range ids {
		unique[sid] = true
	}
	assert.Len(t, unique, 1)
}

func TestRegistryLookupEvictsOldest(t *testing.T) {
	registry, err := NewSessionRegistry(2, WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)

	var sessions []*Session
	for i := 0; i < 3; i++ {
		session, _ := registry.GetOrCreate("p", "/w")
		session.Finish(SessionCompleted, nil)
		sessions = append(sessions, session)
	}

	_, ok := registry.Lookup(sessions[0].ID())
	assert.False(t, ok)
	found, ok := registry.Lookup(sessions[2].ID())
	require.True(t, ok)
	assert.Same(t, sessions[2], found)

	recent := registry.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, sessions[1].ID(), recent[0].ID())
}

func TestRegistryLookupKeepsCreationOrder(t *testing.T) {
	registry, err := NewSessionRegistry(2, WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)

	first, _ := registry.GetOrCreate("p1", "/w")
	first.Finish(SessionCompleted, nil)
	second, _ := registry.GetOrCreate("p2", "/w")
	second.Finish(SessionCompleted, nil)

	_, ok := registry.Lookup(first.ID())
	require.True(t, ok)

	recent := registry.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, first.ID(), recent[0].ID())
	assert.Equal(t, second.ID(), recent[1].ID())

	third, _ := registry.GetOrCreate("p3", "/w")
	_, ok = registry.Lookup(first.ID())
	assert.False(t, ok, "oldest created session is evicted even after a lookup")
	_, ok = registry.Lookup(third.ID())
	assert.True(t, ok)
}
