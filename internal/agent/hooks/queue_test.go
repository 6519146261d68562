package hooks

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxagent/internal/agent/domain"
)

func textEvent(i int) domain.Event {
	return domain.NewEvent(domain.KindText, time.Unix(int64(i), 0), domain.F("i", i))
}

func TestQueueKeepsFIFOAcrossOverflow(t *testing.T) {
	q := NewQueue(2)
	for i := 0; i < 5; i++ {
		q.Enqueue(textEvent(i))
	}
	assert.Equal(t, 5, q.Len())

	drained := q.Drain()
	require.Len(t, drained, 5)
	for i, event := range drained {
		value, _ := event.Get("i")
		assert.Equal(t, i, value)
	}
	assert.Empty(t, q.Drain())

	q.Enqueue(textEvent(9))
	drained = q.Drain()
	require.Len(t, drained, 1)
}

func TestQueueConcurrentProducersNeverBlock(t *testing.T) {
	q := NewQueue(4)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(textEvent(i))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, q.Drain(), 800)
}

func TestNewQueueDefaultsCapacity(t *testing.T) {
	q := NewQueue(0)
	assert.Equal(t, DefaultQueueSize, cap(q.ch))
}
