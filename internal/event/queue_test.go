package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	_, ok := q.TryPop()
	assert.False(t, ok, "TryPop on empty queue")

	q.Push(Market{Time: t0})
	q.Push(Signal{Symbol: "A"})
	q.Push(Order{Symbol: "B"})
	require.Equal(t, 3, q.Len())

	var kinds []Kind
	for {
		ev, ok := q.TryPop()
		if !ok {
			break
		}
		kinds = append(kinds, ev.Kind())
		if ev.Kind() == KindSignal {
			// Handlers push to the tail while the queue is being drained.
			q.Push(Fill{Symbol: "A"})
		}
	}
	assert.Equal(t, []Kind{KindMarket, KindSignal, KindOrder, KindFill}, kinds)
	assert.Zero(t, q.Len())
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue()
	const producers, perProducer = 8, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(Market{})
			}
		}()
	}

	popped := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		if _, ok := q.TryPop(); ok {
			popped++
			continue
		}
		select {
		case <-done:
			for {
				if _, ok := q.TryPop(); !ok {
					assert.Equal(t, producers*perProducer, popped)
					return
				}
				popped++
			}
		default:
		}
	}
}
