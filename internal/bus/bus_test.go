package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(depth int) *Bus {
	return New(depth, zerolog.Nop())
}

func TestSubscribeReceivesOnlyInterestedTypes(t *testing.T) {
	b := newTestBus(8)
	defer b.Close()

	var mu sync.Mutex
	var got []EventType
	done := make(chan struct{}, 1)

	unsub := b.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Type)
		mu.Unlock()
		if e.Type == EventSpeechEnded {
			done <- struct{}{}
		}
	}, EventSpeechStarted, EventSpeechEnded)
	defer unsub()

	b.Publish(Event{Type: EventWakeDetected})
	b.Publish(Event{Type: EventSpeechStarted})
	b.Publish(Event{Type: EventSpeechEnded})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventSpeechStarted, EventSpeechEnded}, got)
}

func TestDeliveryPreservesOrder(t *testing.T) {
	b := newTestBus(256)
	defer b.Close()

	var mu sync.Mutex
	var got []int
	wg := sync.WaitGroup{}
	wg.Add(100)

	unsub := b.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Payload.(int))
		mu.Unlock()
		wg.Done()
	})
	defer unsub()

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventTranscriptPartial, Payload: i})
	}

	waitOrTimeout(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestOverflowDropsOldestNotNewest(t *testing.T) {
	b := newTestBus(2)
	defer b.Close()

	release := make(chan struct{})
	first := make(chan struct{})

	var mu sync.Mutex
	var got []int
	var firstOnce sync.Once

	unsub := b.Subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e.Payload.(int))
		mu.Unlock()
		firstOnce.Do(func() { close(first) })
		<-release
	})
	defer unsub()

	// First event is picked up immediately by the handler goroutine and
	// blocks there until release is closed, so the queue (depth 2) fills
	// with events 1 and 2; event 3 forces event 1 out of the queue.
	b.Publish(Event{Type: EventTranscriptPartial, Payload: 0})
	<-first
	b.Publish(Event{Type: EventTranscriptPartial, Payload: 1})
	b.Publish(Event{Type: EventTranscriptPartial, Payload: 2})
	b.Publish(Event{Type: EventTranscriptPartial, Payload: 3})

	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 2, 3}, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(8)
	defer b.Close()

	count := 0
	var mu sync.Mutex
	unsub := b.Subscribe(func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Publish(Event{Type: EventWakeDetected})
	time.Sleep(20 * time.Millisecond)
	unsub()
	unsub() // idempotent

	b.Publish(Event{Type: EventWakeDetected})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for handler completion")
	}
}
