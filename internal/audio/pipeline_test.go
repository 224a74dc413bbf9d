package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

type fakeWake struct {
	mu      sync.Mutex
	matchAt int
	calls   int
}

func (f *fakeWake) Detect(ctx context.Context, window []byte) (engine.WakeWordResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.matchAt {
		return engine.WakeWordResult{Matched: true, Word: "hey companion", Confidence: 0.9}, nil
	}
	return engine.WakeWordResult{}, nil
}

func (f *fakeWake) Profile() engine.ResourceProfile { return engine.ResourceProfile{} }

type fakeVAD struct {
	mu         sync.Mutex
	speechFor  int
	calls      int
}

func (f *fakeVAD) IsSpeech(ctx context.Context, frame []byte) (engine.VADResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return engine.VADResult{IsSpeech: f.calls <= f.speechFor}, nil
}

func (f *fakeVAD) Reset()                          {}
func (f *fakeVAD) Profile() engine.ResourceProfile { return engine.ResourceProfile{} }

func testConfig() config.AudioConfig {
	return config.AudioConfig{
		SampleRate:        16000,
		RingBufferSeconds: 1,
		SilenceTimeout:    20 * time.Millisecond,
		MinSpeechDuration: 0,
	}
}

func TestPipelineDetectsWakeWordAndRecordsUtterance(t *testing.T) {
	key := interaction.Key{UserID: "u1", ModelID: "m1"}
	b := bus.New(16, zerolog.Nop())
	defer b.Close()

	var stateEvents []bus.PipelineStateChangedPayload
	var mu sync.Mutex
	unsub := b.Subscribe(func(e bus.Event) {
		if p, ok := e.Payload.(bus.PipelineStateChangedPayload); ok {
			mu.Lock()
			stateEvents = append(stateEvents, p)
			mu.Unlock()
		}
	}, bus.EventPipelineStateChanged)
	defer unsub()

	wake := &fakeWake{matchAt: 1}
	vad := &fakeVAD{speechFor: 2}

	var utteranceReceived []byte
	done := make(chan struct{})

	var p *Pipeline
	p = New(key, testConfig(), vad, wake, b, zerolog.Nop(), func(ctx context.Context, audio []byte) {
		utteranceReceived = audio
		close(done)
		p.Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	frame := make([]byte, 320)
	require.NoError(t, p.Push(frame))
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Push(frame))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("utterance handler never invoked")
	}

	require.NotNil(t, utteranceReceived)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range stateEvents {
			if e.To == string(StateRecording) {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestPipelinePushDropsOldestOnFullQueue(t *testing.T) {
	key := interaction.Key{UserID: "u1", ModelID: "m1"}
	wake := &fakeWake{matchAt: -1}
	vad := &fakeVAD{}
	p := New(key, testConfig(), vad, wake, nil, zerolog.Nop(), nil)

	for i := 0; i < 100; i++ {
		require.NoError(t, p.Push([]byte{byte(i)}))
	}

	// The capture queue holds 64 frames, so frames 0-35 were dropped.
	require.Len(t, p.frames, 64)
	require.Equal(t, []byte{36}, <-p.frames)
}

func TestPipelineCloseStopsRunQuickly(t *testing.T) {
	key := interaction.Key{UserID: "u1", ModelID: "m1"}
	wake := &fakeWake{matchAt: -1}
	vad := &fakeVAD{}
	p := New(key, testConfig(), vad, wake, nil, zerolog.Nop(), nil)

	runDone := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(runDone)
	}()

	p.Close()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return within bounded shutdown window")
	}
}
