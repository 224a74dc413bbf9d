package stt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/companioncore/internal/engine"
)

func TestFilterCleanRemovesFillerWords(t *testing.T) {
	f := NewFilter(nil)

	cleaned, meaningful := f.Clean("um so like I was thinking we should go")
	assert.True(t, meaningful)
	assert.NotContains(t, cleaned, "um")
	assert.NotContains(t, cleaned, "like")
	assert.Contains(t, cleaned, "thinking")
}

func TestFilterIsFillerOnly(t *testing.T) {
	f := NewFilter(nil)

	assert.True(t, f.IsFillerOnly("um uh well"))
	assert.False(t, f.IsFillerOnly("um what time is it"))
	assert.True(t, f.IsFillerOnly(""))
}

func TestFilterResultDiscardsFillerOnly(t *testing.T) {
	f := NewFilter(nil)

	result := &engine.STTResult{Text: "uh um"}
	keep := f.FilterResult(result)

	assert.False(t, keep)
	assert.Empty(t, result.Text)
}

func TestFragmentBufferShouldSendOnWordCount(t *testing.T) {
	fb := NewFragmentBuffer(&FragmentBufferConfig{TimeoutMs: 10_000, MinWordCount: 3})

	fb.Add("hello")
	assert.False(t, fb.ShouldSend())
	fb.Add("there friend")
	assert.True(t, fb.ShouldSend())

	assert.Equal(t, "hello there friend", fb.Flush())
	assert.True(t, fb.IsEmpty())
}

func TestFragmentBufferShouldSendOnTimeout(t *testing.T) {
	fb := NewFragmentBuffer(&FragmentBufferConfig{TimeoutMs: 50, MinWordCount: 100})

	now := int64(0)
	fb.timeProvider = func() int64 { return now }

	fb.Add("hi")
	assert.False(t, fb.ShouldSend())

	now += 100 * 1e6
	assert.True(t, fb.ShouldSend())
}
