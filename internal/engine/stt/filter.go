package stt

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/normanking/companioncore/internal/engine"
)

// DefaultFillerWords contains common English filler words to remove from
// transcripts before they reach the Conversation Core.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm",
	"like", "you know", "basically",
	"actually", "literally", "so",
	"er", "ah", "hmm", "mm",
	"well", "right", "okay",
}

// Filter strips filler words and noise from STT transcripts.
type Filter struct {
	mu          sync.RWMutex
	fillerWords map[string]struct{}
	pattern     *regexp.Regexp
}

// NewFilter creates a new filter with the given filler words. If
// fillerWords is nil, DefaultFillerWords is used.
func NewFilter(fillerWords []string) *Filter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}

	f := &Filter{
		fillerWords: make(map[string]struct{}, len(fillerWords)),
	}
	for _, word := range fillerWords {
		f.fillerWords[strings.ToLower(word)] = struct{}{}
	}
	f.buildPattern()
	return f
}

func (f *Filter) buildPattern() {
	if len(f.fillerWords) == 0 {
		f.pattern = nil
		return
	}

	var patterns []string
	for word := range f.fillerWords {
		escaped := regexp.QuoteMeta(word)
		patterns = append(patterns, `\b`+escaped+`\b`)
	}

	patternStr := `(?i)(` + strings.Join(patterns, `|`) + `)`
	f.pattern = regexp.MustCompile(patternStr)
}

// Clean removes filler words from the transcript and normalizes whitespace.
func (f *Filter) Clean(text string) (cleaned string, hasMeaningfulContent bool) {
	if text == "" {
		return "", false
	}

	f.mu.RLock()
	pattern := f.pattern
	f.mu.RUnlock()

	cleaned = text
	if pattern != nil {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}

	cleaned = regexp.MustCompile(`\s+`).ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if regexp.MustCompile(`^[.,!?;:\s]*$`).MatchString(cleaned) {
		cleaned = ""
	}

	hasMeaningfulContent = len(cleaned) > 0
	return cleaned, hasMeaningfulContent
}

// IsFillerOnly returns true if the text contains only filler words.
func (f *Filter) IsFillerOnly(text string) bool {
	_, hasMeaningful := f.Clean(text)
	return !hasMeaningful
}

// FilterResult cleans an engine.STTResult in place, returning false if the
// result should be discarded entirely (filler-only or empty).
func (f *Filter) FilterResult(result *engine.STTResult) bool {
	if result == nil {
		return false
	}
	cleaned, hasMeaningful := f.Clean(result.Text)
	result.Text = cleaned
	return hasMeaningful
}

// FragmentBuffer accumulates transcribed speech fragments until enough words
// have arrived or a pause is detected, so incomplete thoughts are not passed
// on mid-utterance.
type FragmentBuffer struct {
	mu           sync.Mutex
	buffer       strings.Builder
	lastAddTime  int64
	timeoutNs    int64
	minWordCount int
	currentWords int
	timeProvider func() int64
}

// FragmentBufferConfig holds configuration for FragmentBuffer.
type FragmentBufferConfig struct {
	TimeoutMs    int64
	MinWordCount int
}

// DefaultFragmentConfig returns sensible defaults for fragment accumulation.
func DefaultFragmentConfig() FragmentBufferConfig {
	return FragmentBufferConfig{TimeoutMs: 500, MinWordCount: 2}
}

// NewFragmentBuffer creates a new FragmentBuffer. If config is nil,
// defaults are used.
func NewFragmentBuffer(config *FragmentBufferConfig) *FragmentBuffer {
	cfg := DefaultFragmentConfig()
	if config != nil {
		if config.TimeoutMs > 0 {
			cfg.TimeoutMs = config.TimeoutMs
		}
		if config.MinWordCount > 0 {
			cfg.MinWordCount = config.MinWordCount
		}
	}

	return &FragmentBuffer{
		timeoutNs:    cfg.TimeoutMs * 1e6,
		minWordCount: cfg.MinWordCount,
		timeProvider: timeNowNano,
	}
}

var timeNowNano = func() int64 {
	return time.Now().UnixNano()
}

// Add appends a fragment to the buffer. Returns true if the fragment was
// non-empty after trimming.
func (fb *FragmentBuffer) Add(fragment string) bool {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return false
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.buffer.Len() > 0 {
		fb.buffer.WriteString(" ")
	}
	fb.buffer.WriteString(fragment)
	fb.currentWords += countWords(fragment)
	fb.lastAddTime = fb.timeProvider()

	return true
}

func countWords(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	return len(strings.Fields(s))
}

// ShouldSend reports whether the buffer holds enough content to flush: the
// word count has reached the minimum, or the pause since the last fragment
// has exceeded the configured timeout.
func (fb *FragmentBuffer) ShouldSend() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.buffer.Len() == 0 {
		return false
	}
	if fb.currentWords >= fb.minWordCount {
		return true
	}
	if fb.timeProvider()-fb.lastAddTime >= fb.timeoutNs {
		return true
	}
	return false
}

// Flush returns the accumulated text and clears the buffer.
func (fb *FragmentBuffer) Flush() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	result := fb.buffer.String()
	fb.buffer.Reset()
	fb.currentWords = 0
	fb.lastAddTime = 0
	return result
}

// Peek returns the current buffer content without clearing it.
func (fb *FragmentBuffer) Peek() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.buffer.String()
}

// WordCount returns the current word count in the buffer.
func (fb *FragmentBuffer) WordCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.currentWords
}

// IsEmpty returns true if the buffer contains no content.
func (fb *FragmentBuffer) IsEmpty() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.buffer.Len() == 0
}

// SetTimeout updates the timeout in milliseconds.
func (fb *FragmentBuffer) SetTimeout(timeoutMs int64) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.timeoutNs = timeoutMs * 1e6
}

// SetMinWordCount updates the minimum word count threshold.
func (fb *FragmentBuffer) SetMinWordCount(count int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if count > 0 {
		fb.minWordCount = count
	}
}

// GetConfig returns the current configuration.
func (fb *FragmentBuffer) GetConfig() FragmentBufferConfig {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return FragmentBufferConfig{
		TimeoutMs:    fb.timeoutNs / 1e6,
		MinWordCount: fb.minWordCount,
	}
}
