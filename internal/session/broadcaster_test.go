package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records messages and can be told to fail.
type fakeSender struct {
	mu     sync.Mutex
	msgs   []Outbound
	fail   bool
	closed bool
}

func (f *fakeSender) Send(msg Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send failed")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) received() []Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Outbound(nil), f.msgs...)
}

// TestViewerAdmission verifies a joining viewer gets the config snapshot
// and the cached results, in order, before anything live.
func TestViewerAdmission(t *testing.T) {
	b := NewBroadcaster("s1")
	b.Publish(NewConfig([]string{"en"}))
	b.Publish(NewFinalResult("안녕하세요.", "1"))
	b.Publish(NewTranslationResult("1", "en", "Hello."))

	v := &fakeSender{}
	require.NoError(t, b.AddViewer(v))

	got := v.received()
	require.Len(t, got, 3)
	assert.Equal(t, NewConfig([]string{"en"}), got[0])
	assert.Equal(t, NewFinalResult("안녕하세요.", "1"), got[1])
	assert.Equal(t, NewTranslationResult("1", "en", "Hello."), got[2])
	assert.Equal(t, 1, b.ViewerCount())
}

// TestViewerAdmissionEmptySession verifies a viewer on a fresh session gets
// an empty-languages config and nothing else.
func TestViewerAdmissionEmptySession(t *testing.T) {
	b := NewBroadcaster("s1")

	v := &fakeSender{}
	require.NoError(t, b.AddViewer(v))

	got := v.received()
	require.Len(t, got, 1)
	assert.Equal(t, NewConfig(nil), got[0])
}

// TestCacheEviction verifies the replay cache holds at most 8 results,
// oldest evicted first.
func TestCacheEviction(t *testing.T) {
	b := NewBroadcaster("s1")
	for i := 0; i < 12; i++ {
		b.Publish(NewFinalResult(fmt.Sprintf("문장 %d", i), fmt.Sprintf("%d", i)))
	}

	v := &fakeSender{}
	require.NoError(t, b.AddViewer(v))

	got := v.received()
	require.Len(t, got, 9) // config + 8 cached results
	first := got[1].(FinalResult)
	last := got[8].(FinalResult)
	assert.Equal(t, "4", first.ID)
	assert.Equal(t, "11", last.ID)
}

// TestConfigClearsCache verifies publishing a config message resets the
// replay cache.
func TestConfigClearsCache(t *testing.T) {
	b := NewBroadcaster("s1")
	b.Publish(NewFinalResult("이전 문장입니다.", "1"))
	b.Publish(NewConfig([]string{"ja"}))

	v := &fakeSender{}
	require.NoError(t, b.AddViewer(v))

	got := v.received()
	require.Len(t, got, 1)
	assert.Equal(t, NewConfig([]string{"ja"}), got[0])
}

// TestInterimNotCached verifies interim results flow to live viewers but
// never reach the replay cache.
func TestInterimNotCached(t *testing.T) {
	b := NewBroadcaster("s1")

	live := &fakeSender{}
	require.NoError(t, b.AddViewer(live))
	b.Publish(NewInterimResult("안녕"))

	late := &fakeSender{}
	require.NoError(t, b.AddViewer(late))

	assert.Contains(t, live.received(), NewInterimResult("안녕"))
	require.Len(t, late.received(), 1) // config only
}

// TestFailedViewerDropped verifies a failing send closes and removes that
// viewer while others keep receiving.
func TestFailedViewerDropped(t *testing.T) {
	b := NewBroadcaster("s1")

	healthy := &fakeSender{}
	broken := &fakeSender{fail: true}
	require.NoError(t, b.AddViewer(healthy))
	broken.fail = false
	require.NoError(t, b.AddViewer(broken))
	broken.fail = true

	b.Publish(NewFinalResult("문장입니다.", "1"))

	assert.Equal(t, 1, b.ViewerCount())
	assert.True(t, broken.closed)
	assert.Contains(t, healthy.received(), NewFinalResult("문장입니다.", "1"))
}
