package dialog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, VerdictBack, Classify(CallbackInput{Key: "nav", Payload: "back"}))
	assert.Equal(t, VerdictAbort, Classify(CallbackInput{Key: "nav", Payload: "abort"}))
	assert.Equal(t, VerdictNone, Classify(CallbackInput{Key: "nav", Payload: "other"}))
	assert.Equal(t, VerdictNone, Classify(CallbackInput{Key: "preset", Payload: "back"}))

	assert.Equal(t, VerdictBack, Classify(TextInput{Text: "nav:back"}))
	assert.Equal(t, VerdictAbort, Classify(TextInput{Text: " nav:abort "}))
	assert.Equal(t, VerdictNone, Classify(TextInput{Text: "ciao"}))

	assert.Equal(t, VerdictNone, Classify(PhotoInput{FileID: "f1"}))
}

func TestEngineStartAndResume(t *testing.T) {
	e := NewEngine()
	defer e.Close()

	got := make(chan Interaction, 1)
	require.NoError(t, e.Start(10, 42, "test", func(r *Run) {
		if in, ok := r.Wait(); ok {
			got <- in
		}
	}))

	assert.True(t, e.Active(10))
	assert.False(t, e.Active(11))

	session, ok := e.Registry().Lookup(10)
	require.True(t, ok)
	require.True(t, session.deliver(TextInput{From: 42, Text: "ciao"}))

	select {
	case in := <-got:
		text, ok := in.(TextInput)
		require.True(t, ok)
		assert.Equal(t, "ciao", text.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("flow did not receive interaction")
	}
}

func TestEngineRejectsConcurrentFlow(t *testing.T) {
	e := NewEngine()
	defer e.Close()

	release := make(chan struct{})
	require.NoError(t, e.Start(10, 42, "first", func(r *Run) {
		<-release
	}))

	err := e.Start(10, 42, "second", func(r *Run) {})
	require.Error(t, err)

	close(release)
	waitInactive(t, e, 10)

	// After the first flow finishes the conversation is free again.
	done := make(chan struct{})
	require.NoError(t, e.Start(10, 42, "third", func(r *Run) { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("third flow never ran")
	}
}

func TestEngineCloseUnblocksWait(t *testing.T) {
	e := NewEngine()

	ended := make(chan bool, 1)
	require.NoError(t, e.Start(10, 42, "test", func(r *Run) {
		_, ok := r.Wait()
		ended <- ok
	}))

	e.Close()

	select {
	case ok := <-ended:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("flow still blocked after close")
	}
}

func TestSessionInboxDropsWhenSaturated(t *testing.T) {
	e := NewEngine()
	defer e.Close()

	block := make(chan struct{})
	require.NoError(t, e.Start(10, 42, "test", func(r *Run) {
		<-block
	}))

	session, ok := e.Registry().Lookup(10)
	require.True(t, ok)
	for i := 0; i < inboxCapacity*2; i++ {
		// Delivery keeps reporting consumption even when dropping.
		assert.True(t, session.deliver(TextInput{From: 42, Text: "x"}))
	}
	close(block)
}

func TestFlowPanicReleasesSession(t *testing.T) {
	e := NewEngine()
	defer e.Close()

	require.NoError(t, e.Start(10, 42, "test", func(r *Run) {
		panic("boom")
	}))

	waitInactive(t, e, 10)
	require.NoError(t, e.Start(10, 42, "again", func(r *Run) {}))
}

func waitInactive(t *testing.T, e *Engine, conv int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !e.Active(conv) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("conversation %d still active", conv)
}
