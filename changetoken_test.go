package filewarden

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCallbackChangeToken(t *testing.T) {
	token := NewCallbackChangeToken()

	if token.HasChanged() {
		t.Error("fresh token should not report a change")
	}
	if !token.ActiveChangeCallbacks() {
		t.Error("callback tokens support callbacks")
	}

	var fired atomic.Int32
	unregister := token.RegisterChangeCallback(func() { fired.Add(1) })

	token.SignalChange()
	if !token.HasChanged() {
		t.Error("HasChanged() should be true after SignalChange")
	}
	if fired.Load() != 1 {
		t.Errorf("callback fired %d times, want 1", fired.Load())
	}

	// Signalling twice does not re-fire callbacks.
	token.SignalChange()
	if fired.Load() != 1 {
		t.Errorf("callback fired %d times after second signal, want 1", fired.Load())
	}

	unregister()
}

func TestCallbackChangeTokenUnregister(t *testing.T) {
	token := NewCallbackChangeToken()

	var fired atomic.Int32
	unregister := token.RegisterChangeCallback(func() { fired.Add(1) })
	unregister()

	token.SignalChange()
	if fired.Load() != 0 {
		t.Error("unregistered callback must not fire")
	}
}

func TestOnChangeRearms(t *testing.T) {
	tokens := make(chan *CallbackChangeToken, 4)
	produced := 0

	producer := func() (ChangeToken, error) {
		produced++
		token := NewCallbackChangeToken()
		tokens <- token
		return token, nil
	}

	changes := make(chan struct{}, 4)
	cancel := OnChange(producer, func() { changes <- struct{}{} })
	defer cancel()

	first := <-tokens
	// Give the watcher a moment to register its callback; a token
	// signalled before registration stays silent.
	time.Sleep(50 * time.Millisecond)
	first.SignalChange()

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("change action never fired")
	}

	// A fresh token is produced after each change.
	select {
	case second := <-tokens:
		time.Sleep(50 * time.Millisecond)
		second.SignalChange()
	case <-time.After(time.Second):
		t.Fatal("OnChange did not re-arm")
	}

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("change action did not fire on the re-armed token")
	}
}

func TestStaticChangeTokens(t *testing.T) {
	if !(CancelledChangeToken{}).HasChanged() {
		t.Error("cancelled token always reports changed")
	}
	if (NeverChangeToken{}).HasChanged() {
		t.Error("never token never reports changed")
	}
	if (NeverChangeToken{}).ActiveChangeCallbacks() {
		t.Error("never token has no callbacks")
	}
}
