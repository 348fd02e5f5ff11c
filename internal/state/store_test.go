package state

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStoreInitialSnapshot(t *testing.T) {
	store := NewStore()

	snap := store.Current()
	if snap.IsInitialized {
		t.Error("fresh store must not report initialized")
	}
	if snap.Volume != 1.0 {
		t.Errorf("expected default volume 1.0, got %f", snap.Volume)
	}
	if snap.PlaybackSpeed != 1.0 {
		t.Errorf("expected default speed 1.0, got %f", snap.PlaybackSpeed)
	}
	if snap.ActiveVideoTrack != NoneTrack || snap.ActiveAudioTrack != NoneTrack || snap.ActiveSubtitleTrack != NoneTrack {
		t.Error("fresh store must have no active tracks")
	}
}

func TestStoreApplyNotifiesObservers(t *testing.T) {
	store := NewStore()

	var seen []Snapshot
	store.Subscribe(func(s Snapshot) {
		seen = append(seen, s)
	})

	store.Apply(func(s Snapshot) Snapshot {
		s.IsPlaying = true
		return s
	})

	// Initial snapshot on subscribe plus one transition.
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if !seen[1].IsPlaying {
		t.Error("observer did not receive the transitioned snapshot")
	}
}

func TestStoreApplySkipsRedundantNotifications(t *testing.T) {
	store := NewStore()

	notifications := 0
	store.Subscribe(func(Snapshot) { notifications++ })

	// Identity transition: structurally equal result, no notification.
	store.Apply(func(s Snapshot) Snapshot { return s })
	store.Apply(func(s Snapshot) Snapshot {
		s.Volume = 1.0 // already the default
		return s
	})

	if notifications != 1 {
		t.Errorf("expected only the subscribe notification, got %d", notifications)
	}
}

func TestStoreUnsubscribe(t *testing.T) {
	store := NewStore()

	notifications := 0
	unsubscribe := store.Subscribe(func(Snapshot) { notifications++ })
	unsubscribe()

	store.Apply(func(s Snapshot) Snapshot {
		s.IsPlaying = true
		return s
	})

	if notifications != 1 {
		t.Errorf("unsubscribed observer was notified, count %d", notifications)
	}
}

func TestStoreDisposeStopsNotifications(t *testing.T) {
	store := NewStore()

	notifications := 0
	store.Subscribe(func(Snapshot) { notifications++ })

	store.Dispose()
	before := store.Current()

	after := store.Apply(func(s Snapshot) Snapshot {
		s.IsPlaying = true
		return s
	})

	if notifications != 1 {
		t.Errorf("observer notified after dispose, count %d", notifications)
	}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("apply after dispose changed the snapshot (-before +after):\n%s", diff)
	}
}

func TestStoreDisposeIdempotent(t *testing.T) {
	store := NewStore()
	store.Dispose()
	store.Dispose() // must not panic or misbehave
}

func TestStoreSubscribeAfterDispose(t *testing.T) {
	store := NewStore()
	store.Dispose()

	called := false
	unsubscribe := store.Subscribe(func(Snapshot) { called = true })
	unsubscribe()

	if called {
		t.Error("observer subscribed after dispose must never fire")
	}
}

func TestStoreConcurrentApplySerialized(t *testing.T) {
	store := NewStore()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				store.Apply(func(s Snapshot) Snapshot {
					s.Position += time.Millisecond
					return s
				})
			}
		}()
	}
	wg.Wait()

	expected := time.Duration(workers*perWorker) * time.Millisecond
	if got := store.Current().Position; got != expected {
		t.Errorf("lost transitions: position %v, want %v", got, expected)
	}
}
