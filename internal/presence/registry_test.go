package presence

import (
	"testing"
	"time"

	"github.com/classhive/collab/internal/feed"
)

func TestQueryComputesOfflineAfterTTL(t *testing.T) {
	r := NewRegistry(60*time.Second, nil, nil)

	if err := r.Heartbeat("u1", StatusOnline, "", time.Now().Add(-2*time.Minute)); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := r.Heartbeat("u2", StatusBusy, "in class", time.Now()); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	recs := r.Query([]string{"u1", "u2", "u3"})
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if recs[0].Status != StatusOffline {
		t.Fatalf("stale heartbeat should read offline, got %q", recs[0].Status)
	}
	if recs[1].Status != StatusBusy || recs[1].StatusMessage != "in class" {
		t.Fatalf("unexpected fresh record: %+v", recs[1])
	}
	if recs[2].Status != StatusOffline {
		t.Fatalf("unknown user should read offline, got %q", recs[2].Status)
	}
}

func TestOutOfOrderHeartbeatKeepsLatest(t *testing.T) {
	r := NewRegistry(60*time.Second, nil, nil)

	now := time.Now()
	if err := r.Heartbeat("u1", StatusAway, "", now); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	// An older heartbeat arriving late must not win.
	if err := r.Heartbeat("u1", StatusOnline, "", now.Add(-10*time.Second)); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	recs := r.Query([]string{"u1"})
	if recs[0].Status != StatusAway {
		t.Fatalf("expected away to survive out-of-order heartbeat, got %q", recs[0].Status)
	}
}

func TestHeartbeatValidation(t *testing.T) {
	r := NewRegistry(60*time.Second, nil, nil)

	if err := r.Heartbeat("", StatusOnline, "", time.Now()); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if err := r.Heartbeat("u1", Status("sleeping"), "", time.Now()); err == nil {
		t.Fatal("expected error for invalid status")
	}
	// Empty status defaults to online.
	if err := r.Heartbeat("u1", "", "", time.Now()); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if got := r.Query([]string{"u1"})[0].Status; got != StatusOnline {
		t.Fatalf("expected default online, got %q", got)
	}
}

func TestSweepPublishesOffline(t *testing.T) {
	broker := feed.NewBroker(8, nil)
	sub := broker.Subscribe("watcher", feed.PresenceScope)

	r := NewRegistry(60*time.Second, broker, nil)
	now := time.Now()
	if err := r.Heartbeat("u1", StatusOnline, "", now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	// Drain the online transition event.
	<-sub.C

	r.Sweep(now)

	select {
	case ev := <-sub.C:
		if ev.Kind != feed.KindPresenceChanged || ev.EntityID != "u1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected presence event from sweep")
	}

	if got := r.Query([]string{"u1"})[0].Status; got != StatusOffline {
		t.Fatalf("expected offline after sweep, got %q", got)
	}
}

func TestStatusChangePublishes(t *testing.T) {
	broker := feed.NewBroker(8, nil)
	sub := broker.Subscribe("watcher", feed.PresenceScope)

	r := NewRegistry(60*time.Second, broker, nil)
	now := time.Now()
	if err := r.Heartbeat("u1", StatusOnline, "", now); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	<-sub.C

	// Refresh with the same status: no event.
	if err := r.Heartbeat("u1", StatusOnline, "", now.Add(time.Second)); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event for unchanged status: %+v", ev)
	default:
	}

	// Status change: event.
	if err := r.Heartbeat("u1", StatusBusy, "", now.Add(2*time.Second)); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("expected event for status change")
	}
}
