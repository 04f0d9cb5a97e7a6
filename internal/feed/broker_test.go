package feed

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestPublishReachesMatchingSubscribers(t *testing.T) {
	b := NewBroker(8, nil)

	convSub := b.Subscribe("u1", ConversationScope("c1"))
	otherSub := b.Subscribe("u2", ConversationScope("c2"))

	b.Publish(ConversationScope("c1"), Event{Kind: KindMessageCreated, EntityID: "m1"})

	select {
	case ev := <-convSub.C:
		if ev.Kind != KindMessageCreated || ev.EntityID != "m1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Scope != ConversationScope("c1") {
			t.Fatalf("expected scope to be set on delivery, got %q", ev.Scope)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event on matching subscription")
	}

	select {
	case ev := <-otherSub.C:
		t.Fatalf("subscriber on another scope received event: %+v", ev)
	default:
	}
}

func TestWildcardScopeMatches(t *testing.T) {
	b := NewBroker(8, nil)

	sub := b.Subscribe("u1", "conversation:*")
	b.Publish(ConversationScope("c9"), Event{Kind: KindMessageCreated})

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("wildcard subscription did not receive event")
	}
}

func TestStalledSubscriberIsDropped(t *testing.T) {
	b := NewBroker(1, nil)

	stalled := b.Subscribe("u1", ForumScope)
	healthy := b.Subscribe("u2", ForumScope)

	// Fill the stalled subscriber's buffer, then publish once more.
	b.Publish(ForumScope, Event{Kind: KindPostCreated, EntityID: "p1"})
	b.Publish(ForumScope, Event{Kind: KindPostCreated, EntityID: "p2"})

	// The stalled channel must be closed after draining its buffered event.
	<-stalled.C
	if _, open := <-stalled.C; open {
		t.Fatal("expected stalled subscription channel to be closed")
	}

	// The healthy subscriber keeps receiving.
	drain(t, healthy.C, 2)
	b.Publish(ForumScope, Event{Kind: KindPostCreated, EntityID: "p3"})
	drain(t, healthy.C, 1)
}

func drain(t *testing.T, c chan Event, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c:
		case <-time.After(time.Second):
			t.Fatalf("expected %d events, got %d", n, i)
		}
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroker(8, nil)
	sub := b.Subscribe("u1", PresenceScope)
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	// Publishing after unsubscribe must not panic and must not deliver.
	b.Publish(PresenceScope, Event{Kind: KindPresenceChanged})
	if _, open := <-sub.C; open {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestHasSubscriber(t *testing.T) {
	b := NewBroker(8, nil)
	sub := b.Subscribe("u1", ConversationScope("c1"))

	if !b.HasSubscriber(ConversationScope("c1"), "u1") {
		t.Fatal("expected subscriber on open conversation")
	}
	if b.HasSubscriber(ConversationScope("c1"), "u2") {
		t.Fatal("unexpected subscriber for other user")
	}
	if b.HasSubscriber(ConversationScope("c2"), "u1") {
		t.Fatal("unexpected subscriber on other conversation")
	}

	b.Unsubscribe(sub)
	if b.HasSubscriber(ConversationScope("c1"), "u1") {
		t.Fatal("expected no subscriber after unsubscribe")
	}
}

func TestAddRemoveScopes(t *testing.T) {
	b := NewBroker(8, nil)
	sub := b.Subscribe("u1")

	b.AddScopes(sub, ForumScope)
	b.Publish(ForumScope, Event{Kind: KindPostCreated})
	drain(t, sub.C, 1)

	b.RemoveScopes(sub, ForumScope)
	b.Publish(ForumScope, Event{Kind: KindPostCreated})
	select {
	case ev := <-sub.C:
		t.Fatalf("received event after scope removal: %+v", ev)
	default:
	}
}

func TestConcurrentPublishSubscribe(t *testing.T) {
	b := NewBroker(256, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				scope := ConversationScope(fmt.Sprintf("c%d", j%4))
				sub := b.Subscribe(fmt.Sprintf("u%d", n), scope)
				b.Publish(scope, Event{Kind: KindMessageCreated})
				b.Unsubscribe(sub)
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(ConversationScope("c0"), Event{Kind: KindMessageCreated})
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Let the subscriber goroutines finish, then stop the publisher.
	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-time.After(10 * time.Millisecond):
			if i == 0 {
				close(stop)
			}
		}
		if i > 1000 {
			t.Fatal("concurrent broker operations did not finish")
		}
	}
}
