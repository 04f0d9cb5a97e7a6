package feed

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Subscription is one live handle onto the feed. Events arrive on C until
// Unsubscribe closes it. A subscription that stops draining C is dropped by
// the broker once its buffer fills.
type Subscription struct {
	UserID string
	C      chan Event

	id     uint64
	scopes map[string]struct{}
	closed bool
}

// Broker multiplexes change events over many concurrent subscriptions.
// Guarantees: at-least-once delivery to every subscription whose scope set
// matches at publish time; no replay for later subscribers; publishers are
// never blocked by a slow consumer.
type Broker struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]*Subscription
	byScope map[string]map[uint64]*Subscription
	buffer  int
	logger  *zap.Logger
}

func NewBroker(buffer int, logger *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:    make(map[uint64]*Subscription),
		byScope: make(map[string]map[uint64]*Subscription),
		buffer:  buffer,
		logger:  logger,
	}
}

func (b *Broker) Subscribe(userID string, scopes ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		UserID: userID,
		C:      make(chan Event, b.buffer),
		id:     b.nextID,
		scopes: make(map[string]struct{}),
	}
	b.subs[sub.id] = sub
	for _, s := range scopes {
		b.addScopeLocked(sub, s)
	}
	return sub
}

// AddScopes attaches further scopes to an existing subscription. No-op on a
// closed subscription.
func (b *Broker) AddScopes(sub *Subscription, scopes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	for _, s := range scopes {
		b.addScopeLocked(sub, s)
	}
}

func (b *Broker) RemoveScopes(sub *Subscription, scopes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range scopes {
		b.removeScopeLocked(sub, s)
	}
}

func (b *Broker) addScopeLocked(sub *Subscription, scope string) {
	if _, ok := sub.scopes[scope]; ok {
		return
	}
	sub.scopes[scope] = struct{}{}
	set := b.byScope[scope]
	if set == nil {
		set = make(map[uint64]*Subscription)
		b.byScope[scope] = set
	}
	set[sub.id] = sub
}

func (b *Broker) removeScopeLocked(sub *Subscription, scope string) {
	delete(sub.scopes, scope)
	if set, ok := b.byScope[scope]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(b.byScope, scope)
		}
	}
}

// Unsubscribe releases the handle and closes its channel. Safe to call more
// than once.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(sub)
}

func (b *Broker) dropLocked(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	for scope := range sub.scopes {
		b.removeScopeLocked(sub, scope)
	}
	delete(b.subs, sub.id)
	close(sub.C)
}

// Publish delivers ev to every subscription matching scope. Subscriptions
// whose buffer is full are dropped rather than awaited.
func (b *Broker) Publish(scope string, ev Event) {
	ev.Scope = scope

	b.mu.Lock()
	defer b.mu.Unlock()

	var stalled []*Subscription
	for _, sub := range b.matchLocked(scope) {
		select {
		case sub.C <- ev:
		default:
			stalled = append(stalled, sub)
		}
	}
	for _, sub := range stalled {
		b.logger.Warn("dropping stalled feed subscriber",
			zap.String("user_id", sub.UserID),
			zap.String("scope", scope),
		)
		b.dropLocked(sub)
	}
}

func (b *Broker) matchLocked(scope string) []*Subscription {
	var out []*Subscription
	seen := make(map[uint64]struct{})
	collect := func(set map[uint64]*Subscription) {
		for id, sub := range set {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, sub)
		}
	}

	collect(b.byScope[scope])
	for pattern, set := range b.byScope {
		if !strings.HasSuffix(pattern, ":*") {
			continue
		}
		if strings.HasPrefix(scope, strings.TrimSuffix(pattern, "*")) {
			collect(set)
		}
	}
	return out
}

// HasSubscriber reports whether userID currently holds a subscription
// matching scope. Used as a best-effort "is this view open" check by the
// notification fan-out.
func (b *Broker) HasSubscriber(scope, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.matchLocked(scope) {
		if sub.UserID == userID {
			return true
		}
	}
	return false
}
