package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/feed"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

type Record struct {
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	StatusMessage   string    `json:"status_message,omitempty"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// Registry is the per-process, in-memory presence map. It is best effort:
// state is rebuilt from heartbeats after a restart and is never a source of
// truth for anything durable.
type Registry struct {
	mu      sync.Mutex
	records map[string]Record
	ttl     time.Duration
	broker  *feed.Broker
	logger  *zap.Logger
}

func NewRegistry(ttl time.Duration, broker *feed.Broker, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		records: make(map[string]Record),
		ttl:     ttl,
		broker:  broker,
		logger:  logger,
	}
}

// Heartbeat records the user's current status. Heartbeats carry no ordering
// requirement: one carrying an older timestamp than the stored record is
// discarded, so out-of-order delivery resolves to the latest state.
func (r *Registry) Heartbeat(userID string, status Status, statusMessage string, at time.Time) error {
	if userID == "" {
		return common.Validationf("user id required")
	}
	if status == "" {
		status = StatusOnline
	}
	if !ValidStatus(status) {
		return common.Validationf("invalid presence status %q", status)
	}

	r.mu.Lock()
	prev, exists := r.records[userID]
	if exists && prev.LastHeartbeatAt.After(at) {
		r.mu.Unlock()
		return nil
	}
	rec := Record{
		UserID:          userID,
		Status:          status,
		StatusMessage:   statusMessage,
		LastHeartbeatAt: at,
	}
	r.records[userID] = rec
	changed := !exists || prev.Status != status
	r.mu.Unlock()

	if changed {
		r.publish(userID)
	}
	return nil
}

// Query returns the effective status for each requested user. Users whose
// last heartbeat is older than the TTL, or who never sent one, are reported
// offline even though no explicit offline event ever arrived.
func (r *Registry) Query(userIDs []string) []Record {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0, len(userIDs))
	for _, id := range userIDs {
		rec, ok := r.records[id]
		if !ok || now.Sub(rec.LastHeartbeatAt) > r.ttl {
			out = append(out, Record{UserID: id, Status: StatusOffline})
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Sweep expires records whose heartbeat age exceeds the TTL, publishing an
// offline transition for each. Expired records are removed; Query reports
// unknown users as offline anyway.
func (r *Registry) Sweep(now time.Time) {
	r.mu.Lock()
	var expired []string
	for id, rec := range r.records {
		if now.Sub(rec.LastHeartbeatAt) > r.ttl {
			delete(r.records, id)
			if rec.Status != StatusOffline {
				expired = append(expired, id)
			}
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.publish(id)
	}
	if len(expired) > 0 {
		r.logger.Debug("presence sweep expired users", zap.Int("count", len(expired)))
	}
}

// Run drives periodic sweeps until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *Registry) publish(userID string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(feed.PresenceScope, feed.Event{
		Kind:     feed.KindPresenceChanged,
		EntityID: userID,
		At:       time.Now(),
	})
}
