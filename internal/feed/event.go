package feed

import "time"

// Event kinds published by the collaboration services.
const (
	KindMessageCreated   = "message.created"
	KindMessageDeleted   = "message.deleted"
	KindReactionChanged  = "reaction.changed"
	KindConversationRead = "conversation.read"

	KindPostCreated    = "post.created"
	KindCommentCreated = "comment.created"
	KindPostPinned     = "post.pinned"

	KindPresenceChanged    = "presence.changed"
	KindNotificationCreated = "notification.created"
)

// Event is a change signal, not a data carrier. Delivery is at-least-once
// and events may arrive duplicated or stale; consumers re-fetch current
// state by EntityID instead of trusting the payload.
type Event struct {
	Scope    string    `json:"scope"`
	Kind     string    `json:"kind"`
	EntityID string    `json:"entity_id,omitempty"`
	ActorID  string    `json:"actor_id,omitempty"`
	At       time.Time `json:"at"`
}

// Scope constructors. Scopes are hierarchical strings; a subscription scope
// ending in ":*" matches every concrete scope sharing its prefix.
func ConversationScope(id string) string { return "conversation:" + id }

func NotificationScope(userID string) string { return "notifications:" + userID }

const (
	ForumScope    = "forum:posts"
	PresenceScope = "presence:all"
)
