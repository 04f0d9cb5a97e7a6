package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// CreateConversation inserts the conversation and both participant rows in
// one transaction. A unique-constraint failure on PairKey means another
// caller won the race; the caller is expected to re-read and adopt that row.
func (r *Repo) CreateConversation(ctx context.Context, conv *Conversation, participants []Participant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		return tx.Create(&participants).Error
	})
}

func (r *Repo) GetByPairKey(ctx context.Context, pairKey string) (*Conversation, error) {
	var conv Conversation
	if err := r.db.WithContext(ctx).First(&conv, "pair_key = ?", pairKey).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *Repo) GetParticipant(ctx context.Context, convID, userID string) (*Participant, error) {
	var p Participant
	err := r.db.WithContext(ctx).
		First(&p, "conversation_id = ? AND user_id = ?", convID, userID).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Participants(ctx context.Context, convID string) ([]Participant, error) {
	var out []Participant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Find(&out).Error
	return out, err
}

// ListConversations returns the user's non-archived conversations ordered by
// recency.
func (r *Repo) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	var out []Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ? AND p.is_archived = ?", userID, false).
		Order("conversations.last_message_at DESC").
		Find(&out).Error
	return out, err
}

// AdvanceLastRead moves last_read_at forward only; a timestamp at or behind
// the stored value changes nothing.
func (r *Repo) AdvanceLastRead(ctx context.Context, convID, userID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Participant{}).
		Where("conversation_id = ? AND user_id = ? AND last_read_at < ?", convID, userID, at).
		Update("last_read_at", at).Error
}

// AppendMessage inserts the message and bumps the parent conversation's
// recency columns atomically.
func (r *Repo) AppendMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&Conversation{}).
			Where("id = ?", m.ConversationID).
			Updates(map[string]any{
				"last_message_at":      m.CreatedAt,
				"last_message_preview": Preview(m.Content),
			}).Error
	})
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) MarkMessageDeleted(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", id).
		Update("is_deleted", true).Error
}

// ListMessages returns non-deleted messages in ascending order. afterID
// pages forward through history; id order matches creation order for rows
// sharing a created_at.
func (r *Repo) ListMessages(ctx context.Context, convID string, limit int, afterID string) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_deleted = ?", convID, false).
		Order("created_at ASC, id ASC").
		Limit(limit)
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// UnreadCount counts messages another participant sent after the reader's
// last_read_at, excluding tombstones.
func (r *Repo) UnreadCount(ctx context.Context, convID, userID string, lastReadAt time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_deleted = ? AND created_at > ?",
			convID, userID, false, lastReadAt).
		Count(&n).Error
	return n, err
}

func (r *Repo) GetReaction(ctx context.Context, messageID, userID string) (*MessageReaction, error) {
	var re MessageReaction
	err := r.db.WithContext(ctx).
		First(&re, "message_id = ? AND user_id = ?", messageID, userID).Error
	if err != nil {
		return nil, err
	}
	return &re, nil
}

func (r *Repo) InsertReaction(ctx context.Context, re *MessageReaction) error {
	return r.db.WithContext(ctx).Create(re).Error
}

func (r *Repo) ReplaceReaction(ctx context.Context, messageID, userID, reaction string) error {
	return r.db.WithContext(ctx).Model(&MessageReaction{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Update("reaction", reaction).Error
}

func (r *Repo) DeleteReaction(ctx context.Context, messageID, userID string) error {
	return r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&MessageReaction{}).Error
}

func (r *Repo) ListReactions(ctx context.Context, messageID string) ([]MessageReaction, error) {
	var out []MessageReaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Find(&out).Error
	return out, err
}
