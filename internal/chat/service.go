package chat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/feed"
	"github.com/classhive/collab/internal/users"
)

// ConversationView is one row of the conversation list: the conversation
// joined with the other participant's profile and the computed unread count.
type ConversationView struct {
	Conversation
	Other       *users.User `json:"other,omitempty"`
	UnreadCount int64       `json:"unread_count"`
}

type Service struct {
	repo   *Repo
	users  *users.Repo
	broker *feed.Broker
	logger *zap.Logger
}

func NewService(repo *Repo, usersRepo *users.Repo, broker *feed.Broker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, users: usersRepo, broker: broker, logger: logger}
}

// GetOrCreate returns the single conversation for the unordered pair
// {userA, userB}, creating it if absent. Two near-simultaneous calls from
// both sides converge on one row: the insert is guarded by the unique
// pair-key index, and the loser of the race adopts the winner's row instead
// of surfacing a conflict.
func (s *Service) GetOrCreate(ctx context.Context, userA, userB string) (*Conversation, error) {
	if userA == "" || userB == "" {
		return nil, common.Validationf("both participants required")
	}
	if userA == userB {
		return nil, common.Validationf("cannot start a conversation with yourself")
	}

	key := PairKey(userA, userB)
	if conv, err := s.repo.GetByPairKey(ctx, key); err == nil {
		return conv, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.Unavailable("conversation lookup failed", err)
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	conv := &Conversation{
		ID:            id,
		PairKey:       key,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	participants := []Participant{
		{ConversationID: id, UserID: userA, LastReadAt: now},
		{ConversationID: id, UserID: userB, LastReadAt: now},
	}

	createErr := s.repo.CreateConversation(ctx, conv, participants)
	if createErr == nil {
		return conv, nil
	}

	// Likely lost the race; adopt the winner's row.
	existing, getErr := s.repo.GetByPairKey(ctx, key)
	if getErr == nil {
		return existing, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, common.Unavailable("conversation create failed", createErr)
	}
	return nil, common.Unavailable("conversation lookup failed", getErr)
}

// ListForUser returns non-archived conversations newest-first with unread
// counts and the other participant's profile.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]ConversationView, error) {
	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, common.Unavailable("conversation list failed", err)
	}

	out := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		view := ConversationView{Conversation: conv}

		parts, err := s.repo.Participants(ctx, conv.ID)
		if err != nil {
			return nil, common.Unavailable("participant load failed", err)
		}
		var self *Participant
		for i := range parts {
			p := parts[i]
			if p.UserID == userID {
				self = &p
				continue
			}
			if other, err := s.users.GetByID(ctx, p.UserID); err == nil {
				view.Other = other
			}
		}
		if self != nil {
			n, err := s.repo.UnreadCount(ctx, conv.ID, userID, self.LastReadAt)
			if err != nil {
				return nil, common.Unavailable("unread count failed", err)
			}
			view.UnreadCount = n
		}
		out = append(out, view)
	}
	return out, nil
}

// MarkRead advances the reader's last_read_at to now. A call that would move
// it backward is a no-op, never an error.
func (s *Service) MarkRead(ctx context.Context, convID, userID string) error {
	if _, err := s.participantOf(ctx, convID, userID); err != nil {
		return err
	}
	if err := s.repo.AdvanceLastRead(ctx, convID, userID, time.Now()); err != nil {
		return common.Unavailable("mark read failed", err)
	}
	s.broker.Publish(feed.ConversationScope(convID), feed.Event{
		Kind:     feed.KindConversationRead,
		EntityID: convID,
		ActorID:  userID,
		At:       time.Now(),
	})
	return nil
}

// Send appends a message to the conversation and signals subscribers.
func (s *Service) Send(ctx context.Context, convID, senderID, content, messageType string) (*Message, error) {
	if content == "" {
		return nil, common.Validationf("message content required")
	}
	switch messageType {
	case "":
		messageType = MessageTypeText
	case MessageTypeText, MessageTypeResource:
	default:
		return nil, common.Validationf("invalid message type %q", messageType)
	}
	if _, err := s.participantOf(ctx, convID, senderID); err != nil {
		return nil, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:             id,
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, common.Unavailable("message append failed", err)
	}

	s.broker.Publish(feed.ConversationScope(convID), feed.Event{
		Kind:     feed.KindMessageCreated,
		EntityID: msg.ID,
		ActorID:  senderID,
		At:       msg.CreatedAt,
	})
	return msg, nil
}

// SoftDelete tombstones a message. Only the sender may delete; reactions and
// the row itself are kept so ordering history survives.
func (s *Service) SoftDelete(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFoundf("message not found")
		}
		return common.Unavailable("message load failed", err)
	}
	if msg.SenderID != requesterID {
		return common.Forbiddenf("only the sender can delete a message")
	}
	if msg.IsDeleted {
		return nil
	}
	if err := s.repo.MarkMessageDeleted(ctx, messageID); err != nil {
		return common.Unavailable("message delete failed", err)
	}

	s.broker.Publish(feed.ConversationScope(msg.ConversationID), feed.Event{
		Kind:     feed.KindMessageDeleted,
		EntityID: messageID,
		ActorID:  requesterID,
		At:       time.Now(),
	})
	return nil
}

// ToggleReaction applies the single-reaction-per-user law: an identical
// reaction toggles off, a different one replaces the prior value.
func (s *Service) ToggleReaction(ctx context.Context, messageID, userID, reaction string) error {
	if reaction == "" {
		return common.Validationf("reaction required")
	}
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFoundf("message not found")
		}
		return common.Unavailable("message load failed", err)
	}
	if msg.IsDeleted {
		return common.Validationf("cannot react to a deleted message")
	}
	if _, err := s.participantOf(ctx, msg.ConversationID, userID); err != nil {
		return err
	}

	existing, err := s.repo.GetReaction(ctx, messageID, userID)
	switch {
	case err == nil && existing.Reaction == reaction:
		err = s.repo.DeleteReaction(ctx, messageID, userID)
	case err == nil:
		err = s.repo.ReplaceReaction(ctx, messageID, userID, reaction)
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.repo.InsertReaction(ctx, &MessageReaction{
			MessageID: messageID,
			UserID:    userID,
			Reaction:  reaction,
			CreatedAt: time.Now(),
		})
	default:
		return common.Unavailable("reaction lookup failed", err)
	}
	if err != nil {
		return common.Unavailable("reaction update failed", err)
	}

	s.broker.Publish(feed.ConversationScope(msg.ConversationID), feed.Event{
		Kind:     feed.KindReactionChanged,
		EntityID: messageID,
		ActorID:  userID,
		At:       time.Now(),
	})
	return nil
}

// ListMessages returns the ordered, tombstone-filtered history page.
func (s *Service) ListMessages(ctx context.Context, convID, userID string, limit int, afterID string) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, err := s.participantOf(ctx, convID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, convID, limit, afterID)
	if err != nil {
		return nil, common.Unavailable("message list failed", err)
	}
	return msgs, nil
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *Service) IsParticipant(ctx context.Context, convID, userID string) bool {
	_, err := s.participantOf(ctx, convID, userID)
	return err == nil
}

func (s *Service) participantOf(ctx context.Context, convID, userID string) (*Participant, error) {
	p, err := s.repo.GetParticipant(ctx, convID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFoundf("conversation not found")
		}
		return nil, common.Unavailable("participant lookup failed", err)
	}
	return p, nil
}
