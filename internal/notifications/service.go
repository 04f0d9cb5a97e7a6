package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classhive/collab/internal/chat"
	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/feed"
	"github.com/classhive/collab/internal/forum"
	"github.com/classhive/collab/internal/users"
)

// JobEnqueuer hands a fan-out job id to the queue for the worker. The
// rabbitmq publisher implements it; tests substitute a recorder.
type JobEnqueuer interface {
	PublishFanoutJob(ctx context.Context, jobID string) error
}

type Service struct {
	repo     *Repo
	users    *users.Repo
	chat     *chat.Repo
	forum    *forum.Repo
	broker   *feed.Broker
	badges   BadgeCache
	enqueuer JobEnqueuer
	logger   *zap.Logger
}

// BadgeCache is the minimal surface the service needs from the redis store.
type BadgeCache interface {
	UnreadCount(ctx context.Context, userID string) (int64, bool, error)
	SetUnreadCount(ctx context.Context, userID string, n int64) error
	InvalidateUnread(ctx context.Context, userID string) error
}

func NewService(repo *Repo, usersRepo *users.Repo, chatRepo *chat.Repo, forumRepo *forum.Repo,
	broker *feed.Broker, cache BadgeCache, enqueuer JobEnqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		users:    usersRepo,
		chat:     chatRepo,
		forum:    forumRepo,
		broker:   broker,
		badges:   cache,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// NotifyMessage creates a notification for every other active participant of
// the message's conversation who does not currently have that conversation
// open on a live subscription. Best effort: per-recipient failures are
// logged and skipped.
func (s *Service) NotifyMessage(ctx context.Context, messageID string) error {
	msg, err := s.chat.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Stale signal; nothing to do.
			return nil
		}
		return err
	}
	if msg.IsDeleted {
		return nil
	}
	participants, err := s.chat.Participants(ctx, msg.ConversationID)
	if err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]string{
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"sender_id":       msg.SenderID,
		"preview":         chat.Preview(msg.Content),
	})

	for _, p := range participants {
		if p.UserID == msg.SenderID || p.IsArchived {
			continue
		}
		if s.broker.HasSubscriber(feed.ConversationScope(msg.ConversationID), p.UserID) {
			continue
		}
		if err := s.create(ctx, p.UserID, TypeMessage, "message:"+msg.ID, string(payload)); err != nil {
			s.logger.Warn("message notification failed",
				zap.String("recipient", p.UserID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Announce records a durable fan-out job for an announcement post and hands
// it to the queue. Implements forum.Announcer.
func (s *Service) Announce(ctx context.Context, post *forum.Post, audience string) error {
	id, err := common.NewULID()
	if err != nil {
		return err
	}
	job := &FanoutJob{
		ID:       id,
		PostID:   post.ID,
		Audience: audience,
		Status:   JobQueued,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return err
	}
	if s.enqueuer == nil {
		return nil
	}
	return s.enqueuer.PublishFanoutJob(ctx, job.ID)
}

// FanOutAnnouncement executes one queued job: expand the audience, insert a
// notification per recipient, tolerate per-recipient failures. Returns an
// error only when the job itself could not run so the queue can retry it.
func (s *Service) FanOutAnnouncement(ctx context.Context, jobID string) error {
	claimed, err := s.repo.ClaimJob(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		// Redelivery of an already-processed job.
		return nil
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	post, err := s.forum.GetPost(ctx, job.PostID)
	if err != nil {
		msg := "post load failed: " + err.Error()
		_ = s.repo.MarkJobFailed(ctx, jobID, msg)
		return err
	}

	role := ""
	switch job.Audience {
	case forum.AudienceStudents:
		role = users.RoleStudent
	case forum.AudienceInstructors:
		role = users.RoleInstructor
	}
	recipients, err := s.users.ListIDs(ctx, role)
	if err != nil {
		msg := "audience expansion failed: " + err.Error()
		_ = s.repo.MarkJobFailed(ctx, jobID, msg)
		return err
	}

	payload, _ := json.Marshal(map[string]string{
		"post_id":  post.ID,
		"title":    post.Title,
		"category": post.Category,
	})

	delivered, skipped := 0, 0
	for _, recipient := range recipients {
		if recipient == post.AuthorID {
			continue
		}
		if err := s.create(ctx, recipient, TypeAnnouncement, "post:"+post.ID, string(payload)); err != nil {
			skipped++
			s.logger.Warn("announcement recipient skipped",
				zap.String("recipient", recipient),
				zap.String("post_id", post.ID),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}

	if err := s.repo.MarkJobSucceeded(ctx, jobID, delivered, skipped); err != nil {
		return err
	}
	s.logger.Info("announcement fan-out complete",
		zap.String("post_id", post.ID),
		zap.Int("delivered", delivered),
		zap.Int("skipped", skipped),
	)
	return nil
}

func (s *Service) create(ctx context.Context, recipientID, typ, sourceID, payload string) error {
	id, err := common.NewULID()
	if err != nil {
		return err
	}
	inserted, err := s.repo.Insert(ctx, &Notification{
		ID:          id,
		RecipientID: recipientID,
		Type:        typ,
		SourceID:    sourceID,
		Payload:     payload,
		CreatedAt:   time.Now(),
	})
	if err != nil || !inserted {
		return err
	}

	s.invalidateBadge(ctx, recipientID)
	s.broker.Publish(feed.NotificationScope(recipientID), feed.Event{
		Kind:     feed.KindNotificationCreated,
		EntityID: id,
		At:       time.Now(),
	})
	return nil
}

// MarkRead flips a notification read; only its recipient may do so.
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	n, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return common.NotFoundf("notification not found")
		}
		return common.Unavailable("notification load failed", err)
	}
	if n.RecipientID != userID {
		return common.Forbiddenf("not the recipient of this notification")
	}
	if n.IsRead {
		return nil
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return common.Unavailable("mark read failed", err)
	}
	s.invalidateBadge(ctx, userID)
	return nil
}

// UnreadCount is the authoritative badge value. The cache is consulted
// first; any cache failure silently degrades to the database count.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if s.badges != nil {
		if n, hit, err := s.badges.UnreadCount(ctx, userID); err == nil && hit {
			return n, nil
		} else if err != nil {
			s.logger.Debug("badge cache read failed", zap.Error(err))
		}
	}
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, common.Unavailable("unread count failed", err)
	}
	if s.badges != nil {
		if err := s.badges.SetUnreadCount(ctx, userID, n); err != nil {
			s.logger.Debug("badge cache write failed", zap.Error(err))
		}
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	out, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, common.Unavailable("notification list failed", err)
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

func (s *Service) invalidateBadge(ctx context.Context, userID string) {
	if s.badges == nil {
		return
	}
	if err := s.badges.InvalidateUnread(ctx, userID); err != nil {
		s.logger.Debug("badge cache invalidation failed", zap.Error(err))
	}
}
