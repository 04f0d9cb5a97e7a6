package forum

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

// Announcer enqueues audience-wide fan-out for announcement posts. Fan-out
// is best effort and never fails the post creation.
type Announcer interface {
	Announce(ctx context.Context, post *Post, audience string) error
}

type PostWithComments struct {
	Post
	Comments []Comment `json:"comments"`
}

type Service struct {
	repo      *Repo
	broker    *feed.Broker
	announcer Announcer
	logger    *zap.Logger
}

func NewService(repo *Repo, broker *feed.Broker, announcer Announcer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, broker: broker, announcer: announcer, logger: logger}
}

func (s *Service) CreatePost(ctx context.Context, authorID, title, content, category, audience string) (*Post, error) {
	if title == "" {
		return nil, common.Validationf("post title required")
	}
	if content == "" {
		return nil, common.Validationf("post content required")
	}
	if category == "" {
		category = "general"
	}
	switch audience {
	case "", AudienceAll, AudienceStudents, AudienceInstructors:
	default:
		return nil, common.Validationf("invalid audience %q", audience)
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	post := &Post{
		ID:        id,
		AuthorID:  authorID,
		Title:     title,
		Content:   content,
		Category:  category,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreatePost(ctx, post); err != nil {
		return nil, common.Unavailable("post create failed", err)
	}

	s.broker.Publish(feed.ForumScope, feed.Event{
		Kind:     feed.KindPostCreated,
		EntityID: post.ID,
		ActorID:  authorID,
		At:       post.CreatedAt,
	})

	if post.Category == CategoryAnnouncements && s.announcer != nil {
		if audience == "" {
			audience = AudienceAll
		}
		if err := s.announcer.Announce(ctx, post, audience); err != nil {
			s.logger.Warn("announcement fan-out enqueue failed",
				zap.String("post_id", post.ID), zap.Error(err))
		}
	}
	return post, nil
}

// Comment attaches a comment to a post. Replies to replies are flattened to
// the root comment so threads stay two levels deep.
func (s *Service) Comment(ctx context.Context, postID, authorID, content string, parentID *string) (*Comment, error) {
	if content == "" {
		return nil, common.Validationf("comment content required")
	}
	if _, err := s.postOf(ctx, postID); err != nil {
		return nil, err
	}

	if parentID != nil {
		parent, err := s.repo.GetComment(ctx, *parentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, common.NotFoundf("parent comment not found")
			}
			return nil, common.Unavailable("parent comment load failed", err)
		}
		if parent.PostID != postID {
			return nil, common.Validationf("parent comment belongs to another post")
		}
		if parent.ParentID != nil {
			parentID = parent.ParentID
		}
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	comment := &Comment{
		ID:        id,
		PostID:    postID,
		ParentID:  parentID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, common.Unavailable("comment create failed", err)
	}

	s.broker.Publish(feed.ForumScope, feed.Event{
		Kind:     feed.KindCommentCreated,
		EntityID: comment.ID,
		ActorID:  authorID,
		At:       comment.CreatedAt,
	})
	return comment, nil
}

// React follows the same toggle law as message reactions: identical type
// removes, different type replaces.
func (s *Service) React(ctx context.Context, postID, userID, reactionType string) error {
	if reactionType == "" {
		return common.Validationf("reaction type required")
	}
	if _, err := s.postOf(ctx, postID); err != nil {
		return err
	}

	existing, err := s.repo.GetReaction(ctx, postID, userID)
	switch {
	case err == nil && existing.ReactionType == reactionType:
		err = s.repo.DeleteReaction(ctx, postID, userID)
	case err == nil:
		err = s.repo.ReplaceReaction(ctx, postID, userID, reactionType)
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = s.repo.InsertReaction(ctx, &Reaction{
			PostID:       postID,
			UserID:       userID,
			ReactionType: reactionType,
			CreatedAt:    time.Now(),
		})
	default:
		return common.Unavailable("reaction lookup failed", err)
	}
	if err != nil {
		return common.Unavailable("reaction update failed", err)
	}

	s.broker.Publish(feed.ForumScope, feed.Event{
		Kind:     feed.KindReactionChanged,
		EntityID: postID,
		ActorID:  userID,
		At:       time.Now(),
	})
	return nil
}

// SetPinned is privileged: only instructors and admins may pin.
func (s *Service) SetPinned(ctx context.Context, postID, actorRole string, pinned bool) error {
	if actorRole != users.RoleInstructor && actorRole != users.RoleAdmin {
		return common.Forbiddenf("pinning requires an instructor or admin role")
	}
	if _, err := s.postOf(ctx, postID); err != nil {
		return err
	}
	if err := s.repo.SetPinned(ctx, postID, pinned); err != nil {
		return common.Unavailable("pin update failed", err)
	}

	s.broker.Publish(feed.ForumScope, feed.Event{
		Kind:     feed.KindPostPinned,
		EntityID: postID,
		At:       time.Now(),
	})
	return nil
}

// List never errors on an empty result; it returns an empty slice.
func (s *Service) List(ctx context.Context, category, search string) ([]Post, error) {
	posts, err := s.repo.ListPosts(ctx, category, search)
	if err != nil {
		return nil, common.Unavailable("post list failed", err)
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts, nil
}

func (s *Service) Get(ctx context.Context, postID string) (*PostWithComments, error) {
	post, err := s.postOf(ctx, postID)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, postID)
	if err != nil {
		return nil, common.Unavailable("comment list failed", err)
	}
	if comments == nil {
		comments = []Comment{}
	}
	return &PostWithComments{Post: *post, Comments: comments}, nil
}

func (s *Service) postOf(ctx context.Context, postID string) (*Post, error) {
	post, err := s.repo.GetPost(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.NotFoundf("post not found")
		}
		return nil, common.Unavailable("post load failed", err)
	}
	return post, nil
}
