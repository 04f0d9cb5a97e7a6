package forum

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreatePost(ctx context.Context, p *Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) GetPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPosts returns posts with pinned ones first, then newest first.
// search is a case-insensitive substring match over title and content.
func (r *Repo) ListPosts(ctx context.Context, category, search string) ([]Post, error) {
	q := r.db.WithContext(ctx).Model(&Post{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if search != "" {
		needle := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", needle, needle)
	}
	var posts []Post
	err := q.Order("pinned DESC, created_at DESC").Find(&posts).Error
	return posts, err
}

func (r *Repo) SetPinned(ctx context.Context, id string, pinned bool) error {
	return r.db.WithContext(ctx).Model(&Post{}).
		Where("id = ?", id).
		Update("pinned", pinned).Error
}

func (r *Repo) CreateComment(ctx context.Context, c *Comment) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetComment(ctx context.Context, id string) (*Comment, error) {
	var c Comment
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	var out []Comment
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *Repo) GetReaction(ctx context.Context, postID, userID string) (*Reaction, error) {
	var re Reaction
	err := r.db.WithContext(ctx).
		First(&re, "post_id = ? AND user_id = ?", postID, userID).Error
	if err != nil {
		return nil, err
	}
	return &re, nil
}

func (r *Repo) InsertReaction(ctx context.Context, re *Reaction) error {
	return r.db.WithContext(ctx).Create(re).Error
}

func (r *Repo) ReplaceReaction(ctx context.Context, postID, userID, reactionType string) error {
	return r.db.WithContext(ctx).Model(&Reaction{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Update("reaction_type", reactionType).Error
}

func (r *Repo) DeleteReaction(ctx context.Context, postID, userID string) error {
	return r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&Reaction{}).Error
}

func (r *Repo) ListReactions(ctx context.Context, postID string) ([]Reaction, error) {
	var out []Reaction
	err := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Find(&out).Error
	return out, err
}
