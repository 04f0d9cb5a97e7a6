package forum

import "time"

// CategoryAnnouncements marks posts that fan out notifications to a whole
// audience instead of a single conversation.
const CategoryAnnouncements = "announcements"

const (
	AudienceAll         = "all"
	AudienceStudents    = "students"
	AudienceInstructors = "instructors"
)

type Post struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	AuthorID  string    `gorm:"size:26;not null;index" json:"author_id"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Category  string    `gorm:"size:50;not null;index" json:"category"`
	Pinned    bool      `gorm:"not null;default:false" json:"pinned"`
	CreatedAt time.Time `json:"created_at"`
}

func (Post) TableName() string { return "forum_posts" }

// Comment threads are two levels deep: a comment whose parent already has a
// parent is attached to the root comment instead.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	PostID    string    `gorm:"size:26;not null;index" json:"post_id"`
	ParentID  *string   `gorm:"size:26;index" json:"parent_id,omitempty"`
	AuthorID  string    `gorm:"size:26;not null" json:"author_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (Comment) TableName() string { return "forum_comments" }

type Reaction struct {
	PostID       string    `gorm:"primaryKey;size:26" json:"post_id"`
	UserID       string    `gorm:"primaryKey;size:26" json:"user_id"`
	ReactionType string    `gorm:"size:32;not null" json:"reaction_type"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Reaction) TableName() string { return "forum_reactions" }
