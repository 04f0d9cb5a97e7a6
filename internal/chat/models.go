package chat

import (
	"strings"
	"time"
)

const (
	MessageTypeText     = "text"
	MessageTypeResource = "resource"
)

const previewLimit = 100

// Conversation is a two-party message thread. PairKey is the canonical
// (sorted) participant pair; its unique index is what makes concurrent
// GetOrCreate calls converge on a single row.
type Conversation struct {
	ID                 string    `gorm:"primaryKey;size:26" json:"id"`
	PairKey            string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	LastMessageAt      time.Time `gorm:"index" json:"last_message_at"`
	LastMessagePreview string    `gorm:"size:100" json:"last_message_preview"`
	CreatedAt          time.Time `json:"created_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Participant struct {
	ConversationID string    `gorm:"primaryKey;size:26" json:"conversation_id"`
	UserID         string    `gorm:"primaryKey;size:26;index" json:"user_id"`
	LastReadAt     time.Time `json:"last_read_at"`
	IsArchived     bool      `gorm:"not null;default:false" json:"is_archived"`
}

func (Participant) TableName() string { return "conversation_participants" }

// Message rows are never physically removed: deletion sets IsDeleted so
// ordering and reaction history stay intact for concurrent readers.
type Message struct {
	ID             string    `gorm:"primaryKey;size:26" json:"id"`
	ConversationID string    `gorm:"size:26;not null;index:idx_messages_conv_created,priority:1" json:"conversation_id"`
	SenderID       string    `gorm:"size:26;not null" json:"sender_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	MessageType    string    `gorm:"size:16;not null" json:"message_type"`
	IsDeleted      bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conv_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

type MessageReaction struct {
	MessageID string    `gorm:"primaryKey;size:26" json:"message_id"`
	UserID    string    `gorm:"primaryKey;size:26" json:"user_id"`
	Reaction  string    `gorm:"size:32;not null" json:"reaction"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageReaction) TableName() string { return "message_reactions" }

// PairKey canonicalizes an unordered participant pair.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Preview truncates message content for the conversation list row.
func Preview(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit])
}
