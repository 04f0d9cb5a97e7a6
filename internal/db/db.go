package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/classhive/collab/internal/chat"
	"github.com/classhive/collab/internal/forum"
	"github.com/classhive/collab/internal/notifications"
	"github.com/classhive/collab/internal/users"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&users.User{},
		&chat.Conversation{},
		&chat.Participant{},
		&chat.Message{},
		&chat.MessageReaction{},
		&forum.Post{},
		&forum.Comment{},
		&forum.Reaction{},
		&notifications.Notification{},
		&notifications.FanoutJob{},
	)
}
