package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/feed"
	"github.com/classhive/collab/internal/users"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:chat_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &Conversation{}, &Participant{}, &Message{}, &MessageReaction{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *Repo, *feed.Broker) {
	t.Helper()
	db := openTestDB(t)
	usersRepo := users.NewRepo(db)
	for _, u := range []users.User{
		{ID: "userA", DisplayName: "Ada", Role: users.RoleStudent},
		{ID: "userB", DisplayName: "Ben", Role: users.RoleStudent},
	} {
		if err := usersRepo.Create(context.Background(), &u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	repo := NewRepo(db)
	broker := feed.NewBroker(64, nil)
	return NewService(repo, usersRepo, broker, nil), repo, broker
}

func TestGetOrCreateConvergesBothOrders(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "userA", "userB")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	second, err := svc.GetOrCreate(ctx, "userB", "userA")
	if err != nil {
		t.Fatalf("getOrCreate reversed: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one conversation, got %s and %s", first.ID, second.ID)
	}
}

func TestGetOrCreateLoserAdoptsWinner(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	// Simulate losing the check-then-insert race: the winner's row appears
	// after the service's initial lookup would have missed it.
	winner := &Conversation{ID: "01WINNER00000000000000000A", PairKey: PairKey("userA", "userB"), LastMessageAt: time.Now(), CreatedAt: time.Now()}
	if err := repo.CreateConversation(ctx, winner, []Participant{
		{ConversationID: winner.ID, UserID: "userA", LastReadAt: time.Now()},
		{ConversationID: winner.ID, UserID: "userB", LastReadAt: time.Now()},
	}); err != nil {
		t.Fatalf("seed winner: %v", err)
	}

	// The duplicate insert fails on the pair-key index and the existing row
	// is adopted instead of surfacing a conflict.
	loser := &Conversation{ID: "01LOSER000000000000000000A", PairKey: winner.PairKey, LastMessageAt: time.Now(), CreatedAt: time.Now()}
	err := repo.CreateConversation(ctx, loser, []Participant{
		{ConversationID: loser.ID, UserID: "userA"},
		{ConversationID: loser.ID, UserID: "userB"},
	})
	if err == nil {
		t.Fatal("expected unique violation for duplicate pair key")
	}

	got, err := svc.GetOrCreate(ctx, "userA", "userB")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if got.ID != winner.ID {
		t.Fatalf("expected adopted winner %s, got %s", winner.ID, got.ID)
	}
}

func TestGetOrCreateRejectsSelf(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.GetOrCreate(ctx, "userA", "userA"); common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation error for self conversation, got %v", err)
	}
	if _, err := svc.GetOrCreate(ctx, "", "userB"); common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation error for empty participant, got %v", err)
	}
}

func TestSendListAndUnreadScenario(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreate(ctx, "userA", "userB")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}

	if _, err := svc.Send(ctx, conv.ID, "userA", "hello", ""); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs, err := svc.ListMessages(ctx, conv.ID, "userB", 0, "")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("expected [hello], got %+v", msgs)
	}

	views, err := svc.ListForUser(ctx, "userB")
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(views))
	}
	if views[0].UnreadCount != 1 {
		t.Fatalf("expected unread 1, got %d", views[0].UnreadCount)
	}
	if views[0].Other == nil || views[0].Other.ID != "userA" {
		t.Fatalf("expected other participant userA, got %+v", views[0].Other)
	}
	if views[0].LastMessagePreview != "hello" {
		t.Fatalf("expected preview hello, got %q", views[0].LastMessagePreview)
	}

	if err := svc.MarkRead(ctx, conv.ID, "userB"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	views, err = svc.ListForUser(ctx, "userB")
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if views[0].UnreadCount != 0 {
		t.Fatalf("expected unread 0 after markRead, got %d", views[0].UnreadCount)
	}

	// The sender's own message never counts against the sender.
	views, err = svc.ListForUser(ctx, "userA")
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if views[0].UnreadCount != 0 {
		t.Fatalf("sender unread should be 0, got %d", views[0].UnreadCount)
	}
}

func TestMessagesOrderedAndTombstonesExcluded(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	conv, err := svc.GetOrCreate(ctx, "userA", "userB")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}

	var second *Message
	for i, content := range []string{"one", "two", "three"} {
		m, err := svc.Send(ctx, conv.ID, "userA", content, "")
		if err != nil {
			t.Fatalf("send %q: %v", content, err)
		}
		if i == 1 {
			second = m
		}
	}

	if err := svc.SoftDelete(ctx, second.ID, "userA"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	msgs, err := svc.ListMessages(ctx, conv.ID, "userB", 0, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 visible messages, got %d", len(msgs))
	}
	if msgs[0].Content != "one" || msgs[1].Content != "three" {
		t.Fatalf("unexpected order: %q, %q", msgs[0].Content, msgs[1].Content)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Fatalf("messages out of order at %d", i)
		}
	}

	// The tombstone stays in storage.
	raw, err := repo.GetMessage(ctx, second.ID)
	if err != nil {
		t.Fatalf("tombstone lookup: %v", err)
	}
	if !raw.IsDeleted {
		t.Fatal("expected tombstone flag")
	}
}

func TestSoftDeleteSenderOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.GetOrCreate(ctx, "userA", "userB")
	msg, err := svc.Send(ctx, conv.ID, "userA", "mine", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.SoftDelete(ctx, msg.ID, "userB"); common.KindOf(err) != common.KindForbidden {
		t.Fatalf("expected forbidden for non-sender, got %v", err)
	}
	if err := svc.SoftDelete(ctx, msg.ID, "userA"); err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	// Deleting twice stays a no-op.
	if err := svc.SoftDelete(ctx, msg.ID, "userA"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestToggleReactionLaw(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.GetOrCreate(ctx, "userA", "userB")
	msg, err := svc.Send(ctx, conv.ID, "userA", "react to me", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	// heart -> heart toggles off.
	if err := svc.ToggleReaction(ctx, msg.ID, "userB", "heart"); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if err := svc.ToggleReaction(ctx, msg.ID, "userB", "heart"); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	reactions, err := repo.ListReactions(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list reactions: %v", err)
	}
	if len(reactions) != 0 {
		t.Fatalf("expected no reactions after double toggle, got %+v", reactions)
	}

	// heart -> thumbsup replaces, never duplicates.
	if err := svc.ToggleReaction(ctx, msg.ID, "userB", "heart"); err != nil {
		t.Fatalf("toggle heart: %v", err)
	}
	if err := svc.ToggleReaction(ctx, msg.ID, "userB", "thumbsup"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	reactions, err = repo.ListReactions(ctx, msg.ID)
	if err != nil {
		t.Fatalf("list reactions: %v", err)
	}
	if len(reactions) != 1 || reactions[0].Reaction != "thumbsup" {
		t.Fatalf("expected single thumbsup, got %+v", reactions)
	}
}

func TestMarkReadNeverMovesBackward(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.GetOrCreate(ctx, "userA", "userB")
	if err := svc.MarkRead(ctx, conv.ID, "userB"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	p, err := repo.GetParticipant(ctx, conv.ID, "userB")
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	before := p.LastReadAt

	// A direct attempt to rewind changes nothing.
	if err := repo.AdvanceLastRead(ctx, conv.ID, "userB", before.Add(-time.Hour)); err != nil {
		t.Fatalf("advance: %v", err)
	}
	p, err = repo.GetParticipant(ctx, conv.ID, "userB")
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if p.LastReadAt.Before(before) {
		t.Fatalf("last_read_at moved backward: %v -> %v", before, p.LastReadAt)
	}
}

func TestSendValidatesContentAndMembership(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.GetOrCreate(ctx, "userA", "userB")

	if _, err := svc.Send(ctx, conv.ID, "userA", "", ""); common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation error for empty content, got %v", err)
	}
	if _, err := svc.Send(ctx, conv.ID, "intruder", "hi", ""); common.KindOf(err) != common.KindNotFound {
		t.Fatalf("expected not found for non-participant, got %v", err)
	}
	if _, err := svc.Send(ctx, conv.ID, "userA", "hi", "video"); common.KindOf(err) != common.KindValidation {
		t.Fatalf("expected validation error for bad type, got %v", err)
	}
}

func TestSendPublishesConversationEvent(t *testing.T) {
	svc, _, broker := newTestService(t)
	ctx := context.Background()

	conv, _ := svc.GetOrCreate(ctx, "userA", "userB")
	sub := broker.Subscribe("userB", feed.ConversationScope(conv.ID))

	msg, err := svc.Send(ctx, conv.ID, "userA", "ping", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case ev := <-sub.C:
		if ev.Kind != feed.KindMessageCreated || ev.EntityID != msg.ID {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected message.created event")
	}
}

func TestPreviewTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	if got := Preview(long); len([]rune(got)) != 100 {
		t.Fatalf("expected 100-rune preview, got %d", len([]rune(got)))
	}
	if got := Preview("short"); got != "short" {
		t.Fatalf("unexpected preview: %q", got)
	}
}
