package service

import (
	"context"
	"time"

	"rentline-api/internal/model"
	"rentline-api/pkg/config"
	"rentline-api/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChatAggregate is the per-chat result of the grouped message query.
type ChatAggregate struct {
	MessageCount    int64
	LatestMessageAt *time.Time
}

// ChatSummary is a chat annotated with activity aggregates for one viewer.
type ChatSummary struct {
	ChatID          uuid.UUID
	Title           string
	MemberIDs       []uuid.UUID
	MessageCount    int64
	LatestMessageAt *time.Time
	UnreadCount     int64
}

// ChatService tracks chat-to-participant membership and the per-chat
// activity aggregates.
type ChatService struct {
	db    *gorm.DB
	users *UserService
	cfg   config.ChatConfig
	log   *zap.Logger
}

func NewChatService(db *gorm.DB, users *UserService, cfg config.ChatConfig, log *zap.Logger) *ChatService {
	return &ChatService{db: db, users: users, cfg: cfg, log: log}
}

// CreateChat creates a chat with the given member set. An empty member list
// means broadcast-to-everyone, which fans out to every known user and is
// only honored when explicitly enabled in configuration.
func (s *ChatService) CreateChat(ctx context.Context, memberIDs []uuid.UUID, title *string) (uuid.UUID, error) {
	if len(memberIDs) == 0 {
		if !s.cfg.AllowBroadcast {
			return uuid.Nil, ErrEmptyMemberList
		}
		all, err := s.users.AllUserIDs(ctx)
		if err != nil {
			return uuid.Nil, err
		}
		memberIDs = all
		s.log.Warn("Creating broadcast chat with all known users", zap.Int("member_count", len(memberIDs)))
	}

	chat := model.Chat{
		ID:    uuid.New(),
		Title: title,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&chat).Error; err != nil {
			return err
		}
		members := make([]model.ChatMember, 0, len(memberIDs))
		for _, userID := range memberIDs {
			members = append(members, model.ChatMember{
				ID:     uuid.New(),
				ChatID: chat.ID,
				UserID: userID,
			})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return uuid.Nil, translateStoreError(err, "create chat")
	}

	prometheus.ChatCreatedCounter.Inc()
	s.log.Info("Chat created", zap.String("chat_id", chat.ID.String()), zap.Int("member_count", len(memberIDs)))
	return chat.ID, nil
}

// MemberIDs returns the member set of a chat, or ErrChatNotFound.
func (s *ChatService) MemberIDs(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
		return nil, translateStoreError(err, "find chat")
	}
	if count == 0 {
		return nil, ErrChatNotFound
	}
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&model.ChatMember{}).
		Where("chat_id = ?", chatID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, translateStoreError(err, "list chat members")
	}
	return ids, nil
}

// IsMember reports whether the user belongs to the chat.
func (s *ChatService) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	if err != nil {
		return false, translateStoreError(err, "check chat membership")
	}
	return count > 0, nil
}

// GetChats lists the chats the viewer belongs to, annotated with message
// counts, latest activity and the viewer's unread counts. The aggregates are
// two grouped queries across all chats, never one query per chat.
func (s *ChatService) GetChats(ctx context.Context, viewerID uuid.UUID) ([]ChatSummary, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var chats []model.Chat
	err := s.db.WithContext(ctx).
		Joins("JOIN chat_members ON chat_members.chat_id = chats.id").
		Where("chat_members.user_id = ?", viewerID).
		Preload("Members").
		Find(&chats).Error
	if err != nil {
		return nil, translateStoreError(err, "list chats")
	}
	return s.summarize(ctx, chats, viewerID)
}

// GetChat returns a single chat summary for the viewer, or ErrChatNotFound.
func (s *ChatService) GetChat(ctx context.Context, viewerID, chatID uuid.UUID) (*ChatSummary, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var chat model.Chat
	err := s.db.WithContext(ctx).Preload("Members").First(&chat, "id = ?", chatID).Error
	if err != nil {
		return nil, translateStoreError(err, "chat not found")
	}
	summaries, err := s.summarize(ctx, []model.Chat{chat}, viewerID)
	if err != nil {
		return nil, err
	}
	return &summaries[0], nil
}

func (s *ChatService) summarize(ctx context.Context, chats []model.Chat, viewerID uuid.UUID) ([]ChatSummary, error) {
	chatIDs := make([]uuid.UUID, 0, len(chats))
	for _, c := range chats {
		chatIDs = append(chatIDs, c.ID)
	}

	aggregates, err := s.AggregateChats(ctx, chatIDs)
	if err != nil {
		return nil, err
	}
	unread, err := s.CountUnread(ctx, viewerID, chatIDs)
	if err != nil {
		return nil, err
	}

	summaries := make([]ChatSummary, 0, len(chats))
	for _, c := range chats {
		title := c.ID.String()[:8]
		if c.Title != nil && *c.Title != "" {
			title = *c.Title
		}
		memberIDs := make([]uuid.UUID, 0, len(c.Members))
		for _, m := range c.Members {
			memberIDs = append(memberIDs, m.UserID)
		}
		agg := aggregates[c.ID]
		summaries = append(summaries, ChatSummary{
			ChatID:          c.ID,
			Title:           title,
			MemberIDs:       memberIDs,
			MessageCount:    agg.MessageCount,
			LatestMessageAt: agg.LatestMessageAt,
			UnreadCount:     unread[c.ID],
		})
	}
	return summaries, nil
}

// AggregateChats returns message count and latest activity per chat in a
// single grouped query.
func (s *ChatService) AggregateChats(ctx context.Context, chatIDs []uuid.UUID) (map[uuid.UUID]ChatAggregate, error) {
	results := make(map[uuid.UUID]ChatAggregate, len(chatIDs))
	if len(chatIDs) == 0 {
		return results, nil
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var rows []struct {
		ChatID          uuid.UUID
		MessageCount    int64
		LatestMessageAt *time.Time
	}
	err := s.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Select("chat_id, count(1) as message_count, max(entered_at) as latest_message_at").
		Where("chat_id IN ?", chatIDs).
		Group("chat_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translateStoreError(err, "aggregate chats")
	}
	for _, r := range rows {
		results[r.ChatID] = ChatAggregate{
			MessageCount:    r.MessageCount,
			LatestMessageAt: r.LatestMessageAt,
		}
	}
	return results, nil
}

// CountUnread returns the reader's unread message count per chat in a
// single grouped query over the recipient records.
func (s *ChatService) CountUnread(ctx context.Context, readerID uuid.UUID, chatIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	results := make(map[uuid.UUID]int64, len(chatIDs))
	if len(chatIDs) == 0 {
		return results, nil
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var rows []struct {
		ChatID      uuid.UUID
		UnreadCount int64
	}
	err := s.db.WithContext(ctx).Model(&model.ChatMessageRecipient{}).
		Select("chat_id, count(distinct message_id) as unread_count").
		Where("to_user_id = ? AND read_at IS NULL AND chat_id IN ?", readerID, chatIDs).
		Group("chat_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translateStoreError(err, "count unread")
	}
	for _, r := range rows {
		results[r.ChatID] = r.UnreadCount
	}
	return results, nil
}
