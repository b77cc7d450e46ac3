package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rentline-api/internal/model"
	"rentline-api/pkg/config"
	"rentline-api/prometheus"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Message is a chat message as seen by one viewer: read state comes from the
// viewer's own recipient record and is always absent for self-sent messages.
type Message struct {
	ChatID     uuid.UUID  `json:"chat_id"`
	MessageID  uuid.UUID  `json:"message_id"`
	FromUserID uuid.UUID  `json:"from_user_id"`
	EnteredAt  time.Time  `json:"entered_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	Content    string     `json:"content"`
}

// PushDispatcher is the best-effort notification collaborator invoked after
// a successful fan-out commit.
type PushDispatcher interface {
	Dispatch(ctx context.Context, payload PushPayload, targetUserIDs []uuid.UUID) error
}

// MessageService creates messages, fans out per-recipient records
// transactionally, tracks read state and paginates message history.
type MessageService struct {
	db       *gorm.DB
	chats    *ChatService
	notifier PushDispatcher
	cfg      config.ChatConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewMessageService wires the fan-out service. nowFn may be nil; tests
// inject a fixed clock.
func NewMessageService(db *gorm.DB, chats *ChatService, notifier PushDispatcher, cfg config.ChatConfig, log *zap.Logger, nowFn func() time.Time) *MessageService {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MessageService{
		db:       db,
		chats:    chats,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      nowFn,
	}
}

// CreateMessage inserts the message and one recipient record per chat member
// other than the sender as a single transaction; a failure anywhere rolls
// the whole operation back. A successful commit triggers a best-effort push
// dispatch whose failures are logged and swallowed.
func (s *MessageService) CreateMessage(ctx context.Context, chatID, senderID uuid.UUID, content *string) (uuid.UUID, error) {
	memberIDs, err := s.chats.MemberIDs(ctx, chatID)
	if err != nil {
		return uuid.Nil, err
	}

	recipients := make([]uuid.UUID, 0, len(memberIDs))
	senderIsMember := false
	for _, id := range memberIDs {
		if id == senderID {
			senderIsMember = true
			continue
		}
		recipients = append(recipients, id)
	}
	if !senderIsMember {
		// Non-members cannot see the chat, so its existence is not revealed.
		return uuid.Nil, ErrChatNotFound
	}

	enteredAt := s.now().UTC()
	message := model.ChatMessage{
		ID:         uuid.New(),
		ChatID:     chatID,
		FromUserID: senderID,
		EnteredAt:  enteredAt,
		Content:    content,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&message).Error; err != nil {
			return err
		}
		for _, toUserID := range recipients {
			recipient := model.ChatMessageRecipient{
				ID:        uuid.New(),
				ChatID:    chatID,
				MessageID: message.ID,
				ToUserID:  toUserID,
				EnteredAt: enteredAt,
			}
			if err := tx.Create(&recipient).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, translateStoreError(err, "create message")
	}

	prometheus.MessageCreatedCounter.Inc()
	prometheus.FanoutSize.Observe(float64(len(recipients)))

	if s.notifier != nil && len(recipients) > 0 {
		payload := PushPayload{
			Title: "New message",
			URL:   fmt.Sprintf("/chat/%s?chat_message_id=%s", chatID, message.ID),
		}
		if err := s.notifier.Dispatch(ctx, payload, recipients); err != nil {
			s.log.Error("Push dispatch failed after message commit",
				zap.String("message_id", message.ID.String()),
				zap.Error(err))
		}
	}

	return message.ID, nil
}

// MarkRead sets the reader's read_at for a message if not already read.
// Repeat calls and calls without a matching recipient record (the reader was
// the sender) are no-ops returning 0.
func (s *MessageService) MarkRead(ctx context.Context, chatID, messageID, readerID uuid.UUID) (int64, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())
	readAt := s.now().UTC()
	result := s.db.WithContext(ctx).Model(&model.ChatMessageRecipient{}).
		Where("chat_id = ? AND message_id = ? AND to_user_id = ? AND read_at IS NULL",
			chatID, messageID, readerID).
		Update("read_at", readAt)
	if result.Error != nil {
		return 0, translateStoreError(result.Error, "mark message read")
	}
	return result.RowsAffected, nil
}

// GetMessage returns one message as seen by the viewer, or
// ErrMessageNotFound when it does not exist or is invisible to them.
func (s *MessageService) GetMessage(ctx context.Context, chatID, messageID, viewerID uuid.UUID) (*Message, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var record model.ChatMessage
	err := s.db.WithContext(ctx).
		First(&record, "id = ? AND chat_id = ?", messageID, chatID).Error
	if err != nil {
		if KindOf(translateStoreError(err, "")) == KindNotFound {
			return nil, ErrMessageNotFound
		}
		return nil, translateStoreError(err, "find message")
	}
	messages, err := s.annotateForViewer(ctx, []model.ChatMessage{record}, viewerID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, ErrMessageNotFound
	}
	return &messages[0], nil
}

// GetMessages returns the union of messages the viewer sent and received in
// a chat. Messages the viewer neither sent nor received are invisible;
// authorization is implicit in the recipient join.
func (s *MessageService) GetMessages(ctx context.Context, chatID, viewerID uuid.UUID) ([]Message, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())
	var records []model.ChatMessage
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("entered_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, translateStoreError(err, "list messages")
	}
	return s.annotateForViewer(ctx, records, viewerID)
}

// GetLatestMessages pages through a chat's history in descending
// (entered_at, id) order. The cursor encodes the position after the last
// returned row, so inserts of older messages never shift pages already
// served. An empty next cursor signals the end of the data.
func (s *MessageService) GetLatestMessages(ctx context.Context, chatID, viewerID uuid.UUID, size int, cursor string) ([]Message, string, error) {
	if size <= 0 {
		size = s.cfg.DefaultPageSize
	}
	if s.cfg.MaxPageSize > 0 && size > s.cfg.MaxPageSize {
		size = s.cfg.MaxPageSize
	}

	query := s.db.WithContext(ctx).Where("chat_id = ?", chatID)
	if cursor != "" {
		enteredAt, lastID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", Validation("malformed cursor")
		}
		query = query.Where("entered_at < ? OR (entered_at = ? AND id < ?)",
			enteredAt, enteredAt, lastID)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var records []model.ChatMessage
	err := query.Order("entered_at DESC, id DESC").Limit(size).Find(&records).Error
	if err != nil {
		return nil, "", translateStoreError(err, "page messages")
	}

	nextCursor := ""
	if len(records) == size {
		last := records[len(records)-1]
		nextCursor = encodeCursor(last.EnteredAt, last.ID)
	}

	messages, err := s.annotateForViewer(ctx, records, viewerID)
	if err != nil {
		return nil, "", err
	}
	return messages, nextCursor, nil
}

// annotateForViewer builds the viewer-specific view of raw message records:
// self-sent messages with no read state, received ones with the viewer's
// read_at, everything else dropped. The recipient lookup is one batched
// query. Input order is preserved.
func (s *MessageService) annotateForViewer(ctx context.Context, records []model.ChatMessage, viewerID uuid.UUID) ([]Message, error) {
	receivedIDs := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		if r.FromUserID != viewerID {
			receivedIDs = append(receivedIDs, r.ID)
		}
	}

	recipientByMessage := make(map[uuid.UUID]model.ChatMessageRecipient, len(receivedIDs))
	if len(receivedIDs) > 0 {
		var recipientRows []model.ChatMessageRecipient
		err := s.db.WithContext(ctx).
			Where("message_id IN ? AND to_user_id = ?", receivedIDs, viewerID).
			Find(&recipientRows).Error
		if err != nil {
			return nil, translateStoreError(err, "load recipient records")
		}
		for _, row := range recipientRows {
			recipientByMessage[row.MessageID] = row
		}
	}

	messages := make([]Message, 0, len(records))
	for _, r := range records {
		content := ""
		if r.Content != nil {
			content = *r.Content
		}
		if r.FromUserID == viewerID {
			messages = append(messages, Message{
				ChatID:     r.ChatID,
				MessageID:  r.ID,
				FromUserID: r.FromUserID,
				EnteredAt:  r.EnteredAt,
				ReadAt:     nil,
				Content:    content,
			})
			continue
		}
		row, ok := recipientByMessage[r.ID]
		if !ok {
			// Not sent and not received: invisible to this viewer.
			continue
		}
		messages = append(messages, Message{
			ChatID:     r.ChatID,
			MessageID:  r.ID,
			FromUserID: r.FromUserID,
			EnteredAt:  r.EnteredAt,
			ReadAt:     row.ReadAt,
			Content:    content,
		})
	}
	return messages, nil
}

// The cursor is the opaque sort key of the last returned row:
// base64("unix_micros|message_id").
func encodeCursor(enteredAt time.Time, id uuid.UUID) string {
	raw := fmt.Sprintf("%d|%s", enteredAt.UnixMicro(), id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor")
	}
	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, err
	}
	return time.UnixMicro(micros).UTC(), id, nil
}
