package handler

import (
	"net/http"
	"strconv"

	"rentline-api/internal/middleware"
	"rentline-api/internal/service"
	"rentline-api/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ChatHandler exposes chat creation, listing and the message operations.
type ChatHandler struct {
	chats    *service.ChatService
	messages *service.MessageService
	users    *service.UserService
}

func NewChatHandler(chats *service.ChatService, messages *service.MessageService, users *service.UserService) *ChatHandler {
	return &ChatHandler{chats: chats, messages: messages, users: users}
}

func (h *ChatHandler) GetChats(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	summaries, err := h.chats.GetChats(c.Request().Context(), identity.User.ID)
	if err != nil {
		return respondError(c, err)
	}

	out := make([]echo.Map, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, chatResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ChatHandler) CreateChat(c echo.Context) error {
	log := logger.FromContext(c)
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		MemberIDs []uuid.UUID `json:"member_ids,omitempty"`
		Title     *string     `json:"title,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse chat creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	chatID, err := h.chats.CreateChat(c.Request().Context(), req.MemberIDs, req.Title)
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Chat created", zap.String("chat_id", chatID.String()), zap.String("user_id", identity.User.ID.String()))
	return c.JSON(http.StatusCreated, echo.Map{"chat_id": chatID})
}

func (h *ChatHandler) GetChat(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}

	summary, err := h.chats.GetChat(c.Request().Context(), identity.User.ID, chatID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, chatResponse(*summary))
}

func (h *ChatHandler) CreateMessage(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}

	var req struct {
		Content *string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	messageID, err := h.messages.CreateMessage(c.Request().Context(), chatID, identity.User.ID, req.Content)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message_id": messageID})
}

func (h *ChatHandler) GetMessages(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}

	size := 0
	if raw := c.QueryParam("size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid size"})
		}
	}
	cursor := c.QueryParam("cursor")

	messages, nextCursor, err := h.messages.GetLatestMessages(c.Request().Context(), chatID, identity.User.ID, size, cursor)
	if err != nil {
		return respondError(c, err)
	}

	data, err := h.messagesResponse(c, messages)
	if err != nil {
		return respondError(c, err)
	}

	resp := echo.Map{"data": data}
	if nextCursor != "" {
		resp["cursor"] = nextCursor
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) GetMessage(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid message id"})
	}

	message, err := h.messages.GetMessage(c.Request().Context(), chatID, messageID, identity.User.ID)
	if err != nil {
		return respondError(c, err)
	}

	data, err := h.messagesResponse(c, []service.Message{*message})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, data[0])
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid chat id"})
	}
	messageID, err := uuid.Parse(c.Param("message_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid message id"})
	}

	if _, err := h.messages.MarkRead(c.Request().Context(), chatID, messageID, identity.User.ID); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// messagesResponse resolves sender display names for a batch of messages in
// one query and renders the wire shape.
func (h *ChatHandler) messagesResponse(c echo.Context, messages []service.Message) ([]echo.Map, error) {
	senderIDs := make([]uuid.UUID, 0, len(messages))
	seen := make(map[uuid.UUID]struct{}, len(messages))
	for _, m := range messages {
		if _, ok := seen[m.FromUserID]; ok {
			continue
		}
		seen[m.FromUserID] = struct{}{}
		senderIDs = append(senderIDs, m.FromUserID)
	}

	names, err := h.users.DisplayNamesByIDs(c.Request().Context(), senderIDs)
	if err != nil {
		return nil, err
	}

	out := make([]echo.Map, 0, len(messages))
	for _, m := range messages {
		name, ok := names[m.FromUserID]
		if !ok {
			name = "unknown"
		}
		out = append(out, echo.Map{
			"chat_id":                m.ChatID,
			"message_id":             m.MessageID,
			"from_user_id":           m.FromUserID,
			"from_user_display_name": name,
			"entered_at":             m.EnteredAt,
			"read_at":                m.ReadAt,
			"content":                m.Content,
		})
	}
	return out, nil
}

func chatResponse(s service.ChatSummary) echo.Map {
	return echo.Map{
		"chat_id":        s.ChatID,
		"title":          s.Title,
		"member_ids":     s.MemberIDs,
		"message_count":  s.MessageCount,
		"latest_message": s.LatestMessageAt,
		"has_unread":     s.UnreadCount > 0,
		"unread_count":   s.UnreadCount,
	}
}
