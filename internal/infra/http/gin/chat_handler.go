package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"chatlink/internal/app/dto"
	"chatlink/internal/app/services/chatlist"
	"chatlink/internal/app/services/linking"
	"chatlink/internal/app/services/messages"
	domainchat "chatlink/internal/domain/chat"
	domainuser "chatlink/internal/domain/user"
)

const defaultHistoryLimit = 100

type ChatHTTP interface {
	List(c *gin.Context)
	Stream(c *gin.Context)
	Link(c *gin.Context)
	Select(c *gin.Context)
	SendMessage(c *gin.Context)
	History(c *gin.Context)
}

// ChatHandler serves the chat list, the live SSE feed, contact linking and
// the message endpoints for the signed-in user.
type ChatHandler struct {
	Chats    *chatlist.Service
	Linking  *linking.Service
	Messages *messages.Service
	Logger   *slog.Logger
}

type linkRequest struct {
	Username string `json:"username" binding:"required"`
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// List returns the viewer's resolved chat list, newest first, optionally
// narrowed by ?filter=<username substring>.
func (h ChatHandler) List(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	entries, err := h.Chats.Snapshot(c.Request.Context(), domainuser.ID(p.ID), c.Query("filter"))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewChatList(entries))
}

// Stream is the live chat-list feed as server-sent events. Each event carries
// the full rendered list; the first event is the current state. The
// subscription is torn down when the client disconnects.
func (h ChatHandler) Stream(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	sub, err := h.Chats.Subscribe(c.Request.Context(), domainuser.ID(p.ID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case entries, open := <-sub.Updates():
			if !open {
				return false
			}
			c.SSEvent("chats", dto.NewChatList(entries))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Link starts a chat with the user named in the request body.
func (h ChatHandler) Link(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
		return
	}
	result, err := h.Linking.Link(c.Request.Context(), domainuser.ID(p.ID), req.Username)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.ActiveChat{
		ChatID: string(result.ChatID),
		Peer:   dto.PublicProfile(result.Target),
	})
}

// Select opens one chat from the list, marking the viewer's entry seen.
func (h ChatHandler) Select(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	chatID := strings.TrimSpace(c.Param("id"))
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat id is required"})
		return
	}
	active, err := h.Chats.Select(c.Request.Context(), domainuser.ID(p.ID), domainchat.ChatID(chatID))
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ActiveChat{
		ChatID: string(active.ChatID),
		Peer:   dto.PublicProfile(active.Peer),
	})
}

// SendMessage appends a message to the chat's thread.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	chatID := strings.TrimSpace(c.Param("id"))
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	message, err := h.Messages.Send(c.Request.Context(), domainuser.ID(p.ID), domainchat.ChatID(chatID), req.Text)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewChatMessage(*message))
}

// History returns the chat's messages in ascending order, capped by ?limit=.
func (h ChatHandler) History(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	chatID := strings.TrimSpace(c.Param("id"))
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	history, err := h.Messages.History(c.Request.Context(), domainuser.ID(p.ID), domainchat.ChatID(chatID), limit)
	if err != nil {
		h.respondChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewChatMessageList(history))
}

func (h ChatHandler) respondChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainchat.ErrNotFound), errors.Is(err, domainuser.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, domainchat.ErrNotParticipant):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, domainchat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "action not allowed"})
	case errors.Is(err, domainchat.ErrSelfLink):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domainchat.ErrAlreadyLinked):
		c.JSON(http.StatusConflict, gin.H{"error": "chat already exists"})
	case errors.Is(err, domainchat.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "chat references a missing user"})
	case errors.Is(err, domainchat.ErrEmptyMessage), errors.Is(err, domainuser.ErrUsernameInvalid),
		errors.Is(err, domainuser.ErrUsernameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat request failed", "error", err)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat service unavailable"})
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
