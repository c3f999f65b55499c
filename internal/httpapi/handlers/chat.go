package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lingochat/internal/ai"
	"lingochat/internal/chat"
	"lingochat/internal/common"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type languagePairReq struct {
	MainLanguage     string `json:"mainLanguage"`
	LearningLanguage string `json:"learningLanguage"`
}

type sendChatReq struct {
	Message    string           `json:"message" binding:"required"`
	ChatRoomID string           `json:"chatRoomId"`
	History    []chatMessage    `json:"history"`
	Language   *languagePairReq `json:"language"`
}

// SendChat runs one chat turn and streams the reply as server-sent events.
// Every response, including a complete cloud reply, uses the same framing so
// the client has a single read path.
func (h *Handler) SendChat(c *gin.Context) {
	var req sendChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "message is required")
		return
	}

	in := chat.SendInput{
		Message:    req.Message,
		ChatRoomID: req.ChatRoomID,
	}
	for _, m := range req.History {
		in.History = append(in.History, ai.Message{Role: m.Role, Content: m.Content})
	}
	if req.Language != nil {
		in.Language = &ai.LanguagePair{
			MainLanguage:     req.Language.MainLanguage,
			LearningLanguage: req.Language.LearningLanguage,
		}
	}

	turn, err := h.ChatSvc.Send(c.Request.Context(), userID(c), in)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50010, "failed to process chat")
		return
	}

	// Complete replies (cloud backend, configuration guidance) are plain JSON;
	// only the local backend streams.
	if turn.Stream == nil {
		common.OK(c, gin.H{"response": turn.Text, "chatRoomId": turn.Room.ID})
		return
	}

	sseHeaders(c)

	var full string
	for chunk := range turn.Stream.Chunks {
		full += chunk
		writeSSE(c, gin.H{"content": chunk, "fullResponse": full})
	}

	// Chunks is closed, so the terminal outcome is already decided: either a
	// buffered error or a closed Done channel.
	if msg, ok := <-turn.Stream.Errs; ok && msg != "" {
		writeSSE(c, gin.H{"error": msg})
		return
	}
	<-turn.Stream.Done
	writeSSE(c, gin.H{"done": true, "chatRoomId": turn.Room.ID})
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
}

func writeSSE(c *gin.Context, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if _, err := c.Writer.WriteString("data: " + string(data) + "\n\n"); err != nil {
		return
	}
	c.Writer.Flush()
}

// ChatHistory covers both the room list (no chatRoomId) and one room's
// transcript (chatRoomId present).
func (h *Handler) ChatHistory(c *gin.Context) {
	roomID := c.Query("chatRoomId")
	if roomID == "" {
		h.listRooms(c)
		return
	}
	h.roomDetail(c, roomID)
}

func (h *Handler) listRooms(c *gin.Context) {
	rooms, err := h.ChatSvc.Repo().ListRooms(c.Request.Context(), userID(c))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50011, "failed to load chat rooms")
		return
	}
	common.OK(c, gin.H{"chatRooms": rooms})
}

type transcriptMessage struct {
	ID        uint64 `json:"id"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

func (h *Handler) roomDetail(c *gin.Context, roomID string) {
	ctx := c.Request.Context()
	uid := userID(c)

	room, err := h.ChatSvc.Repo().GetRoom(ctx, roomID, uid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40402, "chat room not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50012, "failed to load chat room")
		return
	}

	msgs, err := h.ChatSvc.Repo().ListMessages(ctx, roomID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50012, "failed to load messages")
		return
	}

	out := make([]transcriptMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, transcriptMessage{
			ID:        m.ID,
			Content:   m.Content,
			Role:      m.Role,
			Timestamp: m.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}

	common.OK(c, gin.H{
		"chatRoom": room,
		"languageSettings": gin.H{
			"mainLanguage":     room.MainLanguage,
			"learningLanguage": room.LearningLanguage,
		},
		"messages": out,
	})
}
