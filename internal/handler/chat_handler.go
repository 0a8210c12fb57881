package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ViseonDev/afghan-bazar-sub000/internal/apperr"
	"github.com/ViseonDev/afghan-bazar-sub000/internal/service"
)

// ChatHandler is the Sync API: the request/response surface for history
// catch-up, read-state transitions and conversation listing.
type ChatHandler interface {
	ListConversations(c *gin.Context)
	ListMessages(c *gin.Context)
	PostMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

type chatHandler struct {
	chat service.ChatService
}

func NewChatHandler(chat service.ChatService) ChatHandler {
	return &chatHandler{chat: chat}
}

type postMessageRequest struct {
	Body        string   `json:"body"`
	Type        string   `json:"type"`
	Attachments []string `json:"attachments"`
	RecipientID string   `json:"recipientId"`
	ReplyTo     *string  `json:"replyTo"`
}

func (h *chatHandler) ListConversations(c *gin.Context) {
	caller := Caller(c)

	summaries, err := h.chat.Conversations(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": summaries,
	})
}

func (h *chatHandler) ListMessages(c *gin.Context) {
	caller := Caller(c)
	storeID := c.Param("storeId")

	page, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	if err != nil || page < 1 {
		respondError(c, apperr.Validation("invalid_page", "page must be a positive number"))
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if err != nil || limit < 1 {
		respondError(c, apperr.Validation("invalid_limit", "limit must be a positive number"))
		return
	}

	msgs, err := h.chat.History(c.Request.Context(), caller.UserID, storeID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
	})
}

func (h *chatHandler) PostMessage(c *gin.Context) {
	caller := Caller(c)
	storeID := c.Param("storeId")

	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("malformed_body", "request body could not be parsed"))
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), caller.UserID, storeID, service.SendInput{
		Body:        req.Body,
		Type:        req.Type,
		Attachments: req.Attachments,
		RecipientID: req.RecipientID,
		ReplyTo:     req.ReplyTo,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": msg,
	})
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	caller := Caller(c)
	messageID := c.Param("id")

	msg, err := h.chat.MarkRead(c.Request.Context(), caller.UserID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": msg,
	})
}

func (h *chatHandler) DeleteMessage(c *gin.Context) {
	caller := Caller(c)
	messageID := c.Param("id")

	msg, err := h.chat.Delete(c.Request.Context(), caller.UserID, messageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": msg,
	})
}

// respondError maps the error taxonomy onto a structured REST error body.
func respondError(c *gin.Context, err error) {
	message := "internal error"
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Message
	}

	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": gin.H{
			"code":    apperr.CodeOf(err),
			"message": message,
		},
	})
}
