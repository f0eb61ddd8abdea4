package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type createNotificationRequest struct {
	UserID  string         `json:"user_id"`
	Type    string         `json:"type" validate:"required,max=64"`
	Title   string         `json:"title" validate:"required,max=255"`
	Message string         `json:"message" validate:"required"`
	Data    map[string]any `json:"data"`
	Channel string         `json:"channel" validate:"omitempty,oneof=push in_app email"`
}

// List returns the caller's own and broadcast notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	limit := parseIntQuery(c, "limit", 25)
	offset := parseIntQuery(c, "offset", 0)

	items, total, err := h.service.ListForUser(requestContext(c), services.ListNotificationsInput{
		UserID:     actor.UserID,
		UnreadOnly: c.Query("unread") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Limit: limit, Offset: offset, Total: total})
}

// MarkRead toggles a notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.updateReadState(c, true)
}

// MarkUnread toggles a notification to unread.
func (h *NotificationHandler) MarkUnread(c *gin.Context) {
	h.updateReadState(c, false)
}

func (h *NotificationHandler) updateReadState(c *gin.Context, read bool) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var (
		dto *services.NotificationDTO
		err error
	)
	if read {
		dto, err = h.service.MarkRead(requestContext(c), actor.UserID, pathID(c))
	} else {
		dto, err = h.service.MarkUnread(requestContext(c), actor.UserID, pathID(c))
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, dto)
}

// Delete removes one of the caller's notifications.
func (h *NotificationHandler) Delete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), actor.UserID, pathID(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// MarkAllRead marks all of the caller's notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if err := h.service.MarkAllRead(requestContext(c), actor.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": true})
}

// Create lets administrators send a notification to one user or, with no user_id, to everyone.
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload createNotificationRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Create(requestContext(c), services.CreateNotificationInput{
		UserID:  payload.UserID,
		Type:    payload.Type,
		Title:   payload.Title,
		Message: payload.Message,
		Data:    payload.Data,
		Channel: payload.Channel,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, dto)
}
