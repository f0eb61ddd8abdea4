package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/response"
)

// DeviceHandler manages push device registrations for the current user.
type DeviceHandler struct {
	service *services.DeviceService
}

// NewDeviceHandler constructs a device handler.
func NewDeviceHandler(service *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{service: service}
}

type registerDeviceRequest struct {
	Platform          string         `json:"platform" validate:"required,platform"`
	RegistrationToken string         `json:"registration_token" validate:"required,max=512"`
	Metadata          map[string]any `json:"metadata"`
}

type unregisterDeviceRequest struct {
	RegistrationToken string `json:"registration_token" validate:"required"`
}

// Register upserts the caller's device token and marks it active.
func (h *DeviceHandler) Register(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload registerDeviceRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Register(requestContext(c), services.RegisterDeviceInput{
		UserID:            actor.UserID,
		Platform:          payload.Platform,
		RegistrationToken: payload.RegistrationToken,
		Metadata:          payload.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}

// Unregister deactivates a device token.
func (h *DeviceHandler) Unregister(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload unregisterDeviceRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	if err := h.service.Unregister(requestContext(c), actor.UserID, payload.RegistrationToken); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unregistered": true})
}

// List returns the caller's devices.
func (h *DeviceHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	items, err := h.service.ListForUser(requestContext(c), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}
