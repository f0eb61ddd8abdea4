package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/anandyadav-dev/HunarMitra-Backend/internal/middleware"
	"github.com/anandyadav-dev/HunarMitra-Backend/internal/services"
	"github.com/anandyadav-dev/HunarMitra-Backend/pkg/response"
)

// EmergencySettingsFunc returns the intake toggles in force for a request. It is called per
// request so configuration reloads take effect without rebuilding handlers.
type EmergencySettingsFunc func() services.EmergencySettings

// EmergencyHandler exposes the emergency lifecycle over HTTP.
type EmergencyHandler struct {
	service  *services.EmergencyService
	settings EmergencySettingsFunc
}

// NewEmergencyHandler constructs an emergency handler.
func NewEmergencyHandler(service *services.EmergencyService, settings EmergencySettingsFunc) *EmergencyHandler {
	if settings == nil {
		settings = func() services.EmergencySettings { return services.EmergencySettings{} }
	}
	return &EmergencyHandler{service: service, settings: settings}
}

type createEmergencyRequest struct {
	ContactPhone       string   `json:"contact_phone" validate:"required,phone"`
	Latitude           *float64 `json:"latitude" validate:"required"`
	Longitude          *float64 `json:"longitude" validate:"required"`
	AddressText        string   `json:"address_text" validate:"max=500"`
	ServiceID          string   `json:"service_id"`
	ServiceDescription string   `json:"service_description" validate:"max=1000"`
	Urgency            string   `json:"urgency" validate:"max=16"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=1000"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// Create accepts an emergency from an authenticated or anonymous requester.
func (h *EmergencyHandler) Create(c *gin.Context) {
	var payload createEmergencyRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	result, err := h.service.Create(requestContext(c), middleware.ActorFrom(c), services.CreateEmergencyInput{
		ContactPhone:       payload.ContactPhone,
		Latitude:           *payload.Latitude,
		Longitude:          *payload.Longitude,
		AddressText:        payload.AddressText,
		ServiceID:          payload.ServiceID,
		ServiceDescription: payload.ServiceDescription,
		Urgency:            payload.Urgency,
	}, h.settings())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

// List returns the emergencies visible to the caller.
func (h *EmergencyHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	limit := parseIntQuery(c, "limit", 25)
	offset := parseIntQuery(c, "offset", 0)

	items, total, err := h.service.List(requestContext(c), actor, services.ListEmergenciesInput{
		Status: strings.TrimSpace(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Limit: limit, Offset: offset, Total: total})
}

// Get returns one emergency with its dispatch log.
func (h *EmergencyHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	dto, err := h.service.Get(requestContext(c), actor, pathID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// Accept claims the emergency for the calling worker. Only the first accept succeeds.
func (h *EmergencyHandler) Accept(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	dto, err := h.service.Accept(requestContext(c), actor, pathID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// Decline records that the calling worker will not respond.
func (h *EmergencyHandler) Decline(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if err := h.service.Decline(requestContext(c), actor, pathID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"declined": true})
}

// UpdateStatus applies an administrative status transition.
func (h *EmergencyHandler) UpdateStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload updateStatusRequest
	if !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.UpdateStatus(requestContext(c), actor, pathID(c), services.UpdateStatusInput{
		Status: payload.Status,
		Notes:  payload.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// Cancel cancels an emergency on behalf of its requester or an administrator.
func (h *EmergencyHandler) Cancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var payload cancelRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &payload) {
		return
	}

	dto, err := h.service.Cancel(requestContext(c), actor, pathID(c), payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// Dispatch queues a dispatch run for an open emergency.
func (h *EmergencyHandler) Dispatch(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	if err := h.service.RequestDispatch(requestContext(c), actor, pathID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"dispatch_status": services.DispatchModeQueued})
}

// Timeline returns the recorded lifecycle events of an emergency.
func (h *EmergencyHandler) Timeline(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	events, err := h.service.Timeline(requestContext(c), actor, pathID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, events)
}
