package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-admin-api/internal/service"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
	"github.com/campushq/campus-admin-api/pkg/response"
)

// EventHandler wires HTTP endpoints to the event service.
type EventHandler struct {
	service *service.EventService
}

// NewEventHandler creates a new handler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{service: svc}
}

// ListCategories godoc
// @Summary List event categories
// @Tags Events
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events/categories [get]
func (h *EventHandler) ListCategories(c *gin.Context) {
	categories, err := h.service.ListCategories(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// CreateCategory godoc
// @Summary Create an event category
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body service.EventCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /events/categories [post]
func (h *EventHandler) CreateCategory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EventCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid category payload"))
		return
	}

	category, err := h.service.CreateCategory(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// DeleteCategory godoc
// @Summary Delete an event category
// @Tags Events
// @Param id path string true "Category ID"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /events/categories/{id} [delete]
func (h *EventHandler) DeleteCategory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteCategory(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param scope query string false "upcoming (default) or past"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var err error
	var events interface{}
	if c.DefaultQuery("scope", "upcoming") == "past" {
		events, err = h.service.ListPast(c.Request.Context())
	} else {
		events, err = h.service.ListUpcoming(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Get godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Announce an event
// @Description Accepts multipart form data with an "event" JSON part and an optional "image" file.
// @Tags Events
// @Accept multipart/form-data
// @Produce json
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EventRequest
	if err := json.Unmarshal([]byte(c.PostForm("event")), &req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}

	var imageName string
	var image io.Reader
	if fileHeader, err := c.FormFile("image"); err == nil {
		src, err := fileHeader.Open()
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read image"))
			return
		}
		defer src.Close()
		imageName = fileHeader.Filename
		image = src
	}

	event, err := h.service.Create(c.Request.Context(), claims.UserID, req, imageName, image)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Update an event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body service.EventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}

	event, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete an event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
