package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/service"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
	"github.com/campushq/campus-admin-api/pkg/response"
)

// ResourceHandler wires HTTP endpoints to the resource service.
type ResourceHandler struct {
	service *service.ResourceService
}

// NewResourceHandler creates a new handler.
func NewResourceHandler(svc *service.ResourceService) *ResourceHandler {
	return &ResourceHandler{service: svc}
}

// List godoc
// @Summary List reservable resources
// @Tags Resources
// @Produce json
// @Param category query string false "Filter by category"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /resources [get]
func (h *ResourceHandler) List(c *gin.Context) {
	var category *models.ResourceCategory
	if raw := c.Query("category"); raw != "" {
		value := models.ResourceCategory(raw)
		category = &value
	}
	resources, err := h.service.List(c.Request.Context(), category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, nil)
}

// Get godoc
// @Summary Get a resource
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /resources/{id} [get]
func (h *ResourceHandler) Get(c *gin.Context) {
	resource, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

// Create godoc
// @Summary Create a resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param payload body service.ResourceRequest true "Resource payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /resources [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resource payload"))
		return
	}

	resource, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resource)
}

// Update godoc
// @Summary Update a resource
// @Tags Resources
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body service.ResourceRequest true "Resource payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /resources/{id} [put]
func (h *ResourceHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resource payload"))
		return
	}

	resource, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resource, nil)
}

// Delete godoc
// @Summary Delete a resource
// @Tags Resources
// @Param id path string true "Resource ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
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
