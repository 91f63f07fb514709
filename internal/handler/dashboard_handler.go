package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-admin-api/internal/service"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
	"github.com/campushq/campus-admin-api/pkg/response"
)

// DashboardHandler wires HTTP endpoints to the dashboard service.
type DashboardHandler struct {
	service *service.DashboardService
	metrics *service.MetricsService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService, metrics *service.MetricsService) *DashboardHandler {
	return &DashboardHandler{service: svc, metrics: metrics}
}

// Summary godoc
// @Summary Role-scoped dashboard summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	summary, cached, err := h.service.Summary(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordCacheOperation(cached)

	response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{"cached": cached})
}
