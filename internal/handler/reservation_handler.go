package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/service"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
	"github.com/campushq/campus-admin-api/pkg/response"
)

// ReservationHandler wires HTTP endpoints to the reservation service.
type ReservationHandler struct {
	service *service.ReservationService
}

// NewReservationHandler creates a new handler.
func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{service: svc}
}

// List godoc
// @Summary List reservations
// @Tags Reservations
// @Produce json
// @Param status query string false "Filter by status"
// @Param resource_id query string false "Filter by resource"
// @Param mine query bool false "Only own reservations"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ReservationFilter{
		ResourceID: c.Query("resource_id"),
		Page:       parseIntQuery(c, "page", 1),
		PageSize:   parseIntQuery(c, "page_size", 20),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ReservationStatus(raw)
		filter.Status = &status
	}
	if c.Query("mine") == "true" {
		filter.ReservedBy = claims.UserID
	}
	if from, ok := parseTimeQuery(c, "from"); ok {
		filter.From = &from
	}
	if to, ok := parseTimeQuery(c, "to"); ok {
		filter.To = &to
	}

	reservations, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservations, pagination)
}

// Get godoc
// @Summary Get a reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /reservations/{id} [get]
func (h *ReservationHandler) Get(c *gin.Context) {
	reservation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Submit godoc
// @Summary Submit a reservation request
// @Tags Reservations
// @Accept json
// @Produce json
// @Param payload body service.SubmitReservationRequest true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /reservations [post]
func (h *ReservationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SubmitReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reservation payload"))
		return
	}
	req.RequesterID = claims.UserID

	reservation, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reservation)
}

// Decide godoc
// @Summary Approve or reject a pending reservation
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body service.DecideReservationRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /reservations/{id}/decision [put]
func (h *ReservationHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.DecideReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	req.ActorID = claims.UserID
	req.ReservationID = c.Param("id")

	reservation, err := h.service.Decide(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Cancel godoc
// @Summary Cancel an approved reservation
// @Tags Reservations
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /reservations/{id}/cancel [put]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	reservation, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservation, nil)
}

// Delete godoc
// @Summary Delete a rejected or cancelled reservation
// @Tags Reservations
// @Param id path string true "Reservation ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /reservations/{id} [delete]
func (h *ReservationHandler) Delete(c *gin.Context) {
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

// Export godoc
// @Summary Export the reservation schedule
// @Tags Reservations
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /reservations/export [get]
func (h *ReservationHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := c.DefaultQuery("format", "csv")
	filter := models.ReservationFilter{ResourceID: c.Query("resource_id")}
	if raw := c.Query("status"); raw != "" {
		status := models.ReservationStatus(raw)
		filter.Status = &status
	}

	payload, contentType, err := h.service.Export(c.Request.Context(), claims.UserID, format, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("reservations-%s.%s", time.Now().UTC().Format("2006-01-02"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, false
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return value, true
}
