package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campushq/campus-admin-api/internal/service"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
	"github.com/campushq/campus-admin-api/pkg/response"
)

// RosterHandler wires HTTP endpoints to the roster service.
type RosterHandler struct {
	service *service.RosterService
}

// NewRosterHandler creates a new handler.
func NewRosterHandler(svc *service.RosterService) *RosterHandler {
	return &RosterHandler{service: svc}
}

// ListCourses godoc
// @Summary List courses visible to the current user
// @Tags Roster
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *RosterHandler) ListCourses(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	courses, err := h.service.ListCourses(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// CreateCourse godoc
// @Summary Create a course
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body service.CourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *RosterHandler) CreateCourse(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.service.CreateCourse(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// DeleteCourse godoc
// @Summary Delete a course
// @Tags Roster
// @Param id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [delete]
func (h *RosterHandler) DeleteCourse(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteCourse(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListBatches godoc
// @Summary List batches of a course
// @Tags Roster
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/batches [get]
func (h *RosterHandler) ListBatches(c *gin.Context) {
	batches, err := h.service.ListBatches(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, batches, nil)
}

// CreateBatch godoc
// @Summary Create a batch
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body service.BatchRequest true "Batch payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /batches [post]
func (h *RosterHandler) CreateBatch(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid batch payload"))
		return
	}

	batch, err := h.service.CreateBatch(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, batch)
}

// DeleteBatch godoc
// @Summary Delete a batch
// @Tags Roster
// @Param id path string true "Batch ID"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /batches/{id} [delete]
func (h *RosterHandler) DeleteBatch(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteBatch(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListModules godoc
// @Summary List modules of a course
// @Tags Roster
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/modules [get]
func (h *RosterHandler) ListModules(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	modules, err := h.service.ListModules(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, modules, nil)
}

// CreateModule godoc
// @Summary Create a module
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body service.ModuleRequest true "Module payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /modules [post]
func (h *RosterHandler) CreateModule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid module payload"))
		return
	}

	module, err := h.service.CreateModule(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, module)
}

// DeleteModule godoc
// @Summary Delete a module
// @Tags Roster
// @Param id path string true "Module ID"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /modules/{id} [delete]
func (h *RosterHandler) DeleteModule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteModule(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignLecturer godoc
// @Summary Assign a lecturer to a course, batch and module
// @Tags Roster
// @Accept json
// @Param payload body service.LecturerAssignmentRequest true "Assignment payload"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/lecturers [post]
func (h *RosterHandler) AssignLecturer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.LecturerAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	if err := h.service.AssignLecturer(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UnassignLecturer godoc
// @Summary Remove a lecturer assignment
// @Tags Roster
// @Accept json
// @Param payload body service.LecturerAssignmentRequest true "Assignment payload"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /assignments/lecturers [delete]
func (h *RosterHandler) UnassignLecturer(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.LecturerAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	if err := h.service.UnassignLecturer(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EnrollStudent godoc
// @Summary Enroll a student into a course batch
// @Tags Roster
// @Accept json
// @Param payload body service.EnrollmentRequest true "Enrollment payload"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [post]
func (h *RosterHandler) EnrollStudent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid enrollment payload"))
		return
	}

	if err := h.service.EnrollStudent(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignStudentModule godoc
// @Summary Assign an enrolled student to a module
// @Tags Roster
// @Accept json
// @Param payload body service.StudentModuleRequest true "Assignment payload"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/modules [post]
func (h *RosterHandler) AssignStudentModule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.StudentModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	if err := h.service.AssignStudentModule(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UnassignStudentModule godoc
// @Summary Remove a student module assignment
// @Tags Roster
// @Accept json
// @Param payload body service.StudentModuleRequest true "Assignment payload"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/modules [delete]
func (h *RosterHandler) UnassignStudentModule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.StudentModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	if err := h.service.UnassignStudentModule(c.Request.Context(), claims.UserID, req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
