package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/authz"
	"github.com/campushq/campus-admin-api/internal/models"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type rosterRepository interface {
	CreateCourse(ctx context.Context, course *models.Course) error
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	ListCoursesForLecturer(ctx context.Context, lecturerID string) ([]models.Course, error)
	DeleteCourse(ctx context.Context, id string) error
	CreateBatch(ctx context.Context, batch *models.Batch) error
	ListBatches(ctx context.Context, courseID string) ([]models.Batch, error)
	DeleteBatch(ctx context.Context, id string) error
	CreateModule(ctx context.Context, module *models.Module) error
	ListModules(ctx context.Context, courseID string) ([]models.Module, error)
	ListModulesForLecturer(ctx context.Context, lecturerID, courseID string) ([]models.Module, error)
	DeleteModule(ctx context.Context, id string) error
	AssignLecturer(ctx context.Context, assignment *models.LecturerModule) error
	UnassignLecturer(ctx context.Context, lecturerID, courseID, batchID, moduleID string) error
	EnrollStudent(ctx context.Context, enrollment *models.StudentCourse) error
	FindEnrollment(ctx context.Context, studentID, courseID, batchID string) (*models.StudentCourse, error)
	AssignStudentModule(ctx context.Context, assignment *models.StudentCourseModule) error
	UnassignStudentModule(ctx context.Context, studentCourseID, moduleID string) error
}

type rosterActorRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CourseRequest is the payload for creating a course.
type CourseRequest struct {
	Name string `json:"name" validate:"required,max=255"`
	Code string `json:"code" validate:"required,max=50"`
}

// BatchRequest is the payload for creating a batch within a course.
type BatchRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Code     string `json:"code" validate:"required,max=50"`
}

// ModuleRequest is the payload for creating a module within a course.
type ModuleRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Name     string `json:"name" validate:"required,max=255"`
	Code     string `json:"code" validate:"required,max=50"`
}

// LecturerAssignmentRequest binds a lecturer to a (course, batch, module) triple.
type LecturerAssignmentRequest struct {
	LecturerID string `json:"lecturer_id" validate:"required"`
	CourseID   string `json:"course_id" validate:"required"`
	BatchID    string `json:"batch_id" validate:"required"`
	ModuleID   string `json:"module_id" validate:"required"`
}

// EnrollmentRequest enrolls a student into a course intake.
type EnrollmentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
}

// StudentModuleRequest assigns an enrolled student to one of their course's modules.
type StudentModuleRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	BatchID   string `json:"batch_id" validate:"required"`
	ModuleID  string `json:"module_id" validate:"required"`
}

// RosterService manages courses, batches, modules and the assignments that
// chat membership resolution reads from.
type RosterService struct {
	repo      rosterRepository
	users     rosterActorRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService constructs the service.
func NewRosterService(repo rosterRepository, users rosterActorRepository, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{repo: repo, users: users, validator: validate, logger: logger}
}

// ListCourses returns courses visible to the actor. Lecturers see only
// courses they are assigned to teach; everyone else sees all courses.
func (s *RosterService) ListCourses(ctx context.Context, actorID string) ([]models.Course, error) {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	var courses []models.Course
	if actor.Role == models.RoleLecturer {
		courses, err = s.repo.ListCoursesForLecturer(ctx, actor.ID)
	} else {
		courses, err = s.repo.ListCourses(ctx)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// CreateCourse adds a course. Staff only.
func (s *RosterService) CreateCourse(ctx context.Context, actorID string, req CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}
	course := &models.Course{Name: req.Name, Code: req.Code}
	if err := s.repo.CreateCourse(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// DeleteCourse removes a course. Staff only.
func (s *RosterService) DeleteCourse(ctx context.Context, actorID, id string) error {
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.repo.GetCourse(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.repo.DeleteCourse(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

// ListBatches returns the batches of a course.
func (s *RosterService) ListBatches(ctx context.Context, courseID string) ([]models.Batch, error) {
	batches, err := s.repo.ListBatches(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list batches")
	}
	return batches, nil
}

// CreateBatch adds an intake to a course. Staff only.
func (s *RosterService) CreateBatch(ctx context.Context, actorID string, req BatchRequest) (*models.Batch, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid batch payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}
	if err := s.requireCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}
	batch := &models.Batch{CourseID: req.CourseID, Code: req.Code}
	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create batch")
	}
	return batch, nil
}

// DeleteBatch removes a batch. Staff only.
func (s *RosterService) DeleteBatch(ctx context.Context, actorID, id string) error {
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.DeleteBatch(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete batch")
	}
	return nil
}

// ListModules returns the modules of a course, scoped to the lecturer's
// assignments when the actor is a lecturer.
func (s *RosterService) ListModules(ctx context.Context, actorID, courseID string) ([]models.Module, error) {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	var modules []models.Module
	if actor.Role == models.RoleLecturer {
		modules, err = s.repo.ListModulesForLecturer(ctx, actor.ID, courseID)
	} else {
		modules, err = s.repo.ListModules(ctx, courseID)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list modules")
	}
	return modules, nil
}

// CreateModule adds a module to a course. Staff only.
func (s *RosterService) CreateModule(ctx context.Context, actorID string, req ModuleRequest) (*models.Module, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid module payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return nil, err
	}
	if err := s.requireCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}
	module := &models.Module{CourseID: req.CourseID, Name: req.Name, Code: req.Code}
	if err := s.repo.CreateModule(ctx, module); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create module")
	}
	return module, nil
}

// DeleteModule removes a module. Staff only.
func (s *RosterService) DeleteModule(ctx context.Context, actorID, id string) error {
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.DeleteModule(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete module")
	}
	return nil
}

// AssignLecturer binds a lecturer to teach a module in a course batch. Staff only.
func (s *RosterService) AssignLecturer(ctx context.Context, actorID string, req LecturerAssignmentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	lecturer, err := s.loadUser(ctx, req.LecturerID)
	if err != nil {
		return err
	}
	if lecturer.Role != models.RoleLecturer {
		return appErrors.Clone(appErrors.ErrValidation, "assignee is not a lecturer")
	}
	assignment := &models.LecturerModule{
		LecturerID: req.LecturerID,
		CourseID:   req.CourseID,
		BatchID:    req.BatchID,
		ModuleID:   req.ModuleID,
	}
	if err := s.repo.AssignLecturer(ctx, assignment); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign lecturer")
	}
	return nil
}

// UnassignLecturer removes a teaching assignment. Staff only.
func (s *RosterService) UnassignLecturer(ctx context.Context, actorID string, req LecturerAssignmentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.UnassignLecturer(ctx, req.LecturerID, req.CourseID, req.BatchID, req.ModuleID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign lecturer")
	}
	return nil
}

// EnrollStudent enrolls a student into a course batch. Staff only.
func (s *RosterService) EnrollStudent(ctx context.Context, actorID string, req EnrollmentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	student, err := s.loadUser(ctx, req.StudentID)
	if err != nil {
		return err
	}
	if student.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrValidation, "enrollee is not a student")
	}
	enrollment := &models.StudentCourse{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
		BatchID:   req.BatchID,
	}
	if err := s.repo.EnrollStudent(ctx, enrollment); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}
	return nil
}

// AssignStudentModule attaches a module to an existing enrollment. Staff only.
func (s *RosterService) AssignStudentModule(ctx context.Context, actorID string, req StudentModuleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	enrollment, err := s.repo.FindEnrollment(ctx, req.StudentID, req.CourseID, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course batch")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	assignment := &models.StudentCourseModule{
		StudentCourseID: enrollment.ID,
		ModuleID:        req.ModuleID,
	}
	if err := s.repo.AssignStudentModule(ctx, assignment); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign module")
	}
	return nil
}

// UnassignStudentModule detaches a module from an enrollment. Staff only.
func (s *RosterService) UnassignStudentModule(ctx context.Context, actorID string, req StudentModuleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if err := s.requireManage(ctx, actorID); err != nil {
		return err
	}
	enrollment, err := s.repo.FindEnrollment(ctx, req.StudentID, req.CourseID, req.BatchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course batch")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if err := s.repo.UnassignStudentModule(ctx, enrollment.ID, req.ModuleID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign module")
	}
	return nil
}

func (s *RosterService) requireManage(ctx context.Context, actorID string) error {
	actor, err := s.loadUser(ctx, actorID)
	if err != nil {
		return err
	}
	if !authz.Can(actor.Role, authz.RosterManage, authz.Subject{ActorID: actor.ID}) {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage the roster")
	}
	return nil
}

func (s *RosterService) requireCourse(ctx context.Context, courseID string) error {
	if _, err := s.repo.GetCourse(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return nil
}

func (s *RosterService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
