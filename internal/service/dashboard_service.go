package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campushq/campus-admin-api/internal/models"
	"github.com/campushq/campus-admin-api/internal/repository"
	appErrors "github.com/campushq/campus-admin-api/pkg/errors"
)

type dashboardUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

type dashboardReservationRepository interface {
	CountByStatus(ctx context.Context, status models.ReservationStatus) (int, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}

type dashboardChatRepository interface {
	CountAll(ctx context.Context) (int, error)
	CountByMember(ctx context.Context, userID string) (int, error)
}

type dashboardRosterRepository interface {
	CountCourses(ctx context.Context) (int, error)
	CountAssignmentsForLecturer(ctx context.Context, lecturerID string) (int, error)
	CountEnrollmentsForStudent(ctx context.Context, studentID string) (int, error)
}

type dashboardEventRepository interface {
	CountUpcoming(ctx context.Context, ref time.Time) (int, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// dashboardInvalidator is implemented by DashboardService and accepted by
// services whose writes change dashboard counts.
type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// DashboardSummary is the role-scoped landing page payload. Staff get
// institution-wide totals; lecturers and students get their own slice.
type DashboardSummary struct {
	Role models.UserRole `json:"role"`

	TotalStudents        *int `json:"total_students,omitempty"`
	TotalLecturers       *int `json:"total_lecturers,omitempty"`
	TotalCourses         *int `json:"total_courses,omitempty"`
	PendingReservations  *int `json:"pending_reservations,omitempty"`
	ApprovedReservations *int `json:"approved_reservations,omitempty"`
	TotalChats           *int `json:"total_chats,omitempty"`

	MyAssignments  *int `json:"my_assignments,omitempty"`
	MyEnrollments  *int `json:"my_enrollments,omitempty"`
	MyReservations *int `json:"my_reservations,omitempty"`
	MyChats        *int `json:"my_chats,omitempty"`

	UpcomingEvents int `json:"upcoming_events"`
}

// DashboardService composes role-scoped summaries, cached per user.
type DashboardService struct {
	users        dashboardUserRepository
	reservations dashboardReservationRepository
	chats        dashboardChatRepository
	roster       dashboardRosterRepository
	events       dashboardEventRepository
	cache        dashboardCache
	cacheTTL     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Users        dashboardUserRepository
	Reservations dashboardReservationRepository
	Chats        dashboardChatRepository
	Roster       dashboardRosterRepository
	Events       dashboardEventRepository
	Cache        dashboardCache
	CacheTTL     time.Duration
	Logger       *zap.Logger
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		users:        params.Users,
		reservations: params.Reservations,
		chats:        params.Chats,
		roster:       params.Roster,
		events:       params.Events,
		cache:        params.Cache,
		cacheTTL:     ttl,
		logger:       logger,
		now:          time.Now,
	}
}

// Summary returns the dashboard for the actor and reports cache utilisation.
func (s *DashboardService) Summary(ctx context.Context, actorID string) (*DashboardSummary, bool, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	cacheKey := fmt.Sprintf("dash:%s:%s", actor.Role, actor.ID)
	if s.cache != nil {
		var cached DashboardSummary
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, true, nil
		} else if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}

	summary, err := s.compose(ctx, actor)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return summary, false, nil
}

// Invalidate drops every cached dashboard. Called after writes that change
// the underlying counts; the next read recomputes.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "dash:*"); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func (s *DashboardService) compose(ctx context.Context, actor *models.User) (*DashboardSummary, error) {
	summary := &DashboardSummary{Role: actor.Role}

	upcoming, err := s.events.CountUpcoming(ctx, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count events")
	}
	summary.UpcomingEvents = upcoming

	if actor.Role.IsStaff() {
		return s.composeStaff(ctx, summary)
	}

	myReservations, err := s.reservations.CountByUser(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reservations")
	}
	summary.MyReservations = &myReservations

	myChats, err := s.chats.CountByMember(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count chats")
	}
	summary.MyChats = &myChats

	switch actor.Role {
	case models.RoleLecturer:
		assignments, err := s.roster.CountAssignmentsForLecturer(ctx, actor.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assignments")
		}
		summary.MyAssignments = &assignments
	case models.RoleStudent:
		enrollments, err := s.roster.CountEnrollmentsForStudent(ctx, actor.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
		}
		summary.MyEnrollments = &enrollments
	}
	return summary, nil
}

func (s *DashboardService) composeStaff(ctx context.Context, summary *DashboardSummary) (*DashboardSummary, error) {
	students, err := s.users.CountByRole(ctx, models.RoleStudent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	summary.TotalStudents = &students

	lecturers, err := s.users.CountByRole(ctx, models.RoleLecturer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lecturers")
	}
	summary.TotalLecturers = &lecturers

	courses, err := s.roster.CountCourses(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count courses")
	}
	summary.TotalCourses = &courses

	pending, err := s.reservations.CountByStatus(ctx, models.ReservationPending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reservations")
	}
	summary.PendingReservations = &pending

	approved, err := s.reservations.CountByStatus(ctx, models.ReservationApproved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count reservations")
	}
	summary.ApprovedReservations = &approved

	chats, err := s.chats.CountAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count chats")
	}
	summary.TotalChats = &chats

	return summary, nil
}
