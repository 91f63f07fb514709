package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushq/campus-admin-api/internal/models"
)

// RosterRepository persists courses, batches, modules and the assignment
// join tables used to resolve chat eligibility and membership.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository instantiates a roster repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// CreateCourse inserts a course.
func (r *RosterRepository) CreateCourse(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, name, code, created_at, updated_at) VALUES (:id, :name, :code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// GetCourse returns a course by identifier.
func (r *RosterRepository) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, `SELECT id, name, code, created_at, updated_at FROM courses WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListCourses returns all courses ordered by name.
func (r *RosterRepository) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, `SELECT id, name, code, created_at, updated_at FROM courses ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// ListCoursesForLecturer returns the distinct courses a lecturer teaches in.
func (r *RosterRepository) ListCoursesForLecturer(ctx context.Context, lecturerID string) ([]models.Course, error) {
	const query = `SELECT DISTINCT c.id, c.name, c.code, c.created_at, c.updated_at
FROM courses c
JOIN lecturer_modules lm ON lm.course_id = c.id
WHERE lm.lecturer_id = $1
ORDER BY c.name`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, lecturerID); err != nil {
		return nil, fmt.Errorf("list courses for lecturer: %w", err)
	}
	return courses, nil
}

// DeleteCourse removes a course; batches, modules and assignments cascade.
func (r *RosterRepository) DeleteCourse(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// CreateBatch inserts a batch for a course.
func (r *RosterRepository) CreateBatch(ctx context.Context, batch *models.Batch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	batch.CreatedAt = now
	batch.UpdatedAt = now
	const query = `INSERT INTO batches (id, course_id, code, created_at, updated_at) VALUES (:id, :course_id, :code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// ListBatches returns batches of a course.
func (r *RosterRepository) ListBatches(ctx context.Context, courseID string) ([]models.Batch, error) {
	const query = `SELECT id, course_id, code, created_at, updated_at FROM batches WHERE course_id = $1 ORDER BY code`
	var batches []models.Batch
	if err := r.db.SelectContext(ctx, &batches, query, courseID); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes a batch.
func (r *RosterRepository) DeleteBatch(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// CreateModule inserts a module for a course.
func (r *RosterRepository) CreateModule(ctx context.Context, module *models.Module) error {
	if module.ID == "" {
		module.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	module.CreatedAt = now
	module.UpdatedAt = now
	const query = `INSERT INTO modules (id, course_id, name, code, created_at, updated_at) VALUES (:id, :course_id, :name, :code, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, module); err != nil {
		return fmt.Errorf("create module: %w", err)
	}
	return nil
}

// ListModules returns modules of a course.
func (r *RosterRepository) ListModules(ctx context.Context, courseID string) ([]models.Module, error) {
	const query = `SELECT id, course_id, name, code, created_at, updated_at FROM modules WHERE course_id = $1 ORDER BY name`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, courseID); err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// ListModulesForLecturer returns modules of a course the lecturer is assigned to.
func (r *RosterRepository) ListModulesForLecturer(ctx context.Context, lecturerID, courseID string) ([]models.Module, error) {
	const query = `SELECT DISTINCT m.id, m.course_id, m.name, m.code, m.created_at, m.updated_at
FROM modules m
JOIN lecturer_modules lm ON lm.module_id = m.id
WHERE lm.lecturer_id = $1 AND lm.course_id = $2
ORDER BY m.name`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, query, lecturerID, courseID); err != nil {
		return nil, fmt.Errorf("list modules for lecturer: %w", err)
	}
	return modules, nil
}

// DeleteModule removes a module.
func (r *RosterRepository) DeleteModule(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM modules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete module: %w", err)
	}
	return nil
}

// AssignLecturer records a lecturer teaching assignment for a course+batch+module.
func (r *RosterRepository) AssignLecturer(ctx context.Context, assignment *models.LecturerModule) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lecturer_modules (id, lecturer_id, course_id, batch_id, module_id, created_at)
VALUES (:id, :lecturer_id, :course_id, :batch_id, :module_id, :created_at)
ON CONFLICT DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("assign lecturer: %w", err)
	}
	return nil
}

// UnassignLecturer removes a lecturer teaching assignment.
func (r *RosterRepository) UnassignLecturer(ctx context.Context, lecturerID, courseID, batchID, moduleID string) error {
	const query = `DELETE FROM lecturer_modules WHERE lecturer_id = $1 AND course_id = $2 AND batch_id = $3 AND module_id = $4`
	if _, err := r.db.ExecContext(ctx, query, lecturerID, courseID, batchID, moduleID); err != nil {
		return fmt.Errorf("unassign lecturer: %w", err)
	}
	return nil
}

// IsLecturerAssigned reports whether a lecturer teaches in the given scope.
// A nil moduleID matches any of the lecturer's assignments within course+batch.
func (r *RosterRepository) IsLecturerAssigned(ctx context.Context, lecturerID, courseID, batchID string, moduleID *string) (bool, error) {
	var exists bool
	if moduleID != nil {
		const query = `SELECT EXISTS (SELECT 1 FROM lecturer_modules WHERE lecturer_id = $1 AND course_id = $2 AND batch_id = $3 AND module_id = $4)`
		if err := r.db.GetContext(ctx, &exists, query, lecturerID, courseID, batchID, *moduleID); err != nil {
			return false, fmt.Errorf("check lecturer assignment: %w", err)
		}
		return exists, nil
	}
	const query = `SELECT EXISTS (SELECT 1 FROM lecturer_modules WHERE lecturer_id = $1 AND course_id = $2 AND batch_id = $3)`
	if err := r.db.GetContext(ctx, &exists, query, lecturerID, courseID, batchID); err != nil {
		return false, fmt.Errorf("check lecturer assignment: %w", err)
	}
	return exists, nil
}

// EnrollStudent inserts a student_courses row.
func (r *RosterRepository) EnrollStudent(ctx context.Context, enrollment *models.StudentCourse) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_courses (id, student_id, course_id, batch_id, created_at)
VALUES (:id, :student_id, :course_id, :batch_id, :created_at)
ON CONFLICT DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}

// FindEnrollment returns the student's enrollment row for a course+batch.
func (r *RosterRepository) FindEnrollment(ctx context.Context, studentID, courseID, batchID string) (*models.StudentCourse, error) {
	const query = `SELECT id, student_id, course_id, batch_id, created_at FROM student_courses WHERE student_id = $1 AND course_id = $2 AND batch_id = $3`
	var enrollment models.StudentCourse
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID, batchID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// AssignStudentModule links an enrollment to a module.
func (r *RosterRepository) AssignStudentModule(ctx context.Context, assignment *models.StudentCourseModule) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_course_modules (id, student_course_id, module_id, created_at)
VALUES (:id, :student_course_id, :module_id, :created_at)
ON CONFLICT DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("assign student module: %w", err)
	}
	return nil
}

// UnassignStudentModule removes a module assignment from an enrollment.
func (r *RosterRepository) UnassignStudentModule(ctx context.Context, studentCourseID, moduleID string) error {
	const query = `DELETE FROM student_course_modules WHERE student_course_id = $1 AND module_id = $2`
	if _, err := r.db.ExecContext(ctx, query, studentCourseID, moduleID); err != nil {
		return fmt.Errorf("unassign student module: %w", err)
	}
	return nil
}

// StudentIDsForCourseBatch returns all students enrolled in a course+batch.
func (r *RosterRepository) StudentIDsForCourseBatch(ctx context.Context, courseID, batchID string) ([]string, error) {
	const query = `SELECT student_id FROM student_courses WHERE course_id = $1 AND batch_id = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, batchID); err != nil {
		return nil, fmt.Errorf("students for course batch: %w", err)
	}
	return ids, nil
}

// StudentIDsForModule returns students enrolled in course+batch who are
// also assigned to the module, via the student_course chain.
func (r *RosterRepository) StudentIDsForModule(ctx context.Context, courseID, batchID, moduleID string) ([]string, error) {
	const query = `SELECT DISTINCT sc.student_id
FROM student_courses sc
JOIN student_course_modules scm ON scm.student_course_id = sc.id
WHERE sc.course_id = $1 AND sc.batch_id = $2 AND scm.module_id = $3`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, batchID, moduleID); err != nil {
		return nil, fmt.Errorf("students for module: %w", err)
	}
	return ids, nil
}

// LecturerIDsForModule returns lecturers assigned to the exact course+batch+module.
func (r *RosterRepository) LecturerIDsForModule(ctx context.Context, courseID, batchID, moduleID string) ([]string, error) {
	const query = `SELECT DISTINCT lecturer_id FROM lecturer_modules WHERE course_id = $1 AND batch_id = $2 AND module_id = $3`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID, batchID, moduleID); err != nil {
		return nil, fmt.Errorf("lecturers for module: %w", err)
	}
	return ids, nil
}

// CountAssignmentsForLecturer returns the lecturer's teaching assignment count.
func (r *RosterRepository) CountAssignmentsForLecturer(ctx context.Context, lecturerID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM lecturer_modules WHERE lecturer_id = $1`, lecturerID); err != nil {
		return 0, fmt.Errorf("count lecturer assignments: %w", err)
	}
	return total, nil
}

// CountEnrollmentsForStudent returns the student's enrollment count.
func (r *RosterRepository) CountEnrollmentsForStudent(ctx context.Context, studentID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM student_courses WHERE student_id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("count student enrollments: %w", err)
	}
	return total, nil
}

// CountCourses returns the total number of courses.
func (r *RosterRepository) CountCourses(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses`); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}
