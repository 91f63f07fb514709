package models

import "time"

// Course is a programme of study offered by the institution.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Batch is an intake of a course, e.g. "2026-spring".
type Batch struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Module is a teaching unit within a course.
type Module struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LecturerModule assigns a lecturer to teach a module for a specific
// course and batch. The (course, batch, module) triple is the scope key
// used for chat creation eligibility.
type LecturerModule struct {
	ID         string    `db:"id" json:"id"`
	LecturerID string    `db:"lecturer_id" json:"lecturer_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	BatchID    string    `db:"batch_id" json:"batch_id"`
	ModuleID   string    `db:"module_id" json:"module_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StudentCourse enrolls a student into a course intake.
type StudentCourse struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StudentCourseModule assigns an enrolled student to a module of their course.
type StudentCourseModule struct {
	ID              string    `db:"id" json:"id"`
	StudentCourseID string    `db:"student_course_id" json:"student_course_id"`
	ModuleID        string    `db:"module_id" json:"module_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
