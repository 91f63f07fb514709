package models

import "time"

// Chat is a group conversation scoped to a course/batch and optionally a module.
type Chat struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatorID string    `db:"creator_id" json:"creator_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	BatchID   string    `db:"batch_id" json:"batch_id"`
	ModuleID  *string   `db:"module_id" json:"module_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	CourseName  *string `db:"course_name" json:"course_name,omitempty"`
	BatchCode   *string `db:"batch_code" json:"batch_code,omitempty"`
	ModuleName  *string `db:"module_name" json:"module_name,omitempty"`
	CreatorName *string `db:"creator_name" json:"creator_name,omitempty"`
}

// ChatMember is a row of the explicit chat membership relation. Membership
// is a snapshot taken at chat creation; roster changes never rewrite it.
type ChatMember struct {
	ChatID   string    `db:"chat_id" json:"chat_id"`
	UserID   string    `db:"user_id" json:"user_id"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`

	FullName *string   `db:"full_name" json:"full_name,omitempty"`
	Role     *UserRole `db:"role" json:"role,omitempty"`
}

// ChatMessage is a text message posted inside a chat.
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	AuthorName *string `db:"author_name" json:"author_name,omitempty"`
}

// ChatFile records metadata for an attachment; the bytes live in external storage.
type ChatFile struct {
	ID         string    `db:"id" json:"id"`
	ChatID     string    `db:"chat_id" json:"chat_id"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	FileName   string    `db:"file_name" json:"file_name"`
	Path       string    `db:"path" json:"path"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	UploaderName *string `db:"uploader_name" json:"uploader_name,omitempty"`
}
