package canvas

import "time"

// Course is a Canvas course as returned by the courses API.
type Course struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	CourseCode    string     `json:"course_code,omitempty"`
	WorkflowState string     `json:"workflow_state,omitempty"`
	StartAt       *time.Time `json:"start_at,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	TotalStudents int        `json:"total_students,omitempty"`
}

// Assignment is a Canvas assignment.
type Assignment struct {
	ID              int64      `json:"id"`
	CourseID        int64      `json:"course_id,omitempty"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	DueAt           *time.Time `json:"due_at,omitempty"`
	PointsPossible  float64    `json:"points_possible,omitempty"`
	SubmissionTypes []string   `json:"submission_types,omitempty"`
	Published       bool       `json:"published,omitempty"`
	HTMLURL         string     `json:"html_url,omitempty"`
}

// Submission types as reported by the Canvas API in the
// "submission_type" field.  An absent submission is reported with an
// empty type.
const (
	SubmissionTypeTextEntry      = "online_text_entry"
	SubmissionTypeFileUpload     = "online_upload"
	SubmissionTypeURL            = "online_url"
	SubmissionTypeMediaRecording = "media_recording"
	SubmissionTypeNone           = ""
)

// Submission is a student's submission for one assignment.  It is
// read-only from this package's perspective except for the explicit
// grade/comment write calls.
type Submission struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"user_id"`
	AssignmentID   int64        `json:"assignment_id"`
	Body           *string      `json:"body"`
	SubmissionType string       `json:"submission_type,omitempty"`
	WorkflowState  string       `json:"workflow_state,omitempty"`
	Grade          *string      `json:"grade,omitempty"`
	Score          *float64     `json:"score,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Attempt        int          `json:"attempt,omitempty"`
	SubmittedAt    *time.Time   `json:"submitted_at,omitempty"`
	Late           bool         `json:"late,omitempty"`
	Missing        bool         `json:"missing,omitempty"`
}

// Attachment is a file attached to a submission.  Canvas serialises the
// content type under the dashed "content-type" key.
type Attachment struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name,omitempty"`
	Filename    string     `json:"filename"`
	ContentType string     `json:"content-type,omitempty"`
	Size        int64      `json:"size"`
	URL         string     `json:"url,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	// SubmissionID tags the owning submission; it is populated by
	// ListAttachments, not by the Canvas API itself.
	SubmissionID int64 `json:"submission_id,omitempty"`
}

// Module is an organisational unit of course content.
type Module struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Position   int    `json:"position,omitempty"`
	ItemsCount int    `json:"items_count,omitempty"`
	State      string `json:"state,omitempty"`
	Published  bool   `json:"published,omitempty"`
}

// Page is a wiki page within a course.  Body is only populated when a
// single page is fetched, never by the listing call.
type Page struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	Published bool       `json:"published,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Section is a course section.
type Section struct {
	ID            int64  `json:"id"`
	CourseID      int64  `json:"course_id,omitempty"`
	Name          string `json:"name"`
	TotalStudents int    `json:"total_students,omitempty"`
}

// Rubric is a grading rubric with its criteria.
type Rubric struct {
	ID             int64             `json:"id"`
	Title          string            `json:"title"`
	PointsPossible float64           `json:"points_possible,omitempty"`
	Criteria       []RubricCriterion `json:"data,omitempty"`
}

// RubricCriterion is a single row of a rubric.
type RubricCriterion struct {
	ID              string  `json:"id"`
	Description     string  `json:"description,omitempty"`
	LongDescription string  `json:"long_description,omitempty"`
	Points          float64 `json:"points,omitempty"`
}
