package mcp

// In this file: MCP tool definitions and handler implementations.

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/edtools/canvas-mcp/internal/canvas"
	"github.com/edtools/canvas-mcp/internal/submission"
)

// RedactionMarker replaces the student's user ID in rendered submission
// summaries when anonymisation is requested.
const RedactionMarker = "[REDACTED]"

// ─── list_courses ─────────────────────────────────────────────────────────────

func (s *Server) toolListCourses() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_courses",
		mcplib.WithDescription("List the active courses visible to the configured Canvas token. Returns course IDs, names, codes and workflow states."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListCourses}
}

func (s *Server) handleListCourses(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courses, err := s.client.Courses(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("list_courses: %w", err)), nil
	}
	result, err := resultJSON(courses)
	if err != nil {
		return resultErr(fmt.Errorf("list_courses: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_course ───────────────────────────────────────────────────────────────

func (s *Server) toolGetCourse() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_course",
		mcplib.WithDescription("Get detailed information about a specific course by its ID."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetCourse}
}

func (s *Server) handleGetCourse(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("get_course: course_id is required")), nil
	}
	course, err := s.client.Course(ctx, courseID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Course %d not found.", courseID)), nil
		}
		return resultErr(fmt.Errorf("get_course: %w", err)), nil
	}
	result, err := resultJSON(course)
	if err != nil {
		return resultErr(fmt.Errorf("get_course: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── list_assignments ─────────────────────────────────────────────────────────

func (s *Server) toolListAssignments() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_assignments",
		mcplib.WithDescription("List all assignments in a course. Returns assignment IDs, names, due dates, points and submission types."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListAssignments}
}

func (s *Server) handleListAssignments(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("list_assignments: course_id is required")), nil
	}
	assignments, err := s.client.Assignments(ctx, courseID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Course %d not found.", courseID)), nil
		}
		return resultErr(fmt.Errorf("list_assignments: %w", err)), nil
	}
	result, err := resultJSON(assignments)
	if err != nil {
		return resultErr(fmt.Errorf("list_assignments: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_assignment ───────────────────────────────────────────────────────────

func (s *Server) toolGetAssignment() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_assignment",
		mcplib.WithDescription("Get detailed information about a specific assignment, including its description."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithNumber("assignment_id",
			mcplib.Description("The numeric Canvas assignment ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetAssignment}
}

func (s *Server) handleGetAssignment(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("get_assignment: course_id is required")), nil
	}
	assignmentID, ok := idArg(req, "assignment_id")
	if !ok {
		return resultErr(errors.New("get_assignment: assignment_id is required")), nil
	}
	a, err := s.client.Assignment(ctx, courseID, assignmentID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Assignment %d not found in course %d.", assignmentID, courseID)), nil
		}
		return resultErr(fmt.Errorf("get_assignment: %w", err)), nil
	}
	result, err := resultJSON(a)
	if err != nil {
		return resultErr(fmt.Errorf("get_assignment: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── list_modules ─────────────────────────────────────────────────────────────

func (s *Server) toolListModules() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_modules",
		mcplib.WithDescription("List the content modules of a course in their course order."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListModules}
}

func (s *Server) handleListModules(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("list_modules: course_id is required")), nil
	}
	modules, err := s.client.Modules(ctx, courseID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Course %d not found.", courseID)), nil
		}
		return resultErr(fmt.Errorf("list_modules: %w", err)), nil
	}
	result, err := resultJSON(modules)
	if err != nil {
		return resultErr(fmt.Errorf("list_modules: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── list_pages ───────────────────────────────────────────────────────────────

func (s *Server) toolListPages() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_pages",
		mcplib.WithDescription("List the wiki pages of a course. Page bodies are not included; use get_page_content to read one."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListPages}
}

func (s *Server) handleListPages(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("list_pages: course_id is required")), nil
	}
	pages, err := s.client.Pages(ctx, courseID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Course %d not found.", courseID)), nil
		}
		return resultErr(fmt.Errorf("list_pages: %w", err)), nil
	}
	result, err := resultJSON(pages)
	if err != nil {
		return resultErr(fmt.Errorf("list_pages: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_page_content ─────────────────────────────────────────────────────────

func (s *Server) toolGetPageContent() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_page_content",
		mcplib.WithDescription("Get a course wiki page including its HTML body, identified by the page's URL slug."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithString("page_url",
			mcplib.Description("The page's URL slug as returned by list_pages (e.g. \"syllabus-week-1\")."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetPageContent}
}

func (s *Server) handleGetPageContent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("get_page_content: course_id is required")), nil
	}
	slug, ok := stringArg(req, "page_url")
	if !ok || slug == "" {
		return resultErr(errors.New("get_page_content: page_url is required")), nil
	}
	page, err := s.client.Page(ctx, courseID, slug)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Page %q not found in course %d.", slug, courseID)), nil
		}
		return resultErr(fmt.Errorf("get_page_content: %w", err)), nil
	}
	result, err := resultJSON(page)
	if err != nil {
		return resultErr(fmt.Errorf("get_page_content: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── list_sections ────────────────────────────────────────────────────────────

func (s *Server) toolListSections() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_sections",
		mcplib.WithDescription("List the sections of a course with their student counts."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListSections}
}

func (s *Server) handleListSections(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("list_sections: course_id is required")), nil
	}
	sections, err := s.client.Sections(ctx, courseID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Course %d not found.", courseID)), nil
		}
		return resultErr(fmt.Errorf("list_sections: %w", err)), nil
	}
	result, err := resultJSON(sections)
	if err != nil {
		return resultErr(fmt.Errorf("list_sections: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── list_rubrics ─────────────────────────────────────────────────────────────

func (s *Server) toolListRubrics() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_rubrics",
		mcplib.WithDescription("List the grading rubrics of a course, including their criteria."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListRubrics}
}

func (s *Server) handleListRubrics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("list_rubrics: course_id is required")), nil
	}
	rubrics, err := s.client.Rubrics(ctx, courseID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Course %d not found.", courseID)), nil
		}
		return resultErr(fmt.Errorf("list_rubrics: %w", err)), nil
	}
	result, err := resultJSON(rubrics)
	if err != nil {
		return resultErr(fmt.Errorf("list_rubrics: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── list_submissions ─────────────────────────────────────────────────────────

func (s *Server) toolListSubmissions() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_submissions",
		mcplib.WithDescription("List all submissions for an assignment. Returns submission IDs, user IDs, workflow states, grades and attempt counts."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithNumber("assignment_id",
			mcplib.Description("The numeric Canvas assignment ID."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListSubmissions}
}

// submissionSummary is a JSON-serialisable summary of a submission
// without its content.
type submissionSummary struct {
	ID            int64    `json:"id"`
	UserID        int64    `json:"user_id"`
	WorkflowState string   `json:"workflow_state,omitempty"`
	Type          string   `json:"submission_type,omitempty"`
	Grade         *string  `json:"grade,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	Attempt       int      `json:"attempt,omitempty"`
	Late          bool     `json:"late,omitempty"`
	Missing       bool     `json:"missing,omitempty"`
	Attachments   int      `json:"attachment_count,omitempty"`
}

func (s *Server) handleListSubmissions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("list_submissions: course_id is required")), nil
	}
	assignmentID, ok := idArg(req, "assignment_id")
	if !ok {
		return resultErr(errors.New("list_submissions: assignment_id is required")), nil
	}
	subs, err := s.client.Submissions(ctx, courseID, assignmentID)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf("Assignment %d not found in course %d.", assignmentID, courseID)), nil
		}
		return resultErr(fmt.Errorf("list_submissions: %w", err)), nil
	}
	summaries := make([]submissionSummary, 0, len(subs))
	for _, sub := range subs {
		summaries = append(summaries, submissionSummary{
			ID:            sub.ID,
			UserID:        sub.UserID,
			WorkflowState: sub.WorkflowState,
			Type:          sub.SubmissionType,
			Grade:         sub.Grade,
			Score:         sub.Score,
			Attempt:       sub.Attempt,
			Late:          sub.Late,
			Missing:       sub.Missing,
			Attachments:   len(sub.Attachments),
		})
	}
	result, err := resultJSON(summaries)
	if err != nil {
		return resultErr(fmt.Errorf("list_submissions: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_submission_content ───────────────────────────────────────────────────

func (s *Server) toolGetSubmissionContent() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_submission_content",
		mcplib.WithDescription(`Get one student's submission for an assignment: its text body (for
text-entry submissions), attachment metadata, and optionally the
attachment file contents.

Text-typed files are inlined as text.  Binary files up to 100 KiB are
inlined base64-encoded; larger binary files are replaced with a
placeholder so responses stay bounded.  A failed file download is
reported per file and does not fail the call.`),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithNumber("assignment_id",
			mcplib.Description("The numeric Canvas assignment ID."),
			mcplib.Required(),
		),
		mcplib.WithNumber("user_id",
			mcplib.Description("The numeric Canvas user ID of the student."),
			mcplib.Required(),
		),
		mcplib.WithBoolean("download_files",
			mcplib.Description("Download and inline the attachment contents (default false: metadata and URLs only)."),
		),
		mcplib.WithBoolean("anonymize",
			mcplib.Description("Replace the student's user ID with a redaction marker in the response (default false)."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetSubmissionContent}
}

// attachmentSummary is the rendered attachment metadata.
type attachmentSummary struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	DisplayName string `json:"display_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// fileContent is the rendered content of one downloaded attachment.
type fileContent struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	Error    string `json:"error,omitempty"`
}

// submissionContent is the full rendered submission document.  UserID
// is a string so that the redaction marker can take its place.
type submissionContent struct {
	CourseID      int64             `json:"course_id"`
	AssignmentID  int64             `json:"assignment_id"`
	SubmissionID  int64             `json:"submission_id"`
	UserID        string            `json:"user_id"`
	Type          string            `json:"submission_type,omitempty"`
	WorkflowState string            `json:"workflow_state,omitempty"`
	Grade         *string           `json:"grade,omitempty"`
	Score         *float64          `json:"score,omitempty"`
	Attempt       int               `json:"attempt,omitempty"`
	SubmittedAt   *time.Time        `json:"submitted_at,omitempty"`
	Body          *string           `json:"body"`
	Attachments   []attachmentSummary `json:"attachments"`
	Files         []fileContent     `json:"files,omitempty"`
}

func (s *Server) handleGetSubmissionContent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("get_submission_content: course_id is required")), nil
	}
	assignmentID, ok := idArg(req, "assignment_id")
	if !ok {
		return resultErr(errors.New("get_submission_content: assignment_id is required")), nil
	}
	userID, ok := idArg(req, "user_id")
	if !ok {
		return resultErr(errors.New("get_submission_content: user_id is required")), nil
	}
	downloadFiles := boolArg(req, "download_files", false)
	anonymize := boolArg(req, "anonymize", false)

	doc, err := s.agg.Fetch(ctx, courseID, assignmentID, userID, submission.Options{
		DownloadFiles: downloadFiles,
	})
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf(
				"No submission found for user %d on assignment %d in course %d.",
				userID, assignmentID, courseID)), nil
		}
		return resultErr(fmt.Errorf("get_submission_content: %w", err)), nil
	}

	result, err := resultJSON(renderSubmission(courseID, assignmentID, doc, anonymize))
	if err != nil {
		return resultErr(fmt.Errorf("get_submission_content: serialise: %w", err)), nil
	}
	return result, nil
}

// renderSubmission converts an aggregated document into its transport
// shape.  Redaction happens here, at the presentation layer: the
// aggregator's document always carries the true user ID.
func renderSubmission(courseID, assignmentID int64, doc *submission.Document, anonymize bool) submissionContent {
	userID := strconv.FormatInt(doc.Submission.UserID, 10)
	if anonymize {
		userID = RedactionMarker
	}

	atts := make([]attachmentSummary, 0, len(doc.Attachments))
	for _, a := range doc.Attachments {
		atts = append(atts, attachmentSummary{
			ID:          a.ID,
			Filename:    a.Filename,
			DisplayName: a.DisplayName,
			ContentType: a.ContentType,
			Size:        a.Size,
			URL:         a.URL,
		})
	}

	var files []fileContent
	for _, f := range doc.Files {
		content, enc := f.Inline()
		files = append(files, fileContent{
			ID:       f.ID,
			Filename: f.Filename,
			Size:     f.Size,
			Encoding: string(enc),
			Content:  content,
			Error:    f.Err,
		})
	}

	return submissionContent{
		CourseID:      courseID,
		AssignmentID:  assignmentID,
		SubmissionID:  doc.Submission.ID,
		UserID:        userID,
		Type:          doc.Submission.SubmissionType,
		WorkflowState: doc.Submission.WorkflowState,
		Grade:         doc.Submission.Grade,
		Score:         doc.Submission.Score,
		Attempt:       doc.Submission.Attempt,
		SubmittedAt:   doc.Submission.SubmittedAt,
		Body:          doc.Body,
		Attachments:   atts,
		Files:         files,
	}
}

// ─── grade_submission ─────────────────────────────────────────────────────────

func (s *Server) toolGradeSubmission() mcpsrv.ServerTool {
	tool := mcplib.NewTool("grade_submission",
		mcplib.WithDescription("Post a grade and an optional text comment for one student's submission. This is the only tool that writes to Canvas."),
		mcplib.WithNumber("course_id",
			mcplib.Description("The numeric Canvas course ID."),
			mcplib.Required(),
		),
		mcplib.WithNumber("assignment_id",
			mcplib.Description("The numeric Canvas assignment ID."),
			mcplib.Required(),
		),
		mcplib.WithNumber("user_id",
			mcplib.Description("The numeric Canvas user ID of the student."),
			mcplib.Required(),
		),
		mcplib.WithString("grade",
			mcplib.Description("The grade to post: points (\"12\"), percentage (\"85%\") or letter grade (\"B+\")."),
		),
		mcplib.WithString("comment",
			mcplib.Description("Optional text comment to attach to the submission."),
		),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGradeSubmission}
}

func (s *Server) handleGradeSubmission(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	courseID, ok := idArg(req, "course_id")
	if !ok {
		return resultErr(errors.New("grade_submission: course_id is required")), nil
	}
	assignmentID, ok := idArg(req, "assignment_id")
	if !ok {
		return resultErr(errors.New("grade_submission: assignment_id is required")), nil
	}
	userID, ok := idArg(req, "user_id")
	if !ok {
		return resultErr(errors.New("grade_submission: user_id is required")), nil
	}
	grade, _ := stringArg(req, "grade")
	comment, _ := stringArg(req, "comment")
	if grade == "" && comment == "" {
		return resultErr(errors.New("grade_submission: at least one of grade or comment is required")), nil
	}

	s.logger.InfoContext(ctx, "mcp: grade_submission",
		"course_id", courseID, "assignment_id", assignmentID, "user_id", userID)

	sub, err := s.client.GradeSubmission(ctx, courseID, assignmentID, userID, grade, comment)
	if err != nil {
		if errors.Is(err, canvas.ErrNotFound) {
			return resultText(fmt.Sprintf(
				"No submission found for user %d on assignment %d in course %d.",
				userID, assignmentID, courseID)), nil
		}
		return resultErr(fmt.Errorf("grade_submission: %w", err)), nil
	}
	result, err := resultJSON(sub)
	if err != nil {
		return resultErr(fmt.Errorf("grade_submission: serialise: %w", err)), nil
	}
	return result, nil
}
