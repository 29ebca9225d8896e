package mcp

// In this file: MCP server construction and transport management.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/edtools/canvas-mcp/internal/canvas"
	"github.com/edtools/canvas-mcp/internal/submission"
)

const (
	// ServerName identifies this server to connecting clients and in
	// the /health response.
	ServerName    = "canvas-mcp"
	serverVersion = "1.0.0"
)

// Platform is the upstream Canvas surface consumed by the tool
// handlers.  *canvas.Client satisfies it; tests substitute a fake.
type Platform interface {
	submission.Source

	Courses(ctx context.Context) ([]canvas.Course, error)
	Course(ctx context.Context, courseID int64) (*canvas.Course, error)
	Assignments(ctx context.Context, courseID int64) ([]canvas.Assignment, error)
	Assignment(ctx context.Context, courseID, assignmentID int64) (*canvas.Assignment, error)
	Modules(ctx context.Context, courseID int64) ([]canvas.Module, error)
	Pages(ctx context.Context, courseID int64) ([]canvas.Page, error)
	Page(ctx context.Context, courseID int64, slug string) (*canvas.Page, error)
	Sections(ctx context.Context, courseID int64) ([]canvas.Section, error)
	Rubrics(ctx context.Context, courseID int64) ([]canvas.Rubric, error)
	Submissions(ctx context.Context, courseID, assignmentID int64) ([]canvas.Submission, error)
	GradeSubmission(ctx context.Context, courseID, assignmentID, userID int64, grade, comment string) (*canvas.Submission, error)
}

// Server wraps an MCP server, the Canvas platform client and the
// submission aggregator.  One Server instance carries exactly one
// conversation: the gateway creates a fresh instance per network
// session, and stdio mode creates a single one for the process.
type Server struct {
	mcp    *mcpsrv.MCPServer
	client Platform
	agg    *submission.Aggregator
	logger *slog.Logger
}

// Option is the functional option for the Server.
type Option func(*Server)

// WithLogger sets the logger.  A nil logger falls back to
// slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// New creates a new MCP server backed by the given Canvas platform.
// The server is populated with all available tools but does not start
// listening until ServeStdio is called or a gateway starts routing
// messages to it.
func New(client Platform, opts ...Option) *Server {
	s := &Server{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.agg = submission.New(client, submission.WithLogger(s.logger))

	mcpServer := mcpsrv.NewMCPServer(
		ServerName,
		serverVersion,
		mcpsrv.WithInstructions(instructions()),
	)
	for _, t := range s.tools() {
		mcpServer.AddTool(t.Tool, t.Handler)
	}
	s.mcp = mcpServer
	return s
}

// instructions returns the server instructions that describe the data
// source to the connecting agent.
func instructions() string {
	return `You are connected to a Canvas LMS MCP server.

Available tools allow you to:
- List courses, and list or get assignments within a course
- List course modules, sections and rubrics
- List wiki pages and read a page's content
- List an assignment's submissions
- Get one student's submission content, including its text body,
  attachment metadata and (on request) the attachment file contents
- Post a grade and comment for a submission

All identifiers are numeric Canvas IDs.  Data tools are read-only;
grade_submission is the only tool that writes to the platform.
`
}

// tools returns all MCP tools that this server exposes.
func (s *Server) tools() []mcpsrv.ServerTool {
	return []mcpsrv.ServerTool{
		s.toolListCourses(),
		s.toolGetCourse(),
		s.toolListAssignments(),
		s.toolGetAssignment(),
		s.toolListModules(),
		s.toolListPages(),
		s.toolGetPageContent(),
		s.toolListSections(),
		s.toolListRubrics(),
		s.toolListSubmissions(),
		s.toolGetSubmissionContent(),
		s.toolGradeSubmission(),
	}
}

// HandleMessage processes one raw JSON-RPC message within this
// conversation and returns the response message, or nil when the input
// was a notification.  It is the entry point used by the SSE gateway.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) any {
	resp := s.mcp.HandleMessage(ctx, message)
	if resp == nil {
		return nil
	}
	return resp
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is
// cancelled.  This is the standard transport used by local agent
// integrations; the process serves exactly one session.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// resultText is a helper that wraps text in a successful CallToolResult.
func resultText(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// resultErr is a helper that wraps an error in a CallToolResult with
// IsError=true.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON is a helper that serialises v to JSON and returns a
// CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
// Returns ("", false) if the argument is absent or not a string.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// idArg extracts a named numeric identifier from a tool call request.
// The MCP protocol serialises numbers as float64, so we convert
// accordingly.  Returns (0, false) if the argument is absent or not a
// whole number.
func idArg(req mcplib.CallToolRequest, name string) (int64, bool) {
	args := req.GetArguments()
	if args == nil {
		return 0, false
	}
	v, ok := args[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// boolArg extracts a named bool argument from a tool call request.
func boolArg(req mcplib.CallToolRequest, name string, defaultVal bool) bool {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}
