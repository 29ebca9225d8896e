// Package submission assembles a student's submission, its attachment
// metadata and (optionally) the attachment bytes into a single
// document.  Downloads fan out with bounded concurrency and failures
// are captured per file, never aborting the sibling downloads or the
// overall call.
package submission

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edtools/canvas-mcp/internal/canvas"
)

// defNumWorkers is the default number of concurrent downloads.
const defNumWorkers = 4

// Source is the upstream collaborator the aggregator reads from.  It
// exists primarily so tests can substitute a fake.
type Source interface {
	GetSubmission(ctx context.Context, courseID, assignmentID, userID int64) (*canvas.Submission, error)
	ListAttachments(ctx context.Context, sub *canvas.Submission) ([]canvas.Attachment, error)
	DownloadBinary(ctx context.Context, att canvas.Attachment) ([]byte, error)
}

// Options controls one Fetch call.
type Options struct {
	// DownloadFiles enables retrieval of the attachment bytes.  When
	// false no binary fetch is attempted and Document.Files is empty.
	DownloadFiles bool
}

// File is the ephemeral result of one attachment download.  Either Data
// or Err is populated, never both.
type File struct {
	ID          int64  `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
	Err         string `json:"error,omitempty"`
}

// Document is the aggregated submission content.  It always carries the
// true upstream user ID; anonymisation is a presentation concern of the
// caller.
type Document struct {
	Submission  *canvas.Submission
	Attachments []canvas.Attachment
	// Body is the submission text; present only for text-entry
	// submissions, nil otherwise.
	Body *string
	// Files holds one entry per attachment, in attachment order, when
	// downloads were requested; empty otherwise.
	Files []File
}

// Aggregator fetches and assembles submission documents.
type Aggregator struct {
	src     Source
	workers int
	lg      *slog.Logger
}

// Option is the functional option for the Aggregator.
type Option func(*Aggregator)

// WithWorkers bounds the number of concurrent attachment downloads.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(a *Aggregator) {
		if lg != nil {
			a.lg = lg
		}
	}
}

// New creates an Aggregator reading from src.
func New(src Source, opts ...Option) *Aggregator {
	if src == nil {
		panic("programming error: source is nil")
	}
	a := &Aggregator{
		src:     src,
		workers: defNumWorkers,
		lg:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Fetch retrieves the submission for the given course/assignment/user
// triple and assembles its document.  A missing submission is reported
// as canvas.ErrNotFound.  When opts.DownloadFiles is set, each
// attachment is fetched independently: one failed download populates
// that entry's Err field and leaves the others untouched.
func (a *Aggregator) Fetch(ctx context.Context, courseID, assignmentID, userID int64, opts Options) (*Document, error) {
	sub, err := a.src.GetSubmission(ctx, courseID, assignmentID, userID)
	if err != nil {
		return nil, fmt.Errorf("get submission (course=%d, assignment=%d, user=%d): %w", courseID, assignmentID, userID, err)
	}

	atts, err := a.src.ListAttachments(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("list attachments for submission %d: %w", sub.ID, err)
	}
	if atts == nil {
		atts = []canvas.Attachment{}
	}

	doc := &Document{
		Submission:  sub,
		Attachments: atts,
		Files:       []File{},
	}
	if sub.SubmissionType == canvas.SubmissionTypeTextEntry {
		doc.Body = sub.Body
	}
	if !opts.DownloadFiles || len(atts) == 0 {
		return doc, nil
	}

	doc.Files = a.download(ctx, atts)
	return doc, nil
}

// download fans out the attachment downloads over a bounded worker
// group and joins the results.  The returned slice has exactly one slot
// per attachment, in input order, regardless of individual failures.
func (a *Aggregator) download(ctx context.Context, atts []canvas.Attachment) []File {
	files := make([]File, len(atts))

	var g errgroup.Group
	g.SetLimit(a.workers)
	for i, att := range atts {
		files[i] = File{
			ID:          att.ID,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		}
		g.Go(func() error {
			data, err := a.src.DownloadBinary(ctx, att)
			if err != nil {
				a.lg.WarnContext(ctx, "attachment download failed", "id", att.ID, "filename", att.Filename, "error", err)
				files[i].Err = err.Error()
				return nil
			}
			files[i].Data = data
			return nil
		})
	}
	// workers never return errors, the join only waits for completion.
	_ = g.Wait()
	return files
}
