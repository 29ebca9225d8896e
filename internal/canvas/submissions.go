package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Submissions lists all submissions for one assignment.
func (cl *Client) Submissions(ctx context.Context, courseID, assignmentID int64) ([]Submission, error) {
	path := fmt.Sprintf("/courses/%d/assignments/%d/submissions", courseID, assignmentID)
	return getPaginated[Submission](ctx, cl, path, nil)
}

// GetSubmission returns one user's submission for an assignment,
// including its attachment metadata.  A missing submission is reported
// as ErrNotFound.
func (cl *Client) GetSubmission(ctx context.Context, courseID, assignmentID, userID int64) (*Submission, error) {
	var s Submission
	path := fmt.Sprintf("/courses/%d/assignments/%d/submissions/%d", courseID, assignmentID, userID)
	if err := cl.getJSON(ctx, cl.apiURL(path, nil), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListAttachments returns the attachments of a submission, each tagged
// with the owning submission ID.  The returned slice is never nil.
func (cl *Client) ListAttachments(ctx context.Context, sub *Submission) ([]Attachment, error) {
	if sub == nil {
		return []Attachment{}, nil
	}
	atts := make([]Attachment, 0, len(sub.Attachments))
	for _, a := range sub.Attachments {
		a.SubmissionID = sub.ID
		atts = append(atts, a)
	}
	return atts, nil
}

// GradeSubmission posts a grade and an optional text comment for one
// user's submission.  It returns the updated submission record.
func (cl *Client) GradeSubmission(ctx context.Context, courseID, assignmentID, userID int64, grade, comment string) (*Submission, error) {
	form := make(url.Values)
	if grade != "" {
		form.Set("submission[posted_grade]", grade)
	}
	if comment != "" {
		form.Set("comment[text_comment]", comment)
	}
	if len(form) == 0 {
		return nil, fmt.Errorf("grade submission: nothing to post")
	}

	path := fmt.Sprintf("/courses/%d/assignments/%d/submissions/%d", courseID, assignmentID, userID)
	var s Submission
	err := withRetry(ctx, cl.lim, cl.retries, func() error {
		resp, err := cl.do(ctx, http.MethodPut, cl.apiURL(path, nil),
			strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return cl.parseJSON(resp, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}
