package canvas

import (
	"context"
	"fmt"
	"net/url"
)

// Courses lists the active courses visible to the current token.
func (cl *Client) Courses(ctx context.Context) ([]Course, error) {
	q := url.Values{"enrollment_state": {"active"}}
	return getPaginated[Course](ctx, cl, "/courses", q)
}

// Course returns a single course by its ID.
func (cl *Client) Course(ctx context.Context, courseID int64) (*Course, error) {
	var c Course
	u := cl.apiURL(fmt.Sprintf("/courses/%d", courseID), url.Values{"include[]": {"total_students"}})
	if err := cl.getJSON(ctx, u, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Modules lists the modules of a course.
func (cl *Client) Modules(ctx context.Context, courseID int64) ([]Module, error) {
	return getPaginated[Module](ctx, cl, fmt.Sprintf("/courses/%d/modules", courseID), nil)
}

// Pages lists the wiki pages of a course.  Page bodies are not included
// in the listing; use Page to fetch one with its body.
func (cl *Client) Pages(ctx context.Context, courseID int64) ([]Page, error) {
	return getPaginated[Page](ctx, cl, fmt.Sprintf("/courses/%d/pages", courseID), nil)
}

// Page returns a single wiki page, identified by its URL slug,
// including its body.
func (cl *Client) Page(ctx context.Context, courseID int64, slug string) (*Page, error) {
	var p Page
	u := cl.apiURL(fmt.Sprintf("/courses/%d/pages/%s", courseID, url.PathEscape(slug)), nil)
	if err := cl.getJSON(ctx, u, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Sections lists the sections of a course.
func (cl *Client) Sections(ctx context.Context, courseID int64) ([]Section, error) {
	q := url.Values{"include[]": {"total_students"}}
	return getPaginated[Section](ctx, cl, fmt.Sprintf("/courses/%d/sections", courseID), q)
}

// Rubrics lists the rubrics defined in a course.
func (cl *Client) Rubrics(ctx context.Context, courseID int64) ([]Rubric, error) {
	return getPaginated[Rubric](ctx, cl, fmt.Sprintf("/courses/%d/rubrics", courseID), nil)
}
