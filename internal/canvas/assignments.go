package canvas

import (
	"context"
	"fmt"
)

// Assignments lists the assignments of a course.
func (cl *Client) Assignments(ctx context.Context, courseID int64) ([]Assignment, error) {
	return getPaginated[Assignment](ctx, cl, fmt.Sprintf("/courses/%d/assignments", courseID), nil)
}

// Assignment returns a single assignment by its ID.
func (cl *Client) Assignment(ctx context.Context, courseID, assignmentID int64) (*Assignment, error) {
	var a Assignment
	u := cl.apiURL(fmt.Sprintf("/courses/%d/assignments/%d", courseID, assignmentID), nil)
	if err := cl.getJSON(ctx, u, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
