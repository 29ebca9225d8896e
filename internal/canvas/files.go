package canvas

import (
	"context"
	"fmt"
	"io"
)

// maxDownloadSize caps a single attachment download at 50 MiB to guard
// against runaway bodies from misreported sizes.
const maxDownloadSize = 50 << 20

// DownloadBinary retrieves the raw bytes of an attachment from its
// retrieval URL.  The download honours the client's rate limiter and
// retry policy and is cancelled with ctx.
func (cl *Client) DownloadBinary(ctx context.Context, att Attachment) ([]byte, error) {
	if att.URL == "" {
		return nil, fmt.Errorf("attachment %d (%s): no retrieval URL", att.ID, att.Filename)
	}
	var data []byte
	err := withRetry(ctx, cl.lim, cl.retries, func() error {
		resp, err := cl.do(ctx, "GET", att.URL, nil, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("download %q: %w", att.Filename, err)
	}
	cl.lg.DebugContext(ctx, "downloaded attachment", "id", att.ID, "filename", att.Filename, "size", len(data))
	return data, nil
}
